package provider

// extractionSystemPrompt is shared by both LLM-backed providers. The
// placeholder and tax-id rules are re-enforced in code; stating them in the
// prompt reduces how often sanitation has to discard values.
const extractionSystemPrompt = `You extract structured data from financial documents (invoices, receipts).
Extract ONLY values actually visible in the document. Never invent values,
never use generic placeholders. Leave a field empty when the document does
not show it, and report the gap in extraction_issues instead.

Rules:
- Monetary amounts as plain decimal numbers in the document currency.
- vat_rate as a 0-1 fraction (23% -> 0.23).
- tax_id with its two-letter EU country prefix (PT123456789, IT12345678901)
  when the prefix is printed or the country is unambiguous from the vendor's
  legal name or the document language. If uncertain, return it unprefixed.
- issue_date as YYYY-MM-DD.
- confidence in [0,1] reflecting how completely the primary fields
  (vendor, tax_id, invoice_number, issue_date, total) were found.`

const extractionUserPrompt = `Extract the invoice/receipt fields and return ONLY this JSON object:
{
  "vendor": "", "tax_id": "", "tax_id_country": "", "vendor_address": "",
  "vendor_phone": "", "invoice_number": "", "issue_date": "",
  "total": 0, "net_amount": 0, "vat_amount": 0, "vat_rate": 0,
  "category": "", "description": "", "payment_type": "",
  "line_items": [{"description": "", "quantity": 0, "unit_price": 0,
    "net_amount": 0, "vat_rate": 0, "vat_amount": 0, "total_amount": 0}],
  "confidence": 0, "extraction_issues": []
}`
