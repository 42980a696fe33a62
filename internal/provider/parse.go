package provider

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/contaflow/docextract/internal/model"
)

// FlexFloat tolerates numbers that arrive as JSON strings ("23,00", "€5.10")
// or plain numerics. Extraction backends are inconsistent about this.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*f = 0
		return nil
	}
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = FlexFloat(num)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, ok := model.ParseAmount(str)
	if !ok {
		*f = 0
		return nil
	}
	*f = FlexFloat(parsed)
	return nil
}

// rawExtraction is the JSON payload requested from every backend prompt.
type rawExtraction struct {
	Vendor        string    `json:"vendor"`
	TaxID         string    `json:"tax_id"`
	TaxIDCountry  string    `json:"tax_id_country"`
	VendorAddress string    `json:"vendor_address"`
	VendorPhone   string    `json:"vendor_phone"`
	InvoiceNumber string    `json:"invoice_number"`
	IssueDate     string    `json:"issue_date"`
	Total         FlexFloat `json:"total"`
	NetAmount     FlexFloat `json:"net_amount"`
	VATAmount     FlexFloat `json:"vat_amount"`
	VATRate       FlexFloat `json:"vat_rate"`
	Category      string    `json:"category"`
	Description   string    `json:"description"`
	PaymentType   string    `json:"payment_type"`
	Confidence    FlexFloat `json:"confidence"`
	Issues        []string  `json:"extraction_issues"`
	LineItems     []rawLine `json:"line_items"`
}

type rawLine struct {
	Description string    `json:"description"`
	Quantity    FlexFloat `json:"quantity"`
	UnitPrice   FlexFloat `json:"unit_price"`
	NetAmount   FlexFloat `json:"net_amount"`
	VATRate     FlexFloat `json:"vat_rate"`
	VATAmount   FlexFloat `json:"vat_amount"`
	TotalAmount FlexFloat `json:"total_amount"`
}

// parseExtractionJSON salvages the first JSON object from a model response,
// tolerating surrounding prose and markdown fences.
func parseExtractionJSON(text string) (*rawExtraction, error) {
	body := FirstJSONObject(text)
	if body == "" {
		return nil, eris.New("no JSON object in model response")
	}
	var raw rawExtraction
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, eris.Wrap(err, "decode extraction payload")
	}
	return &raw, nil
}

// FirstJSONObject returns the outermost {...} span in text, or "". Model
// responses regularly wrap their payload in prose; every LLM-backed
// component shares this salvage step.
func FirstJSONObject(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
