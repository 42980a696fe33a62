package model

// LineItem is one row of a document's itemized table. Order within a record
// follows document row order and rows need not be unique by content.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	NetAmount   float64 `json:"net_amount"`
	VATRate     float64 `json:"vat_rate"`
	VATAmount   float64 `json:"vat_amount"`
	TotalAmount float64 `json:"total_amount"`
}

// Empty reports whether the item carries no usable data at all.
func (li LineItem) Empty() bool {
	return li.Description == "" && li.Quantity == 0 && li.UnitPrice == 0 &&
		li.NetAmount == 0 && li.VATAmount == 0 && li.TotalAmount == 0
}
