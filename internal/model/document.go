package model

// Layout kinds reported by document feature analysis.
const (
	LayoutStructured     = "structured"
	LayoutSemiStructured = "semi-structured"
	LayoutUnstructured   = "unstructured"
)

// Priority tiers for document processing.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Document is the inbound unit handed to the processor manager. Bytes and
// mime type always come from the caller; OCRText is optional pre-extracted
// text from an upstream OCR pass.
type Document struct {
	ID       string
	Bytes    []byte
	MimeType string
	Filename string
	Tenant   string
	OCRText  string
}

// Text returns the best available textual representation of the document.
func (d Document) Text() string {
	if d.OCRText != "" {
		return d.OCRText
	}
	return string(d.Bytes)
}

// DocumentFeatures describes a document for classification. The struct is
// ephemeral: it informs a processing decision and is never persisted.
type DocumentFeatures struct {
	Length             int      `json:"length"`
	OCRQuality         float64  `json:"ocr_quality"`
	FileType           string   `json:"file_type"`
	Keywords           []string `json:"keywords"`
	HasTables          bool     `json:"has_tables"`
	ImageQuality       float64  `json:"image_quality,omitempty"`
	LanguageConfidence float64  `json:"language_confidence,omitempty"`
	Complexity         float64  `json:"complexity"`
	LayoutKind         string   `json:"layout_kind"`
	FinancialDensity   float64  `json:"financial_density"`
}

// HasKeyword reports whether any keyword contains the given substring,
// case handled by the caller.
func (f DocumentFeatures) HasKeyword(sub string) bool {
	for _, k := range f.Keywords {
		if containsFold(k, sub) {
			return true
		}
	}
	return false
}
