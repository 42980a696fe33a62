package ocr

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// PdfToText extracts text with the pdftotext CLI tool. The document bytes
// are spooled to a temp file because pdftotext cannot read PDFs from stdin.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty,
// "pdftotext" is resolved from PATH.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// Extract runs pdftotext -layout over the document and returns stdout.
func (p *PdfToText) Extract(ctx context.Context, data []byte) (string, error) {
	dir, err := os.MkdirTemp("", "docextract-ocr-")
	if err != nil {
		return "", eris.Wrap(err, "ocr: temp dir")
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "doc.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", eris.Wrap(err, "ocr: spool pdf")
	}

	cmd := exec.CommandContext(ctx, p.binPath, "-layout", path, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "ocr: pdftotext failed: %s", stderr.String())
	}

	return stdout.String(), nil
}
