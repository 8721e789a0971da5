package domain

import (
	"io"
	"time"
)

// PageSeparator joins the text of consecutive pages.
const PageSeparator = "\n\f\n"

type RecoveryMethod string

const (
	MethodText RecoveryMethod = "pdf-text"
	MethodOCR  RecoveryMethod = "pdf-ocr"
)

// PageImage is a rasterized page on local disk.
type PageImage struct {
	Number int
	Path   string
}

// RecoveredText is the outcome of recovering text from one document.
// Err is set when no usable text could be produced; Text is empty then.
type RecoveredText struct {
	Text     string
	Pages    int
	Method   RecoveryMethod
	Warnings []string
	Err      error
	Duration time.Duration
}

type DocumentReport struct {
	Path       string         `json:"path"`
	Method     RecoveryMethod `json:"method,omitempty"`
	Pages      int            `json:"pages"`
	Found      int            `json:"found"`
	Warnings   []string       `json:"warnings,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

// ExtractionResult is the deduplicated identifier list of a batch plus
// one report per document, in input order.
type ExtractionResult struct {
	Identifiers []Identifier     `json:"identifiers"`
	Documents   []DocumentReport `json:"documents"`
}

// Failed returns the reports of documents that produced an error.
func (r ExtractionResult) Failed() []DocumentReport {
	var out []DocumentReport
	for _, doc := range r.Documents {
		if doc.Error != "" {
			out = append(out, doc)
		}
	}
	return out
}

// Upload is one document received over the network.
type Upload struct {
	Filename string
	Body     io.Reader
}
