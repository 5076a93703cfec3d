package extract

import (
	"bytes"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// pdfPlainText pulls the embedded text layer out of a PDF. An empty
// result means the document is a scan.
func pdfPlainText(blob []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String()), nil
}

// hasEmbeddedText reports whether a PDF carries enough of a text layer
// to skip the multimodal path. A handful of stray characters from a
// scanner watermark does not count.
func hasEmbeddedText(blob []byte) bool {
	text, err := pdfPlainText(blob)
	if err != nil {
		return false
	}
	return len(text) >= 32
}
