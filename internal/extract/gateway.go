// Package extract turns uploaded price-list documents into raw line
// records by prompting a generative model, with format-specific
// preprocessing so structured files travel as text and scans as media.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Fanfaster01/nota-debito-app-sub000/internal"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/ai"
)

const extractionPrompt = `Analiza esta lista de precios de un proveedor y extrae todos los productos.
Devuelve UNICAMENTE un array JSON, sin texto adicional, donde cada elemento tiene:
  "code": codigo del producto si aparece (string, opcional),
  "name": nombre del producto tal como aparece (string, obligatorio),
  "packaging": presentacion o empaque si aparece (string, opcional),
  "price": precio unitario como numero decimal (obligatorio),
  "unit": unidad de venta si aparece (string, opcional),
  "brand": marca si aparece (string, opcional),
  "confidence": tu confianza en la fila de 0 a 100 (numero, opcional).
Ignora encabezados, totales, firmas y filas sin precio. No inventes productos.`

// Gateway is the single entry point for AI extraction. It owns the
// prompt, the format routing and the sanity filters applied to what
// the model returns.
type Gateway struct {
	gen               ai.Generator
	model             string
	defaultConfidence float64
	charBudget        int
	pdfMultimodal     bool
}

func NewGateway(gen ai.Generator, model string, defaultConfidence float64, charBudget int, pdfMultimodal bool) *Gateway {
	return &Gateway{
		gen:               gen,
		model:             model,
		defaultConfidence: defaultConfidence,
		charBudget:        charBudget,
		pdfMultimodal:     pdfMultimodal,
	}
}

// SupportsMultimodalPDF reports whether the configured model reads PDF
// bytes directly. The gemini family does; PDF_MULTIMODAL forces it on
// for other models. Without it, scanned PDFs must be converted to
// images first.
func (g *Gateway) SupportsMultimodalPDF() bool {
	return g.pdfMultimodal || strings.Contains(strings.ToLower(g.model), "gemini")
}

// NeedsConversion is the cheap pre-flight check run before a list is
// claimed for processing, so a scan that cannot be read yet leaves the
// list in its current state.
func (g *Gateway) NeedsConversion(format internal.SourceFormat, blob []byte) bool {
	return format == internal.FormatPDF && !hasEmbeddedText(blob) && !g.SupportsMultimodalPDF()
}

// Extract runs the model over the document and returns the surviving
// records plus the tokens billed.
func (g *Gateway) Extract(ctx context.Context, format internal.SourceFormat, filename string, blob []byte) ([]internal.RawRecord, int, error) {
	var (
		raw    string
		tokens int
		err    error
	)

	switch format {
	case internal.FormatImage:
		raw, tokens, err = g.gen.Generate(ctx, g.model, extractionPrompt, &ai.Media{
			MIMEType: imageMIMEType(filename),
			Data:     blob,
		})
	case internal.FormatPDF:
		raw, tokens, err = g.extractPDF(ctx, blob)
	case internal.FormatXLSX, internal.FormatCSV, internal.FormatHTML:
		var text string
		text, err = tabularText(format, blob, g.charBudget)
		if err != nil {
			return nil, 0, err
		}
		prompt := extractionPrompt + "\n\nDocumento:\n" + text
		raw, tokens, err = g.gen.Generate(ctx, g.model, prompt, nil)
	default:
		return nil, 0, fmt.Errorf("extract: unsupported format %q", format)
	}
	if err != nil {
		return nil, tokens, err
	}

	records, err := ParseRecords(raw)
	if err != nil {
		return nil, tokens, err
	}
	return g.sanitize(records), tokens, nil
}

func (g *Gateway) extractPDF(ctx context.Context, blob []byte) (string, int, error) {
	if text, err := pdfPlainText(blob); err == nil && len(text) >= 32 {
		text = capText(text, g.charBudget)
		return g.gen.Generate(ctx, g.model, extractionPrompt+"\n\nDocumento:\n"+text, nil)
	}

	if !g.SupportsMultimodalPDF() {
		return "", 0, ErrPDFConversionNeeded
	}
	return g.gen.Generate(ctx, g.model, extractionPrompt, &ai.Media{
		MIMEType: "application/pdf",
		Data:     blob,
	})
}

// sanitize drops rows the model should not have produced: blank names,
// negative prices. Missing confidences get the configured default and
// out-of-range ones are clamped.
func (g *Gateway) sanitize(records []internal.RawRecord) []internal.RawRecord {
	out := make([]internal.RawRecord, 0, len(records))
	for _, rec := range records {
		rec.Name = strings.TrimSpace(rec.Name)
		if rec.Name == "" || rec.Price < 0 {
			continue
		}
		conf := g.defaultConfidence
		if rec.Confidence != nil {
			conf = *rec.Confidence
		}
		if conf < 0 {
			conf = 0
		}
		if conf > 100 {
			conf = 100
		}
		rec.Confidence = &conf
		out = append(out, rec)
	}
	return out
}

func imageMIMEType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
