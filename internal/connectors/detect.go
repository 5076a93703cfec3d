package connectors

import "strings"

type DetectResult struct {
	IsPriceList bool
	Score       float64
	Reason      string
}

var detectKeywords = []string{"lista", "precio", "precios", "oferta", "catalogo", "catálogo", "cotizacion", "cotización", "proveedor"}

// DetectPriceListMail scores a message on cheap textual signals. The
// threshold is deliberately low; a false positive only costs one
// extraction attempt that ends in ERROR.
func DetectPriceListMail(subject, text string, attachmentNames []string) DetectResult {
	subject = strings.ToLower(subject)
	text = strings.ToLower(text)

	score := 0.0
	for _, kw := range detectKeywords {
		if strings.Contains(subject, kw) {
			score += 0.25
		}
		if strings.Contains(text, kw) {
			score += 0.1
		}
	}

	for _, name := range attachmentNames {
		ln := strings.ToLower(name)
		if strings.HasSuffix(ln, ".xlsx") || strings.HasSuffix(ln, ".xls") ||
			strings.HasSuffix(ln, ".csv") || strings.HasSuffix(ln, ".pdf") {
			score += 0.35
			break
		}
	}

	if priceMarks := strings.Count(text, "$") + strings.Count(text, "bs"); priceMarks >= 3 {
		score += 0.2
	}
	if score > 1 {
		score = 1
	}

	isList := score >= 0.45
	reason := "rules_negative"
	if isList {
		reason = "rules_positive"
	}
	return DetectResult{IsPriceList: isList, Score: score, Reason: reason}
}
