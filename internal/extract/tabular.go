package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/xuri/excelize/v2"

	"github.com/Fanfaster01/nota-debito-app-sub000/internal"
)

// tabularText renders a structured document as row-major plain text
// suitable for a text-only prompt, cells joined with " | ". Output is
// truncated at charBudget so one oversized sheet cannot blow the
// prompt size.
func tabularText(format internal.SourceFormat, blob []byte, charBudget int) (string, error) {
	var (
		text string
		err  error
	)
	switch format {
	case internal.FormatXLSX:
		text, err = xlsxText(blob)
	case internal.FormatCSV:
		text, err = csvText(blob)
	case internal.FormatHTML:
		text, err = htmlText(blob)
	default:
		return "", fmt.Errorf("extract: format %s is not tabular", format)
	}
	if err != nil {
		return "", err
	}
	return capText(text, charBudget), nil
}

// capText truncates text to at most budget bytes, preferring the last
// full line and never splitting a multi-byte rune.
func capText(text string, budget int) string {
	if budget <= 0 || len(text) <= budget {
		return text
	}
	if cut := strings.LastIndex(text[:budget], "\n"); cut > 0 {
		return text[:cut]
	}
	cut := budget
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func xlsxText(blob []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(blob))
	if err != nil {
		return "", fmt.Errorf("extract: open xlsx: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		for _, row := range rows {
			line := joinCells(row)
			if line == "" {
				continue
			}
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func csvText(blob []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(blob))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		// retry with the semicolon delimiter common in Spanish exports
		reader = csv.NewReader(bytes.NewReader(blob))
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true
		reader.Comma = ';'
		rows, err = reader.ReadAll()
		if err != nil {
			return "", fmt.Errorf("extract: read csv: %w", err)
		}
	}

	var sb strings.Builder
	for _, row := range rows {
		line := joinCells(row)
		if line == "" {
			continue
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func htmlText(blob []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(blob))
	if err != nil {
		return "", fmt.Errorf("extract: parse html: %w", err)
	}

	var sb strings.Builder
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := []string{}
		row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, cell.Text())
		})
		if line := joinCells(cells); line != "" {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	})
	if sb.Len() == 0 {
		// no tables; fall back to the page text
		sb.WriteString(strings.TrimSpace(doc.Text()))
	}
	return sb.String(), nil
}

func joinCells(cells []string) string {
	out := make([]string, 0, len(cells))
	empty := true
	for _, c := range cells {
		c = strings.TrimSpace(strings.Join(strings.Fields(c), " "))
		if c != "" {
			empty = false
		}
		out = append(out, c)
	}
	if empty {
		return ""
	}
	return strings.Join(out, " | ")
}
