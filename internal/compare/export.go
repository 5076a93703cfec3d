package compare

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/Fanfaster01/nota-debito-app-sub000/internal"
)

// ExportRunToXLSX writes one row per compared product, with a price
// column pair per supplier in the order the suppliers first appear.
func ExportRunToXLSX(results []internal.ComparisonResult, outputPath string) error {
	suppliers := []string{}
	seen := map[string]bool{}
	for _, r := range results {
		for _, p := range r.Prices {
			if !seen[p.SupplierName] {
				seen[p.SupplierName] = true
				suppliers = append(suppliers, p.SupplierName)
			}
		}
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []string{"producto", "codigo_catalogo"}
	for _, s := range suppliers {
		headers = append(headers, s+" (USD)", s+" (moneda original)")
	}
	headers = append(headers, "mejor_proveedor", "mejor_precio_usd", "diferencia_pct", "anomalia")

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, result := range results {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, result.ProductName)
		if result.CatalogID != nil {
			set(2, *result.CatalogID)
		}

		byName := map[string]internal.SupplierPrice{}
		for _, p := range result.Prices {
			byName[p.SupplierName] = p
		}
		for j, s := range suppliers {
			p, ok := byName[s]
			if !ok {
				continue
			}
			set(3+j*2, p.PriceUSD)
			set(4+j*2, fmt.Sprintf("%.2f %s", p.Price, p.Currency))
		}

		base := 3 + len(suppliers)*2
		set(base, result.Best.SupplierName)
		set(base+1, result.Best.Amount)
		set(base+2, result.SpreadPct)
		if result.Anomaly != nil {
			set(base+3, *result.Anomaly)
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}
