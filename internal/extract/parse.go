package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Fanfaster01/nota-debito-app-sub000/internal"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/util"
)

// rawLine tolerates the model quoting the price as a localized string
// ("12,50", "Bs. 36,50") instead of a JSON number.
type rawLine struct {
	Code       *string         `json:"code"`
	Name       string          `json:"name"`
	Packaging  *string         `json:"packaging"`
	Price      json.RawMessage `json:"price"`
	Unit       *string         `json:"unit"`
	Brand      *string         `json:"brand"`
	Confidence *float64        `json:"confidence"`
}

// ParseRecords recovers the JSON record array from a model reply.
// Models wrap answers in markdown fences or surround them with prose,
// so everything outside the outermost brackets is discarded.
func ParseRecords(raw string) ([]internal.RawRecord, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no array found", ErrUnparseable)
	}

	var lines []rawLine
	if err := json.Unmarshal([]byte(text[start:end+1]), &lines); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	records := make([]internal.RawRecord, 0, len(lines))
	for _, line := range lines {
		price, ok := parsePrice(line.Price)
		if !ok {
			continue
		}
		records = append(records, internal.RawRecord{
			Code:       line.Code,
			Name:       line.Name,
			Packaging:  line.Packaging,
			Price:      price,
			Unit:       line.Unit,
			Brand:      line.Brand,
			Confidence: line.Confidence,
		})
	}
	return records, nil
}

func parsePrice(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num, true
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return 0, false
	}
	return util.ParsePrice(text)
}
