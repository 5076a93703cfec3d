package util

import (
	"regexp"
	"strings"
)

var (
	reQuotes      = regexp.MustCompile(`["'` + "`" + `«»]`)
	reNonAllowed  = regexp.MustCompile(`[^a-z0-9ñ\s]`)
	reQtyWithUnit = regexp.MustCompile(`\b\d+([.,]\d+)?\s*(gr|grs|gramos?|g|kg|kilos?|mg|ml|cc|lt|lts|litros?|l|oz|onzas?)\b`)
	reBareNumber  = regexp.MustCompile(`\b\d+([.,]\d+)?\b`)
)

var diacritics = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u",
	"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u", "Ü", "u",
)

// packagingTokens are unit/packaging words stripped so that names like
// "Café Especial 500 GR Caja" and "café especial caja" converge.
var packagingTokens = map[string]struct{}{
	"gr": {}, "grs": {}, "gramo": {}, "gramos": {}, "kg": {}, "kilo": {}, "kilos": {},
	"mg": {}, "ml": {}, "cc": {}, "lt": {}, "lts": {}, "litro": {}, "litros": {},
	"oz": {}, "onza": {}, "onzas": {},
	"caja": {}, "cajas": {}, "und": {}, "unid": {}, "unidad": {}, "unidades": {}, "uds": {}, "pza": {}, "pzas": {},
	"paquete": {}, "paquetes": {}, "bulto": {}, "bultos": {}, "display": {},
	"blister": {}, "saco": {}, "sacos": {}, "frasco": {}, "botella": {}, "lata": {},
}

// NormalizeName canonicalizes a free-text product name into a comparable
// key. Deterministic and total; empty input yields empty output, which
// callers treat as unextractable.
func NormalizeName(input string) string {
	s := strings.ToLower(input)
	s = diacritics.Replace(s)
	s = reQuotes.ReplaceAllString(s, " ")
	s = reQtyWithUnit.ReplaceAllString(s, " ")
	s = reNonAllowed.ReplaceAllString(s, " ")
	s = reBareNumber.ReplaceAllString(s, " ")

	parts := strings.Fields(s)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if _, drop := packagingTokens[p]; drop {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, " ")
}

func NormalizeCode(input string) string {
	s := strings.ToUpper(strings.TrimSpace(input))
	b := strings.Builder{}
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '/' || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func DiceCoefficient(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	pairs := func(s string) []string {
		r := []rune(s)
		if len(r) < 2 {
			return nil
		}
		out := make([]string, 0, len(r)-1)
		for i := 0; i < len(r)-1; i++ {
			out = append(out, string(r[i:i+2]))
		}
		return out
	}

	aPairs := pairs(a)
	bPairs := pairs(b)
	if len(aPairs) == 0 || len(bPairs) == 0 {
		return 0
	}

	bCount := map[string]int{}
	for _, p := range bPairs {
		bCount[p]++
	}
	inter := 0
	for _, p := range aPairs {
		if bCount[p] > 0 {
			inter++
			bCount[p]--
		}
	}

	return float64(2*inter) / float64(len(aPairs)+len(bPairs))
}

// ScoreNames blends bigram similarity with token overlap, the same scale
// used by every fuzzy tier of the matcher.
func ScoreNames(a, b string) float64 {
	dice := DiceCoefficient(a, b)
	aTokens := strings.Fields(a)
	bTokens := strings.Fields(b)
	if len(aTokens) == 0 || len(bTokens) == 0 {
		return dice
	}

	set := map[string]struct{}{}
	for _, t := range bTokens {
		set[t] = struct{}{}
	}
	overlap := 0
	for _, t := range aTokens {
		if _, ok := set[t]; ok {
			overlap++
		}
	}
	tokenScore := float64(overlap) / float64(len(aTokens))
	return 0.65*dice + 0.35*tokenScore
}
