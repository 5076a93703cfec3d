package match

import (
	"github.com/Fanfaster01/nota-debito-app-sub000/internal"
	"github.com/Fanfaster01/nota-debito-app-sub000/internal/util"
)

// localIndex is the in-memory fallback over a bounded slice of recent
// catalog entries, used when the search index is down or unconfigured.
type localIndex struct {
	byCode    map[string]int
	byName    map[string]int
	namesByID map[int][]string
}

func buildLocalIndex(entries []internal.CatalogEntry) *localIndex {
	idx := &localIndex{
		byCode:    map[string]int{},
		byName:    map[string]int{},
		namesByID: map[int][]string{},
	}

	for _, e := range entries {
		if code := util.NormalizeCode(e.Code); code != "" {
			idx.byCode[code] = e.ID
		}

		names := []string{}
		if n := util.NormalizeName(e.CanonicalName); n != "" {
			names = append(names, n)
		}
		for _, alt := range e.AlternateNames {
			if n := util.NormalizeName(alt); n != "" {
				names = append(names, n)
			}
		}
		for _, n := range names {
			if _, taken := idx.byName[n]; !taken {
				idx.byName[n] = e.ID
			}
		}
		idx.namesByID[e.ID] = names
	}
	return idx
}
