// Package summary reduces production records into material and patch
// consumption groups.
package summary

import (
	"slices"
	"strings"

	"github.com/brunobiangulo/worksheet/record"
)

// MaterialGroup counts production records sharing size, tread code and width.
type MaterialGroup struct {
	TireSize  string `json:"tire_size"`
	TreadCode string `json:"tread_code"`
	Width     string `json:"width"`
	Count     int    `json:"count"`
}

// Key returns the grouping key, e.g. "315/80/225-NRD-260".
func (g MaterialGroup) Key() string {
	return g.TireSize + "-" + g.TreadCode + "-" + g.Width
}

// PatchGroup counts how many production records used a patch code.
type PatchGroup struct {
	PatchCode string `json:"patch_code"`
	Count     int    `json:"count"`
}

// Totals mirrors the worksheet summary: all rows, split into production
// and scrap, plus piece counts of the two consumption tables.
type Totals struct {
	Rows           int `json:"rows"`
	ProductionRows int `json:"production_rows"`
	ScrapRows      int `json:"scrap_rows"`
	AmbiguousRows  int `json:"ambiguous_rows"`
	MaterialPieces int `json:"material_pieces"`
	PatchPieces    int `json:"patch_pieces"`
}

type materialKey struct {
	size, tread, width string
}

// Materials groups non-scrap records with a known tread code by
// (size, tread code, width), most used first. Ties keep first-seen order.
func Materials(records []record.Record) []MaterialGroup {
	index := make(map[materialKey]int)
	var groups []MaterialGroup

	for _, r := range records {
		if r.IsScrap || !r.HasTreadCode() {
			continue
		}
		k := materialKey{r.TireSize, r.TreadCode, r.Width}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, MaterialGroup{TireSize: r.TireSize, TreadCode: r.TreadCode, Width: r.Width})
		}
		groups[i].Count++
	}

	slices.SortStableFunc(groups, func(a, b MaterialGroup) int { return b.Count - a.Count })
	return groups
}

// Patches counts each patch code over non-scrap records, most used first.
// Ties keep first-seen order.
func Patches(records []record.Record) []PatchGroup {
	index := make(map[string]int)
	var groups []PatchGroup

	for _, r := range records {
		if r.IsScrap || !r.HasPatches() {
			continue
		}
		for _, code := range strings.Split(r.Patches, ",") {
			code = strings.TrimSpace(code)
			if code == "" {
				continue
			}
			i, ok := index[code]
			if !ok {
				i = len(groups)
				index[code] = i
				groups = append(groups, PatchGroup{PatchCode: code})
			}
			groups[i].Count++
		}
	}

	slices.SortStableFunc(groups, func(a, b PatchGroup) int { return b.Count - a.Count })
	return groups
}

// Summarize computes the totals for records and the groups derived from them.
func Summarize(records []record.Record, materials []MaterialGroup, patches []PatchGroup) Totals {
	t := Totals{Rows: len(records)}
	for _, r := range records {
		if r.IsScrap {
			t.ScrapRows++
		}
		if r.Ambiguous {
			t.AmbiguousRows++
		}
	}
	t.ProductionRows = t.Rows - t.ScrapRows
	for _, g := range materials {
		t.MaterialPieces += g.Count
	}
	for _, g := range patches {
		t.PatchPieces += g.Count
	}
	return t
}
