package summary

import (
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/brunobiangulo/worksheet/record"
)

// Filter narrows a record list. Empty fields match everything.
type Filter struct {
	TireSize  string `json:"tire_size,omitempty"`
	TreadCode string `json:"tread_code,omitempty"`
	Width     string `json:"width,omitempty"`
	// Customer is matched fuzzily, so "bussi" finds "Tallinna Bussiveod AS".
	Customer  string `json:"customer,omitempty"`
	ScrapOnly bool   `json:"scrap_only,omitempty"`
}

// IsZero reports whether the filter lets every record through.
func (f Filter) IsZero() bool {
	return f == Filter{}
}

// Match reports whether r passes the filter.
func (f Filter) Match(r record.Record) bool {
	if f.ScrapOnly && !r.IsScrap {
		return false
	}
	if !containsFold(r.TireSize, f.TireSize) ||
		!containsFold(r.TreadCode, f.TreadCode) ||
		!containsFold(r.Width, f.Width) {
		return false
	}
	if c := strings.TrimSpace(f.Customer); c != "" && !fuzzy.MatchNormalizedFold(c, r.Customer) {
		return false
	}
	return true
}

// Apply returns the records passing the filter, keeping their order.
func (f Filter) Apply(records []record.Record) []record.Record {
	if f.IsZero() {
		return records
	}
	out := make([]record.Record, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

func containsFold(value, needle string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(needle))
}
