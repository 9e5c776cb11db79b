package summary

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brunobiangulo/worksheet/record"
)

func TestFilterApply(t *testing.T) {
	records := []record.Record{
		{Sequence: 1, Customer: "Tallinna Bussiveod AS", TireSize: "315/80/225", TreadCode: "NRD", Width: "260"},
		{Sequence: 2, Customer: "Acme Ltd", TireSize: "295/80/225", TreadCode: "WTS", Width: "240", IsScrap: true},
		{Sequence: 3, Customer: "Põltsamaa Vedu OÜ", TireSize: "315/70/225", TreadCode: "KDY", Width: "250"},
	}

	seqs := func(rs []record.Record) []int {
		out := []int{}
		for _, r := range rs {
			out = append(out, r.Sequence)
		}
		return out
	}

	tests := []struct {
		name   string
		filter Filter
		want   []int
	}{
		{"zero filter", Filter{}, []int{1, 2, 3}},
		{"size substring", Filter{TireSize: "/225"}, []int{1, 2, 3}},
		{"size prefix", Filter{TireSize: "315"}, []int{1, 3}},
		{"tread case insensitive", Filter{TreadCode: "wts"}, []int{2}},
		{"width", Filter{Width: "26"}, []int{1}},
		{"fuzzy customer", Filter{Customer: "bussi"}, []int{1}},
		{"customer without diacritics", Filter{Customer: "poltsamaa"}, []int{3}},
		{"scrap only", Filter{ScrapOnly: true}, []int{2}},
		{"combined", Filter{TireSize: "315", TreadCode: "kdy"}, []int{3}},
		{"no match", Filter{TreadCode: "BUS400"}, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, seqs(tt.filter.Apply(records)))
		})
	}
}

func TestFilterIsZero(t *testing.T) {
	assert.True(t, Filter{}.IsZero())
	assert.False(t, Filter{Width: "260"}.IsZero())
}
