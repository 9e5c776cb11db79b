package eval

import (
	"github.com/brunobiangulo/worksheet/record"
	"github.com/brunobiangulo/worksheet/summary"
)

// Fields compared on every matched row, in report order.
var Fields = []string{"customer", "tire_size", "tread_code", "width", "patches", "is_scrap"}

func fieldValues(r record.Record) map[string]string {
	scrap := "no"
	if r.IsScrap {
		scrap = "yes"
	}
	return map[string]string{
		"customer":   r.Customer,
		"tire_size":  r.TireSize,
		"tread_code": r.TreadCode,
		"width":      r.Width,
		"patches":    r.Patches,
		"is_scrap":   scrap,
	}
}

// align pairs each expected record with an extracted one on the same page
// with the same tire size. Extracted records are consumed in order, so a
// missed row does not shift the pairing of the rows after it.
func align(expected, got []record.Record) (pairs [][2]int, missing, spurious []int) {
	used := make([]bool, len(got))
	next := 0
	for i, e := range expected {
		match := -1
		for j := next; j < len(got); j++ {
			if !used[j] && got[j].Page == e.Page && got[j].TireSize == e.TireSize {
				match = j
				break
			}
		}
		if match < 0 {
			missing = append(missing, i)
			continue
		}
		used[match] = true
		next = match + 1
		pairs = append(pairs, [2]int{i, match})
	}
	for j, u := range used {
		if !u {
			spurious = append(spurious, j)
		}
	}
	return pairs, missing, spurious
}

// pieceDelta is the number of pieces by which two consumption tables
// differ, counting each group key independently.
func pieceDelta(want, got map[string]int) int {
	delta := 0
	for k, n := range want {
		delta += absInt(n - got[k])
	}
	for k, n := range got {
		if _, ok := want[k]; !ok {
			delta += n
		}
	}
	return delta
}

func materialCounts(records []record.Record) map[string]int {
	out := make(map[string]int)
	for _, g := range summary.Materials(records) {
		out[g.Key()] = g.Count
	}
	return out
}

func patchCounts(records []record.Record) map[string]int {
	out := make(map[string]int)
	for _, g := range summary.Patches(records) {
		out[g.PatchCode] = g.Count
	}
	return out
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func f1(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
