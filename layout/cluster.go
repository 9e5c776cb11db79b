// Package layout rebuilds printed table rows from positioned text fragments.
package layout

import (
	"sort"
	"strings"
)

// DefaultTolerance is the maximum Y distance (exclusive) for a fragment to
// join an existing row.
const DefaultTolerance = 5.0

// Fragment is one run of text at its baseline position on a page.
// Y grows upwards, as in PDF user space.
type Fragment struct {
	Text string  `json:"text"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// Row is a group of fragments believed to belong to one printed line.
type Row struct {
	Y         float64    // representative Y (the fragment that opened the row)
	Fragments []Fragment // left to right
}

// Text returns the fragments joined by single spaces.
func (r Row) Text() string {
	parts := make([]string, len(r.Fragments))
	for i, f := range r.Fragments {
		parts[i] = f.Text
	}
	return strings.Join(parts, " ")
}

// Clusterer groups fragments into rows by Y proximity.
type Clusterer struct {
	Tolerance float64
}

// NewClusterer returns a Clusterer. A negative tolerance falls back to
// DefaultTolerance; zero groups only fragments with identical Y.
func NewClusterer(tolerance float64) *Clusterer {
	if tolerance < 0 {
		tolerance = DefaultTolerance
	}
	return &Clusterer{Tolerance: tolerance}
}

// Cluster assigns each fragment to the first row whose representative Y is
// within tolerance, in arrival order. Representatives are never re-centered,
// so the result depends on fragment order when rows are close together.
// Rows come back top of page first; fragments inside a row left to right.
func (c *Clusterer) Cluster(fragments []Fragment) []Row {
	if len(fragments) == 0 {
		return nil
	}

	var rows []Row
	for _, f := range fragments {
		placed := false
		for i := range rows {
			if d := abs(rows[i].Y - f.Y); d < c.Tolerance || d == 0 {
				rows[i].Fragments = append(rows[i].Fragments, f)
				placed = true
				break
			}
		}
		if !placed {
			rows = append(rows, Row{Y: f.Y, Fragments: []Fragment{f}})
		}
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Y > rows[j].Y })
	for i := range rows {
		frags := rows[i].Fragments
		sort.SliceStable(frags, func(a, b int) bool { return frags[a].X < frags[b].X })
	}
	return rows
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
