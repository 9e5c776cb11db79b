// Package record turns reconstructed worksheet rows into production records.
package record

// Unknown marks a field the parser could not detect.
const Unknown = "—"

// Record is one production line of the worksheet.
type Record struct {
	Sequence  int    `json:"sequence"`
	Page      int    `json:"page"`
	Customer  string `json:"customer"`
	TireSize  string `json:"tire_size"`
	TreadCode string `json:"tread_code"`
	Width     string `json:"width"`
	Patches   string `json:"patches"`
	IsScrap   bool   `json:"is_scrap"`
	// Ambiguous marks rows whose width or tread code had to be guessed.
	Ambiguous bool   `json:"ambiguous"`
	Text      string `json:"text"`
}

// HasTreadCode reports whether a tread code was detected.
func (r Record) HasTreadCode() bool {
	return r.TreadCode != "" && r.TreadCode != Unknown
}

// HasPatches reports whether any patch code was detected.
func (r Record) HasPatches() bool {
	return r.Patches != "" && r.Patches != Unknown
}

// Rejection explains why a row did not produce a record.
type Rejection string

const (
	Accepted       Rejection = ""
	RejectHeader   Rejection = "header"
	RejectShort    Rejection = "too_short"
	RejectPage     Rejection = "pagination"
	RejectNoSize   Rejection = "no_size"
	RejectScrapRow Rejection = "scrap_remark"
)
