package record

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ScrapScope selects the part of a row searched for reject keywords.
type ScrapScope string

const (
	// ScopeAfterSize searches from the end of the tire size to the end of
	// the row, so customer names cannot trigger a scrap flag.
	ScopeAfterSize ScrapScope = "after_size"
	// ScopeRow searches the whole normalized row.
	ScopeRow ScrapScope = "row"
)

// Policy holds every word list the row heuristics depend on.
type Policy struct {
	// MinLength is the minimum normalized row length in characters.
	MinLength int `json:"min_length" yaml:"min_length"`

	// A row is a header when it contains one customer marker and one
	// size marker.
	HeaderCustomerMarkers []string `json:"header_customer_markers" yaml:"header_customer_markers"`
	HeaderSizeMarkers     []string `json:"header_size_markers" yaml:"header_size_markers"`
	PaginationMarkers     []string `json:"pagination_markers" yaml:"pagination_markers"`

	WidthMin int `json:"width_min" yaml:"width_min"`
	WidthMax int `json:"width_max" yaml:"width_max"`

	// TreadCodes is the allow-list used when no width anchor gives a code.
	TreadCodes []string `json:"tread_codes" yaml:"tread_codes"`
	// NonCodeWords are words that never count as a tread code.
	NonCodeWords []string `json:"non_code_words" yaml:"non_code_words"`

	PatchPrefixes []string `json:"patch_prefixes" yaml:"patch_prefixes"`

	RejectKeywords   []string   `json:"reject_keywords" yaml:"reject_keywords"`
	ExceptionPhrases []string   `json:"exception_phrases" yaml:"exception_phrases"`
	ScrapMarkers     []string   `json:"scrap_markers" yaml:"scrap_markers"`
	ScrapScope       ScrapScope `json:"scrap_scope" yaml:"scrap_scope"`

	UnknownCustomer string `json:"unknown_customer" yaml:"unknown_customer"`
}

// DefaultPolicy returns the word lists used on the workshop's Estonian
// worksheets, with English equivalents.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:             10,
		HeaderCustomerMarkers: []string{"klient", "customer"},
		HeaderSizeMarkers:     []string{"mõõt", "size"},
		PaginationMarkers:     []string{"page"},
		WidthMin:              101,
		WidthMax:              499,
		TreadCodes: []string{
			"nrd", "wts", "wmp", "kdy", "mix", "kzy", "ipd", "za", "v", "bus100", "bus400",
		},
		NonCodeWords: []string{
			"original", "originaal", "retreading", "taastamine", "protekteerimine",
			"michelin", "bridgestone", "continental", "goodyear", "hankook",
			"ltd", "as", "oü", "ou", "klient",
		},
		PatchPrefixes: []string{"Ct", "C", "up"},
		RejectKeywords: []string{
			"utiil", "praak", "cut", "damaged", "crack", "hole", "bulge",
			"wire exposed", "separation", "lõige", "mõra", "auk", "mull", "traat väljas", "kihistunud",
		},
		ExceptionPhrases: []string{"fit for oven", "sobib ahju", "ahju sobib", "läheb ahju"},
		ScrapMarkers:     []string{"utiil", "scrap"},
		ScrapScope:       ScopeAfterSize,
		UnknownCustomer:  "Unspecified",
	}
}

// Validate reports configuration that would make the parser misbehave.
func (p Policy) Validate() error {
	if p.MinLength < 0 {
		return fmt.Errorf("min_length must not be negative, got %d", p.MinLength)
	}
	if p.WidthMin > p.WidthMax {
		return fmt.Errorf("width_min %d exceeds width_max %d", p.WidthMin, p.WidthMax)
	}
	if p.WidthMin < 100 || p.WidthMax > 999 {
		return fmt.Errorf("width range [%d, %d] must stay within three digits", p.WidthMin, p.WidthMax)
	}
	switch p.ScrapScope {
	case "", ScopeAfterSize, ScopeRow:
	default:
		return fmt.Errorf("unknown scrap_scope %q", p.ScrapScope)
	}
	for _, prefix := range p.PatchPrefixes {
		if strings.TrimSpace(prefix) == "" {
			return fmt.Errorf("empty patch prefix")
		}
	}
	return nil
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// fold lower-cases s and strips diacritics so "Mõõt" compares equal to "moot".
func fold(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

func foldAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = fold(strings.TrimSpace(w)); w != "" {
			out = append(out, w)
		}
	}
	return out
}

func containsAny(folded string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(folded, m) {
			return true
		}
	}
	return false
}
