package record

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	sizePattern  = regexp.MustCompile(`\b\d{3}/\d{2,3}(?:/\d{2,3})?\b`)
	threeDigits  = regexp.MustCompile(`\b\d{3}\b`)
	leadingIndex = regexp.MustCompile(`^\d+(?:\s+|$)`)
)

// Parser extracts records from normalized row text. A Parser is safe for
// concurrent use.
type Parser struct {
	policy Policy

	customerMarkers []string
	sizeMarkers     []string
	pageMarkers     []string
	scrapMarkers    []string
	nonCode         map[string]bool

	treadCodes *regexp.Regexp // nil when the allow-list is empty
	patches    *regexp.Regexp
	scrap      *ScrapClassifier
}

// NewParser compiles the policy into a Parser.
func NewParser(policy Policy) (*Parser, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	if policy.ScrapScope == "" {
		policy.ScrapScope = ScopeAfterSize
	}
	if policy.UnknownCustomer == "" {
		policy.UnknownCustomer = "Unspecified"
	}

	p := &Parser{
		policy:          policy,
		customerMarkers: foldAll(policy.HeaderCustomerMarkers),
		sizeMarkers:     foldAll(policy.HeaderSizeMarkers),
		pageMarkers:     wordsAll(policy.PaginationMarkers),
		scrapMarkers:    foldAll(policy.ScrapMarkers),
		nonCode:         make(map[string]bool),
		scrap:           NewScrapClassifier(policy.RejectKeywords, policy.ExceptionPhrases),
	}
	for _, w := range foldAll(policy.NonCodeWords) {
		p.nonCode[w] = true
	}

	if alt := alternation(policy.TreadCodes); alt != "" {
		p.treadCodes = regexp.MustCompile(`(?i)\b(?:` + alt + `)\b`)
	}
	prefixes := alternation(policy.PatchPrefixes)
	if prefixes == "" {
		prefixes = "Ct|C|up"
	}
	p.patches = regexp.MustCompile(`(?i)\b(?:` + prefixes + `)\d+\b`)

	return p, nil
}

// Policy returns the policy the parser was built from.
func (p *Parser) Policy() Policy { return p.policy }

// Classifier returns the scrap classifier used by Parse.
func (p *Parser) Classifier() *ScrapClassifier { return p.scrap }

// Parse turns one row into a Record. When the row is not a data row the
// returned Rejection says why and the Record is zero. Sequence and Page are
// left for the caller to assign.
func (p *Parser) Parse(text string) (Record, Rejection) {
	clean := strings.Join(strings.Fields(text), " ")
	folded := fold(clean)

	if containsAny(folded, p.customerMarkers) && containsAny(folded, p.sizeMarkers) {
		return Record{}, RejectHeader
	}
	if utf8.RuneCountInString(clean) < p.policy.MinLength {
		return Record{}, RejectShort
	}
	if containsWord(clean, p.pageMarkers) {
		return Record{}, RejectPage
	}

	loc := sizePattern.FindStringIndex(clean)
	if loc == nil {
		if containsAny(folded, p.scrapMarkers) {
			return Record{}, RejectScrapRow
		}
		return Record{}, RejectNoSize
	}
	sizeStart, sizeEnd := loc[0], loc[1]
	size := clean[sizeStart:sizeEnd]

	rec := Record{
		TireSize:  size,
		TreadCode: Unknown,
		Width:     Unknown,
		Patches:   Unknown,
		Text:      clean,
	}

	// Width first: the tread code is only delimited by its position
	// right before the width column.
	candidates := p.widthCandidates(clean, size)
	if n := len(candidates); n > 0 {
		anchor := candidates[n-1]
		rec.Width = clean[anchor[0]:anchor[1]]
		if words := strings.Fields(clean[:anchor[0]]); len(words) > 0 {
			if code, ok := p.treadCode(words[len(words)-1], size); ok {
				rec.TreadCode = code
			}
		}
		if n > 1 || anchor[0] < sizeEnd {
			rec.Ambiguous = true
		}
	}
	if !rec.HasTreadCode() {
		rec.Ambiguous = true
		if p.treadCodes != nil {
			if m := p.treadCodes.FindString(clean); m != "" {
				rec.TreadCode = strings.ToUpper(m)
			}
		}
	}

	rec.Customer = p.customer(clean[:sizeStart])

	if found := p.patches.FindAllString(clean, -1); len(found) > 0 {
		rec.Patches = strings.Join(found, ", ")
	}

	scope := clean[sizeEnd:]
	if p.policy.ScrapScope == ScopeRow {
		scope = clean
	}
	rec.IsScrap = p.scrap.IsScrap(scope)

	return rec, Accepted
}

// widthCandidates returns the offsets of three-digit tokens inside the
// configured width range that are not part of the tire size.
func (p *Parser) widthCandidates(clean, size string) [][]int {
	var out [][]int
	for _, m := range threeDigits.FindAllStringIndex(clean, -1) {
		tok := clean[m[0]:m[1]]
		n, err := strconv.Atoi(tok)
		if err != nil || n < p.policy.WidthMin || n > p.policy.WidthMax {
			continue
		}
		if strings.Contains(size, tok) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (p *Parser) treadCode(word, size string) (string, bool) {
	w := strings.Trim(word, ",;:.()[]")
	if utf8.RuneCountInString(w) < 2 {
		return "", false
	}
	if p.nonCode[fold(w)] || isNumeric(w) {
		return "", false
	}
	if strings.Contains(w, size) || sizePattern.MatchString(w) {
		return "", false
	}
	if p.patches.FindString(w) == w {
		return "", false
	}
	return strings.ToUpper(w), true
}

func (p *Parser) customer(prefix string) string {
	c := leadingIndex.ReplaceAllString(strings.TrimSpace(prefix), "")
	c = strings.ReplaceAll(c, ",", "")
	c = strings.Join(strings.Fields(c), " ")
	if c == "" {
		return p.policy.UnknownCustomer
	}
	return c
}

func alternation(words []string) string {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			quoted = append(quoted, regexp.QuoteMeta(w))
		}
	}
	return strings.Join(quoted, "|")
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
