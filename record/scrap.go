package record

import (
	"strings"
	"sync"
	"unicode"

	"github.com/cloudflare/ahocorasick"
)

// ScrapClassifier decides whether a row describes rejected material.
// Keywords and exception phrases are matched case- and diacritic-insensitively
// in a single pass each. A keyword only hits at the start of a word, so
// "cracked" matches crack but "recut" does not match cut.
type ScrapClassifier struct {
	mu         sync.Mutex // ahocorasick.Matcher.Match is not goroutine safe
	keywords   *ahocorasick.Matcher
	exceptions *ahocorasick.Matcher
	words      []string
}

// NewScrapClassifier builds the keyword and exception matchers.
func NewScrapClassifier(keywords, exceptions []string) *ScrapClassifier {
	words := wordsAll(keywords)
	return &ScrapClassifier{
		keywords:   newMatcher(words),
		exceptions: newMatcher(wordsAll(exceptions)),
		words:      words,
	}
}

func newMatcher(words []string) *ahocorasick.Matcher {
	if len(words) == 0 {
		return nil
	}
	patterns := make([][]byte, len(words))
	for i, w := range words {
		patterns[i] = []byte(" " + w)
	}
	return ahocorasick.NewMatcher(patterns)
}

// wordText folds s and reduces it to its letter runs joined by single
// spaces.
func wordText(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return r
		}
		return ' '
	}, fold(s))
	return strings.Join(strings.Fields(s), " ")
}

func wordsAll(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if w := wordText(p); w != "" {
			out = append(out, w)
		}
	}
	return out
}

// containsWord reports whether any marker occurs in text as whole words.
// Markers must already be reduced by wordText.
func containsWord(text string, markers []string) bool {
	if len(markers) == 0 {
		return false
	}
	padded := " " + wordText(text) + " "
	for _, m := range markers {
		if strings.Contains(padded, " "+m+" ") {
			return true
		}
	}
	return false
}

// matchInput prefixes the word text with a space so every word start is
// preceded by one.
func matchInput(text string) []byte {
	return []byte(" " + wordText(text))
}

// IsScrap reports whether text carries a reject keyword without an
// exception phrase that keeps the unit in production.
func (c *ScrapClassifier) IsScrap(text string) bool {
	if c.keywords == nil || text == "" {
		return false
	}
	in := matchInput(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.keywords.Match(in)) == 0 {
		return false
	}
	if c.exceptions != nil && len(c.exceptions.Match(in)) > 0 {
		return false
	}
	return true
}

// Matches returns the folded reject keywords found in text, in match order.
func (c *ScrapClassifier) Matches(text string) []string {
	if c.keywords == nil || text == "" {
		return nil
	}
	in := matchInput(text)

	c.mu.Lock()
	hits := c.keywords.Match(in)
	c.mu.Unlock()

	out := make([]string, 0, len(hits))
	for _, idx := range hits {
		if idx >= 0 && idx < len(c.words) {
			out = append(out, c.words[idx])
		}
	}
	return out
}
