package nlp

import (
	"strings"
	"unicode/utf8"
)

// Match is one dictionary term found in a text. Offsets are rune positions
// into the searched text, matching how transcript character spans are stored.
type Match struct {
	Term      string
	Name      string // dictionary name: alert category or entity label
	CharStart int
	CharEnd   int
}

// PhraseIndex finds dictionary terms in normalized text. Terms are folded
// with NormalizeArabic at build time so lookups only normalize the input.
type PhraseIndex struct {
	entries []indexEntry
}

type indexEntry struct {
	term   string // original term, reported in matches
	folded string
	name   string
}

// NewPhraseIndex builds an index over all terms of the given dictionaries.
func NewPhraseIndex(dicts []Dictionary) *PhraseIndex {
	idx := &PhraseIndex{}
	for _, d := range dicts {
		for _, term := range d.Terms {
			idx.entries = append(idx.entries, indexEntry{
				term:   term,
				folded: NormalizeArabic(term),
				name:   d.Name,
			})
		}
	}
	return idx
}

// Len returns the number of indexed terms.
func (idx *PhraseIndex) Len() int {
	return len(idx.entries)
}

// FindAll returns the first occurrence of each indexed term in text.
// The text is normalized before searching; offsets refer to the normalized
// form.
func (idx *PhraseIndex) FindAll(text string) []Match {
	folded := NormalizeArabic(text)
	var matches []Match
	for _, e := range idx.entries {
		byteIdx := strings.Index(folded, e.folded)
		if byteIdx < 0 {
			continue
		}
		start := utf8.RuneCountInString(folded[:byteIdx])
		matches = append(matches, Match{
			Term:      e.term,
			Name:      e.name,
			CharStart: start,
			CharEnd:   start + utf8.RuneCountInString(e.folded),
		})
	}
	return matches
}

// FallbackTerms extracts unique whitespace tokens of at least four runes,
// in order of first appearance. Used when no entity dictionaries are
// configured.
func FallbackTerms(text string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, tok := range strings.Fields(text) {
		if utf8.RuneCountInString(tok) < 4 {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		terms = append(terms, tok)
	}
	return terms
}
