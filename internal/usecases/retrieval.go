package usecases

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"taiyari/internal/entities"
)

// Query tokens of this many characters or fewer are ignored.
const minTokenChars = 3

var sentenceTerminators = regexp.MustCompile(`[.!?]+`)

// Retrieval is either no context or a context text. The zero value is NoContext.
type Retrieval struct {
	text string
	ok   bool
}

func NoContext() Retrieval { return Retrieval{} }

func WithContext(text string) Retrieval { return Retrieval{text: text, ok: true} }

// Context returns the grounding text and whether there is any.
func (r Retrieval) Context() (string, bool) { return r.text, r.ok }

func (r Retrieval) HasContext() bool { return r.ok }

// Retrieve gates the tenant knowledge on lexical overlap with query. When any
// sentence segment contains any query token the whole knowledge text is
// returned; the segment score only decides whether there is a match.
func Retrieve(query string, k *entities.Knowledge) Retrieval {
	if k == nil || strings.TrimSpace(k.Content) == "" {
		return NoContext()
	}

	tokens := queryTokens(query)
	if len(tokens) == 0 {
		return NoContext()
	}

	best := 0
	for _, segment := range sentenceTerminators.Split(k.Content, -1) {
		if score := segmentScore(strings.ToLower(segment), tokens); score > best {
			best = score
		}
	}
	if best == 0 {
		return NoContext()
	}
	return WithContext(k.Content)
}

func queryTokens(query string) []string {
	var tokens []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		if utf8.RuneCountInString(f) > minTokenChars {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func segmentScore(segment string, tokens []string) int {
	score := 0
	for _, tok := range tokens {
		if strings.Contains(segment, tok) {
			score++
		}
	}
	return score
}
