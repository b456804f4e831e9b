package relay

import "strings"

// Matcher reports whether a transcription contains any wake phrase,
// ignoring case.
type Matcher struct {
	phrases []string
}

func NewMatcher(phrases []string) *Matcher {
	m := &Matcher{}
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			m.phrases = append(m.phrases, p)
		}
	}
	return m
}

func (m *Matcher) Match(text string) bool {
	text = strings.ToLower(text)
	for _, p := range m.phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
