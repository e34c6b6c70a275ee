// Package analyzer turns raw text into index terms. Text is split on
// boundaries that are neither letters nor digits, lower-cased, filtered
// against a stop-word set, and reduced with a snowball stemmer. The same
// Analyzer value must serve ingestion and querying of an index; snapshots
// record its Settings so readers can rebuild it.
package analyzer

import (
	"fmt"
	"iter"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kljensen/snowball"

	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/config"
)

// LanguageNone disables stemming.
const LanguageNone = "none"

var stemLanguages = []string{"english", "french", "hungarian", "norwegian", "russian", "spanish", "swedish"}

// Analyzer is immutable after New and safe for concurrent use.
type Analyzer struct {
	settings  config.AnalyzerConfig
	stopWords map[string]struct{}
	stem      func(string) string
}

// New builds an Analyzer from cfg. A nil cfg.StopWords selects the built-in
// list for the language, if there is one.
func New(cfg config.AnalyzerConfig) (*Analyzer, error) {
	lang := strings.ToLower(strings.TrimSpace(cfg.Language))
	if lang == "" {
		lang = LanguageNone
	}
	if lang != LanguageNone && !slices.Contains(stemLanguages, lang) {
		return nil, fmt.Errorf("unsupported analyzer language %q", cfg.Language)
	}
	if cfg.MinTokenLength < 1 {
		cfg.MinTokenLength = 1
	}

	words := cfg.StopWords
	if words == nil {
		words = defaultStopWords[lang]
	}
	stop := make(map[string]struct{}, len(words))
	normalized := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, dup := stop[w]; dup {
			continue
		}
		stop[w] = struct{}{}
		normalized = append(normalized, w)
	}
	slices.Sort(normalized)

	a := &Analyzer{
		settings: config.AnalyzerConfig{
			Language:       lang,
			StopWords:      normalized,
			MinTokenLength: cfg.MinTokenLength,
		},
		stopWords: stop,
		stem:      func(w string) string { return w },
	}
	if lang != LanguageNone {
		a.stem = func(w string) string {
			stemmed, err := snowball.Stem(w, lang, true)
			if err != nil || stemmed == "" {
				return w
			}
			return stemmed
		}
	}
	return a, nil
}

// Settings returns the effective configuration with the stop-word list
// resolved, sorted, and non-nil, so it can be persisted and fed back to New.
func (a *Analyzer) Settings() config.AnalyzerConfig {
	s := a.settings
	s.StopWords = slices.Clone(a.settings.StopWords)
	if s.StopWords == nil {
		s.StopWords = []string{}
	}
	return s
}

// Tokens returns a lazy sequence of the terms in text. Each range over the
// sequence re-scans text from the beginning.
func (a *Analyzer) Tokens(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for word := range words(text) {
			term, ok := a.normalize(word)
			if !ok {
				continue
			}
			if !yield(term) {
				return
			}
		}
	}
}

// Terms collects Tokens(text) into a slice.
func (a *Analyzer) Terms(text string) []string {
	terms := make([]string, 0, len(text)/6)
	for t := range a.Tokens(text) {
		terms = append(terms, t)
	}
	return terms
}

func (a *Analyzer) normalize(word string) (string, bool) {
	word = strings.ToLower(word)
	if utf8.RuneCountInString(word) < a.settings.MinTokenLength {
		return "", false
	}
	if _, isStop := a.stopWords[word]; isStop {
		return "", false
	}
	term := a.stem(word)
	if term == "" {
		return "", false
	}
	return term, true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// words yields maximal runs of letters and digits without allocating the
// whole split up front.
func words(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		start := -1
		for i, r := range text {
			if isWordRune(r) {
				if start < 0 {
					start = i
				}
				continue
			}
			if start >= 0 {
				if !yield(text[start:i]) {
					return
				}
				start = -1
			}
		}
		if start >= 0 {
			yield(text[start:])
		}
	}
}
