// Package grapheme implements the fallback TextRef provider: a rule-based
// grapheme-to-phoneme mapping with a small exception dictionary per
// language.
//
// The algorithm proceeds in two stages per word:
//
//  1. Exception lookup: the word is checked against the language's
//     irregular-word dictionary. Near-misses (typos, missing accents) are
//     tolerated via Jaro-Winkler similarity on the dictionary keys.
//
//  2. Rule scan: remaining words run through an ordered rule list with
//     longest-grapheme-first matching and optional right-context
//     conditions (e.g. Spanish c → θ before e/i, k elsewhere).
//
// The output is broad-transcription IPA suitable for phonemic comparison.
// Dedicated G2P backends should be preferred where available; this provider
// is the documented strict_mode=false substitute.
package grapheme

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/pronunciapa/pronunciapa/pkg/plugin"
	"github.com/pronunciapa/pronunciapa/pkg/types"
)

// exceptionThreshold is the minimum Jaro-Winkler score for a dictionary key
// to be accepted as a near-miss of the input word.
const exceptionThreshold = 0.93

// TextRef is the rule-based provider. Read-only after construction; safe
// for concurrent use.
type TextRef struct{}

// Compile-time assertion that TextRef satisfies plugin.TextRef.
var _ plugin.TextRef = (*TextRef)(nil)

// New returns the grapheme TextRef provider.
func New() *TextRef {
	return &TextRef{}
}

// Info implements plugin.TextRef.
func (t *TextRef) Info() plugin.Info {
	return plugin.Info{Name: "grapheme", Version: "1.0.0", Category: plugin.CategoryTextRef}
}

// Languages implements plugin.TextRef.
func (t *TextRef) Languages() []string {
	langs := make([]string, 0, len(languages))
	for lang := range languages {
		langs = append(langs, lang)
	}
	return langs
}

// ToIPA implements plugin.TextRef. Words are converted independently; the
// output concatenates their token sequences in order.
func (t *TextRef) ToIPA(ctx context.Context, text, lang string) (types.TokenSequence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rules, ok := languages[lang]
	if !ok {
		return nil, fmt.Errorf("grapheme: unsupported language %q", lang)
	}

	var out types.TokenSequence
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?¿¡\"'()-")
		if word == "" {
			continue
		}
		out = append(out, convertWord(word, rules)...)
	}
	return out, nil
}

// convertWord maps one lowercase word to tokens: exception dictionary
// first, rule scan otherwise.
func convertWord(word string, lang *langRules) types.TokenSequence {
	if ipa, ok := lang.lookupException(word); ok {
		return types.NewTokenSequence(strings.Fields(ipa))
	}

	var out types.TokenSequence
	for i := 0; i < len(word); {
		rule, n := lang.match(word, i)
		if rule == nil {
			// No rule for this character: skip it silently (covers
			// apostrophes and foreign letters).
			i++
			continue
		}
		out = append(out, types.NewTokenSequence(strings.Fields(rule.ipaFor(word, i+n)))...)
		i += n
	}
	return out
}

// rule maps one grapheme cluster to IPA, optionally switching on the next
// character. IPA strings are space-separated token lists; empty means
// silent.
type rule struct {
	seq string

	// ipa is the default output.
	ipa string

	// beforeSet, when non-empty, selects beforeIPA if the character after
	// the match is in the set, and ipa otherwise.
	beforeSet string
	beforeIPA string

	// atStart, when set with startIPA, overrides ipa at word-initial
	// position.
	atStart  bool
	startIPA string
}

// ipaFor resolves the rule output given the position just past the match.
func (r *rule) ipaFor(word string, next int) string {
	if r.atStart && next == len(r.seq) {
		return r.startIPA
	}
	if r.beforeSet != "" && next < len(word) {
		nextRune, _ := utf8.DecodeRuneInString(word[next:])
		if strings.ContainsRune(r.beforeSet, nextRune) {
			return r.beforeIPA
		}
	}
	return r.ipa
}

// langRules bundles one language's ordered rules and exception dictionary.
type langRules struct {
	rules      []rule
	exceptions map[string]string
}

// match finds the winning rule at position i: the longest seq that matches,
// earliest-declared on ties.
func (l *langRules) match(word string, i int) (*rule, int) {
	var best *rule
	bestLen := 0
	for r := range l.rules {
		seq := l.rules[r].seq
		if len(seq) <= bestLen || i+len(seq) > len(word) {
			continue
		}
		if word[i:i+len(seq)] == seq {
			best = &l.rules[r]
			bestLen = len(seq)
		}
	}
	return best, bestLen
}

// lookupException checks the irregular-word dictionary, tolerating near
// misses via Jaro-Winkler ranking over the keys.
func (l *langRules) lookupException(word string) (string, bool) {
	if ipa, ok := l.exceptions[word]; ok {
		return ipa, true
	}
	bestScore := 0.0
	bestIPA := ""
	for key, ipa := range l.exceptions {
		if s := matchr.JaroWinkler(word, key, false); s > bestScore {
			bestScore = s
			bestIPA = ipa
		}
	}
	if bestScore >= exceptionThreshold {
		return bestIPA, true
	}
	return "", false
}
