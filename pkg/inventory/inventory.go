// Package inventory holds per-language phonetic resources — the canonical
// symbol set, alias and collapse maps, and derive rules — and the normalizer
// that canonicalizes raw token sequences against them.
//
// Normalization is deterministic: alias and collapse maps are applied to a
// fixed point with longest-key-first matching, and derive rules fire in
// declaration order. Cyclic alias or collapse graphs are rejected at load
// time and guarded again during normalization.
package inventory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pronunciapa/pronunciapa/pkg/phone"
	"github.com/pronunciapa/pronunciapa/pkg/types"
)

var (
	// ErrAliasCycle is returned when the alias map keeps rewriting past the
	// pass cap, indicating a cycle the loader failed to catch.
	ErrAliasCycle = errors.New("inventory: alias map contains a cycle")

	// ErrCollapseCycle is the collapse-map equivalent of [ErrAliasCycle].
	ErrCollapseCycle = errors.New("inventory: collapse map contains a cycle")
)

// mappingPassCap bounds alias/collapse fixed-point iteration. A well-formed
// acyclic map converges in at most its longest chain length.
const mappingPassCap = 16

// derivePassCap bounds derive-rule passes to reject runaway rule sets.
const derivePassCap = 8

// Mapping rewrites one or more consecutive tokens into zero or more tokens.
// From and To are space-separated token lists; an empty To deletes the
// matched tokens.
type Mapping struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// DeriveRule is a context-sensitive rewrite applied at the phonetic
// evaluation level. Left and Right constrain the neighboring tokens:
// the empty string matches anything, "#" matches the sequence boundary,
// "V" matches any vowel, "C" matches any consonant, and anything else
// matches that literal token.
type DeriveRule struct {
	Left  string `yaml:"left"`
	Right string `yaml:"right"`
	From  string `yaml:"from"`
	To    string `yaml:"to"`
}

// Inventory is the per-language resource set. Instances are immutable after
// loading and safe for concurrent use.
type Inventory struct {
	// LangID identifies the language pack ("es", "en").
	LangID string

	// Canonical is the set of tokens the language considers well-formed.
	Canonical map[types.Token]struct{}

	// Aliases map ambiguous recognizer output to canonical form, in
	// declaration order. Keys are disjoint from Canonical.
	Aliases []Mapping

	// Collapse maps allophones to phonemes, in declaration order. Applied
	// only at the phonemic evaluation level.
	Collapse []Mapping

	// Derive rewrites phonemes into contextual allophones, in declaration
	// order. Applied only at the phonetic evaluation level.
	Derive []DeriveRule

	// Meta carries free-form pack metadata (display name, source).
	Meta map[string]string
}

// IsCanonical reports whether token belongs to the language's symbol set.
func (inv *Inventory) IsCanonical(token types.Token) bool {
	_, ok := inv.Canonical[token]
	return ok
}

// Normalize canonicalizes raw tokens against inv at the given evaluation
// level. Unknown tokens pass through unchanged with a warning. The input is
// never mutated.
//
// ModePhonetic callers that must suppress collapse regardless of level (the
// narrow compare mode) should pass [types.LevelPhonetic].
func Normalize(tokens types.TokenSequence, inv *Inventory, level types.EvaluationLevel) (types.TokenSequence, []string, error) {
	// Re-normalize defensively: providers are supposed to emit NFC tokens
	// but the invariant is enforced here, where it matters.
	seq := types.NewTokenSequence(tokenStrings(tokens))

	seq, err := applyMappings(seq, inv.Aliases, ErrAliasCycle)
	if err != nil {
		return nil, nil, err
	}

	switch level {
	case types.LevelPhonemic:
		seq, err = applyMappings(seq, inv.Collapse, ErrCollapseCycle)
		if err != nil {
			return nil, nil, err
		}
	case types.LevelPhonetic:
		seq = applyDerive(seq, inv.Derive)
	}

	var warnings []string
	for _, t := range seq {
		if !inv.IsCanonical(t) {
			warnings = append(warnings, fmt.Sprintf("unknown token %q for lang %s", t, inv.LangID))
		}
	}
	return seq, warnings, nil
}

func tokenStrings(seq types.TokenSequence) []string {
	out := make([]string, len(seq))
	for i, t := range seq {
		out[i] = string(t)
	}
	return out
}

// applyMappings rewrites seq with the given mappings until a fixed point.
// At each position the longest matching From wins; on equal length the
// earliest-declared mapping wins. Exceeding the pass cap returns cycleErr.
func applyMappings(seq types.TokenSequence, mappings []Mapping, cycleErr error) (types.TokenSequence, error) {
	if len(mappings) == 0 {
		return seq, nil
	}
	for pass := 0; pass < mappingPassCap; pass++ {
		next, changed := applyMappingPass(seq, mappings)
		if !changed {
			return next, nil
		}
		seq = next
	}
	return nil, cycleErr
}

func applyMappingPass(seq types.TokenSequence, mappings []Mapping) (types.TokenSequence, bool) {
	out := make(types.TokenSequence, 0, len(seq))
	changed := false
	for i := 0; i < len(seq); {
		m, n := matchMapping(seq[i:], mappings)
		if m == nil {
			out = append(out, seq[i])
			i++
			continue
		}
		out = append(out, types.NewTokenSequence(strings.Fields(m.To))...)
		i += n
		changed = true
	}
	return out, changed
}

// matchMapping returns the winning mapping at the head of seq and the number
// of tokens its From consumes, or (nil, 0) when nothing matches.
func matchMapping(seq types.TokenSequence, mappings []Mapping) (*Mapping, int) {
	var best *Mapping
	bestLen := 0
	for i := range mappings {
		if mappings[i].From == mappings[i].To {
			continue
		}
		from := types.NewTokenSequence(strings.Fields(mappings[i].From))
		if len(from) == 0 || len(from) > len(seq) {
			continue
		}
		if !seq[:len(from)].Equal(from) {
			continue
		}
		// Longer keys win; ties resolve to declaration order, which the
		// range order already guarantees.
		if len(from) > bestLen {
			best = &mappings[i]
			bestLen = len(from)
		}
	}
	return best, bestLen
}

// applyDerive runs derive passes until no rule fires or the pass cap is
// reached. Within a pass the scan moves left to right, each position uses
// the first matching rule, and replacement output is frozen for the rest of
// the pass so a rule cannot re-fire inside its own output.
func applyDerive(seq types.TokenSequence, rules []DeriveRule) types.TokenSequence {
	if len(rules) == 0 {
		return seq
	}
	for pass := 0; pass < derivePassCap; pass++ {
		next, changed := applyDerivePass(seq, rules)
		if !changed {
			return next
		}
		seq = next
	}
	return seq
}

func applyDerivePass(seq types.TokenSequence, rules []DeriveRule) (types.TokenSequence, bool) {
	out := make(types.TokenSequence, 0, len(seq))
	frozen := make([]bool, 0, len(seq))
	changed := false

	appendFrozen := func(tokens types.TokenSequence, f bool) {
		for _, t := range tokens {
			out = append(out, t)
			frozen = append(frozen, f)
		}
	}

	for i := 0; i < len(seq); i++ {
		rule := matchDerive(seq, i, out, frozen, rules)
		if rule == nil {
			appendFrozen(types.TokenSequence{seq[i]}, false)
			continue
		}
		appendFrozen(types.NewTokenSequence(strings.Fields(rule.To)), true)
		changed = true
	}
	return out, changed
}

// matchDerive finds the first rule whose From matches seq[i] and whose
// contexts match the already-rewritten left neighbor and the pending right
// neighbor. Frozen left neighbors (produced by a rule earlier in this pass)
// block matching so replacements are not chained within one pass.
func matchDerive(seq types.TokenSequence, i int, out types.TokenSequence, frozen []bool, rules []DeriveRule) *DeriveRule {
	for r := range rules {
		rule := &rules[r]
		if types.NewToken(rule.From) != seq[i] {
			continue
		}
		if len(frozen) > 0 && frozen[len(frozen)-1] && rule.Left != "" && rule.Left != "#" {
			continue
		}
		var left types.Token
		hasLeft := len(out) > 0
		if hasLeft {
			left = out[len(out)-1]
		}
		var right types.Token
		hasRight := i+1 < len(seq)
		if hasRight {
			right = seq[i+1]
		}
		if contextMatches(rule.Left, left, hasLeft) && contextMatches(rule.Right, right, hasRight) {
			return rule
		}
	}
	return nil
}

// contextMatches evaluates a context pattern against a neighboring token.
// Patterns: "" any, "#" boundary, "V" vowel, "C" consonant, else literal.
func contextMatches(pattern string, token types.Token, present bool) bool {
	switch pattern {
	case "":
		return true
	case "#":
		return !present
	case "V", "C":
		if !present {
			return false
		}
		f, ok := phone.Lookup(token)
		if !ok {
			return false
		}
		if pattern == "V" {
			return f.IsVowel()
		}
		return !f.IsVowel()
	default:
		return present && token == types.NewToken(pattern)
	}
}
