// Package feedback turns a compare report into learner-facing advice: a
// summary, short and long guidance, and minimal-pair drills.
//
// The synthesizer is rule-based by default: edit operations are grouped by
// the most-substituted reference phone, the top groups become advice, and a
// precomputed drill table keyed by (reference phone, produced phone)
// supplies the exercises. When an LLM plugin is configured the synthesizer
// instead asks it for a JSON-shaped response built from the same report;
// a malformed reply falls back to the rule-based output with a warning.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pronunciapa/pronunciapa/pkg/phone"
	"github.com/pronunciapa/pronunciapa/pkg/plugin"
	"github.com/pronunciapa/pronunciapa/pkg/types"
)

// maxDrillGroups is how many substitution groups receive a drill.
const maxDrillGroups = 3

// Synthesizer produces feedback from compare reports. Safe for concurrent
// use; the LLM is optional.
type Synthesizer struct {
	llm plugin.LLM
}

// New creates a Synthesizer. Pass nil to disable LLM delegation.
func New(llm plugin.LLM) *Synthesizer {
	return &Synthesizer{llm: llm}
}

// Synthesize builds feedback for report at the requested level.
func (s *Synthesizer) Synthesize(ctx context.Context, report types.CompareReport, level types.FeedbackLevel) types.Feedback {
	ruleBased := s.ruleBased(report, level)
	if s.llm == nil {
		return ruleBased
	}

	generated, err := s.llm.Generate(ctx, buildPrompt(report, level))
	if err != nil {
		slog.Warn("feedback: LLM generation failed, using rule-based output", "err", err)
		ruleBased.Warnings = append(ruleBased.Warnings, "llm feedback unavailable")
		return ruleBased
	}

	var fb types.Feedback
	if err := json.Unmarshal([]byte(extractJSON(generated)), &fb); err != nil || fb.Summary == "" {
		slog.Warn("feedback: malformed LLM response, using rule-based output", "err", err)
		ruleBased.Warnings = append(ruleBased.Warnings, "malformed llm feedback")
		return ruleBased
	}
	return fb
}

// subGroup aggregates the substitutions against one reference phone.
type subGroup struct {
	ref   types.Token
	count int
	// hyp is the most frequent produced phone for this reference.
	hyp     types.Token
	hypFreq map[types.Token]int
}

// ruleBased is the deterministic synthesis path.
func (s *Synthesizer) ruleBased(report types.CompareReport, level types.FeedbackLevel) types.Feedback {
	if len(report.Ops) == 0 || report.PER == 0 {
		return types.Feedback{
			Summary:     fmt.Sprintf("Great job — every phone matched (score %.0f).", report.Score),
			AdviceShort: "Keep practicing to maintain consistency.",
			AdviceLong:  "Your pronunciation matched the reference exactly. Try longer phrases or a faster speaking pace to keep improving.",
		}
	}

	groups := groupSubstitutions(report.Ops)
	drills := make([]types.Drill, 0, maxDrillGroups)
	var problems []string
	for i, g := range groups {
		if i >= maxDrillGroups {
			break
		}
		problems = append(problems, describeGroup(g))
		drills = append(drills, drillFor(g.ref, g.hyp))
	}

	dels, inss := countIndels(report.Ops)
	if len(problems) == 0 {
		if dels > inss {
			problems = append(problems, fmt.Sprintf("%d expected phones were not heard", dels))
		} else if inss > 0 {
			problems = append(problems, fmt.Sprintf("%d extra phones were produced", inss))
		}
	}

	fb := types.Feedback{
		Summary:     fmt.Sprintf("Score %.0f — main issue: %s.", report.Score, strings.Join(problems, "; ")),
		AdviceShort: shortAdvice(groups, dels, inss),
		Drills:      drills,
	}
	if level == types.FeedbackPrecise {
		fb.AdviceLong = longAdvice(groups, report)
	} else {
		fb.AdviceLong = fb.AdviceShort
		if len(fb.Drills) > 1 {
			fb.Drills = fb.Drills[:1]
		}
	}
	return fb
}

// groupSubstitutions buckets sub ops by reference phone, ordered by
// descending frequency (ties by token for determinism).
func groupSubstitutions(ops []types.EditOp) []subGroup {
	byRef := make(map[types.Token]*subGroup)
	for _, op := range ops {
		if op.Op != types.EditSub {
			continue
		}
		g, ok := byRef[op.Ref]
		if !ok {
			g = &subGroup{ref: op.Ref, hypFreq: make(map[types.Token]int)}
			byRef[op.Ref] = g
		}
		g.count++
		g.hypFreq[op.Hyp]++
	}

	groups := make([]subGroup, 0, len(byRef))
	for _, g := range byRef {
		for h, n := range g.hypFreq {
			if n > g.hypFreq[g.hyp] || (n == g.hypFreq[g.hyp] && h < g.hyp) || g.hyp == "" {
				g.hyp = h
			}
		}
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].count != groups[j].count {
			return groups[i].count > groups[j].count
		}
		return groups[i].ref < groups[j].ref
	})
	return groups
}

func countIndels(ops []types.EditOp) (dels, inss int) {
	for _, op := range ops {
		switch op.Op {
		case types.EditDel:
			dels++
		case types.EditIns:
			inss++
		}
	}
	return dels, inss
}

func describeGroup(g subGroup) string {
	return fmt.Sprintf("/%s/ pronounced as /%s/ (%d×)", g.ref, g.hyp, g.count)
}

func shortAdvice(groups []subGroup, dels, inss int) string {
	if len(groups) > 0 {
		return fmt.Sprintf("Focus on the /%s/ sound — you tend to produce /%s/ instead.", groups[0].ref, groups[0].hyp)
	}
	if dels > 0 {
		return "Some phones were dropped. Slow down and articulate every sound."
	}
	if inss > 0 {
		return "Extra sounds crept in. Keep the syllables tight and avoid epenthetic vowels."
	}
	return "Minor timing differences only."
}

func longAdvice(groups []subGroup, report types.CompareReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Phone error rate %.2f over %d reference phones.", report.PER, len(report.RefTokens))
	for _, g := range groups {
		sb.WriteString(" ")
		sb.WriteString(articulationHint(g.ref, g.hyp))
	}
	return sb.String()
}

// articulationHint explains the articulatory difference behind one
// substitution using the feature table.
func articulationHint(ref, hyp types.Token) string {
	rf, rok := phone.Lookup(ref)
	hf, hok := phone.Lookup(hyp)
	if !rok || !hok {
		return fmt.Sprintf("Practice /%s/ in isolation, then in syllables.", ref)
	}
	switch {
	case rf.IsVowel() && hf.IsVowel():
		if rf.Height != hf.Height {
			return fmt.Sprintf("For /%s/, adjust tongue height: aim %s rather than %s.", ref, rf.Height, hf.Height)
		}
		if rf.Backness != hf.Backness {
			return fmt.Sprintf("For /%s/, shift the tongue %s in the mouth.", ref, rf.Backness)
		}
		return fmt.Sprintf("For /%s/, check lip rounding and vowel length.", ref)
	case !rf.IsVowel() && !hf.IsVowel():
		if rf.Voiced != hf.Voiced {
			if rf.Voiced {
				return fmt.Sprintf("/%s/ needs vocal-cord vibration — it is the voiced counterpart of what you produced.", ref)
			}
			return fmt.Sprintf("/%s/ is voiceless — release it without vocal-cord vibration.", ref)
		}
		if rf.Place != hf.Place {
			return fmt.Sprintf("Move the articulation of /%s/ to a %s position.", ref, rf.Place)
		}
		return fmt.Sprintf("For /%s/, change the manner: aim for a %s.", ref, rf.Manner)
	default:
		return fmt.Sprintf("/%s/ and /%s/ belong to different sound classes — listen to native examples of /%s/ first.", ref, hyp, ref)
	}
}

// buildPrompt renders the report into the structured LLM request.
func buildPrompt(report types.CompareReport, level types.FeedbackLevel) string {
	var sb strings.Builder
	sb.WriteString("You are a pronunciation coach. Given this phonetic comparison, respond ONLY with a JSON object ")
	sb.WriteString(`shaped as {"summary": string, "advice_short": string, "advice_long": string, "drills": [{"type": string, "text": string}]}.`)
	fmt.Fprintf(&sb, "\nDetail level: %s.\n", level)
	fmt.Fprintf(&sb, "Reference: %s\nProduced: %s\nScore: %.1f\nErrors:\n", report.RefTokens.Joined(), report.HypTokens.Joined(), report.Score)
	for _, op := range report.Ops {
		switch op.Op {
		case types.EditSub:
			fmt.Fprintf(&sb, "- substituted /%s/ with /%s/\n", op.Ref, op.Hyp)
		case types.EditDel:
			fmt.Fprintf(&sb, "- dropped /%s/\n", op.Ref)
		case types.EditIns:
			fmt.Fprintf(&sb, "- inserted /%s/\n", op.Hyp)
		}
	}
	return sb.String()
}

// extractJSON trims everything outside the outermost braces so fenced or
// chatty replies still parse.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
