package feedback_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pronunciapa/pronunciapa/internal/feedback"
	"github.com/pronunciapa/pronunciapa/pkg/plugin"
	"github.com/pronunciapa/pronunciapa/pkg/types"
)

func subReport() types.CompareReport {
	return types.CompareReport{
		Ops: []types.EditOp{
			{Op: types.EditEq, Ref: "k", Hyp: "k"},
			{Op: types.EditSub, Ref: "r", Hyp: "ɾ"},
			{Op: types.EditSub, Ref: "r", Hyp: "ɾ"},
			{Op: types.EditSub, Ref: "θ", Hyp: "s"},
			{Op: types.EditDel, Ref: "o"},
		},
		PER:       0.5,
		Score:     50,
		RefTokens: types.NewTokenSequence([]string{"k", "r", "r", "θ", "o"}),
		HypTokens: types.NewTokenSequence([]string{"k", "ɾ", "ɾ", "s"}),
	}
}

func TestSynthesize_RuleBasedGrouping(t *testing.T) {
	t.Parallel()

	s := feedback.New(nil)
	fb := s.Synthesize(context.Background(), subReport(), types.FeedbackPrecise)

	// The r→ɾ confusion is most frequent and must lead the advice.
	if !strings.Contains(fb.AdviceShort, "/r/") {
		t.Errorf("AdviceShort = %q, want mention of /r/", fb.AdviceShort)
	}
	if len(fb.Drills) != 2 {
		t.Fatalf("len(Drills) = %d, want 2 (one per substitution group)", len(fb.Drills))
	}
	if fb.Drills[0].Type != "minimal_pair" {
		t.Errorf("Drills[0].Type = %q, want minimal_pair", fb.Drills[0].Type)
	}
	if !strings.Contains(fb.Drills[0].Text, "perro") {
		t.Errorf("Drills[0].Text = %q, want the r-trill drill", fb.Drills[0].Text)
	}
}

func TestSynthesize_CasualTrimsDrills(t *testing.T) {
	t.Parallel()

	s := feedback.New(nil)
	fb := s.Synthesize(context.Background(), subReport(), types.FeedbackCasual)
	if len(fb.Drills) != 1 {
		t.Errorf("len(Drills) = %d, want 1 at casual level", len(fb.Drills))
	}
}

func TestSynthesize_PerfectScore(t *testing.T) {
	t.Parallel()

	report := types.CompareReport{
		Ops:   []types.EditOp{{Op: types.EditEq, Ref: "a", Hyp: "a"}},
		Score: 100,
	}
	s := feedback.New(nil)
	fb := s.Synthesize(context.Background(), report, types.FeedbackCasual)
	if len(fb.Drills) != 0 {
		t.Errorf("Drills = %v, want none for a perfect score", fb.Drills)
	}
	if fb.Summary == "" {
		t.Error("Summary empty, want praise")
	}
}

// fixedLLM returns a canned response or error.
type fixedLLM struct {
	response string
	err      error
}

func (f *fixedLLM) Info() plugin.Info {
	return plugin.Info{Name: "fixed", Version: "0", Category: plugin.CategoryLLM}
}

func (f *fixedLLM) Generate(context.Context, string) (string, error) {
	return f.response, f.err
}

func TestSynthesize_LLMResponseUsed(t *testing.T) {
	t.Parallel()

	llm := &fixedLLM{response: "```json\n{\"summary\": \"s\", \"advice_short\": \"a\", \"advice_long\": \"l\", \"drills\": [{\"type\": \"minimal_pair\", \"text\": \"x\"}]}\n```"}
	s := feedback.New(llm)
	fb := s.Synthesize(context.Background(), subReport(), types.FeedbackPrecise)
	if fb.Summary != "s" || len(fb.Drills) != 1 {
		t.Errorf("LLM feedback not used: %+v", fb)
	}
}

func TestSynthesize_MalformedLLMFallsBack(t *testing.T) {
	t.Parallel()

	s := feedback.New(&fixedLLM{response: "sorry, I cannot help with that"})
	fb := s.Synthesize(context.Background(), subReport(), types.FeedbackPrecise)
	if !strings.Contains(strings.Join(fb.Warnings, " "), "malformed") {
		t.Errorf("Warnings = %v, want malformed-llm warning", fb.Warnings)
	}
	if len(fb.Drills) == 0 {
		t.Error("Drills empty, want rule-based fallback drills")
	}
}

func TestSynthesize_LLMErrorFallsBack(t *testing.T) {
	t.Parallel()

	s := feedback.New(&fixedLLM{err: errors.New("down")})
	fb := s.Synthesize(context.Background(), subReport(), types.FeedbackPrecise)
	if !strings.Contains(strings.Join(fb.Warnings, " "), "unavailable") {
		t.Errorf("Warnings = %v, want llm-unavailable warning", fb.Warnings)
	}
}
