package compare_test

import (
	"testing"

	"github.com/pronunciapa/pronunciapa/pkg/compare"
	"github.com/pronunciapa/pronunciapa/pkg/types"
)

func seq(tokens ...string) types.TokenSequence {
	return types.NewTokenSequence(tokens)
}

func TestCompare_Identical(t *testing.T) {
	t.Parallel()

	ref := seq("o", "l", "a")
	report := compare.Compare(ref, ref, compare.ModeWeights(types.ModeObjective))

	if report.PER != 0 {
		t.Errorf("PER = %f, want 0", report.PER)
	}
	if report.Score != 100 {
		t.Errorf("Score = %f, want 100", report.Score)
	}
	for i, op := range report.Ops {
		if op.Op != types.EditEq {
			t.Errorf("ops[%d] = %+v, want eq", i, op)
		}
	}
	if len(report.Ops) != 3 {
		t.Errorf("len(ops) = %d, want 3", len(report.Ops))
	}
}

func TestCompare_SingleSubstitution(t *testing.T) {
	t.Parallel()

	ref := seq("k", "a", "s", "a")
	hyp := seq("k", "a", "s", "o")
	report := compare.Compare(ref, hyp, compare.LevenshteinWeights())

	if report.PER != 0.25 {
		t.Errorf("PER = %f, want 0.25", report.PER)
	}
	if report.Score != 75 {
		t.Errorf("Score = %f, want 75", report.Score)
	}
	last := report.Ops[len(report.Ops)-1]
	if last.Op != types.EditSub || last.Ref != "a" || last.Hyp != "o" {
		t.Errorf("last op = %+v, want sub a→o", last)
	}
	for i := 0; i < len(report.Ops)-1; i++ {
		if report.Ops[i].Op != types.EditEq {
			t.Errorf("ops[%d] = %+v, want eq", i, report.Ops[i])
		}
	}
}

func TestCompare_InsertionAtEnd(t *testing.T) {
	t.Parallel()

	ref := seq("p", "a", "n")
	hyp := seq("p", "a", "n", "e")
	report := compare.Compare(ref, hyp, compare.LevenshteinWeights())

	if report.PER != 0.25 {
		t.Errorf("PER = %f, want 0.25", report.PER)
	}
	last := report.Ops[len(report.Ops)-1]
	if last.Op != types.EditIns || last.Ref != "" || last.Hyp != "e" {
		t.Errorf("last op = %+v, want ins of e", last)
	}
}

func TestCompare_EmptyHypothesis(t *testing.T) {
	t.Parallel()

	ref := seq("h", "o", "l", "a")
	report := compare.Compare(ref, nil, compare.ModeWeights(types.ModeObjective))

	if report.PER != 1 {
		t.Errorf("PER = %f, want 1", report.PER)
	}
	if report.Score != 0 {
		t.Errorf("Score = %f, want 0", report.Score)
	}
	if len(report.Ops) != 4 {
		t.Fatalf("len(ops) = %d, want 4", len(report.Ops))
	}
	for i, op := range report.Ops {
		if op.Op != types.EditDel || op.Hyp != "" {
			t.Errorf("ops[%d] = %+v, want del", i, op)
		}
	}
}

func TestCompare_EmptyReference(t *testing.T) {
	t.Parallel()

	hyp := seq("o", "la")
	report := compare.Compare(nil, hyp, compare.ModeWeights(types.ModeObjective))

	if report.PER != 1 {
		t.Errorf("PER = %f, want 1", report.PER)
	}
	for i, op := range report.Ops {
		if op.Op != types.EditIns {
			t.Errorf("ops[%d] = %+v, want ins", i, op)
		}
	}
}

func TestCompare_BothEmpty(t *testing.T) {
	t.Parallel()

	report := compare.Compare(nil, nil, compare.ModeWeights(types.ModeObjective))
	if report.PER != 0 || len(report.Ops) != 0 {
		t.Errorf("empty compare = per %f, %d ops; want 0, 0", report.PER, len(report.Ops))
	}
	if report.Score != 100 {
		t.Errorf("Score = %f, want 100", report.Score)
	}
}

func TestCompare_Symmetry(t *testing.T) {
	t.Parallel()

	ref := seq("p", "a", "n", "e", "s")
	hyp := seq("p", "o", "n", "s")
	w := compare.ModeWeights(types.ModeObjective)

	fwd := compare.Compare(ref, hyp, w)
	rev := compare.Compare(hyp, ref, w)

	if fwd.PER != rev.PER {
		t.Errorf("PER asymmetric: %f vs %f", fwd.PER, rev.PER)
	}
	if len(fwd.Ops) != len(rev.Ops) {
		t.Fatalf("op counts differ: %d vs %d", len(fwd.Ops), len(rev.Ops))
	}
	for i := range fwd.Ops {
		got := rev.Ops[i]
		want := mirror(fwd.Ops[i])
		if got != want {
			t.Errorf("ops[%d]: swapped run = %+v, want mirror %+v", i, got, want)
		}
	}
}

// mirror swaps ins↔del and ref↔hyp, the expected shape of a swapped-input
// alignment.
func mirror(op types.EditOp) types.EditOp {
	out := types.EditOp{Op: op.Op, Ref: op.Hyp, Hyp: op.Ref}
	switch op.Op {
	case types.EditIns:
		out.Op = types.EditDel
	case types.EditDel:
		out.Op = types.EditIns
	}
	return out
}

func TestCompare_OpsReconstructInputs(t *testing.T) {
	t.Parallel()

	ref := seq("k", "a", "s", "a", "s")
	hyp := seq("k", "o", "s", "e")
	report := compare.Compare(ref, hyp, compare.ModeWeights(types.ModeObjective))

	var gotRef, gotHyp types.TokenSequence
	for _, op := range report.Ops {
		if op.Ref != "" {
			gotRef = append(gotRef, op.Ref)
		}
		if op.Hyp != "" {
			gotHyp = append(gotHyp, op.Hyp)
		}
	}
	if !gotRef.Equal(ref) {
		t.Errorf("ref reconstruction = %v, want %v", gotRef.Strings(), ref.Strings())
	}
	if !gotHyp.Equal(hyp) {
		t.Errorf("hyp reconstruction = %v, want %v", gotHyp.Strings(), hyp.Strings())
	}
}

func TestCompare_WeightedSubCheaperThanIndel(t *testing.T) {
	t.Parallel()

	// A near substitution (voicing only) must be preferred over a del+ins
	// pair under the objective weights.
	ref := seq("p", "a")
	hyp := seq("b", "a")
	report := compare.Compare(ref, hyp, compare.ModeWeights(types.ModeObjective))

	if len(report.Ops) != 2 {
		t.Fatalf("len(ops) = %d, want 2", len(report.Ops))
	}
	if report.Ops[0].Op != types.EditSub {
		t.Errorf("ops[0] = %+v, want sub p→b", report.Ops[0])
	}
	if report.PER >= 0.25 {
		t.Errorf("PER = %f, want < 0.25 for a voicing-only substitution", report.PER)
	}
}

func TestCompare_CasualIgnoresDiacritics(t *testing.T) {
	t.Parallel()

	ref := seq("a", "l")
	hyp := seq("aː", "l")

	casual := compare.Compare(ref, hyp, compare.ModeWeights(types.ModeCasual))
	if casual.PER != 0 {
		t.Errorf("casual PER = %f, want 0 for length-only difference", casual.PER)
	}

	narrow := compare.Compare(ref, hyp, compare.ModeWeights(types.ModePhonetic))
	objective := compare.Compare(ref, hyp, compare.ModeWeights(types.ModeObjective))
	if !(narrow.PER > objective.PER) {
		t.Errorf("phonetic PER %f should exceed objective PER %f", narrow.PER, objective.PER)
	}
}
