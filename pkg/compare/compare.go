// Package compare implements the weighted phonetic alignment comparator: a
// Needleman–Wunsch dynamic program over reference × hypothesis token
// sequences with substitution costs taken from the articulatory feature
// table.
//
// The comparator is a pure function — no state, safe for concurrent use.
package compare

import (
	"math"

	"github.com/pronunciapa/pronunciapa/pkg/phone"
	"github.com/pronunciapa/pronunciapa/pkg/types"
)

// Weights bundles the feature weights for substitutions with the insertion
// and deletion costs.
type Weights struct {
	Feature phone.Weights
	Ins     float64
	Del     float64

	// SubScale multiplies substitution costs. Zero means 1 (no scaling);
	// configurations use it to re-balance substitutions against indels
	// without redefining the whole feature table.
	SubScale float64

	// Binary makes every substitution cost 1 regardless of articulatory
	// distance, turning PER into the classic Levenshtein phone error rate.
	Binary bool
}

// LevenshteinWeights returns the unweighted profile: every edit costs 1.
// Used where scores must match the plain edit-distance convention.
func LevenshteinWeights() Weights {
	return Weights{Feature: phone.DefaultWeights(), Ins: 1, Del: 1, Binary: true}
}

// ModeWeights returns the weight profile for a compare mode. Unknown modes
// fall back to objective.
func ModeWeights(mode types.CompareMode) Weights {
	switch mode {
	case types.ModeCasual:
		w := phone.DefaultWeights()
		w.Place = 0.25
		w.Manner = 0.20
		w.Voicing = 0.10
		w.Diacritic = 0
		return Weights{Feature: w, Ins: 0.7, Del: 0.7}
	case types.ModePhonetic:
		w := phone.DefaultWeights()
		w.Diacritic = 2
		return Weights{Feature: w, Ins: 1, Del: 1}
	default:
		return Weights{Feature: phone.DefaultWeights(), Ins: 1, Del: 1}
	}
}

// back-pointer directions. Order encodes the tie preference: on equal cost
// the diagonal (eq/sub) wins over deletion, and deletion over insertion,
// biasing alignments toward keeping content rather than inventing
// insertions.
type direction byte

const (
	dirNone direction = iota
	dirDiag
	dirDel
	dirIns
)

// Compare aligns ref against hyp and returns the edit path with its derived
// scores. PER is total cost over max(|ref|, |hyp|) (0 when both are empty);
// Score is (1 - min(PER, 1)) * 100 rounded to two decimals. The caller owns
// mode, evaluation level, and confidence labeling on the returned report.
func Compare(ref, hyp types.TokenSequence, w Weights) types.CompareReport {
	m, n := len(ref), len(hyp)

	cost := make([][]float64, m+1)
	back := make([][]direction, m+1)
	for i := range cost {
		cost[i] = make([]float64, n+1)
		back[i] = make([]direction, n+1)
	}
	for i := 1; i <= m; i++ {
		cost[i][0] = cost[i-1][0] + w.Del
		back[i][0] = dirDel
	}
	for j := 1; j <= n; j++ {
		cost[0][j] = cost[0][j-1] + w.Ins
		back[0][j] = dirIns
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			subCost := phone.DistanceWith(ref[i-1], hyp[j-1], w.Feature)
			if w.Binary && ref[i-1] != hyp[j-1] {
				subCost = 1
			}
			if w.SubScale > 0 {
				subCost *= w.SubScale
			}
			sub := cost[i-1][j-1] + subCost
			del := cost[i-1][j] + w.Del
			ins := cost[i][j-1] + w.Ins

			best, dir := sub, dirDiag
			if del < best {
				best, dir = del, dirDel
			}
			if ins < best {
				best, dir = ins, dirIns
			}
			cost[i][j] = best
			back[i][j] = dir
		}
	}

	ops := traceback(ref, hyp, back)

	per := 0.0
	if longest := max(m, n); longest > 0 {
		per = cost[m][n] / float64(longest)
	}
	score := math.Round((1-math.Min(per, 1))*100*100) / 100

	return types.CompareReport{
		Ops:       ops,
		PER:       per,
		Score:     score,
		RefTokens: ref,
		HypTokens: hyp,
	}
}

// traceback walks the back-pointers from the bottom-right corner and emits
// ops in left-to-right order.
func traceback(ref, hyp types.TokenSequence, back [][]direction) []types.EditOp {
	i, j := len(ref), len(hyp)
	rev := make([]types.EditOp, 0, i+j)
	for i > 0 || j > 0 {
		switch back[i][j] {
		case dirDiag:
			op := types.EditOp{Op: types.EditSub, Ref: ref[i-1], Hyp: hyp[j-1]}
			if ref[i-1] == hyp[j-1] {
				op.Op = types.EditEq
			}
			rev = append(rev, op)
			i--
			j--
		case dirDel:
			rev = append(rev, types.EditOp{Op: types.EditDel, Ref: ref[i-1]})
			i--
		case dirIns:
			rev = append(rev, types.EditOp{Op: types.EditIns, Hyp: hyp[j-1]})
			j--
		default:
			// Unreachable for a well-formed table; bail out rather than spin.
			i, j = 0, 0
		}
	}

	ops := make([]types.EditOp, len(rev))
	for k := range rev {
		ops[k] = rev[len(rev)-1-k]
	}
	return ops
}
