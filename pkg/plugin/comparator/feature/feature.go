// Package feature wraps the built-in articulatory-distance comparator as a
// plugin, making the default scoring model replaceable through the same
// registry as external comparators.
package feature

import (
	"github.com/pronunciapa/pronunciapa/pkg/compare"
	"github.com/pronunciapa/pronunciapa/pkg/plugin"
	"github.com/pronunciapa/pronunciapa/pkg/types"
)

// Comparator is the built-in feature-weighted aligner. Stateless and safe
// for concurrent use.
type Comparator struct{}

// Compile-time assertion that Comparator satisfies plugin.Comparator.
var _ plugin.Comparator = (*Comparator)(nil)

// New returns the built-in comparator.
func New() *Comparator {
	return &Comparator{}
}

// Info implements plugin.Comparator.
func (c *Comparator) Info() plugin.Info {
	return plugin.Info{Name: "feature", Version: "1.0.0", Category: plugin.CategoryComparator}
}

// Compare implements plugin.Comparator.
func (c *Comparator) Compare(ref, hyp types.TokenSequence, w compare.Weights) (types.CompareReport, error) {
	return compare.Compare(ref, hyp, w), nil
}
