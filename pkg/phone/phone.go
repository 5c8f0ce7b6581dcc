// Package phone provides the static articulatory feature table for IPA
// symbols and a feature-weighted distance between phones.
//
// The table is pure reference data: every recognized token maps to exactly
// one [Features] record describing its place, manner, voicing, and (for
// vowels) height, backness, and rounding. Tokens the table does not know
// yield maximum distance to every other token, so unrecognized recognizer
// output degrades scoring gracefully instead of crashing the comparator.
//
// Distance is symmetric, zero only for feature-identical phones, and bounded
// by 1.0. Consonants and vowels use separate weight groups; a comparison
// across the two groups always costs 1.0.
package phone

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/pronunciapa/pronunciapa/pkg/types"
)

// Manner classifies how a consonant's airflow is obstructed; vowels use
// MannerVowel.
type Manner string

const (
	Stop        Manner = "stop"
	Fricative   Manner = "fricative"
	Affricate   Manner = "affricate"
	Nasal       Manner = "nasal"
	Lateral     Manner = "lateral"
	Approximant Manner = "approximant"
	Trill       Manner = "trill"
	Tap         Manner = "tap"
	MannerVowel Manner = "vowel"
)

// Place is the consonant articulation place. Vowels carry PlaceNone.
type Place string

const (
	Bilabial     Place = "bilabial"
	Labiodental  Place = "labiodental"
	Dental       Place = "dental"
	Alveolar     Place = "alveolar"
	Postalveolar Place = "postalveolar"
	Retroflex    Place = "retroflex"
	Palatal      Place = "palatal"
	Velar        Place = "velar"
	Uvular       Place = "uvular"
	Pharyngeal   Place = "pharyngeal"
	Glottal      Place = "glottal"
	PlaceNone    Place = "none"
)

// Height is the vowel tongue height.
type Height string

const (
	High    Height = "high"
	MidHigh Height = "mid-high"
	Mid     Height = "mid"
	MidLow  Height = "mid-low"
	Low     Height = "low"
)

// Backness is the vowel tongue backness.
type Backness string

const (
	Front   Backness = "front"
	Central Backness = "central"
	Back    Backness = "back"
)

// Features is the articulatory description of one phone. The zero value is
// not meaningful; obtain records via [Lookup].
type Features struct {
	Manner   Manner
	Place    Place
	Voiced   bool
	Height   Height
	Backness Backness
	Rounded  bool

	// Nasal marks nasal consonants and nasalized vowels.
	Nasal bool

	// Long is set when the token carries a length mark (ː).
	Long bool

	// Stressed is set when the token carries a primary stress mark (ˈ).
	Stressed bool
}

// IsVowel reports whether f describes a vowel.
func (f Features) IsVowel() bool {
	return f.Manner == MannerVowel
}

// Weights are the per-feature mismatch costs used by [Distance]. Consonant
// and vowel comparisons use their own groups; Diacritic scales the
// length/stress/nasalization terms (0 ignores diacritics entirely, 2 doubles
// their influence for narrow phonetic scoring).
type Weights struct {
	// Consonant group.
	Place    float64
	Manner   float64
	Voicing  float64
	Nasality float64
	Length   float64
	Stress   float64

	// Vowel group.
	Height      float64
	Backness    float64
	Rounding    float64
	VowelLength float64
	VowelStress float64

	// Diacritic multiplies the length, stress, and vowel-nasalization terms.
	Diacritic float64
}

// DefaultWeights returns the objective weight profile.
func DefaultWeights() Weights {
	return Weights{
		Place:    0.35,
		Manner:   0.25,
		Voicing:  0.15,
		Nasality: 0.05,
		Length:   0.05,
		Stress:   0.02,

		Height:      0.35,
		Backness:    0.30,
		Rounding:    0.15,
		VowelLength: 0.10,
		VowelStress: 0.05,

		Diacritic: 1,
	}
}

// Lookup returns the feature record for token. The second return value is
// false for tokens outside the table; such tokens cost 1.0 against anything
// but themselves.
func Lookup(token types.Token) (Features, bool) {
	base, long, stressed, nasalized := splitToken(token)
	f, ok := table[base]
	if !ok {
		return Features{}, false
	}
	f.Long = f.Long || long
	f.Stressed = stressed
	f.Nasal = f.Nasal || nasalized
	return f, true
}

// Base returns token with stress marks, length marks, and diacritics
// removed — the bare phone the feature table keys on. Tokens with no known
// base are returned unchanged.
func Base(token types.Token) types.Token {
	base, _, _, _ := splitToken(token)
	return base
}

// Distance returns the weighted articulatory dissimilarity between a and b
// in [0, 1] using the default weights.
func Distance(a, b types.Token) float64 {
	return DistanceWith(a, b, DefaultWeights())
}

// DistanceWith returns the weighted articulatory dissimilarity between a and
// b in [0, 1]. Identical tokens cost 0. Tokens unknown to the table, and any
// consonant/vowel pairing, cost 1.
func DistanceWith(a, b types.Token, w Weights) float64 {
	if a == b {
		return 0
	}
	fa, oka := Lookup(a)
	fb, okb := Lookup(b)
	if !oka || !okb {
		return 1
	}
	if fa == fb {
		return 0
	}
	if fa.IsVowel() != fb.IsVowel() {
		return 1
	}

	var d float64
	if fa.IsVowel() {
		d += mismatch(string(fa.Height), string(fb.Height)) * w.Height
		d += mismatch(string(fa.Backness), string(fb.Backness)) * w.Backness
		d += mismatchBool(fa.Rounded, fb.Rounded) * w.Rounding
		// Length, stress, and nasalization are all diacritic-borne on
		// vowels. Their subtotal is capped so a token never drifts more
		// than maxDiacriticCost from its base, no matter how many marks
		// are stacked.
		dia := mismatchBool(fa.Long, fb.Long)*w.VowelLength +
			mismatchBool(fa.Stressed, fb.Stressed)*w.VowelStress +
			mismatchBool(fa.Nasal, fb.Nasal)*vowelNasalWeight
		if dia > maxDiacriticCost {
			dia = maxDiacriticCost
		}
		d += dia * w.Diacritic
	} else {
		d += mismatch(string(fa.Place), string(fb.Place)) * w.Place
		d += mismatch(string(fa.Manner), string(fb.Manner)) * w.Manner
		d += mismatchBool(fa.Voiced, fb.Voiced) * w.Voicing
		d += mismatchBool(fa.Nasal, fb.Nasal) * w.Nasality
		d += mismatchBool(fa.Long, fb.Long) * w.Length * w.Diacritic
		d += mismatchBool(fa.Stressed, fb.Stressed) * w.Stress * w.Diacritic
	}
	if d > 1 {
		return 1
	}
	return d
}

// vowelNasalWeight prices vowel nasalization, which has no slot of its own
// in the spec weight groups but rides on the same diacritic scaling.
const vowelNasalWeight = 0.05

// maxDiacriticCost bounds the combined length/stress/nasalization cost on
// vowels: a token and its diacritic-stripped base differ by at most this
// much at default weighting.
const maxDiacriticCost = 0.15

func mismatch(a, b string) float64 {
	if a == b {
		return 0
	}
	return 1
}

func mismatchBool(a, b bool) float64 {
	if a == b {
		return 0
	}
	return 1
}

// Marks stripped by splitToken beyond combining characters: stress, length,
// and spacing modifier letters for secondary articulation.
const (
	primaryStress   = 'ˈ'
	secondaryStress = 'ˌ'
	longMark        = 'ː'
	halfLongMark    = 'ˑ'
)

var modifierLetters = map[rune]struct{}{
	'ʰ': {}, 'ʷ': {}, 'ʲ': {}, 'ˠ': {}, 'ˤ': {}, 'ⁿ': {}, 'ˡ': {}, '˞': {},
}

// splitToken separates a token into its base phone and the flags carried by
// its marks. The base is re-composed to NFC so it matches the table keys.
func splitToken(token types.Token) (base types.Token, long, stressed, nasalized bool) {
	decomposed := norm.NFD.String(string(token))
	var sb strings.Builder
	for _, r := range decomposed {
		switch {
		case r == primaryStress:
			stressed = true
		case r == secondaryStress:
			// Secondary stress is tracked as unstressed for scoring.
		case r == longMark || r == halfLongMark:
			long = true
		case r == '̃': // combining tilde
			nasalized = true
		case unicode.Is(unicode.Mn, r):
			// Other combining diacritics do not shift the base phone.
		default:
			if _, mod := modifierLetters[r]; mod {
				continue
			}
			sb.WriteRune(r)
		}
	}
	return types.Token(norm.NFC.String(sb.String())), long, stressed, nasalized
}
