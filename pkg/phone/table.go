package phone

import "github.com/pronunciapa/pronunciapa/pkg/types"

// consonant builds a consonant feature record.
func consonant(m Manner, p Place, voiced bool) Features {
	return Features{Manner: m, Place: p, Voiced: voiced}
}

// vowel builds a vowel feature record.
func vowel(h Height, b Backness, rounded bool) Features {
	return Features{Manner: MannerVowel, Place: PlaceNone, Voiced: true, Height: h, Backness: b, Rounded: rounded}
}

// table maps base IPA letters (after diacritic stripping) to their
// articulatory features. Coverage follows the shipped language packs plus
// the narrow-transcription symbols common recognizers emit.
var table = map[types.Token]Features{
	// ── Stops ──
	"p": consonant(Stop, Bilabial, false),
	"b": consonant(Stop, Bilabial, true),
	"t": consonant(Stop, Alveolar, false),
	"d": consonant(Stop, Alveolar, true),
	"ʈ": consonant(Stop, Retroflex, false),
	"ɖ": consonant(Stop, Retroflex, true),
	"c": consonant(Stop, Palatal, false),
	"ɟ": consonant(Stop, Palatal, true),
	"k": consonant(Stop, Velar, false),
	"g": consonant(Stop, Velar, true),
	"ɡ": consonant(Stop, Velar, true),
	"q": consonant(Stop, Uvular, false),
	"ɢ": consonant(Stop, Uvular, true),
	"ʔ": consonant(Stop, Glottal, false),

	// ── Fricatives ──
	"ɸ": consonant(Fricative, Bilabial, false),
	"β": consonant(Fricative, Bilabial, true),
	"f": consonant(Fricative, Labiodental, false),
	"v": consonant(Fricative, Labiodental, true),
	"θ": consonant(Fricative, Dental, false),
	"ð": consonant(Fricative, Dental, true),
	"s": consonant(Fricative, Alveolar, false),
	"z": consonant(Fricative, Alveolar, true),
	"ʃ": consonant(Fricative, Postalveolar, false),
	"ʒ": consonant(Fricative, Postalveolar, true),
	"ʂ": consonant(Fricative, Retroflex, false),
	"ʐ": consonant(Fricative, Retroflex, true),
	"ç": consonant(Fricative, Palatal, false),
	"ʝ": consonant(Fricative, Palatal, true),
	"x": consonant(Fricative, Velar, false),
	"ɣ": consonant(Fricative, Velar, true),
	"χ": consonant(Fricative, Uvular, false),
	"ʁ": consonant(Fricative, Uvular, true),
	"ħ": consonant(Fricative, Pharyngeal, false),
	"ʕ": consonant(Fricative, Pharyngeal, true),
	"h": consonant(Fricative, Glottal, false),
	"ɦ": consonant(Fricative, Glottal, true),

	// ── Affricates ──
	"ts": consonant(Affricate, Alveolar, false),
	"dz": consonant(Affricate, Alveolar, true),
	"tʃ": consonant(Affricate, Postalveolar, false),
	"dʒ": consonant(Affricate, Postalveolar, true),
	"tɕ": consonant(Affricate, Palatal, false),
	"dʑ": consonant(Affricate, Palatal, true),

	// ── Nasals ──
	"m": {Manner: Nasal, Place: Bilabial, Voiced: true, Nasal: true},
	"ɱ": {Manner: Nasal, Place: Labiodental, Voiced: true, Nasal: true},
	"n": {Manner: Nasal, Place: Alveolar, Voiced: true, Nasal: true},
	"ɳ": {Manner: Nasal, Place: Retroflex, Voiced: true, Nasal: true},
	"ɲ": {Manner: Nasal, Place: Palatal, Voiced: true, Nasal: true},
	"ŋ": {Manner: Nasal, Place: Velar, Voiced: true, Nasal: true},
	"ɴ": {Manner: Nasal, Place: Uvular, Voiced: true, Nasal: true},

	// ── Laterals ──
	"l": consonant(Lateral, Alveolar, true),
	"ɭ": consonant(Lateral, Retroflex, true),
	"ʎ": consonant(Lateral, Palatal, true),
	"ʟ": consonant(Lateral, Velar, true),
	"ɬ": consonant(Lateral, Alveolar, false),
	"ɮ": consonant(Lateral, Alveolar, true),

	// ── Approximants ──
	"ʋ": consonant(Approximant, Labiodental, true),
	"ɹ": consonant(Approximant, Alveolar, true),
	"ɻ": consonant(Approximant, Retroflex, true),
	"j": consonant(Approximant, Palatal, true),
	"ɰ": consonant(Approximant, Velar, true),
	"w": consonant(Approximant, Velar, true),
	"ɥ": consonant(Approximant, Palatal, true),

	// ── Trills and taps ──
	"r": consonant(Trill, Alveolar, true),
	"ʀ": consonant(Trill, Uvular, true),
	"ʙ": consonant(Trill, Bilabial, true),
	"ɾ": consonant(Tap, Alveolar, true),
	"ɽ": consonant(Tap, Retroflex, true),

	// ── Vowels ──
	"i": vowel(High, Front, false),
	"y": vowel(High, Front, true),
	"ɨ": vowel(High, Central, false),
	"ʉ": vowel(High, Central, true),
	"ɯ": vowel(High, Back, false),
	"u": vowel(High, Back, true),
	"ɪ": vowel(MidHigh, Front, false),
	"ʏ": vowel(MidHigh, Front, true),
	"ʊ": vowel(MidHigh, Back, true),
	"e": vowel(MidHigh, Front, false),
	"ø": vowel(MidHigh, Front, true),
	"ɘ": vowel(Mid, Central, false),
	"ɵ": vowel(Mid, Central, true),
	"ɤ": vowel(MidHigh, Back, false),
	"o": vowel(MidHigh, Back, true),
	"ə": vowel(Mid, Central, false),
	"ɛ": vowel(MidLow, Front, false),
	"œ": vowel(MidLow, Front, true),
	"ɜ": vowel(MidLow, Central, false),
	"ɞ": vowel(MidLow, Central, true),
	"ʌ": vowel(MidLow, Back, false),
	"ɔ": vowel(MidLow, Back, true),
	"æ": vowel(Low, Front, false),
	"ɐ": vowel(Low, Central, false),
	"a": vowel(Low, Front, false),
	"ɶ": vowel(Low, Front, true),
	"ɑ": vowel(Low, Back, false),
	"ɒ": vowel(Low, Back, true),

	// Diphthongs carry the features of their nucleus.
	"aɪ": vowel(Low, Front, false),
	"eɪ": vowel(MidHigh, Front, false),
	"ɔɪ": vowel(MidLow, Back, true),
	"aʊ": vowel(Low, Central, false),
	"oʊ": vowel(MidHigh, Back, true),
}
