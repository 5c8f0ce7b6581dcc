package grapheme

// languages holds the shipped rule sets keyed by language id.
var languages = map[string]*langRules{
	"es": spanish,
	"en": english,
}

// spanish is broad Latin American Spanish with yeísmo. Seseo is not
// applied: c/z keep the distinción θ so the pack-level collapse map stays
// in control of variety differences.
var spanish = &langRules{
	rules: []rule{
		// Digraphs first; longest-match ordering makes them win anyway,
		// but keeping them on top mirrors how the rules read.
		{seq: "ch", ipa: "tʃ"},
		{seq: "ll", ipa: "ʝ"},
		{seq: "rr", ipa: "r"},
		{seq: "qu", ipa: "k"},
		{seq: "gü", ipa: "g w"},
		{seq: "gu", ipa: "g w", beforeSet: "eiéí", beforeIPA: "g"},

		{seq: "a", ipa: "a"},
		{seq: "á", ipa: "a"},
		{seq: "b", ipa: "b"},
		{seq: "c", ipa: "k", beforeSet: "eiéí", beforeIPA: "θ"},
		{seq: "d", ipa: "d"},
		{seq: "e", ipa: "e"},
		{seq: "é", ipa: "e"},
		{seq: "f", ipa: "f"},
		{seq: "g", ipa: "g", beforeSet: "eiéí", beforeIPA: "x"},
		{seq: "h", ipa: ""}, // silent
		{seq: "i", ipa: "i"},
		{seq: "í", ipa: "i"},
		{seq: "j", ipa: "x"},
		{seq: "k", ipa: "k"},
		{seq: "l", ipa: "l"},
		{seq: "m", ipa: "m"},
		{seq: "n", ipa: "n"},
		{seq: "ñ", ipa: "ɲ"},
		{seq: "o", ipa: "o"},
		{seq: "ó", ipa: "o"},
		{seq: "p", ipa: "p"},
		{seq: "r", ipa: "ɾ", atStart: true, startIPA: "r"},
		{seq: "s", ipa: "s"},
		{seq: "t", ipa: "t"},
		{seq: "u", ipa: "u"},
		{seq: "ú", ipa: "u"},
		{seq: "ü", ipa: "u"},
		{seq: "v", ipa: "b"},
		{seq: "w", ipa: "w"},
		{seq: "x", ipa: "k s"},
		{seq: "y", ipa: "ʝ"},
		{seq: "z", ipa: "θ"},
	},
	exceptions: map[string]string{
		// y as a standalone word is the vowel.
		"y": "i",
	},
}

// english is General American, letter rules plus a dictionary for the
// irregular high-frequency words a learner actually practices.
var english = &langRules{
	rules: []rule{
		{seq: "tch", ipa: "tʃ"},
		{seq: "igh", ipa: "aɪ"},
		{seq: "th", ipa: "θ"},
		{seq: "sh", ipa: "ʃ"},
		{seq: "ch", ipa: "tʃ"},
		{seq: "ph", ipa: "f"},
		{seq: "wh", ipa: "w"},
		{seq: "ng", ipa: "ŋ"},
		{seq: "ck", ipa: "k"},
		{seq: "qu", ipa: "k w"},
		{seq: "ee", ipa: "i"},
		{seq: "ea", ipa: "i"},
		{seq: "oo", ipa: "u"},
		{seq: "ou", ipa: "aʊ"},
		{seq: "ow", ipa: "oʊ"},
		{seq: "ai", ipa: "eɪ"},
		{seq: "ay", ipa: "eɪ"},
		{seq: "oi", ipa: "ɔɪ"},
		{seq: "oy", ipa: "ɔɪ"},

		{seq: "a", ipa: "æ"},
		{seq: "b", ipa: "b"},
		{seq: "c", ipa: "k", beforeSet: "eiy", beforeIPA: "s"},
		{seq: "d", ipa: "d"},
		{seq: "e", ipa: "ɛ"},
		{seq: "f", ipa: "f"},
		{seq: "g", ipa: "g"},
		{seq: "h", ipa: "h"},
		{seq: "i", ipa: "ɪ"},
		{seq: "j", ipa: "dʒ"},
		{seq: "k", ipa: "k"},
		{seq: "l", ipa: "l"},
		{seq: "m", ipa: "m"},
		{seq: "n", ipa: "n"},
		{seq: "o", ipa: "ɑ"},
		{seq: "p", ipa: "p"},
		{seq: "r", ipa: "ɹ"},
		{seq: "s", ipa: "s"},
		{seq: "t", ipa: "t"},
		{seq: "u", ipa: "ʌ"},
		{seq: "v", ipa: "v"},
		{seq: "w", ipa: "w"},
		{seq: "x", ipa: "k s"},
		{seq: "y", ipa: "j"},
		{seq: "z", ipa: "z"},
	},
	exceptions: map[string]string{
		"hello": "h ə l o ʊ",
		"the":   "ð ə",
		"one":   "w ʌ n",
		"two":   "t u",
		"was":   "w ʌ z",
		"of":    "ʌ v",
		"to":    "t u",
		"you":   "j u",
		"said":  "s ɛ d",
		"water": "w ɑ ɾ ə ɹ",
		"are":   "ɑ ɹ",
		"have":  "h æ v",
		"they":  "ð eɪ",
		"what":  "w ʌ t",
		"world": "w ɜ ɹ l d",
	},
}
