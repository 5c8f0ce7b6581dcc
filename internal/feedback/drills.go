package feedback

import (
	"fmt"

	"github.com/antzucaro/matchr"

	"github.com/pronunciapa/pronunciapa/pkg/phone"
	"github.com/pronunciapa/pronunciapa/pkg/types"
)

// pair keys the drill table by (reference phone, produced phone).
type pair struct {
	ref types.Token
	hyp types.Token
}

// drillTable holds precomputed minimal-pair drills for the confusions the
// shipped language packs see most. Keys use base phones; lookups strip
// diacritics first.
var drillTable = map[pair]types.Drill{
	{"r", "ɾ"}: {Type: "minimal_pair", Text: "Contrast pero/perro, caro/carro — hold the trill on the second word of each pair."},
	{"ɾ", "r"}: {Type: "minimal_pair", Text: "Contrast perro/pero, carro/caro — keep the single tap light on the second word."},
	{"θ", "s"}: {Type: "minimal_pair", Text: "Contrast casa/caza, coser/cocer — push the tongue between the teeth for the second word."},
	{"s", "θ"}: {Type: "minimal_pair", Text: "Contrast caza/casa — keep the tongue behind the teeth for a clean [s]."},
	{"b", "v"}: {Type: "minimal_pair", Text: "Both b and v are [b] here: repeat vaca/baca noticing they sound identical."},
	{"ɲ", "n"}: {Type: "minimal_pair", Text: "Contrast uña/una, caña/cana — press the tongue body against the palate for ñ."},
	{"x", "h"}: {Type: "minimal_pair", Text: "Contrast jota/hota — add friction at the back of the mouth for the Spanish j."},
	{"e", "i"}: {Type: "minimal_pair", Text: "Contrast peso/piso, mesa/misa — keep e mid-height, do not glide up to i."},
	{"o", "u"}: {Type: "minimal_pair", Text: "Contrast modo/mudo — keep o mid-height with loose rounding."},
	{"a", "ə"}: {Type: "minimal_pair", Text: "Spanish a never reduces: repeat casa stressing both a's equally."},
	{"i", "ɪ"}: {Type: "minimal_pair", Text: "Contrast seat/sit, beat/bit — tense and lengthen the first vowel of each pair."},
	{"ɪ", "i"}: {Type: "minimal_pair", Text: "Contrast sit/seat — keep the first vowel short and lax."},
	{"θ", "t"}: {Type: "minimal_pair", Text: "Contrast thin/tin, three/tree — let air flow over the tongue for th."},
	{"ð", "d"}: {Type: "minimal_pair", Text: "Contrast then/den, they/day — soften the contact into friction for th."},
	{"ʃ", "s"}: {Type: "minimal_pair", Text: "Contrast ship/sip, shoe/sue — round the lips slightly and pull the tongue back."},
	{"dʒ", "ʝ"}: {Type: "minimal_pair", Text: "Contrast jello/yellow — start the first word with a full stop closure."},
	{"l", "ɾ"}: {Type: "minimal_pair", Text: "Contrast ala/ara — hold the tongue tip contact for l, flick it for r."},
}

// drillFor returns the drill for a (ref, hyp) confusion. Misses fall back
// to the table key with the same reference phone whose produced phone is
// closest, scored as the larger of articulatory similarity and
// Jaro-Winkler similarity of the token spelling; when no key shares the
// reference phone, a generic repetition drill is returned.
func drillFor(ref, hyp types.Token) types.Drill {
	key := pair{ref: phone.Base(ref), hyp: phone.Base(hyp)}
	if d, ok := drillTable[key]; ok {
		return d
	}

	bestScore := -1.0
	var best types.Drill
	for k, d := range drillTable {
		if k.ref != key.ref {
			continue
		}
		score := 1 - phone.Distance(k.hyp, key.hyp)
		if jw := matchr.JaroWinkler(string(k.hyp), string(key.hyp), false); jw > score {
			score = jw
		}
		if score > bestScore {
			bestScore = score
			best = d
		}
	}
	if bestScore >= 0 {
		return best
	}

	return types.Drill{
		Type: "repetition",
		Text: fmt.Sprintf("Record yourself alternating /%s/ and /%s/ slowly, then at speaking pace.", ref, hyp),
	}
}
