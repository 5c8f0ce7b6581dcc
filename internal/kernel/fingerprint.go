package kernel

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/pronunciapa/pronunciapa/pkg/types"
)

// Fingerprint is the deterministic cache key for a prepared pipeline. It is
// computed only from immutable inputs: the configured plugin slot names, the
// language id, the evaluation level, and the compare mode. Plugin version
// strings are not part of it, so a plugin whose behavior changes under the
// same name keeps the same fingerprint.
type Fingerprint struct {
	// Slots maps slot name ("asr", "textref", ...) to the configured plugin
	// name.
	Slots map[string]string

	Lang  string
	Level types.EvaluationLevel
	Mode  types.CompareMode
}

// String renders a canonical form: slots sorted by name so the result is
// independent of map iteration order.
func (f Fingerprint) String() string {
	keys := make([]string, 0, len(f.Slots))
	for k := range f.Slots {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s=%s;", k, f.Slots[k])
	}
	fmt.Fprintf(&sb, "lang=%s;level=%s;mode=%s", f.Lang, f.Level, f.Mode)
	return sb.String()
}

// Key returns the hex SHA-256 of the canonical form, used as the cache map
// key.
func (f Fingerprint) Key() string {
	sum := sha256.Sum256([]byte(f.String()))
	return hex.EncodeToString(sum[:])
}
