package inventory_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/pronunciapa/pronunciapa/pkg/inventory"
	"github.com/pronunciapa/pronunciapa/pkg/types"
)

func loadES(t *testing.T) *inventory.Inventory {
	t.Helper()
	set, err := inventory.LoadDefaults()
	if err != nil {
		t.Fatalf("LoadDefaults: %v", err)
	}
	inv, err := set.Get("es")
	if err != nil {
		t.Fatalf("Get(es): %v", err)
	}
	return inv
}

func TestNormalize_AliasFixedPoint(t *testing.T) {
	t.Parallel()

	inv := loadES(t)
	raw := types.NewTokenSequence([]string{"p", "ɾ", "o", "β", "ã", "n", "d", "o"})
	want := types.NewTokenSequence([]string{"p", "ɾ", "o", "b", "a", "n", "d", "o"})

	got, warnings, err := inventory.Normalize(raw, inv, types.LevelPhonemic)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("Normalize = %v, want %v", got.Strings(), want.Strings())
	}
	if len(warnings) != 0 {
		t.Errorf("Normalize warnings = %v, want none", warnings)
	}
}

func TestNormalize_MultiTokenAlias(t *testing.T) {
	t.Parallel()

	inv := loadES(t)
	raw := types.NewTokenSequence([]string{"t", "ʃ", "i", "k", "o"})

	got, _, err := inventory.Normalize(raw, inv, types.LevelPhonemic)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := types.NewTokenSequence([]string{"tʃ", "i", "k", "o"})
	if !got.Equal(want) {
		t.Errorf("Normalize = %v, want %v", got.Strings(), want.Strings())
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	inv := loadES(t)
	for _, level := range []types.EvaluationLevel{types.LevelPhonemic, types.LevelPhonetic} {
		raw := types.NewTokenSequence([]string{"ɡ", "a", "t", "ã", "β", "o"})
		once, _, err := inventory.Normalize(raw, inv, level)
		if err != nil {
			t.Fatalf("Normalize(%s): %v", level, err)
		}
		twice, _, err := inventory.Normalize(once, inv, level)
		if err != nil {
			t.Fatalf("Normalize(%s) second pass: %v", level, err)
		}
		if !once.Equal(twice) {
			t.Errorf("level %s: normalize not idempotent: %v != %v", level, once.Strings(), twice.Strings())
		}
	}
}

func TestNormalize_DeriveIntervocalic(t *testing.T) {
	t.Parallel()

	inv := loadES(t)
	// Phonemic /b/ between vowels surfaces as the fricative allophone.
	raw := types.NewTokenSequence([]string{"a", "b", "a"})
	got, _, err := inventory.Normalize(raw, inv, types.LevelPhonetic)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := types.NewTokenSequence([]string{"a", "β", "a"})
	if !got.Equal(want) {
		t.Errorf("Normalize = %v, want %v", got.Strings(), want.Strings())
	}

	// Word-initial /b/ keeps its stop articulation.
	raw = types.NewTokenSequence([]string{"b", "a"})
	got, _, err = inventory.Normalize(raw, inv, types.LevelPhonetic)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want = types.NewTokenSequence([]string{"b", "a"})
	if !got.Equal(want) {
		t.Errorf("Normalize = %v, want %v", got.Strings(), want.Strings())
	}
}

func TestNormalize_UnknownTokenWarns(t *testing.T) {
	t.Parallel()

	inv := loadES(t)
	raw := types.NewTokenSequence([]string{"ɮ", "a"})
	got, warnings, err := inventory.Normalize(raw, inv, types.LevelPhonemic)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(got) != 2 || got[0] != "ɮ" {
		t.Errorf("Normalize = %v, want unknown token passed through", got.Strings())
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", warnings)
	}
}

func TestNormalize_StripsWhitespaceTokens(t *testing.T) {
	t.Parallel()

	inv := loadES(t)
	raw := types.TokenSequence{"o", " ", "", "l", "a"}
	got, _, err := inventory.Normalize(raw, inv, types.LevelPhonemic)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := types.NewTokenSequence([]string{"o", "l", "a"})
	if !got.Equal(want) {
		t.Errorf("Normalize = %v, want %v", got.Strings(), want.Strings())
	}
}

func TestLoadPack_RejectsAliasCycle(t *testing.T) {
	t.Parallel()

	pack := `
inventory: [a]
aliases:
  b: c
  c: b
`
	_, err := inventory.LoadPack(strings.NewReader(pack), "bad")
	if !errors.Is(err, inventory.ErrAliasCycle) {
		t.Errorf("LoadPack err = %v, want ErrAliasCycle", err)
	}
}

func TestLoadPack_RejectsCanonicalAliasKey(t *testing.T) {
	t.Parallel()

	pack := `
inventory: [a, b]
aliases:
  a: b
`
	_, err := inventory.LoadPack(strings.NewReader(pack), "bad")
	if err == nil {
		t.Error("LoadPack: err = nil, want canonical-shadow error")
	}
}

func TestLoadDefaults_PacksAcyclic(t *testing.T) {
	t.Parallel()

	set, err := inventory.LoadDefaults()
	if err != nil {
		t.Fatalf("LoadDefaults: %v", err)
	}
	for _, lang := range []string{"es", "en"} {
		if _, err := set.Get(lang); err != nil {
			t.Errorf("Get(%s): %v", lang, err)
		}
	}
}
