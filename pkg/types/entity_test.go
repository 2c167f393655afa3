package types_test

import (
	"testing"

	"github.com/macconnolly/meetgraph/pkg/types"
)

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"Project Alpha":    "project alpha",
		"  API  Migration": "api migration",
		"ALICE":            "alice",
		"":                 "",
	}

	for input, want := range cases {
		if got := types.NormalizeName(input); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNormalizeNameIdempotent(t *testing.T) {
	inputs := []string{"Project Alpha", "  mixed   Case  Name ", "x"}
	for _, input := range inputs {
		once := types.NormalizeName(input)
		if twice := types.NormalizeName(once); once != twice {
			t.Errorf("NormalizeName not idempotent for %q", input)
		}
	}
}

func TestEntityValidate(t *testing.T) {
	valid := types.Entity{Name: "Project Alpha", Type: types.EntityProject}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid entity, got %v", err)
	}

	missingName := types.Entity{Type: types.EntityProject}
	if err := missingName.Validate(); err == nil {
		t.Error("expected error for missing name")
	}

	badType := types.Entity{Name: "X", Type: "spaceship"}
	if err := badType.Validate(); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestValidEntityTypes(t *testing.T) {
	for _, et := range types.ValidEntityTypes {
		if !types.IsValidEntityType(et) {
			t.Errorf("expected %q to be valid", et)
		}
	}
	if types.IsValidEntityType("organization") {
		t.Error("organization is not in the canonical vocabulary")
	}
}
