package types_test

import (
	"testing"

	"github.com/macconnolly/meetgraph/pkg/types"
)

func TestNormalizeRelationshipType(t *testing.T) {
	cases := map[string]string{
		"owns":           "owns",
		"Works On":       "works_on",
		"works-on":       "works_on",
		"depends_on":     "depends_on",
		"reports to":     "reports_to",
		"collaborates":   "collaborates_with",
		"related_to":     "relates_to",
		"something else": "relates_to",
		"":               "relates_to",
	}

	for input, want := range cases {
		if got := types.NormalizeRelationshipType(input); got != want {
			t.Errorf("NormalizeRelationshipType(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNormalizeRelationshipTypeIdempotent(t *testing.T) {
	for _, input := range []string{"owns", "Works On", "unknown kind"} {
		once := types.NormalizeRelationshipType(input)
		if twice := types.NormalizeRelationshipType(once); once != twice {
			t.Errorf("not idempotent for %q: %q != %q", input, once, twice)
		}
	}
}

func TestValidRelationshipTypes(t *testing.T) {
	for _, rt := range types.ValidRelationshipTypes {
		if !types.IsValidRelationshipType(rt) {
			t.Errorf("expected %q to be valid", rt)
		}
	}
	if types.IsValidRelationshipType("friend_of") {
		t.Error("friend_of is not in the canonical vocabulary")
	}
}
