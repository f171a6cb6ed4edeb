package idgen

import (
	"regexp"
	"testing"
)

func TestUUIDv7GeneratorProducesDistinctIDs(t *testing.T) {
	g := UUIDv7Generator{}
	a := g.NewID()
	b := g.NewID()
	if a == b {
		t.Fatal("expected distinct ids across calls")
	}
	if len(a) != 36 {
		t.Errorf("id %q has length %d, want 36 (canonical UUID form)", a, len(a))
	}
}

var sessionIDPattern = regexp.MustCompile(`^\d+-[0-9a-z]{9}$`)

func TestSessionIDGeneratorMatchesShape(t *testing.T) {
	g := SessionIDGenerator{}
	id := g.NewID()
	if !sessionIDPattern.MatchString(id) {
		t.Errorf("id %q does not match {unixMillis}-{9-char-base36} shape", id)
	}
}

func TestSessionIDGeneratorProducesDistinctIDs(t *testing.T) {
	g := SessionIDGenerator{}
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		id := g.NewID()
		if seen[id] {
			t.Fatalf("duplicate id generated: %q", id)
		}
		seen[id] = true
	}
}
