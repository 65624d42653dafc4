package ids

import (
	"strings"
	"testing"
)

func TestAutoClientID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		id := AutoClientID()
		if !strings.HasPrefix(id, AutoClientPrefix) {
			t.Fatalf("expected %q prefix, got %q", AutoClientPrefix, id)
		}
		if len(id) != len(AutoClientPrefix)+7 {
			t.Fatalf("expected 12 characters, got %d (%q)", len(id), id)
		}
		for _, r := range strings.TrimPrefix(id, AutoClientPrefix) {
			if !strings.ContainsRune("0123456789abcdef", r) {
				t.Fatalf("unexpected character %q in %q", r, id)
			}
		}
		seen[id] = struct{}{}
	}
	if len(seen) < 45 {
		t.Fatalf("expected generated ids to be mostly unique, got %d distinct", len(seen))
	}
}
