package ids

import (
	"testing"
	"time"
)

func TestNewIsSortable(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	first := NewAt(base)
	second := NewAt(base.Add(time.Millisecond))
	if first >= second {
		t.Fatalf("expected %s < %s", first, second)
	}
	if !Valid(first) || !Valid(second) {
		t.Fatalf("generated ids must be valid")
	}
}

func TestTokenIDUnique(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		id := TokenID()
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate token id %s", id)
		}
		seen[id] = struct{}{}
	}
	if Valid("not-an-id") {
		t.Fatalf("expected invalid id to be rejected")
	}
}
