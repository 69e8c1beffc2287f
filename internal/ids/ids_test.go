package ids

import "testing"

func TestNewIsValidAndSorted(t *testing.T) {
	a := New()
	b := New()
	if !Valid(a) || !Valid(b) {
		t.Fatalf("expected valid ids, got %q %q", a, b)
	}
	if a >= b {
		t.Fatalf("expected monotonic ids, got %q then %q", a, b)
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	for _, id := range []string{"", "   ", "not-an-id", "01HZZZZZZZZZZZZZZZZZZZZZZZZZ"} {
		if Valid(id) {
			t.Fatalf("expected %q to be invalid", id)
		}
	}
}
