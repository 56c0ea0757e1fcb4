package runid

import "testing"

func TestNew_Format(t *testing.T) {
	id := New()
	if len(id) != 20 {
		t.Fatalf("len(New()) = %d, want 20 (\"pk\" + two 8-char groups + two dashes)", len(id))
	}
	if id[:3] != "pk-" {
		t.Errorf("id = %q, want it to start with %q", id, "pk-")
	}
	if id[11] != '-' {
		t.Errorf("id[11] = %q, want '-' in %q", id[11], id)
	}
}

func TestNew_Unique(t *testing.T) {
	if New() == New() {
		t.Errorf("two consecutive New() calls returned the same id")
	}
}
