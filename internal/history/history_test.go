package history

import (
	"testing"

	"collabcore/internal/model"
)

func TestAppendAdvancesVersion(t *testing.T) {
	h := New()
	for i := 0; i < 5; i++ {
		h.Append(model.Operation{Version: i})
	}
	if h.Version() != 5 {
		t.Errorf("version = %d, want 5", h.Version())
	}
}

func TestSinceVersion(t *testing.T) {
	h := New()
	for i := 0; i < 4; i++ {
		h.Append(model.Operation{Version: i, ClientID: "c1"})
	}
	got := h.SinceVersion(2)
	if len(got) != 2 {
		t.Fatalf("got %d ops, want 2", len(got))
	}
	if got[0].Version != 2 || got[1].Version != 3 {
		t.Errorf("unexpected versions: %+v", got)
	}
}

func TestByClient(t *testing.T) {
	h := New()
	h.Append(model.Operation{Version: 0, ClientID: "c1"})
	h.Append(model.Operation{Version: 1, ClientID: "c2"})
	h.Append(model.Operation{Version: 2, ClientID: "c1"})

	got := h.ByClient("c1")
	if len(got) != 2 {
		t.Fatalf("got %d ops, want 2", len(got))
	}
}

func TestRebase(t *testing.T) {
	h := New()
	h.Append(model.Operation{Version: 0})
	h.Append(model.Operation{Version: 1})
	h.Append(model.Operation{Version: 2})

	h.Rebase(1, 5, []model.Operation{{Version: 4}})
	if h.Version() != 5 {
		t.Errorf("version = %d, want 5", h.Version())
	}
	// Only the op at Version 0 is retained (Version < fromVersion=1),
	// plus the one appended op.
	snap := h.Snapshot()
	if len(snap.Operations) != 2 {
		t.Fatalf("got %d retained ops, want 2", len(snap.Operations))
	}
}

func TestClear(t *testing.T) {
	h := New()
	h.Append(model.Operation{Version: 0})
	h.Clear()
	if h.Version() != 0 {
		t.Errorf("version = %d, want 0 after clear", h.Version())
	}
	if len(h.SinceVersion(0)) != 0 {
		t.Error("expected empty log after clear")
	}
}
