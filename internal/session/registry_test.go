package session

import "testing"

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	sess := newSession("s1", "u1", newFakeConn())
	r.Register(sess)

	got, ok := r.Get("s1")
	if !ok || got.UserID != "u1" {
		t.Fatalf("get = %+v, ok=%v", got, ok)
	}
}

func TestSubscribeUnknownSessionFails(t *testing.T) {
	r := NewRegistry()
	if err := r.Subscribe("ghost", "doc1"); err == nil {
		t.Fatal("expected error subscribing an unregistered session")
	}
}

func TestSubscribeIsIdempotentAndIndexesByDocument(t *testing.T) {
	r := NewRegistry()
	sess := newSession("s1", "u1", newFakeConn())
	r.Register(sess)

	if err := r.Subscribe("s1", "doc1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := r.Subscribe("s1", "doc1"); err != nil {
		t.Fatalf("second subscribe: %v", err)
	}

	ids := r.SessionsForDocument("doc1")
	if len(ids) != 1 || ids[0] != "s1" {
		t.Errorf("SessionsForDocument = %v, want [s1]", ids)
	}
}

func TestUnsubscribeRemovesFromIndex(t *testing.T) {
	r := NewRegistry()
	sess := newSession("s1", "u1", newFakeConn())
	r.Register(sess)
	r.Subscribe("s1", "doc1")
	r.Unsubscribe("s1", "doc1")

	if len(r.SessionsForDocument("doc1")) != 0 {
		t.Error("expected empty document index after unsubscribe")
	}
}

func TestUnregisterClearsDocumentIndex(t *testing.T) {
	r := NewRegistry()
	sess := newSession("s1", "u1", newFakeConn())
	r.Register(sess)
	r.Subscribe("s1", "doc1")
	r.Subscribe("s1", "doc2")

	got, ok := r.Unregister("s1")
	if !ok || got.ID != "s1" {
		t.Fatalf("unregister = %+v, ok=%v", got, ok)
	}
	if _, ok := r.Get("s1"); ok {
		t.Error("expected session removed")
	}
	if len(r.SessionsForDocument("doc1")) != 0 || len(r.SessionsForDocument("doc2")) != 0 {
		t.Error("expected document indexes cleared on unregister")
	}
}

func TestUnregisterUnknownSessionReturnsFalse(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Unregister("ghost"); ok {
		t.Error("expected false for unregistering an unknown session")
	}
}

func TestAllReturnsEveryClient(t *testing.T) {
	r := NewRegistry()
	r.Register(newSession("s1", "u1", newFakeConn()))
	r.Register(newSession("s2", "u2", newFakeConn()))

	if len(r.All()) != 2 {
		t.Errorf("All() = %d sessions, want 2", len(r.All()))
	}
}

func TestClearDropsClientsAndDocumentIndex(t *testing.T) {
	r := NewRegistry()
	sess := newSession("s1", "u1", newFakeConn())
	r.Register(sess)
	r.Subscribe("s1", "doc1")

	r.Clear()

	if len(r.All()) != 0 {
		t.Error("expected no clients after Clear")
	}
	if len(r.SessionsForDocument("doc1")) != 0 {
		t.Error("expected no document subscriptions after Clear")
	}
}

func TestMarkAliveUpdatesLastActivity(t *testing.T) {
	sess := newSession("s1", "u1", newFakeConn())
	before := sess.LastActivity()
	sess.MarkAlive()
	if sess.LastActivity().Before(before) {
		t.Error("expected LastActivity to never move backwards after MarkAlive")
	}
}
