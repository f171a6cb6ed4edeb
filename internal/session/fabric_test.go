package session

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"collabcore/internal/engine"
	"collabcore/internal/model"
)

// fakeConn is an in-memory Connection for exercising the fabric without
// a real transport, mirroring the style of conn fakes in the reference
// ws managers this package is grounded on.
type fakeConn struct {
	mu     sync.Mutex
	sent   [][]byte
	open   bool
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{open: true}
}

func (c *fakeConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, frame)
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	c.closed = true
	return nil
}

func (c *fakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeConn) messages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

func newTestFabric() *Fabric {
	eng := engine.New(engine.Options{})
	return NewFabric(eng, Options{HeartbeatInterval: time.Hour})
}

func TestRegisterSessionSendsConnectionFrame(t *testing.T) {
	f := newTestFabric()
	conn := newFakeConn()

	sess := f.RegisterSession(conn, "user1")
	if sess.ID == "" {
		t.Fatal("expected a non-empty session id")
	}

	msgs := conn.messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d frames, want 1", len(msgs))
	}
	var got ConnectionMessage
	if err := json.Unmarshal(msgs[0], &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != TypeConnection || got.SessionID != sess.ID {
		t.Errorf("connection frame = %+v", got)
	}
}

func TestHandleMessageBroadcastExcludesSender(t *testing.T) {
	f := newTestFabric()
	f.engine.InitializeEditor("doc1", "hello")

	senderConn := newFakeConn()
	otherConn := newFakeConn()
	sender := f.RegisterSession(senderConn, "u1")
	other := f.RegisterSession(otherConn, "u2")

	f.registry.Subscribe(sender.ID, "doc1")
	f.registry.Subscribe(other.ID, "doc1")

	opMsg := InboundMessage{
		Type:      TypeOperation,
		SessionID: sender.ID,
		Payload:   rawJSON(t, OperationPayload{DocumentID: "doc1", Version: 1, Operation: opInsert(0, "X")}),
	}
	raw, _ := json.Marshal(opMsg)
	f.HandleMessage(sender.ID, raw)

	// sender got only its initial connection frame, no echo of its own op
	if len(senderConn.messages()) != 1 {
		t.Errorf("sender frames = %d, want 1 (no self-echo)", len(senderConn.messages()))
	}
	// other got its connection frame plus the broadcast operation frame
	otherMsgs := otherConn.messages()
	if len(otherMsgs) != 2 {
		t.Fatalf("other frames = %d, want 2", len(otherMsgs))
	}
	var bcast BroadcastMessage
	if err := json.Unmarshal(otherMsgs[1], &bcast); err != nil {
		t.Fatalf("unmarshal broadcast: %v", err)
	}
	if bcast.Type != TypeOperation || bcast.DocumentID != "doc1" {
		t.Errorf("broadcast = %+v", bcast)
	}
}

func TestHandleMessageRejectsOperationOnUnsubscribedDocument(t *testing.T) {
	f := newTestFabric()
	f.engine.InitializeEditor("doc1", "hello")
	conn := newFakeConn()
	sess := f.RegisterSession(conn, "u1")

	opMsg := InboundMessage{
		Type:      TypeOperation,
		SessionID: sess.ID,
		Payload:   rawJSON(t, OperationPayload{DocumentID: "doc1", Version: 1, Operation: opInsert(0, "X")}),
	}
	raw, _ := json.Marshal(opMsg)
	f.HandleMessage(sess.ID, raw)

	content, _ := f.engine.GetEditorContent("doc1")
	if content != "hello" {
		t.Errorf("content = %q, want unchanged hello (operation should be denied)", content)
	}
}

func TestHandleMessageSubscribeThenUnsubscribe(t *testing.T) {
	f := newTestFabric()
	conn := newFakeConn()
	sess := f.RegisterSession(conn, "u1")

	sub := InboundMessage{Type: TypeSubscribe, SessionID: sess.ID, Payload: rawJSON(t, SubscriptionPayload{DocumentID: "doc1"})}
	raw, _ := json.Marshal(sub)
	f.HandleMessage(sess.ID, raw)

	if len(f.registry.SessionsForDocument("doc1")) != 1 {
		t.Fatal("expected session subscribed to doc1")
	}

	unsub := InboundMessage{Type: TypeUnsubscribe, SessionID: sess.ID, Payload: rawJSON(t, SubscriptionPayload{DocumentID: "doc1"})}
	raw, _ = json.Marshal(unsub)
	f.HandleMessage(sess.ID, raw)

	if len(f.registry.SessionsForDocument("doc1")) != 0 {
		t.Fatal("expected session unsubscribed from doc1")
	}
}

func TestHandleMessageIgnoresMismatchedSessionID(t *testing.T) {
	f := newTestFabric()
	conn := newFakeConn()
	sess := f.RegisterSession(conn, "u1")

	msg := InboundMessage{Type: TypeHeartbeat, SessionID: "not-" + sess.ID}
	raw, _ := json.Marshal(msg)
	f.HandleMessage(sess.ID, raw)
	// no panic, no crash; nothing observable to assert beyond survival
}

func TestHeartbeatTimeoutClosesSilentSessions(t *testing.T) {
	f := newTestFabric()
	conn := newFakeConn()
	f.RegisterSession(conn, "u1")

	f.heartbeatTick() // flips isAlive false, sends a heartbeat frame
	f.heartbeatTick() // session never answered; closes it

	if conn.IsOpen() {
		t.Error("expected session to be closed after a missed heartbeat tick")
	}
}

func TestHeartbeatAnsweredSessionStaysOpen(t *testing.T) {
	f := newTestFabric()
	conn := newFakeConn()
	sess := f.RegisterSession(conn, "u1")

	f.heartbeatTick()
	sess.MarkAlive()
	f.heartbeatTick()

	if !conn.IsOpen() {
		t.Error("expected answered session to remain open")
	}
}

func TestShutdownClosesAllConnections(t *testing.T) {
	f := newTestFabric()
	f.StartHeartbeat()
	conn := newFakeConn()
	f.RegisterSession(conn, "u1")

	f.Shutdown()

	if conn.IsOpen() {
		t.Error("expected connection closed after shutdown")
	}
	if len(f.registry.All()) != 0 {
		t.Error("expected registry cleared after shutdown")
	}
}

func rawJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return b
}

func opInsert(pos int, content string) model.Operation {
	return model.Operation{Type: model.OpInsert, Position: pos, Content: content}
}
