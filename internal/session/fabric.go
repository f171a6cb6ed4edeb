package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"collabcore/internal/engine"
	"collabcore/internal/eventbus"
	"collabcore/internal/idgen"
	"collabcore/internal/model"
	"collabcore/internal/ratelimit"
	"collabcore/internal/store"
)

// DefaultHeartbeatInterval is the tick period: one missed tick
// (roughly 30s of silence) closes the connection.
const DefaultHeartbeatInterval = 30 * time.Second

// Fabric is the SessionFabric: it owns the SessionRegistry, validates
// and routes every inbound frame, applies rate limiting, and fans
// engine-produced state changes back out to subscribed sessions. It
// never touches engine internals directly — only through Engine's
// public operation-table methods — so the per-editor serialization
// guarantee stays entirely inside the engine.
type Fabric struct {
	registry   *Registry
	engine     *engine.Engine
	limiter    *ratelimit.Limiter
	sessionIDs idgen.Generator
	logger     *log.Logger

	resolver  store.DocumentResolver
	snapshots store.SnapshotStore

	heartbeatInterval time.Duration
	stop              chan struct{}
	stopped           sync.Once
	wg                sync.WaitGroup

	unsubscribeBus func()
}

// Options configures a Fabric. Zero fields fall back to defaults.
// Resolver and Snapshots are optional collaborators: leaving either nil
// disables the corresponding message types' extra behavior without
// affecting subscribe/unsubscribe.
type Options struct {
	Limiter           *ratelimit.Limiter
	SessionIDs        idgen.Generator
	Logger            *log.Logger
	HeartbeatInterval time.Duration
	Resolver          store.DocumentResolver
	Snapshots         store.SnapshotStore
}

func NewFabric(eng *engine.Engine, opts Options) *Fabric {
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.Options{})
	}
	sessionIDs := opts.SessionIDs
	if sessionIDs == nil {
		sessionIDs = idgen.SessionIDGenerator{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	interval := opts.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &Fabric{
		registry:          NewRegistry(),
		engine:            eng,
		limiter:           limiter,
		sessionIDs:        sessionIDs,
		logger:            logger,
		resolver:          opts.Resolver,
		snapshots:         opts.Snapshots,
		heartbeatInterval: interval,
		stop:              make(chan struct{}),
	}
}

// SubscribeEvents hooks the fabric up to an in-process event bus so
// engine-originated events (cursor updates, presence, transform
// conflicts) get forwarded to subscribed sessions as "notification"
// frames, symmetric with the "operation" frames HandleMessage already
// produces synchronously for applyOperation's own caller.
func (f *Fabric) SubscribeEvents(bus eventbus.Subscriber) {
	f.unsubscribeBus = bus.Subscribe(f.handleEngineEvent)
}

func (f *Fabric) handleEngineEvent(evt model.Event) {
	switch evt.Type {
	case model.EventCursorUpdated, model.EventRemoteUserConnected,
		model.EventRemoteUserDisconnected, model.EventOperationConflict:
		f.Broadcast(evt.EditorID, BroadcastMessage{
			Type:       TypeNotification,
			DocumentID: evt.EditorID,
			Data:       evt.Payload,
			Timestamp:  evt.Timestamp.UnixMilli(),
		}, "")
	}
}

// RegisterSession allocates a sessionId, registers conn under it, and
// sends the initial "connection" frame.
func (f *Fabric) RegisterSession(conn Connection, userID string) *Session {
	sess := newSession(f.sessionIDs.NewID(), userID, conn)
	f.registry.Register(sess)

	f.send(conn, ConnectionMessage{
		Type:      TypeConnection,
		SessionID: sess.ID,
		Timestamp: time.Now().UnixMilli(),
	})
	return sess
}

// UnregisterSession removes sessionID, clears its rate-limit bucket,
// and closes its transport with reason.
func (f *Fabric) UnregisterSession(sessionID, reason string) {
	sess, ok := f.registry.Unregister(sessionID)
	if !ok {
		return
	}
	f.limiter.ClearUserLimits(sess.UserID)
	if err := sess.Conn.Close(1000, reason); err != nil {
		f.logger.Printf("session: close error for session=%s: %v", sessionID, err)
	}
}

// HandleMessage parses and routes one inbound frame. Every error is
// logged and the frame is dropped; a single bad frame never tears down
// the connection.
func (f *Fabric) HandleMessage(sessionID string, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Printf("session: recovered panic handling frame from session=%s: %v", sessionID, r)
		}
	}()

	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		f.logInvalid(sessionID, fmt.Errorf("decode frame: %w", model.ErrInvalidMessage))
		return
	}
	if msg.Type == "" || msg.SessionID == "" {
		f.logInvalid(sessionID, fmt.Errorf("missing type or sessionId: %w", model.ErrInvalidMessage))
		return
	}
	if msg.SessionID != sessionID {
		f.logInvalid(sessionID, fmt.Errorf("frame sessionId %q != connection session %q: %w", msg.SessionID, sessionID, model.ErrInvalidMessage))
		return
	}

	switch msg.Type {
	case TypeOperation:
		f.handleOperation(sessionID, msg)
	case TypeHeartbeat:
		f.handleHeartbeat(sessionID)
	case TypeSubscribe:
		f.handleSubscribe(sessionID, msg)
	case TypeUnsubscribe:
		f.handleUnsubscribe(sessionID, msg)
	case TypeCreateDocument:
		f.handleCreateDocument(sessionID, msg)
	case TypeJoinDocument:
		f.handleJoinDocument(sessionID, msg)
	case TypeSaveDocument:
		f.handleSaveDocument(sessionID, msg)
	case TypeLoadDocumentContent:
		f.handleLoadDocumentContent(sessionID, msg)
	default:
		f.logInvalid(sessionID, fmt.Errorf("unknown frame type %q: %w", msg.Type, model.ErrInvalidMessage))
	}
}

func (f *Fabric) handleOperation(sessionID string, msg InboundMessage) {
	sess, ok := f.registry.Get(sessionID)
	if !ok {
		f.logger.Printf("session: operation from unknown session=%s", sessionID)
		return
	}

	var payload OperationPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.DocumentID == "" || payload.Version < 1 {
		f.logInvalid(sessionID, fmt.Errorf("malformed operation payload: %w", model.ErrInvalidMessage))
		return
	}

	if err := f.limiter.CheckAndRecord(sess.UserID); err != nil {
		f.logger.Printf("session: %v", err)
		return
	}

	if !sess.isSubscribed(payload.DocumentID) {
		f.logger.Printf("session: operation on non-subscribed document %q from session=%s: %v",
			payload.DocumentID, sessionID, model.ErrOperationDenied)
		return
	}

	// payload.Version counts from 1 (the document version once this op
	// lands); the engine expects the base version the op was authored on.
	payload.Operation.Version = payload.Version - 1
	applied, err := f.engine.ApplyOperation(payload.DocumentID, payload.Operation)
	if err != nil {
		f.logger.Printf("session: apply operation failed for document=%s session=%s: %v", payload.DocumentID, sessionID, err)
		if errors.Is(err, model.ErrVersionConflict) {
			f.send(sess.Conn, BroadcastMessage{
				Type:       TypeNotification,
				DocumentID: payload.DocumentID,
				Data:       map[string]string{"error": err.Error()},
				Timestamp:  time.Now().UnixMilli(),
			})
		}
		return
	}
	sess.touch()

	f.Broadcast(payload.DocumentID, BroadcastMessage{
		Type:             TypeOperation,
		DocumentID:       payload.DocumentID,
		Data:             applied,
		ExcludeSessionID: sessionID,
		Timestamp:        time.Now().UnixMilli(),
	}, sessionID)
}

func (f *Fabric) handleHeartbeat(sessionID string) {
	sess, ok := f.registry.Get(sessionID)
	if !ok {
		return
	}
	sess.MarkAlive()
}

func (f *Fabric) handleSubscribe(sessionID string, msg InboundMessage) {
	var payload SubscriptionPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.DocumentID == "" {
		f.logInvalid(sessionID, fmt.Errorf("malformed subscribe payload: %w", model.ErrInvalidMessage))
		return
	}
	if err := f.registry.Subscribe(sessionID, payload.DocumentID); err != nil {
		f.logger.Printf("session: %v", err)
	}
}

func (f *Fabric) handleUnsubscribe(sessionID string, msg InboundMessage) {
	var payload SubscriptionPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.DocumentID == "" {
		f.logInvalid(sessionID, fmt.Errorf("malformed unsubscribe payload: %w", model.ErrInvalidMessage))
		return
	}
	f.registry.Unsubscribe(sessionID, payload.DocumentID)
}

// handleCreateDocument resolves a human title to a documentId via the
// optional DocumentResolver, lazily initializes engine state for it,
// and subscribes the caller. Grounded on conn.go's "createDocument"
// case; a no-op reply with an error is sent if no resolver is
// configured.
func (f *Fabric) handleCreateDocument(sessionID string, msg InboundMessage) {
	sess, ok := f.registry.Get(sessionID)
	if !ok {
		return
	}
	var payload CreateDocumentPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Title == "" {
		f.logInvalid(sessionID, fmt.Errorf("malformed createDocument payload: %w", model.ErrInvalidMessage))
		return
	}
	if f.resolver == nil {
		f.send(sess.Conn, ResultMessage{Type: TypeCreateDocument, Error: "document resolver not configured", Timestamp: time.Now().UnixMilli()})
		return
	}

	docID, err := f.resolver.CreateDocument(context.Background(), sess.UserID, payload.Title)
	if err != nil {
		f.logger.Printf("session: create document %q failed: %v", payload.Title, err)
		f.send(sess.Conn, ResultMessage{Type: TypeCreateDocument, Error: err.Error(), Timestamp: time.Now().UnixMilli()})
		return
	}
	f.engine.InitializeEditor(docID, "")
	_ = f.registry.Subscribe(sessionID, docID)
	f.send(sess.Conn, ResultMessage{Type: TypeCreateDocument, DocumentID: docID, Timestamp: time.Now().UnixMilli()})
}

// handleJoinDocument resolves payload.Title (if given) or uses
// payload.DocumentID directly, initializes engine state if needed, and
// subscribes the caller. Grounded on conn.go's "joinDocument" case.
func (f *Fabric) handleJoinDocument(sessionID string, msg InboundMessage) {
	sess, ok := f.registry.Get(sessionID)
	if !ok {
		return
	}
	var payload JoinDocumentPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || (payload.Title == "" && payload.DocumentID == "") {
		f.logInvalid(sessionID, fmt.Errorf("malformed joinDocument payload: %w", model.ErrInvalidMessage))
		return
	}

	docID := payload.DocumentID
	if docID == "" {
		if f.resolver == nil {
			f.send(sess.Conn, ResultMessage{Type: TypeJoinDocument, Error: "document resolver not configured", Timestamp: time.Now().UnixMilli()})
			return
		}
		resolved, err := f.resolver.ResolveDocumentID(context.Background(), payload.Title)
		if err != nil {
			f.logger.Printf("session: resolve document %q failed: %v", payload.Title, err)
			f.send(sess.Conn, ResultMessage{Type: TypeJoinDocument, Error: err.Error(), Timestamp: time.Now().UnixMilli()})
			return
		}
		docID = resolved
	}

	f.engine.InitializeEditor(docID, "")
	if err := f.registry.Subscribe(sessionID, docID); err != nil {
		f.logger.Printf("session: %v", err)
		return
	}
	f.send(sess.Conn, ResultMessage{Type: TypeJoinDocument, DocumentID: docID, Timestamp: time.Now().UnixMilli()})
}

// handleSaveDocument snapshots current engine content for a document
// and, if a SnapshotStore is configured, persists it. Grounded on
// conn.go's "saveDocument" case.
func (f *Fabric) handleSaveDocument(sessionID string, msg InboundMessage) {
	sess, ok := f.registry.Get(sessionID)
	if !ok {
		return
	}
	var payload DocumentPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.DocumentID == "" {
		f.logInvalid(sessionID, fmt.Errorf("malformed saveDocument payload: %w", model.ErrInvalidMessage))
		return
	}

	snap, err := f.engine.CreateSnapshot(payload.DocumentID, sess.UserID)
	if err != nil {
		f.logger.Printf("session: save document %q failed: %v", payload.DocumentID, err)
		f.send(sess.Conn, ResultMessage{Type: TypeSaveDocument, DocumentID: payload.DocumentID, Error: err.Error(), Timestamp: time.Now().UnixMilli()})
		return
	}
	if f.snapshots != nil {
		if err := f.snapshots.SaveSnapshot(context.Background(), payload.DocumentID, snap); err != nil {
			f.logger.Printf("session: persist snapshot for document %q failed: %v", payload.DocumentID, err)
		}
	}
	f.send(sess.Conn, ResultMessage{Type: TypeSaveDocument, DocumentID: payload.DocumentID, Version: snap.Version, Timestamp: time.Now().UnixMilli()})
}

// handleLoadDocumentContent replies with the engine's current content
// and version for a document. Grounded on conn.go's
// "loadDocumentContent" case.
func (f *Fabric) handleLoadDocumentContent(sessionID string, msg InboundMessage) {
	sess, ok := f.registry.Get(sessionID)
	if !ok {
		return
	}
	var payload DocumentPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.DocumentID == "" {
		f.logInvalid(sessionID, fmt.Errorf("malformed loadDocumentContent payload: %w", model.ErrInvalidMessage))
		return
	}

	content, err := f.engine.GetEditorContent(payload.DocumentID)
	if err != nil {
		f.logger.Printf("session: load document %q failed: %v", payload.DocumentID, err)
		f.send(sess.Conn, ResultMessage{Type: TypeLoadDocumentContent, DocumentID: payload.DocumentID, Error: err.Error(), Timestamp: time.Now().UnixMilli()})
		return
	}
	version, _ := f.engine.GetVersion(payload.DocumentID)
	f.send(sess.Conn, ResultMessage{Type: TypeLoadDocumentContent, DocumentID: payload.DocumentID, Content: content, Version: version, Timestamp: time.Now().UnixMilli()})
}

// Broadcast fans payload out to every session subscribed to documentID
// except excludeSessionID (pass "" to exclude none). Per-send transport
// failures are logged and never abort the fan-out.
func (f *Fabric) Broadcast(documentID string, payload interface{}, excludeSessionID string) {
	b, err := json.Marshal(payload)
	if err != nil {
		f.logger.Printf("session: marshal broadcast for document=%s: %v", documentID, err)
		return
	}
	for _, sessionID := range f.registry.SessionsForDocument(documentID) {
		if sessionID == excludeSessionID {
			continue
		}
		sess, ok := f.registry.Get(sessionID)
		if !ok || !sess.Conn.IsOpen() {
			continue
		}
		if err := sess.Conn.Send(b); err != nil {
			f.logger.Printf("session: send to session=%s failed: %v", sessionID, err)
		}
	}
}

func (f *Fabric) send(conn Connection, payload interface{}) {
	b, err := json.Marshal(payload)
	if err != nil {
		f.logger.Printf("session: marshal outbound frame: %v", err)
		return
	}
	if err := conn.Send(b); err != nil {
		f.logger.Printf("session: send outbound frame: %v", err)
	}
}

func (f *Fabric) logInvalid(sessionID string, err error) {
	f.logger.Printf("session: invalid frame from session=%s: %v", sessionID, err)
}

// StartHeartbeat launches the periodic liveness sweep in a background
// goroutine. Each tick: sessions that didn't answer the previous tick
// (isAlive==false) are closed with reason "Heartbeat timeout"; every
// other session is flipped to isAlive==false and sent a heartbeat
// frame, awaiting the next inbound heartbeat or pong to flip it back.
func (f *Fabric) StartHeartbeat() {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ticker := time.NewTicker(f.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-f.stop:
				return
			case <-ticker.C:
				f.heartbeatTick()
			}
		}
	}()
}

func (f *Fabric) heartbeatTick() {
	var dead []string
	for _, sess := range f.registry.All() {
		sess.mu.Lock()
		alive := sess.isAlive
		if alive {
			sess.isAlive = false
		}
		sess.mu.Unlock()

		if !alive {
			dead = append(dead, sess.ID)
			continue
		}
		f.send(sess.Conn, HeartbeatMessage{Type: TypeHeartbeat, Timestamp: time.Now().UnixMilli()})
	}
	for _, id := range dead {
		f.UnregisterSession(id, "Heartbeat timeout")
	}
}

// Shutdown stops the heartbeat tick, closes every transport with
// code 1000 reason "Server shutdown", and clears the registry and
// every rate-limit bucket.
func (f *Fabric) Shutdown() {
	f.stopped.Do(func() { close(f.stop) })
	f.wg.Wait()

	if f.unsubscribeBus != nil {
		f.unsubscribeBus()
	}

	for _, sess := range f.registry.All() {
		if err := sess.Conn.Close(1000, "Server shutdown"); err != nil {
			f.logger.Printf("session: close error for session=%s: %v", sess.ID, err)
		}
	}
	f.registry.Clear()
	f.limiter.ClearAllLimits()
}
