// Package session implements the SessionRegistry and SessionFabric:
// the per-connection bookkeeping and message-routing layer sitting
// between a transport (WebSocket, by convention) and the collaboration
// engine. Grounded on
// collab-service/backend/internal/ws/wsmanager.go and
// gateway/backend/internal/ws/hub.go, generalized from their
// doc-room/Conn shape into a transport-agnostic Connection interface.
package session

import (
	"fmt"
	"sync"
	"time"

	"collabcore/internal/model"
)

// Connection is the narrow transport surface the session fabric needs.
// A gorilla/websocket adapter (internal/transport/ws) implements this;
// tests use an in-memory fake.
type Connection interface {
	Send(frame []byte) error
	Close(code int, reason string) error
	IsOpen() bool
}

// Session is one registered connection: its transport, its user, and
// the set of documents it currently subscribes to.
type Session struct {
	ID     string
	UserID string
	Conn   Connection

	mu           sync.Mutex
	subscribed   map[string]struct{}
	isAlive      bool
	lastActivity time.Time
}

func newSession(id, userID string, conn Connection) *Session {
	return &Session{
		ID:           id,
		UserID:       userID,
		Conn:         conn,
		subscribed:   make(map[string]struct{}),
		isAlive:      true,
		lastActivity: time.Now(),
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// MarkAlive answers a heartbeat tick — called both for inbound
// heartbeat frames and transport-level pongs.
func (s *Session) MarkAlive() {
	s.mu.Lock()
	s.isAlive = true
	s.mu.Unlock()
	s.touch()
}

func (s *Session) isSubscribed(documentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subscribed[documentID]
	return ok
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Registry is the SessionRegistry: clients keyed by sessionId, plus a
// reverse documentId -> set-of-sessionId index for fan-out.
type Registry struct {
	mu         sync.RWMutex
	clients    map[string]*Session
	byDocument map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		clients:    make(map[string]*Session),
		byDocument: make(map[string]map[string]struct{}),
	}
}

// Register adds sess to the registry. isAlive starts true; subscriptions
// start empty.
func (r *Registry) Register(sess *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[sess.ID] = sess
}

// Unregister removes sessionID from every document it subscribed to and
// deletes the client entry. The caller is responsible for clearing the
// session's rate-limit bucket.
func (r *Registry) Unregister(sessionID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.clients[sessionID]
	if !ok {
		return nil, false
	}
	delete(r.clients, sessionID)

	for docID, set := range r.byDocument {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.byDocument, docID)
		}
	}
	return sess, true
}

// Get returns sessionID's Session, if registered.
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.clients[sessionID]
	return sess, ok
}

// Subscribe adds documentID to sessionID's subscription set. Idempotent:
// subscribing twice has no additional effect. Returns
// ErrSessionNotFound if the session isn't registered.
func (r *Registry) Subscribe(sessionID, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.clients[sessionID]
	if !ok {
		return fmt.Errorf("subscribe: session %q: %w", sessionID, model.ErrSessionNotFound)
	}

	sess.mu.Lock()
	sess.subscribed[documentID] = struct{}{}
	sess.mu.Unlock()

	set, ok := r.byDocument[documentID]
	if !ok {
		set = make(map[string]struct{})
		r.byDocument[documentID] = set
	}
	set[sessionID] = struct{}{}
	return nil
}

// Unsubscribe removes documentID from sessionID's subscription set.
// Silent if either the session or the subscription is absent.
func (r *Registry) Unsubscribe(sessionID, documentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.clients[sessionID]; ok {
		sess.mu.Lock()
		delete(sess.subscribed, documentID)
		sess.mu.Unlock()
	}
	if set, ok := r.byDocument[documentID]; ok {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.byDocument, documentID)
		}
	}
}

// SessionsForDocument returns every sessionId currently subscribed to
// documentID.
func (r *Registry) SessionsForDocument(documentID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byDocument[documentID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// All returns every registered session.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.clients))
	for _, sess := range r.clients {
		out = append(out, sess)
	}
	return out
}

// Clear drops every client and document-subscription entry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = make(map[string]*Session)
	r.byDocument = make(map[string]map[string]struct{})
}
