// Package engine implements CollaborationEngine: the orchestrator that
// owns one OperationHistory + EditorState + CursorTracker +
// pending-timer table per editorId, emits domain events, and schedules
// debounced cursor broadcasts.
//
// Each editor's state is guarded by its own mutex rather than a
// dedicated goroutine/channel actor: either a single event loop or
// per-editor fine-grained mutual exclusion gives the same
// total-ordering guarantee, and a plain mutex is less machinery — the
// shape every state-holding type in the reference corpus uses
// (docState.mu in gateway/backend/internal/collab/service.go).
package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"collabcore/internal/cursor"
	"collabcore/internal/editor"
	"collabcore/internal/eventbus"
	"collabcore/internal/history"
	"collabcore/internal/idgen"
	"collabcore/internal/model"
	"collabcore/internal/ot"
)

// DefaultCursorBroadcastInterval is the default debounce window;
// callers may configure anywhere in [50,100]ms.
const DefaultCursorBroadcastInterval = 75 * time.Millisecond

const (
	MinCursorBroadcastInterval = 50 * time.Millisecond
	MaxCursorBroadcastInterval = 100 * time.Millisecond
)

type editorEntry struct {
	mu       sync.Mutex
	state    *editor.State
	history  *history.History
	tracker  *cursor.Tracker
	snapshot *model.EditorSnapshot
}

func newEditorEntry(content string) *editorEntry {
	return &editorEntry{
		state:   editor.New(content),
		history: history.New(),
		tracker: cursor.New(),
	}
}

// Engine is the CollaborationEngine.
type Engine struct {
	mu      sync.RWMutex
	editors map[string]*editorEntry

	timersMu sync.Mutex
	timers   map[string]*time.Timer

	bus            eventbus.EventBus
	ids            idgen.Generator
	cursorInterval time.Duration
	logger         *log.Logger
}

// Options configures an Engine. Zero fields fall back to defaults.
type Options struct {
	EventBus               eventbus.EventBus
	IDGenerator            idgen.Generator
	CursorBroadcastInterval time.Duration
	Logger                 *log.Logger
}

// New constructs an Engine. A nil EventBus/IDGenerator/Logger in opts is
// replaced with a working default so the engine never needs nil checks
// on its hot path.
func New(opts Options) *Engine {
	interval := opts.CursorBroadcastInterval
	if interval < MinCursorBroadcastInterval || interval > MaxCursorBroadcastInterval {
		interval = DefaultCursorBroadcastInterval
	}
	bus := opts.EventBus
	if bus == nil {
		bus = eventbus.NewInMemory()
	}
	ids := opts.IDGenerator
	if ids == nil {
		ids = idgen.UUIDv7Generator{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		editors:        make(map[string]*editorEntry),
		timers:         make(map[string]*time.Timer),
		bus:            bus,
		ids:            ids,
		cursorInterval: interval,
		logger:         logger,
	}
}

func (e *Engine) publish(editorID string, typ model.EventType, payload interface{}) {
	e.bus.Publish(context.Background(), model.Event{
		Type:      typ,
		EditorID:  editorID,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

// getEntry returns the editor's entry without creating it.
func (e *Engine) getEntry(editorID string) (*editorEntry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.editors[editorID]
	return entry, ok
}

func (e *Engine) requireEntry(editorID string) (*editorEntry, error) {
	entry, ok := e.getEntry(editorID)
	if !ok {
		return nil, fmt.Errorf("editor %q: %w", editorID, model.ErrCollaborationDisabled)
	}
	return entry, nil
}

// InitializeEditor lazily creates editor state for editorID. It is
// idempotent: calling it again on an already-initialized editor has no
// effect, even if a different initial content is passed.
func (e *Engine) InitializeEditor(editorID string, content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.editors[editorID]; ok {
		return
	}
	e.editors[editorID] = newEditorEntry(content)
}

// ApplyOperation applies op to editorID's content buffer.
// Preconditions: the editor must exist, its mode must be Active, and
// op.Version must equal the history's current version.
func (e *Engine) ApplyOperation(editorID string, op model.Operation) (model.Operation, error) {
	entry, err := e.requireEntry(editorID)
	if err != nil {
		return model.Operation{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.state.Mode() != editor.ModeActive {
		return model.Operation{}, fmt.Errorf("editor %q is not active: %w", editorID, model.ErrOperationApply)
	}
	if op.Version != entry.history.Version() {
		return model.Operation{}, fmt.Errorf("editor %q: op base version %d != history version %d: %w",
			editorID, op.Version, entry.history.Version(), model.ErrVersionConflict)
	}

	op = e.withDefaults(op)
	if err := entry.state.Apply(op); err != nil {
		return model.Operation{}, err
	}
	entry.history.Append(op)
	entry.tracker.TransformAll(op, op.ClientID)

	e.publish(editorID, model.EventOperationApplied, model.OperationAppliedPayload{
		Operation: op,
		Version:   entry.history.Version(),
	})
	return op, nil
}

// ApplyOperationBatch applies every operation in batch, in order.
// Preconditions: batch.BaseVersion must equal the history's current
// version, and len(batch.Operations) must be in [MinBatchSize,
// MaxBatchSize]. Both are validated before any operation is applied. If
// an operation mid-batch fails, prior operations in the batch remain
// applied — documented, intentional non-atomicity (see DESIGN.md) —
// and the batch-received event is never emitted.
//
// Each operation's Version is set to the server's current history
// version immediately before it is applied, overriding whatever the
// client supplied: batch members are authored locally against a single
// base and are not expected to carry individually-correct server
// versions (see DESIGN.md).
func (e *Engine) ApplyOperationBatch(editorID string, batch model.OperationBatch) ([]model.Operation, error) {
	entry, err := e.requireEntry(editorID)
	if err != nil {
		return nil, err
	}

	if len(batch.Operations) < model.MinBatchSize || len(batch.Operations) > model.MaxBatchSize {
		return nil, fmt.Errorf("batch size %d outside [%d,%d]: %w",
			len(batch.Operations), model.MinBatchSize, model.MaxBatchSize, model.ErrOperationBatchValidation)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if batch.BaseVersion != entry.history.Version() {
		return nil, fmt.Errorf("editor %q: batch base version %d != history version %d: %w",
			editorID, batch.BaseVersion, entry.history.Version(), model.ErrVersionConflict)
	}
	if entry.state.Mode() != editor.ModeActive {
		return nil, fmt.Errorf("editor %q is not active: %w", editorID, model.ErrOperationApply)
	}

	applied := make([]model.Operation, 0, len(batch.Operations))
	for _, op := range batch.Operations {
		op.Version = entry.history.Version()
		op = e.withDefaults(op)
		if batch.ClientID != "" {
			op.ClientID = batch.ClientID
		}
		if err := entry.state.Apply(op); err != nil {
			return applied, err
		}
		entry.history.Append(op)
		entry.tracker.TransformAll(op, op.ClientID)
		applied = append(applied, op)
	}

	e.publish(editorID, model.EventOperationBatchReceived, model.OperationBatchReceivedPayload{
		BatchID:        nonEmpty(batch.ID, e.ids.NewID()),
		ClientID:       batch.ClientID,
		BaseVersion:    batch.BaseVersion,
		Version:        entry.history.Version(),
		OperationCount: len(applied),
	})
	return applied, nil
}

// TransformOperation folds Transform over against, skipping any entry
// authored by the same clientId as op (transform is identity against
// one's own operations). If against is nil,
// it defaults to every history entry at or after op.Version, when
// editorID names an existing editor. An OperationConflictEvent is
// emitted whenever the transformed operation differs from the input in
// Position, Length, or Content.
func (e *Engine) TransformOperation(editorID string, op model.Operation, against []model.Operation) (model.Operation, error) {
	if against == nil {
		if entry, ok := e.getEntry(editorID); ok {
			entry.mu.Lock()
			against = entry.history.SinceVersion(op.Version)
			entry.mu.Unlock()
		}
	}

	filtered := make([]model.Operation, 0, len(against))
	for _, a := range against {
		if a.ClientID == op.ClientID {
			continue
		}
		filtered = append(filtered, a)
	}

	result, err := ot.TransformAgainstMany(op, filtered)
	if err != nil {
		return model.Operation{}, err
	}

	if result.Position != op.Position || result.Length != op.Length || result.Content != op.Content {
		e.publish(editorID, model.EventOperationConflict, model.OperationConflictPayload{
			Original:    op,
			Transformed: result,
		})
	}
	return result, nil
}

// AddRemoteUser registers user in editorID's CursorTracker.
func (e *Engine) AddRemoteUser(editorID string, user model.RemoteUser) error {
	entry, err := e.requireEntry(editorID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	entry.tracker.AddUser(user)
	entry.mu.Unlock()

	e.publish(editorID, model.EventRemoteUserConnected, model.RemoteUserConnectedPayload{User: user})
	return nil
}

// RemoveRemoteUser deregisters userID from editorID's CursorTracker.
func (e *Engine) RemoveRemoteUser(editorID, userID string) error {
	entry, err := e.requireEntry(editorID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	entry.tracker.RemoveUser(userID)
	entry.mu.Unlock()

	e.publish(editorID, model.EventRemoteUserDisconnected, model.RemoteUserDisconnectedPayload{UserID: userID})
	return nil
}

// UpdateRemoteUserCursor validates and stores userID's new cursor and
// selection. The user must already be registered via AddRemoteUser.
func (e *Engine) UpdateRemoteUserCursor(editorID, userID string, c model.Cursor, sel *model.Selection) error {
	entry, err := e.requireEntry(editorID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	err = entry.tracker.UpdateCursor(userID, c, sel)
	entry.mu.Unlock()
	if err != nil {
		return err
	}

	e.publish(editorID, model.EventCursorUpdated, model.CursorUpdatedPayload{
		UserID:    userID,
		Cursor:    c,
		Selection: sel,
	})
	return nil
}

// CreateSnapshot captures editorID's current content and version and
// stores it as the editor's sole current snapshot.
func (e *Engine) CreateSnapshot(editorID, clientID string) (model.EditorSnapshot, error) {
	entry, err := e.requireEntry(editorID)
	if err != nil {
		return model.EditorSnapshot{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	snap := model.EditorSnapshot{
		ID:        e.ids.NewID(),
		Content:   entry.state.Content(),
		Version:   entry.history.Version(),
		Timestamp: time.Now(),
		ClientID:  clientID,
	}
	entry.snapshot = &snap
	return snap, nil
}

// GetSnapshot returns editorID's current stored snapshot, if any.
func (e *Engine) GetSnapshot(editorID string) (model.EditorSnapshot, bool, error) {
	entry, err := e.requireEntry(editorID)
	if err != nil {
		return model.EditorSnapshot{}, false, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.snapshot == nil {
		return model.EditorSnapshot{}, false, nil
	}
	return *entry.snapshot, true, nil
}

// GetEditorContent returns editorID's current buffer content.
func (e *Engine) GetEditorContent(editorID string) (string, error) {
	entry, err := e.requireEntry(editorID)
	if err != nil {
		return "", err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.state.Content(), nil
}

// GetVersion returns editorID's current history version.
func (e *Engine) GetVersion(editorID string) (int, error) {
	entry, err := e.requireEntry(editorID)
	if err != nil {
		return 0, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.history.Version(), nil
}

// OperationsSince returns every operation applied to editorID at or
// after fromVersion, letting a reconnecting session replay what it
// missed.
func (e *Engine) OperationsSince(editorID string, fromVersion int) ([]model.Operation, error) {
	entry, err := e.requireEntry(editorID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.history.SinceVersion(fromVersion), nil
}

// GetActiveRemoteUsers returns editorID's currently-active remote users.
func (e *Engine) GetActiveRemoteUsers(editorID string) ([]model.RemoteUser, error) {
	entry, err := e.requireEntry(editorID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.tracker.GetActiveUsers(), nil
}

// GetRemoteUsers returns every registered remote user for editorID,
// active or not.
func (e *Engine) GetRemoteUsers(editorID string) ([]model.RemoteUser, error) {
	entry, err := e.requireEntry(editorID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.tracker.GetAllUsers(), nil
}

func timerKey(editorID, userID string) string {
	return editorID + "\x00" + userID
}

// ScheduleCursorBroadcast debounces cursor/selection broadcasts per
// (editorID, userID): a pending timer is cancelled and replaced on
// every call. When the replacement timer fires uninterrupted after the
// configured interval, it builds a CursorBroadcast and invokes cb; any
// error cb returns is logged, never propagated.
func (e *Engine) ScheduleCursorBroadcast(editorID, userID string, c model.Cursor, sel *model.Selection, cb func(model.CursorBroadcast) error) {
	key := timerKey(editorID, userID)

	e.timersMu.Lock()
	if existing, ok := e.timers[key]; ok {
		existing.Stop()
	}
	e.timers[key] = time.AfterFunc(e.cursorInterval, func() {
		e.timersMu.Lock()
		delete(e.timers, key)
		e.timersMu.Unlock()

		bcast := model.CursorBroadcast{
			ID:        e.ids.NewID(),
			EditorID:  editorID,
			UserID:    userID,
			Cursor:    c,
			Selection: sel,
			Timestamp: time.Now(),
		}
		if err := e.invokeCursorCallback(cb, bcast); err != nil {
			e.logger.Printf("engine: cursor broadcast callback failed for editor=%s user=%s: %v", editorID, userID, err)
		}
	})
	e.timersMu.Unlock()
}

func (e *Engine) invokeCursorCallback(cb func(model.CursorBroadcast) error, bcast model.CursorBroadcast) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return cb(bcast)
}

// ClearCursorBroadcast cancels editorID/userID's pending broadcast
// timer, if any.
func (e *Engine) ClearCursorBroadcast(editorID, userID string) {
	key := timerKey(editorID, userID)
	e.timersMu.Lock()
	defer e.timersMu.Unlock()
	if t, ok := e.timers[key]; ok {
		t.Stop()
		delete(e.timers, key)
	}
}

// Reset clears editorID's content, history, remote users, and snapshot,
// and cancels every pending cursor-broadcast timer for that editor.
func (e *Engine) Reset(editorID string) {
	if entry, ok := e.getEntry(editorID); ok {
		entry.mu.Lock()
		entry.state.Reset()
		entry.history.Clear()
		entry.tracker = cursor.New()
		entry.snapshot = nil
		entry.mu.Unlock()
	}

	prefix := editorID + "\x00"
	e.timersMu.Lock()
	for key, t := range e.timers {
		if strings.HasPrefix(key, prefix) {
			t.Stop()
			delete(e.timers, key)
		}
	}
	e.timersMu.Unlock()
}

// withDefaults fills in an ID and Timestamp for operations that arrive
// without one, so callers (the session fabric) don't each need to.
func (e *Engine) withDefaults(op model.Operation) model.Operation {
	if op.ID == "" {
		op.ID = e.ids.NewID()
	}
	if op.Timestamp.IsZero() {
		op.Timestamp = time.Now()
	}
	return op
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
