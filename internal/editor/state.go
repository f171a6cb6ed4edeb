// Package editor implements EditorState: the content buffer itself,
// the mode gate that can take an editor offline or read-only, and the
// undo/redo stacks.
package editor

import (
	"fmt"

	"collabcore/internal/model"
)

// Mode gates whether Apply is permitted.
type Mode string

const (
	ModeActive       Mode = "active"
	ModeReadOnly     Mode = "read_only"
	ModeDisconnected Mode = "disconnected"
)

type undoEntry struct {
	forward model.Operation
	inverse model.Operation
}

// State holds one editor's content buffer, mode, and undo/redo history.
// Position is a byte offset into content: content is spliced with raw
// string slicing, never rune-aware slicing, so callers must measure
// positions the same way.
type State struct {
	content string
	mode    Mode
	version int

	undo []undoEntry
	redo []undoEntry
}

// New returns a State seeded with initial content, mode Active, version 0.
func New(initial string) *State {
	return &State{content: initial, mode: ModeActive}
}

func (s *State) Content() string { return s.content }
func (s *State) Version() int    { return s.version }
func (s *State) Mode() Mode      { return s.mode }

// SetMode transitions the editor's mode. Transitions are unrestricted:
// any mode may follow any mode.
func (s *State) SetMode(m Mode) { s.mode = m }

// Apply splices op into the content buffer, advances the version
// counter, and clears the redo stack. Both EditorState and the
// collaboration engine one layer up enforce the mode gate.
func (s *State) Apply(op model.Operation) error {
	if s.mode == ModeDisconnected {
		return fmt.Errorf("apply on disconnected editor: %w", model.ErrOperationApply)
	}
	if s.mode == ModeReadOnly {
		return fmt.Errorf("apply on read-only editor: %w", model.ErrOperationApply)
	}

	inverse, err := s.spliceForOp(op)
	if err != nil {
		return err
	}

	if op.Version+1 > s.version {
		s.version = op.Version + 1
	}
	s.undo = append(s.undo, undoEntry{forward: op, inverse: inverse})
	s.redo = nil
	return nil
}

// spliceForOp performs the bounds-checked buffer mutation for op and
// returns the operation that would undo it.
func (s *State) spliceForOp(op model.Operation) (model.Operation, error) {
	switch op.Type {
	case model.OpInsert:
		if op.Position < 0 || op.Position > len(s.content) {
			return model.Operation{}, fmt.Errorf("insert position %d out of bounds [0,%d]: %w", op.Position, len(s.content), model.ErrInvalidCursorPosition)
		}
		s.content = s.content[:op.Position] + op.Content + s.content[op.Position:]
		inverse := model.Operation{
			Type:     model.OpDelete,
			Position: op.Position,
			Length:   len(op.Content),
			ClientID: op.ClientID,
			Version:  op.Version,
		}
		return inverse, nil
	case model.OpDelete:
		end := op.Position + op.Length
		if op.Position < 0 || end < op.Position || end > len(s.content) {
			return model.Operation{}, fmt.Errorf("delete range [%d,%d) out of bounds [0,%d]: %w", op.Position, end, len(s.content), model.ErrInvalidCursorPosition)
		}
		removed := s.content[op.Position:end]
		s.content = s.content[:op.Position] + s.content[end:]
		inverse := model.Operation{
			Type:     model.OpInsert,
			Position: op.Position,
			Content:  removed,
			ClientID: op.ClientID,
			Version:  op.Version,
		}
		return inverse, nil
	default:
		return model.Operation{}, fmt.Errorf("unknown operation type %q: %w", op.Type, model.ErrOperationApply)
	}
}

// SetContent wipes undo/redo and version, replacing the buffer outright.
func (s *State) SetContent(content string) {
	s.content = content
	s.version = 0
	s.undo = nil
	s.redo = nil
}

// Reset returns the editor to its initial state: mode Active, empty
// content, version 0, no undo/redo history.
func (s *State) Reset() {
	s.content = ""
	s.version = 0
	s.mode = ModeActive
	s.undo = nil
	s.redo = nil
}

// Undo reverts the most recently applied operation, if any, and returns
// whether it did so.
func (s *State) Undo() bool {
	if len(s.undo) == 0 {
		return false
	}
	entry := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	// Undo is a local, unversioned correction: it bypasses the mode gate
	// check already performed by the caller's surrounding Apply-like
	// flow is not applicable here, so apply the splice directly.
	if _, err := s.spliceForOp(entry.inverse); err != nil {
		// Buffer has diverged since the entry was recorded (e.g. a
		// concurrent remote edit); drop the stale entry rather than
		// corrupt state.
		return false
	}
	s.redo = append(s.redo, entry)
	return true
}

// Redo reapplies the most recently undone operation, if any.
func (s *State) Redo() bool {
	if len(s.redo) == 0 {
		return false
	}
	entry := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	if _, err := s.spliceForOp(entry.forward); err != nil {
		return false
	}
	s.undo = append(s.undo, entry)
	return true
}
