// Package cursor implements CursorTracker: the per-editor registry of
// remote users and the cursor/selection transform that keeps their
// positions consistent as operations land.
package cursor

import (
	"fmt"
	"time"

	"collabcore/internal/model"
)

// Tracker holds one editor's remote-user registry.
type Tracker struct {
	users map[string]*model.RemoteUser
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{users: make(map[string]*model.RemoteUser)}
}

// AddUser registers or overwrites a remote user.
func (t *Tracker) AddUser(u model.RemoteUser) {
	u.LastSeen = time.Now()
	t.users[u.ID] = &u
}

// RemoveUser deletes a remote user, if present.
func (t *Tracker) RemoveUser(userID string) {
	delete(t.users, userID)
}

// Get returns the remote user, if present.
func (t *Tracker) Get(userID string) (model.RemoteUser, bool) {
	u, ok := t.users[userID]
	if !ok {
		return model.RemoteUser{}, false
	}
	return *u, true
}

// UpdateCursor sets userID's cursor and selection and bumps LastSeen.
// It returns ErrInvalidCursorPosition if cursor/selection coordinates
// are negative.
func (t *Tracker) UpdateCursor(userID string, c model.Cursor, sel *model.Selection) error {
	u, ok := t.users[userID]
	if !ok {
		return fmt.Errorf("update cursor for unknown user %q: %w", userID, model.ErrInvalidCursorPosition)
	}
	if err := validateCursor(c); err != nil {
		return err
	}
	if sel != nil {
		if err := validateCursor(sel.Start); err != nil {
			return err
		}
		if err := validateCursor(sel.End); err != nil {
			return err
		}
	}
	u.Cursor = &c
	u.Selection = sel
	u.LastSeen = time.Now()
	return nil
}

func validateCursor(c model.Cursor) error {
	if c.Line < 0 || c.Column < 0 {
		return fmt.Errorf("cursor %+v has negative coordinate: %w", c, model.ErrInvalidCursorPosition)
	}
	return nil
}

// GetActiveUsers returns every remote user with IsActive == true.
func (t *Tracker) GetActiveUsers() []model.RemoteUser {
	out := make([]model.RemoteUser, 0, len(t.users))
	for _, u := range t.users {
		if u.IsActive {
			out = append(out, *u)
		}
	}
	return out
}

// GetAllUsers returns every registered remote user, active or not.
func (t *Tracker) GetAllUsers() []model.RemoteUser {
	out := make([]model.RemoteUser, 0, len(t.users))
	for _, u := range t.users {
		out = append(out, *u)
	}
	return out
}

// SetActive flips a user's IsActive flag.
func (t *Tracker) SetActive(userID string, active bool) {
	if u, ok := t.users[userID]; ok {
		u.IsActive = active
	}
}

// TransformAll shifts every registered user's cursor and selection by op,
// the way a remote insert/delete displaces text already on screen for
// everyone who didn't author it. Called by the engine right after an
// operation is applied, before the op's own author's entry (if tracked)
// — callers skip that id by passing authorID.
func (t *Tracker) TransformAll(op model.Operation, authorID string) {
	for id, u := range t.users {
		if id == authorID {
			continue
		}
		if u.Cursor != nil {
			c := TransformForOperation(*u.Cursor, op)
			u.Cursor = &c
		}
		if u.Selection != nil {
			start := TransformForOperation(u.Selection.Start, op)
			end := TransformForOperation(u.Selection.End, op)
			u.Selection = &model.Selection{Start: start, End: end}
		}
	}
}

// TransformForOperation applies the same flat-offset arithmetic as the
// ot package's insert/delete-vs-insert/delete branches, but to a
// cursor's column — treating line as always 0, since the source this
// engine is grounded on never did line/column-aware OT math. A
// documented limitation, not a bug; see DESIGN.md.
func TransformForOperation(c model.Cursor, op model.Operation) model.Cursor {
	result := c
	switch op.Type {
	case model.OpInsert:
		switch {
		case c.Column < op.Position:
			// unchanged
		default:
			result.Column = c.Column + len(op.Content)
		}
	case model.OpDelete:
		end := op.Position + op.Length
		switch {
		case c.Column <= op.Position:
			// unchanged
		case c.Column >= end:
			result.Column = c.Column - op.Length
		default:
			result.Column = op.Position
		}
	}
	if result.Column < 0 {
		result.Column = 0
	}
	return result
}
