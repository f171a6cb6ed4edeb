// Package history implements OperationHistory: an append-only log of
// applied operations plus the monotonic version counter that is the
// editor's single source of truth for ordering.
//
// Grounded on the corpus's opsRing in gateway/collab/service.go, but
// unbounded and append-only rather than a fixed-capacity ring — the
// core spec has no retention budget, so trimming is left to callers via
// rebase.
package history

import (
	"time"

	"collabcore/internal/model"
)

// Snapshot is a deep-copied view of the history at a point in time.
type Snapshot struct {
	Operations []model.Operation
	Version    int
	Timestamp  time.Time
}

// History is the append-only per-editor operation log.
type History struct {
	ops     []model.Operation
	version int
}

// New returns an empty history at version 0.
func New() *History {
	return &History{}
}

// Version returns the current version: the count of applied operations.
func (h *History) Version() int {
	return h.version
}

// Append pushes op onto the log and advances the version counter.
// Callers must have already validated op.Version == h.Version() before
// calling; Append does not re-check.
func (h *History) Append(op model.Operation) {
	h.ops = append(h.ops, op)
	if op.Version+1 > h.version {
		h.version = op.Version + 1
	}
}

// SinceVersion returns every operation with Version >= v, in history
// order.
func (h *History) SinceVersion(v int) []model.Operation {
	out := make([]model.Operation, 0)
	for _, op := range h.ops {
		if op.Version >= v {
			out = append(out, op)
		}
	}
	return out
}

// Between returns every operation with Version in [a, b).
func (h *History) Between(a, b int) []model.Operation {
	out := make([]model.Operation, 0)
	for _, op := range h.ops {
		if op.Version >= a && op.Version < b {
			out = append(out, op)
		}
	}
	return out
}

// ByClient returns every operation authored by clientID, in history
// order.
func (h *History) ByClient(clientID string) []model.Operation {
	out := make([]model.Operation, 0)
	for _, op := range h.ops {
		if op.ClientID == clientID {
			out = append(out, op)
		}
	}
	return out
}

// Snapshot returns a deep-copied view of the current log and version.
func (h *History) Snapshot() Snapshot {
	ops := make([]model.Operation, len(h.ops))
	copy(ops, h.ops)
	return Snapshot{Operations: ops, Version: h.version, Timestamp: time.Now()}
}

// Rebase retains every operation with Version < fromVersion, appends
// newOps, and sets the version counter to toVersion. Intended for
// recovery after server-authoritative reordering.
func (h *History) Rebase(fromVersion, toVersion int, newOps []model.Operation) {
	retained := make([]model.Operation, 0, len(h.ops)+len(newOps))
	for _, op := range h.ops {
		if op.Version < fromVersion {
			retained = append(retained, op)
		}
	}
	retained = append(retained, newOps...)
	h.ops = retained
	h.version = toVersion
}

// Clear resets the history to empty, version 0.
func (h *History) Clear() {
	h.ops = nil
	h.version = 0
}
