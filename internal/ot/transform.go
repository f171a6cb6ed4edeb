// Package ot implements the pure operational-transformation functions:
// transforming one flat-offset operation against another so concurrent
// edits converge (TP1), and a best-effort compose for adjacent
// same-client operations.
//
// Grounded on the character-offset OT shape in shiftregister-vg-gopad's
// ot.go, generalized to the full four-case matrix (insert/insert,
// insert/delete, delete/insert, delete/delete) and a clientId
// tie-break.
package ot

import (
	"fmt"

	"collabcore/internal/model"
)

// Transform computes the form of op as if against had already been
// applied to the same base content. It never mutates its arguments.
func Transform(op, against model.Operation) (model.Operation, error) {
	result := op
	var err error

	switch {
	case op.Type == model.OpInsert && against.Type == model.OpInsert:
		result, err = transformInsertInsert(op, against)
	case op.Type == model.OpInsert && against.Type == model.OpDelete:
		result, err = transformInsertDelete(op, against)
	case op.Type == model.OpDelete && against.Type == model.OpInsert:
		result, err = transformDeleteInsert(op, against)
	case op.Type == model.OpDelete && against.Type == model.OpDelete:
		result, err = transformDeleteDelete(op, against)
	default:
		err = fmt.Errorf("ot: unknown operation type pair (%s, %s): %w", op.Type, against.Type, model.ErrOperationTransform)
	}
	if err != nil {
		return model.Operation{}, err
	}
	if result.Position < 0 || result.Length < 0 {
		return model.Operation{}, fmt.Errorf("ot: transform produced negative position/length for op %q against %q: %w", op.ID, against.ID, model.ErrOperationTransform)
	}
	return result, nil
}

func transformInsertInsert(op, against model.Operation) (model.Operation, error) {
	result := op
	switch {
	case op.Position < against.Position:
		// unchanged
	case op.Position > against.Position:
		result.Position += len(against.Content)
	default:
		// Tie at the same offset: the lexicographically smaller clientId
		// keeps its position; the other operation shifts right. Both
		// sides of a transform must use this same comparison or they
		// diverge.
		if op.ClientID < against.ClientID {
			// op wins, stays put
		} else {
			result.Position += len(against.Content)
		}
	}
	return result, nil
}

func transformInsertDelete(op, against model.Operation) (model.Operation, error) {
	result := op
	deleteEnd := against.Position + against.Length
	switch {
	case op.Position <= against.Position:
		// unchanged
	case op.Position >= deleteEnd:
		result.Position -= against.Length
	default:
		// op.Position falls inside the deleted range.
		result.Position = against.Position
	}
	return result, nil
}

func transformDeleteInsert(op, against model.Operation) (model.Operation, error) {
	result := op
	opStart := op.Position
	opEnd := op.Position + op.Length
	insLen := len(against.Content)
	switch {
	case opEnd <= against.Position:
		// unchanged
	case opStart >= against.Position:
		result.Position += insLen
	default:
		// against.Position falls inside [opStart, opEnd): the insert
		// widens the span being deleted.
		result.Length += insLen
	}
	return result, nil
}

func transformDeleteDelete(op, against model.Operation) (model.Operation, error) {
	result := op
	opStart := op.Position
	opEnd := op.Position + op.Length
	againstStart := against.Position
	againstEnd := against.Position + against.Length

	switch {
	case opEnd <= againstStart:
		// disjoint, op entirely before against: unchanged
	case opStart >= againstEnd:
		// disjoint, op entirely after against: shift left
		result.Position -= against.Length
	case opStart <= againstStart && opEnd >= againstEnd:
		// op fully contains against
		result.Length -= against.Length
	case opStart >= againstStart && opEnd <= againstEnd:
		// op fully contained in against: becomes a no-op
		result.Position = against.Position
		result.Length = 0
	case opStart < againstStart:
		// left overlap: op starts before against, ends inside it
		result.Length -= opEnd - againstStart
	default:
		// right overlap: op starts inside against, ends after it
		result.Position = against.Position
		result.Length -= againstEnd - opStart
	}
	return result, nil
}

// TransformAgainstMany folds Transform left-to-right over a history of
// prior operations.
func TransformAgainstMany(op model.Operation, against []model.Operation) (model.Operation, error) {
	result := op
	for _, a := range against {
		var err error
		result, err = Transform(result, a)
		if err != nil {
			return model.Operation{}, err
		}
	}
	return result, nil
}

// Compose attempts to merge two adjacent same-client operations into
// one (e.g. two keystrokes typed in sequence). Non-essential to
// correctness; may be left as identity on any input it doesn't
// recognize. This implementation only merges two inserts where b starts
// exactly where a's content ends.
func Compose(a, b model.Operation) (model.Operation, bool) {
	if a.ClientID != b.ClientID {
		return model.Operation{}, false
	}
	if a.Type == model.OpInsert && b.Type == model.OpInsert && b.Position == a.Position+len(a.Content) {
		merged := a
		merged.Content = a.Content + b.Content
		merged.Version = b.Version
		return merged, true
	}
	return model.Operation{}, false
}
