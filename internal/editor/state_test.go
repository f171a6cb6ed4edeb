package editor

import (
	"errors"
	"testing"

	"collabcore/internal/model"
)

func TestApplyInsert(t *testing.T) {
	s := New("Hello")
	err := s.Apply(model.Operation{Type: model.OpInsert, Position: 5, Content: " World", Version: 0, ClientID: "c1"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if s.Content() != "Hello World" {
		t.Errorf("content = %q, want %q", s.Content(), "Hello World")
	}
	if s.Version() != 1 {
		t.Errorf("version = %d, want 1", s.Version())
	}
}

func TestApplyDelete(t *testing.T) {
	s := New("Hello World")
	err := s.Apply(model.Operation{Type: model.OpDelete, Position: 5, Length: 6, Version: 0, ClientID: "c1"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if s.Content() != "Hello" {
		t.Errorf("content = %q, want %q", s.Content(), "Hello")
	}
	if s.Version() != 1 {
		t.Errorf("version = %d, want 1", s.Version())
	}
}

func TestApplyRejectsOutOfBounds(t *testing.T) {
	s := New("hi")
	err := s.Apply(model.Operation{Type: model.OpInsert, Position: 99, Content: "x"})
	if !errors.Is(err, model.ErrInvalidCursorPosition) {
		t.Fatalf("err = %v, want ErrInvalidCursorPosition", err)
	}
}

func TestApplyRejectedWhenDisconnected(t *testing.T) {
	s := New("hi")
	s.SetMode(ModeDisconnected)
	err := s.Apply(model.Operation{Type: model.OpInsert, Position: 0, Content: "x"})
	if !errors.Is(err, model.ErrOperationApply) {
		t.Fatalf("err = %v, want ErrOperationApply", err)
	}
}

func TestUndoRedo(t *testing.T) {
	s := New("ab")
	if err := s.Apply(model.Operation{Type: model.OpInsert, Position: 2, Content: "cd"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if s.Content() != "abcd" {
		t.Fatalf("content = %q", s.Content())
	}
	if !s.Undo() {
		t.Fatal("expected undo to succeed")
	}
	if s.Content() != "ab" {
		t.Errorf("content after undo = %q, want ab", s.Content())
	}
	if !s.Redo() {
		t.Fatal("expected redo to succeed")
	}
	if s.Content() != "abcd" {
		t.Errorf("content after redo = %q, want abcd", s.Content())
	}
}

func TestUndoOnEmptyStackReturnsFalse(t *testing.T) {
	s := New("x")
	if s.Undo() {
		t.Error("expected undo to fail on empty stack")
	}
}

func TestReset(t *testing.T) {
	s := New("hello")
	s.Apply(model.Operation{Type: model.OpInsert, Position: 5, Content: "!"})
	s.SetMode(ModeReadOnly)
	s.Reset()
	if s.Content() != "" || s.Version() != 0 || s.Mode() != ModeActive {
		t.Errorf("reset left content=%q version=%d mode=%s", s.Content(), s.Version(), s.Mode())
	}
	if s.Undo() {
		t.Error("expected no undo history after reset")
	}
}
