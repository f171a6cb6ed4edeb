package store

import (
	"context"
	"errors"
	"testing"

	"collabcore/internal/model"
)

func TestInMemorySnapshotStoreSaveAndLoad(t *testing.T) {
	s := NewInMemorySnapshotStore()
	ctx := context.Background()

	if _, ok, err := s.LoadLatestSnapshot(ctx, "doc1"); err != nil || ok {
		t.Fatalf("expected no snapshot yet, got ok=%v err=%v", ok, err)
	}

	snap := model.EditorSnapshot{ID: "s1", Content: "hello", Version: 3}
	if err := s.SaveSnapshot(ctx, "doc1", snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := s.LoadLatestSnapshot(ctx, "doc1")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.Content != "hello" || got.Version != 3 {
		t.Errorf("got = %+v", got)
	}
}

func TestInMemorySnapshotStoreOverwritesPrevious(t *testing.T) {
	s := NewInMemorySnapshotStore()
	ctx := context.Background()
	s.SaveSnapshot(ctx, "doc1", model.EditorSnapshot{Version: 1})
	s.SaveSnapshot(ctx, "doc1", model.EditorSnapshot{Version: 2})

	got, _, _ := s.LoadLatestSnapshot(ctx, "doc1")
	if got.Version != 2 {
		t.Errorf("version = %d, want 2 (latest save wins)", got.Version)
	}
}

func TestInMemoryDocumentResolverCreateThenResolve(t *testing.T) {
	r := NewInMemoryDocumentResolver()
	ctx := context.Background()

	id, err := r.CreateDocument(ctx, "owner1", "my doc")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty document id")
	}

	resolved, err := r.ResolveDocumentID(ctx, "my doc")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved != id {
		t.Errorf("resolved = %q, want %q", resolved, id)
	}
}

func TestInMemoryDocumentResolverCreateIsIdempotentPerTitle(t *testing.T) {
	r := NewInMemoryDocumentResolver()
	ctx := context.Background()

	first, _ := r.CreateDocument(ctx, "owner1", "same title")
	second, _ := r.CreateDocument(ctx, "owner2", "same title")
	if first != second {
		t.Errorf("expected the same document id for a repeated title, got %q and %q", first, second)
	}
}

func TestInMemoryDocumentResolverUnknownTitle(t *testing.T) {
	r := NewInMemoryDocumentResolver()
	_, err := r.ResolveDocumentID(context.Background(), "ghost")
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("err = %v, want ErrDocumentNotFound", err)
	}
}
