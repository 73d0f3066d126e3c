package store

import (
	"context"
	"testing"
	"time"

	"github.com/alimasry/go-office-kit/ot"
)

func TestCachedStore(t *testing.T) {
	runStoreTests(t,
		func(t *testing.T) DocumentStore {
			cs := NewCachedStore(NewMemoryStore(), time.Hour)
			t.Cleanup(cs.Close)
			return cs
		},
		func(*testing.T) string { return "doc1" })
}

func TestCachedStore_ReadThrough(t *testing.T) {
	backing := NewMemoryStore()
	ctx := context.Background()

	if err := backing.Create(ctx, "92", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := backing.AppendOperation(ctx, "92", ot.NewInsert(5, " world", 5), 1); err != nil {
		t.Fatal(err)
	}
	backing.PutRevisions(ctx, "92", []Revision{{Kind: "insert", Version: 1, Pos: 5, Length: 6}})

	cs := NewCachedStore(backing, time.Hour)
	defer cs.Close()

	info, err := cs.Get(ctx, "92")
	if err != nil {
		t.Fatal(err)
	}
	if info.Content != "hello" || info.Version != 1 || len(info.Revisions) != 1 {
		t.Errorf("unexpected info: %+v", info)
	}

	ops, err := cs.GetOperations(ctx, "92", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 {
		t.Fatalf("got %d ops, want 1", len(ops))
	}
}

func TestCachedStore_CreateChecksBacking(t *testing.T) {
	backing := NewMemoryStore()
	ctx := context.Background()
	backing.Create(ctx, "92", "")

	cs := NewCachedStore(backing, time.Hour)
	defer cs.Close()
	if err := cs.Create(ctx, "92", ""); err == nil {
		t.Error("expected error creating a document the backing store has")
	}
}

func TestCachedStore_WriteBehind(t *testing.T) {
	backing := NewMemoryStore()
	ctx := context.Background()

	cs := NewCachedStore(backing, 50*time.Millisecond)
	defer cs.Close()

	if err := cs.Create(ctx, "92", "hello"); err != nil {
		t.Fatal(err)
	}
	if _, err := backing.Get(ctx, "92"); err == nil {
		t.Error("expected backing to not have doc yet")
	}

	// Unflushed documents are still listed.
	docs, err := cs.List(ctx)
	if err != nil || len(docs) != 1 {
		t.Errorf("list before flush: %d docs, %v", len(docs), err)
	}

	time.Sleep(150 * time.Millisecond)

	info, err := backing.Get(ctx, "92")
	if err != nil {
		t.Fatal(err)
	}
	if info.ID != "92" || info.Content != "hello" {
		t.Errorf("unexpected doc: %+v", info)
	}
}

func TestCachedStore_OperationFlushTracking(t *testing.T) {
	backing := NewMemoryStore()
	ctx := context.Background()

	cs := NewCachedStore(backing, 50*time.Millisecond)
	defer cs.Close()

	if err := cs.Create(ctx, "92", "hello"); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 3; i++ {
		if err := cs.AppendOperation(ctx, "92", ot.NewInsert(0, "x", 4+i), i); err != nil {
			t.Fatal(err)
		}
	}

	time.Sleep(150 * time.Millisecond)

	ops, err := backing.GetOperations(ctx, "92", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 3 {
		t.Fatalf("after first flush: got %d ops, want 3", len(ops))
	}

	for i := 4; i <= 5; i++ {
		if err := cs.AppendOperation(ctx, "92", ot.NewInsert(0, "y", 4+i), i); err != nil {
			t.Fatal(err)
		}
	}

	time.Sleep(150 * time.Millisecond)

	ops, err = backing.GetOperations(ctx, "92", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 5 {
		t.Fatalf("after second flush: got %d ops, want 5", len(ops))
	}
}

func TestCachedStore_CloseFlushes(t *testing.T) {
	backing := NewMemoryStore()
	ctx := context.Background()

	cs := NewCachedStore(backing, time.Hour)

	if err := cs.Create(ctx, "92", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := cs.AppendOperation(ctx, "92", ot.NewInsert(5, " world", 5), 1); err != nil {
		t.Fatal(err)
	}
	if err := cs.UpdateContent(ctx, "92", "hello world", 1); err != nil {
		t.Fatal(err)
	}
	date := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	if err := cs.PutRevisions(ctx, "92", []Revision{{Kind: "insert", Version: 1, Pos: 5, Length: 6, Date: date}}); err != nil {
		t.Fatal(err)
	}

	cs.Close()

	info, err := backing.Get(ctx, "92")
	if err != nil {
		t.Fatal(err)
	}
	if info.Content != "hello world" || info.Version != 1 {
		t.Errorf("unexpected info: content=%q version=%d", info.Content, info.Version)
	}
	if len(info.Revisions) != 1 || !info.Revisions[0].Date.Equal(date) {
		t.Errorf("revisions not flushed: %+v", info.Revisions)
	}

	ops, err := backing.GetOperations(ctx, "92", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 {
		t.Fatalf("got %d ops, want 1", len(ops))
	}
}

func TestCachedStore_PreLoadedDoc(t *testing.T) {
	backing := NewMemoryStore()
	ctx := context.Background()

	if err := backing.Create(ctx, "92", "ab"); err != nil {
		t.Fatal(err)
	}
	if err := backing.AppendOperation(ctx, "92", ot.NewInsert(2, "c", 2), 1); err != nil {
		t.Fatal(err)
	}
	if err := backing.AppendOperation(ctx, "92", ot.NewInsert(3, "d", 3), 2); err != nil {
		t.Fatal(err)
	}

	cs := NewCachedStore(backing, time.Hour)
	if _, err := cs.Get(ctx, "92"); err != nil {
		t.Fatal(err)
	}
	if err := cs.AppendOperation(ctx, "92", ot.NewInsert(4, "e", 4), 3); err != nil {
		t.Fatal(err)
	}
	cs.Close()

	// Only the new operation is written back.
	ops, err := backing.GetOperations(ctx, "92", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 3 {
		t.Fatalf("got %d ops, want 3", len(ops))
	}
}

func TestCachedStore_ListDelegatesToBacking(t *testing.T) {
	backing := NewMemoryStore()
	ctx := context.Background()

	backing.Create(ctx, "a", "")
	backing.Create(ctx, "b", "")

	cs := NewCachedStore(backing, time.Hour)
	defer cs.Close()

	docs, err := cs.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Errorf("got %d docs, want 2", len(docs))
	}
}
