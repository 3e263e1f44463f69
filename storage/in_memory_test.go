package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestInMemoryStore_ReadWriteDelete(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	got, err := s.Read(ctx, []string{"a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no values, got %#v", got)
	}

	if err := s.Write(ctx, map[string]string{"a": "1", "b": "2"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	got, _ = s.Read(ctx, []string{"a", "b", "c"})
	if len(got) != 2 || got["a"] != "1" || got["b"] != "2" {
		t.Fatalf("unexpected read result: %#v", got)
	}

	if err := s.Delete(ctx, []string{"a", "missing"}); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 key, got %d", s.Len())
	}
}

func TestInMemoryStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewInMemoryStore().Read(ctx, []string{"a"}); err == nil {
		t.Fatal("expected context error")
	}
}

func TestInMemoryStore_Concurrency(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i)
			_ = s.Write(ctx, map[string]string{key: "v"})
			_, _ = s.Read(ctx, []string{key})
		}(i)
	}
	wg.Wait()
	if s.Len() != 20 {
		t.Fatalf("expected 20 keys, got %d", s.Len())
	}
}
