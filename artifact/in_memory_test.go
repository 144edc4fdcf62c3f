package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/hupe1980/intakemesh/core"
)

// Interface compliance (compile-time assertions)
var _ core.MediaStore = (*InMemoryStore)(nil)

func TestInMemoryStore_PersistGet(t *testing.T) {
	svc := NewInMemoryStore()
	att := core.Attachment{Ref: "https://media.example/1", ContentType: "image/png"}

	ref, err := svc.Persist(context.Background(), "+100", att)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if !strings.HasPrefix(ref, "mem://+100/") {
		t.Fatalf("unexpected ref %q", ref)
	}

	got, err := svc.Get(ref)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != att {
		t.Fatalf("expected %v, got %v", att, got)
	}
}

func TestInMemoryStore_ListAndDelete(t *testing.T) {
	svc := NewInMemoryStore()
	ctx := context.Background()
	r1, _ := svc.Persist(ctx, "+100", core.Attachment{Ref: "u1"})
	if _, err := svc.Persist(ctx, "+100", core.Attachment{Ref: "u2"}); err != nil {
		t.Fatal(err)
	}
	if refs := svc.List("+100"); len(refs) != 2 {
		t.Fatalf("expected 2 refs, got %d", len(refs))
	}
	if err := svc.Delete(r1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(r1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for deleted artifact, got %v", err)
	}
	if refs := svc.List("+100"); len(refs) != 1 {
		t.Fatalf("expected 1 ref after delete, got %d", len(refs))
	}
	if err := svc.Delete(r1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := svc.Delete("https://not-ours"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign ref, got %v", err)
	}
}

func TestInMemoryStore_Failures(t *testing.T) {
	svc := NewInMemoryStore()
	if _, err := svc.Persist(context.Background(), "+100", core.Attachment{}); !errors.Is(err, ErrEmptyRef) {
		t.Fatalf("expected ErrEmptyRef, got %v", err)
	}

	boom := errors.New("boom")
	svc.Err = boom
	if _, err := svc.Persist(context.Background(), "+100", core.Attachment{Ref: "u"}); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
}

func TestInMemoryStore_Concurrent(t *testing.T) {
	svc := NewInMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = svc.Persist(context.Background(), "+100", core.Attachment{Ref: fmt.Sprintf("u%d", i)})
		}(i)
	}
	wg.Wait()
	if refs := svc.List("+100"); len(refs) != 50 {
		t.Fatalf("expected 50 refs, got %d", len(refs))
	}
}
