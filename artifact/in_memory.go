package artifact

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/intakemesh/core"
)

// Scheme prefixes references minted by InMemoryStore.
const Scheme = "mem://"

// InMemoryStore is an in-process MediaStore useful for tests, examples and
// single-process deployments. It records the source attachment under a
// freshly minted reference of the form mem://<identity>/<id>.
//
// Layout: identity -> artifact id -> attachment
type InMemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]map[string]core.Attachment

	// Err, when set, makes Persist fail. Used to exercise fallback paths.
	Err error
}

// NewInMemoryStore returns an empty in-memory media store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{artifacts: make(map[string]map[string]core.Attachment)}
}

// Persist records the attachment and returns its new reference.
func (a *InMemoryStore) Persist(ctx context.Context, identity string, att core.Attachment) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if a.Err != nil {
		return "", a.Err
	}
	if att.Ref == "" {
		return "", ErrEmptyRef
	}

	id := uuid.NewString()

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.artifacts[identity]; !exists {
		a.artifacts[identity] = make(map[string]core.Attachment)
	}
	a.artifacts[identity][id] = att

	return fmt.Sprintf("%s%s/%s", Scheme, identity, id), nil
}

// Get resolves a reference minted by Persist back to the source attachment.
func (a *InMemoryStore) Get(ref string) (core.Attachment, error) {
	identity, id, ok := parseRef(ref)
	if !ok {
		return core.Attachment{}, ErrNotFound
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	att, ok := a.artifacts[identity][id]
	if !ok {
		return core.Attachment{}, ErrNotFound
	}
	return att, nil
}

// List returns the references stored for the identity. The slice is a
// snapshot and safe for caller mutation.
func (a *InMemoryStore) List(identity string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	m := a.artifacts[identity]
	refs := make([]string, 0, len(m))
	for id := range m {
		refs = append(refs, fmt.Sprintf("%s%s/%s", Scheme, identity, id))
	}
	return refs
}

// Delete removes the artifact if present or returns ErrNotFound.
func (a *InMemoryStore) Delete(ref string) error {
	identity, id, ok := parseRef(ref)
	if !ok {
		return ErrNotFound
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.artifacts[identity]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m[id]; !ok {
		return ErrNotFound
	}
	delete(m, id)
	return nil
}

func parseRef(ref string) (identity, id string, ok bool) {
	rest, found := strings.CutPrefix(ref, Scheme)
	if !found {
		return "", "", false
	}
	i := strings.LastIndex(rest, "/")
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}
