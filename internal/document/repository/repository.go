package repository

import (
	"context"
	"sync"

	"github.com/gogotex/gogotex/backend/collab-service/internal/document"
)

// Repository persists documents and their append-only version history.
// Commit must apply the content write and the snapshot append together and
// must assign version numbers densely per document.
type Repository interface {
	Create(ctx context.Context, d *document.Document) (string, error)
	Get(ctx context.Context, id string) (*document.Document, error)
	ListForUser(ctx context.Context, userID string) ([]*document.Document, error)
	Delete(ctx context.Context, id string) error
	AddCollaborator(ctx context.Context, id, userID string) (*document.Document, error)

	Commit(ctx context.Context, docID, content, author string) (int, error)
	ListVersions(ctx context.Context, docID string, limit int) ([]*document.Snapshot, error)
	GetVersion(ctx context.Context, docID string, version int) (*document.Snapshot, error)
	Revert(ctx context.Context, docID string, version int) (*document.Document, *document.Snapshot, error)
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

// Lock blocks until key is held and returns the matching unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > document.DefaultVersionLimit {
		return document.DefaultVersionLimit
	}
	return limit
}
