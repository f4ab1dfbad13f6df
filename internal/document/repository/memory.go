package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gogotex/gogotex/backend/collab-service/internal/document"
	"github.com/google/uuid"
)

// MemoryRepo is an in-memory repository used for local runs and unit tests.
// The map lock is only held to look entries up; each document carries its own
// lock so commits to different documents do not contend.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string]*memEntry
}

type memEntry struct {
	mu       sync.Mutex
	doc      *document.Document
	versions []*document.Snapshot // index i holds version i+1
	deleted  bool
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]*memEntry)}
}

func (m *MemoryRepo) entry(id string) (*memEntry, error) {
	m.mu.RLock()
	e, ok := m.store[id]
	m.mu.RUnlock()
	if !ok {
		return nil, document.ErrNotFound
	}
	return e, nil
}

func (m *MemoryRepo) Create(_ context.Context, d *document.Document) (string, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.LastModified = now
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[d.ID] = &memEntry{doc: d.Clone()}
	return d.ID, nil
}

func (m *MemoryRepo) Get(_ context.Context, id string) (*document.Document, error) {
	e, err := m.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, document.ErrNotFound
	}
	return e.doc.Clone(), nil
}

func (m *MemoryRepo) ListForUser(_ context.Context, userID string) ([]*document.Document, error) {
	m.mu.RLock()
	entries := make([]*memEntry, 0, len(m.store))
	for _, e := range m.store {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]*document.Document, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted && e.doc.CanEdit(userID) {
			out = append(out, e.doc.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastModified.After(out[j].LastModified) })
	return out, nil
}

func (m *MemoryRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.store[id]
	if ok {
		delete(m.store, id)
	}
	m.mu.Unlock()
	if !ok {
		return document.ErrNotFound
	}
	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()
	return nil
}

func (m *MemoryRepo) AddCollaborator(_ context.Context, id, userID string) (*document.Document, error) {
	e, err := m.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, document.ErrNotFound
	}
	if !e.doc.CanEdit(userID) {
		e.doc.Collaborators = append(e.doc.Collaborators, userID)
	}
	return e.doc.Clone(), nil
}

func (m *MemoryRepo) Commit(_ context.Context, docID, content, author string) (int, error) {
	e, err := m.entry(docID)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return 0, document.ErrNotFound
	}
	now := time.Now().UTC()
	n := len(e.versions) + 1
	e.versions = append(e.versions, &document.Snapshot{
		ID:            uuid.NewString(),
		DocumentID:    docID,
		VersionNumber: n,
		Content:       content,
		SavedBy:       author,
		SavedAt:       now,
	})
	e.doc.Content = content
	e.doc.LastModified = now
	return n, nil
}

func (m *MemoryRepo) ListVersions(_ context.Context, docID string, limit int) ([]*document.Snapshot, error) {
	e, err := m.entry(docID)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit)
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*document.Snapshot, 0, min(limit, len(e.versions)))
	for i := len(e.versions) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *e.versions[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryRepo) GetVersion(_ context.Context, docID string, version int) (*document.Snapshot, error) {
	e, err := m.entry(docID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if version < 1 || version > len(e.versions) {
		return nil, document.ErrVersionNotFound
	}
	cp := *e.versions[version-1]
	return &cp, nil
}

func (m *MemoryRepo) Revert(_ context.Context, docID string, version int) (*document.Document, *document.Snapshot, error) {
	e, err := m.entry(docID)
	if err != nil {
		return nil, nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, nil, document.ErrNotFound
	}
	if version < 1 || version > len(e.versions) {
		return nil, nil, document.ErrVersionNotFound
	}
	snap := *e.versions[version-1]
	e.doc.Content = snap.Content
	e.doc.LastModified = time.Now().UTC()
	return e.doc.Clone(), &snap, nil
}
