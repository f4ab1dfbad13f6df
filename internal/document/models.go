package document

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrVersionNotFound = fmt.Errorf("version: %w", ErrNotFound)
	ErrAccessDenied    = errors.New("access denied")
	ErrPersistence     = errors.New("persistence failure")
)

// DefaultVersionLimit bounds listVersions responses.
const DefaultVersionLimit = 50

// Document is the persisted document record. Content and LastModified are the
// only fields the realtime engine writes.
type Document struct {
	ID            string    `json:"id" bson:"_id"`
	Title         string    `json:"title" bson:"title"`
	Content       string    `json:"content" bson:"content"`
	Owner         string    `json:"owner" bson:"owner"`
	Collaborators []string  `json:"collaborators" bson:"collaborators"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt"`
	LastModified  time.Time `json:"lastModified" bson:"lastModified"`
}

// CanEdit reports whether userID is the owner or a collaborator.
func (d *Document) CanEdit(userID string) bool {
	if userID == "" {
		return false
	}
	if d.Owner == userID {
		return true
	}
	for _, c := range d.Collaborators {
		if c == userID {
			return true
		}
	}
	return false
}

// Clone returns a copy safe to hand out of a repository lock.
func (d *Document) Clone() *Document {
	cp := *d
	cp.Collaborators = append([]string(nil), d.Collaborators...)
	return &cp
}

// Snapshot is an immutable historical copy of a document's content.
type Snapshot struct {
	ID            string    `json:"id" bson:"_id"`
	DocumentID    string    `json:"documentId" bson:"documentId"`
	VersionNumber int       `json:"versionNumber" bson:"versionNumber"`
	Content       string    `json:"content" bson:"content"`
	SavedBy       string    `json:"savedBy" bson:"savedBy"`
	SavedAt       time.Time `json:"savedAt" bson:"savedAt"`
}

// PersistenceError marks a failed durable read or write. It matches
// ErrPersistence with errors.Is.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPersistence, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Persistence wraps err unless it is nil or already a domain sentinel.
func Persistence(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrAccessDenied) || errors.Is(err, ErrPersistence) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
