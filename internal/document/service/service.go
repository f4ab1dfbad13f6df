package service

import (
	"context"
	"errors"
	"time"

	"github.com/gogotex/gogotex/backend/collab-service/internal/document"
	"github.com/gogotex/gogotex/backend/collab-service/internal/document/repository"
	"github.com/gogotex/gogotex/backend/collab-service/pkg/logger"
	"github.com/gogotex/gogotex/backend/collab-service/pkg/metrics"
	"go.mongodb.org/mongo-driver/mongo"
)

var ErrExportUnavailable = errors.New("snapshot export not configured")

// Archive receives committed snapshots (see storage.SnapshotArchive).
type Archive interface {
	ArchiveSnapshot(ctx context.Context, snap *document.Snapshot) error
	SnapshotURL(ctx context.Context, docID string, version int, expires time.Duration) (string, error)
}

// Service is the document facade used by the realtime engine and the REST
// handlers. Reads and mutations on behalf of a user are checked against the
// document's owner/collaborator list; Commit trusts its caller.
type Service struct {
	repo         repository.Repository
	archive      Archive
	versionLimit int
}

type Option func(*Service)

func WithArchive(a Archive) Option {
	return func(s *Service) { s.archive = a }
}

func WithVersionLimit(n int) Option {
	return func(s *Service) {
		if n > 0 && n <= document.DefaultVersionLimit {
			s.versionLimit = n
		}
	}
}

func New(repo repository.Repository, opts ...Option) *Service {
	s := &Service{repo: repo, versionLimit: document.DefaultVersionLimit}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewMemoryService returns a Service backed by the in-memory repository.
func NewMemoryService(opts ...Option) *Service {
	return New(repository.NewMemoryRepo(), opts...)
}

// NewMongoService returns a Service backed by the given database.
func NewMongoService(ctx context.Context, db *mongo.Database, opts ...Option) (*Service, error) {
	repo, err := repository.NewMongoRepo(ctx, db)
	if err != nil {
		return nil, err
	}
	return New(repo, opts...), nil
}

func (s *Service) Create(ctx context.Context, ownerID, title string) (*document.Document, error) {
	if title == "" {
		title = "Untitled document"
	}
	d := &document.Document{Title: title, Owner: ownerID, Collaborators: []string{}}
	if _, err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Authorize loads the document and checks userID may edit it.
func (s *Service) Authorize(ctx context.Context, docID, userID string) (*document.Document, error) {
	d, err := s.repo.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	if !d.CanEdit(userID) {
		return nil, document.ErrAccessDenied
	}
	return d, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]*document.Document, error) {
	return s.repo.ListForUser(ctx, userID)
}

// Delete is owner-only.
func (s *Service) Delete(ctx context.Context, docID, userID string) error {
	d, err := s.repo.Get(ctx, docID)
	if err != nil {
		return err
	}
	if d.Owner != userID {
		return document.ErrAccessDenied
	}
	return s.repo.Delete(ctx, docID)
}

// AddCollaborator is owner-only.
func (s *Service) AddCollaborator(ctx context.Context, docID, ownerID, collaboratorID string) (*document.Document, error) {
	d, err := s.repo.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	if d.Owner != ownerID {
		return nil, document.ErrAccessDenied
	}
	return s.repo.AddCollaborator(ctx, docID, collaboratorID)
}

// Commit persists content as the current document body and appends the next
// snapshot in one step.
func (s *Service) Commit(ctx context.Context, docID, content, author string) (int, error) {
	start := time.Now()
	v, err := s.repo.Commit(ctx, docID, content, author)
	metrics.CommitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Commits.WithLabelValues("error").Inc()
		return 0, err
	}
	metrics.Commits.WithLabelValues("ok").Inc()
	logger.WithFields(logger.Fields{"doc": docID, "version": v, "author": author}).Debugf("snapshot committed")

	if s.archive != nil {
		snap := &document.Snapshot{DocumentID: docID, VersionNumber: v, Content: content, SavedBy: author, SavedAt: time.Now().UTC()}
		if err := s.archive.ArchiveSnapshot(ctx, snap); err != nil {
			logger.Warnf("archive doc=%s v%d failed: %v", docID, v, err)
		}
	}
	return v, nil
}

// Save is Commit on behalf of userID, who must be allowed to edit the
// document. It returns the updated document and the new version number.
func (s *Service) Save(ctx context.Context, docID, userID, content string) (*document.Document, int, error) {
	if _, err := s.Authorize(ctx, docID, userID); err != nil {
		return nil, 0, err
	}
	v, err := s.Commit(ctx, docID, content, userID)
	if err != nil {
		return nil, 0, err
	}
	d, err := s.repo.Get(ctx, docID)
	if err != nil {
		return nil, 0, err
	}
	return d, v, nil
}

func (s *Service) ListVersions(ctx context.Context, docID, userID string, limit int) ([]*document.Snapshot, error) {
	if _, err := s.Authorize(ctx, docID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.versionLimit {
		limit = s.versionLimit
	}
	return s.repo.ListVersions(ctx, docID, limit)
}

func (s *Service) GetVersion(ctx context.Context, docID, userID string, version int) (*document.Snapshot, error) {
	if _, err := s.Authorize(ctx, docID, userID); err != nil {
		return nil, err
	}
	return s.repo.GetVersion(ctx, docID, version)
}

// Revert overwrites the current content with snapshot `version`. No new
// snapshot is appended.
func (s *Service) Revert(ctx context.Context, docID, userID string, version int) (*document.Document, error) {
	if _, err := s.Authorize(ctx, docID, userID); err != nil {
		metrics.Reverts.WithLabelValues("denied").Inc()
		return nil, err
	}
	d, _, err := s.repo.Revert(ctx, docID, version)
	if err != nil {
		metrics.Reverts.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.Reverts.WithLabelValues("ok").Inc()
	logger.WithFields(logger.Fields{"doc": docID, "version": version, "user": userID}).Infof("document reverted")
	return d, nil
}

// ExportURL returns a presigned download link for an archived version.
func (s *Service) ExportURL(ctx context.Context, docID, userID string, version int) (string, error) {
	if s.archive == nil {
		return "", ErrExportUnavailable
	}
	if _, err := s.GetVersion(ctx, docID, userID, version); err != nil {
		return "", err
	}
	return s.archive.SnapshotURL(ctx, docID, version, 15*time.Minute)
}
