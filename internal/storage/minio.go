package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gogotex/gogotex/backend/collab-service/internal/config"
	"github.com/gogotex/gogotex/backend/collab-service/internal/document"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// SnapshotArchive copies committed snapshots into an object store bucket so
// that a version can be downloaded as a plain file.
type SnapshotArchive struct {
	client *minio.Client
	bucket string
}

// SnapshotKey is the object key of one archived version.
func SnapshotKey(docID string, version int) string {
	return fmt.Sprintf("documents/%s/v%d.txt", docID, version)
}

// NewSnapshotArchive creates the MinIO client and ensures the bucket exists.
func NewSnapshotArchive(ctx context.Context, cfg config.MinIOConfig) (*SnapshotArchive, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio config missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	s := &SnapshotArchive{client: mc, bucket: cfg.Bucket}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		// ignore "already exists" style errors
		exist, xerr := mc.BucketExists(ctx, s.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return s, nil
}

// ArchiveSnapshot uploads the snapshot content under SnapshotKey.
func (s *SnapshotArchive) ArchiveSnapshot(ctx context.Context, snap *document.Snapshot) error {
	key := SnapshotKey(snap.DocumentID, snap.VersionNumber)
	opts := minio.PutObjectOptions{
		ContentType:  "text/plain; charset=utf-8",
		UserMetadata: map[string]string{"saved-by": snap.SavedBy, "saved-at": snap.SavedAt.Format(time.RFC3339)},
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, strings.NewReader(snap.Content), int64(len(snap.Content)), opts)
	if err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}
	return nil
}

// SnapshotURL returns a presigned GET URL valid for the given duration.
func (s *SnapshotArchive) SnapshotURL(ctx context.Context, docID string, version int, expires time.Duration) (string, error) {
	key := SnapshotKey(docID, version)
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		return "", fmt.Errorf("stat %s: %w", key, document.ErrVersionNotFound)
	}
	reqParams := make(url.Values)
	reqParams.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s-v%d.txt", docID, version)))
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, expires, reqParams)
	if err != nil {
		return "", err
	}
	return presigned.String(), nil
}
