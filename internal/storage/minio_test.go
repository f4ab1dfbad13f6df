package storage

import (
	"context"
	"testing"

	"github.com/gogotex/gogotex/backend/collab-service/internal/config"
	"github.com/stretchr/testify/require"
)

func TestSnapshotKey(t *testing.T) {
	require.Equal(t, "documents/doc-1/v3.txt", SnapshotKey("doc-1", 3))
}

func TestNewSnapshotArchive_MissingEndpoint(t *testing.T) {
	_, err := NewSnapshotArchive(context.Background(), config.MinIOConfig{})
	require.Error(t, err)
}
