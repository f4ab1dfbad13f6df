package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnectMongoWithRetry_InvalidURI(t *testing.T) {
	_, err := ConnectMongoWithRetry(context.Background(), "not-a-mongo-uri", 100*time.Millisecond, 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "after 1 attempts")
}

func TestConnectMongoWithRetry_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ConnectMongoWithRetry(ctx, "mongodb://127.0.0.1:1", 50*time.Millisecond, 3)
	require.Error(t, err)
}
