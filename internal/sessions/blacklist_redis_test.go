package sessions

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestBlacklist_RevokeAndExpire(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	bl := NewBlacklist(redis.NewClient(&redis.Options{Addr: m.Addr()}))

	ctx := context.Background()
	token := "access-token-1"
	require.NoError(t, bl.Revoke(ctx, token, 2*time.Second))

	ok, err := bl.IsRevoked(ctx, token)
	require.NoError(t, err)
	require.True(t, ok)

	// the raw token never appears in Redis
	require.False(t, m.Exists("blacklist:access:"+token))

	m.FastForward(3 * time.Second)

	ok, err = bl.IsRevoked(ctx, token)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBlacklist_NoClient_Noop(t *testing.T) {
	var bl *Blacklist
	ctx := context.Background()
	require.NoError(t, bl.Revoke(ctx, "t", time.Second))
	ok, err := bl.IsRevoked(ctx, "t")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = NewBlacklist(nil).IsRevoked(ctx, "t")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBlacklist_RedisDown(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	bl := NewBlacklist(redis.NewClient(&redis.Options{Addr: m.Addr(), MaxRetries: -1}))
	m.Close()

	_, err = bl.IsRevoked(context.Background(), "t")
	require.Error(t, err)
}
