package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	args := m.Called(ctx, key)
	cmd := redis.NewStringCmd(ctx)
	if err := args.Error(1); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(args.String(0))
	}
	return cmd
}

func (m *MockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	args := m.Called(ctx, key, value, expiration)
	cmd := redis.NewStatusCmd(ctx)
	if err := args.Error(0); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal("OK")
	}
	return cmd
}

func (m *MockRedisClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	args := m.Called(ctx, keys)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetErr(args.Error(0))
	return cmd
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	entries := []Entry{{Host: "1.1.1.1", Port: 80, Protocol: ProtocolHTTP}}

	t.Run("miss", func(t *testing.T) {
		client := new(MockRedisClient)
		client.On("Get", ctx, "pw:proxies:geonode").Return("", redis.Nil)

		got, ok, err := NewRedisCache(client, "pw:").Get(ctx, "proxies:geonode")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, got)
	})

	t.Run("hit", func(t *testing.T) {
		raw, _ := json.Marshal(entries)
		client := new(MockRedisClient)
		client.On("Get", ctx, "pw:k").Return(string(raw), nil)

		got, ok, err := NewRedisCache(client, "pw:").Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, entries, got)
	})

	t.Run("set with ttl", func(t *testing.T) {
		client := new(MockRedisClient)
		client.On("Set", ctx, "k", mock.MatchedBy(func(v interface{}) bool {
			var decoded []Entry
			return json.Unmarshal(v.([]byte), &decoded) == nil && len(decoded) == 1
		}), time.Hour).Return(nil)

		require.NoError(t, NewRedisCache(client, "").Set(ctx, "k", entries, time.Hour))
		client.AssertExpectations(t)
	})

	t.Run("read error", func(t *testing.T) {
		client := new(MockRedisClient)
		client.On("Get", ctx, "k").Return("", errors.New("connection refused"))

		_, ok, err := NewRedisCache(client, "").Get(ctx, "k")
		assert.Error(t, err)
		assert.False(t, ok)
	})
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []Entry{{Host: "h", Port: 1}}, time.Minute))

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, got, 1)

	now = now.Add(time.Minute)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryCache_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	require.NoError(t, c.Set(ctx, "k", []Entry{{Host: "a", Port: 1}}, 0))

	got, _, _ := c.Get(ctx, "k")
	got[0].Host = "changed"

	again, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "a", again[0].Host)
}
