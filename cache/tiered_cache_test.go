package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEntry struct {
	Number uint64 `json:"number"`
	Root   string `json:"root"`
}

type memoryRemoteCache struct {
	values map[string][]byte
}

func (m *memoryRemoteCache) SetBytes(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.values[key] = value
	return nil
}

func (m *memoryRemoteCache) GetBytes(_ context.Context, key string) ([]byte, error) {
	value, ok := m.values[key]
	if !ok {
		return nil, CacheMissError
	}
	return value, nil
}

func TestTieredCacheLocal(t *testing.T) {
	ctx := context.Background()
	cache, err := NewTieredCache(ctx, 1, "", "")
	require.NoError(t, err)

	entry := testEntry{}
	assert.ErrorIs(t, cache.Get(ctx, "block:1", &entry), CacheMissError)

	require.NoError(t, cache.Set(ctx, "block:1", &testEntry{Number: 1, Root: "0xaa"}, 0))
	require.NoError(t, cache.Get(ctx, "block:1", &entry))
	assert.Equal(t, testEntry{Number: 1, Root: "0xaa"}, entry)
}

func TestTieredCacheRemoteFill(t *testing.T) {
	ctx := context.Background()
	remote := &memoryRemoteCache{values: map[string][]byte{}}

	writer, err := NewTieredCache(ctx, 1, "", "")
	require.NoError(t, err)
	writer.remoteCache = remote
	require.NoError(t, writer.Set(ctx, "block:7", &testEntry{Number: 7}, time.Hour))

	reader, err := NewTieredCache(ctx, 1, "", "")
	require.NoError(t, err)
	reader.remoteCache = remote

	entry := testEntry{}
	require.NoError(t, reader.Get(ctx, "block:7", &entry))
	assert.Equal(t, uint64(7), entry.Number)

	// served from the local tier after the first remote hit
	delete(remote.values, "block:7")
	entry = testEntry{}
	require.NoError(t, reader.Get(ctx, "block:7", &entry))
	assert.Equal(t, uint64(7), entry.Number)
}
