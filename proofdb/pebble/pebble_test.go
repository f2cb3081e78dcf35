package pebble

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/zkoperator/proofdb/types"
	dtypes "github.com/ethpandaops/zkoperator/types"
)

func newTestEngine(t *testing.T) *PebbleEngine {
	t.Helper()
	engine, err := NewPebbleEngine(dtypes.PebbleProofStoreConfig{Path: t.TempDir(), CacheSize: 1})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestPebbleEngineProofs(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	data, err := engine.GetProof(ctx, types.BlockProofKey(1))
	require.NoError(t, err)
	assert.Nil(t, data)

	added, err := engine.AddProof(ctx, types.BlockProofKey(1), []byte{0xaa, 0xbb})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = engine.AddProof(ctx, types.BlockProofKey(1), []byte{0xcc})
	require.NoError(t, err)
	assert.False(t, added)

	data, err = engine.GetProof(ctx, types.BlockProofKey(1))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xaa, 0xbb}, data)

	// same range, different kind
	data, err = engine.GetProof(ctx, types.AggregatedProofKey(1, 1))
	require.NoError(t, err)
	assert.Nil(t, data)

	stored, err := engine.GetProofTime(types.BlockProofKey(1))
	require.NoError(t, err)
	assert.False(t, stored.IsZero())

	require.NoError(t, engine.DeleteProof(types.BlockProofKey(1)))
	data, err = engine.GetProof(ctx, types.BlockProofKey(1))
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestMakeKeyOrdering(t *testing.T) {
	a := makeKey(types.AggregatedProofKey(1, 5))
	b := makeKey(types.AggregatedProofKey(2, 3))
	c := makeKey(types.AggregatedProofKey(300, 301))
	assert.Len(t, a, 20)
	assert.Less(t, string(a), string(b))
	assert.Less(t, string(b), string(c))
}
