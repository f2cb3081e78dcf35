package pebble

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/ethpandaops/zkoperator/proofdb/types"
	dtypes "github.com/ethpandaops/zkoperator/types"
)

const (
	KeyNamespaceProof uint16 = 1
)

const proofFormatVersion uint64 = 1

// Value format: [version (8 bytes)] [timestamp (8 bytes)] [data]
const valueHeaderSize = 16

type PebbleEngine struct {
	db     *pebble.DB
	config dtypes.PebbleProofStoreConfig
}

func NewPebbleEngine(config dtypes.PebbleProofStoreConfig) (*PebbleEngine, error) {
	cacheSize := config.CacheSize
	if cacheSize <= 0 {
		cacheSize = 8
	}
	cache := pebble.NewCache(int64(cacheSize * 1024 * 1024))
	defer cache.Unref()

	db, err := pebble.Open(config.Path, &pebble.Options{
		Cache: cache,
	})
	if err != nil {
		return nil, err
	}

	return &PebbleEngine{
		db:     db,
		config: config,
	}, nil
}

func (e *PebbleEngine) Close() error {
	return e.db.Close()
}

// makeKey creates a key ordered by kind and block range.
func makeKey(key types.ProofKey) []byte {
	res := make([]byte, 2+2+8+8)
	binary.BigEndian.PutUint16(res[0:2], KeyNamespaceProof)
	binary.BigEndian.PutUint16(res[2:4], uint16(key.Kind))
	binary.BigEndian.PutUint64(res[4:12], key.FirstBlock)
	binary.BigEndian.PutUint64(res[12:20], key.LastBlock)
	return res
}

func (e *PebbleEngine) GetProof(_ context.Context, key types.ProofKey) ([]byte, error) {
	res, closer, err := e.db.Get(makeKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	if len(res) < valueHeaderSize {
		return nil, nil
	}

	data := make([]byte, len(res)-valueHeaderSize)
	copy(data, res[valueHeaderSize:])
	return data, nil
}

// GetProofTime returns when the proof was written, or the zero time if it is missing.
func (e *PebbleEngine) GetProofTime(key types.ProofKey) (time.Time, error) {
	res, closer, err := e.db.Get(makeKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	defer closer.Close()

	if len(res) < valueHeaderSize {
		return time.Time{}, nil
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(res[8:16]))), nil
}

func (e *PebbleEngine) AddProof(ctx context.Context, key types.ProofKey, data []byte) (bool, error) {
	existing, err := e.GetProof(ctx, key)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	value := make([]byte, valueHeaderSize+len(data))
	binary.BigEndian.PutUint64(value[:8], proofFormatVersion)
	binary.BigEndian.PutUint64(value[8:16], uint64(time.Now().UnixNano()))
	copy(value[valueHeaderSize:], data)

	if err := e.db.Set(makeKey(key), value, pebble.Sync); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteProof drops a proof. Used to evict cached copies.
func (e *PebbleEngine) DeleteProof(key types.ProofKey) error {
	return e.db.Delete(makeKey(key), pebble.Sync)
}
