package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/coocood/freecache"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/zkoperator/utils"
)

// TieredCache combines a local in-process cache with an optional remote cache.
type TieredCache struct {
	localCache  *freecache.Cache
	remoteCache RemoteCache
}

type cachedValue struct {
	Version uint64          `json:"i"`
	Timeout uint64          `json:"t"`
	Value   json.RawMessage `json:"v"`
}

var CacheMissError error = errors.New("cache miss")

const cacheValueVersion = 1

type RemoteCache interface {
	SetBytes(ctx context.Context, key string, value []byte, expiration time.Duration) error
	GetBytes(ctx context.Context, key string) ([]byte, error)
}

// NewTieredCache creates a cache with cacheSize MB of local memory. The redis tier is only used when
// redisAddress is set.
func NewTieredCache(ctx context.Context, cacheSize int, redisAddress string, redisPrefix string) (*TieredCache, error) {
	var remoteCache RemoteCache
	if redisAddress != "" {
		initCtx, cancel := context.WithTimeout(ctx, time.Second*30)
		defer cancel()

		var err error
		remoteCache, err = InitRedisCache(initCtx, redisAddress, redisPrefix)
		if err != nil {
			logrus.WithError(err).Errorf("error initializing remote redis cache. address: %v", redisAddress)
			return nil, err
		}
	}

	if cacheSize <= 0 {
		cacheSize = 32
	}

	return &TieredCache{
		remoteCache: remoteCache,
		localCache:  freecache.NewCache(cacheSize * 1024 * 1024),
	}, nil
}

func (cache *TieredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	valueJson, err := json.Marshal(value)
	if err != nil {
		return err
	}

	cacheValue := cachedValue{
		Version: cacheValueVersion,
		Value:   valueJson,
	}
	if expiration > 0 {
		cacheValue.Timeout = uint64(time.Now().Add(expiration).Unix())
	}

	valueMarshal, err := json.Marshal(cacheValue)
	if err != nil {
		return err
	}
	cache.localCache.Set([]byte(key), valueMarshal, int(expiration.Seconds()))
	if cache.remoteCache != nil {
		return cache.remoteCache.SetBytes(ctx, key, valueMarshal, expiration)
	}
	return nil
}

// Get loads key into returnValue. CacheMissError is returned if neither tier holds the key.
func (cache *TieredCache) Get(ctx context.Context, key string, returnValue interface{}) error {
	cacheValue := &cachedValue{}

	wanted, err := cache.localCache.Get([]byte(key))
	if err == nil {
		return cache.decodeValue(key, wanted, cacheValue, returnValue)
	}

	if cache.remoteCache == nil {
		return CacheMissError
	}

	wanted, err = cache.remoteCache.GetBytes(ctx, key)
	if err != nil {
		return err
	}

	err = cache.decodeValue(key, wanted, cacheValue, returnValue)
	if err != nil {
		return err
	}

	// keep a local copy unless the remote entry is about to expire
	if cacheValue.Timeout == 0 || cacheValue.Timeout > uint64(time.Now().Add(2*time.Second).Unix()) {
		var timeout uint64
		if cacheValue.Timeout != 0 {
			timeout = cacheValue.Timeout - uint64(time.Now().Unix())
		}
		cache.localCache.Set([]byte(key), wanted, int(timeout))
	}
	return nil
}

func (cache *TieredCache) decodeValue(key string, data []byte, cacheValue *cachedValue, returnValue interface{}) error {
	err := json.Unmarshal(data, cacheValue)
	if err == nil && cacheValue.Version != cacheValueVersion {
		return CacheMissError
	}
	if err == nil {
		err = json.Unmarshal(cacheValue.Value, returnValue)
	}
	if err != nil {
		cache.localCache.Del([]byte(key))
		utils.LogError(err, "error unmarshalling data for key", 0, map[string]interface{}{"key": key})
		return err
	}
	return nil
}
