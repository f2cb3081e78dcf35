package ethsender

import (
	"context"
	"math/big"
	"math/rand"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/zkoperator/types"
)

func newTestGasAdjuster(t *testing.T, config *types.EthSenderConfig, limit *big.Int) (*GasAdjuster, *MemoryDatabase) {
	t.Helper()

	ctx := context.Background()
	db := NewMemoryDatabase()
	require.NoError(t, db.InitializeEthParameters(ctx, 0, limit))

	logger, _ := test.NewNullLogger()
	adjuster, err := NewGasAdjuster(ctx, logger, config, db)
	require.NoError(t, err)
	return adjuster, db
}

func TestAdjustGasPrice(t *testing.T) {
	adjuster, _ := newTestGasAdjuster(t, testSenderConfig(), big.NewInt(100))

	tests := []struct {
		name    string
		network int64
		old     *big.Int
		want    int64
	}{
		{name: "first attempt uses network price", network: 50, want: 50},
		{name: "first attempt capped at limit", network: 150, want: 100},
		{name: "bump above network price", network: 50, old: big.NewInt(60), want: 69},
		{name: "network above bump", network: 80, old: big.NewInt(60), want: 80},
		{name: "bump capped at limit", network: 50, old: big.NewInt(95), want: 100},
		{name: "never below previous attempt", network: 50, old: big.NewInt(120), want: 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price := adjuster.adjustGasPrice(big.NewInt(tt.network), tt.old)
			assert.Equal(t, big.NewInt(tt.want), price)
		})
	}
}

func TestAdjustGasPriceNeverDecreases(t *testing.T) {
	limit := big.NewInt(1000)
	adjuster, _ := newTestGasAdjuster(t, testSenderConfig(), limit)
	rng := rand.New(rand.NewSource(7))

	var oldPrice *big.Int
	for i := 0; i < 1000; i++ {
		network := big.NewInt(rng.Int63n(2000) + 1)
		price := adjuster.adjustGasPrice(network, oldPrice)

		if oldPrice != nil {
			require.GreaterOrEqual(t, price.Cmp(oldPrice), 0, "iteration %v", i)
		}
		if oldPrice == nil || oldPrice.Cmp(limit) <= 0 {
			require.LessOrEqual(t, price.Cmp(limit), 0, "iteration %v", i)
		}

		// restart the chain now and then to cover fresh operations
		if rng.Intn(10) == 0 {
			oldPrice = nil
		} else {
			oldPrice = price
		}
	}
}

func TestGasAdjusterKeepUpdated(t *testing.T) {
	tests := []struct {
		name        string
		minLimit    string
		wantLimit   *big.Int
		wantAverage *big.Int
	}{
		{name: "scaled average", minLimit: "1000000000", wantLimit: gwei(30), wantAverage: gwei(20)},
		{name: "floored at min limit", minLimit: "50000000000", wantLimit: gwei(50), wantAverage: gwei(20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			config := testSenderConfig()
			config.MinGasPriceLimit = tt.minLimit
			adjuster, db := newTestGasAdjuster(t, config, gwei(100))

			start := time.Unix(1700000000, 0)
			now := start
			adjuster.now = func() time.Time { return now }
			adjuster.lastLimitUpdate = start

			eth := newFakeEthereum(100)
			for _, price := range []float64{10, 20} {
				eth.gasPrice = gwei(price)
				require.NoError(t, adjuster.KeepUpdated(ctx, eth))
			}
			assert.Equal(t, gwei(100), adjuster.GasPriceLimit())

			now = start.Add(time.Hour)
			eth.gasPrice = gwei(30)
			require.NoError(t, adjuster.KeepUpdated(ctx, eth))

			assert.Equal(t, tt.wantLimit, adjuster.GasPriceLimit())
			stored, err := db.LoadGasPriceLimit(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, stored)
			assert.Equal(t, tt.wantAverage, db.AverageGasPrice())

			// samples are reset after an update
			eth.gasPrice = gwei(1000)
			require.NoError(t, adjuster.KeepUpdated(ctx, eth))
			assert.Equal(t, tt.wantLimit, adjuster.GasPriceLimit())
		})
	}
}

func TestNewGasAdjusterRequiresParameters(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := NewGasAdjuster(context.Background(), logger, testSenderConfig(), NewMemoryDatabase())
	assert.Error(t, err)

	config := testSenderConfig()
	config.MinGasPriceLimit = "not a number"
	db := NewMemoryDatabase()
	require.NoError(t, db.InitializeEthParameters(context.Background(), 0, big.NewInt(1)))
	_, err = NewGasAdjuster(context.Background(), logger, config, db)
	assert.Error(t, err)
}
