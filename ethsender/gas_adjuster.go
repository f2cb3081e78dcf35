package ethsender

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/zkoperator/types"
)

// GasAdjuster picks gas prices for new and replacement transactions. Prices never exceed the stored limit,
// except that a replacement never goes below the price of the attempt it replaces.
type GasAdjuster struct {
	logger              logrus.FieldLogger
	config              *types.EthSenderConfig
	db                  DatabaseInterface
	gasPriceLimit       *big.Int
	minGasPriceLimit    *big.Int
	samplesSum          *big.Int
	samplesCount        int64
	lastLimitUpdate     time.Time
	limitUpdateInterval time.Duration
	now                 func() time.Time
}

func NewGasAdjuster(ctx context.Context, logger logrus.FieldLogger, config *types.EthSenderConfig, db DatabaseInterface) (*GasAdjuster, error) {
	minLimit, err := parseWei(config.MinGasPriceLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid min gas price limit: %w", err)
	}

	limit, err := db.LoadGasPriceLimit(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed loading gas price limit: %w", err)
	}

	updateInterval := config.GasPriceLimitUpdateInterval
	if updateInterval <= 0 {
		updateInterval = 10 * time.Minute
	}

	return &GasAdjuster{
		logger:              logger,
		config:              config,
		db:                  db,
		gasPriceLimit:       limit,
		minGasPriceLimit:    minLimit,
		samplesSum:          new(big.Int),
		lastLimitUpdate:     time.Now(),
		limitUpdateInterval: updateInterval,
		now:                 time.Now,
	}, nil
}

func (g *GasAdjuster) GasPriceLimit() *big.Int {
	return new(big.Int).Set(g.gasPriceLimit)
}

// GetGasPrice returns the gas price for the next attempt. oldPrice is the price of the previous attempt,
// nil for the first one.
func (g *GasAdjuster) GetGasPrice(ctx context.Context, eth EthereumInterface, oldPrice *big.Int) (*big.Int, error) {
	networkPrice, err := eth.GasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed loading network gas price: %w", err)
	}
	g.addSample(networkPrice)

	return g.adjustGasPrice(networkPrice, oldPrice), nil
}

func (g *GasAdjuster) adjustGasPrice(networkPrice *big.Int, oldPrice *big.Int) *big.Int {
	price := new(big.Int).Set(networkPrice)

	if oldPrice != nil {
		bumped := new(big.Int).Mul(oldPrice, new(big.Int).SetUint64(g.config.GasPriceBumpPercent))
		bumped.Div(bumped, big.NewInt(100))
		if bumped.Cmp(price) > 0 {
			price = bumped
		}
	}

	if price.Cmp(g.gasPriceLimit) > 0 {
		price = new(big.Int).Set(g.gasPriceLimit)
	}

	if oldPrice != nil && price.Cmp(oldPrice) < 0 {
		price = new(big.Int).Set(oldPrice)
	}

	return price
}

func (g *GasAdjuster) addSample(price *big.Int) {
	g.samplesSum.Add(g.samplesSum, price)
	g.samplesCount++
}

// KeepUpdated samples the network gas price and recomputes the stored limit once per update interval.
func (g *GasAdjuster) KeepUpdated(ctx context.Context, eth EthereumInterface) error {
	networkPrice, err := eth.GasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed loading network gas price: %w", err)
	}
	g.addSample(networkPrice)

	if g.now().Sub(g.lastLimitUpdate) < g.limitUpdateInterval {
		return nil
	}

	average := new(big.Int).Div(g.samplesSum, big.NewInt(g.samplesCount))
	limit := new(big.Int).Mul(average, new(big.Int).SetUint64(g.config.GasPriceLimitScalePercent))
	limit.Div(limit, big.NewInt(100))
	if limit.Cmp(g.minGasPriceLimit) < 0 {
		limit.Set(g.minGasPriceLimit)
	}

	if err := g.db.UpdateGasPriceParams(ctx, limit, average); err != nil {
		return fmt.Errorf("failed storing gas price params: %w", err)
	}

	g.logger.WithFields(logrus.Fields{
		"average": average.String(),
		"limit":   limit.String(),
	}).Infof("updated gas price limit")

	g.gasPriceLimit = limit
	g.samplesSum = new(big.Int)
	g.samplesCount = 0
	g.lastLimitUpdate = g.now()
	return nil
}
