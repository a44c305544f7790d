// Package setup creates the price divergence the arbitrage feeds on: a fresh
// base asset and two pools for the base/quote pair at different prices.
package setup

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/pulkyeet/flash-arb/internal/eth"
	"github.com/pulkyeet/flash-arb/internal/pool"
	"github.com/pulkyeet/flash-arb/internal/pricing"
	"github.com/pulkyeet/flash-arb/internal/simulator"
	"github.com/pulkyeet/flash-arb/internal/token"
)

var ErrNoBaseAsset = errors.New("base asset not created")

// Funder turns the deployer's native balance into quote asset held by target.
type Funder interface {
	Fund(st *simulator.State, from, target common.Address, amount *big.Int) error
}

// PoolFactory creates pools and takes deposits into them.
type PoolFactory interface {
	CreatePool(st *simulator.State, token0, token1 common.Address, fee uint32, sqrtPriceX96 *big.Int) (pool.Handle, error)
	ProvideLiquidity(st *simulator.State, h pool.Handle, provider common.Address, amount0Max, amount1Max *big.Int) (*big.Int, error)
	Liquidity(st *simulator.State, h pool.Handle) (*big.Int, error)
	SqrtPrice(st *simulator.State, h pool.Handle) (*big.Int, error)
}

type Setup struct {
	host     *simulator.Host
	deployer common.Address
	quote    common.Address
	funder   Funder
	pools    PoolFactory
	base     *token.Token
	logger   *zap.Logger
}

type Option func(*Setup)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Setup) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBaseAsset reuses an already deployed base asset.
func WithBaseAsset(base *token.Token) Option {
	return func(s *Setup) { s.base = base }
}

func New(host *simulator.Host, deployer, quote common.Address, funder Funder, pools PoolFactory, opts ...Option) *Setup {
	s := &Setup{
		host:     host,
		deployer: deployer,
		quote:    quote,
		funder:   funder,
		pools:    pools,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Setup) Base() *token.Token { return s.base }

// CreateBaseAsset deploys a new asset whose whole supply is held by the asset
// contract itself, which later acts as the liquidity provider.
func (s *Setup) CreateBaseAsset(ctx context.Context, symbol string, supply *big.Int) (*token.Token, error) {
	var base *token.Token
	_, err := s.host.Execute(ctx, s.deployer, "deploy "+symbol, eth.GasDeployToken, func(st *simulator.State) error {
		var err error
		base, err = token.Deploy(st, s.deployer, symbol, eth.BaseDecimals, supply, common.Address{})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create base asset: %w", err)
	}
	s.base = base

	s.logger.Info("base asset deployed",
		zap.String("symbol", symbol),
		zap.String("address", base.Address.Hex()),
		zap.String("supply", supply.String()),
		zap.Bool("sorts_below_quote", pricing.CheckSorted(base.Address, s.quote) == nil),
	)
	return base, nil
}

// FundWithQuoteAsset wraps amount of the deployer's native balance and sends
// it to target. The deployer must hold amount plus the network fee.
func (s *Setup) FundWithQuoteAsset(ctx context.Context, target common.Address, amount *big.Int) error {
	gas := eth.GasWrap + eth.GasTransfer
	fee := new(uint256.Int).Mul(uint256.NewInt(gas), s.host.GasPrice())
	need := new(big.Int).Add(amount, fee.ToBig())

	if have := s.host.View().GetBalance(s.deployer).ToBig(); have.Cmp(need) < 0 {
		return fmt.Errorf("fund %s: %w: have %s wei, need %s", target.Hex(), token.ErrInsufficientNative, have, need)
	}

	_, err := s.host.Execute(ctx, s.deployer, "fund "+target.Hex(), gas, func(st *simulator.State) error {
		return s.funder.Fund(st, s.deployer, target, amount)
	})
	if err != nil {
		return fmt.Errorf("fund %s: %w", target.Hex(), err)
	}

	s.logger.Info("funded with quote asset",
		zap.String("target", target.Hex()),
		zap.String("amount", amount.String()),
	)
	return nil
}

// CreatePool creates the (token0, token1, fee) pool at sqrtPriceX96.
func (s *Setup) CreatePool(ctx context.Context, token0, token1 common.Address, sqrtPriceX96 *big.Int, fee uint32) (pool.Handle, error) {
	if err := pricing.CheckSorted(token0, token1); err != nil {
		return pool.Handle{}, fmt.Errorf("create pool: %w", err)
	}

	var h pool.Handle
	_, err := s.host.Execute(ctx, s.deployer, fmt.Sprintf("create pool fee %d", fee), eth.GasCreatePool, func(st *simulator.State) error {
		var err error
		h, err = s.pools.CreatePool(st, token0, token1, fee, sqrtPriceX96)
		return err
	})
	if err != nil {
		return pool.Handle{}, fmt.Errorf("create pool: %w", err)
	}

	s.logger.Info("pool created",
		zap.String("pool", h.Address.Hex()),
		zap.Uint32("fee", fee),
		zap.String("sqrtPriceX96", sqrtPriceX96.String()),
	)
	return h, nil
}

// ProvideLiquidity deposits everything the base asset contract holds of the
// pool's two assets into the pool h.
func (s *Setup) ProvideLiquidity(ctx context.Context, h pool.Handle) (*big.Int, error) {
	if s.base == nil {
		return nil, ErrNoBaseAsset
	}
	provider := s.base.Address

	var minted *big.Int
	_, err := s.host.Execute(ctx, s.deployer, "provide liquidity "+h.Address.Hex(), eth.GasProvide, func(st *simulator.State) error {
		amount0 := token.BalanceOf(st, h.Token0, provider)
		amount1 := token.BalanceOf(st, h.Token1, provider)

		var err error
		minted, err = s.pools.ProvideLiquidity(st, h, provider, amount0, amount1)
		if err != nil {
			return err
		}

		l, err := s.pools.Liquidity(st, h)
		if err != nil {
			return err
		}
		if l.Sign() <= 0 {
			return pool.ErrZeroLiquidity
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("provide liquidity: %w", err)
	}

	liquidity, err := s.pools.Liquidity(s.host.View(), h)
	if err != nil {
		return nil, err
	}
	s.logger.Info("liquidity provided",
		zap.String("pool", h.Address.Hex()),
		zap.String("minted", minted.String()),
		zap.String("liquidity", liquidity.String()),
	)
	return liquidity, nil
}

// OrientedRatio orders quote and base by address and encodes the price
// "baseUnits of base per quoteUnits of quote" for that ordering. Swapping the
// two assets yields the inverse encoding.
func OrientedRatio(quote, base common.Address, quoteUnits, baseUnits *big.Int) (token0, token1 common.Address, sqrtPriceX96 *big.Int, err error) {
	return pricing.Oriented(quote, base, quoteUnits, baseUnits)
}
