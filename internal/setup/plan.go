package setup

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pulkyeet/flash-arb/internal/eth"
	"github.com/pulkyeet/flash-arb/internal/pool"
	"github.com/pulkyeet/flash-arb/internal/pricing"
	"github.com/pulkyeet/flash-arb/internal/token"
)

// Leg describes one pool: its price as BaseUnits of base per QuoteUnits of
// quote, its fee tier, and how much quote asset is sent to the base asset
// contract before the pool is seeded.
type Leg struct {
	QuoteUnits *big.Int
	BaseUnits  *big.Int
	Fee        uint32
	Funding    *big.Int
}

type Plan struct {
	BaseSymbol string
	BaseSupply *big.Int
	Leg1       Leg
	Leg2       Leg
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

// DefaultPlan is 100 base per quote at the 0.05% tier and 200 base per quote
// at the 0.01% tier, each seeded with 10 quote.
func DefaultPlan() Plan {
	return Plan{
		BaseSymbol: "BASE",
		BaseSupply: ether(1_000_000),
		Leg1:       Leg{QuoteUnits: big.NewInt(1), BaseUnits: big.NewInt(100), Fee: eth.FeeLow, Funding: ether(10)},
		Leg2:       Leg{QuoteUnits: big.NewInt(1), BaseUnits: big.NewInt(200), Fee: eth.FeeLowest, Funding: ether(10)},
	}
}

func (p Plan) Validate() error {
	if p.BaseSupply == nil || p.BaseSupply.Sign() <= 0 {
		return fmt.Errorf("base supply must be positive")
	}
	for i, leg := range []Leg{p.Leg1, p.Leg2} {
		if leg.QuoteUnits == nil || leg.BaseUnits == nil || leg.QuoteUnits.Sign() <= 0 || leg.BaseUnits.Sign() <= 0 {
			return fmt.Errorf("leg %d: %w", i+1, pricing.ErrInvalidRatio)
		}
		if !eth.KnownFeeTiers[leg.Fee] {
			return fmt.Errorf("leg %d: %w: %d", i+1, pool.ErrInvalidFee, leg.Fee)
		}
		if leg.Funding == nil || leg.Funding.Sign() <= 0 {
			return fmt.Errorf("leg %d: funding must be positive", i+1)
		}
	}
	if p.Leg1.Fee == p.Leg2.Fee {
		return fmt.Errorf("%w: both legs use fee tier %d", pool.ErrPoolExists, p.Leg1.Fee)
	}
	return nil
}

// Checkpoint is a balance reading taken during a setup run.
type Checkpoint struct {
	Label          string
	DeployerNative *big.Int
	HeldBase       *big.Int // held by the base asset contract
	HeldQuote      *big.Int
	Liquidity      *big.Int // nil unless the step provided liquidity
}

// PoolInfo is a created pool with its realized price.
type PoolInfo struct {
	Handle       pool.Handle
	SqrtPriceX96 *big.Int
	// base per quote, decoded from SqrtPriceX96
	Price     *big.Float
	Liquidity *big.Int
}

type Result struct {
	Base         *token.Token
	Quote        common.Address
	BaseIsToken0 bool
	Pool1        PoolInfo
	Pool2        PoolInfo
	Report       []Checkpoint
}

// Run executes the whole setup: deploy the base asset, then for each leg fund
// the base asset contract, create the pool at the oriented price and seed it.
func (s *Setup) Run(ctx context.Context, plan Plan) (*Result, error) {
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}

	res := &Result{Quote: s.quote}
	res.Report = append(res.Report, s.checkpoint("start", nil))

	base, err := s.CreateBaseAsset(ctx, plan.BaseSymbol, plan.BaseSupply)
	if err != nil {
		return nil, err
	}
	res.Base = base
	res.BaseIsToken0 = pricing.CheckSorted(base.Address, s.quote) == nil
	res.Report = append(res.Report, s.checkpoint("base asset deployed", nil))

	for i, leg := range []Leg{plan.Leg1, plan.Leg2} {
		info, err := s.runLeg(ctx, leg)
		if err != nil {
			return nil, fmt.Errorf("leg %d: %w", i+1, err)
		}
		if i == 0 {
			res.Pool1 = info
		} else {
			res.Pool2 = info
		}
		res.Report = append(res.Report, s.checkpoint(fmt.Sprintf("pool %d seeded", i+1), info.Liquidity))
	}
	return res, nil
}

func (s *Setup) runLeg(ctx context.Context, leg Leg) (PoolInfo, error) {
	if err := s.FundWithQuoteAsset(ctx, s.base.Address, leg.Funding); err != nil {
		return PoolInfo{}, err
	}

	token0, token1, sqrtP, err := OrientedRatio(s.quote, s.base.Address, leg.QuoteUnits, leg.BaseUnits)
	if err != nil {
		return PoolInfo{}, err
	}

	h, err := s.CreatePool(ctx, token0, token1, sqrtP, leg.Fee)
	if err != nil {
		return PoolInfo{}, err
	}

	liquidity, err := s.ProvideLiquidity(ctx, h)
	if err != nil {
		return PoolInfo{}, err
	}

	realized, err := s.pools.SqrtPrice(s.host.View(), h)
	if err != nil {
		return PoolInfo{}, err
	}
	return PoolInfo{
		Handle:       h,
		SqrtPriceX96: realized,
		Price:        pricing.PriceOf(s.quote, h.Token0, realized),
		Liquidity:    liquidity,
	}, nil
}

func (s *Setup) checkpoint(label string, liquidity *big.Int) Checkpoint {
	st := s.host.View()
	cp := Checkpoint{
		Label:          label,
		DeployerNative: st.GetBalance(s.deployer).ToBig(),
		Liquidity:      liquidity,
	}
	if s.base != nil {
		cp.HeldBase = token.BalanceOf(st, s.base.Address, s.base.Address)
		cp.HeldQuote = token.BalanceOf(st, s.quote, s.base.Address)
	}
	return cp
}
