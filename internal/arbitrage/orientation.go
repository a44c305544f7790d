package arbitrage

import (
	"fmt"
	"math/big"

	"github.com/pulkyeet/flash-arb/internal/pool"
	"github.com/pulkyeet/flash-arb/internal/pricing"
	"github.com/pulkyeet/flash-arb/internal/simulator"
)

// Quotes holds what one borrowed unit buys of the intermediate asset in each
// pool, from their current sqrt prices.
type Quotes struct {
	Pool1 *big.Float
	Pool2 *big.Float
}

// QuotePools reads both pool prices in terms of the borrowed asset.
func QuotePools(st *simulator.State, pools Pool, req Request) (Quotes, error) {
	s1, err := pools.SqrtPrice(st, req.Pool1)
	if err != nil {
		return Quotes{}, fmt.Errorf("pool1 price: %w", err)
	}
	s2, err := pools.SqrtPrice(st, req.Pool2)
	if err != nil {
		return Quotes{}, fmt.Errorf("pool2 price: %w", err)
	}

	return Quotes{
		Pool1: pricing.PriceOf(req.Asset, req.Pool1.Token0, s1),
		Pool2: pricing.PriceOf(req.Asset, req.Pool2.Token0, s2),
	}, nil
}

// Orient returns the pool the borrowed asset is sold into and the pool the
// intermediate is sold back into.
//
// Fixed orientation keeps Pool1 first. Dynamic orientation sells into the pool
// paying more intermediate per borrowed unit, which for a sorted pair means
// the larger sqrt price when the borrowed asset is token0 and the smaller one
// when it is token1. Ties keep Pool1 first.
func Orient(st *simulator.State, pools Pool, req Request) (sell, buy pool.Handle, spread float64, err error) {
	q, err := QuotePools(st, pools, req)
	if err != nil {
		return pool.Handle{}, pool.Handle{}, 0, err
	}
	spread = ComparePrices(q.Pool1, q.Pool2)

	if req.Orientation == OrientationDynamic && q.Pool2.Cmp(q.Pool1) > 0 {
		return req.Pool2, req.Pool1, spread, nil
	}
	return req.Pool1, req.Pool2, spread, nil
}

// returns difference of price between pools (percentage)
func ComparePrices(price1, price2 *big.Float) float64 {
	cmp := price1.Cmp(price2)
	if cmp == 0 {
		return 0.0
	}

	higher, lower := price1, price2
	if cmp < 0 {
		higher, lower = price2, price1
	}

	diff := new(big.Float).Sub(higher, lower)
	pctDiff := new(big.Float).Quo(diff, lower)
	pctDiff.Mul(pctDiff, big.NewFloat(100.0))

	result, _ := pctDiff.Float64()
	return result
}
