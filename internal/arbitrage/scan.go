package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pulkyeet/flash-arb/internal/eth"
	"github.com/pulkyeet/flash-arb/internal/pool"
	"github.com/pulkyeet/flash-arb/internal/pricing"
)

var ErrNotEnoughPools = errors.New("fewer than two pools answered")

// SlotReader reads live pool prices, usually an *eth.Client.
type SlotReader interface {
	PoolSlot0(ctx context.Context, pool common.Address, blockNumber *big.Int) (*big.Int, error)
}

// PoolAddresser derives a pool address from its key.
type PoolAddresser interface {
	Address(key pool.Key) common.Address
}

// TierPrice is one fee tier's live price.
type TierPrice struct {
	Fee          uint32
	Pool         common.Address
	SqrtPriceX96 *big.Int
	// token1 per token0, adjusted for decimals
	Price *big.Float
}

// TierScan compares the fee tiers of one pair at one block.
type TierScan struct {
	Token0, Token1 eth.TokenInfo
	Tiers          []TierPrice
	Cheapest       TierPrice
	Richest        TierPrice
	SpreadPct      float64
}

// ScanTiers reads every fee tier of (a, b) and reports the widest spread.
// Tiers whose pool does not answer are skipped.
func ScanTiers(ctx context.Context, r SlotReader, pools PoolAddresser, a, b eth.TokenInfo, fees []uint32, blockNumber *big.Int) (*TierScan, error) {
	t0, t1 := a, b
	if pricing.CheckSorted(a.Address, b.Address) != nil {
		t0, t1 = b, a
	}
	if t0.Address == t1.Address {
		return nil, pricing.ErrIdenticalToken
	}

	scale := new(big.Float).SetPrec(256).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(abs(t0.Decimals-t1.Decimals))), nil))

	scan := &TierScan{Token0: t0, Token1: t1}
	for _, fee := range fees {
		addr := pools.Address(pool.Key{Token0: t0.Address, Token1: t1.Address, Fee: fee})
		sqrtP, err := r.PoolSlot0(ctx, addr, blockNumber)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if !pricing.ValidSqrtPrice(sqrtP) {
			continue
		}

		price := pricing.DecodeSqrtPrice(sqrtP)
		if t0.Decimals >= t1.Decimals {
			price.Mul(price, scale)
		} else {
			price.Quo(price, scale)
		}
		scan.Tiers = append(scan.Tiers, TierPrice{Fee: fee, Pool: addr, SqrtPriceX96: sqrtP, Price: price})
	}

	if len(scan.Tiers) < 2 {
		return scan, fmt.Errorf("%w: %d of %d", ErrNotEnoughPools, len(scan.Tiers), len(fees))
	}

	scan.Cheapest, scan.Richest = scan.Tiers[0], scan.Tiers[0]
	for _, tp := range scan.Tiers[1:] {
		if tp.Price.Cmp(scan.Cheapest.Price) < 0 {
			scan.Cheapest = tp
		}
		if tp.Price.Cmp(scan.Richest.Price) > 0 {
			scan.Richest = tp
		}
	}
	scan.SpreadPct = ComparePrices(scan.Cheapest.Price, scan.Richest.Price)
	return scan, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
