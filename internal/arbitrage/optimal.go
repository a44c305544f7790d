package arbitrage

import (
	"context"
	"fmt"
	"math/big"

	"github.com/pulkyeet/flash-arb/internal/simulator"
)

// number of ternary search rounds; each keeps 2/3 of the interval
const searchSteps = 60

// SimulateProfit quotes both legs for req without touching state and returns
// proceeds minus amount plus premium. The result may be negative.
//
// The two legs trade in different pools, so quoting the second leg against
// the unchanged state is exact.
func SimulateProfit(st *simulator.State, pools Pool, lender Lender, req Request) (*big.Int, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	sell, buy, _, err := Orient(st, pools, req)
	if err != nil {
		return nil, err
	}
	mid, err := sell.Other(req.Asset)
	if err != nil {
		return nil, err
	}

	out, err := pools.Quote(st, sell, req.Asset, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("quote out: %w", err)
	}
	if out.Sign() == 0 {
		return new(big.Int).Neg(new(big.Int).Add(req.Amount, lender.Premium(req.Amount))), nil
	}
	back, err := pools.Quote(st, buy, mid, out)
	if err != nil {
		return nil, fmt.Errorf("quote back: %w", err)
	}

	owed := new(big.Int).Add(req.Amount, lender.Premium(req.Amount))
	return back.Sub(back, owed), nil
}

// FindOptimalBorrow searches [minAmount, maxAmount] for the borrow amount that
// maximises quoted profit. Amounts the pools cannot fill count as losses.
func (e *Executor) FindOptimalBorrow(ctx context.Context, req Request, minAmount, maxAmount *big.Int) (optimalAmount, maxProfit *big.Int, err error) {
	if minAmount == nil || maxAmount == nil || minAmount.Sign() <= 0 || minAmount.Cmp(maxAmount) > 0 {
		return nil, nil, fmt.Errorf("%w: bad search range", ErrInvalidRequest)
	}

	st := e.host.View()
	profitAt := func(amount *big.Int) *big.Int {
		r := req
		r.Amount = amount
		p, err := SimulateProfit(st, e.pools, e.lender, r)
		if err != nil {
			return nil
		}
		return p
	}

	left := new(big.Int).Set(minAmount)
	right := new(big.Int).Set(maxAmount)

	bestInput := new(big.Int).Set(minAmount)
	bestProfit := profitAt(minAmount)

	for i := 0; i < searchSteps; i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		// Try 1/3 and 2/3 points
		third := new(big.Int).Sub(right, left)
		third.Div(third, big.NewInt(3))
		if third.Sign() == 0 {
			break
		}
		mid1 := new(big.Int).Add(left, third)
		mid2 := new(big.Int).Add(left, new(big.Int).Mul(third, big.NewInt(2)))

		profit1 := profitAt(mid1)
		profit2 := profitAt(mid2)

		// Update best
		if better(profit1, bestProfit) {
			bestProfit = profit1
			bestInput = mid1
		}
		if better(profit2, bestProfit) {
			bestProfit = profit2
			bestInput = mid2
		}

		// Narrow search range; unfillable amounts sit at the top of the range
		if profit2 == nil || better(profit1, profit2) {
			right = mid2
		} else {
			left = mid1
		}
	}

	if bestProfit == nil {
		return nil, nil, fmt.Errorf("%w: no fillable amount in [%s, %s]", ErrUnprofitable, minAmount, maxAmount)
	}
	return bestInput, bestProfit, nil
}

// nil profit means the amount could not be filled
func better(a, b *big.Int) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.Cmp(b) > 0
}
