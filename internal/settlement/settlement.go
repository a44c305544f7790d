// Package settlement measures what an operation did to balances. It only
// reads state.
package settlement

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pulkyeet/flash-arb/internal/eth"
	"github.com/pulkyeet/flash-arb/internal/simulator"
	"github.com/pulkyeet/flash-arb/internal/token"
)

// Snapshot is one holder's balance of one asset at a block.
type Snapshot struct {
	Asset   common.Address
	Holder  common.Address
	Block   uint64
	Balance *big.Int
}

// Observe reads holder's balance of asset from st.
func Observe(st *simulator.State, asset, holder common.Address) Snapshot {
	return Snapshot{
		Asset:   asset,
		Holder:  holder,
		Balance: token.BalanceOf(st, asset, holder),
	}
}

// ObserveNative reads holder's native balance; Asset is left zero.
func ObserveNative(st *simulator.State, holder common.Address) Snapshot {
	return Snapshot{
		Holder:  holder,
		Balance: st.GetBalance(holder).ToBig(),
	}
}

// Delta returns after - before. It may be negative.
func Delta(before, after Snapshot) *big.Int {
	return new(big.Int).Sub(after.Balance, before.Balance)
}

// Report is the balance change an operation caused and the operation's error.
type Report struct {
	Before Snapshot
	After  Snapshot
	Delta  *big.Int
	Err    error
}

func (r Report) Profitable() bool {
	return r.Err == nil && r.Delta.Sign() > 0
}

func (r Report) String() string {
	if r.Err != nil {
		return "failed: " + r.Err.Error() + " (delta " + eth.FormatUnits(r.Delta, eth.WETHDecimals) + ")"
	}
	return "delta " + eth.FormatUnits(r.Delta, eth.WETHDecimals)
}

// Measure snapshots holder's balance of asset on the host's committed state,
// runs fn and snapshots again.
func Measure(ctx context.Context, host *simulator.Host, asset, holder common.Address, fn func(ctx context.Context) error) Report {
	before := Observe(host.View(), asset, holder)
	before.Block = host.BlockNumber()

	err := fn(ctx)

	after := Observe(host.View(), asset, holder)
	after.Block = host.BlockNumber()

	return Report{
		Before: before,
		After:  after,
		Delta:  Delta(before, after),
		Err:    err,
	}
}
