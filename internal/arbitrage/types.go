package arbitrage

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pulkyeet/flash-arb/internal/eth"
	"github.com/pulkyeet/flash-arb/internal/lending"
	"github.com/pulkyeet/flash-arb/internal/pool"
	"github.com/pulkyeet/flash-arb/internal/simulator"
)

var (
	ErrUnprofitable   = errors.New("arbitrage unprofitable")
	ErrPairMismatch   = errors.New("pools do not trade the same pair")
	ErrSamePool       = errors.New("both legs use the same pool")
	ErrInvalidRequest = errors.New("invalid arbitrage request")
)

// Pool is what the executor needs from the pools it trades against.
type Pool interface {
	Swap(st *simulator.State, h pool.Handle, assetIn common.Address, amountIn *big.Int, payer, recipient common.Address) (*big.Int, error)
	Quote(st *simulator.State, h pool.Handle, assetIn common.Address, amountIn *big.Int) (*big.Int, error)
	Liquidity(st *simulator.State, h pool.Handle) (*big.Int, error)
	SqrtPrice(st *simulator.State, h pool.Handle) (*big.Int, error)
}

// Lender is the flash loan provider.
type Lender interface {
	RequestFlashLoan(st *simulator.State, receiver lending.Receiver, asset common.Address, amount *big.Int) (lending.FlashLoan, error)
	Premium(amount *big.Int) *big.Int
}

// Stage is how far a run progressed.
type Stage int

const (
	StageInit Stage = iota
	StageBorrowed
	StageSwappedOut
	StageSwappedBack
	StageRepaid
	StageSettled
	StageAborted
)

var stageNames = [...]string{
	StageInit:        "INIT",
	StageBorrowed:    "BORROWED",
	StageSwappedOut:  "SWAPPED_OUT",
	StageSwappedBack: "SWAPPED_BACK",
	StageRepaid:      "REPAID",
	StageSettled:     "SETTLED",
	StageAborted:     "ABORTED",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// Orientation decides which pool the borrowed asset is sold into first.
type Orientation int

const (
	// OrientationDynamic sells into whichever pool pays more of the
	// intermediate asset per borrowed unit.
	OrientationDynamic Orientation = iota
	// OrientationFixed always sells into Pool1 and buys back from Pool2.
	OrientationFixed
)

func (o Orientation) String() string {
	switch o {
	case OrientationDynamic:
		return "dynamic"
	case OrientationFixed:
		return "fixed"
	}
	return fmt.Sprintf("Orientation(%d)", int(o))
}

func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dynamic":
		return OrientationDynamic, nil
	case "fixed":
		return OrientationFixed, nil
	}
	return 0, fmt.Errorf("unknown orientation %q (want dynamic or fixed)", s)
}

// Request borrows Amount of Asset and trades it across Pool1 and Pool2.
type Request struct {
	Asset       common.Address
	Amount      *big.Int
	Pool1       pool.Handle
	Pool2       pool.Handle
	Orientation Orientation
}

func (r Request) validate() error {
	if r.Amount == nil || r.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: borrow amount must be positive", ErrInvalidRequest)
	}
	if r.Pool1.Address == r.Pool2.Address {
		return ErrSamePool
	}

	mid1, err := r.Pool1.Other(r.Asset)
	if err != nil {
		return fmt.Errorf("pool1: %w", err)
	}
	mid2, err := r.Pool2.Other(r.Asset)
	if err != nil {
		return fmt.Errorf("pool2: %w", err)
	}
	if mid1 != mid2 {
		return fmt.Errorf("%w: %s vs %s", ErrPairMismatch, r.Pool1.Key, r.Pool2.Key)
	}
	return nil
}

// Run is the outcome of one arbitrage attempt.
type Run struct {
	Asset        common.Address
	Intermediate common.Address
	Borrowed     *big.Int
	Premium      *big.Int

	Pool1    pool.Handle
	Pool2    pool.Handle
	SellPool pool.Handle
	BuyPool  pool.Handle

	// price gap between the two pools before the run, in percent
	SpreadPct float64

	IntermediateAmount *big.Int
	Proceeds           *big.Int
	Repayment          *big.Int
	Profit             *big.Int

	Stage   Stage
	Reached Stage // last stage reached, meaningful when Stage is ABORTED

	RevertReason string
	Receipt      *simulator.Receipt
}

// newRun runs before validation, so req.Amount may be nil.
func newRun(req Request) *Run {
	run := &Run{
		Asset:   req.Asset,
		Pool1:   req.Pool1,
		Pool2:   req.Pool2,
		Stage:   StageInit,
		Reached: StageInit,
	}
	if req.Amount != nil {
		run.Borrowed = new(big.Int).Set(req.Amount)
	}
	return run
}

func (r *Run) advance(s Stage) {
	r.Stage = s
	r.Reached = s
}

func (r *Run) abort(err error) {
	r.Stage = StageAborted
	r.RevertReason = err.Error()
	r.Profit = nil
}

func (r *Run) Succeeded() bool {
	return r.Stage == StageSettled
}

// Summary is a one-line human readable outcome.
func (r *Run) Summary(decimals int) string {
	if !r.Succeeded() {
		return fmt.Sprintf("❌ Arbitrage ABORTED after %s: %s", r.Reached, r.RevertReason)
	}
	return fmt.Sprintf(
		"✅ Arbitrage SETTLED | borrowed %s | proceeds %s | repaid %s | profit %s",
		eth.FormatUnits(r.Borrowed, decimals),
		eth.FormatUnits(r.Proceeds, decimals),
		eth.FormatUnits(r.Repayment, decimals),
		eth.FormatUnits(r.Profit, decimals),
	)
}
