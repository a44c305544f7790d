package arbitrage

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/pulkyeet/flash-arb/internal/eth"
	"github.com/pulkyeet/flash-arb/internal/lending"
	"github.com/pulkyeet/flash-arb/internal/simulator"
	"github.com/pulkyeet/flash-arb/internal/token"
)

var executorCode = []byte("flashloan-arbitrage")

// Executor is the flash loan receiver contract. It borrows, trades across two
// pools, repays and forwards whatever is left to its owner.
type Executor struct {
	host    *simulator.Host
	pools   Pool
	lender  Lender
	address common.Address
	owner   common.Address
	gas     uint64
	logger  *zap.Logger
}

type Option func(*Executor)

// WithGas sets the gas charged for each committed run.
func WithGas(gas uint64) Option {
	return func(e *Executor) { e.gas = gas }
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Deploy installs the executor at the CREATE address of owner's next nonce.
func Deploy(ctx context.Context, host *simulator.Host, pools Pool, lender Lender, owner common.Address, opts ...Option) (*Executor, error) {
	e := &Executor{
		host:   host,
		pools:  pools,
		lender: lender,
		owner:  owner,
		gas:    eth.GasFlashArbitrage,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	_, err := host.Execute(ctx, owner, "deploy executor", eth.GasDeployExecutor, func(st *simulator.State) error {
		e.address = crypto.CreateAddress(owner, st.GetNonce(owner))
		if len(st.GetCode(e.address)) > 0 {
			return fmt.Errorf("executor address %s already has code", e.address.Hex())
		}
		st.SetCode(e.address, executorCode)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("deploy executor: %w", err)
	}

	e.logger.Info("executor deployed",
		zap.String("address", e.address.Hex()),
		zap.String("owner", owner.Hex()),
	)
	return e, nil
}

func (e *Executor) Address() common.Address { return e.address }

func (e *Executor) Owner() common.Address { return e.owner }

// Execute runs one borrow -> swap -> swap -> repay sequence as a single atomic
// operation sent by the owner. On any failure nothing is committed, the run
// is returned with Stage ABORTED and the error wraps the cause.
func (e *Executor) Execute(ctx context.Context, req Request) (*Run, error) {
	run := newRun(req)
	if err := req.validate(); err != nil {
		run.abort(err)
		return run, err
	}

	receipt, err := e.host.Execute(ctx, e.owner, "flash arbitrage", e.gas, func(st *simulator.State) error {
		return e.execute(st, req, run)
	})
	run.Receipt = receipt
	if err != nil {
		run.abort(err)
		e.logger.Warn("run aborted",
			zap.String("asset", req.Asset.Hex()),
			zap.String("amount", req.Amount.String()),
			zap.Stringer("reached", run.Reached),
			zap.Error(err),
		)
		return run, err
	}

	run.advance(StageSettled)
	e.logger.Info("run settled",
		zap.String("sell_pool", run.SellPool.Address.Hex()),
		zap.String("buy_pool", run.BuyPool.Address.Hex()),
		zap.String("borrowed", run.Borrowed.String()),
		zap.String("proceeds", run.Proceeds.String()),
		zap.String("profit", run.Profit.String()),
		zap.Uint64("block", receipt.Block),
	)
	return run, nil
}

// Preview runs the same sequence against a private fork and reports the
// outcome without committing anything.
func (e *Executor) Preview(ctx context.Context, req Request) (*Run, error) {
	run := newRun(req)
	if err := req.validate(); err != nil {
		run.abort(err)
		return run, err
	}
	if err := ctx.Err(); err != nil {
		run.abort(err)
		return run, err
	}

	if err := e.execute(e.host.Fork(), req, run); err != nil {
		run.abort(err)
		return run, err
	}
	run.advance(StageSettled)
	return run, nil
}

func (e *Executor) execute(st *simulator.State, req Request, run *Run) error {
	sell, buy, spread, err := Orient(st, e.pools, req)
	if err != nil {
		return err
	}
	mid, err := sell.Other(req.Asset)
	if err != nil {
		return err
	}
	run.SellPool, run.BuyPool, run.SpreadPct, run.Intermediate = sell, buy, spread, mid

	e.logger.Debug("flash loan requested",
		zap.String("asset", req.Asset.Hex()),
		zap.String("amount", req.Amount.String()),
		zap.String("sell_pool", sell.Address.Hex()),
		zap.String("buy_pool", buy.Address.Hex()),
		zap.Float64("spread_pct", spread),
	)

	receiver := &runReceiver{executor: e, run: run}
	loan, err := e.lender.RequestFlashLoan(st, receiver, req.Asset, req.Amount)
	if err != nil {
		return fmt.Errorf("flash loan: %w", err)
	}
	run.Repayment = loan.Owed()
	run.advance(StageRepaid)

	profit := new(big.Int).Sub(run.Proceeds, run.Repayment)
	if err := token.Transfer(st, req.Asset, e.address, e.owner, profit); err != nil {
		return fmt.Errorf("forward profit: %w", err)
	}
	run.Profit = profit

	st.Emit(simulator.Event{
		Address: e.address,
		Name:    "ArbitrageSettled",
		Args: map[string]string{
			"asset":    req.Asset.Hex(),
			"borrowed": req.Amount.String(),
			"proceeds": run.Proceeds.String(),
			"profit":   profit.String(),
		},
	})
	return nil
}

// runReceiver is the flash loan callback for a single run.
type runReceiver struct {
	executor *Executor
	run      *Run
}

func (r *runReceiver) Address() common.Address { return r.executor.address }

func (r *runReceiver) ExecuteOperation(st *simulator.State, loan lending.FlashLoan) error {
	e, run := r.executor, r.run
	run.Premium = loan.Premium
	run.advance(StageBorrowed)

	out, err := e.pools.Swap(st, run.SellPool, loan.Asset, loan.Amount, e.address, e.address)
	if err != nil {
		return fmt.Errorf("swap out on %s: %w", run.SellPool.Address.Hex(), err)
	}
	run.IntermediateAmount = out
	run.advance(StageSwappedOut)
	e.logger.Debug("swap leg",
		zap.String("pool", run.SellPool.Address.Hex()),
		zap.String("in", loan.Amount.String()),
		zap.String("out", out.String()),
	)

	back, err := e.pools.Swap(st, run.BuyPool, run.Intermediate, out, e.address, e.address)
	if err != nil {
		return fmt.Errorf("swap back on %s: %w", run.BuyPool.Address.Hex(), err)
	}
	run.Proceeds = back
	run.advance(StageSwappedBack)
	e.logger.Debug("swap leg",
		zap.String("pool", run.BuyPool.Address.Hex()),
		zap.String("in", out.String()),
		zap.String("out", back.String()),
	)

	if owed := loan.Owed(); back.Cmp(owed) < 0 {
		return fmt.Errorf("%w: proceeds %s below owed %s", ErrUnprofitable, back, owed)
	}
	return nil
}
