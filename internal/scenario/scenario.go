// Package scenario wires the simulated network end to end: genesis, price
// divergence setup, executor deployment and one measured arbitrage run.
package scenario

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/pulkyeet/flash-arb/internal/arbitrage"
	"github.com/pulkyeet/flash-arb/internal/config"
	"github.com/pulkyeet/flash-arb/internal/eth"
	"github.com/pulkyeet/flash-arb/internal/lending"
	"github.com/pulkyeet/flash-arb/internal/pool"
	"github.com/pulkyeet/flash-arb/internal/settlement"
	"github.com/pulkyeet/flash-arb/internal/setup"
	"github.com/pulkyeet/flash-arb/internal/simulator"
	"github.com/pulkyeet/flash-arb/internal/storage"
	"github.com/pulkyeet/flash-arb/internal/token"
)

type Config struct {
	Operator      common.Address
	NativeBalance *big.Int
	LenderReserve *big.Int
	GasPrice      *big.Int
	PremiumBps    int64
	Plan          setup.Plan
	Borrow        *big.Int
	Orientation   arbitrage.Orientation
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

// DefaultConfig borrows 0.05 WETH against the default two-pool plan.
func DefaultConfig() Config {
	return Config{
		Operator:      eth.HardhatDeployer,
		NativeBalance: ether(10_000),
		LenderReserve: ether(1_000),
		GasPrice:      new(big.Int).SetUint64(eth.DefaultGasPriceWei),
		PremiumBps:    eth.FlashLoanPremiumBps,
		Plan:          setup.DefaultPlan(),
		Borrow:        new(big.Int).Mul(big.NewInt(5), big.NewInt(1e16)),
		Orientation:   arbitrage.OrientationDynamic,
	}
}

type Scenario struct {
	cfg     Config
	Host    *simulator.Host
	WETH    *token.WETH
	Pools   *pool.Manager
	Lender  *lending.Lender
	Setup   *setup.Setup
	journal *storage.Journal
	logger  *zap.Logger
}

type Option func(*Scenario)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Scenario) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithJournal records every run outcome.
func WithJournal(j *storage.Journal) Option {
	return func(s *Scenario) { s.journal = j }
}

// New builds genesis: the wrapped-native contract, the operator's native
// balance and a lender holding LenderReserve of WETH.
func New(cfg Config, opts ...Option) (*Scenario, error) {
	s := &Scenario{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	gasPrice, overflow := uint256.FromBig(cfg.GasPrice)
	if overflow || cfg.GasPrice.Sign() < 0 {
		return nil, fmt.Errorf("gas price out of range: %s", cfg.GasPrice)
	}
	native, overflow := uint256.FromBig(cfg.NativeBalance)
	if overflow || cfg.NativeBalance.Sign() < 0 {
		return nil, fmt.Errorf("native balance out of range: %s", cfg.NativeBalance)
	}

	genesis := simulator.NewState()
	s.WETH = token.InstallWETH(genesis)
	genesis.SetBalance(cfg.Operator, native)

	s.Lender = lending.NewLender(
		lending.WithPremiumBps(cfg.PremiumBps),
		lending.WithLogger(s.logger.Named("lender")),
	)
	reserve, overflow := uint256.FromBig(cfg.LenderReserve)
	if overflow {
		return nil, fmt.Errorf("lender reserve out of range: %s", cfg.LenderReserve)
	}
	genesis.AddBalance(s.Lender.Address(), reserve)
	if err := s.WETH.Deposit(genesis, s.Lender.Address(), cfg.LenderReserve); err != nil {
		return nil, fmt.Errorf("seed lender: %w", err)
	}

	pools, err := pool.NewManager(pool.WithLogger(s.logger.Named("pool")))
	if err != nil {
		return nil, err
	}
	s.Pools = pools

	s.Host = simulator.NewHost(genesis,
		simulator.WithGasPrice(gasPrice),
		simulator.WithLogger(s.logger.Named("host")),
	)
	s.Setup = setup.New(s.Host, cfg.Operator, s.WETH.Address, s.WETH, s.Pools,
		setup.WithLogger(s.logger.Named("setup")),
	)
	return s, nil
}

func (s *Scenario) Config() Config { return s.cfg }

// Prepare runs the setup plan and deploys the executor.
func (s *Scenario) Prepare(ctx context.Context) (*setup.Result, *arbitrage.Executor, error) {
	res, err := s.Setup.Run(ctx, s.cfg.Plan)
	if err != nil {
		return nil, nil, fmt.Errorf("setup: %w", err)
	}

	exec, err := arbitrage.Deploy(ctx, s.Host, s.Pools, s.Lender, s.cfg.Operator,
		arbitrage.WithLogger(s.logger.Named("executor")),
	)
	if err != nil {
		return nil, nil, err
	}
	return res, exec, nil
}

// Request is the configured borrow against the two pools of res.
func (s *Scenario) Request(res *setup.Result) arbitrage.Request {
	return arbitrage.Request{
		Asset:       s.WETH.Address,
		Amount:      new(big.Int).Set(s.cfg.Borrow),
		Pool1:       res.Pool1.Handle,
		Pool2:       res.Pool2.Handle,
		Orientation: s.cfg.Orientation,
	}
}

// Outcome is everything one scenario run produced.
type Outcome struct {
	Setup    *setup.Result
	Executor common.Address
	Run      *arbitrage.Run
	// operator's WETH balance change across the run
	Settlement settlement.Report
	Before     Balances
	After      Balances
}

// Execute runs req once, measuring the operator's WETH balance around it. An
// aborted run is reported in the outcome and returned as the error.
func (s *Scenario) Execute(ctx context.Context, exec *arbitrage.Executor, res *setup.Result, req arbitrage.Request) (*Outcome, error) {
	out := &Outcome{
		Setup:    res,
		Executor: exec.Address(),
		Before:   s.Balances(res),
	}

	out.Settlement = settlement.Measure(ctx, s.Host, req.Asset, s.cfg.Operator, func(ctx context.Context) error {
		var err error
		out.Run, err = exec.Execute(ctx, req)
		return err
	})
	out.After = s.Balances(res)

	if s.journal != nil {
		rec := storage.NewRunRecord(out.Run, req.Orientation, time.Now())
		if _, err := s.journal.RecordRun(rec); err != nil {
			s.logger.Error("failed to journal run", zap.Error(err))
		}
	}
	return out, out.Settlement.Err
}

// Run prepares the pools and executes the configured request.
func (s *Scenario) Run(ctx context.Context) (*Outcome, error) {
	res, exec, err := s.Prepare(ctx)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, exec, res, s.Request(res))
}

// Balances is every balance a run could touch.
type Balances struct {
	OperatorNative *big.Int
	OperatorQuote  *big.Int
	OperatorBase   *big.Int
	LenderQuote    *big.Int
	HeldBase       *big.Int // by the base asset contract
	HeldQuote      *big.Int
	Pool1Reserve0  *big.Int
	Pool1Reserve1  *big.Int
	Pool2Reserve0  *big.Int
	Pool2Reserve1  *big.Int
	Pool1Sqrt      *big.Int
	Pool2Sqrt      *big.Int
}

func (s *Scenario) Balances(res *setup.Result) Balances {
	st := s.Host.View()
	op := s.cfg.Operator

	b := Balances{
		OperatorNative: st.GetBalance(op).ToBig(),
		OperatorQuote:  s.WETH.BalanceOf(st, op),
		LenderQuote:    s.Lender.Reserve(st, s.WETH.Address),
	}
	if res == nil {
		return b
	}

	b.OperatorBase = res.Base.BalanceOf(st, op)
	b.HeldBase = res.Base.BalanceOf(st, res.Base.Address)
	b.HeldQuote = s.WETH.BalanceOf(st, res.Base.Address)
	b.Pool1Reserve0, b.Pool1Reserve1 = s.Pools.Reserves(st, res.Pool1.Handle)
	b.Pool2Reserve0, b.Pool2Reserve1 = s.Pools.Reserves(st, res.Pool2.Handle)
	b.Pool1Sqrt = s.sqrtPrice(st, res.Pool1.Handle)
	b.Pool2Sqrt = s.sqrtPrice(st, res.Pool2.Handle)
	return b
}

// sqrtPrice is nil for a handle with no pool behind it.
func (s *Scenario) sqrtPrice(st *simulator.State, h pool.Handle) *big.Int {
	p, err := s.Pools.SqrtPrice(st, h)
	if err != nil {
		s.logger.Debug("no sqrt price", zap.String("pool", h.Address.Hex()), zap.Error(err))
		return nil
	}
	return p
}

// FromConfig builds a scenario config from loaded settings. Each ratio is base
// units per one quote unit.
func FromConfig(c config.Config) Config {
	cfg := DefaultConfig()
	cfg.NativeBalance = c.NativeBalance
	cfg.LenderReserve = c.LenderReserve
	cfg.GasPrice = new(big.Int).SetUint64(c.GasPrice)
	cfg.PremiumBps = c.PremiumBps
	cfg.Borrow = c.Borrow
	cfg.Orientation = c.Orientation

	cfg.Plan.BaseSupply = c.BaseSupply
	cfg.Plan.Leg1 = setup.Leg{
		QuoteUnits: big.NewInt(1),
		BaseUnits:  new(big.Int).SetUint64(c.Ratio1),
		Fee:        c.Fee1,
		Funding:    c.FundAmount,
	}
	cfg.Plan.Leg2 = setup.Leg{
		QuoteUnits: big.NewInt(1),
		BaseUnits:  new(big.Int).SetUint64(c.Ratio2),
		Fee:        c.Fee2,
		Funding:    c.FundAmount,
	}
	return cfg
}
