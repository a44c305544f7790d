package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pulkyeet/flash-arb/internal/eth"
	"github.com/pulkyeet/flash-arb/internal/scenario"
	"github.com/pulkyeet/flash-arb/internal/setup"
	"github.com/pulkyeet/flash-arb/internal/storage"
)

func newScenario(cmd *cobra.Command, journaled bool) (*scenario.Scenario, *zap.Logger, func(), error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	opts := []scenario.Option{scenario.WithLogger(logger)}
	cleanup := func() { _ = logger.Sync() }

	if journaled {
		j, err := storage.OpenJournal(cfg.Journal)
		if err != nil {
			return nil, nil, nil, err
		}
		opts = append(opts, scenario.WithJournal(j))
		cleanup = func() {
			if err := j.Close(); err != nil {
				logger.Error("failed to close journal", zap.Error(err))
			}
			_ = logger.Sync()
		}
	}

	s, err := scenario.New(scenario.FromConfig(cfg), opts...)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return s, logger, cleanup, nil
}

func runScenario(cmd *cobra.Command, _ []string) error {
	noJournal, _ := cmd.Flags().GetBool("no-journal")
	s, logger, cleanup, err := newScenario(cmd, !noJournal)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signalContext()
	defer stop()

	fmt.Printf("🔧 Setting up diverging pools...\n")
	out, err := s.Run(ctx)
	if out == nil {
		return err
	}

	printSetup(out.Setup)
	fmt.Printf("\n⚡ Executor %s\n", out.Executor.Hex())
	fmt.Println(out.Run.Summary(eth.WETHDecimals))
	if out.Run.Succeeded() {
		fmt.Printf("   sold into %s, bought back from %s (spread %.2f%%)\n",
			out.Run.SellPool.Address.Hex(), out.Run.BuyPool.Address.Hex(), out.Run.SpreadPct)
	}
	fmt.Printf("📊 Operator WETH %s -> %s (%s)\n",
		eth.FormatUnits(out.Settlement.Before.Balance, eth.WETHDecimals),
		eth.FormatUnits(out.Settlement.After.Balance, eth.WETHDecimals),
		out.Settlement,
	)

	if err != nil {
		logger.Warn("run aborted", zap.Error(err))
		return err
	}
	return nil
}

func runSetup(cmd *cobra.Command, _ []string) error {
	s, _, cleanup, err := newScenario(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signalContext()
	defer stop()

	res, err := s.Setup.Run(ctx, s.Config().Plan)
	if err != nil {
		return err
	}
	printSetup(res)
	return nil
}

func printSetup(res *setup.Result) {
	fmt.Printf("\n🪙 Base asset %s at %s (token0: %v)\n", res.Base.Symbol, res.Base.Address.Hex(), res.BaseIsToken0)

	fmt.Println("\n📋 Balance report:")
	for _, cp := range res.Report {
		fmt.Printf("  %-20s native %s | base held %s | WETH held %s",
			cp.Label,
			eth.FormatUnits(cp.DeployerNative, eth.WETHDecimals),
			eth.FormatUnits(cp.HeldBase, eth.BaseDecimals),
			eth.FormatUnits(cp.HeldQuote, eth.WETHDecimals),
		)
		if cp.Liquidity != nil {
			fmt.Printf(" | liquidity %s", cp.Liquidity)
		}
		fmt.Println()
	}

	for i, p := range []setup.PoolInfo{res.Pool1, res.Pool2} {
		fmt.Printf("🏊 Pool %d %s fee %d: %s base per WETH (sqrtPriceX96 %s)\n",
			i+1, p.Handle.Address.Hex(), p.Handle.Fee, p.Price.Text('f', 6), p.SqrtPriceX96)
	}
}
