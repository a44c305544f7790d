package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pulkyeet/flash-arb/internal/arbitrage"
	"github.com/pulkyeet/flash-arb/internal/eth"
)

func runPreview(cmd *cobra.Command, _ []string) error {
	s, _, cleanup, err := newScenario(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()

	minStr, _ := cmd.Flags().GetString("search-min")
	maxStr, _ := cmd.Flags().GetString("search-max")
	minAmount, err := eth.ParseUnits(minStr, eth.WETHDecimals)
	if err != nil {
		return fmt.Errorf("search-min: %w", err)
	}
	maxAmount, err := eth.ParseUnits(maxStr, eth.WETHDecimals)
	if err != nil {
		return fmt.Errorf("search-max: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()

	res, exec, err := s.Prepare(ctx)
	if err != nil {
		return err
	}
	printSetup(res)

	req := s.Request(res)
	q, err := arbitrage.QuotePools(s.Host.View(), s.Pools, req)
	if err != nil {
		return err
	}
	fmt.Printf("\n📈 Base per WETH: pool 1 %s, pool 2 %s\n", q.Pool1.Text('f', 6), q.Pool2.Text('f', 6))

	run, err := exec.Preview(ctx, req)
	fmt.Printf("🔍 Preview (%s, borrow %s): %s\n", req.Orientation, eth.FormatUnits(req.Amount, eth.WETHDecimals), run.Summary(eth.WETHDecimals))
	if err != nil {
		fmt.Printf("   %v\n", err)
	}

	amount, profit, err := exec.FindOptimalBorrow(ctx, req, minAmount, maxAmount)
	if err != nil {
		fmt.Printf("❌ No profitable borrow in range: %v\n", err)
		return nil
	}
	fmt.Printf("🎯 Best borrow %s WETH -> profit %s WETH\n",
		eth.FormatUnits(amount, eth.WETHDecimals), eth.FormatUnits(profit, eth.WETHDecimals))
	return nil
}
