package main

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pulkyeet/flash-arb/internal/arbitrage"
	"github.com/pulkyeet/flash-arb/internal/eth"
	"github.com/pulkyeet/flash-arb/internal/pool"
)

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	pairStr, _ := cmd.Flags().GetString("pair")
	parts := strings.Split(pairStr, "/")
	if len(parts) != 2 {
		return fmt.Errorf("invalid pair format: %s (use e.g. WETH/USDC)", pairStr)
	}
	a, okA := eth.KnownTokens[strings.ToUpper(parts[0])]
	b, okB := eth.KnownTokens[strings.ToUpper(parts[1])]
	if !okA || !okB {
		return fmt.Errorf("unknown token in pair: %s (known: WETH, USDC, USDT, DAI, WBTC)", pairStr)
	}

	fees, _ := cmd.Flags().GetUintSlice("fees")
	tiers := make([]uint32, 0, len(fees))
	for _, f := range fees {
		if !eth.KnownFeeTiers[uint32(f)] {
			return fmt.Errorf("unsupported fee tier %d", f)
		}
		tiers = append(tiers, uint32(f))
	}

	from, _ := cmd.Flags().GetUint64("from")
	to, _ := cmd.Flags().GetUint64("to")
	step, _ := cmd.Flags().GetUint64("step")
	threshold, _ := cmd.Flags().GetFloat64("threshold")
	if step == 0 {
		step = 1
	}

	ctx, stop := signalContext()
	defer stop()

	client, err := eth.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer client.Close()

	pools, err := pool.NewManager(pool.WithLogger(logger.Named("pool")))
	if err != nil {
		return err
	}

	if from == 0 {
		latest, err := client.BlockNumber(ctx)
		if err != nil {
			return err
		}
		from = latest
	}
	if to < from {
		to = from
	}

	fmt.Printf("scanning blocks %d to %d (step %d) for %s fee tier spreads...\n\n", from, to, step, pairStr)

	checked, found := 0, 0
	for block := from; block <= to; block += step {
		if err := ctx.Err(); err != nil {
			return err
		}
		checked++

		scan, err := arbitrage.ScanTiers(ctx, client, pools, a, b, tiers, new(big.Int).SetUint64(block))
		if err != nil {
			logger.Debug("scan skipped", zap.Uint64("block", block), zap.Error(err))
			continue
		}

		if from == to {
			for _, tp := range scan.Tiers {
				fmt.Printf("%6d %s: %s %s per %s\n", tp.Fee, tp.Pool.Hex(), tp.Price.Text('f', 8), scan.Token1.Symbol, scan.Token0.Symbol)
			}
		}

		if scan.SpreadPct > threshold {
			found++
			fmt.Printf("\n🚨 BLOCK %d - SPREAD %.4f%%\n", block, scan.SpreadPct)
			fmt.Printf("   Cheap: fee %d (%s)\n", scan.Cheapest.Fee, scan.Cheapest.Pool.Hex())
			fmt.Printf("   Rich:  fee %d (%s)\n", scan.Richest.Fee, scan.Richest.Pool.Hex())
		}
	}

	fmt.Printf("\nScan complete! Blocks checked: %d | Spreads above %.2f%%: %d\n", checked, threshold, found)
	return nil
}
