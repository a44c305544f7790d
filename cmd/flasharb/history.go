package main

import (
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/pulkyeet/flash-arb/internal/eth"
	"github.com/pulkyeet/flash-arb/internal/storage"
)

func openJournal(cmd *cobra.Command) (*storage.Journal, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()
	return storage.OpenJournal(cfg.Journal)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	j, err := openJournal(cmd)
	if err != nil {
		return err
	}
	defer j.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := j.ListRuns(limit)
	if err != nil {
		return err
	}

	stats, err := j.GetStats()
	if err != nil {
		return err
	}
	total, err := j.TotalProfit()
	if err != nil {
		return err
	}

	fmt.Printf("📊 %d runs (%d settled, %d aborted), total profit %s WETH\n\n",
		stats["total_runs"], stats["settled_runs"], stats["aborted_runs"], eth.FormatUnits(total, eth.WETHDecimals))

	for _, r := range runs {
		status := "✅"
		if !r.Success {
			status = "❌"
		}
		fmt.Printf("%s #%d %s %-7s borrow %s profit %s stage %s",
			status, r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Orientation,
			units(r.Borrowed), units(r.Profit), r.Reached)
		if r.RevertReason != "" {
			fmt.Printf(" (%s)", r.RevertReason)
		}
		fmt.Println()
	}
	return nil
}

func units(s string) string {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return s
	}
	return eth.FormatUnits(v, eth.WETHDecimals)
}

func runExport(cmd *cobra.Command, _ []string) error {
	j, err := openJournal(cmd)
	if err != nil {
		return err
	}
	defer j.Close()

	out, _ := cmd.Flags().GetString("out")
	n, err := j.ExportParquet(out)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Exported %d runs to %s\n", n, out)
	return nil
}
