package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pulkyeet/flash-arb/internal/config"
	"github.com/pulkyeet/flash-arb/internal/eth"
)

func main() {
	root := &cobra.Command{
		Use:          "flasharb",
		Short:        "Flash loan funded cross-pool arbitrage on a simulated network",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("journal", "./data/runs.db", "sqlite journal of arbitrage runs")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Set up two diverging pools and execute one flash loan arbitrage",
		RunE:  runScenario,
	}
	addScenarioFlags(runCmd)
	runCmd.Flags().Bool("no-journal", false, "do not record the run")
	root.AddCommand(runCmd)

	setupCmd := &cobra.Command{
		Use:   "setup",
		Short: "Only create the base asset and the two pools, and print the balance report",
		RunE:  runSetup,
	}
	addScenarioFlags(setupCmd)
	root.AddCommand(setupCmd)

	previewCmd := &cobra.Command{
		Use:   "preview",
		Short: "Dry-run the arbitrage and search for the most profitable borrow",
		RunE:  runPreview,
	}
	addScenarioFlags(previewCmd)
	previewCmd.Flags().String("search-min", "0.001", "smallest borrow tried by the search")
	previewCmd.Flags().String("search-max", "5", "largest borrow tried by the search")
	root.AddCommand(previewCmd)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled runs",
		RunE:  runHistory,
	}
	historyCmd.Flags().Int("limit", 20, "number of runs to show, 0 for all")
	root.AddCommand(historyCmd)

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export the journal to parquet",
		RunE:  runExport,
	}
	exportCmd.Flags().String("out", "./data/runs.parquet", "output parquet path")
	root.AddCommand(exportCmd)

	balanceCmd := &cobra.Command{
		Use:   "balance",
		Short: "Read native and WETH balances from a live node",
		RunE:  runBalance,
	}
	balanceCmd.Flags().String("rpc", "", "Ethereum RPC URL")
	balanceCmd.Flags().String("address", eth.HardhatDeployer.Hex(), "account to inspect")
	balanceCmd.Flags().Int64("block", 0, "block number, 0 means latest")
	root.AddCommand(balanceCmd)

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Compare live Uniswap V3 fee tiers of a pair for price gaps",
		RunE:  runScan,
	}
	scanCmd.Flags().String("rpc", "", "Ethereum RPC URL")
	scanCmd.Flags().String("pair", "WETH/USDC", "trading pair (e.g. WETH/USDC, WETH/DAI, WETH/WBTC)")
	scanCmd.Flags().UintSlice("fees", []uint{100, 500, 3000, 10000}, "fee tiers to compare")
	scanCmd.Flags().Uint64("from", 0, "first block, 0 means latest")
	scanCmd.Flags().Uint64("to", 0, "last block (inclusive), 0 scans only the first")
	scanCmd.Flags().Uint64("step", 100, "block step size")
	scanCmd.Flags().Float64("threshold", 0.1, "report spreads above this percentage")
	root.AddCommand(scanCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addScenarioFlags(cmd *cobra.Command) {
	cmd.Flags().String("borrow", "0.05", "flash loan amount in WETH")
	cmd.Flags().String("orientation", "dynamic", "swap orientation (dynamic, fixed)")
	cmd.Flags().Uint64("ratio1", 100, "base units per WETH in pool 1")
	cmd.Flags().Uint64("ratio2", 200, "base units per WETH in pool 2")
	cmd.Flags().Uint32("fee1", eth.FeeLow, "pool 1 fee tier")
	cmd.Flags().Uint32("fee2", eth.FeeLowest, "pool 2 fee tier")
	cmd.Flags().Int64("premium-bps", eth.FlashLoanPremiumBps, "flash loan premium in basis points")
	cmd.Flags().Uint64("gas-price", eth.DefaultGasPriceWei, "gas price in wei")
	cmd.Flags().String("fund-amount", "10", "WETH sent to the base asset contract per pool")
	cmd.Flags().String("base-supply", "1000000", "base asset supply")
	cmd.Flags().String("lender-reserve", "1000", "WETH held by the lender at genesis")
	cmd.Flags().String("native-balance", "10000", "operator native balance at genesis")
}

// loadConfig reads configuration for cmd and builds its logger.
func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
