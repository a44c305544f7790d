package main

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/pulkyeet/flash-arb/internal/eth"
)

func runBalance(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	addrStr, _ := cmd.Flags().GetString("address")
	if !common.IsHexAddress(addrStr) {
		return fmt.Errorf("invalid address %q", addrStr)
	}
	addr := common.HexToAddress(addrStr)

	var block *big.Int
	if n, _ := cmd.Flags().GetInt64("block"); n > 0 {
		block = big.NewInt(n)
	}

	ctx, stop := signalContext()
	defer stop()

	client, err := eth.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer client.Close()

	native, err := client.BalanceAt(ctx, addr, block)
	if err != nil {
		return err
	}
	weth, err := client.TokenBalance(ctx, eth.WETHAddress, addr, block)
	if err != nil {
		return err
	}
	decimals, err := client.TokenDecimals(ctx, eth.WETHAddress)
	if err != nil {
		return err
	}

	fmt.Printf("📥 %s\n", addr.Hex())
	fmt.Printf("   ETH  %s\n", eth.FormatUnits(native, eth.WETHDecimals))
	fmt.Printf("   WETH %s\n", eth.FormatUnits(weth, int(decimals)))
	return nil
}
