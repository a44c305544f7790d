package main

import (
	"fmt"
	"log"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pulkyeet/flash-arb/internal/pool"
	"github.com/pulkyeet/flash-arb/internal/pricing"
)

// go run scripts/encode_price.go <quote> <base> <base per quote> <fee>
func main() {
	if len(os.Args) < 5 {
		log.Fatal("Usage: go run encode_price.go <quote_addr> <base_addr> <base_per_quote> <fee>")
	}

	quote := common.HexToAddress(os.Args[1])
	base := common.HexToAddress(os.Args[2])

	ratio, ok := new(big.Rat).SetString(os.Args[3])
	if !ok || ratio.Sign() <= 0 {
		log.Fatalf("invalid ratio %q", os.Args[3])
	}
	var fee uint32
	if _, err := fmt.Sscan(os.Args[4], &fee); err != nil {
		log.Fatalf("invalid fee %q: %v", os.Args[4], err)
	}

	token0, token1, sqrtP, err := pricing.Oriented(quote, base, ratio.Denom(), ratio.Num())
	if err != nil {
		log.Fatal(err)
	}

	m, err := pool.NewManager()
	if err != nil {
		log.Fatal(err)
	}
	addr := m.Address(pool.Key{Token0: token0, Token1: token1, Fee: fee})

	fmt.Printf("token0:       %s\n", token0.Hex())
	fmt.Printf("token1:       %s\n", token1.Hex())
	fmt.Printf("sqrtPriceX96: %s\n", sqrtP)
	fmt.Printf("decoded:      %s token1 per token0\n", pricing.DecodeSqrtPrice(sqrtP).Text('f', 12))
	fmt.Printf("pool:         %s\n", addr.Hex())
}
