package eth

import (
	"github.com/ethereum/go-ethereum/common"
)

// Token addresses, Ethereum mainnet
var (
	WETHAddress = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	USDCAddress = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	USDTAddress = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	DAIAddress  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	WBTCAddress = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
)

const (
	WETHDecimals = 18
	USDCDecimals = 6
	USDTDecimals = 6
	DAIDecimals  = 18
	WBTCDecimals = 8

	// the simulated base asset
	BaseDecimals = 18
)

// TokenInfo bundles address + decimals for easy lookup
type TokenInfo struct {
	Address  common.Address
	Decimals int
	Symbol   string
}

// KnownTokens, lookup by symbol string
var KnownTokens = map[string]TokenInfo{
	"WETH": {WETHAddress, WETHDecimals, "WETH"},
	"USDC": {USDCAddress, USDCDecimals, "USDC"},
	"USDT": {USDTAddress, USDTDecimals, "USDT"},
	"DAI":  {DAIAddress, DAIDecimals, "DAI"},
	"WBTC": {WBTCAddress, WBTCDecimals, "WBTC"},
}

// Aave V3 mainnet, the flash loan lender the executor was written against
var (
	AavePoolAddressesProvider = common.HexToAddress("0x2f39d218133AFaB8F2B819B1066c7E434Ad94E9e")
	AavePool                  = common.HexToAddress("0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2")
)

// FlashLoanPremiumBps is Aave V3's FLASHLOAN_PREMIUM_TOTAL (0.05%).
const FlashLoanPremiumBps = 5

// Uniswap V3 mainnet factory; pool addresses are derived from it with CREATE2
var (
	UniswapV3Factory = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
	PoolInitCodeHash = hexToBytes32("e34f199b19b2b4f47f68442619d555527d244f78a3297ea89325f843f87b8b54")
)

// Fee tiers in hundredths of a basis point (500 = 0.05%)
const (
	FeeLowest uint32 = 100
	FeeLow    uint32 = 500
	FeeMedium uint32 = 3000
	FeeHigh   uint32 = 10000
)

var KnownFeeTiers = map[uint32]bool{
	FeeLowest: true,
	FeeLow:    true,
	FeeMedium: true,
	FeeHigh:   true,
}

// first hardhat account, the default deployer/operator of the local network
var HardhatDeployer = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

// Gas schedule charged by the simulator per committed operation
const (
	GasDeployToken     uint64 = 1_200_000
	GasWrap            uint64 = 45_000
	GasTransfer        uint64 = 35_000
	GasCreatePool      uint64 = 4_500_000
	GasProvide         uint64 = 400_000
	GasDeployExecutor  uint64 = 1_500_000
	GasFlashArbitrage  uint64 = 450_000
	DefaultGasPriceWei uint64 = 1_000_000_000 // 1 gwei
)

func hexToBytes32(s string) [32]byte {
	var b [32]byte
	copy(b[:], common.FromHex(s))
	return b
}
