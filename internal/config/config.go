package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pulkyeet/flash-arb/internal/arbitrage"
	"github.com/pulkyeet/flash-arb/internal/eth"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL        string
	LogLevel      string
	Journal       string
	GasPrice      uint64
	PremiumBps    int64
	Orientation   arbitrage.Orientation
	Borrow        *big.Int
	BaseSupply    *big.Int
	FundAmount    *big.Int
	Ratio1        uint64
	Ratio2        uint64
	Fee1          uint32
	Fee2          uint32
	LenderReserve *big.Int
	NativeBalance *big.Int
}

// Load merges .env, config file, environment variables, and flags into Config.
// Amounts are decimal ether strings ("0.05").
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("FLASHARB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("journal", "./data/runs.db")
	v.SetDefault("gas-price", eth.DefaultGasPriceWei)
	v.SetDefault("premium-bps", int64(eth.FlashLoanPremiumBps))
	v.SetDefault("orientation", "dynamic")
	v.SetDefault("borrow", "0.05")
	v.SetDefault("base-supply", "1000000")
	v.SetDefault("fund-amount", "10")
	v.SetDefault("ratio1", uint64(100))
	v.SetDefault("ratio2", uint64(200))
	v.SetDefault("fee1", uint32(eth.FeeLow))
	v.SetDefault("fee2", uint32(eth.FeeLowest))
	v.SetDefault("lender-reserve", "1000")
	v.SetDefault("native-balance", "10000")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	orientation, err := arbitrage.ParseOrientation(v.GetString("orientation"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RPCURL:      v.GetString("rpc"),
		LogLevel:    v.GetString("log-level"),
		Journal:     v.GetString("journal"),
		GasPrice:    v.GetUint64("gas-price"),
		PremiumBps:  v.GetInt64("premium-bps"),
		Orientation: orientation,
		Ratio1:      v.GetUint64("ratio1"),
		Ratio2:      v.GetUint64("ratio2"),
		Fee1:        v.GetUint32("fee1"),
		Fee2:        v.GetUint32("fee2"),
	}

	amounts := []struct {
		key string
		dst **big.Int
	}{
		{"borrow", &cfg.Borrow},
		{"base-supply", &cfg.BaseSupply},
		{"fund-amount", &cfg.FundAmount},
		{"lender-reserve", &cfg.LenderReserve},
		{"native-balance", &cfg.NativeBalance},
	}
	for _, a := range amounts {
		amt, err := eth.ParseUnits(v.GetString(a.key), eth.WETHDecimals)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", a.key, err)
		}
		*a.dst = amt
	}

	if cfg.RPCURL == "" {
		cfg.RPCURL = os.Getenv("ALCHEMY_URL")
	}

	return cfg, nil
}

// Validate rejects values no run can use.
func (c Config) Validate() error {
	if c.Borrow == nil || c.Borrow.Sign() <= 0 {
		return fmt.Errorf("borrow must be positive")
	}
	if c.Ratio1 == 0 || c.Ratio2 == 0 {
		return fmt.Errorf("ratios must be positive")
	}
	if !eth.KnownFeeTiers[c.Fee1] || !eth.KnownFeeTiers[c.Fee2] {
		return fmt.Errorf("unsupported fee tier (%d, %d)", c.Fee1, c.Fee2)
	}
	if c.Fee1 == c.Fee2 {
		return fmt.Errorf("fee1 and fee2 must differ, got %d", c.Fee1)
	}
	if c.PremiumBps < 0 || c.PremiumBps > 10_000 {
		return fmt.Errorf("premium-bps out of range: %d", c.PremiumBps)
	}
	for name, amt := range map[string]*big.Int{
		"base-supply":    c.BaseSupply,
		"fund-amount":    c.FundAmount,
		"lender-reserve": c.LenderReserve,
		"native-balance": c.NativeBalance,
	} {
		if amt == nil || amt.Sign() <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
