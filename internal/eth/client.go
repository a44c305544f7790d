package eth

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Client is a read-only view of a live network: native and ERC20 balances
// and Uniswap V3 pool state.
type Client struct {
	rpc      *ethclient.Client
	erc20    abi.ABI
	pool     abi.ABI
	decimals *lru.Cache[common.Address, uint8]
}

func NewClient(ctx context.Context, url string) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("rpc url not set")
	}

	rpc, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	parsed, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	poolABI, err := abi.JSON(strings.NewReader(UniswapV3PoolABI))
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}

	cache, err := lru.New[common.Address, uint8](256)
	if err != nil {
		return nil, fmt.Errorf("decimals cache: %w", err)
	}

	return &Client{rpc: rpc, erc20: parsed, pool: poolABI, decimals: cache}, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.rpc.BlockNumber(ctx)
}

func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return c.rpc.BalanceAt(ctx, account, blockNumber)
}

// TokenBalance calls token.balanceOf(holder) at the given block (nil = latest).
func (c *Client) TokenBalance(ctx context.Context, token, holder common.Address, blockNumber *big.Int) (*big.Int, error) {
	out, err := c.call(ctx, c.erc20, token, blockNumber, "balanceOf", holder)
	if err != nil {
		return nil, err
	}

	bal, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf type assertion failed")
	}
	return bal, nil
}

// TokenDecimals returns token.decimals(), cached per token.
func (c *Client) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	if dec, ok := c.decimals.Get(token); ok {
		return dec, nil
	}

	out, err := c.call(ctx, c.erc20, token, nil, "decimals")
	if err != nil {
		return 0, err
	}

	dec, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals type assertion failed")
	}
	c.decimals.Add(token, dec)
	return dec, nil
}

// PoolSlot0 returns a Uniswap V3 pool's current sqrt price.
func (c *Client) PoolSlot0(ctx context.Context, pool common.Address, blockNumber *big.Int) (*big.Int, error) {
	out, err := c.call(ctx, c.pool, pool, blockNumber, "slot0")
	if err != nil {
		return nil, err
	}

	sqrtPrice, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("slot0 type assertion failed")
	}
	return sqrtPrice, nil
}

// PoolLiquidity returns a Uniswap V3 pool's in-range liquidity.
func (c *Client) PoolLiquidity(ctx context.Context, pool common.Address, blockNumber *big.Int) (*big.Int, error) {
	out, err := c.call(ctx, c.pool, pool, blockNumber, "liquidity")
	if err != nil {
		return nil, err
	}

	liquidity, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("liquidity type assertion failed")
	}
	return liquidity, nil
}

func (c *Client) call(ctx context.Context, contract abi.ABI, to common.Address, blockNumber *big.Int, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &to, Data: data}
	result, err := c.rpc.CallContract(ctx, msg, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, to.Hex(), err)
	}

	out, err := contract.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return out, nil
}

// FormatUnits renders amount as a decimal string with the given decimals.
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	f := new(big.Float).SetPrec(256).SetInt(amount)
	scale := new(big.Float).SetPrec(256).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	return new(big.Float).SetPrec(256).Quo(f, scale).Text('f', decimals)
}

// ParseUnits parses a decimal string such as "0.05" into base units.
func ParseUnits(value string, decimals int) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(value))
	if !ok {
		return nil, fmt.Errorf("invalid amount: %q", value)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))
	if !r.IsInt() {
		return nil, fmt.Errorf("amount %q has more than %d decimals", value, decimals)
	}
	return new(big.Int).Set(r.Num()), nil
}
