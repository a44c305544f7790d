package pool

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pulkyeet/flash-arb/internal/eth"
	"github.com/pulkyeet/flash-arb/internal/pricing"
	"github.com/pulkyeet/flash-arb/internal/simulator"
	"github.com/pulkyeet/flash-arb/internal/token"
)

var (
	provider = eth.HardhatDeployer
	trader   = common.HexToAddress("0x00000000000000000000000000000000000b0b00")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

// two tokens, both held by provider, returned sorted
func setupTokens(t *testing.T, st *simulator.State) (common.Address, common.Address) {
	t.Helper()

	a, err := token.Deploy(st, provider, "AAA", 18, ether(1_000_000), provider)
	if err != nil {
		t.Fatal(err)
	}
	st.SetNonce(provider, st.GetNonce(provider)+1)

	b, err := token.Deploy(st, provider, "BBB", 18, ether(1_000_000), provider)
	if err != nil {
		t.Fatal(err)
	}
	st.SetNonce(provider, st.GetNonce(provider)+1)

	return pricing.SortTokens(a.Address, b.Address)
}

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager()
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestAddressMatchesMainnet(t *testing.T) {
	m := newManager(t)

	// USDC/WETH 0.05% on mainnet
	usdc := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	got := m.Address(Key{Token0: usdc, Token1: eth.WETHAddress, Fee: eth.FeeLow})
	want := common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640")
	if got != want {
		t.Fatalf("pool address = %s, want %s", got.Hex(), want.Hex())
	}

	// cached lookups return the same address
	if again := m.Address(Key{Token0: usdc, Token1: eth.WETHAddress, Fee: eth.FeeLow}); again != want {
		t.Fatalf("cached address = %s", again.Hex())
	}
}

func TestCreatePoolValidation(t *testing.T) {
	st := simulator.NewState()
	m := newManager(t)
	t0, t1 := setupTokens(t, st)

	if _, err := m.CreatePool(st, t1, t0, eth.FeeLow, pricing.Q96); !errors.Is(err, pricing.ErrUnsortedTokens) {
		t.Fatalf("unsorted err = %v", err)
	}
	if _, err := m.CreatePool(st, t0, t1, 250, pricing.Q96); !errors.Is(err, ErrInvalidFee) {
		t.Fatalf("fee err = %v", err)
	}
	if _, err := m.CreatePool(st, t0, t1, eth.FeeLow, big.NewInt(1)); !errors.Is(err, ErrInvalidSqrtPrice) {
		t.Fatalf("sqrt price err = %v", err)
	}

	if _, err := m.CreatePool(st, t0, t1, eth.FeeLow, pricing.Q96); err != nil {
		t.Fatalf("CreatePool: %v", err)
	}
	if _, err := m.CreatePool(st, t0, t1, eth.FeeLow, pricing.Q96); !errors.Is(err, ErrPoolExists) {
		t.Fatalf("duplicate err = %v", err)
	}
}

func TestFeeTiersAreIsolated(t *testing.T) {
	st := simulator.NewState()
	m := newManager(t)
	t0, t1 := setupTokens(t, st)

	p100, _ := pricing.EncodePriceSqrt(big.NewInt(100), big.NewInt(1))
	p200, _ := pricing.EncodePriceSqrt(big.NewInt(200), big.NewInt(1))

	a, err := m.CreatePool(st, t0, t1, eth.FeeLow, p100)
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.CreatePool(st, t0, t1, eth.FeeLowest, p200)
	if err != nil {
		t.Fatal(err)
	}
	if a.Address == b.Address {
		t.Fatal("fee tiers share a pool address")
	}

	if _, err := m.ProvideLiquidity(st, a, provider, ether(10), ether(1000)); err != nil {
		t.Fatalf("provide a: %v", err)
	}

	la, _ := m.Liquidity(st, a)
	lb, _ := m.Liquidity(st, b)
	if la.Sign() <= 0 {
		t.Fatalf("pool a liquidity = %s", la)
	}
	if lb.Sign() != 0 {
		t.Fatalf("provide on a touched b: liquidity = %s", lb)
	}

	sb, _ := m.SqrtPrice(st, b)
	if sb.Cmp(p200) != 0 {
		t.Fatalf("pool b price changed to %s", sb)
	}

	found, err := m.Lookup(st, b.Key)
	if err != nil || found != b {
		t.Fatalf("Lookup(b) = %+v, %v", found, err)
	}
	if _, err := m.Lookup(st, Key{Token0: t0, Token1: t1, Fee: eth.FeeHigh}); !errors.Is(err, ErrPoolNotFound) {
		t.Fatalf("Lookup(missing) = %v", err)
	}
}

func TestProvideLiquidityConsumesAtPrice(t *testing.T) {
	st := simulator.NewState()
	m := newManager(t)
	t0, t1 := setupTokens(t, st)

	sqrtP, _ := pricing.EncodePriceSqrt(big.NewInt(100), big.NewInt(1))
	h, err := m.CreatePool(st, t0, t1, eth.FeeLow, sqrtP)
	if err != nil {
		t.Fatal(err)
	}

	// 10 token0 at 100 token1 each needs 1000 token1; the rest stays with the provider
	liq, err := m.ProvideLiquidity(st, h, provider, ether(10), ether(5000))
	if err != nil {
		t.Fatalf("ProvideLiquidity: %v", err)
	}
	if want := ether(100); new(big.Int).Sub(liq, want).CmpAbs(big.NewInt(1)) > 0 {
		t.Fatalf("liquidity = %s, want ~%s", liq, want)
	}

	r0, r1 := m.Reserves(st, h)
	if r0.Cmp(ether(10)) > 0 || new(big.Int).Sub(ether(10), r0).Cmp(big.NewInt(2)) > 0 {
		t.Fatalf("reserve0 = %s", r0)
	}
	if new(big.Int).Sub(r1, ether(1000)).CmpAbs(big.NewInt(2)) > 0 {
		t.Fatalf("reserve1 = %s", r1)
	}

	if _, err := m.ProvideLiquidity(st, h, trader, big.NewInt(0), ether(1)); !errors.Is(err, ErrZeroLiquidity) {
		t.Fatalf("zero deposit err = %v", err)
	}
}

func TestSwapBothDirections(t *testing.T) {
	st := simulator.NewState()
	m := newManager(t)
	t0, t1 := setupTokens(t, st)

	sqrtP, _ := pricing.EncodePriceSqrt(big.NewInt(100), big.NewInt(1))
	h, err := m.CreatePool(st, t0, t1, eth.FeeLow, sqrtP)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.ProvideLiquidity(st, h, provider, ether(10), ether(1000)); err != nil {
		t.Fatal(err)
	}

	if err := token.Transfer(st, t0, provider, trader, ether(1)); err != nil {
		t.Fatal(err)
	}

	// constant product estimate: 1000 * 0.9995 / 10.9995 ~= 90.868
	quoted, err := m.Quote(st, h, t0, ether(1))
	if err != nil {
		t.Fatal(err)
	}
	out, err := m.Swap(st, h, t0, ether(1), trader, trader)
	if err != nil {
		t.Fatalf("Swap 0->1: %v", err)
	}
	if out.Cmp(quoted) != 0 {
		t.Fatalf("swap paid %s, quote said %s", out, quoted)
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(out), new(big.Float).SetInt(ether(1))).Float64()
	if f < 90.8 || f > 90.9 {
		t.Fatalf("out = %f, want ~90.87", f)
	}
	if got := token.BalanceOf(st, t1, trader); got.Cmp(out) != 0 {
		t.Fatalf("trader token1 = %s", got)
	}
	if got := token.BalanceOf(st, t0, trader); got.Sign() != 0 {
		t.Fatalf("trader token0 = %s", got)
	}

	after, _ := m.SqrtPrice(st, h)
	if after.Cmp(sqrtP) >= 0 {
		t.Fatal("selling token0 must lower the price")
	}

	// selling the output back returns slightly less than the original input
	back, err := m.Swap(st, h, t1, out, trader, trader)
	if err != nil {
		t.Fatalf("Swap 1->0: %v", err)
	}
	if back.Cmp(ether(1)) >= 0 {
		t.Fatalf("round trip gained: %s", back)
	}
	final, _ := m.SqrtPrice(st, h)
	if final.Cmp(after) <= 0 {
		t.Fatal("selling token1 must raise the price")
	}
}

func TestSwapErrors(t *testing.T) {
	st := simulator.NewState()
	m := newManager(t)
	t0, t1 := setupTokens(t, st)

	h, err := m.CreatePool(st, t0, t1, eth.FeeMedium, pricing.Q96)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.Swap(st, h, t0, ether(1), provider, provider); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("empty pool err = %v", err)
	}

	if _, err := m.ProvideLiquidity(st, h, provider, ether(10), ether(10)); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Swap(st, h, eth.WETHAddress, ether(1), provider, provider); !errors.Is(err, ErrUnknownAsset) {
		t.Fatalf("foreign asset err = %v", err)
	}
	if _, err := m.Swap(st, h, t0, big.NewInt(0), provider, provider); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount err = %v", err)
	}
	if _, err := m.Swap(st, h, t0, ether(1), trader, trader); !errors.Is(err, token.ErrInsufficientBalance) {
		t.Fatalf("unfunded payer err = %v", err)
	}
}

func TestGetAmountOutMatchesConstantProduct(t *testing.T) {
	sqrtP, _ := pricing.EncodePriceSqrt(big.NewInt(4), big.NewInt(1))
	liq := LiquidityForAmounts(sqrtP, ether(50), ether(200))

	// x=50, y=200; selling 1 token1 at zero fee gives 50*1/201
	out, _ := GetAmountOut(sqrtP, liq, 0, false, ether(1))
	want := new(big.Int).Quo(new(big.Int).Mul(ether(50), ether(1)), ether(201))

	diff := new(big.Int).Sub(out, want)
	if diff.CmpAbs(big.NewInt(1_000_000)) > 0 {
		t.Fatalf("out = %s, want ~%s", out, want)
	}

	if zero, next := GetAmountOut(sqrtP, liq, 500, true, big.NewInt(0)); zero.Sign() != 0 || next.Cmp(sqrtP) != 0 {
		t.Fatal("zero input must not move the price")
	}
}
