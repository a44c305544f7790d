package setup

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/pulkyeet/flash-arb/internal/eth"
	"github.com/pulkyeet/flash-arb/internal/pool"
	"github.com/pulkyeet/flash-arb/internal/pricing"
	"github.com/pulkyeet/flash-arb/internal/simulator"
	"github.com/pulkyeet/flash-arb/internal/token"
)

var deployer = eth.HardhatDeployer

type fixture struct {
	host  *simulator.Host
	pools *pool.Manager
	setup *Setup
}

func newFixture(t *testing.T, native *big.Int, nonce uint64, opts ...simulator.Option) *fixture {
	t.Helper()

	genesis := simulator.NewState()
	weth := token.InstallWETH(genesis)
	genesis.SetBalance(deployer, uint256.MustFromBig(native))
	genesis.SetNonce(deployer, nonce)

	host := simulator.NewHost(genesis, opts...)
	pools, err := pool.NewManager()
	require.NoError(t, err)

	return &fixture{
		host:  host,
		pools: pools,
		setup: New(host, deployer, weth.Address, weth, pools),
	}
}

// first deployer nonce whose CREATE address sorts above or below WETH
func nonceFor(t *testing.T, above bool) uint64 {
	t.Helper()
	for n := uint64(0); n < 256; n++ {
		addr := crypto.CreateAddress(deployer, n)
		if (bytes.Compare(addr.Bytes(), eth.WETHAddress.Bytes()) > 0) == above {
			return n
		}
	}
	t.Fatal("no suitable nonce")
	return 0
}

func approx(t *testing.T, got *big.Float, want float64) {
	t.Helper()
	f, _ := got.Float64()
	require.InDelta(t, want, f, want*1e-9)
}

func TestRunDefaultPlanBothOrderings(t *testing.T) {
	for _, above := range []bool{false, true} {
		f := newFixture(t, ether(100), nonceFor(t, above))

		res, err := f.setup.Run(context.Background(), DefaultPlan())
		require.NoError(t, err)

		require.Equal(t, !above, res.BaseIsToken0)
		require.NotEqual(t, res.Pool1.Handle.Address, res.Pool2.Handle.Address)
		require.Equal(t, eth.FeeLow, res.Pool1.Handle.Fee)
		require.Equal(t, eth.FeeLowest, res.Pool2.Handle.Fee)

		// realized prices are base per quote whichever side sorts first
		approx(t, res.Pool1.Price, 100)
		approx(t, res.Pool2.Price, 200)

		view := f.host.View()
		for _, info := range []PoolInfo{res.Pool1, res.Pool2} {
			l, err := f.pools.Liquidity(view, info.Handle)
			require.NoError(t, err)
			require.Positive(t, l.Sign())
			require.Zero(t, l.Cmp(info.Liquidity))
		}

		// each pool holds ~10 quote; pool 1 holds ~1000 base and pool 2 ~2000
		r0, r1 := f.pools.Reserves(view, res.Pool1.Handle)
		quote1, base1 := r1, r0
		if !res.BaseIsToken0 {
			quote1, base1 = r0, r1
		}
		require.InDelta(t, 10.0, toEther(quote1), 1e-9)
		require.InDelta(t, 1000.0, toEther(base1), 1e-6)

		r0, r1 = f.pools.Reserves(view, res.Pool2.Handle)
		quote2, base2 := r1, r0
		if !res.BaseIsToken0 {
			quote2, base2 = r0, r1
		}
		require.InDelta(t, 10.0, toEther(quote2), 1e-9)
		require.InDelta(t, 2000.0, toEther(base2), 1e-6)

		// 20 quote left the deployer, gas is free at the default price
		require.Zero(t, view.GetBalance(deployer).ToBig().Cmp(ether(80)))

		require.Len(t, res.Report, 4)
		require.Equal(t, "pool 2 seeded", res.Report[3].Label)
	}
}

func TestFundWithQuoteAssetChargesFee(t *testing.T) {
	gasPrice := uint256.NewInt(eth.DefaultGasPriceWei)
	f := newFixture(t, ether(100), 0, simulator.WithGasPrice(gasPrice))
	target := common.HexToAddress("0x00000000000000000000000000000000000a11ce")

	require.NoError(t, f.setup.FundWithQuoteAsset(context.Background(), target, ether(10)))

	fee := new(big.Int).SetUint64((eth.GasWrap + eth.GasTransfer) * eth.DefaultGasPriceWei)
	want := new(big.Int).Sub(ether(90), fee)
	require.Zero(t, f.host.View().GetBalance(deployer).ToBig().Cmp(want))
	require.Zero(t, token.BalanceOf(f.host.View(), eth.WETHAddress, target).Cmp(ether(10)))
}

func TestFundWithQuoteAssetInsufficientNative(t *testing.T) {
	f := newFixture(t, ether(1), 0, simulator.WithGasPrice(uint256.NewInt(eth.DefaultGasPriceWei)))
	target := common.HexToAddress("0x00000000000000000000000000000000000a11ce")

	// exactly the amount leaves nothing for the fee
	err := f.setup.FundWithQuoteAsset(context.Background(), target, ether(1))
	require.ErrorIs(t, err, token.ErrInsufficientNative)

	require.Zero(t, f.host.View().GetBalance(deployer).ToBig().Cmp(ether(1)))
	require.Zero(t, f.host.BlockNumber())
}

func TestCreatePoolGuards(t *testing.T) {
	f := newFixture(t, ether(100), 0)
	ctx := context.Background()

	base, err := f.setup.CreateBaseAsset(ctx, "BASE", ether(1000))
	require.NoError(t, err)
	token0, token1 := pricing.SortTokens(base.Address, eth.WETHAddress)

	_, err = f.setup.CreatePool(ctx, token1, token0, pricing.Q96, eth.FeeLow)
	require.ErrorIs(t, err, pricing.ErrUnsortedTokens)

	_, err = f.setup.CreatePool(ctx, token0, token1, pricing.Q96, eth.FeeLow)
	require.NoError(t, err)

	_, err = f.setup.CreatePool(ctx, token0, token1, pricing.Q96, eth.FeeLow)
	require.ErrorIs(t, err, pool.ErrPoolExists)

	// another tier for the same pair is a different pool
	_, err = f.setup.CreatePool(ctx, token0, token1, pricing.Q96, eth.FeeLowest)
	require.NoError(t, err)
}

func TestProvideLiquidityTargetsHandle(t *testing.T) {
	f := newFixture(t, ether(100), 0)
	ctx := context.Background()

	_, err := f.setup.ProvideLiquidity(ctx, pool.Handle{})
	require.ErrorIs(t, err, ErrNoBaseAsset)

	base, err := f.setup.CreateBaseAsset(ctx, "BASE", ether(1_000_000))
	require.NoError(t, err)
	token0, token1, sqrtP, err := OrientedRatio(eth.WETHAddress, base.Address, big.NewInt(1), big.NewInt(100))
	require.NoError(t, err)

	first, err := f.setup.CreatePool(ctx, token0, token1, sqrtP, eth.FeeLow)
	require.NoError(t, err)
	second, err := f.setup.CreatePool(ctx, token0, token1, sqrtP, eth.FeeMedium)
	require.NoError(t, err)

	// no quote asset funded yet
	_, err = f.setup.ProvideLiquidity(ctx, first)
	require.ErrorIs(t, err, pool.ErrZeroLiquidity)

	require.NoError(t, f.setup.FundWithQuoteAsset(ctx, base.Address, ether(5)))

	// seeding the newer pool leaves the older one empty
	l, err := f.setup.ProvideLiquidity(ctx, second)
	require.NoError(t, err)
	require.Positive(t, l.Sign())

	l1, err := f.pools.Liquidity(f.host.View(), first)
	require.NoError(t, err)
	require.Zero(t, l1.Sign())
}

func TestOrientedRatioInverse(t *testing.T) {
	low := common.HexToAddress("0x1111111111111111111111111111111111111111")
	high := common.HexToAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")

	t0, t1, a, err := OrientedRatio(low, high, big.NewInt(1), big.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, low, t0)
	require.Equal(t, high, t1)

	s0, s1, b, err := OrientedRatio(high, low, big.NewInt(1), big.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, t0, s0)
	require.Equal(t, t1, s1)

	// 100 per unit one way, 1/100 the other
	approx(t, pricing.DecodeSqrtPrice(a), 100)
	approx(t, pricing.DecodeSqrtPrice(b), 0.01)
}

func TestPlanValidate(t *testing.T) {
	p := DefaultPlan()
	require.NoError(t, p.Validate())

	p.Leg2.Fee = p.Leg1.Fee
	require.ErrorIs(t, p.Validate(), pool.ErrPoolExists)

	p = DefaultPlan()
	p.Leg1.Fee = 42
	require.ErrorIs(t, p.Validate(), pool.ErrInvalidFee)

	p = DefaultPlan()
	p.Leg1.BaseUnits = big.NewInt(0)
	require.True(t, errors.Is(p.Validate(), pricing.ErrInvalidRatio))
}

func toEther(v *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), new(big.Float).SetInt(ether(1))).Float64()
	return f
}
