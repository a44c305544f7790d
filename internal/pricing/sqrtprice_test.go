package pricing

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestEncodePriceSqrtKnownValues(t *testing.T) {
	tests := []struct {
		name     string
		reserve1 int64
		reserve0 int64
		want     string
	}{
		{"parity", 1, 1, "79228162514264337593543950336"},
		{"hundred", 100, 1, "792281625142643375935439503360"},
		{"hundredth", 1, 100, "7922816251426433759354395033"},
		{"four", 4, 1, "158456325028528675187087900672"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodePriceSqrt(big.NewInt(tt.reserve1), big.NewInt(tt.reserve0))
			if err != nil {
				t.Fatalf("EncodePriceSqrt: %v", err)
			}
			if got.String() != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEncodePriceSqrtRejectsNonPositive(t *testing.T) {
	cases := [][2]*big.Int{
		{big.NewInt(0), big.NewInt(1)},
		{big.NewInt(1), big.NewInt(0)},
		{big.NewInt(-1), big.NewInt(1)},
		{nil, big.NewInt(1)},
	}
	for _, c := range cases {
		if _, err := EncodePriceSqrt(c[0], c[1]); !errors.Is(err, ErrInvalidRatio) {
			t.Fatalf("EncodePriceSqrt(%v, %v) err = %v, want ErrInvalidRatio", c[0], c[1], err)
		}
	}
}

func TestPriceRoundTrip(t *testing.T) {
	ratios := [][2]int64{{1, 1}, {100, 1}, {1, 100}, {200, 1}, {1, 200}, {3, 7}, {1_000_000, 1}}

	for _, r := range ratios {
		sqrtP, err := EncodePriceSqrt(big.NewInt(r[0]), big.NewInt(r[1]))
		if err != nil {
			t.Fatalf("encode %d/%d: %v", r[0], r[1], err)
		}

		got := DecodeSqrtPrice(sqrtP)
		want := new(big.Float).SetPrec(256).Quo(
			new(big.Float).SetPrec(256).SetInt64(r[0]),
			new(big.Float).SetPrec(256).SetInt64(r[1]),
		)

		// flooring loses at most one unit of 2^-96 in the root
		diff := new(big.Float).Sub(got, want)
		diff.Abs(diff)
		rel := new(big.Float).Quo(diff, want)
		if rel.Cmp(big.NewFloat(1e-18)) > 0 {
			t.Fatalf("ratio %d/%d decoded to %s (rel err %s)", r[0], r[1], got.Text('g', 30), rel.Text('g', 5))
		}
		if got.Cmp(want) > 0 {
			t.Fatalf("ratio %d/%d decoded above the true price", r[0], r[1])
		}
	}
}

func TestEncodeRatioMatchesReserves(t *testing.T) {
	a, err := EncodeRatio(big.NewRat(200, 1))
	if err != nil {
		t.Fatal(err)
	}
	b, _ := EncodePriceSqrt(big.NewInt(200), big.NewInt(1))
	if a.Cmp(b) != 0 {
		t.Fatalf("EncodeRatio = %s, EncodePriceSqrt = %s", a, b)
	}
}

func TestSortTokens(t *testing.T) {
	lo := common.HexToAddress("0x0000000000000000000000000000000000000001")
	hi := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

	a, b := SortTokens(hi, lo)
	if a != lo || b != hi {
		t.Fatalf("SortTokens(hi, lo) = %s, %s", a.Hex(), b.Hex())
	}
	a, b = SortTokens(lo, hi)
	if a != lo || b != hi {
		t.Fatalf("SortTokens(lo, hi) = %s, %s", a.Hex(), b.Hex())
	}

	if err := CheckSorted(lo, hi); err != nil {
		t.Fatalf("CheckSorted(lo, hi): %v", err)
	}
	if err := CheckSorted(hi, lo); !errors.Is(err, ErrUnsortedTokens) {
		t.Fatalf("CheckSorted(hi, lo) = %v, want ErrUnsortedTokens", err)
	}
	if err := CheckSorted(lo, lo); !errors.Is(err, ErrIdenticalToken) {
		t.Fatalf("CheckSorted(lo, lo) = %v, want ErrIdenticalToken", err)
	}
}

func TestOrientedInverse(t *testing.T) {
	weth := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	below := common.HexToAddress("0x1000000000000000000000000000000000000000")
	above := common.HexToAddress("0xF631eb60D0A403499A8Df8CBd22935e0c0406D72")

	one := big.NewInt(1)
	hundred := big.NewInt(100)

	// base sorts above WETH: WETH is token0, price = 100 base per WETH
	t0, t1, sqrtAbove, err := Oriented(weth, above, one, hundred)
	if err != nil {
		t.Fatal(err)
	}
	if t0 != weth || t1 != above {
		t.Fatalf("ordering = %s, %s", t0.Hex(), t1.Hex())
	}
	want, _ := EncodePriceSqrt(hundred, one)
	if sqrtAbove.Cmp(want) != 0 {
		t.Fatalf("sqrt = %s, want %s", sqrtAbove, want)
	}

	// base sorts below WETH: WETH is token1, price = 1/100 WETH per base
	t0, t1, sqrtBelow, err := Oriented(weth, below, one, hundred)
	if err != nil {
		t.Fatal(err)
	}
	if t0 != below || t1 != weth {
		t.Fatalf("ordering = %s, %s", t0.Hex(), t1.Hex())
	}
	want, _ = EncodePriceSqrt(one, hundred)
	if sqrtBelow.Cmp(want) != 0 {
		t.Fatalf("sqrt = %s, want %s", sqrtBelow, want)
	}

	// both describe the same market, so the quote asset buys 100 base either way
	pa, _ := PriceOf(weth, weth, sqrtAbove).Float64()
	pb, _ := PriceOf(weth, below, sqrtBelow).Float64()
	if pa < 99.999 || pa > 100.001 || pb < 99.999 || pb > 100.001 {
		t.Fatalf("quote price = %f / %f, want 100", pa, pb)
	}

	// swapping the roles yields the inverse encoding, so the product of the
	// two prices is one
	_, _, swapped, err := Oriented(above, weth, one, hundred)
	if err != nil {
		t.Fatal(err)
	}
	product := new(big.Float).Mul(DecodeSqrtPrice(sqrtAbove), DecodeSqrtPrice(swapped))
	f, _ := product.Float64()
	if f < 0.999999 || f > 1.000001 {
		t.Fatalf("price * swapped price = %f, want 1", f)
	}

	if _, _, _, err := Oriented(weth, weth, one, one); !errors.Is(err, ErrIdenticalToken) {
		t.Fatalf("Oriented(weth, weth) = %v", err)
	}
}

func TestValidSqrtPrice(t *testing.T) {
	if ValidSqrtPrice(big.NewInt(1)) {
		t.Fatal("1 should be below the minimum ratio")
	}
	if !ValidSqrtPrice(Q96) {
		t.Fatal("parity should be valid")
	}
	if ValidSqrtPrice(MaxSqrtRatio) {
		t.Fatal("max ratio is exclusive")
	}
}

func TestInvertSqrtPrice(t *testing.T) {
	sqrtP, _ := EncodePriceSqrt(big.NewInt(100), big.NewInt(1))
	inv := InvertSqrtPrice(sqrtP)
	want, _ := EncodePriceSqrt(big.NewInt(1), big.NewInt(100))

	diff := new(big.Int).Sub(inv, want)
	if diff.CmpAbs(big.NewInt(1)) > 0 {
		t.Fatalf("inverse = %s, want ~%s", inv, want)
	}
}
