// Package pricing converts price ratios to and from the Q64.96 square-root
// encoding pools are initialized with, and resolves token0/token1 ordering.
package pricing

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	Q96  = new(big.Int).Lsh(big.NewInt(1), 96)
	Q192 = new(big.Int).Lsh(big.NewInt(1), 192)

	// bounds of a valid pool price, from Uniswap V3 TickMath
	MinSqrtRatio    = big.NewInt(4295128739)
	MaxSqrtRatio, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970342", 10)
)

var (
	ErrInvalidRatio   = errors.New("price ratio must be positive")
	ErrUnsortedTokens = errors.New("token0 must be the smaller address")
	ErrIdenticalToken = errors.New("identical token addresses")
)

// EncodePriceSqrt returns floor(sqrt(reserve1/reserve0) * 2^96).
//
// The result is exact: sqrt(r1/r0)*2^96 == sqrt(r1*2^192/r0), and flooring the
// radicand before the integer square root does not change the floor of the
// root.
func EncodePriceSqrt(reserve1, reserve0 *big.Int) (*big.Int, error) {
	if reserve1 == nil || reserve0 == nil || reserve1.Sign() <= 0 || reserve0.Sign() <= 0 {
		return nil, ErrInvalidRatio
	}

	radicand := new(big.Int).Lsh(reserve1, 192)
	radicand.Quo(radicand, reserve0)
	return radicand.Sqrt(radicand), nil
}

// EncodeRatio is EncodePriceSqrt for a rational token1-per-token0 price.
func EncodeRatio(price *big.Rat) (*big.Int, error) {
	if price == nil || price.Sign() <= 0 {
		return nil, ErrInvalidRatio
	}
	return EncodePriceSqrt(price.Num(), price.Denom())
}

// DecodeSqrtPrice returns (sqrtPriceX96 / 2^96)^2, the token1-per-token0 price.
func DecodeSqrtPrice(sqrtPriceX96 *big.Int) *big.Float {
	sq := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	num := new(big.Float).SetPrec(256).SetInt(sq)
	den := new(big.Float).SetPrec(256).SetInt(Q192)
	return num.Quo(num, den)
}

// InvertSqrtPrice returns floor(2^192 / sqrtPriceX96), the encoding of the
// reciprocal price.
func InvertSqrtPrice(sqrtPriceX96 *big.Int) *big.Int {
	return new(big.Int).Quo(Q192, sqrtPriceX96)
}

// ValidSqrtPrice reports whether a pool may be initialized at sqrtPriceX96.
func ValidSqrtPrice(sqrtPriceX96 *big.Int) bool {
	return sqrtPriceX96 != nil &&
		sqrtPriceX96.Cmp(MinSqrtRatio) >= 0 &&
		sqrtPriceX96.Cmp(MaxSqrtRatio) < 0
}

// SortTokens returns (lower, higher) by byte comparison, Uniswap's token ordering
func SortTokens(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) < 0 {
		return a, b
	}
	return b, a
}

// CheckSorted fails unless token0 < token1.
func CheckSorted(token0, token1 common.Address) error {
	switch bytes.Compare(token0.Bytes(), token1.Bytes()) {
	case 0:
		return ErrIdenticalToken
	case 1:
		return fmt.Errorf("%w: %s > %s", ErrUnsortedTokens, token0.Hex(), token1.Hex())
	}
	return nil
}

// Oriented returns the pool ordering for a quote/base pair and the sqrt price
// encoding of "baseUnits of base per quoteUnits of quote" in that ordering.
//
// When quote sorts first the pool price (token1 per token0) is base/quote,
// otherwise it is quote/base. Swapping the roles of the two assets yields the
// inverse encoding.
func Oriented(quote, base common.Address, quoteUnits, baseUnits *big.Int) (token0, token1 common.Address, sqrtPriceX96 *big.Int, err error) {
	if quote == base {
		return common.Address{}, common.Address{}, nil, ErrIdenticalToken
	}

	token0, token1 = SortTokens(quote, base)
	if token0 == quote {
		sqrtPriceX96, err = EncodePriceSqrt(baseUnits, quoteUnits)
	} else {
		sqrtPriceX96, err = EncodePriceSqrt(quoteUnits, baseUnits)
	}
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	return token0, token1, sqrtPriceX96, nil
}

// PriceOf returns how many units of the other asset one unit of asset buys at
// the given pool price. asset must be token0 or token1.
func PriceOf(asset, token0 common.Address, sqrtPriceX96 *big.Int) *big.Float {
	p := DecodeSqrtPrice(sqrtPriceX96)
	if asset == token0 {
		return p
	}
	one := new(big.Float).SetPrec(256).SetInt64(1)
	return one.Quo(one, p)
}
