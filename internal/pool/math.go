package pool

import (
	"math/big"

	"github.com/pulkyeet/flash-arb/internal/pricing"
)

// fee tiers are in hundredths of a bip
var feeDenominator = big.NewInt(1_000_000)

// LiquidityForAmounts returns the largest full-range liquidity that amount0 and
// amount1 can back at sqrtPriceX96: min(amount0*sqrtP/Q96, amount1*Q96/sqrtP).
func LiquidityForAmounts(sqrtPriceX96, amount0, amount1 *big.Int) *big.Int {
	l0 := new(big.Int).Mul(amount0, sqrtPriceX96)
	l0.Quo(l0, pricing.Q96)

	l1 := new(big.Int).Mul(amount1, pricing.Q96)
	l1.Quo(l1, sqrtPriceX96)

	if l0.Cmp(l1) < 0 {
		return l0
	}
	return l1
}

// AmountsForLiquidity returns the token amounts a provider pays for liquidity,
// rounded up in the pool's favour.
func AmountsForLiquidity(sqrtPriceX96, liquidity *big.Int) (amount0, amount1 *big.Int) {
	amount0 = mulDivRoundingUp(liquidity, pricing.Q96, sqrtPriceX96)
	amount1 = mulDivRoundingUp(liquidity, sqrtPriceX96, pricing.Q96)
	return amount0, amount1
}

// amount left after the pool keeps its fee
func applyFee(amountIn *big.Int, fee uint32) *big.Int {
	out := new(big.Int).Mul(amountIn, big.NewInt(int64(1_000_000-fee)))
	return out.Quo(out, feeDenominator)
}

// price after adding amount of token0: ceil(L*Q96*sqrtP / (L*Q96 + amount*sqrtP))
func nextSqrtPriceFromAmount0(sqrtPriceX96, liquidity, amount *big.Int) *big.Int {
	numerator := new(big.Int).Mul(liquidity, pricing.Q96)
	denominator := new(big.Int).Mul(amount, sqrtPriceX96)
	denominator.Add(denominator, numerator)
	return mulDivRoundingUp(numerator, sqrtPriceX96, denominator)
}

// price after adding amount of token1: sqrtP + amount*Q96/L
func nextSqrtPriceFromAmount1(sqrtPriceX96, liquidity, amount *big.Int) *big.Int {
	delta := new(big.Int).Mul(amount, pricing.Q96)
	delta.Quo(delta, liquidity)
	return delta.Add(delta, sqrtPriceX96)
}

// token0 released moving the price between lower and upper, rounded down
func amount0Delta(liquidity, sqrtLower, sqrtUpper *big.Int) *big.Int {
	diff := new(big.Int).Sub(sqrtUpper, sqrtLower)
	out := new(big.Int).Mul(liquidity, pricing.Q96)
	out.Mul(out, diff)
	out.Quo(out, sqrtUpper)
	return out.Quo(out, sqrtLower)
}

// token1 released moving the price between lower and upper, rounded down
func amount1Delta(liquidity, sqrtLower, sqrtUpper *big.Int) *big.Int {
	diff := new(big.Int).Sub(sqrtUpper, sqrtLower)
	out := new(big.Int).Mul(liquidity, diff)
	return out.Quo(out, pricing.Q96)
}

// GetAmountOut returns the output of a swap of amountIn against a full-range
// position and the price the swap leaves the pool at.
func GetAmountOut(sqrtPriceX96, liquidity *big.Int, fee uint32, zeroForOne bool, amountIn *big.Int) (amountOut, sqrtNext *big.Int) {
	if amountIn.Sign() <= 0 || liquidity.Sign() <= 0 {
		return big.NewInt(0), new(big.Int).Set(sqrtPriceX96)
	}

	amount := applyFee(amountIn, fee)

	if zeroForOne {
		sqrtNext = nextSqrtPriceFromAmount0(sqrtPriceX96, liquidity, amount)
		amountOut = amount1Delta(liquidity, sqrtNext, sqrtPriceX96)
	} else {
		sqrtNext = nextSqrtPriceFromAmount1(sqrtPriceX96, liquidity, amount)
		amountOut = amount0Delta(liquidity, sqrtPriceX96, sqrtNext)
	}
	return amountOut, sqrtNext
}

func mulDivRoundingUp(a, b, denominator *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	q, r := new(big.Int).QuoRem(product, denominator, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
