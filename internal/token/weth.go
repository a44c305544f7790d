package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/pulkyeet/flash-arb/internal/eth"
	"github.com/pulkyeet/flash-arb/internal/simulator"
)

var wethCode = []byte("weth9")

// WETH wraps the native asset 1:1. Native deposits are held at the contract
// address.
type WETH struct {
	Token
}

// NewWETH returns a handle to the canonical wrapped-native token.
func NewWETH() *WETH {
	return &WETH{Token: Token{Address: eth.WETHAddress, Symbol: "WETH", Decimals: eth.WETHDecimals}}
}

// InstallWETH writes the wrapped-native contract into a genesis state.
func InstallWETH(st *simulator.State) *WETH {
	w := NewWETH()
	st.SetCode(w.Address, wethCode)
	st.SetState(w.Address, slotDecimals, common.BigToHash(big.NewInt(int64(w.Decimals))))
	return w
}

// Deposit wraps amount of from's native balance.
func (w *WETH) Deposit(st *simulator.State, from common.Address, amount *big.Int) error {
	amt, err := toU256(amount)
	if err != nil {
		return err
	}

	if err := st.SubBalance(from, amt); err != nil {
		if errors.Is(err, simulator.ErrInsufficientFunds) {
			return fmt.Errorf("%w: %s has %s wei, wraps %s", ErrInsufficientNative, from.Hex(), st.GetBalance(from).Dec(), amt.Dec())
		}
		return err
	}
	st.AddBalance(w.Address, amt)

	if err := w.Mint(st, from, amount); err != nil {
		return err
	}
	st.Emit(simulator.Event{
		Address: w.Address,
		Name:    "Deposit",
		Args:    map[string]string{"dst": from.Hex(), "wad": amount.String()},
	})
	return nil
}

// Withdraw burns amount of from's WETH and returns the native asset.
func (w *WETH) Withdraw(st *simulator.State, from common.Address, amount *big.Int) error {
	amt, err := toU256(amount)
	if err != nil {
		return err
	}

	bal := st.TokenBalance(w.Address, from)
	if bal.Lt(amt) {
		return fmt.Errorf("%w: %s holds %s WETH, unwraps %s", ErrInsufficientBalance, from.Hex(), bal.Dec(), amt.Dec())
	}
	st.SetTokenBalance(w.Address, from, bal.Sub(bal, amt))

	supply := fromHash(st.GetState(w.Address, slotTotalSupply))
	st.SetState(w.Address, slotTotalSupply, new(uint256.Int).Sub(supply, amt).Bytes32())

	if err := st.SubBalance(w.Address, amt); err != nil {
		return fmt.Errorf("weth reserve: %w", err)
	}
	st.AddBalance(from, amt)

	st.Emit(simulator.Event{
		Address: w.Address,
		Name:    "Withdrawal",
		Args:    map[string]string{"src": from.Hex(), "wad": amount.String()},
	})
	return nil
}

// Fund wraps amount of from's native balance and transfers the WETH to target.
func (w *WETH) Fund(st *simulator.State, from, target common.Address, amount *big.Int) error {
	if err := w.Deposit(st, from, amount); err != nil {
		return fmt.Errorf("wrap: %w", err)
	}
	if err := w.Transfer(st, from, target, amount); err != nil {
		return fmt.Errorf("transfer to %s: %w", target.Hex(), err)
	}
	return nil
}
