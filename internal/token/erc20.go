// Package token implements fungible assets on the simulated ledger: freshly
// deployed ERC20-style tokens and the canonical wrapped-native asset.
package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/pulkyeet/flash-arb/internal/simulator"
)

var (
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrInsufficientNative  = errors.New("insufficient native balance")
	ErrInvalidAmount       = errors.New("amount must be non-negative")
	ErrAmountOverflow      = errors.New("amount overflows 256 bits")
	ErrNotDeployed         = errors.New("token not deployed")
)

// storage layout of a token contract
var (
	slotTotalSupply = common.BigToHash(big.NewInt(0))
	slotDecimals    = common.BigToHash(big.NewInt(1))
)

// code marker written at token addresses
var tokenCode = []byte("erc20")

type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// Deploy creates a token at the CREATE address of deployer's current nonce and
// mints supply to holder. A zero holder mints to the token's own address, the
// way a token contract that keeps its supply for liquidity provisioning does.
//
// The caller bumps the deployer nonce (Host.Execute does).
func Deploy(st *simulator.State, deployer common.Address, symbol string, decimals uint8, supply *big.Int, holder common.Address) (*Token, error) {
	addr := crypto.CreateAddress(deployer, st.GetNonce(deployer))
	if len(st.GetCode(addr)) > 0 {
		return nil, fmt.Errorf("deploy %s: address %s already has code", symbol, addr.Hex())
	}

	st.SetCode(addr, tokenCode)
	st.SetState(addr, slotDecimals, common.BigToHash(big.NewInt(int64(decimals))))

	t := &Token{Address: addr, Symbol: symbol, Decimals: decimals}

	if holder == (common.Address{}) {
		holder = addr
	}
	if err := t.Mint(st, holder, supply); err != nil {
		return nil, fmt.Errorf("deploy %s: %w", symbol, err)
	}
	return t, nil
}

// At loads the token deployed at addr.
func At(st *simulator.State, addr common.Address, symbol string) (*Token, error) {
	if len(st.GetCode(addr)) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotDeployed, addr.Hex())
	}
	dec := st.GetState(addr, slotDecimals).Big()
	return &Token{Address: addr, Symbol: symbol, Decimals: uint8(dec.Uint64())}, nil
}

func (t *Token) BalanceOf(st *simulator.State, holder common.Address) *big.Int {
	return BalanceOf(st, t.Address, holder)
}

func (t *Token) Transfer(st *simulator.State, from, to common.Address, amount *big.Int) error {
	return Transfer(st, t.Address, from, to, amount)
}

func (t *Token) TotalSupply(st *simulator.State) *big.Int {
	return st.GetState(t.Address, slotTotalSupply).Big()
}

// Mint credits amount to holder and grows the total supply.
func (t *Token) Mint(st *simulator.State, holder common.Address, amount *big.Int) error {
	amt, err := toU256(amount)
	if err != nil {
		return err
	}

	supply, overflow := new(uint256.Int).AddOverflow(fromHash(st.GetState(t.Address, slotTotalSupply)), amt)
	if overflow {
		return ErrAmountOverflow
	}
	st.SetState(t.Address, slotTotalSupply, supply.Bytes32())

	bal := st.TokenBalance(t.Address, holder)
	st.SetTokenBalance(t.Address, holder, bal.Add(bal, amt))

	st.Emit(transferEvent(t.Address, common.Address{}, holder, amount))
	return nil
}

// BalanceOf returns holder's balance of token.
func BalanceOf(st *simulator.State, token, holder common.Address) *big.Int {
	return st.TokenBalance(token, holder).ToBig()
}

// Transfer moves amount of token from one holder to another.
func Transfer(st *simulator.State, token, from, to common.Address, amount *big.Int) error {
	amt, err := toU256(amount)
	if err != nil {
		return err
	}

	fromBal := st.TokenBalance(token, from)
	if fromBal.Lt(amt) {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from.Hex(), fromBal.Dec(), amt.Dec())
	}
	st.SetTokenBalance(token, from, fromBal.Sub(fromBal, amt))

	toBal := st.TokenBalance(token, to)
	st.SetTokenBalance(token, to, toBal.Add(toBal, amt))

	st.Emit(transferEvent(token, from, to, amount))
	return nil
}

func transferEvent(token, from, to common.Address, amount *big.Int) simulator.Event {
	return simulator.Event{
		Address: token,
		Name:    "Transfer",
		Args: map[string]string{
			"from":  from.Hex(),
			"to":    to.Hex(),
			"value": amount.String(),
		},
	}
}

func toU256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	amt, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return amt, nil
}

func fromHash(h common.Hash) *uint256.Int {
	return new(uint256.Int).SetBytes32(h[:])
}
