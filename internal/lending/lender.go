// Package lending implements an uncollateralized single-asset flash loan
// provider modelled on Aave V3's flashLoanSimple.
package lending

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/pulkyeet/flash-arb/internal/eth"
	"github.com/pulkyeet/flash-arb/internal/simulator"
	"github.com/pulkyeet/flash-arb/internal/token"
)

var (
	ErrInvalidAmount       = errors.New("flash loan amount must be positive")
	ErrInsufficientReserve = errors.New("insufficient lender reserve")
	ErrFlashLoanNotRepaid  = errors.New("flash loan not repaid")
	ErrCallbackFailed      = errors.New("flash loan callback failed")
)

const bpsDenominator = 10_000

// FlashLoan exists only for the duration of one RequestFlashLoan call.
type FlashLoan struct {
	Asset     common.Address
	Amount    *big.Int
	Premium   *big.Int
	Initiator common.Address
}

// Owed is what the lender pulls back once the callback returns.
func (l FlashLoan) Owed() *big.Int {
	return new(big.Int).Add(l.Amount, l.Premium)
}

// Receiver is called synchronously with the borrowed funds already credited.
// It must leave at least Owed() at its Address before returning.
type Receiver interface {
	Address() common.Address
	ExecuteOperation(st *simulator.State, loan FlashLoan) error
}

type Lender struct {
	address    common.Address
	premiumBps int64
	logger     *zap.Logger
}

type Option func(*Lender)

func WithAddress(addr common.Address) Option {
	return func(l *Lender) { l.address = addr }
}

// WithPremiumBps sets the flash loan fee in basis points.
func WithPremiumBps(bps int64) Option {
	return func(l *Lender) { l.premiumBps = bps }
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Lender) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func NewLender(opts ...Option) *Lender {
	l := &Lender{
		address:    eth.AavePool,
		premiumBps: eth.FlashLoanPremiumBps,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Lender) Address() common.Address { return l.address }

func (l *Lender) PremiumBps() int64 { return l.premiumBps }

// Premium is percentMul(amount, premiumBps): amount*bps/10000 rounded half up.
func (l *Lender) Premium(amount *big.Int) *big.Int {
	p := new(big.Int).Mul(amount, big.NewInt(l.premiumBps))
	p.Add(p, big.NewInt(bpsDenominator/2))
	return p.Quo(p, big.NewInt(bpsDenominator))
}

// Reserve returns the lender's available balance of asset.
func (l *Lender) Reserve(st *simulator.State, asset common.Address) *big.Int {
	return token.BalanceOf(st, asset, l.address)
}

// RequestFlashLoan lends amount of asset to receiver, runs its callback and
// pulls back amount plus premium. Any failure leaves st partially written; the
// caller discards it.
func (l *Lender) RequestFlashLoan(st *simulator.State, receiver Receiver, asset common.Address, amount *big.Int) (FlashLoan, error) {
	if amount == nil || amount.Sign() <= 0 {
		return FlashLoan{}, ErrInvalidAmount
	}

	reserve := l.Reserve(st, asset)
	if reserve.Cmp(amount) < 0 {
		return FlashLoan{}, fmt.Errorf("%w: %s available, %s requested", ErrInsufficientReserve, reserve, amount)
	}

	loan := FlashLoan{
		Asset:     asset,
		Amount:    new(big.Int).Set(amount),
		Premium:   l.Premium(amount),
		Initiator: receiver.Address(),
	}

	if err := token.Transfer(st, asset, l.address, receiver.Address(), amount); err != nil {
		return FlashLoan{}, fmt.Errorf("disburse: %w", err)
	}
	l.logger.Debug("flash loan disbursed",
		zap.String("asset", asset.Hex()),
		zap.String("amount", amount.String()),
		zap.String("premium", loan.Premium.String()),
		zap.String("receiver", receiver.Address().Hex()),
	)

	if err := receiver.ExecuteOperation(st, loan); err != nil {
		return FlashLoan{}, fmt.Errorf("%w: %w", ErrCallbackFailed, err)
	}

	owed := loan.Owed()
	held := token.BalanceOf(st, asset, receiver.Address())
	if held.Cmp(owed) < 0 {
		return FlashLoan{}, fmt.Errorf("%w: receiver holds %s, owes %s", ErrFlashLoanNotRepaid, held, owed)
	}
	if err := token.Transfer(st, asset, receiver.Address(), l.address, owed); err != nil {
		return FlashLoan{}, fmt.Errorf("%w: %w", ErrFlashLoanNotRepaid, err)
	}

	st.Emit(simulator.Event{
		Address: l.address,
		Name:    "FlashLoan",
		Args: map[string]string{
			"target":    receiver.Address().Hex(),
			"initiator": loan.Initiator.Hex(),
			"asset":     asset.Hex(),
			"amount":    amount.String(),
			"premium":   loan.Premium.String(),
		},
	})
	l.logger.Debug("flash loan repaid",
		zap.String("asset", asset.Hex()),
		zap.String("owed", owed.String()),
	)
	return loan, nil
}
