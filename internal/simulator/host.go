package simulator

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Host owns the committed state and runs every mutating operation as one
// indivisible unit: fork, apply, then commit or discard.
type Host struct {
	// exec serializes mutating operations
	exec sync.Mutex

	mu        sync.RWMutex
	committed *State
	block     uint64

	gasPrice *uint256.Int
	logger   *zap.Logger
}

type Option func(*Host)

// WithGasPrice sets the price charged per unit of gas, in wei.
func WithGasPrice(price *uint256.Int) Option {
	return func(h *Host) {
		h.gasPrice = new(uint256.Int).Set(price)
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHost takes ownership of genesis; the caller must not mutate it afterwards.
func NewHost(genesis *State, opts ...Option) *Host {
	if genesis == nil {
		genesis = NewState()
	}
	h := &Host{
		committed: genesis,
		gasPrice:  uint256.NewInt(0),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// View returns the committed state. Callers must not mutate it.
func (h *Host) View() *State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.committed
}

// Fork returns a private copy of the committed state for dry runs.
func (h *Host) Fork() *State {
	return h.View().Fork()
}

// BlockNumber returns the number of committed operations.
func (h *Host) BlockNumber() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.block
}

func (h *Host) GasPrice() *uint256.Int {
	return new(uint256.Int).Set(h.gasPrice)
}

// Execute runs fn against a fork of the committed state on behalf of sender.
// When fn succeeds the sender pays gas*gasPrice, its nonce is bumped and the
// fork becomes the committed state. When fn (or the gas payment) fails nothing
// is committed and the returned receipt carries the revert reason alongside a
// non-nil error wrapping both ErrReverted and the cause.
func (h *Host) Execute(
	ctx context.Context,
	sender common.Address,
	label string,
	gas uint64,
	fn func(st *State) error,
) (*Receipt, error) {
	h.exec.Lock()
	defer h.exec.Unlock()

	fork := h.View().Fork()
	receipt := &Receipt{
		Label:   label,
		Sender:  sender,
		GasUsed: gas,
	}

	if err := ctx.Err(); err != nil {
		return h.revert(receipt, err)
	}

	if err := fn(fork); err != nil {
		return h.revert(receipt, err)
	}

	fee := new(uint256.Int).Mul(uint256.NewInt(gas), h.gasPrice)
	if err := fork.SubBalance(sender, fee); err != nil {
		return h.revert(receipt, fmt.Errorf("gas fee %s: %w", fee.Dec(), err))
	}
	fork.SetNonce(sender, fork.GetNonce(sender)+1)

	// cancellation is honoured up to the last moment before commit
	if err := ctx.Err(); err != nil {
		return h.revert(receipt, err)
	}

	h.mu.Lock()
	h.block++
	receipt.Block = h.block
	receipt.Events = fork.Events()
	fork.events = nil
	h.committed = fork
	h.mu.Unlock()

	receipt.Success = true
	receipt.Fee = fee.ToBig()

	h.logger.Debug("operation committed",
		zap.String("label", label),
		zap.String("sender", sender.Hex()),
		zap.Uint64("block", receipt.Block),
		zap.Uint64("gas", gas),
		zap.Int("events", len(receipt.Events)),
	)
	return receipt, nil
}

func (h *Host) revert(receipt *Receipt, cause error) (*Receipt, error) {
	receipt.Success = false
	receipt.GasUsed = 0
	receipt.Fee = nil
	receipt.RevertReason = cause.Error()

	h.logger.Debug("operation reverted",
		zap.String("label", receipt.Label),
		zap.String("sender", receipt.Sender.Hex()),
		zap.Error(cause),
	)
	return receipt, fmt.Errorf("%s: %w: %w", receipt.Label, ErrReverted, cause)
}
