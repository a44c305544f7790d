package simulator

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrReverted          = errors.New("execution reverted")
)

// Receipt describes one atomic operation committed to (or rejected by) a Host.
type Receipt struct {
	Label        string
	Sender       common.Address
	Success      bool
	Block        uint64
	GasUsed      uint64
	Fee          *big.Int
	Events       []Event
	RevertReason string
}

// Event is a log line emitted by a simulated contract.
type Event struct {
	Address common.Address
	Name    string
	Args    map[string]string
}

func (e Event) String() string {
	keys := make([]string, 0, len(e.Args))
	for k := range e.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, e.Args[k]))
	}
	return fmt.Sprintf("%s@%s(%s)", e.Name, e.Address.Hex(), strings.Join(parts, ", "))
}

type StateCache struct {
	balances map[common.Address]*uint256.Int
	tokens   map[common.Address]map[common.Address]*uint256.Int
	nonces   map[common.Address]uint64
	code     map[common.Address][]byte
	storage  map[common.Address]map[common.Hash]common.Hash
}

func NewStateCache() *StateCache {
	return &StateCache{
		balances: make(map[common.Address]*uint256.Int),
		tokens:   make(map[common.Address]map[common.Address]*uint256.Int),
		nonces:   make(map[common.Address]uint64),
		code:     make(map[common.Address][]byte),
		storage:  make(map[common.Address]map[common.Hash]common.Hash),
	}
}
