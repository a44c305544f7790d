package simulator

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// State is an in-memory ledger: native balances, token balances, nonces,
// contract code and raw storage slots. A State handed out by Host.View is the
// committed world and must be treated as read-only; mutations happen on forks.
type State struct {
	cache *StateCache
	mu    sync.RWMutex

	// events emitted since the fork was taken
	events []Event
}

// NewState returns an empty state, used to build genesis.
func NewState() *State {
	return &State{cache: NewStateCache()}
}

// Fork returns a deep copy of the state. Writes to the fork never reach the
// parent; a Host publishes a fork by committing it.
func (s *State) Fork() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &State{cache: s.cache.clone()}
}

// returns native balance
func (s *State) GetBalance(addr common.Address) *uint256.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if bal, ok := s.cache.balances[addr]; ok {
		return new(uint256.Int).Set(bal)
	}
	return uint256.NewInt(0)
}

func (s *State) SetBalance(addr common.Address, bal *uint256.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.balances[addr] = new(uint256.Int).Set(bal)
}

func (s *State) AddBalance(addr common.Address, amount *uint256.Int) {
	bal := s.GetBalance(addr)
	s.SetBalance(addr, bal.Add(bal, amount))
}

// SubBalance fails with ErrInsufficientFunds instead of wrapping below zero.
func (s *State) SubBalance(addr common.Address, amount *uint256.Int) error {
	bal := s.GetBalance(addr)
	if bal.Lt(amount) {
		return ErrInsufficientFunds
	}
	s.SetBalance(addr, bal.Sub(bal, amount))
	return nil
}

// returns holder's balance of token
func (s *State) TokenBalance(token, holder common.Address) *uint256.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if holders, ok := s.cache.tokens[token]; ok {
		if bal, ok := holders[holder]; ok {
			return new(uint256.Int).Set(bal)
		}
	}
	return uint256.NewInt(0)
}

func (s *State) SetTokenBalance(token, holder common.Address, bal *uint256.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache.tokens[token] == nil {
		s.cache.tokens[token] = make(map[common.Address]*uint256.Int)
	}
	s.cache.tokens[token][holder] = new(uint256.Int).Set(bal)
}

func (s *State) GetNonce(addr common.Address) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache.nonces[addr]
}

func (s *State) SetNonce(addr common.Address, nonce uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.nonces[addr] = nonce
}

// GetCode returns the code marker stored for a contract address. The
// simulator does not run bytecode; code only records that a contract exists.
func (s *State) GetCode(addr common.Address) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache.code[addr]
}

func (s *State) SetCode(addr common.Address, code []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.code[addr] = append([]byte(nil), code...)
}

// Exist reports whether addr has code, balance or nonce.
func (s *State) Exist(addr common.Address) bool {
	return len(s.GetCode(addr)) > 0 || s.GetBalance(addr).Sign() > 0 || s.GetNonce(addr) > 0
}

// returns storage slot value
func (s *State) GetState(addr common.Address, slot common.Hash) common.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if addrStorage, ok := s.cache.storage[addr]; ok {
		return addrStorage[slot]
	}
	return common.Hash{}
}

func (s *State) SetState(addr common.Address, slot common.Hash, val common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache.storage[addr] == nil {
		s.cache.storage[addr] = make(map[common.Hash]common.Hash)
	}
	s.cache.storage[addr][slot] = val
}

// Emit appends an event to the state's pending log.
func (s *State) Emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// Events returns the events emitted on this state since it was forked.
func (s *State) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.events...)
}

func (c *StateCache) clone() *StateCache {
	snap := NewStateCache()

	for addr, bal := range c.balances {
		snap.balances[addr] = new(uint256.Int).Set(bal)
	}

	for token, holders := range c.tokens {
		snap.tokens[token] = make(map[common.Address]*uint256.Int, len(holders))
		for holder, bal := range holders {
			snap.tokens[token][holder] = new(uint256.Int).Set(bal)
		}
	}

	for addr, nonce := range c.nonces {
		snap.nonces[addr] = nonce
	}

	for addr, code := range c.code {
		snap.code[addr] = code
	}

	for addr, slots := range c.storage {
		snap.storage[addr] = make(map[common.Hash]common.Hash, len(slots))
		for slot, val := range slots {
			snap.storage[addr][slot] = val
		}
	}

	return snap
}
