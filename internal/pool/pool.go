// Package pool implements concentrated-liquidity pools holding a single
// full-range position. Tick crossing and multiple positions are not modelled.
package pool

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/pulkyeet/flash-arb/internal/eth"
	"github.com/pulkyeet/flash-arb/internal/pricing"
	"github.com/pulkyeet/flash-arb/internal/simulator"
	"github.com/pulkyeet/flash-arb/internal/token"
)

var (
	ErrPoolExists            = errors.New("pool already exists")
	ErrPoolNotFound          = errors.New("pool not found")
	ErrInvalidFee            = errors.New("unsupported fee tier")
	ErrInvalidSqrtPrice      = errors.New("sqrt price out of range")
	ErrZeroLiquidity         = errors.New("deposit yields zero liquidity")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrUnknownAsset          = errors.New("asset not traded by pool")
	ErrInvalidAmount         = errors.New("swap amount must be positive")
)

// storage layout of a pool contract
var (
	slotToken0    = common.BigToHash(big.NewInt(0))
	slotToken1    = common.BigToHash(big.NewInt(1))
	slotFee       = common.BigToHash(big.NewInt(2))
	slotSqrtPrice = common.BigToHash(big.NewInt(3))
	slotLiquidity = common.BigToHash(big.NewInt(4))
)

var poolCode = []byte("uniswap-v3-pool")

// Key identifies a pool: one pool per ordered pair and fee tier.
type Key struct {
	Token0 common.Address
	Token1 common.Address
	Fee    uint32
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s@%d", k.Token0.Hex(), k.Token1.Hex(), k.Fee)
}

// Other returns the asset a pool pays out for asset.
func (k Key) Other(asset common.Address) (common.Address, error) {
	switch asset {
	case k.Token0:
		return k.Token1, nil
	case k.Token1:
		return k.Token0, nil
	}
	return common.Address{}, fmt.Errorf("%w: %s not in %s", ErrUnknownAsset, asset.Hex(), k)
}

// Handle is an explicit reference to a created pool.
type Handle struct {
	Key
	Address common.Address
}

// Slot0 is the pool's price state.
type Slot0 struct {
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
}

// Manager plays the factory and the pools it deploys.
type Manager struct {
	factory      common.Address
	initCodeHash [32]byte
	addresses    *lru.Cache[Key, common.Address]
	logger       *zap.Logger
}

type Option func(*Manager)

func WithFactory(factory common.Address, initCodeHash [32]byte) Option {
	return func(m *Manager) {
		m.factory = factory
		m.initCodeHash = initCodeHash
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewManager(opts ...Option) (*Manager, error) {
	cache, err := lru.New[Key, common.Address](1024)
	if err != nil {
		return nil, fmt.Errorf("pool address cache: %w", err)
	}

	m := &Manager{
		factory:      eth.UniswapV3Factory,
		initCodeHash: eth.PoolInitCodeHash,
		addresses:    cache,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

var keyArgs = func() abi.Arguments {
	addressT, _ := abi.NewType("address", "", nil)
	uint24T, _ := abi.NewType("uint24", "", nil)
	return abi.Arguments{{Type: addressT}, {Type: addressT}, {Type: uint24T}}
}()

// Address returns the CREATE2 address of the pool for key:
// keccak256(0xff ++ factory ++ keccak256(abi.encode(token0, token1, fee)) ++ initCodeHash).
func (m *Manager) Address(key Key) common.Address {
	if addr, ok := m.addresses.Get(key); ok {
		return addr
	}

	encoded, err := keyArgs.Pack(key.Token0, key.Token1, big.NewInt(int64(key.Fee)))
	if err != nil {
		// static argument types; packing cannot fail
		panic(fmt.Sprintf("pack pool key: %v", err))
	}
	salt := crypto.Keccak256Hash(encoded)
	addr := crypto.CreateAddress2(m.factory, salt, m.initCodeHash[:])

	m.addresses.Add(key, addr)
	return addr
}

// CreatePool deploys and initializes the pool for (token0, token1, fee).
func (m *Manager) CreatePool(st *simulator.State, token0, token1 common.Address, fee uint32, sqrtPriceX96 *big.Int) (Handle, error) {
	if err := pricing.CheckSorted(token0, token1); err != nil {
		return Handle{}, err
	}
	if !eth.KnownFeeTiers[fee] {
		return Handle{}, fmt.Errorf("%w: %d", ErrInvalidFee, fee)
	}
	if !pricing.ValidSqrtPrice(sqrtPriceX96) {
		return Handle{}, fmt.Errorf("%w: %v", ErrInvalidSqrtPrice, sqrtPriceX96)
	}

	key := Key{Token0: token0, Token1: token1, Fee: fee}
	h := Handle{Key: key, Address: m.Address(key)}
	if len(st.GetCode(h.Address)) > 0 {
		return Handle{}, fmt.Errorf("%w: %s", ErrPoolExists, key)
	}

	st.SetCode(h.Address, poolCode)
	st.SetState(h.Address, slotToken0, common.BytesToHash(token0.Bytes()))
	st.SetState(h.Address, slotToken1, common.BytesToHash(token1.Bytes()))
	st.SetState(h.Address, slotFee, common.BigToHash(big.NewInt(int64(fee))))
	st.SetState(h.Address, slotSqrtPrice, common.BigToHash(sqrtPriceX96))

	st.Emit(simulator.Event{
		Address: h.Address,
		Name:    "Initialize",
		Args: map[string]string{
			"sqrtPriceX96": sqrtPriceX96.String(),
			"fee":          fmt.Sprint(fee),
		},
	})

	m.logger.Debug("pool created",
		zap.String("pool", h.Address.Hex()),
		zap.String("token0", token0.Hex()),
		zap.String("token1", token1.Hex()),
		zap.Uint32("fee", fee),
		zap.String("sqrtPriceX96", sqrtPriceX96.String()),
	)
	return h, nil
}

// Lookup returns the handle of an existing pool.
func (m *Manager) Lookup(st *simulator.State, key Key) (Handle, error) {
	h := Handle{Key: key, Address: m.Address(key)}
	if len(st.GetCode(h.Address)) == 0 {
		return Handle{}, fmt.Errorf("%w: %s", ErrPoolNotFound, key)
	}
	return h, nil
}

// ProvideLiquidity deposits as much of amount0Max/amount1Max from provider as
// the current price admits and returns the liquidity minted.
func (m *Manager) ProvideLiquidity(st *simulator.State, h Handle, provider common.Address, amount0Max, amount1Max *big.Int) (*big.Int, error) {
	s, err := m.Slot0(st, h)
	if err != nil {
		return nil, err
	}

	liquidity := LiquidityForAmounts(s.SqrtPriceX96, amount0Max, amount1Max)
	if liquidity.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrZeroLiquidity, h.Key)
	}
	amount0, amount1 := AmountsForLiquidity(s.SqrtPriceX96, liquidity)

	if err := token.Transfer(st, h.Token0, provider, h.Address, amount0); err != nil {
		return nil, fmt.Errorf("deposit token0: %w", err)
	}
	if err := token.Transfer(st, h.Token1, provider, h.Address, amount1); err != nil {
		return nil, fmt.Errorf("deposit token1: %w", err)
	}

	total := new(big.Int).Add(s.Liquidity, liquidity)
	st.SetState(h.Address, slotLiquidity, common.BigToHash(total))

	st.Emit(simulator.Event{
		Address: h.Address,
		Name:    "Mint",
		Args: map[string]string{
			"owner":   provider.Hex(),
			"amount":  liquidity.String(),
			"amount0": amount0.String(),
			"amount1": amount1.String(),
		},
	})

	m.logger.Debug("liquidity provided",
		zap.String("pool", h.Address.Hex()),
		zap.String("provider", provider.Hex()),
		zap.String("liquidity", liquidity.String()),
		zap.String("amount0", amount0.String()),
		zap.String("amount1", amount1.String()),
	)
	return liquidity, nil
}

// Quote returns what Swap would pay out without touching state.
func (m *Manager) Quote(st *simulator.State, h Handle, assetIn common.Address, amountIn *big.Int) (*big.Int, error) {
	out, _, _, err := m.quote(st, h, assetIn, amountIn)
	return out, err
}

func (m *Manager) quote(st *simulator.State, h Handle, assetIn common.Address, amountIn *big.Int) (amountOut, sqrtNext *big.Int, assetOut common.Address, err error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, nil, common.Address{}, ErrInvalidAmount
	}
	assetOut, err = h.Other(assetIn)
	if err != nil {
		return nil, nil, common.Address{}, err
	}

	s, err := m.Slot0(st, h)
	if err != nil {
		return nil, nil, common.Address{}, err
	}
	if s.Liquidity.Sign() == 0 {
		return nil, nil, common.Address{}, fmt.Errorf("%w: %s has no liquidity", ErrInsufficientLiquidity, h.Key)
	}

	amountOut, sqrtNext = GetAmountOut(s.SqrtPriceX96, s.Liquidity, h.Fee, assetIn == h.Token0, amountIn)

	if !pricing.ValidSqrtPrice(sqrtNext) {
		return nil, nil, common.Address{}, fmt.Errorf("%w: price limit reached on %s", ErrInsufficientLiquidity, h.Key)
	}
	if reserve := token.BalanceOf(st, assetOut, h.Address); reserve.Cmp(amountOut) < 0 {
		return nil, nil, common.Address{}, fmt.Errorf("%w: %s holds %s, owes %s", ErrInsufficientLiquidity, h.Key, reserve, amountOut)
	}
	return amountOut, sqrtNext, assetOut, nil
}

// Swap sells amountIn of assetIn, pulled from payer, and sends the output to
// recipient.
func (m *Manager) Swap(st *simulator.State, h Handle, assetIn common.Address, amountIn *big.Int, payer, recipient common.Address) (*big.Int, error) {
	amountOut, sqrtNext, assetOut, err := m.quote(st, h, assetIn, amountIn)
	if err != nil {
		return nil, err
	}

	if err := token.Transfer(st, assetIn, payer, h.Address, amountIn); err != nil {
		return nil, fmt.Errorf("swap pay in: %w", err)
	}
	if err := token.Transfer(st, assetOut, h.Address, recipient, amountOut); err != nil {
		return nil, fmt.Errorf("swap pay out: %w", err)
	}
	st.SetState(h.Address, slotSqrtPrice, common.BigToHash(sqrtNext))

	st.Emit(simulator.Event{
		Address: h.Address,
		Name:    "Swap",
		Args: map[string]string{
			"sender":       payer.Hex(),
			"recipient":    recipient.Hex(),
			"assetIn":      assetIn.Hex(),
			"amountIn":     amountIn.String(),
			"amountOut":    amountOut.String(),
			"sqrtPriceX96": sqrtNext.String(),
		},
	})

	m.logger.Debug("swap",
		zap.String("pool", h.Address.Hex()),
		zap.String("assetIn", assetIn.Hex()),
		zap.String("amountIn", amountIn.String()),
		zap.String("amountOut", amountOut.String()),
	)
	return amountOut, nil
}

func (m *Manager) Slot0(st *simulator.State, h Handle) (Slot0, error) {
	if len(st.GetCode(h.Address)) == 0 {
		return Slot0{}, fmt.Errorf("%w: %s", ErrPoolNotFound, h.Key)
	}
	return Slot0{
		SqrtPriceX96: st.GetState(h.Address, slotSqrtPrice).Big(),
		Liquidity:    st.GetState(h.Address, slotLiquidity).Big(),
	}, nil
}

func (m *Manager) Liquidity(st *simulator.State, h Handle) (*big.Int, error) {
	s, err := m.Slot0(st, h)
	if err != nil {
		return nil, err
	}
	return s.Liquidity, nil
}

func (m *Manager) SqrtPrice(st *simulator.State, h Handle) (*big.Int, error) {
	s, err := m.Slot0(st, h)
	if err != nil {
		return nil, err
	}
	return s.SqrtPriceX96, nil
}

// Reserves returns the token balances held at the pool address.
func (m *Manager) Reserves(st *simulator.State, h Handle) (reserve0, reserve1 *big.Int) {
	return token.BalanceOf(st, h.Token0, h.Address), token.BalanceOf(st, h.Token1, h.Address)
}
