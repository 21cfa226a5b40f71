// Package chaintest provides an in-memory chain.Gateway for tests.
package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/suspectuso/sova-bot/internal/chain"
)

// SentCall records a contract transaction.
type SentCall struct {
	Method string
	Opts   chain.TxOpts
	Args   []any
}

// Gateway is a scripted chain.Gateway. Zero values read as empty balances.
type Gateway struct {
	mu sync.Mutex

	Main      common.Address
	Price     *big.Int
	Native    map[common.Address]*big.Int
	Tokens    map[common.Address]*big.Int
	Supply    *big.Int
	MaxSupply *big.Int // nil makes MAX_SUPPLY unreadable

	// Keys maps private keys to the address RegisterSigner returns.
	Keys map[string]common.Address

	// Optional failure hooks.
	CallErr   func(method string) error
	SendErr   func(method string, opts chain.TxOpts, args []any) error
	NativeErr func(tx chain.NativeTx) error

	Sent        []SentCall
	NativeSent  []chain.NativeTx
	Registered  int
	Unregisters int
	active      map[common.Address]bool
	nextKey     int
	txCount     int
}

// New returns a Gateway with main as the main account and a 1 gwei gas price.
func New(main common.Address) *Gateway {
	return &Gateway{
		Main:   main,
		Price:  big.NewInt(1_000_000_000),
		Native: map[common.Address]*big.Int{},
		Tokens: map[common.Address]*big.Int{},
		Keys:   map[string]common.Address{},
		active: map[common.Address]bool{},
	}
}

// Addr returns a deterministic test address.
func Addr(n int64) common.Address {
	return common.BigToAddress(big.NewInt(n))
}

// ActiveSigners returns the number of currently registered signers.
func (g *Gateway) ActiveSigners() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}

func (g *Gateway) MainAddress() common.Address { return g.Main }

func (g *Gateway) Balance(_ context.Context, addr common.Address) (*big.Int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return valueOf(g.Native[addr]), nil
}

func (g *Gateway) GasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(g.Price), nil
}

func (g *Gateway) CreateKeypair() (chain.Keypair, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextKey++
	kp := chain.Keypair{
		Address:    Addr(int64(0x1000 + g.nextKey)),
		PrivateKey: fmt.Sprintf("key-%d", g.nextKey),
	}
	g.Keys[kp.PrivateKey] = kp.Address
	return kp, nil
}

func (g *Gateway) RegisterSigner(privateKey string) (common.Address, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	addr, ok := g.Keys[privateKey]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: unknown key", chain.ErrValidation)
	}
	g.Registered++
	g.active[addr] = true
	return addr, nil
}

func (g *Gateway) UnregisterSigner(addr common.Address) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Unregisters++
	delete(g.active, addr)
}

func (g *Gateway) Call(_ context.Context, method string, args ...any) ([]any, error) {
	if g.CallErr != nil {
		if err := g.CallErr(method); err != nil {
			return nil, err
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	switch method {
	case chain.MethodBalanceOf:
		addr, _ := args[0].(common.Address)
		return []any{valueOf(g.Tokens[addr])}, nil
	case chain.MethodTotalSupply:
		return []any{valueOf(g.Supply)}, nil
	case chain.MethodMaxSupply:
		if g.MaxSupply == nil {
			return nil, &chain.CallError{Op: "call", Method: method, Err: fmt.Errorf("execution reverted")}
		}
		return []any{new(big.Int).Set(g.MaxSupply)}, nil
	}
	return nil, &chain.CallError{Op: "call", Method: method, Err: fmt.Errorf("unsupported")}
}

func (g *Gateway) EstimateGas(_ context.Context, method string, _ common.Address, _ ...any) (uint64, error) {
	if method == chain.MethodMint {
		return 100_000, nil
	}
	return 50_000, nil
}

func (g *Gateway) Send(_ context.Context, method string, opts chain.TxOpts, args ...any) (*chain.Receipt, error) {
	if g.SendErr != nil {
		if err := g.SendErr(method, opts, args); err != nil {
			return nil, &chain.CallError{Op: "send", Method: method, Err: err}
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if opts.From != g.Main && !g.active[opts.From] {
		return nil, chain.ErrUnknownSigner
	}
	g.Sent = append(g.Sent, SentCall{Method: method, Opts: opts, Args: args})
	return g.receipt(opts.Gas), nil
}

func (g *Gateway) SendNative(_ context.Context, tx chain.NativeTx) (*chain.Receipt, error) {
	if g.NativeErr != nil {
		if err := g.NativeErr(tx); err != nil {
			return nil, &chain.CallError{Op: "send", Err: err}
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if tx.From != g.Main && !g.active[tx.From] {
		return nil, chain.ErrUnknownSigner
	}
	g.NativeSent = append(g.NativeSent, tx)
	return g.receipt(tx.Gas), nil
}

func (g *Gateway) receipt(gas uint64) *chain.Receipt {
	g.txCount++
	return &chain.Receipt{TxHash: fmt.Sprintf("0x%064x", g.txCount), GasUsed: gas}
}

func valueOf(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
