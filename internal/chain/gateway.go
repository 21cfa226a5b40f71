package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrChainCall       = errors.New("chain call failed")
	ErrValidation      = errors.New("invalid input")
	ErrUnknownSigner   = errors.New("no signer registered for address")
	ErrUnexpectedValue = errors.New("unexpected return value")
)

// Token methods used by the bot.
const (
	MethodBalanceOf   = "balanceOf"
	MethodTransfer    = "transfer"
	MethodMint        = "mint"
	MethodTotalSupply = "totalSupply"
	MethodMaxSupply   = "MAX_SUPPLY"
	MethodDecimals    = "decimals"
	MethodSymbol      = "symbol"
)

// Gateway is the set of chain operations the bot relies on. All amounts are
// base-unit integers.
type Gateway interface {
	MainAddress() common.Address
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	CreateKeypair() (Keypair, error)

	RegisterSigner(privateKey string) (common.Address, error)
	UnregisterSigner(addr common.Address)

	Call(ctx context.Context, method string, args ...any) ([]any, error)
	EstimateGas(ctx context.Context, method string, from common.Address, args ...any) (uint64, error)
	Send(ctx context.Context, method string, opts TxOpts, args ...any) (*Receipt, error)
	SendNative(ctx context.Context, tx NativeTx) (*Receipt, error)
}

// Keypair is a freshly generated account. PrivateKey is 0x-prefixed hex.
type Keypair struct {
	Address    common.Address
	PrivateKey string
}

// TxOpts selects the sender and gas limit of a contract call.
type TxOpts struct {
	From common.Address
	Gas  uint64
}

// NativeTx is a plain value transfer.
type NativeTx struct {
	From     common.Address
	To       common.Address
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
}

// Receipt is the outcome of a mined transaction.
type Receipt struct {
	TxHash  string
	GasUsed uint64
}

// CallError wraps a failed RPC or transaction.
type CallError struct {
	Op     string
	Method string
	Err    error
}

func (e *CallError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Method, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() []error {
	return []error{ErrChainCall, e.Err}
}

func callErr(op, method string, err error) error {
	return &CallError{Op: op, Method: method, Err: err}
}

// ParseAddress validates a hex address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: bad address %q", ErrValidation, s)
	}
	return common.HexToAddress(s), nil
}

// TokenBalance reads balanceOf(addr).
func TokenBalance(ctx context.Context, g Gateway, addr common.Address) (*big.Int, error) {
	return CallUint(ctx, g, MethodBalanceOf, addr)
}

// CallUint runs a read-only method that returns a single uint256.
func CallUint(ctx context.Context, g Gateway, method string, args ...any) (*big.Int, error) {
	out, err := g.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, callErr("call", method, ErrUnexpectedValue)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, callErr("call", method, fmt.Errorf("%w: %T", ErrUnexpectedValue, out[0]))
	}
	return v, nil
}
