package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Options configures a Client.
type Options struct {
	RPCURL         string
	ChainID        int64 // 0 = ask the node
	MainPrivateKey string
	TokenAddress   string
	MintAmount     *big.Int // used by mint(uint256)
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
}

// Client is the go-ethereum backed Gateway.
type Client struct {
	ec       *ethclient.Client
	chainID  *big.Int
	token    common.Address
	tokenABI abi.ABI
	log      *slog.Logger

	mainKey  *ecdsa.PrivateKey
	mainAddr common.Address

	mintAmount     *big.Int
	mint           mintVariant
	receiptTimeout time.Duration
	pollInterval   time.Duration

	mu      sync.RWMutex
	signers map[common.Address]*ecdsa.PrivateKey

	// sendMu keeps nonce lookup and submission atomic per process.
	sendMu sync.Mutex
}

// Dial connects to the RPC endpoint and loads the main account.
func Dial(ctx context.Context, opts Options, log *slog.Logger) (*Client, error) {
	token, err := ParseAddress(opts.TokenAddress)
	if err != nil {
		return nil, fmt.Errorf("token address: %w", err)
	}

	mainKey, err := parseKey(opts.MainPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("main private key: %w", err)
	}

	ec, err := ethclient.DialContext(ctx, opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	chainID := big.NewInt(opts.ChainID)
	if opts.ChainID == 0 {
		chainID, err = ec.ChainID(ctx)
		if err != nil {
			ec.Close()
			return nil, callErr("chain id", "", err)
		}
	}

	c := &Client{
		ec:             ec,
		chainID:        chainID,
		token:          token,
		tokenABI:       mustABI(tokenABIJSON),
		log:            log,
		mainKey:        mainKey,
		mainAddr:       crypto.PubkeyToAddress(mainKey.PublicKey),
		mintAmount:     opts.MintAmount,
		mint:           mintVariants[0],
		receiptTimeout: opts.ReceiptTimeout,
		pollInterval:   opts.PollInterval,
		signers:        make(map[common.Address]*ecdsa.PrivateKey),
	}
	if c.mintAmount == nil {
		c.mintAmount = new(big.Int)
	}
	if c.receiptTimeout <= 0 {
		c.receiptTimeout = 2 * time.Minute
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 2 * time.Second
	}

	return c, nil
}

// Close closes the RPC connection.
func (c *Client) Close() {
	c.ec.Close()
}

// ProbeMint inspects the token bytecode once and caches which mint signature
// the deployed contract exposes.
func (c *Client) ProbeMint(ctx context.Context) (string, error) {
	code, err := c.ec.CodeAt(ctx, c.token, nil)
	if err != nil {
		return "", callErr("code", "", err)
	}
	if len(code) == 0 {
		return "", fmt.Errorf("%w: no contract at %s", ErrValidation, c.token.Hex())
	}

	for _, v := range mintVariants {
		if v.presentIn(code) {
			c.mint = v
			c.log.Info("mint signature selected", "signature", v.signature)
			return v.signature, nil
		}
	}

	c.log.Warn("no known mint selector in bytecode, keeping default", "signature", c.mint.signature)
	return c.mint.signature, nil
}

func (c *Client) MainAddress() common.Address {
	return c.mainAddr
}

func (c *Client) TokenAddress() common.Address {
	return c.token
}

func (c *Client) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	bal, err := c.ec.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, callErr("balance", "", err)
	}
	return bal, nil
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.ec.SuggestGasPrice(ctx)
	if err != nil {
		return nil, callErr("gas price", "", err)
	}
	return price, nil
}

func (c *Client) CreateKeypair() (Keypair, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return Keypair{}, fmt.Errorf("generate key: %w", err)
	}
	return Keypair{
		Address:    crypto.PubkeyToAddress(key.PublicKey),
		PrivateKey: "0x" + common.Bytes2Hex(crypto.FromECDSA(key)),
	}, nil
}

// RegisterSigner makes privateKey available as a sender until
// UnregisterSigner is called with the returned address.
func (c *Client) RegisterSigner(privateKey string) (common.Address, error) {
	key, err := parseKey(privateKey)
	if err != nil {
		return common.Address{}, err
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	c.mu.Lock()
	c.signers[addr] = key
	c.mu.Unlock()
	return addr, nil
}

func (c *Client) UnregisterSigner(addr common.Address) {
	c.mu.Lock()
	delete(c.signers, addr)
	c.mu.Unlock()
}

// Signers returns the number of registered ephemeral signers.
func (c *Client) Signers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.signers)
}

func (c *Client) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.tokenABI.Pack(method, args...)
	if err != nil {
		return nil, callErr("pack", method, err)
	}

	out, err := c.ec.CallContract(ctx, ethereum.CallMsg{To: &c.token, Data: data}, nil)
	if err != nil {
		return nil, callErr("call", method, err)
	}

	vals, err := c.tokenABI.Unpack(method, out)
	if err != nil {
		return nil, callErr("unpack", method, err)
	}
	return vals, nil
}

func (c *Client) EstimateGas(ctx context.Context, method string, from common.Address, args ...any) (uint64, error) {
	data, err := c.pack(method, from, args)
	if err != nil {
		return 0, err
	}

	gas, err := c.ec.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &c.token, Data: data})
	if err != nil {
		return 0, callErr("estimate", method, err)
	}
	return gas, nil
}

func (c *Client) Send(ctx context.Context, method string, opts TxOpts, args ...any) (*Receipt, error) {
	data, err := c.pack(method, opts.From, args)
	if err != nil {
		return nil, err
	}

	price, err := c.GasPrice(ctx)
	if err != nil {
		return nil, err
	}

	hash, err := c.submit(ctx, opts.From, c.token, new(big.Int), opts.Gas, price, data)
	if err != nil {
		return nil, callErr("send", method, err)
	}
	return c.waitMined(ctx, hash, method)
}

func (c *Client) SendNative(ctx context.Context, tx NativeTx) (*Receipt, error) {
	price := tx.GasPrice
	if price == nil {
		var err error
		if price, err = c.GasPrice(ctx); err != nil {
			return nil, err
		}
	}

	hash, err := c.submit(ctx, tx.From, tx.To, tx.Value, tx.Gas, price, nil)
	if err != nil {
		return nil, callErr("send native", "", err)
	}
	return c.waitMined(ctx, hash, "")
}

func (c *Client) pack(method string, from common.Address, args []any) ([]byte, error) {
	if method == MethodMint {
		if len(args) == 0 {
			args = c.mint.args(from, c.mintAmount)
		}
		data, err := c.mint.abi.Pack(MethodMint, args...)
		if err != nil {
			return nil, callErr("pack", c.mint.signature, err)
		}
		return data, nil
	}

	data, err := c.tokenABI.Pack(method, args...)
	if err != nil {
		return nil, callErr("pack", method, err)
	}
	return data, nil
}

func (c *Client) submit(ctx context.Context, from, to common.Address, value *big.Int, gas uint64, price *big.Int, data []byte) (common.Hash, error) {
	key, err := c.keyFor(from)
	if err != nil {
		return common.Hash{}, err
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	nonce, err := c.ec.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: price,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign: %w", err)
	}

	if err := c.ec.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}

	c.log.Debug("transaction submitted", "hash", signed.Hash().Hex(), "from", from.Hex(), "nonce", nonce)
	return signed.Hash(), nil
}

func (c *Client) waitMined(ctx context.Context, hash common.Hash, method string) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		rcpt, err := c.ec.TransactionReceipt(ctx, hash)
		if err == nil {
			if rcpt.Status != types.ReceiptStatusSuccessful {
				return nil, callErr("receipt", method, fmt.Errorf("transaction %s reverted", hash.Hex()))
			}
			return &Receipt{TxHash: hash.Hex(), GasUsed: rcpt.GasUsed}, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, callErr("receipt", method, err)
		}

		select {
		case <-ctx.Done():
			return nil, callErr("receipt", method, fmt.Errorf("waiting for %s: %w", hash.Hex(), ctx.Err()))
		case <-ticker.C:
		}
	}
}

func (c *Client) keyFor(addr common.Address) (*ecdsa.PrivateKey, error) {
	if addr == c.mainAddr {
		return c.mainKey, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.signers[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSigner, addr.Hex())
	}
	return key, nil
}

func parseKey(s string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: bad private key", ErrValidation)
	}
	return key, nil
}
