package batch

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/suspectuso/sova-bot/internal/chain"
	"github.com/suspectuso/sova-bot/internal/wallets"
)

// WalletStore is the persistence the orchestrator writes back to.
type WalletStore interface {
	CreateWallets(ctx context.Context, n int) ([]wallets.ManagedWallet, error)
	UpdateWallets(ctx context.Context, ws []wallets.ManagedWallet) error
	Archive(ctx context.Context, address string) error
}

// Config holds batch tuning. Amounts are base units.
type Config struct {
	MaxWallets      int
	FundAmount      *big.Int
	GasMargin       decimal.Decimal
	StandardGas     uint64
	MinGasSweep     *big.Int
	GasSweepBuffer  decimal.Decimal
	RewardPercent   int64
	RewardRecipient common.Address
	TokenDecimals   int32
	Delay           time.Duration
}

// Orchestrator drives a wallet set through one operation, one wallet at a
// time. Wallets share the main account nonce, so there is no parallelism.
type Orchestrator struct {
	gw    chain.Gateway
	store WalletStore
	cfg   Config
	log   *slog.Logger
	sleep func(ctx context.Context, d time.Duration)
}

// New creates an Orchestrator.
func New(gw chain.Gateway, store WalletStore, cfg Config, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		gw:    gw,
		store: store,
		cfg:   cfg,
		log:   log,
		sleep: sleepCtx,
	}
}

// Create validates n and generates that many wallets.
func (o *Orchestrator) Create(ctx context.Context, n int) ([]wallets.ManagedWallet, error) {
	if n < 1 || n > o.cfg.MaxWallets {
		return nil, fmt.Errorf("%w: wallet count must be between 1 and %d", chain.ErrValidation, o.cfg.MaxWallets)
	}
	return o.store.CreateWallets(ctx, n)
}

// Run applies op to every wallet in order. Per-wallet failures are counted
// and never abort the run. An error is returned only when the run could not
// start (funding gate, supply cap) or its results could not be persisted.
// Mint results are also written onto ws.
func (o *Orchestrator) Run(ctx context.Context, op Operation, ws []wallets.ManagedWallet, rep Reporter) (*Result, error) {
	step, err := o.prepare(ctx, op, len(ws))
	if err != nil {
		return nil, err
	}

	res := &Result{Operation: op, Total: len(ws), TotalCollected: new(big.Int)}
	var minted []wallets.ManagedWallet
	var drained []string

	o.log.Info("batch started", "operation", op, "wallets", len(ws))

	for i := range ws {
		w := &ws[i]

		r := step(ctx, w)
		switch r.outcome {
		case outcomeSuccess:
			res.Success++
			if r.amount != nil {
				res.TotalCollected.Add(res.TotalCollected, r.amount)
			}
			if op == OpMint {
				minted = append(minted, *w)
			}
			if r.archive {
				drained = append(drained, w.Address)
			}
		case outcomeSkipped:
			res.Skipped++
			o.log.Debug("wallet skipped", "operation", op, "wallet", w.Address, "reason", r.reason)
		default:
			res.Failed++
		}

		o.report(ctx, rep, Progress{
			Operation:      op,
			Processed:      i + 1,
			Total:          len(ws),
			Success:        res.Success,
			Skipped:        res.Skipped,
			Failed:         res.Failed,
			CurrentAddress: w.Address,
		})

		if i < len(ws)-1 && o.cfg.Delay > 0 {
			o.sleep(ctx, o.cfg.Delay)
		}
	}

	if op == OpCollectToken || op == OpCollectGas {
		o.distributeReward(ctx, op, res)
	}

	o.log.Info("batch finished",
		"operation", op,
		"success", res.Success,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"collected", res.TotalCollected.String(),
	)

	if len(minted) > 0 {
		if err := o.store.UpdateWallets(ctx, minted); err != nil {
			return res, fmt.Errorf("save mint state: %w", err)
		}
	}
	for _, addr := range drained {
		if err := o.store.Archive(ctx, addr); err != nil {
			o.log.Error("archive wallet", "wallet", addr, "error", err)
		}
	}

	return res, nil
}

type stepFunc func(ctx context.Context, w *wallets.ManagedWallet) stepResult

// prepare runs the operation's upfront checks and returns its step.
func (o *Orchestrator) prepare(ctx context.Context, op Operation, n int) (stepFunc, error) {
	switch op {
	case OpFund:
		gasPrice, err := o.checkFunding(ctx, n)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, w *wallets.ManagedWallet) stepResult {
			return o.fund(ctx, w, gasPrice)
		}, nil
	case OpMint:
		if err := o.checkSupply(ctx); err != nil {
			return nil, err
		}
		return o.mint, nil
	case OpCollectToken:
		return o.collectToken, nil
	case OpCollectGas:
		return o.collectGas, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}
}

// report hands p to rep, shielding the batch from reporter failures.
func (o *Orchestrator) report(ctx context.Context, rep Reporter, p Progress) {
	if rep == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.log.Warn("progress reporter panicked", "panic", r)
		}
	}()
	rep.OnProgress(ctx, p)
}

func (o *Orchestrator) fail(op Operation, w *wallets.ManagedWallet, err error) stepResult {
	o.log.Warn("wallet failed", "operation", op, "wallet", w.Address, "error", err)
	return stepResult{outcome: outcomeFailed}
}

func walletAddress(w *wallets.ManagedWallet) (common.Address, error) {
	return chain.ParseAddress(w.Address)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
