// Package faucet pays out the daily token claim.
package faucet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/suspectuso/sova-bot/internal/chain"
	"github.com/suspectuso/sova-bot/internal/claims"
)

var ErrFaucetEmpty = errors.New("faucet balance too low")

// Ledger records who claimed on which day.
type Ledger interface {
	CanClaim(ctx context.Context, userID int64) (bool, error)
	RecordClaim(ctx context.Context, userID int64, address, txHash string) error
}

// Service sends ClaimAmount tokens from the main account once per user per day.
type Service struct {
	gw     chain.Gateway
	ledger Ledger
	amount *big.Int
	margin decimal.Decimal
	log    *slog.Logger

	// Claims share the main account nonce and must not interleave.
	mu sync.Mutex
}

// New creates a faucet paying amount base units per claim.
func New(gw chain.Gateway, ledger Ledger, amount *big.Int, margin decimal.Decimal, log *slog.Logger) *Service {
	return &Service{gw: gw, ledger: ledger, amount: amount, margin: margin, log: log}
}

// Amount returns the per-claim payout in base units.
func (s *Service) Amount() *big.Int {
	return new(big.Int).Set(s.amount)
}

// Claim pays userID's daily claim to address and returns the transaction hash.
func (s *Service) Claim(ctx context.Context, userID int64, address string) (string, error) {
	to, err := chain.ParseAddress(address)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.ledger.CanClaim(ctx, userID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", claims.ErrAlreadyClaimed
	}

	main := s.gw.MainAddress()
	bal, err := chain.TokenBalance(ctx, s.gw, main)
	if err != nil {
		return "", err
	}
	if bal.Cmp(s.amount) < 0 {
		return "", fmt.Errorf("%w: have %s", ErrFaucetEmpty, bal)
	}

	est, err := s.gw.EstimateGas(ctx, chain.MethodTransfer, main, to, s.amount)
	if err != nil {
		return "", err
	}
	rcpt, err := s.gw.Send(ctx, chain.MethodTransfer, chain.TxOpts{
		From: main,
		Gas:  chain.ApplyMargin(est, s.margin),
	}, to, s.amount)
	if err != nil {
		return "", err
	}

	if err := s.ledger.RecordClaim(ctx, userID, to.Hex(), rcpt.TxHash); err != nil {
		// Tokens already left; the ledger is the only thing out of date.
		s.log.Error("record claim", "user_id", userID, "tx", rcpt.TxHash, "error", err)
		return rcpt.TxHash, fmt.Errorf("record claim: %w", err)
	}

	s.log.Info("faucet claim paid", "user_id", userID, "address", to.Hex(), "tx", rcpt.TxHash)
	return rcpt.TxHash, nil
}
