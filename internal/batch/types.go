package batch

import (
	"context"
	"errors"
	"math/big"
)

// Operation selects what a batch does to each wallet.
type Operation string

const (
	OpFund         Operation = "fund"
	OpMint         Operation = "mint"
	OpCollectToken Operation = "collectToken"
	OpCollectGas   Operation = "collectGas"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrMaxSupplyReached    = errors.New("token max supply reached")
	ErrUnknownOperation    = errors.New("unknown batch operation")
)

// Progress is emitted after every wallet of a batch.
type Progress struct {
	Operation      Operation
	Processed      int
	Total          int
	Success        int
	Skipped        int
	Failed         int
	CurrentAddress string
}

// Done reports whether this is the last event of the run.
func (p Progress) Done() bool {
	return p.Processed >= p.Total
}

// Reporter receives progress events. Implementations must not block for
// long; the orchestrator recovers reporter panics and carries on.
type Reporter interface {
	OnProgress(ctx context.Context, p Progress)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, p Progress)

func (f ReporterFunc) OnProgress(ctx context.Context, p Progress) { f(ctx, p) }

// Result is the tally of one batch run.
type Result struct {
	Operation Operation
	Total     int
	Success   int
	Skipped   int
	Failed    int

	// Collect operations only. Amounts are base units of the collected asset.
	TotalCollected *big.Int
	Reward         *big.Int
	NetAmount      *big.Int
	RewardTx       string
	RewardErr      error
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeSkipped
	outcomeFailed
)

type stepResult struct {
	outcome outcome
	amount  *big.Int
	reason  string
	archive bool
}

func skipped(reason string) stepResult {
	return stepResult{outcome: outcomeSkipped, reason: reason}
}

func succeeded(amount *big.Int) stepResult {
	return stepResult{outcome: outcomeSuccess, amount: amount}
}
