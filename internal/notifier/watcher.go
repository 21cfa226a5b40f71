package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/suspectuso/sova-bot/internal/chain"
)

// BalanceWatcher alerts admins when the main account runs low on gas
type BalanceWatcher struct {
	gw        chain.Gateway
	m         Messenger
	admins    []int64
	threshold *big.Int
	symbol    string
	log       *slog.Logger

	low bool
}

// NewBalanceWatcher creates a new balance watcher
func NewBalanceWatcher(gw chain.Gateway, m Messenger, admins []int64, threshold *big.Int, symbol string, log *slog.Logger) *BalanceWatcher {
	return &BalanceWatcher{
		gw:        gw,
		m:         m,
		admins:    admins,
		threshold: threshold,
		symbol:    symbol,
		log:       log,
	}
}

// Start starts the watcher loop
func (w *BalanceWatcher) Start(ctx context.Context, interval time.Duration) {
	if w.threshold == nil || w.threshold.Sign() == 0 || len(w.admins) == 0 {
		w.log.Info("balance watcher disabled")
		return
	}

	w.log.Info("balance watcher started",
		"threshold", chain.FormatUnits(w.threshold, chain.NativeDecimals),
		"interval", interval,
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := w.check(ctx); err != nil {
			w.log.Error("check main balance", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// check alerts once per drop below the threshold.
func (w *BalanceWatcher) check(ctx context.Context) error {
	bal, err := w.gw.Balance(ctx, w.gw.MainAddress())
	if err != nil {
		return err
	}

	if bal.Cmp(w.threshold) >= 0 {
		if w.low {
			w.log.Info("main balance recovered", "balance", chain.FormatUnits(bal, chain.NativeDecimals))
		}
		w.low = false
		return nil
	}
	if w.low {
		return nil
	}
	w.low = true

	w.log.Warn("main balance low",
		"balance", chain.FormatUnits(bal, chain.NativeDecimals),
		"threshold", chain.FormatUnits(w.threshold, chain.NativeDecimals),
	)

	text := fmt.Sprintf(
		"⚠️ <b>Мало газа на основном кошельке</b>\n\n"+
			"Баланс: <b>%s %s</b>\n"+
			"Порог: <b>%s %s</b>\n\n"+
			"<code>%s</code>",
		FormatAmount(bal, chain.NativeDecimals), w.symbol,
		FormatAmount(w.threshold, chain.NativeDecimals), w.symbol,
		w.gw.MainAddress().Hex(),
	)
	for _, id := range w.admins {
		if err := w.m.SendNotification(ctx, id, text); err != nil {
			w.log.Error("send low balance alert", "user_id", id, "error", err)
		}
	}
	return nil
}
