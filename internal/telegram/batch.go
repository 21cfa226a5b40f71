package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/suspectuso/sova-bot/internal/batch"
	"github.com/suspectuso/sova-bot/internal/chain"
	"github.com/suspectuso/sova-bot/internal/checkin"
	"github.com/suspectuso/sova-bot/internal/notifier"
	"github.com/suspectuso/sova-bot/internal/storage"
)

const opCheckin = "checkin"

func (b *Bot) batchHandler(op batch.Operation) bot.HandlerFunc {
	return func(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
		if !b.requireAdmin(ctx, update) {
			return
		}
		b.runBatch(ctx, update.Message.Chat.ID, update.Message.From.ID, op)
	}
}

func (b *Bot) checkinHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if !b.requireAdmin(ctx, update) {
		return
	}
	b.runCheckin(ctx, update.Message.Chat.ID, update.Message.From.ID)
}

// acquireBatch takes the batch slot or tells the user it is busy.
func (b *Bot) acquireBatch(ctx context.Context, chatID int64) bool {
	if b.batchMu.TryLock() {
		b.busy.Store(true)
		return true
	}
	b.sendMessage(ctx, chatID, "⏳ Уже выполняется другая операция, дождись её завершения.", nil)
	return false
}

func (b *Bot) releaseBatch() {
	b.busy.Store(false)
	b.batchMu.Unlock()
}

func (b *Bot) createWallets(ctx context.Context, chatID, userID int64, n int) {
	if !b.acquireBatch(ctx, chatID) {
		return
	}
	defer b.releaseBatch()

	run := &storage.Run{Operation: "create", UserID: userID, StartedAt: time.Now(), Total: n}
	created, err := b.deps.Batcher.Create(ctx, n)
	run.FinishedAt = time.Now()
	run.Success = len(created)
	b.record(run, err)

	if err != nil {
		b.log.Error("create wallets", "count", n, "error", err)
		b.sendMessage(ctx, chatID, "❌ "+userError(err), nil)
		return
	}
	b.sendMessage(ctx, chatID, fmt.Sprintf("✅ Создано кошельков: <b>%d</b>", len(created)), nil)
}

func (b *Bot) runBatch(ctx context.Context, chatID, userID int64, op batch.Operation) {
	if !b.acquireBatch(ctx, chatID) {
		return
	}
	defer b.releaseBatch()

	doc, err := b.deps.Wallets.LoadActive(ctx)
	if err != nil {
		b.log.Error("load wallets", "error", err)
		b.sendMessage(ctx, chatID, "❌ Не удалось прочитать кошельки.", nil)
		return
	}
	if len(doc.Wallets) == 0 {
		b.sendMessage(ctx, chatID, "👛 Нет активных кошельков. Создай их командой <code>/create N</code>.", nil)
		return
	}

	msg := b.sendMessage(ctx, chatID, b.deps.Format.BatchProgress(batch.Progress{Operation: op, Total: len(doc.Wallets)}), nil)
	if msg == nil {
		return
	}
	progress := notifier.NewProgressMessage(b, b.deps.Format, chatID, msg.ID, b.cfg.ProgressInterval, b.log)

	run := &storage.Run{Operation: string(op), UserID: userID, StartedAt: time.Now(), Total: len(doc.Wallets)}
	res, err := b.deps.Batcher.Run(ctx, op, doc.Wallets, progress)
	run.FinishedAt = time.Now()
	if res != nil {
		run.Success, run.Skipped, run.Failed = res.Success, res.Skipped, res.Failed
		if res.TotalCollected != nil {
			run.TotalCollected = res.TotalCollected.String()
		}
		if res.Reward != nil {
			run.Reward = res.Reward.String()
		}
		run.RewardTx = res.RewardTx
	}
	b.record(run, err)

	switch {
	case res != nil:
		text := b.deps.Format.BatchSummary(res)
		if err != nil {
			text += "\n\n⚠️ Результаты не сохранены"
		}
		progress.Finish(ctx, text)
	case err != nil:
		b.log.Error("batch failed to start", "operation", op, "error", err)
		progress.Finish(ctx, "❌ "+batchError(err))
	}
}

func (b *Bot) runCheckin(ctx context.Context, chatID, userID int64) {
	if !b.acquireBatch(ctx, chatID) {
		return
	}
	defer b.releaseBatch()

	doc, err := b.deps.Wallets.LoadActive(ctx)
	if err != nil {
		b.log.Error("load wallets", "error", err)
		b.sendMessage(ctx, chatID, "❌ Не удалось прочитать кошельки.", nil)
		return
	}
	addrs := doc.Addresses()
	if len(addrs) == 0 {
		b.sendMessage(ctx, chatID, "👛 Нет активных кошельков.", nil)
		return
	}

	msg := b.sendMessage(ctx, chatID, b.deps.Format.CheckinProgress(checkin.Progress{Total: len(addrs)}), nil)
	if msg == nil {
		return
	}
	progress := notifier.NewProgressMessage(b, b.deps.Format, chatID, msg.ID, b.cfg.ProgressInterval, b.log)

	run := &storage.Run{Operation: opCheckin, UserID: userID, StartedAt: time.Now(), Total: len(addrs)}
	sum := b.deps.Sweeper.Sweep(ctx, addrs, func(p checkin.Progress) {
		progress.OnCheckin(ctx, p)
	})
	run.FinishedAt = time.Now()
	run.Success, run.Skipped, run.Failed = sum.Success, sum.Already, sum.Failed
	b.record(run, nil)

	progress.Finish(ctx, b.deps.Format.CheckinSummary(sum))
}

func (b *Bot) record(run *storage.Run, err error) {
	if err != nil {
		run.Error = err.Error()
	}
	if err := b.deps.Journal.RecordRun(run); err != nil {
		b.log.Error("record run", "operation", run.Operation, "error", err)
	}
}

func batchError(err error) string {
	switch {
	case errors.Is(err, batch.ErrInsufficientBalance):
		return "Недостаточно средств на основном кошельке: " + err.Error()
	case errors.Is(err, batch.ErrMaxSupplyReached):
		return "Достигнут максимальный выпуск токена."
	case errors.Is(err, chain.ErrChainCall):
		return "Ошибка сети, попробуй позже."
	default:
		return userError(err)
	}
}
