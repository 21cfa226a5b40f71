package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/suspectuso/sova-bot/internal/batch"
	"github.com/suspectuso/sova-bot/internal/chain"
	"github.com/suspectuso/sova-bot/internal/checkin"
	"github.com/suspectuso/sova-bot/internal/config"
	"github.com/suspectuso/sova-bot/internal/notifier"
	"github.com/suspectuso/sova-bot/internal/storage"
	"github.com/suspectuso/sova-bot/internal/wallets"
)

// api is the subset of the Telegram client the handlers use.
type api interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// WalletSource loads the managed wallet pool.
type WalletSource interface {
	LoadActive(ctx context.Context) (*wallets.Document, error)
	LoadArchived(ctx context.Context) (*wallets.Document, error)
}

// Batcher creates wallets and runs batch operations over them.
type Batcher interface {
	Create(ctx context.Context, n int) ([]wallets.ManagedWallet, error)
	Run(ctx context.Context, op batch.Operation, ws []wallets.ManagedWallet, rep batch.Reporter) (*batch.Result, error)
}

// Sweeper runs the daily check-in over many wallets.
type Sweeper interface {
	Sweep(ctx context.Context, addrs []string, onProgress func(checkin.Progress)) checkin.Summary
}

// Claimer pays the daily faucet claim.
type Claimer interface {
	Claim(ctx context.Context, userID int64, address string) (string, error)
	Amount() *big.Int
}

// Journal persists batch runs.
type Journal interface {
	RecordRun(r *storage.Run) error
	ListRuns(limit int) ([]storage.Run, error)
}

// Deps are the services the bot fronts.
type Deps struct {
	Gateway chain.Gateway
	Wallets WalletSource
	Batcher Batcher
	Sweeper Sweeper
	Faucet  Claimer
	Journal Journal
	Format  notifier.Formatter
}

// Bot wraps the telegram bot with handlers
type Bot struct {
	bot    *bot.Bot
	api    api
	cfg    *config.Config
	deps   Deps
	states *StateManager
	log    *slog.Logger

	// batchMu admits one batch at a time; batches share the main account nonce.
	batchMu sync.Mutex
	busy    atomic.Bool
}

// New creates a new telegram bot
func New(cfg *config.Config, deps Deps, log *slog.Logger) (*Bot, error) {
	b := &Bot{
		cfg:    cfg,
		deps:   deps,
		states: NewStateManager(),
		log:    log,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
		bot.WithCallbackQueryDataHandler("", bot.MatchTypePrefix, b.callbackHandler),
	}

	tgBot, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	b.bot = tgBot
	b.api = tgBot

	// Register command handlers
	exact := map[string]bot.HandlerFunc{
		"/start":      b.startHandler,
		"/balance":    b.balanceHandler,
		"/wallets":    b.walletsHandler,
		"/create":     b.createHandler,
		"/fund":       b.batchHandler(batch.OpFund),
		"/mint":       b.batchHandler(batch.OpMint),
		"/collect":    b.batchHandler(batch.OpCollectToken),
		"/collectgas": b.batchHandler(batch.OpCollectGas),
		"/checkin":    b.checkinHandler,
		"/claim":      b.claimHandler,
		"/cancel":     b.cancelHandler,
		"/history":    b.historyHandler,
	}
	for cmd, h := range exact {
		tgBot.RegisterHandler(bot.HandlerTypeMessageText, cmd, bot.MatchTypeExact, h)
	}
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/balance ", bot.MatchTypePrefix, b.balanceHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/create ", bot.MatchTypePrefix, b.createHandler)

	return b, nil
}

// BatchRunning reports whether a batch or check-in sweep is in progress
func (b *Bot) BatchRunning() bool {
	return b.busy.Load()
}

// Start starts the bot polling
func (b *Bot) Start(ctx context.Context) {
	b.bot.Start(ctx)
}

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) *models.Message {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	msg, err := b.api.SendMessage(ctx, params)
	if err != nil {
		b.log.Error("send message", "error", err)
		return nil
	}
	return msg
}

func (b *Bot) editMessage(ctx context.Context, msg models.MaybeInaccessibleMessage, text string, keyboard *models.InlineKeyboardMarkup) {
	if msg.Message == nil {
		return
	}

	params := &bot.EditMessageTextParams{
		ChatID:    msg.Message.Chat.ID,
		MessageID: msg.Message.ID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.api.EditMessageText(ctx, params)
	if err != nil {
		b.log.Error("edit message", "error", err)
	}
}

// EditMessage implements notifier.Messenger.
func (b *Bot) EditMessage(ctx context.Context, chatID int64, messageID int, text string) error {
	_, err := b.api.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	return err
}

// SendNotification sends a notification message to a user
func (b *Bot) SendNotification(ctx context.Context, userID int64, text string) error {
	disablePreview := true
	_, err := b.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    userID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	})
	return err
}
