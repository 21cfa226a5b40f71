package telegram

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/suspectuso/sova-bot/internal/chain"
	"github.com/suspectuso/sova-bot/internal/claims"
	"github.com/suspectuso/sova-bot/internal/faucet"
	"github.com/suspectuso/sova-bot/internal/notifier"
)

var addrRegex = regexp.MustCompile(`0x[0-9a-fA-F]{40}`)

const (
	historyLimit     = 10
	walletsListLimit = 10
)

// --- Handlers ---

func (b *Bot) startHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	userID := update.Message.From.ID
	b.states.Clear(userID)
	b.sendMessage(ctx, update.Message.Chat.ID, b.welcomeText(update.Message.From), MainKeyboard(b.cfg.IsAdmin(userID)))
}

func (b *Bot) welcomeText(from *models.User) string {
	userName := from.FirstName
	if userName == "" {
		userName = from.Username
	}
	if userName == "" {
		userName = "друг"
	}

	return fmt.Sprintf(
		"<a href='tg://user?id=%d'>%s</a>, добро пожаловать в <b>%s Bot</b>! 🦉\n\n"+
			"• /balance — баланс адреса\n"+
			"• /claim — получить %s из крана раз в сутки\n\n"+
			"Выбери действие 👇",
		from.ID, userName, b.deps.Format.TokenSymbol, b.deps.Format.TokenSymbol,
	)
}

func (b *Bot) balanceHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	arg := strings.TrimSpace(strings.TrimPrefix(update.Message.Text, "/balance"))
	text, err := b.balanceText(ctx, arg)
	if err != nil {
		b.log.Warn("balance", "address", arg, "error", err)
		text = "❌ " + userError(err)
	}
	b.sendMessage(ctx, update.Message.Chat.ID, text, nil)
}

// balanceText renders the gas and token balance of arg, or of the main
// account when arg is empty.
func (b *Bot) balanceText(ctx context.Context, arg string) (string, error) {
	addr := b.deps.Gateway.MainAddress()
	title := "Кран"
	if arg != "" {
		var err error
		if addr, err = chain.ParseAddress(arg); err != nil {
			return "", err
		}
		title = notifier.ShortAddr(addr.Hex(), 6)
	}

	native, err := b.deps.Gateway.Balance(ctx, addr)
	if err != nil {
		return "", err
	}
	token, err := chain.TokenBalance(ctx, b.deps.Gateway, addr)
	if err != nil {
		return "", err
	}

	f := b.deps.Format
	return fmt.Sprintf(
		"💰 <b>%s</b>\n\n"+
			"%s: <b>%s</b>\n"+
			"%s: <b>%s</b>\n\n"+
			"<code>%s</code>",
		title,
		f.NativeSymbol, chain.FormatUnits(native, chain.NativeDecimals),
		f.TokenSymbol, chain.FormatUnits(token, f.TokenDecimals),
		addr.Hex(),
	), nil
}

func (b *Bot) walletsHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if !b.requireAdmin(ctx, update) {
		return
	}

	text, err := b.walletsText(ctx)
	if err != nil {
		b.log.Error("list wallets", "error", err)
		text = "❌ Не удалось прочитать кошельки."
	}
	b.sendMessage(ctx, update.Message.Chat.ID, text, nil)
}

func (b *Bot) walletsText(ctx context.Context) (string, error) {
	active, err := b.deps.Wallets.LoadActive(ctx)
	if err != nil {
		return "", err
	}
	archived, err := b.deps.Wallets.LoadArchived(ctx)
	if err != nil {
		return "", err
	}

	var minted, broken int
	for _, w := range active.Wallets {
		if w.HasMinted {
			minted++
		}
		if w.Undecryptable {
			broken++
		}
	}

	lines := []string{
		"👛 <b>Кошельки</b>\n",
		fmt.Sprintf("Активных: <b>%d</b> (заминтили: %d)", len(active.Wallets), minted),
		fmt.Sprintf("В архиве: <b>%d</b>", len(archived.Wallets)),
	}
	if broken > 0 {
		lines = append(lines, fmt.Sprintf("⚠️ Не расшифровано: <b>%d</b>", broken))
	}

	if len(active.Wallets) > 0 {
		lines = append(lines, "")
		for i, w := range active.Wallets {
			if i == walletsListLimit {
				lines = append(lines, fmt.Sprintf("… и ещё %d", len(active.Wallets)-walletsListLimit))
				break
			}
			mark := "⚪"
			if w.HasMinted {
				mark = "🟢"
			}
			lines = append(lines, fmt.Sprintf("%s <code>%s</code>", mark, w.Address))
		}
	}

	return strings.Join(lines, "\n"), nil
}

func (b *Bot) createHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if !b.requireAdmin(ctx, update) {
		return
	}
	chatID := update.Message.Chat.ID

	n, err := parseCount(strings.TrimPrefix(update.Message.Text, "/create"))
	if err != nil {
		b.sendMessage(ctx, chatID,
			fmt.Sprintf("❌ Укажи количество: <code>/create 10</code> (1–%d)", b.cfg.MaxWalletsPerBatch),
			nil,
		)
		return
	}

	b.createWallets(ctx, chatID, update.Message.From.ID, n)
}

func (b *Bot) claimHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	b.startClaim(ctx, update.Message.From.ID, update.Message.Chat.ID, nil)
}

// startClaim moves the user to StateAwaitingAddress and asks for an address.
func (b *Bot) startClaim(ctx context.Context, userID, chatID int64, edit *models.MaybeInaccessibleMessage) {
	b.states.Set(userID, StateAwaitingAddress)
	text := fmt.Sprintf("🚰 Отправь адрес, на который прислать <b>%s</b>:", b.deps.Format.TokenSymbol)
	if edit != nil {
		b.editMessage(ctx, *edit, text, CancelKeyboard())
		return
	}
	b.sendMessage(ctx, chatID, text, CancelKeyboard())
}

func (b *Bot) cancelHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	b.states.Clear(update.Message.From.ID)
	b.sendMessage(ctx, update.Message.Chat.ID, "Отменено.", MainKeyboard(b.cfg.IsAdmin(update.Message.From.ID)))
}

func (b *Bot) historyHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if !b.requireAdmin(ctx, update) {
		return
	}
	b.sendMessage(ctx, update.Message.Chat.ID, b.historyText(), nil)
}

func (b *Bot) historyText() string {
	runs, err := b.deps.Journal.ListRuns(historyLimit)
	if err != nil {
		b.log.Error("list runs", "error", err)
		return "❌ Не удалось прочитать историю."
	}
	if len(runs) == 0 {
		return "📜 История пуста."
	}

	lines := []string{"📜 <b>Последние операции</b>\n"}
	for _, r := range runs {
		line := fmt.Sprintf("<b>%s</b> %s — ✅%d ⏭%d ❌%d",
			r.StartedAt.UTC().Format("02.01 15:04"), r.Operation, r.Success, r.Skipped, r.Failed)
		if r.Error != "" {
			line += " ⚠️ " + r.Error
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}

	userID := update.Message.From.ID
	text := strings.TrimSpace(update.Message.Text)

	switch b.states.Get(userID) {
	case StateAwaitingAddress:
		b.handleAwaitingAddress(ctx, update.Message, text)
	}
}

func (b *Bot) handleAwaitingAddress(ctx context.Context, msg *models.Message, text string) {
	userID := msg.From.ID

	addr := extractAddress(text)
	if addr == "" {
		b.sendMessage(ctx, msg.Chat.ID, "❌ Адрес не похож на EVM-адрес. Попробуй ещё раз.", CancelKeyboard())
		return
	}

	b.states.Clear(userID)
	b.sendMessage(ctx, msg.Chat.ID, b.claimText(ctx, userID, addr), MainKeyboard(b.cfg.IsAdmin(userID)))
}

func (b *Bot) claimText(ctx context.Context, userID int64, addr string) string {
	tx, err := b.deps.Faucet.Claim(ctx, userID, addr)
	switch {
	case errors.Is(err, claims.ErrAlreadyClaimed):
		return "⏳ Ты уже получал токены сегодня. Приходи завтра!"
	case errors.Is(err, faucet.ErrFaucetEmpty):
		return "😔 Кран пуст, попробуй позже."
	case err != nil && tx == "":
		b.log.Error("faucet claim", "user_id", userID, "address", addr, "error", err)
		return "❌ " + userError(err)
	}

	return fmt.Sprintf(
		"✅ Отправлено <b>%s %s</b>\n\nTx: <code>%s</code>",
		chain.FormatUnits(b.deps.Faucet.Amount(), b.deps.Format.TokenDecimals), b.deps.Format.TokenSymbol, tx,
	)
}

func (b *Bot) callbackHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}

	cb := update.CallbackQuery
	userID := cb.From.ID

	// Answer callback to remove loading state
	b.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cb.ID,
	})

	switch cb.Data {
	case "back", "cancel":
		b.states.Clear(userID)
		b.editMessage(ctx, cb.Message, b.welcomeText(&cb.From), MainKeyboard(b.cfg.IsAdmin(userID)))
	case "balance":
		text, err := b.balanceText(ctx, "")
		if err != nil {
			b.log.Warn("balance", "error", err)
			text = "❌ " + userError(err)
		}
		b.editMessage(ctx, cb.Message, text, BackKeyboard())
	case "claim":
		b.startClaim(ctx, userID, 0, &cb.Message)
	case "wallets":
		if !b.cfg.IsAdmin(userID) {
			return
		}
		text, err := b.walletsText(ctx)
		if err != nil {
			b.log.Error("list wallets", "error", err)
			text = "❌ Не удалось прочитать кошельки."
		}
		b.editMessage(ctx, cb.Message, text, BackKeyboard())
	case "history":
		if !b.cfg.IsAdmin(userID) {
			return
		}
		b.editMessage(ctx, cb.Message, b.historyText(), BackKeyboard())
	default:
		b.log.Warn("unknown callback", "data", cb.Data, "user_id", userID)
	}
}

// --- Helpers ---

// requireAdmin answers non-admins and reports whether the update may proceed.
func (b *Bot) requireAdmin(ctx context.Context, update *models.Update) bool {
	if update.Message == nil {
		return false
	}
	if b.cfg.IsAdmin(update.Message.From.ID) {
		return true
	}
	b.log.Warn("admin command denied", "user_id", update.Message.From.ID, "text", update.Message.Text)
	b.sendMessage(ctx, update.Message.Chat.ID, "⛔ Команда доступна только администраторам.", nil)
	return false
}

func parseCount(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

func extractAddress(text string) string {
	return addrRegex.FindString(text)
}

func userError(err error) string {
	switch {
	case errors.Is(err, chain.ErrValidation):
		return "Некорректные данные: " + err.Error()
	case errors.Is(err, chain.ErrChainCall):
		return "Ошибка сети, попробуй позже."
	default:
		return "Что-то пошло не так."
	}
}
