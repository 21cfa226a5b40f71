package notifier

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/suspectuso/sova-bot/internal/batch"
	"github.com/suspectuso/sova-bot/internal/chain"
	"github.com/suspectuso/sova-bot/internal/checkin"
)

const barWidth = 10

// Formatter renders batch progress and summaries as Telegram HTML.
type Formatter struct {
	TokenSymbol   string
	TokenDecimals int32
	NativeSymbol  string
}

func operationTitle(op batch.Operation) string {
	switch op {
	case batch.OpFund:
		return "💸 Пополнение кошельков"
	case batch.OpMint:
		return "🪙 Минт токенов"
	case batch.OpCollectToken:
		return "📥 Сбор токенов"
	case batch.OpCollectGas:
		return "⛽ Сбор газа"
	default:
		return string(op)
	}
}

// BatchProgress renders an in-flight batch.
func (f Formatter) BatchProgress(p batch.Progress) string {
	lines := []string{
		fmt.Sprintf("<b>%s</b>", operationTitle(p.Operation)),
		"",
		fmt.Sprintf("%s %d/%d", progressBar(p.Processed, p.Total), p.Processed, p.Total),
		fmt.Sprintf("✅ %d  ⏭ %d  ❌ %d", p.Success, p.Skipped, p.Failed),
	}
	if p.CurrentAddress != "" && !p.Done() {
		lines = append(lines, "", fmt.Sprintf("Кошелёк: <code>%s</code>", ShortAddr(p.CurrentAddress, 6)))
	}
	return strings.Join(lines, "\n")
}

// BatchSummary renders a finished batch.
func (f Formatter) BatchSummary(res *batch.Result) string {
	lines := []string{
		fmt.Sprintf("<b>%s завершено</b>", operationTitle(res.Operation)),
		"",
		fmt.Sprintf("Всего: <b>%d</b>", res.Total),
		fmt.Sprintf("✅ Успешно: <b>%d</b>", res.Success),
		fmt.Sprintf("⏭ Пропущено: <b>%d</b>", res.Skipped),
		fmt.Sprintf("❌ Ошибок: <b>%d</b>", res.Failed),
	}

	var decimals int32
	var symbol string
	switch res.Operation {
	case batch.OpCollectToken:
		decimals, symbol = f.TokenDecimals, f.TokenSymbol
	case batch.OpCollectGas:
		decimals, symbol = chain.NativeDecimals, f.NativeSymbol
	default:
		return strings.Join(lines, "\n")
	}

	lines = append(lines,
		"",
		fmt.Sprintf("Собрано: <b>%s %s</b>", FormatAmount(res.TotalCollected, decimals), symbol),
	)
	if res.Reward != nil && res.Reward.Sign() > 0 {
		lines = append(lines, fmt.Sprintf("Комиссия: <b>%s %s</b>", FormatAmount(res.Reward, decimals), symbol))
		switch {
		case res.RewardErr != nil:
			lines = append(lines, "⚠️ Комиссию отправить не удалось")
		case res.RewardTx != "":
			lines = append(lines, fmt.Sprintf("Tx: <code>%s</code>", ShortAddr(res.RewardTx, 8)))
		}
	}
	if res.NetAmount != nil {
		lines = append(lines, fmt.Sprintf("Итого: <b>%s %s</b>", FormatAmount(res.NetAmount, decimals), symbol))
	}

	return strings.Join(lines, "\n")
}

// CheckinProgress renders an in-flight check-in sweep.
func (f Formatter) CheckinProgress(p checkin.Progress) string {
	return strings.Join([]string{
		"<b>📅 Чек-ин кошельков</b>",
		"",
		fmt.Sprintf("%s %d/%d", progressBar(p.Processed, p.Total), p.Processed, p.Total),
		fmt.Sprintf("✅ %d  🔁 %d  ❌ %d", p.Success, p.Already, p.Failed),
	}, "\n")
}

// CheckinSummary renders a finished check-in sweep.
func (f Formatter) CheckinSummary(s checkin.Summary) string {
	return strings.Join([]string{
		"<b>📅 Чек-ин завершён</b>",
		"",
		fmt.Sprintf("Всего: <b>%d</b>", s.Total),
		fmt.Sprintf("✅ Отмечено: <b>%d</b>", s.Success),
		fmt.Sprintf("🔁 Уже отмечены: <b>%d</b>", s.Already),
		fmt.Sprintf("❌ Ошибок: <b>%d</b>", s.Failed),
	}, "\n")
}

func progressBar(done, total int) string {
	if total <= 0 {
		return strings.Repeat("░", barWidth)
	}
	filled := done * barWidth / total
	if filled > barWidth {
		filled = barWidth
	}
	return strings.Repeat("▓", filled) + strings.Repeat("░", barWidth-filled)
}

// FormatAmount renders base units for display, abbreviating large values.
func FormatAmount(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	d := decimal.NewFromBigInt(v, -decimals)
	abs := d.Abs()

	switch {
	case abs.GreaterThanOrEqual(decimal.New(1, 9)):
		return d.Shift(-9).StringFixed(2) + "B"
	case abs.GreaterThanOrEqual(decimal.New(1, 6)):
		return d.Shift(-6).StringFixed(2) + "M"
	case abs.GreaterThanOrEqual(decimal.New(1, 3)):
		return d.Shift(-3).StringFixed(2) + "K"
	default:
		return d.Round(8).String()
	}
}

// ShortAddr returns a shortened address for display
func ShortAddr(addr string, n int) string {
	if addr == "" {
		return "unknown"
	}
	if len(addr) < n*2+3 {
		return addr
	}
	return addr[:n] + "..." + addr[len(addr)-n:]
}
