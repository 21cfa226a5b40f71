package telegram

import (
	"github.com/go-telegram/bot/models"
)

// MainKeyboard returns the main menu keyboard
func MainKeyboard(admin bool) *models.InlineKeyboardMarkup {
	rows := [][]models.InlineKeyboardButton{
		{
			{Text: "💰 Баланс", CallbackData: "balance"},
			{Text: "🚰 Получить токены", CallbackData: "claim"},
		},
	}
	if admin {
		rows = append(rows,
			[]models.InlineKeyboardButton{
				{Text: "👛 Кошельки", CallbackData: "wallets"},
				{Text: "📜 История", CallbackData: "history"},
			},
		)
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// BackKeyboard returns a simple back button
func BackKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "⬅️ Назад", CallbackData: "back"},
			},
		},
	}
}

// CancelKeyboard aborts the current conversation step
func CancelKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "✖️ Отмена", CallbackData: "cancel"},
			},
		},
	}
}
