package bot

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ivanoskov/copperx_bot/internal/model"
)

// Кнопки основного меню
const (
	btnSend     = "📤 Send"
	btnWithdraw = "👛 Withdraw"
	btnOfframp  = "🏦 To bank"
	btnBatch    = "📦 Batch"
	btnBalance  = "💰 Balance"
	btnHistory  = "📜 History"
	btnWallets  = "👜 Wallets"
)

const (
	historyCallbackPrefix = "history_"
	defaultCallbackPrefix = "default_"
)

func getMainKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSend),
			tgbotapi.NewKeyboardButton(btnWithdraw),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnOfframp),
			tgbotapi.NewKeyboardButton(btnBatch),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnBalance),
			tgbotapi.NewKeyboardButton(btnHistory),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnWallets),
		),
	)
}

// getStepKeyboard: клавиатура с вариантами ответа на шаге сценария
func getStepKeyboard(rows [][]string) tgbotapi.ReplyKeyboardMarkup {
	var buttons [][]tgbotapi.KeyboardButton
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		var line []tgbotapi.KeyboardButton
		for _, label := range row {
			line = append(line, tgbotapi.NewKeyboardButton(label))
		}
		buttons = append(buttons, line)
	}

	kb := tgbotapi.NewReplyKeyboard(buttons...)
	kb.OneTimeKeyboard = true
	return kb
}

// getHistoryKeyboard: кнопка следующей страницы истории, nil если страниц больше нет
func getHistoryKeyboard(page int, hasMore bool) *tgbotapi.InlineKeyboardMarkup {
	if !hasMore {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Next ▶️", historyCallbackPrefix+strconv.Itoa(page+1)),
		),
	)
	return &kb
}

// getWalletsKeyboard: кнопки выбора кошелька по умолчанию, nil если выбирать не из чего
func getWalletsKeyboard(wallets []model.Wallet) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, w := range wallets {
		if w.IsDefault || w.ID == "" {
			continue
		}
		label := w.Network
		if label == "" {
			label = "wallet"
		}
		short, _, _ := strings.Cut(w.ID, "-")
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⭐ Make default: "+label+" "+short, defaultCallbackPrefix+w.ID),
		))
	}
	if len(rows) == 0 {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}
