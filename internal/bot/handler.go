package bot

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ivanoskov/copperx_bot/internal/model"
)

const helpText = "💸 CopperX payments bot\n\n" +
	"/send - send funds to a wallet or email\n" +
	"/withdraw - withdraw to an external wallet\n" +
	"/offramp - withdraw to a bank account\n" +
	"/batch - pay several recipients at once\n" +
	"/balance - wallet balances\n" +
	"/history [page] - recent transfers\n" +
	"/wallets - your wallets and their IDs\n" +
	"/default - show the default wallet\n" +
	"/token <access token> - attach your session\n" +
	"/logout - forget your session\n" +
	"/cancel - cancel the current operation\n\n" +
	"Reply Cancel at any step to stop without moving funds."

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.CallbackQuery != nil {
		return b.handleCallback(ctx, update.CallbackQuery)
	}

	message := update.Message
	if message == nil || message.From == nil {
		return nil
	}

	if !b.limiter.Allow(message.From.ID) {
		b.logger.Warn().Int64("user_id", message.From.ID).Msg("rate limited")
		return b.sendErrorMessage(message.Chat.ID, "Too many messages. Please slow down and try again in a minute.")
	}

	if message.IsCommand() {
		return b.handleCommand(ctx, message)
	}
	return b.handleMessage(ctx, message)
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) error {
	switch message.Command() {
	case "start", "help":
		return b.handleStart(message)
	case "send":
		return b.startFlow(ctx, message, model.FlowSend)
	case "withdraw":
		return b.startFlow(ctx, message, model.FlowWithdraw)
	case "offramp":
		return b.startFlow(ctx, message, model.FlowOfframp)
	case "batch":
		return b.startFlow(ctx, message, model.FlowBatch)
	case "balance":
		return b.handleBalance(ctx, message.Chat.ID, message.From.ID)
	case "history":
		page, _ := strconv.Atoi(strings.TrimSpace(message.CommandArguments()))
		return b.handleHistory(ctx, message.Chat.ID, message.From.ID, page)
	case "wallets":
		return b.handleWallets(ctx, message.Chat.ID, message.From.ID)
	case "default":
		return b.handleDefaultWallet(ctx, message.Chat.ID, message.From.ID)
	case "token":
		return b.handleToken(message)
	case "logout":
		return b.handleLogout(message)
	case "cancel":
		return b.handleCancel(message)
	}
	return b.sendErrorMessage(message.Chat.ID, "Unknown command. Use /help to see what I can do.")
}

func (b *Bot) handleStart(message *tgbotapi.Message) error {
	msg := tgbotapi.NewMessage(message.Chat.ID, helpText)
	msg.ReplyMarkup = getMainKeyboard()
	return b.send(msg)
}

func (b *Bot) startFlow(ctx context.Context, message *tgbotapi.Message, kind model.FlowKind) error {
	reply := b.flows.Start(ctx, message.From.ID, kind)
	return b.sendReply(message.Chat.ID, reply)
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) error {
	// сообщение внутри сценария важнее кнопок меню
	if reply, ok := b.flows.Handle(ctx, message.From.ID, message.Text); ok {
		return b.sendReply(message.Chat.ID, reply)
	}

	switch strings.TrimSpace(message.Text) {
	case btnSend:
		return b.startFlow(ctx, message, model.FlowSend)
	case btnWithdraw:
		return b.startFlow(ctx, message, model.FlowWithdraw)
	case btnOfframp:
		return b.startFlow(ctx, message, model.FlowOfframp)
	case btnBatch:
		return b.startFlow(ctx, message, model.FlowBatch)
	case btnBalance:
		return b.handleBalance(ctx, message.Chat.ID, message.From.ID)
	case btnHistory:
		return b.handleHistory(ctx, message.Chat.ID, message.From.ID, 1)
	case btnWallets:
		return b.handleWallets(ctx, message.Chat.ID, message.From.ID)
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, "Choose an action from the menu or use /help.")
	msg.ReplyMarkup = getMainKeyboard()
	return b.send(msg)
}

func (b *Bot) handleCancel(message *tgbotapi.Message) error {
	reply, ok := b.flows.Cancel(message.From.ID)
	if !ok {
		msg := tgbotapi.NewMessage(message.Chat.ID, "Nothing to cancel.")
		msg.ReplyMarkup = getMainKeyboard()
		return b.send(msg)
	}
	return b.sendReply(message.Chat.ID, reply)
}

func (b *Bot) handleToken(message *tgbotapi.Message) error {
	token := strings.TrimSpace(message.CommandArguments())

	// токен не должен оставаться в истории чата
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(message.Chat.ID, message.MessageID)); err != nil {
		b.logger.Warn().Err(err).Int64("user_id", message.From.ID).Msg("failed to delete token message")
	}

	if token == "" {
		return b.sendErrorMessage(message.Chat.ID, "Usage: /token <access token>")
	}
	b.tokens.SetToken(message.From.ID, token)
	b.logger.Info().Int64("user_id", message.From.ID).Msg("session attached")

	msg := tgbotapi.NewMessage(message.Chat.ID, "🔓 Session saved. You can now send and withdraw funds.")
	msg.ReplyMarkup = getMainKeyboard()
	return b.send(msg)
}

func (b *Bot) handleLogout(message *tgbotapi.Message) error {
	b.flows.Cancel(message.From.ID)
	b.tokens.Clear(message.From.ID)
	return b.send(tgbotapi.NewMessage(message.Chat.ID, "👋 Logged out."))
}

func (b *Bot) handleBalance(ctx context.Context, chatID, userID int64) error {
	wallets, err := b.wallets.Balances(ctx, userID)
	if err != nil {
		return b.send(tgbotapi.NewMessage(chatID, b.wallets.ErrorText(err)))
	}

	if err := b.send(tgbotapi.NewMessage(chatID, b.wallets.BalancesText(wallets))); err != nil {
		return err
	}

	if err := b.sendChart(chatID, "balances.png", b.charts.GenerateBalanceChart, wallets); err != nil {
		return err
	}
	if len(wallets) > 1 {
		return b.sendChart(chatID, "wallets.png", b.charts.GenerateWalletShareChart, wallets)
	}
	return nil
}

// sendChart отправляет график картинкой. Ошибка отрисовки только логируется:
// текст баланса уже отправлен.
func (b *Bot) sendChart(chatID int64, name string, render func([]model.WalletBalances) ([]byte, error), wallets []model.WalletBalances) error {
	png, err := render(wallets)
	if err != nil {
		b.logger.Warn().Err(err).Str("chart", name).Msg("chart rendering failed")
		return nil
	}
	if png == nil {
		return nil
	}
	return b.send(tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: name, Bytes: png}))
}

func (b *Bot) handleHistory(ctx context.Context, chatID, userID int64, page int) error {
	result, err := b.wallets.History(ctx, userID, page)
	if err != nil {
		return b.send(tgbotapi.NewMessage(chatID, b.wallets.ErrorText(err)))
	}

	msg := tgbotapi.NewMessage(chatID, b.wallets.HistoryText(result))
	if kb := getHistoryKeyboard(result.Page, result.HasMore); kb != nil {
		msg.ReplyMarkup = *kb
	}
	return b.send(msg)
}

func (b *Bot) handleWallets(ctx context.Context, chatID, userID int64) error {
	wallets, err := b.wallets.List(ctx, userID)
	if err != nil {
		return b.send(tgbotapi.NewMessage(chatID, b.wallets.ErrorText(err)))
	}

	msg := tgbotapi.NewMessage(chatID, b.wallets.WalletsText(wallets))
	if kb := getWalletsKeyboard(wallets); kb != nil {
		msg.ReplyMarkup = *kb
	}
	return b.send(msg)
}

func (b *Bot) handleDefaultWallet(ctx context.Context, chatID, userID int64) error {
	wallet, err := b.wallets.Default(ctx, userID)
	if err != nil {
		return b.send(tgbotapi.NewMessage(chatID, b.wallets.ErrorText(err)))
	}
	return b.send(tgbotapi.NewMessage(chatID, b.wallets.DefaultWalletText(wallet)))
}

func (b *Bot) handleSetDefaultWallet(ctx context.Context, chatID, userID int64, walletID string) error {
	wallet, err := b.wallets.SetDefault(ctx, userID, walletID)
	if err != nil {
		return b.send(tgbotapi.NewMessage(chatID, b.wallets.ErrorText(err)))
	}
	return b.send(tgbotapi.NewMessage(chatID, "✅ Default wallet updated.\n\n"+b.wallets.DefaultWalletText(wallet)))
}

func (b *Bot) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		b.logger.Warn().Err(err).Msg("failed to answer callback")
	}
	if callback.Message == nil || callback.From == nil {
		return nil
	}

	if strings.HasPrefix(callback.Data, historyCallbackPrefix) {
		page, err := strconv.Atoi(strings.TrimPrefix(callback.Data, historyCallbackPrefix))
		if err != nil {
			return nil
		}
		return b.handleHistory(ctx, callback.Message.Chat.ID, callback.From.ID, page)
	}
	if walletID, ok := strings.CutPrefix(callback.Data, defaultCallbackPrefix); ok {
		return b.handleSetDefaultWallet(ctx, callback.Message.Chat.ID, callback.From.ID, walletID)
	}
	return nil
}
