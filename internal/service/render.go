package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ivanoskov/copperx_bot/internal/model"
	"github.com/ivanoskov/copperx_bot/internal/repository"
	"github.com/ivanoskov/copperx_bot/internal/units"
)

// Тексты ответов пользователю
const (
	msgGenericFailure = "Something went wrong. The operation was cancelled, please try again."
	msgNoSession      = "🔐 You are not logged in. Use /token <access token> to attach your session."
	msgCancelled      = "🚫 Operation cancelled. No funds were moved."
)

// displayAmount переводит базовые единицы в отображаемые; если валюта
// неизвестна, возвращает значение как есть
func displayAmount(assets *units.Registry, base, currency string) string {
	if base == "" {
		return "0"
	}
	v, err := assets.FromBaseUnit(base, currency)
	if err != nil {
		return base
	}
	return v
}

// RenderReceipt: квитанция об исполненном переводе. Сумма и получатель
// берутся из ответа бэкенда, при их отсутствии из запроса пользователя.
func RenderReceipt(assets *units.Registry, kind model.FlowKind, t *model.Transfer, amount, currency, recipient string) string {
	var sb strings.Builder

	switch kind {
	case model.FlowSend:
		sb.WriteString("✅ Transfer sent\n\n")
	case model.FlowWithdraw:
		sb.WriteString("✅ Withdrawal submitted\n\n")
	case model.FlowOfframp:
		sb.WriteString("✅ Bank withdrawal submitted\n\n")
	default:
		sb.WriteString("✅ Done\n\n")
	}

	if t.Currency != "" {
		currency = t.Currency
	}
	if t.Amount != "" {
		amount = displayAmount(assets, t.Amount, currency)
	}
	if label := t.DestinationAccount.Label(); label != "Unknown" {
		recipient = label
	}

	status := t.Status
	if status == "" {
		status = "pending"
	}

	fmt.Fprintf(&sb, "Amount: %s %s\n", amount, currency)
	if t.TotalFee != "" {
		feeCurrency := t.FeeCurrency
		if feeCurrency == "" {
			feeCurrency = currency
		}
		fmt.Fprintf(&sb, "Fee: %s %s\n", displayAmount(assets, t.TotalFee, feeCurrency), feeCurrency)
	}
	if label := t.SourceAccount.Label(); label != "Unknown" {
		fmt.Fprintf(&sb, "From: %s\n", label)
	}
	if recipient != "" {
		fmt.Fprintf(&sb, "To: %s\n", recipient)
	}
	fmt.Fprintf(&sb, "Status: %s\n", status)
	if t.ID != "" {
		fmt.Fprintf(&sb, "Transfer ID: %s\n", t.ID)
	}
	return sb.String()
}

// RenderBatchReport: отчёт по пакету: счётчики и причина каждого отказа
func RenderBatchReport(report *model.BatchReport) string {
	var sb strings.Builder

	switch {
	case report.FailedCount == 0:
		sb.WriteString("✅ Batch transfer completed\n\n")
	case report.SuccessCount == 0:
		sb.WriteString("❌ Batch transfer failed\n\n")
	default:
		sb.WriteString("⚠️ Batch transfer partially completed\n\n")
	}
	fmt.Fprintf(&sb, "Succeeded: %d\nFailed: %d\n", report.SuccessCount, report.FailedCount)

	if report.FailedCount > 0 {
		sb.WriteString("\nFailed transfers:\n")
		for _, item := range report.Items {
			if item.Failed() {
				fmt.Fprintf(&sb, "• %s (%s %s): %s\n", item.Destination, item.Amount, item.Currency, item.Reason)
			}
		}
	}
	return sb.String()
}

// ErrorMessage подбирает текст для ошибки, прервавшей сценарий
func ErrorMessage(assets *units.Registry, err error) string {
	var (
		inputErr      *InputError
		sessionErr    *SessionError
		balanceErr    *BalanceError
		validationErr *ValidationError
		complianceErr *ComplianceError
		transportErr  *TransportError
	)

	switch {
	case errors.As(err, &inputErr):
		return "❌ " + inputErr.Reason
	case errors.As(err, &sessionErr):
		return msgNoSession
	case errors.As(err, &balanceErr):
		if balanceErr.Unknown {
			return "❌ Could not verify your balance right now, so nothing was sent. Please try again later."
		}
		required := displayAmount(assets, balanceErr.Required.String(), balanceErr.Currency)
		available := displayAmount(assets, balanceErr.Available.String(), balanceErr.Currency)
		return fmt.Sprintf("❌ Insufficient %s balance.\nRequired: %s %s\nAvailable: %s %s\n\nTop up your wallet and try again.",
			balanceErr.Currency, required, balanceErr.Currency, available, balanceErr.Currency)
	case errors.As(err, &validationErr):
		var sb strings.Builder
		sb.WriteString("❌ The request was rejected:\n")
		for _, f := range validationErr.Fields {
			if f.Field != "" {
				fmt.Fprintf(&sb, "• %s: %s\n", f.Field, f.Message)
			} else {
				fmt.Fprintf(&sb, "• %s\n", f.Message)
			}
		}
		return sb.String()
	case errors.As(err, &complianceErr):
		return "🏢 Your business verification (KYB) is not approved yet.\nComplete KYB on the platform before withdrawing to a bank account."
	case errors.Is(err, ErrInvalidQuote):
		return "❌ The quote returned by the platform is incomplete, so the withdrawal cannot continue. Please start again."
	case errors.Is(err, units.ErrUnsupportedCurrency):
		return "❌ This currency is not supported."
	case errors.As(err, &transportErr):
		if errors.Is(err, repository.ErrBackendUnavailable) {
			return "❌ The platform is temporarily unavailable. Please try again in a minute."
		}
		return fmt.Sprintf("❌ %s\n\nDetails: %s", msgGenericFailure, diagnostic(transportErr.Err))
	}
	return "❌ " + msgGenericFailure
}

// diagnostic: сырой текст ошибки бэкенда для пользователя
func diagnostic(err error) string {
	var apiErr *repository.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		if apiErr.Raw != "" {
			return apiErr.Raw
		}
		return fmt.Sprintf("status %d", apiErr.StatusCode)
	}
	return err.Error()
}

// RenderBalances: балансы по кошелькам
func RenderBalances(assets *units.Registry, wallets []model.WalletBalances) string {
	if len(wallets) == 0 {
		return "💰 You have no wallets yet."
	}

	var sb strings.Builder
	sb.WriteString("💰 Wallet balances\n")
	for _, w := range wallets {
		sb.WriteString("\n")
		title := w.Network
		if title == "" {
			title = "wallet"
		}
		if w.IsDefault {
			title += " (default)"
		}
		fmt.Fprintf(&sb, "%s\n", title)
		if w.WalletID != "" {
			fmt.Fprintf(&sb, "  ID: %s\n", w.WalletID)
		}
		if len(w.Balances) == 0 {
			sb.WriteString("  empty\n")
			continue
		}
		for _, b := range w.Balances {
			fmt.Fprintf(&sb, "  %s: %s\n", strings.ToUpper(b.Symbol), b.Balance)
		}
	}
	return sb.String()
}

// RenderWallets: список кошельков с их ID
func RenderWallets(wallets []model.Wallet) string {
	if len(wallets) == 0 {
		return "👜 You have no wallets yet."
	}

	var sb strings.Builder
	sb.WriteString("👜 Your wallets\n")
	choosable := false
	for _, w := range wallets {
		sb.WriteString("\n" + walletLine(w) + "\n")
		choosable = choosable || !w.IsDefault
	}
	if choosable {
		sb.WriteString("\nTap a button below to make a wallet the default.")
	}
	return sb.String()
}

// RenderDefaultWallet: кошелёк по умолчанию
func RenderDefaultWallet(w *model.Wallet) string {
	if w == nil || w.ID == "" {
		return "👜 No default wallet is set. Use /wallets to choose one."
	}
	return "👜 Default wallet\n\n" + walletLine(*w)
}

func walletLine(w model.Wallet) string {
	network := w.Network
	if network == "" {
		network = "wallet"
	}
	if w.IsDefault {
		network += " (default)"
	}
	line := fmt.Sprintf("%s\n  ID: %s", network, w.ID)
	if w.WalletAddress != "" {
		line += "\n  Address: " + w.WalletAddress
	}
	return line
}

// RenderHistory: страница истории переводов
func RenderHistory(assets *units.Registry, page *model.TransferPage) string {
	if page == nil || len(page.Data) == 0 {
		return "📜 No transfers found."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📜 Transfers (page %d)\n", page.Page)
	for _, t := range page.Data {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "%s %s %s %s\n", transferIcon(t.Type), t.CreatedAt.Format("02.01.2006 15:04"),
			displayAmount(assets, t.Amount, t.Currency), t.Currency)
		fmt.Fprintf(&sb, "  %s → %s\n", t.SourceAccount.Label(), t.DestinationAccount.Label())
		fmt.Fprintf(&sb, "  Status: %s\n", t.Status)
	}
	if page.HasMore {
		fmt.Fprintf(&sb, "\nMore: /history %d", page.Page+1)
	}
	return sb.String()
}

func transferIcon(kind string) string {
	switch kind {
	case "send":
		return "📤"
	case "receive":
		return "📥"
	case "withdraw":
		return "🏦"
	}
	return "🔄"
}
