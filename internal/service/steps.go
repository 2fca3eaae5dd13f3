package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ivanoskov/copperx_bot/internal/model"
	"github.com/ivanoskov/copperx_bot/internal/units"
)

var (
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	countryPattern = regexp.MustCompile(`^[A-Za-z]{2,3}$`)
)

const (
	minNameLength = 2
	maxNameLength = 100
)

var confirmKeyboard = [][]string{{"Confirm", "Cancel"}}

func isWord(text, word string) bool {
	return strings.EqualFold(strings.TrimSpace(text), word)
}

// --- send / withdraw ---

func (c *Controller) stepTransfer(ctx context.Context, token string, f *model.TransferFlow, text string) (outcome, error) {
	switch f.Step {
	case model.StepCurrency:
		currency, err := c.parseCurrency(text)
		if err != nil {
			return outcome{}, err
		}
		f.Currency = currency

	case model.StepAmount:
		amount, err := c.parseAmount(text, f.Currency)
		if err != nil {
			return outcome{}, err
		}
		f.Amount = amount

	case model.StepDestination:
		dest, err := c.parseDestination(text, f.Currency, true)
		if err != nil {
			return outcome{}, err
		}
		f.Destination = dest

	case model.StepWallet:
		dest, err := c.parseDestination(text, f.Currency, false)
		if err != nil {
			return outcome{}, err
		}
		f.Destination = dest

	case model.StepConfirm:
		if !isWord(text, "confirm") {
			return outcome{}, inputErrorf("Reply Confirm to proceed or Cancel to abort.")
		}
		transfer, err := c.executor.ExecuteTransfer(ctx, token, f)
		if err != nil {
			return outcome{}, err
		}
		return outcome{
			reply: Reply{Text: RenderReceipt(c.assets, f.FlowKind, transfer, f.Amount, f.Currency, f.Destination.String())},
			done:  true,
		}, nil

	default:
		return outcome{}, fmt.Errorf("unexpected step %q for %s", f.Step, f.FlowKind)
	}

	f.Advance()
	return outcome{reply: c.prompt(f)}, nil
}

// --- offramp ---

func (c *Controller) stepOfframp(ctx context.Context, token string, f *model.OfframpFlow, text string) (outcome, error) {
	switch f.Step {
	case model.StepCurrency:
		currency, err := c.parseCurrency(text)
		if err != nil {
			return outcome{}, err
		}
		f.Currency = currency

	case model.StepAmount:
		amount, err := c.parseAmount(text, f.Currency)
		if err != nil {
			return outcome{}, err
		}
		quote, err := c.quotes.Request(ctx, token, f.Currency, amount)
		if err != nil {
			return outcome{}, err
		}
		f.Amount = amount
		f.Quote = quote

	case model.StepQuote:
		if !isWord(text, "accept") && !isWord(text, "confirm") {
			return outcome{}, inputErrorf("Reply Accept to use this quote or Cancel to abort.")
		}
		if c.quotes.Expired(f.Quote) {
			return c.requote(ctx, token, f)
		}
		wallets, err := c.wallets(ctx, token)
		if err != nil {
			return outcome{}, err
		}
		f.Wallets = wallets

	case model.StepWalletID:
		id, err := uuid.Parse(strings.TrimSpace(text))
		if err != nil {
			return outcome{}, inputErrorf("Wallet ID must be a UUID, e.g. 123e4567-e89b-12d3-a456-426614174000.")
		}
		f.WalletID = id.String()

	case model.StepCustomerName:
		name, err := parseName(text, "Customer name")
		if err != nil {
			return outcome{}, err
		}
		f.CustomerName = name

	case model.StepBusinessName:
		name, err := parseName(text, "Business name")
		if err != nil {
			return outcome{}, err
		}
		f.BusinessName = name

	case model.StepEmail:
		email, err := parseEmail(text)
		if err != nil {
			return outcome{}, err
		}
		f.Email = email

	case model.StepCountry:
		text = strings.TrimSpace(text)
		if !countryPattern.MatchString(text) {
			return outcome{}, inputErrorf("Country must be an ISO code, e.g. US or USA.")
		}
		f.Country = strings.ToUpper(text)

	case model.StepConfirm:
		if !isWord(text, "confirm") {
			return outcome{}, inputErrorf("Reply Confirm to proceed or Cancel to abort.")
		}
		if c.quotes.Expired(f.Quote) {
			return c.requote(ctx, token, f)
		}
		transfer, err := c.executor.ExecuteOfframp(ctx, token, f)
		if err != nil {
			return outcome{}, err
		}
		return outcome{
			reply: Reply{Text: RenderReceipt(c.assets, model.FlowOfframp, transfer, f.Amount, f.Currency, f.WalletID)},
			done:  true,
		}, nil

	default:
		return outcome{}, fmt.Errorf("unexpected step %q for offramp", f.Step)
	}

	f.Advance()
	return outcome{reply: c.prompt(f)}, nil
}

// requote заменяет истёкшую котировку свежей и показывает новые условия
// на том же шаге
func (c *Controller) requote(ctx context.Context, token string, f *model.OfframpFlow) (outcome, error) {
	quote, err := c.quotes.Request(ctx, token, f.Currency, f.Amount)
	if err != nil {
		return outcome{}, err
	}
	f.Quote = quote
	c.logger.Info().Int64("user_id", f.UserID).Str("step", string(f.Step)).Msg("quote expired, requoted")

	reply := c.prompt(f)
	reply.Text = "⏰ The previous quote expired. Here are refreshed terms.\n\n" + reply.Text
	return outcome{reply: reply}, nil
}

// --- batch ---

func (c *Controller) stepBatch(ctx context.Context, token string, f *model.BatchFlow, text string) (outcome, error) {
	switch f.Step {
	case model.StepBatchCurrency:
		currency, err := c.parseCurrency(text)
		if err != nil {
			return outcome{}, err
		}
		f.Currency = currency

	case model.StepBatchAmount:
		amount, err := c.parseAmount(text, f.Currency)
		if err != nil {
			return outcome{}, err
		}
		f.Amount = amount

	case model.StepBatchRecipients:
		if isWord(text, "done") {
			if len(f.Items) == 0 {
				return outcome{}, inputErrorf("Add at least one recipient first.")
			}
			break
		}
		items, err := c.parseRecipients(text, f)
		if err != nil {
			return outcome{}, err
		}
		if len(f.Items)+len(items) > c.batchMax {
			return outcome{}, inputErrorf("A batch can have at most %d recipients (you have %d).", c.batchMax, len(f.Items))
		}
		f.Items = append(f.Items, items...)
		return outcome{reply: Reply{
			Text: fmt.Sprintf("➕ Added %d recipient(s), %d in total.\nSend more lines or reply Done to review.",
				len(items), len(f.Items)),
			Keyboard: [][]string{{"Done", "Cancel"}},
		}}, nil

	case model.StepBatchConfirm:
		if !isWord(text, "confirm") {
			return outcome{}, inputErrorf("Reply Confirm to proceed or Cancel to abort.")
		}
		report, err := c.executor.ExecuteBatch(ctx, token, f)
		if err != nil {
			return outcome{}, err
		}
		return outcome{reply: Reply{Text: RenderBatchReport(report)}, done: true}, nil

	default:
		return outcome{}, fmt.Errorf("unexpected step %q for batch", f.Step)
	}

	f.Advance()
	return outcome{reply: c.prompt(f)}, nil
}

// parseRecipients разбирает строки вида "получатель [сумма]". Все строки
// проверяются до того, как хоть одна будет добавлена.
func (c *Controller) parseRecipients(text string, f *model.BatchFlow) ([]model.BatchItem, error) {
	var items []model.BatchItem
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.FieldsFunc(line, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' })
		if len(fields) > 2 {
			return nil, inputErrorf("Line %d: expected \"recipient [amount]\".", i+1)
		}

		dest, err := c.parseDestination(fields[0], f.Currency, true)
		if err != nil {
			return nil, inputErrorf("Line %d: %s", i+1, err.Error())
		}

		amount := f.Amount
		if len(fields) == 2 {
			amount, err = c.parseAmount(fields[1], f.Currency)
			if err != nil {
				return nil, inputErrorf("Line %d: %s", i+1, err.Error())
			}
		}
		items = append(items, model.BatchItem{Destination: dest, AmountDisplay: amount, Currency: f.Currency})
	}
	if len(items) == 0 {
		return nil, inputErrorf("Send at least one recipient line or reply Done.")
	}
	return items, nil
}

// --- проверка ввода ---

func (c *Controller) parseCurrency(text string) (string, error) {
	asset, ok := c.assets.Lookup(text)
	if !ok {
		return "", inputErrorf("Unsupported currency. Choose one of: %s.", strings.Join(c.assets.Codes(), ", "))
	}
	return asset.Code, nil
}

// parseAmount возвращает сумму в каноническом виде
func (c *Controller) parseAmount(text, currency string) (string, error) {
	d, err := c.assets.ParseDisplay(text, currency)
	if err != nil {
		asset, _ := c.assets.Lookup(currency)
		if errors.Is(err, units.ErrInvalidAmount) {
			return "", inputErrorf("Enter a positive number with at most %d decimal places, e.g. 10.5.", asset.Decimals)
		}
		return "", err
	}
	return d.String(), nil
}

// parseDestination принимает адрес кошелька, а при allowEmail ещё и email
func (c *Controller) parseDestination(text, currency string, allowEmail bool) (model.Destination, error) {
	text = strings.TrimSpace(text)
	if allowEmail && strings.Contains(text, "@") {
		email, err := parseEmail(text)
		if err != nil {
			return model.Destination{}, err
		}
		return model.Destination{Email: email}, nil
	}

	asset, ok := c.assets.Lookup(currency)
	if !ok {
		return model.Destination{}, fmt.Errorf("%w: %s", units.ErrUnsupportedCurrency, currency)
	}
	if !asset.ValidAddress(text) {
		if allowEmail {
			return model.Destination{}, inputErrorf("That is neither a valid %s wallet address nor an email.", asset.Network)
		}
		return model.Destination{}, inputErrorf("That is not a valid %s wallet address.", asset.Network)
	}
	return model.Destination{WalletAddress: text}, nil
}

func parseEmail(text string) (string, error) {
	text = strings.TrimSpace(text)
	if !emailPattern.MatchString(text) {
		return "", inputErrorf("That does not look like an email address.")
	}
	return text, nil
}

func parseName(text, label string) (string, error) {
	text = strings.Join(strings.Fields(text), " ")
	n := utf8.RuneCountInString(text)
	if n < minNameLength || n > maxNameLength {
		return "", inputErrorf("%s must be %d to %d characters long.", label, minNameLength, maxNameLength)
	}
	return text, nil
}

// --- подсказки шагов ---

func (c *Controller) currencyKeyboard() [][]string {
	return [][]string{c.assets.Codes(), {"Cancel"}}
}

// prompt: подсказка для текущего шага сценария
func (c *Controller) prompt(flow model.Flow) Reply {
	cancelOnly := [][]string{{"Cancel"}}

	switch f := flow.(type) {
	case *model.TransferFlow:
		switch f.Step {
		case model.StepCurrency:
			title := "📤 Send funds"
			if f.FlowKind == model.FlowWithdraw {
				title = "👛 Withdraw to wallet"
			}
			return Reply{Text: title + "\n\nChoose a currency:", Keyboard: c.currencyKeyboard()}
		case model.StepAmount:
			return Reply{Text: fmt.Sprintf("Enter the amount of %s:", f.Currency), Keyboard: cancelOnly}
		case model.StepDestination:
			return Reply{Text: "Enter the recipient's wallet address or email:", Keyboard: cancelOnly}
		case model.StepWallet:
			return Reply{Text: "Enter the destination wallet address:", Keyboard: cancelOnly}
		case model.StepConfirm:
			action := "Send"
			if f.FlowKind == model.FlowWithdraw {
				action = "Withdraw"
			}
			return Reply{
				Text:     fmt.Sprintf("Please confirm:\n\n%s %s %s to %s", action, f.Amount, f.Currency, f.Destination),
				Keyboard: confirmKeyboard,
			}
		}

	case *model.OfframpFlow:
		switch f.Step {
		case model.StepCurrency:
			return Reply{Text: "🏦 Withdraw to bank\n\nChoose a currency:", Keyboard: c.currencyKeyboard()}
		case model.StepAmount:
			return Reply{Text: fmt.Sprintf("Enter the amount of %s to convert:", f.Currency), Keyboard: cancelOnly}
		case model.StepQuote:
			return Reply{
				Text:     c.quotes.Summary(f.Quote) + "\nReply Accept to continue or Cancel to abort.",
				Keyboard: [][]string{{"Accept", "Cancel"}},
			}
		case model.StepWalletID:
			return walletPrompt(f.Wallets)
		case model.StepCustomerName:
			return Reply{Text: "Enter the customer's full name:", Keyboard: cancelOnly}
		case model.StepBusinessName:
			return Reply{Text: "Enter the business name:", Keyboard: cancelOnly}
		case model.StepEmail:
			return Reply{Text: "Enter the customer's email:", Keyboard: cancelOnly}
		case model.StepCountry:
			return Reply{Text: "Enter the country code (e.g. US):", Keyboard: cancelOnly}
		case model.StepConfirm:
			text := c.quotes.Summary(f.Quote) +
				fmt.Sprintf("\nWallet: %s\nCustomer: %s\nBusiness: %s\nEmail: %s\nCountry: %s\n\nPlease confirm.",
					f.WalletID, f.CustomerName, f.BusinessName, f.Email, f.Country)
			return Reply{Text: text, Keyboard: confirmKeyboard}
		}

	case *model.BatchFlow:
		switch f.Step {
		case model.StepBatchCurrency:
			return Reply{Text: "📦 Batch transfer\n\nChoose a currency:", Keyboard: c.currencyKeyboard()}
		case model.StepBatchAmount:
			return Reply{Text: fmt.Sprintf("Enter the default amount of %s per recipient:", f.Currency), Keyboard: cancelOnly}
		case model.StepBatchRecipients:
			return Reply{
				Text: fmt.Sprintf("Send recipients, one per line: a wallet address or email, optionally followed by an amount (default %s %s).\nReply Done when finished (max %d).",
					f.Amount, f.Currency, c.batchMax),
				Keyboard: [][]string{{"Done", "Cancel"}},
			}
		case model.StepBatchConfirm:
			var sb strings.Builder
			fmt.Fprintf(&sb, "Please confirm the batch of %d transfers:\n\n", len(f.Items))
			for _, item := range f.Items {
				fmt.Fprintf(&sb, "• %s: %s %s\n", item.Destination, item.AmountDisplay, item.Currency)
			}
			return Reply{Text: sb.String(), Keyboard: confirmKeyboard}
		}
	}

	return Reply{Text: "Reply Cancel to abort.", Keyboard: cancelOnly}
}

// wallets подбирает кошельки для шага wallet_id. Список только подсказка:
// ошибку, кроме истёкшей сессии, логируем и даём ввести ID вручную.
func (c *Controller) wallets(ctx context.Context, token string) ([]model.Wallet, error) {
	wallets, err := c.backend.ListWallets(ctx, token)
	if err == nil {
		return wallets, nil
	}
	err = classify("list wallets", err)
	var sessionErr *SessionError
	if errors.As(err, &sessionErr) {
		return nil, err
	}
	c.logger.Warn().Err(err).Msg("wallet list unavailable, falling back to manual wallet id")
	return nil, nil
}

// walletPrompt предлагает ID кошельков кнопками, кошелёк по умолчанию первым
func walletPrompt(wallets []model.Wallet) Reply {
	text := "Enter the ID of the wallet to withdraw from:"
	if len(wallets) == 0 {
		return Reply{Text: text + "\nUse /wallets to see your wallet IDs.", Keyboard: [][]string{{"Cancel"}}}
	}

	sorted := append([]model.Wallet(nil), wallets...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].IsDefault && !sorted[j].IsDefault })

	var sb strings.Builder
	sb.WriteString("Choose the wallet to withdraw from:\n")
	keyboard := make([][]string, 0, len(sorted)+1)
	for _, w := range sorted {
		sb.WriteString("\n" + walletLine(w))
		keyboard = append(keyboard, []string{w.ID})
	}
	keyboard = append(keyboard, []string{"Cancel"})
	return Reply{Text: sb.String(), Keyboard: keyboard}
}
