package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ivanoskov/copperx_bot/internal/model"
	"github.com/ivanoskov/copperx_bot/internal/repository"
	"github.com/ivanoskov/copperx_bot/internal/units"
)

// Исходы исполнения для журнала и метрик
const (
	OutcomeExecuted = "executed"
	OutcomePartial  = "partial"
	OutcomeFailed   = "failed"
)

const journalTimeout = 5 * time.Second

// Executor собирает итоговый запрос, проверяет баланс и делает ровно один
// вызов бэкенда, который перемещает деньги
type Executor struct {
	backend  Backend
	balances *BalanceVerifier
	assets   *units.Registry
	journal  Journal
	logger   zerolog.Logger
}

func NewExecutor(backend Backend, balances *BalanceVerifier, assets *units.Registry, journal Journal, logger zerolog.Logger) *Executor {
	if journal == nil {
		journal = repository.NopJournal{}
	}
	return &Executor{
		backend:  backend,
		balances: balances,
		assets:   assets,
		journal:  journal,
		logger:   logger,
	}
}

// ExecuteTransfer исполняет send или withdraw
func (e *Executor) ExecuteTransfer(ctx context.Context, token string, f *model.TransferFlow) (*model.Transfer, error) {
	base, err := e.toBase(f.Amount, f.Currency)
	if err != nil {
		return nil, err
	}
	if err := e.balances.Require(ctx, token, map[string]decimal.Decimal{f.Currency: base}); err != nil {
		return nil, err
	}

	var transfer *model.Transfer
	switch f.FlowKind {
	case model.FlowSend:
		transfer, err = e.backend.SendTransfer(ctx, token, model.TransferRequest{
			WalletAddress: f.Destination.WalletAddress,
			Email:         f.Destination.Email,
			Amount:        base.String(),
			PurposeCode:   model.PurposeSelf,
			Currency:      f.Currency,
		})
	case model.FlowWithdraw:
		transfer, err = e.backend.WithdrawToWallet(ctx, token, model.WalletWithdrawRequest{
			WalletAddress: f.Destination.WalletAddress,
			Amount:        base.String(),
			PurposeCode:   model.PurposeSelf,
			Currency:      f.Currency,
		})
	default:
		return nil, fmt.Errorf("unexpected flow kind %q", f.FlowKind)
	}

	entry := &repository.JournalEntry{
		UserID:     f.UserID,
		Kind:       string(f.FlowKind),
		Currency:   f.Currency,
		AmountBase: base.String(),
		Recipients: 1,
	}
	if err != nil {
		err = classify(string(f.FlowKind), err)
		entry.Outcome, entry.Detail = OutcomeFailed, err.Error()
		e.record(entry)
		return nil, err
	}
	entry.Outcome, entry.TransferID = OutcomeExecuted, transfer.ID
	e.record(entry)
	return transfer, nil
}

// ExecuteOfframp исполняет offramp по принятой котировке
func (e *Executor) ExecuteOfframp(ctx context.Context, token string, f *model.OfframpFlow) (*model.Transfer, error) {
	if f.Quote == nil || f.Quote.Payload == "" || f.Quote.Signature == "" {
		return nil, ErrInvalidQuote
	}
	base, err := e.toBase(f.Amount, f.Currency)
	if err != nil {
		return nil, err
	}
	if err := e.balances.Require(ctx, token, map[string]decimal.Decimal{f.Currency: base}); err != nil {
		return nil, err
	}

	transfer, err := e.backend.CreateOfframp(ctx, token, model.OfframpRequest{
		PurposeCode:           model.PurposeSelf,
		SourceOfFunds:         model.SourceOfFundsSalary,
		RecipientRelationship: model.RecipientRelationshipSelf,
		QuotePayload:          f.Quote.Payload,
		QuoteSignature:        f.Quote.Signature,
		PreferredWalletID:     f.WalletID,
		CustomerData: model.CustomerData{
			Name:         f.CustomerName,
			BusinessName: f.BusinessName,
			Email:        f.Email,
			Country:      f.Country,
		},
	})

	entry := &repository.JournalEntry{
		UserID:     f.UserID,
		Kind:       string(model.FlowOfframp),
		Currency:   f.Currency,
		AmountBase: base.String(),
		Recipients: 1,
	}
	if err != nil {
		err = classify("offramp", err)
		entry.Outcome, entry.Detail = OutcomeFailed, err.Error()
		e.record(entry)
		return nil, err
	}
	entry.Outcome, entry.TransferID = OutcomeExecuted, transfer.ID
	e.record(entry)
	return transfer, nil
}

// ExecuteBatch отправляет все элементы одним пакетным запросом. Баланс
// проверяется на суммарную сумму до вызова. Частичный успех нормален:
// отчёт содержит причину отказа по каждому неуспешному элементу.
func (e *Executor) ExecuteBatch(ctx context.Context, token string, f *model.BatchFlow) (*model.BatchReport, error) {
	if len(f.Items) == 0 {
		return nil, fmt.Errorf("batch has no recipients")
	}

	need := make(map[string]decimal.Decimal)
	reqs := make([]model.BatchTransferRequest, 0, len(f.Items))
	results := make([]model.BatchItemResult, 0, len(f.Items))
	for _, item := range f.Items {
		currency := item.Currency
		if currency == "" {
			currency = f.Currency
		}
		amount := item.AmountDisplay
		if amount == "" {
			amount = f.Amount
		}
		base, err := e.toBase(amount, currency)
		if err != nil {
			return nil, err
		}
		need[currency] = need[currency].Add(base)

		id := model.NewBatchRequestID()
		reqs = append(reqs, model.BatchTransferRequest{
			RequestID: id,
			Request: model.TransferRequest{
				WalletAddress: item.Destination.WalletAddress,
				Email:         item.Destination.Email,
				Amount:        base.String(),
				PurposeCode:   model.PurposeSelf,
				Currency:      currency,
			},
		})
		results = append(results, model.BatchItemResult{
			RequestID:   id,
			Destination: item.Destination.String(),
			Amount:      amount,
			Currency:    currency,
		})
	}

	if err := e.balances.Require(ctx, token, need); err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, v := range need {
		total = total.Add(v)
	}
	entry := &repository.JournalEntry{
		UserID:     f.UserID,
		Kind:       string(model.FlowBatch),
		Currency:   f.Currency,
		AmountBase: total.String(),
		Recipients: len(reqs),
	}

	responses, err := e.backend.SendBatch(ctx, token, reqs)
	if err != nil {
		err = classify("batch", err)
		entry.Outcome, entry.Detail = OutcomeFailed, err.Error()
		e.record(entry)
		return nil, err
	}

	report := buildBatchReport(results, responses)
	switch {
	case report.FailedCount == 0:
		entry.Outcome = OutcomeExecuted
	case report.SuccessCount == 0:
		entry.Outcome = OutcomeFailed
	default:
		entry.Outcome = OutcomePartial
	}
	entry.Detail = fmt.Sprintf("%d succeeded, %d failed", report.SuccessCount, report.FailedCount)
	e.record(entry)
	return report, nil
}

// buildBatchReport сопоставляет ответы с элементами по requestId, а если
// бэкенд его не вернул, то по позиции
func buildBatchReport(results []model.BatchItemResult, responses []model.BatchTransferResponse) *model.BatchReport {
	byID := make(map[string]model.BatchTransferResponse, len(responses))
	for _, r := range responses {
		if r.RequestID != "" {
			byID[r.RequestID] = r
		}
	}

	report := &model.BatchReport{Items: results}
	for i := range report.Items {
		item := &report.Items[i]
		resp, ok := byID[item.RequestID]
		if !ok && i < len(responses) && responses[i].RequestID == "" {
			resp, ok = responses[i], true
		}

		switch {
		case !ok:
			item.Reason = "no response from backend"
		case resp.Error != nil:
			item.Reason = batchErrorReason(resp.Error)
		case resp.Response != nil:
			item.Transfer = resp.Response
		default:
			item.Reason = "no response from backend"
		}

		if item.Failed() {
			report.FailedCount++
		} else {
			report.SuccessCount++
		}
	}
	return report
}

func batchErrorReason(e *model.ErrorResponse) string {
	msg, _ := repository.FlattenMessage(e.Message)
	if strings.TrimSpace(msg) == "" {
		msg = e.Error
	}
	if msg == "" {
		msg = fmt.Sprintf("failed with status %d", e.StatusCode)
	}
	return msg
}

func (e *Executor) toBase(amount, currency string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", units.ErrInvalidAmount, amount)
	}
	return e.assets.ToBase(d, currency)
}

// record пишет журнал без влияния на ответ пользователю
func (e *Executor) record(entry *repository.JournalEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	if err := e.journal.Record(ctx, entry); err != nil {
		e.logger.Warn().Err(err).Str("kind", entry.Kind).Int64("user_id", entry.UserID).Msg("journal write failed")
	}
}
