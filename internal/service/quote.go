package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ivanoskov/copperx_bot/internal/model"
	"github.com/ivanoskov/copperx_bot/internal/units"
)

// QuoteManager запрашивает котировки offramp. Payload и signature
// котировки не разбираются и передаются в бэкенд как есть.
type QuoteManager struct {
	backend    Backend
	assets     *units.Registry
	settlement string
	now        func() time.Time
}

func NewQuoteManager(backend Backend, assets *units.Registry, settlementCurrency string) *QuoteManager {
	if settlementCurrency == "" {
		settlementCurrency = "USD"
	}
	return &QuoteManager{
		backend:    backend,
		assets:     assets,
		settlement: settlementCurrency,
		now:        time.Now,
	}
}

// Request запрашивает котировку на amountDisplay в валюте currency
func (m *QuoteManager) Request(ctx context.Context, token, currency, amountDisplay string) (*model.Quote, error) {
	base, err := m.assets.ToBaseUnit(amountDisplay, currency)
	if err != nil {
		return nil, err
	}

	quote, err := m.backend.RequestOfframpQuote(ctx, token, model.QuoteRequest{
		Amount:              base,
		SourceCurrency:      currency,
		DestinationCurrency: m.settlement,
		OnlyRemittance:      true,
	})
	if err != nil {
		return nil, classify("request quote", err)
	}
	if quote == nil || quote.Payload == "" || quote.Signature == "" {
		return nil, ErrInvalidQuote
	}
	if quote.Currency == "" {
		quote.Currency = currency
	}
	if quote.AmountBase == "" {
		quote.AmountBase = base
	}
	return quote, nil
}

// Expired: котировка с истёкшим сроком. Нулевой ExpiresAt означает, что
// бэкенд срок не сообщил или прислал его в незнакомом формате, проверку оставляем ему.
func (m *QuoteManager) Expired(q *model.Quote) bool {
	if q == nil || q.ExpiresAt.IsZero() {
		return false
	}
	return !m.now().Before(q.ExpiresAt)
}

// Summary: текст условий котировки для подтверждения пользователем
func (m *QuoteManager) Summary(q *model.Quote) string {
	amount := m.display(q.AmountBase, q.Currency)
	text := fmt.Sprintf("💱 Quote\n\nYou send: %s %s\nYou receive: %s %s\n",
		amount, q.Currency, q.DestinationAmount, q.DestinationCurrency)
	if q.Rate != "" {
		text += fmt.Sprintf("Rate: %s\n", q.Rate)
	}
	if q.Fee.AmountBase != "" {
		feeCurrency := q.Fee.Currency
		if feeCurrency == "" {
			feeCurrency = q.Currency
		}
		text += fmt.Sprintf("Fee: %s %s\n", m.display(q.Fee.AmountBase, feeCurrency), feeCurrency)
	}
	if !q.ExpiresAt.IsZero() {
		text += fmt.Sprintf("Expires: %s\n", q.ExpiresAt.UTC().Format("2006-01-02 15:04 UTC"))
	}
	return text
}

// display переводит базовые единицы в отображаемые; неизвестную валюту
// показывает как есть
func (m *QuoteManager) display(base, currency string) string {
	v, err := m.assets.FromBaseUnit(base, currency)
	if err != nil {
		return base
	}
	return v
}
