package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Fee: комиссия в базовых единицах
type Fee struct {
	AmountBase string `json:"amount"`
	Currency   string `json:"currency"`
}

// Quote: котировка конвертации. Payload и Signature непрозрачны и
// передаются в offramp без изменений; котировка одноразовая.
type Quote struct {
	AmountBase          string    `json:"amount"`
	Currency            string    `json:"currency"`
	DestinationAmount   string    `json:"toAmount"`
	DestinationCurrency string    `json:"toCurrency"`
	Rate                string    `json:"rate"`
	Fee                 Fee       `json:"fee"`
	ExpiresAt           time.Time `json:"expiresAt"`
	Payload             string    `json:"quotePayload"`
	Signature           string    `json:"quoteSignature"`
}

// expiryLayouts: форматы срока котировки, которые встречались у бэкенда
var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	time.RFC1123Z,
	time.RFC1123,
}

// UnmarshalJSON разбирает expiresAt мягко: нераспознанный срок даёт нулевое
// время (котировка не истекает локально), а не ошибку разбора всей котировки.
func (q *Quote) UnmarshalJSON(data []byte) error {
	type wire Quote
	aux := struct {
		*wire
		ExpiresAt json.RawMessage `json:"expiresAt"`
	}{wire: (*wire)(q)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	q.ExpiresAt = ParseExpiry(aux.ExpiresAt)
	return nil
}

// ParseExpiry: строка в одном из expiryLayouts или unix-время в секундах
// либо миллисекундах, числом или строкой. Остальное даёт нулевое время.
func ParseExpiry(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}
	}

	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return time.Time{}
		}
	} else {
		text = string(raw)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}
	}

	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		if n <= 0 {
			return time.Time{}
		}
		// 1e12 мс: сентябрь 2001, в секундах такое число ушло бы за 30000 год
		if n >= 1e12 {
			return time.UnixMilli(n).UTC()
		}
		return time.Unix(n, 0).UTC()
	}

	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// QuoteRequest: запрос котировки offramp
type QuoteRequest struct {
	Amount              string `json:"amount"`
	SourceCurrency      string `json:"currency"`
	DestinationCurrency string `json:"destinationCurrency"`
	OnlyRemittance      bool   `json:"onlyRemittance"`
	ThirdPartyPayment   bool   `json:"thirdPartyPayment"`
}

// TokenBalance: баланс одного токена в кошельке. Balance в отображаемых единицах.
type TokenBalance struct {
	Symbol   string `json:"symbol"`
	Balance  string `json:"balance"`
	Decimals int    `json:"decimals"`
	Address  string `json:"address"`
}

// WalletBalances: балансы одного кошелька
type WalletBalances struct {
	WalletID  string         `json:"walletId"`
	IsDefault bool           `json:"isDefault"`
	Network   string         `json:"network"`
	Balances  []TokenBalance `json:"balances"`
}

// BalanceSnapshot: доступный остаток по валютам в базовых единицах.
// Берётся заново перед каждой проверкой и не кешируется.
type BalanceSnapshot struct {
	Available map[string]decimal.Decimal
	FetchedAt time.Time
}

func (s BalanceSnapshot) Get(currency string) decimal.Decimal {
	if v, ok := s.Available[currency]; ok {
		return v
	}
	return decimal.Zero
}
