package model

import (
	"time"

	"github.com/google/uuid"
)

// Константы, которые бэкенд требует для переводов на себя
const (
	PurposeSelf               = "self"
	SourceOfFundsSalary       = "salary"
	RecipientRelationshipSelf = "self"
)

// TransferRequest: запрос send. Сумма всегда в базовых единицах.
type TransferRequest struct {
	WalletAddress string `json:"walletAddress,omitempty"`
	Email         string `json:"email,omitempty"`
	PayeeID       string `json:"payeeId,omitempty"`
	Amount        string `json:"amount"`
	PurposeCode   string `json:"purposeCode"`
	Currency      string `json:"currency"`
}

// Recipient возвращает адрес или email получателя
func (r TransferRequest) Recipient() string {
	if r.Email != "" {
		return r.Email
	}
	return r.WalletAddress
}

type WalletWithdrawRequest struct {
	WalletAddress string `json:"walletAddress"`
	Amount        string `json:"amount"`
	PurposeCode   string `json:"purposeCode"`
	Currency      string `json:"currency"`
}

type CustomerData struct {
	Name         string `json:"name"`
	BusinessName string `json:"businessName"`
	Email        string `json:"email"`
	Country      string `json:"country"`
}

type OfframpRequest struct {
	PurposeCode           string       `json:"purposeCode"`
	SourceOfFunds         string       `json:"sourceOfFunds"`
	RecipientRelationship string       `json:"recipientRelationship"`
	QuotePayload          string       `json:"quotePayload"`
	QuoteSignature        string       `json:"quoteSignature"`
	PreferredWalletID     string       `json:"preferredWalletId"`
	CustomerData          CustomerData `json:"customerData"`
	Note                  string       `json:"note,omitempty"`
}

type BatchTransferRequest struct {
	RequestID string          `json:"requestId"`
	Request   TransferRequest `json:"request"`
}

// NewBatchRequestID генерирует идентификатор элемента пакета
func NewBatchRequestID() string {
	return uuid.New().String()
}

type BatchTransferResponse struct {
	RequestID string          `json:"requestId"`
	Request   TransferRequest `json:"request"`
	Response  *Transfer       `json:"response,omitempty"`
	Error     *ErrorResponse  `json:"error,omitempty"`
}

// ErrorResponse: тело ошибки бэкенда. Message бывает строкой, массивом или объектом.
type ErrorResponse struct {
	Message    any    `json:"message"`
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error,omitempty"`
}

type Account struct {
	ID               string `json:"id"`
	Type             string `json:"type"`
	Country          string `json:"country,omitempty"`
	Network          string `json:"network,omitempty"`
	WalletAddress    string `json:"walletAddress,omitempty"`
	BankName         string `json:"bankName,omitempty"`
	PayeeEmail       string `json:"payeeEmail,omitempty"`
	PayeeDisplayName string `json:"payeeDisplayName,omitempty"`
}

// Label: как показывать счёт пользователю
func (a Account) Label() string {
	switch {
	case a.WalletAddress != "":
		return a.WalletAddress
	case a.PayeeEmail != "":
		return a.PayeeEmail
	case a.BankName != "":
		return a.BankName
	}
	return "Unknown"
}

// Transfer: запись о переводе, как её возвращает бэкенд
type Transfer struct {
	ID                  string    `json:"id"`
	CreatedAt           time.Time `json:"createdAt"`
	Status              string    `json:"status"`
	Type                string    `json:"type"`
	Mode                string    `json:"mode,omitempty"`
	Amount              string    `json:"amount"`
	Currency            string    `json:"currency"`
	TotalFee            string    `json:"totalFee"`
	FeeCurrency         string    `json:"feeCurrency"`
	DestinationCurrency string    `json:"destinationCurrency,omitempty"`
	PurposeCode         string    `json:"purposeCode"`
	SourceAccount       Account   `json:"sourceAccount"`
	DestinationAccount  Account   `json:"destinationAccount"`
}

type TransferListParams struct {
	Page  int
	Limit int
	Types []string
}

type TransferPage struct {
	Page    int        `json:"page"`
	Limit   int        `json:"limit"`
	Count   int        `json:"count"`
	HasMore bool       `json:"hasMore"`
	Data    []Transfer `json:"data"`
}

// BatchItemResult: итог по одному элементу пакета
type BatchItemResult struct {
	RequestID   string
	Destination string
	Amount      string
	Currency    string
	Transfer    *Transfer
	Reason      string
}

func (r BatchItemResult) Failed() bool {
	return r.Transfer == nil
}

// BatchReport: отчёт о пакетном переводе. Частичный успех: нормальная ситуация.
type BatchReport struct {
	SuccessCount int
	FailedCount  int
	Items        []BatchItemResult
}
