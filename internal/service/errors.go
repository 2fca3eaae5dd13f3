package service

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ivanoskov/copperx_bot/internal/repository"
)

// InputError: пользователь ввёл некорректное значение. Шаг повторяется,
// состояние не меняется.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string { return e.Reason }

func inputErrorf(format string, args ...any) error {
	return &InputError{Reason: fmt.Sprintf(format, args...)}
}

// SessionError: нет токена доступа или он отозван бэкендом
type SessionError struct{}

func (e *SessionError) Error() string { return "no active session" }

// BalanceError: средств недостаточно или баланс не удалось получить.
// Unknown=true означает, что проверить баланс не получилось.
type BalanceError struct {
	Currency  string
	Required  decimal.Decimal
	Available decimal.Decimal
	Unknown   bool
	Cause     error
}

func (e *BalanceError) Error() string {
	if e.Unknown {
		return fmt.Sprintf("balance unavailable: %v", e.Cause)
	}
	return fmt.Sprintf("insufficient %s balance: required %s, available %s", e.Currency, e.Required, e.Available)
}

func (e *BalanceError) Unwrap() error { return e.Cause }

// ValidationError: бэкенд отклонил запрос с ошибками по полям
type ValidationError struct {
	Fields []repository.FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ComplianceError: бизнес-верификация (KYB) не пройдена
type ComplianceError struct {
	Message string
}

func (e *ComplianceError) Error() string { return "compliance: " + e.Message }

// TransportError: бэкенд недоступен или ответил непонятной ошибкой
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// ErrInvalidQuote: в котировке нет payload или signature
var ErrInvalidQuote = errors.New("quote is missing payload or signature")

// classify переводит ошибку бэкенда в таксономию сценариев
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *repository.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized:
			return &SessionError{}
		case isKYBRejection(apiErr.Message) || isKYBRejection(apiErr.Code):
			return &ComplianceError{Message: apiErr.Message}
		case len(apiErr.Fields) > 0 && apiErr.StatusCode < 500:
			return &ValidationError{Fields: apiErr.Fields}
		}
	}
	return &TransportError{Op: op, Err: err}
}

// isKYBRejection распознаёт отказ из-за неподтверждённой бизнес-верификации
// по тексту ошибки. Структурированного кода у бэкенда для этого пока нет;
// когда появится, сравнивать нужно по коду.
func isKYBRejection(text string) bool {
	t := strings.ToLower(text)
	if !strings.Contains(t, "kyb") && !strings.Contains(t, "business verification") {
		return false
	}
	for _, marker := range []string{"not approved", "not verified", "pending", "required", "rejected"} {
		if strings.Contains(t, marker) {
			return true
		}
	}
	return false
}
