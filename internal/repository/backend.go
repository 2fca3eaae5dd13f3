package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/ivanoskov/copperx_bot/internal/model"
	"github.com/ivanoskov/copperx_bot/internal/observability"
)

const userAgent = "CopperX-Bot/1.0"

// FieldError: ошибка валидации конкретного поля запроса
type FieldError struct {
	Field   string
	Message string
}

// APIError: ответ бэкенда со статусом не 2xx
type APIError struct {
	StatusCode int
	Message    string
	Code       string
	Fields     []FieldError
	Raw        string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Raw)
}

// ErrBackendUnavailable: предохранитель разомкнут, запрос не отправлялся
var ErrBackendUnavailable = errors.New("backend unavailable")

// HTTPBackend: клиент REST API платформы
type HTTPBackend struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewHTTPBackend(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger zerolog.Logger) *HTTPBackend {
	b := &HTTPBackend{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		metrics: metrics,
		logger:  logger,
	}
	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "copperx-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// ошибки клиента (4xx) не говорят о недоступности бэкенда
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode < 500
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	return b
}

func (b *HTTPBackend) GetBalances(ctx context.Context, token string) ([]model.WalletBalances, error) {
	var out []model.WalletBalances
	if err := b.do(ctx, "get_balances", http.MethodGet, "/api/wallets/balances", token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *HTTPBackend) ListWallets(ctx context.Context, token string) ([]model.Wallet, error) {
	var out []model.Wallet
	if err := b.do(ctx, "list_wallets", http.MethodGet, "/api/wallets", token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *HTTPBackend) GetDefaultWallet(ctx context.Context, token string) (*model.Wallet, error) {
	var out model.Wallet
	if err := b.do(ctx, "get_default_wallet", http.MethodGet, "/api/wallets/default", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *HTTPBackend) SetDefaultWallet(ctx context.Context, token, walletID string) (*model.Wallet, error) {
	var out model.Wallet
	req := model.SetDefaultWalletRequest{WalletID: walletID}
	if err := b.do(ctx, "set_default_wallet", http.MethodPost, "/api/wallets/default", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *HTTPBackend) RequestOfframpQuote(ctx context.Context, token string, req model.QuoteRequest) (*model.Quote, error) {
	var out model.Quote
	if err := b.do(ctx, "offramp_quote", http.MethodPost, "/api/quotes/offramp", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *HTTPBackend) SendTransfer(ctx context.Context, token string, req model.TransferRequest) (*model.Transfer, error) {
	var out model.Transfer
	if err := b.do(ctx, "send_transfer", http.MethodPost, "/api/transfers/send", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *HTTPBackend) WithdrawToWallet(ctx context.Context, token string, req model.WalletWithdrawRequest) (*model.Transfer, error) {
	var out model.Transfer
	if err := b.do(ctx, "wallet_withdraw", http.MethodPost, "/api/transfers/wallet-withdraw", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *HTTPBackend) CreateOfframp(ctx context.Context, token string, req model.OfframpRequest) (*model.Transfer, error) {
	var out model.Transfer
	if err := b.do(ctx, "create_offramp", http.MethodPost, "/api/transfers/offramp", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *HTTPBackend) SendBatch(ctx context.Context, token string, reqs []model.BatchTransferRequest) ([]model.BatchTransferResponse, error) {
	payload := struct {
		Requests []model.BatchTransferRequest `json:"requests"`
	}{Requests: reqs}

	var out struct {
		Responses []model.BatchTransferResponse `json:"responses"`
	}
	if err := b.do(ctx, "send_batch", http.MethodPost, "/api/transfers/send-batch", token, payload, &out); err != nil {
		return nil, err
	}
	return out.Responses, nil
}

func (b *HTTPBackend) ListTransfers(ctx context.Context, token string, params model.TransferListParams) (*model.TransferPage, error) {
	q := url.Values{}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	for _, t := range params.Types {
		q.Add("type", t)
	}

	path := "/api/transfers"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out model.TransferPage
	if err := b.do(ctx, "list_transfers", http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *HTTPBackend) do(ctx context.Context, op, method, path, token string, body, out any) error {
	start := time.Now()
	_, err := b.breaker.Execute(func() (any, error) {
		return nil, b.roundTrip(ctx, method, path, token, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%s: %w", op, ErrBackendUnavailable)
	}
	b.metrics.ObserveBackend(op, start, err)

	if err != nil {
		b.logger.Error().Err(err).Str("op", op).Dur("took", time.Since(start)).Msg("backend call failed")
		return err
	}
	b.logger.Debug().Str("op", op).Dur("took", time.Since(start)).Msg("backend call")
	return nil
}

func (b *HTTPBackend) roundTrip(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Raw: strings.TrimSpace(string(body))}

	var resp model.ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return apiErr
	}
	apiErr.Code = resp.Error
	apiErr.Message, apiErr.Fields = FlattenMessage(resp.Message)
	if apiErr.Message == "" {
		apiErr.Message = resp.Error
	}
	return apiErr
}

// FlattenMessage разбирает поле message ошибки бэкенда. Оно бывает:
// строкой; массивом строк ("amount must be positive"); массивом объектов
// {property, constraints}; объектом {поле: сообщение}.
func FlattenMessage(raw any) (string, []FieldError) {
	switch m := raw.(type) {
	case nil:
		return "", nil
	case string:
		return m, nil
	case []any:
		var fields []FieldError
		var parts []string
		for _, item := range m {
			switch v := item.(type) {
			case string:
				parts = append(parts, v)
				field, _, _ := strings.Cut(v, " ")
				fields = append(fields, FieldError{Field: field, Message: v})
			case map[string]any:
				fe := fieldFromObject(v)
				parts = append(parts, fe.Message)
				fields = append(fields, fe)
			}
		}
		return strings.Join(parts, "; "), fields
	case map[string]any:
		if msg, ok := m["message"].(string); ok {
			return msg, nil
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var fields []FieldError
		var parts []string
		for _, k := range keys {
			msg := fmt.Sprint(m[k])
			fields = append(fields, FieldError{Field: k, Message: msg})
			parts = append(parts, k+": "+msg)
		}
		return strings.Join(parts, "; "), fields
	}
	return fmt.Sprint(raw), nil
}

func fieldFromObject(v map[string]any) FieldError {
	fe := FieldError{}
	if p, ok := v["property"].(string); ok {
		fe.Field = p
	} else if f, ok := v["field"].(string); ok {
		fe.Field = f
	}

	if c, ok := v["constraints"].(map[string]any); ok {
		keys := make([]string, 0, len(c))
		for k := range c {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		msgs := make([]string, 0, len(keys))
		for _, k := range keys {
			msgs = append(msgs, fmt.Sprint(c[k]))
		}
		fe.Message = strings.Join(msgs, ", ")
	} else if m, ok := v["message"].(string); ok {
		fe.Message = m
	}
	return fe
}
