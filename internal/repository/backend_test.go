package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanoskov/copperx_bot/internal/model"
	"github.com/ivanoskov/copperx_bot/internal/observability"
)

func newTestBackend(t *testing.T, handler http.HandlerFunc) *HTTPBackend {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPBackend(srv.URL+"/", 5*time.Second, observability.NewMetrics(nil), zerolog.Nop())
}

func TestHTTPBackend_SendTransfer(t *testing.T) {
	var got model.TransferRequest
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/transfers/send", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"tr-1","status":"pending","amount":"10000000000","currency":"USDC","totalFee":"0","feeCurrency":"USDC"}`)
	})

	transfer, err := b.SendTransfer(context.Background(), "tok", model.TransferRequest{
		WalletAddress: "0xabc",
		Amount:        "10000000000",
		Currency:      "USDC",
		PurposeCode:   model.PurposeSelf,
	})
	require.NoError(t, err)
	assert.Equal(t, "tr-1", transfer.ID)
	assert.Equal(t, "10000000000", got.Amount)
	assert.Equal(t, "0xabc", got.WalletAddress)
	assert.Empty(t, got.Email)
}

func TestHTTPBackend_SendBatch(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/transfers/send-batch", r.URL.Path)

		var payload struct {
			Requests []model.BatchTransferRequest `json:"requests"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Len(t, payload.Requests, 2)

		_, _ = io.WriteString(w, `{"responses":[
			{"requestId":"a","request":{"amount":"1","currency":"USDC","purposeCode":"self"},"response":{"id":"t1","status":"pending"}},
			{"requestId":"b","request":{"amount":"1","currency":"USDC","purposeCode":"self"},"error":{"message":"recipient not found","statusCode":404}}
		]}`)
	})

	resp, err := b.SendBatch(context.Background(), "tok", []model.BatchTransferRequest{
		{RequestID: "a"}, {RequestID: "b"},
	})
	require.NoError(t, err)
	require.Len(t, resp, 2)
	assert.Equal(t, "t1", resp[0].Response.ID)
	assert.Nil(t, resp[0].Error)
	assert.Equal(t, "recipient not found", resp[1].Error.Message)
}

func TestHTTPBackend_ListTransfersQuery(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, []string{"send", "withdraw"}, r.URL.Query()["type"])
		_, _ = io.WriteString(w, `{"page":2,"limit":5,"count":7,"hasMore":false,"data":[{"id":"x"}]}`)
	})

	page, err := b.ListTransfers(context.Background(), "tok", model.TransferListParams{
		Page: 2, Limit: 5, Types: []string{"send", "withdraw"},
	})
	require.NoError(t, err)
	assert.Equal(t, 7, page.Count)
	require.Len(t, page.Data, 1)
}

func TestHTTPBackend_ErrorParsing(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantMsg    string
		wantFields []FieldError
	}{
		{
			name:    "string message",
			status:  400,
			body:    `{"message":"Insufficient balance","statusCode":400,"error":"Bad Request"}`,
			wantMsg: "Insufficient balance",
		},
		{
			name:       "array of strings",
			status:     422,
			body:       `{"message":["amount must be a number string","currency must be valid"],"statusCode":422}`,
			wantMsg:    "amount must be a number string; currency must be valid",
			wantFields: []FieldError{{Field: "amount", Message: "amount must be a number string"}, {Field: "currency", Message: "currency must be valid"}},
		},
		{
			name:       "class-validator objects",
			status:     422,
			body:       `{"message":[{"property":"walletAddress","constraints":{"isEthereumAddress":"walletAddress must be an Ethereum address"}}],"statusCode":422}`,
			wantMsg:    "walletAddress must be an Ethereum address",
			wantFields: []FieldError{{Field: "walletAddress", Message: "walletAddress must be an Ethereum address"}},
		},
		{
			name:       "field map",
			status:     422,
			body:       `{"message":{"email":"invalid","amount":"too small"},"statusCode":422}`,
			wantMsg:    "amount: too small; email: invalid",
			wantFields: []FieldError{{Field: "amount", Message: "too small"}, {Field: "email", Message: "invalid"}},
		},
		{
			name:    "not json",
			status:  502,
			body:    `bad gateway`,
			wantMsg: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := b.GetBalances(context.Background(), "tok")
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
			assert.Equal(t, tt.wantFields, apiErr.Fields)
			assert.Equal(t, tt.body, apiErr.Raw)
		})
	}
}

func TestHTTPBackend_BreakerOpensOnServerErrors(t *testing.T) {
	var calls int32
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	for i := 0; i < 5; i++ {
		_, err := b.GetBalances(context.Background(), "tok")
		require.Error(t, err)
	}

	_, err := b.GetBalances(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

func TestHTTPBackend_ClientErrorsKeepBreakerClosed(t *testing.T) {
	var calls int32
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"bad","statusCode":400}`)
	})

	for i := 0; i < 8; i++ {
		_, err := b.GetBalances(context.Background(), "tok")
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
	}
	assert.Equal(t, int32(8), atomic.LoadInt32(&calls))
}

func TestNopJournal(t *testing.T) {
	assert.NoError(t, NopJournal{}.Record(context.Background(), &JournalEntry{}))
}

func TestHTTPBackend_Wallets(t *testing.T) {
	const walletID = "9b2f4c1e-3d5a-4e6b-8c7d-0a1b2c3d4e5f"
	var setReq model.SetDefaultWalletRequest
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch {
		case r.URL.Path == "/api/wallets" && r.Method == http.MethodGet:
			_, _ = io.WriteString(w, `[
				{"id":"`+walletID+`","network":"polygon","walletAddress":"0xabc","walletType":"web3_auth_copperx","isDefault":true},
				{"id":"w2","network":"base","walletType":"quantum"}
			]`)
		case r.URL.Path == "/api/wallets/default" && r.Method == http.MethodGet:
			_, _ = io.WriteString(w, `{"id":"`+walletID+`","network":"polygon","isDefault":true}`)
		case r.URL.Path == "/api/wallets/default" && r.Method == http.MethodPost:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&setReq))
			_, _ = io.WriteString(w, `{"id":"w2","network":"base","isDefault":true}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	wallets, err := b.ListWallets(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, wallets, 2)
	assert.Equal(t, walletID, wallets[0].ID)
	assert.Equal(t, "0xabc", wallets[0].WalletAddress)
	assert.True(t, wallets[0].IsDefault)
	assert.False(t, wallets[1].IsDefault)

	def, err := b.GetDefaultWallet(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, walletID, def.ID)

	set, err := b.SetDefaultWallet(context.Background(), "tok", "w2")
	require.NoError(t, err)
	assert.Equal(t, "w2", setReq.WalletID)
	assert.Equal(t, "w2", set.ID)
	assert.True(t, set.IsDefault)
}

func TestHTTPBackend_QuoteWithUnparsableExpiry(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/quotes/offramp", r.URL.Path)
		_, _ = io.WriteString(w, `{"quotePayload":"p","quoteSignature":"s","toAmount":"99.5","toCurrency":"USD","expiresAt":"Sat Mar  1 12:30:00 2025"}`)
	})

	quote, err := b.RequestOfframpQuote(context.Background(), "tok", model.QuoteRequest{Amount: "10000000000", SourceCurrency: "USDC"})
	require.NoError(t, err)
	assert.Equal(t, "p", quote.Payload)
	assert.True(t, quote.ExpiresAt.IsZero())
}
