package repository

import (
	"context"

	"github.com/ivanoskov/copperx_bot/internal/model"
)

type Backend interface {
	// Кошельки
	GetBalances(ctx context.Context, token string) ([]model.WalletBalances, error)
	ListWallets(ctx context.Context, token string) ([]model.Wallet, error)
	GetDefaultWallet(ctx context.Context, token string) (*model.Wallet, error)
	SetDefaultWallet(ctx context.Context, token, walletID string) (*model.Wallet, error)

	// Котировки
	RequestOfframpQuote(ctx context.Context, token string, req model.QuoteRequest) (*model.Quote, error)

	// Переводы
	SendTransfer(ctx context.Context, token string, req model.TransferRequest) (*model.Transfer, error)
	WithdrawToWallet(ctx context.Context, token string, req model.WalletWithdrawRequest) (*model.Transfer, error)
	CreateOfframp(ctx context.Context, token string, req model.OfframpRequest) (*model.Transfer, error)
	SendBatch(ctx context.Context, token string, reqs []model.BatchTransferRequest) ([]model.BatchTransferResponse, error)
	ListTransfers(ctx context.Context, token string, params model.TransferListParams) (*model.TransferPage, error)
}

// JournalEntry: запись журнала исполнений
type JournalEntry struct {
	ID         string `json:"id"`
	UserID     int64  `json:"user_id"`
	Kind       string `json:"kind"`
	Currency   string `json:"currency"`
	AmountBase string `json:"amount_base"`
	Recipients int    `json:"recipients"`
	Outcome    string `json:"outcome"`
	TransferID string `json:"transfer_id,omitempty"`
	Detail     string `json:"detail,omitempty"`
	CreatedAt  string `json:"created_at"`
}

type Journal interface {
	Record(ctx context.Context, entry *JournalEntry) error
}

// NopJournal используется, когда Supabase не настроен
type NopJournal struct{}

func (NopJournal) Record(context.Context, *JournalEntry) error { return nil }

var (
	_ Backend = (*HTTPBackend)(nil)
	_ Journal = NopJournal{}
	_ Journal = (*SupabaseJournal)(nil)
)
