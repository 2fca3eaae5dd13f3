package service

import (
	"context"

	"github.com/ivanoskov/copperx_bot/internal/model"
	"github.com/ivanoskov/copperx_bot/internal/repository"
)

// Backend определяет, что сервису нужно от REST API платформы
type Backend interface {
	GetBalances(ctx context.Context, token string) ([]model.WalletBalances, error)
	ListWallets(ctx context.Context, token string) ([]model.Wallet, error)
	GetDefaultWallet(ctx context.Context, token string) (*model.Wallet, error)
	SetDefaultWallet(ctx context.Context, token, walletID string) (*model.Wallet, error)
	RequestOfframpQuote(ctx context.Context, token string, req model.QuoteRequest) (*model.Quote, error)
	SendTransfer(ctx context.Context, token string, req model.TransferRequest) (*model.Transfer, error)
	WithdrawToWallet(ctx context.Context, token string, req model.WalletWithdrawRequest) (*model.Transfer, error)
	CreateOfframp(ctx context.Context, token string, req model.OfframpRequest) (*model.Transfer, error)
	SendBatch(ctx context.Context, token string, reqs []model.BatchTransferRequest) ([]model.BatchTransferResponse, error)
	ListTransfers(ctx context.Context, token string, params model.TransferListParams) (*model.TransferPage, error)
}

// Journal: журнал исполнений (необязательный)
type Journal interface {
	Record(ctx context.Context, entry *repository.JournalEntry) error
}

// Sessions отдаёт токен доступа пользователя, если он есть
type Sessions interface {
	Token(userID int64) (string, bool)
	Clear(userID int64)
}

var _ Backend = (*repository.HTTPBackend)(nil)
