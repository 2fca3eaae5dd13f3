package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ivanoskov/copperx_bot/internal/model"
	"github.com/ivanoskov/copperx_bot/internal/units"
)

// HistoryPageSize: сколько переводов показывать на странице истории
const HistoryPageSize = 5

var historyTypes = []string{"send", "receive", "withdraw"}

// Wallets отдаёт балансы и историю переводов вне сценариев
type Wallets struct {
	backend  Backend
	sessions Sessions
	assets   *units.Registry
	logger   zerolog.Logger
}

func NewWallets(backend Backend, sessions Sessions, assets *units.Registry, logger zerolog.Logger) *Wallets {
	return &Wallets{
		backend:  backend,
		sessions: sessions,
		assets:   assets,
		logger:   logger,
	}
}

// Balances возвращает свежие балансы по всем кошелькам пользователя
func (w *Wallets) Balances(ctx context.Context, userID int64) ([]model.WalletBalances, error) {
	token, ok := w.sessions.Token(userID)
	if !ok {
		return nil, &SessionError{}
	}
	wallets, err := w.backend.GetBalances(ctx, token)
	if err != nil {
		return nil, w.fail(userID, classify("get balances", err))
	}
	return wallets, nil
}

// History возвращает страницу истории переводов, страницы считаются с 1
func (w *Wallets) History(ctx context.Context, userID int64, page int) (*model.TransferPage, error) {
	token, ok := w.sessions.Token(userID)
	if !ok {
		return nil, &SessionError{}
	}
	if page < 1 {
		page = 1
	}
	result, err := w.backend.ListTransfers(ctx, token, model.TransferListParams{
		Page:  page,
		Limit: HistoryPageSize,
		Types: historyTypes,
	})
	if err != nil {
		return nil, w.fail(userID, classify("list transfers", err))
	}
	if result.Page == 0 {
		result.Page = page
	}
	return result, nil
}

// List возвращает все кошельки пользователя
func (w *Wallets) List(ctx context.Context, userID int64) ([]model.Wallet, error) {
	token, ok := w.sessions.Token(userID)
	if !ok {
		return nil, &SessionError{}
	}
	wallets, err := w.backend.ListWallets(ctx, token)
	if err != nil {
		return nil, w.fail(userID, classify("list wallets", err))
	}
	return wallets, nil
}

// Default возвращает кошелёк по умолчанию
func (w *Wallets) Default(ctx context.Context, userID int64) (*model.Wallet, error) {
	token, ok := w.sessions.Token(userID)
	if !ok {
		return nil, &SessionError{}
	}
	wallet, err := w.backend.GetDefaultWallet(ctx, token)
	if err != nil {
		return nil, w.fail(userID, classify("get default wallet", err))
	}
	return wallet, nil
}

// SetDefault делает кошелёк кошельком по умолчанию. walletID должен быть UUID.
func (w *Wallets) SetDefault(ctx context.Context, userID int64, walletID string) (*model.Wallet, error) {
	id, err := uuid.Parse(strings.TrimSpace(walletID))
	if err != nil {
		return nil, inputErrorf("Wallet ID must be a UUID.")
	}
	token, ok := w.sessions.Token(userID)
	if !ok {
		return nil, &SessionError{}
	}
	wallet, err := w.backend.SetDefaultWallet(ctx, token, id.String())
	if err != nil {
		return nil, w.fail(userID, classify("set default wallet", err))
	}
	w.logger.Info().Int64("user_id", userID).Str("wallet_id", id.String()).Msg("default wallet changed")
	return wallet, nil
}

func (w *Wallets) WalletsText(wallets []model.Wallet) string {
	return RenderWallets(wallets)
}

func (w *Wallets) DefaultWalletText(wallet *model.Wallet) string {
	return RenderDefaultWallet(wallet)
}

// ErrorText: сообщение пользователю для ошибки Balances или History
func (w *Wallets) ErrorText(err error) string {
	return ErrorMessage(w.assets, err)
}

// BalancesText и HistoryText: готовый текст ответа
func (w *Wallets) BalancesText(wallets []model.WalletBalances) string {
	return RenderBalances(w.assets, wallets)
}

func (w *Wallets) HistoryText(page *model.TransferPage) string {
	return RenderHistory(w.assets, page)
}

// fail сбрасывает отозванную сессию
func (w *Wallets) fail(userID int64, err error) error {
	var sessionErr *SessionError
	if errors.As(err, &sessionErr) {
		w.sessions.Clear(userID)
	}
	w.logger.Warn().Err(err).Int64("user_id", userID).Msg("wallet request failed")
	return err
}
