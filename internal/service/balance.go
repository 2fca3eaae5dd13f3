package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ivanoskov/copperx_bot/internal/model"
	"github.com/ivanoskov/copperx_bot/internal/units"
)

// BalanceVerifier проверяет достаточность средств перед каждым
// перемещением денег. Проверка: чтение на момент вызова, без блокировки.
type BalanceVerifier struct {
	backend Backend
	assets  *units.Registry
	now     func() time.Time
	logger  zerolog.Logger
}

func NewBalanceVerifier(backend Backend, assets *units.Registry, logger zerolog.Logger) *BalanceVerifier {
	return &BalanceVerifier{
		backend: backend,
		assets:  assets,
		now:     time.Now,
		logger:  logger,
	}
}

// Snapshot запрашивает свежие балансы. Если у пользователя есть кошелёк по
// умолчанию, учитывается только он, иначе балансы суммируются.
func (v *BalanceVerifier) Snapshot(ctx context.Context, token string) (model.BalanceSnapshot, error) {
	wallets, err := v.backend.GetBalances(ctx, token)
	if err != nil {
		return model.BalanceSnapshot{}, classify("get balances", err)
	}

	selected := wallets
	for _, w := range wallets {
		if w.IsDefault {
			selected = []model.WalletBalances{w}
			break
		}
	}

	snap := model.BalanceSnapshot{
		Available: make(map[string]decimal.Decimal),
		FetchedAt: v.now(),
	}
	for _, w := range selected {
		for _, b := range w.Balances {
			code := strings.ToUpper(b.Symbol)
			if _, ok := v.assets.Lookup(code); !ok {
				continue
			}
			display, err := decimal.NewFromString(b.Balance)
			if err != nil {
				return model.BalanceSnapshot{}, fmt.Errorf("parsing %s balance %q: %w", code, b.Balance, err)
			}
			base, err := v.assets.ToBase(display, code)
			if err != nil {
				return model.BalanceSnapshot{}, err
			}
			snap.Available[code] = snap.Get(code).Add(base)
		}
	}
	return snap, nil
}

// Require проверяет, что на каждую валюту хватает средств. need: суммы в
// базовых единицах. Ошибка получения баланса считается нехваткой средств.
func (v *BalanceVerifier) Require(ctx context.Context, token string, need map[string]decimal.Decimal) error {
	snap, err := v.Snapshot(ctx, token)
	if err != nil {
		var sessErr *SessionError
		if errors.As(err, &sessErr) {
			return err
		}
		v.logger.Warn().Err(err).Msg("balance fetch failed, treating as insufficient")
		return &BalanceError{Unknown: true, Cause: err}
	}

	currencies := make([]string, 0, len(need))
	for c := range need {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)

	for _, c := range currencies {
		available := snap.Get(c)
		if need[c].GreaterThan(available) {
			return &BalanceError{Currency: c, Required: need[c], Available: available}
		}
	}
	return nil
}
