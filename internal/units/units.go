package units

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrInvalidAmount       = errors.New("invalid amount")
)

// Сети и форматы адресов в них
const (
	NetworkEVM    = "evm"
	NetworkSolana = "solana"
)

// amountPattern: ввод пользователя только в обычной записи, без экспоненты.
// Длина ограничена, чтобы разбор и округление оставались дешёвыми.
var amountPattern = regexp.MustCompile(`^\d{1,20}(\.\d{1,18})?$`)

var addressPatterns = map[string]*regexp.Regexp{
	NetworkEVM:    regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`),
	NetworkSolana: regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`),
}

// Asset описывает поддерживаемую валюту и её точность в базовых единицах
type Asset struct {
	Code     string
	Decimals int32
	Network  string
}

// ValidAddress проверяет адрес кошелька по формату сети актива
func (a Asset) ValidAddress(address string) bool {
	pattern, ok := addressPatterns[a.Network]
	if !ok {
		return false
	}
	return pattern.MatchString(address)
}

// DefaultAssets: активы, которые платформа поддерживает полностью
func DefaultAssets() []Asset {
	return []Asset{
		{Code: "USDC", Decimals: 9, Network: NetworkEVM},
		{Code: "USDT", Decimals: 6, Network: NetworkEVM},
	}
}

// Registry хранит таблицу активов. После создания не меняется.
type Registry struct {
	assets map[string]Asset
}

func NewRegistry(assets []Asset) (*Registry, error) {
	r := &Registry{assets: make(map[string]Asset, len(assets))}
	for _, a := range assets {
		code := strings.ToUpper(strings.TrimSpace(a.Code))
		if code == "" {
			return nil, fmt.Errorf("asset code is empty")
		}
		if a.Decimals < 0 || a.Decimals > 18 {
			return nil, fmt.Errorf("asset %s: decimals %d out of range", code, a.Decimals)
		}
		if _, ok := addressPatterns[a.Network]; !ok {
			return nil, fmt.Errorf("asset %s: unknown network %q", code, a.Network)
		}
		a.Code = code
		r.assets[code] = a
	}
	if len(r.assets) == 0 {
		return nil, fmt.Errorf("no assets configured")
	}
	return r, nil
}

// Lookup ищет актив по коду без учёта регистра
func (r *Registry) Lookup(currency string) (Asset, bool) {
	a, ok := r.assets[strings.ToUpper(strings.TrimSpace(currency))]
	return a, ok
}

// Codes возвращает отсортированный список кодов валют
func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.assets))
	for code := range r.assets {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// ParseDisplay разбирает сумму, введённую пользователем. Сумма должна быть
// строго положительной и не точнее, чем позволяет актив.
func (r *Registry) ParseDisplay(amount, currency string) (decimal.Decimal, error) {
	asset, ok := r.Lookup(currency)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}
	amount = strings.TrimSpace(amount)
	if !amountPattern.MatchString(amount) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if !d.Round(asset.Decimals).Equal(d) {
		return decimal.Zero, fmt.Errorf("%w: at most %d decimal places for %s", ErrInvalidAmount, asset.Decimals, asset.Code)
	}
	return d, nil
}

// ToBaseUnit = round(display * 10^decimals), целое число строкой
func (r *Registry) ToBaseUnit(display, currency string) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(display))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, display)
	}
	base, err := r.ToBase(d, currency)
	if err != nil {
		return "", err
	}
	return base.String(), nil
}

// ToBase: то же, что ToBaseUnit, но для уже разобранного значения
func (r *Registry) ToBase(display decimal.Decimal, currency string) (decimal.Decimal, error) {
	asset, ok := r.Lookup(currency)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}
	return display.Shift(asset.Decimals).Round(0), nil
}

// FromBaseUnit = base / 10^decimals
func (r *Registry) FromBaseUnit(base, currency string) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, base)
	}
	display, err := r.FromBase(d, currency)
	if err != nil {
		return "", err
	}
	return display.String(), nil
}

func (r *Registry) FromBase(base decimal.Decimal, currency string) (decimal.Decimal, error) {
	asset, ok := r.Lookup(currency)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}
	return base.Shift(-asset.Decimals), nil
}
