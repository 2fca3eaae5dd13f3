package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ivanoskov/copperx_bot/internal/model"
	"github.com/ivanoskov/copperx_bot/internal/observability"
	"github.com/ivanoskov/copperx_bot/internal/repository"
	"github.com/ivanoskov/copperx_bot/internal/state"
	"github.com/ivanoskov/copperx_bot/internal/units"
)

const (
	testUser  int64 = 42
	testToken       = "tok"
	testEVM         = "0x1111111111111111111111111111111111111111"
	testEVM2        = "0x2222222222222222222222222222222222222222"
	testUUID        = "123e4567-e89b-12d3-a456-426614174000"
	testUUID2       = "9b2f4c1e-3d5a-4e6b-8c7d-0a1b2c3d4e5f"
)

type fakeBackend struct {
	mu sync.Mutex

	wallets    []model.WalletBalances
	balanceErr error
	walletsErr error
	defaultSet []string

	quoteFn    func(n int) (*model.Quote, error)
	quoteCalls int

	execErr  error
	panicMsg string

	sends     []model.TransferRequest
	withdraws []model.WalletWithdrawRequest
	offramps  []model.OfframpRequest
	batches   [][]model.BatchTransferRequest
	batchFn   func(reqs []model.BatchTransferRequest) []model.BatchTransferResponse

	page     *model.TransferPage
	listArgs []model.TransferListParams
}

func newFakeBackend(usdc string) *fakeBackend {
	return &fakeBackend{
		wallets: []model.WalletBalances{{
			WalletID:  "w1",
			IsDefault: true,
			Network:   "polygon",
			Balances:  []model.TokenBalance{{Symbol: "USDC", Balance: usdc}},
		}},
		quoteFn: func(n int) (*model.Quote, error) {
			return &model.Quote{
				DestinationAmount:   "99.5",
				DestinationCurrency: "USD",
				Rate:                "0.995",
				Payload:             "payload-" + strings.Repeat("x", n),
				Signature:           "sig",
			}, nil
		},
	}
}

func (b *fakeBackend) mutations() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sends) + len(b.withdraws) + len(b.offramps) + len(b.batches)
}

func (b *fakeBackend) GetBalances(ctx context.Context, token string) ([]model.WalletBalances, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.balanceErr != nil {
		return nil, b.balanceErr
	}
	return b.wallets, nil
}

func (b *fakeBackend) ListWallets(ctx context.Context, token string) ([]model.Wallet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.walletsErr != nil {
		return nil, b.walletsErr
	}
	out := make([]model.Wallet, 0, len(b.wallets))
	for _, w := range b.wallets {
		out = append(out, model.Wallet{ID: w.WalletID, Network: w.Network, IsDefault: w.IsDefault})
	}
	return out, nil
}

func (b *fakeBackend) GetDefaultWallet(ctx context.Context, token string) (*model.Wallet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.walletsErr != nil {
		return nil, b.walletsErr
	}
	for _, w := range b.wallets {
		if w.IsDefault {
			return &model.Wallet{ID: w.WalletID, Network: w.Network, IsDefault: true}, nil
		}
	}
	return nil, &repository.APIError{StatusCode: 404, Message: "no default wallet"}
}

func (b *fakeBackend) SetDefaultWallet(ctx context.Context, token, walletID string) (*model.Wallet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.walletsErr != nil {
		return nil, b.walletsErr
	}
	b.defaultSet = append(b.defaultSet, walletID)
	var found *model.Wallet
	for i := range b.wallets {
		b.wallets[i].IsDefault = b.wallets[i].WalletID == walletID
		if b.wallets[i].IsDefault {
			found = &model.Wallet{ID: walletID, Network: b.wallets[i].Network, IsDefault: true}
		}
	}
	if found == nil {
		return nil, &repository.APIError{StatusCode: 404, Message: "wallet not found"}
	}
	return found, nil
}

func (b *fakeBackend) RequestOfframpQuote(ctx context.Context, token string, req model.QuoteRequest) (*model.Quote, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quoteCalls++
	return b.quoteFn(b.quoteCalls)
}

func (b *fakeBackend) SendTransfer(ctx context.Context, token string, req model.TransferRequest) (*model.Transfer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.panicMsg != "" {
		panic(b.panicMsg)
	}
	b.sends = append(b.sends, req)
	if b.execErr != nil {
		return nil, b.execErr
	}
	return &model.Transfer{ID: "tr-send", Status: "pending", Amount: req.Amount, Currency: req.Currency}, nil
}

func (b *fakeBackend) WithdrawToWallet(ctx context.Context, token string, req model.WalletWithdrawRequest) (*model.Transfer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.withdraws = append(b.withdraws, req)
	if b.execErr != nil {
		return nil, b.execErr
	}
	return &model.Transfer{ID: "tr-withdraw", Status: "pending", Amount: req.Amount, Currency: req.Currency}, nil
}

func (b *fakeBackend) CreateOfframp(ctx context.Context, token string, req model.OfframpRequest) (*model.Transfer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.offramps = append(b.offramps, req)
	if b.execErr != nil {
		return nil, b.execErr
	}
	return &model.Transfer{ID: "tr-offramp", Status: "initiated"}, nil
}

func (b *fakeBackend) SendBatch(ctx context.Context, token string, reqs []model.BatchTransferRequest) ([]model.BatchTransferResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batches = append(b.batches, reqs)
	if b.execErr != nil {
		return nil, b.execErr
	}
	if b.batchFn != nil {
		return b.batchFn(reqs), nil
	}
	out := make([]model.BatchTransferResponse, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, model.BatchTransferResponse{RequestID: r.RequestID, Request: r.Request, Response: &model.Transfer{ID: "t-" + r.RequestID}})
	}
	return out, nil
}

func (b *fakeBackend) ListTransfers(ctx context.Context, token string, params model.TransferListParams) (*model.TransferPage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listArgs = append(b.listArgs, params)
	if b.page == nil {
		return &model.TransferPage{}, nil
	}
	return b.page, nil
}

type fakeSessions struct {
	mu     sync.Mutex
	tokens map[int64]string
}

func newFakeSessions(ids ...int64) *fakeSessions {
	s := &fakeSessions{tokens: make(map[int64]string)}
	for _, id := range ids {
		s.tokens[id] = testToken
	}
	return s
}

func (s *fakeSessions) Token(userID int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[userID]
	return t, ok
}

func (s *fakeSessions) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, userID)
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []string
}

func (j *fakeJournal) Record(ctx context.Context, entry *repository.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry.Kind+":"+entry.Outcome)
	return nil
}

type testEnv struct {
	backend  *fakeBackend
	sessions *fakeSessions
	store    *state.Store
	journal  *fakeJournal
	ctrl     *Controller
	clock    *time.Time
}

func newTestEnv(t *testing.T, backend *fakeBackend) *testEnv {
	t.Helper()

	assets, err := units.NewRegistry(units.DefaultAssets())
	require.NoError(t, err)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	env := &testEnv{
		backend:  backend,
		sessions: newFakeSessions(testUser),
		store:    state.New(0, 0),
		journal:  &fakeJournal{},
		clock:    &now,
	}
	t.Cleanup(env.store.Close)

	logger := zerolog.Nop()
	balances := NewBalanceVerifier(backend, assets, logger)
	quotes := NewQuoteManager(backend, assets, "USD")
	quotes.now = func() time.Time { return *env.clock }
	executor := NewExecutor(backend, balances, assets, env.journal, logger)

	env.ctrl = NewController(env.store, env.sessions, backend, assets, quotes, executor, observability.NewMetrics(nil), logger, 5)
	return env
}

// feed отправляет сообщения по очереди и возвращает последний ответ
func (e *testEnv) feed(t *testing.T, inputs ...string) Reply {
	t.Helper()
	var reply Reply
	for _, in := range inputs {
		var ok bool
		reply, ok = e.ctrl.Handle(context.Background(), testUser, in)
		require.True(t, ok, "no active flow for input %q", in)
	}
	return reply
}

func (e *testEnv) step(t *testing.T) model.Step {
	t.Helper()
	f, ok := e.store.Get(testUser)
	require.True(t, ok)
	return f.CurrentStep()
}
