package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/ivanoskov/copperx_bot/internal/bot"
	"github.com/ivanoskov/copperx_bot/internal/charts"
	"github.com/ivanoskov/copperx_bot/internal/config"
	"github.com/ivanoskov/copperx_bot/internal/model"
	"github.com/ivanoskov/copperx_bot/internal/observability"
	"github.com/ivanoskov/copperx_bot/internal/repository"
	"github.com/ivanoskov/copperx_bot/internal/service"
	"github.com/ivanoskov/copperx_bot/internal/session"
	"github.com/ivanoskov/copperx_bot/internal/state"
)

const banner = `
   ___                              __  __
  / __\___  _ __  _ __   ___ _ __ \ \/ /
 / /  / _ \| '_ \| '_ \ / _ \ '__| \  /
/ /__| (_) | |_) | |_) |  __/ |    /  \
\____/\___/| .__/| .__/ \___|_|   /_/\_\
           |_|   |_|
`

// App: собранный бот со всеми зависимостями
type App struct {
	Config  *config.Config
	Bot     *bot.Bot
	Metrics *observability.Metrics
	Logger  zerolog.Logger

	store *state.Store
}

// PrintBanner выводит заставку и основные параметры запуска
func PrintBanner(cfg *config.Config, mode string) {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()

	green.Print("    ▶ ")
	fmt.Printf("Mode:      %s\n", mode)
	green.Print("    ▶ ")
	fmt.Printf("Backend:   %s\n", cfg.APIBaseURL)
	green.Print("    ▶ ")
	fmt.Printf("Metrics:   %s\n", cfg.MetricsAddr)
	green.Print("    ▶ ")
	fmt.Print("Journal:   ")
	if cfg.JournalEnabled() {
		fmt.Println("supabase")
	} else {
		yellow.Println("disabled")
	}
	fmt.Println()
}

// Build собирает зависимости и подключается к Telegram
func Build(cfg *config.Config) (*App, error) {
	logger := observability.NewLoggerWithLevel(os.Stdout, "bot", observability.ParseLogLevel(cfg.LogLevel))

	assets, err := cfg.Registry()
	if err != nil {
		return nil, err
	}

	var metrics *observability.Metrics
	store := state.New(cfg.FlowIdleTimeout, time.Minute, state.WithEvictHook(func(flow model.Flow) {
		metrics.FlowEvicted()
		logger.Info().Str("kind", string(flow.Kind())).Msg("idle flow evicted")
	}))
	metrics = observability.NewMetrics(func() float64 { return float64(store.Len()) })

	var journal service.Journal = repository.NopJournal{}
	if cfg.JournalEnabled() {
		j, err := repository.NewSupabaseJournal(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			store.Close()
			return nil, err
		}
		journal = j
	}

	backend := repository.NewHTTPBackend(cfg.APIBaseURL, cfg.APITimeout, metrics, logger)
	sessions := session.NewMemory(0)

	balances := service.NewBalanceVerifier(backend, assets, logger)
	quotes := service.NewQuoteManager(backend, assets, cfg.OfframpCurrency)
	executor := service.NewExecutor(backend, balances, assets, journal, logger)
	flows := service.NewController(store, sessions, backend, assets, quotes, executor, metrics, logger, cfg.BatchMaxItems)
	wallets := service.NewWallets(backend, sessions, assets, logger)

	b, err := bot.NewBot(cfg.TelegramToken, bot.Deps{
		Flows:              flows,
		Wallets:            wallets,
		Sessions:           sessions,
		Charts:             charts.NewChartGenerator(),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &App{
		Config:  cfg,
		Bot:     b,
		Metrics: metrics,
		Logger:  logger,
		store:   store,
	}, nil
}

// ServeMetrics отдаёт /metrics на MetricsAddr до отмены ctx
func (a *App) ServeMetrics(ctx context.Context) {
	if a.Config.MetricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.Handler())
	srv := &http.Server{Addr: a.Config.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func (a *App) Close() {
	a.store.Close()
}
