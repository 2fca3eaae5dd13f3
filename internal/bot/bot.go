package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/ivanoskov/copperx_bot/internal/charts"
	"github.com/ivanoskov/copperx_bot/internal/service"
)

// updateTimeout ограничивает обработку одного обновления вместе со всеми
// вызовами бэкенда
const updateTimeout = 2 * time.Minute

// Sender: часть Telegram API, через которую бот отвечает
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// TokenStore хранит токены доступа пользователей
type TokenStore interface {
	Token(userID int64) (string, bool)
	SetToken(userID int64, token string)
	Clear(userID int64)
}

// Deps: сервисы, которыми пользуется бот
type Deps struct {
	Flows              *service.Controller
	Wallets            *service.Wallets
	Sessions           TokenStore
	Charts             *charts.ChartGenerator
	RateLimitPerMinute int
}

type Bot struct {
	api     Sender
	botAPI  *tgbotapi.BotAPI
	flows   *service.Controller
	wallets *service.Wallets
	tokens  TokenStore
	charts  *charts.ChartGenerator
	limiter *rateLimiter
	logger  zerolog.Logger

	wg sync.WaitGroup
}

// NewBot подключается к Telegram по токену
func NewBot(token string, deps Deps, logger zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}

	b := New(api, deps, logger)
	b.botAPI = api
	logger.Info().Str("username", api.Self.UserName).Msg("authorized on telegram")
	return b, nil
}

// New собирает бота поверх готового Sender
func New(api Sender, deps Deps, logger zerolog.Logger) *Bot {
	chartGen := deps.Charts
	if chartGen == nil {
		chartGen = charts.NewChartGenerator()
	}
	return &Bot{
		api:     api,
		flows:   deps.Flows,
		wallets: deps.Wallets,
		tokens:  deps.Sessions,
		charts:  chartGen,
		limiter: newRateLimiter(deps.RateLimitPerMinute),
		logger:  logger,
	}
}

// Start запускает бота в режиме long polling до отмены ctx. Каждое
// обновление обрабатывается в своей горутине, порядок сообщений одного
// пользователя держит контроллер сценариев.
func (b *Bot) Start(ctx context.Context) error {
	if b.botAPI == nil {
		return errors.New("long polling requires a telegram connection")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.botAPI.GetUpdatesChan(u)
	b.logger.Info().Msg("long polling started")

	for {
		select {
		case <-ctx.Done():
			b.botAPI.StopReceivingUpdates()
			b.wg.Wait()
			return nil
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return nil
			}
			b.wg.Add(1)
			go func(update tgbotapi.Update) {
				defer b.wg.Done()
				b.dispatch(ctx, update)
			}(update)
		}
	}
}

// HandleWebhook: точка входа для обработки входящих webhook-обновлений
func (b *Bot) HandleWebhook(ctx context.Context, body []byte) error {
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return fmt.Errorf("decoding update: %w", err)
	}

	b.dispatch(ctx, update)
	return nil
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), updateTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Str("panic", fmt.Sprint(r)).Int("update_id", update.UpdateID).Msg("update handler panicked")
		}
	}()

	if err := b.handleUpdate(ctx, update); err != nil {
		b.logger.Error().Err(err).Int("update_id", update.UpdateID).Msg("error handling update")
	}
}

func (b *Bot) send(c tgbotapi.Chattable) error {
	if _, err := b.api.Send(c); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// sendReply отправляет ответ контроллера. После завершения сценария
// возвращается основное меню.
func (b *Bot) sendReply(chatID int64, reply service.Reply) error {
	msg := tgbotapi.NewMessage(chatID, reply.Text)
	switch {
	case reply.Final:
		msg.ReplyMarkup = getMainKeyboard()
	case len(reply.Keyboard) > 0:
		msg.ReplyMarkup = getStepKeyboard(reply.Keyboard)
	}
	return b.send(msg)
}

func (b *Bot) sendErrorMessage(chatID int64, text string) error {
	return b.send(tgbotapi.NewMessage(chatID, "❌ "+text))
}
