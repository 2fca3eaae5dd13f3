package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ivanoskov/copperx_bot/internal/model"
	"github.com/ivanoskov/copperx_bot/internal/observability"
	"github.com/ivanoskov/copperx_bot/internal/units"
)

// DefaultBatchMaxItems: сколько получателей можно добавить в один пакет
const DefaultBatchMaxItems = 50

// Reply: ответ пользователю на одно входящее сообщение
type Reply struct {
	Text     string
	Keyboard [][]string
	// Final: сценарий завершён, транспорт может вернуть основное меню
	Final bool
}

// FlowStore: хранилище незавершённых сценариев
type FlowStore interface {
	Get(userID int64) (model.Flow, bool)
	Set(userID int64, flow model.Flow)
	Clear(userID int64)
	Lock(userID int64) func()
}

// Controller ведёт многошаговые сценарии перевода: хранит позицию
// пользователя, проверяет ввод каждого шага и на последнем шаге
// передаёт запрос исполнителю
type Controller struct {
	store    FlowStore
	sessions Sessions
	backend  Backend
	assets   *units.Registry
	quotes   *QuoteManager
	executor *Executor
	metrics  *observability.Metrics
	logger   zerolog.Logger
	batchMax int
}

func NewController(
	store FlowStore,
	sessions Sessions,
	backend Backend,
	assets *units.Registry,
	quotes *QuoteManager,
	executor *Executor,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	batchMax int,
) *Controller {
	if batchMax <= 0 {
		batchMax = DefaultBatchMaxItems
	}
	return &Controller{
		store:    store,
		sessions: sessions,
		backend:  backend,
		assets:   assets,
		quotes:   quotes,
		executor: executor,
		metrics:  metrics,
		logger:   logger,
		batchMax: batchMax,
	}
}

// outcome: результат обработки шага
type outcome struct {
	reply Reply
	// done: сценарий закончен, состояние удаляется
	done bool
}

// Start начинает новый сценарий. Незавершённый сценарий того же
// пользователя при этом отбрасывается.
func (c *Controller) Start(ctx context.Context, userID int64, kind model.FlowKind) Reply {
	unlock := c.store.Lock(userID)
	defer unlock()

	if prev, ok := c.store.Get(userID); ok {
		c.store.Clear(userID)
		c.metrics.FlowFinished(string(prev.Kind()), "replaced")
	}

	if _, ok := c.sessions.Token(userID); !ok {
		return Reply{Text: msgNoSession, Final: true}
	}

	var flow model.Flow
	switch kind {
	case model.FlowSend, model.FlowWithdraw:
		flow = model.NewTransferFlow(userID, kind)
	case model.FlowOfframp:
		flow = model.NewOfframpFlow(userID)
	case model.FlowBatch:
		flow = model.NewBatchFlow(userID)
	default:
		c.logger.Error().Str("kind", string(kind)).Msg("unknown flow kind")
		return Reply{Text: "❌ " + msgGenericFailure, Final: true}
	}

	c.store.Set(userID, flow)
	c.metrics.FlowStarted(string(kind))
	c.logger.Info().Int64("user_id", userID).Str("kind", string(kind)).Msg("flow started")

	return c.prompt(flow)
}

// Active: есть ли у пользователя незавершённый сценарий
func (c *Controller) Active(userID int64) bool {
	_, ok := c.store.Get(userID)
	return ok
}

// Cancel прерывает сценарий пользователя. ok=false, если сценария не было.
func (c *Controller) Cancel(userID int64) (Reply, bool) {
	unlock := c.store.Lock(userID)
	defer unlock()

	flow, ok := c.store.Get(userID)
	if !ok {
		return Reply{}, false
	}
	return c.cancel(flow), true
}

func (c *Controller) cancel(flow model.Flow) Reply {
	c.store.Clear(flow.FlowUserID())
	c.metrics.FlowFinished(string(flow.Kind()), "cancelled")
	c.logger.Info().Int64("user_id", flow.FlowUserID()).Str("kind", string(flow.Kind())).
		Str("step", string(flow.CurrentStep())).Msg("flow cancelled")
	return Reply{Text: msgCancelled, Final: true}
}

// Handle обрабатывает сообщение пользователя в рамках текущего сценария.
// ok=false, если сценария нет и сообщение сервису не адресовано.
// Сообщения одного пользователя обрабатываются строго по очереди.
func (c *Controller) Handle(ctx context.Context, userID int64, text string) (Reply, bool) {
	unlock := c.store.Lock(userID)
	defer unlock()

	flow, ok := c.store.Get(userID)
	if !ok {
		return Reply{}, false
	}

	text = strings.TrimSpace(text)
	if strings.EqualFold(text, "cancel") {
		return c.cancel(flow), true
	}

	token, ok := c.sessions.Token(userID)
	if !ok {
		return c.abort(flow, &SessionError{}), true
	}

	out, err := c.runStep(ctx, token, flow, text)
	if err != nil {
		var inputErr *InputError
		if errors.As(err, &inputErr) {
			c.metrics.StepRejected(string(flow.Kind()), string(flow.CurrentStep()))
			reprompt := c.prompt(flow)
			reprompt.Text = "❌ " + inputErr.Reason + "\n\n" + reprompt.Text
			return reprompt, true
		}
		return c.abort(flow, err), true
	}

	if out.done {
		c.store.Clear(userID)
		c.metrics.FlowFinished(string(flow.Kind()), OutcomeExecuted)
		c.logger.Info().Int64("user_id", userID).Str("kind", string(flow.Kind())).Msg("flow executed")
		out.reply.Final = true
		return out.reply, true
	}

	c.store.Set(userID, flow)
	return out.reply, true
}

// abort удаляет состояние и формирует сообщение об ошибке
func (c *Controller) abort(flow model.Flow, err error) Reply {
	userID := flow.FlowUserID()
	c.store.Clear(userID)

	var sessionErr *SessionError
	if errors.As(err, &sessionErr) {
		c.sessions.Clear(userID)
	}

	c.metrics.FlowFinished(string(flow.Kind()), OutcomeFailed)
	c.logger.Warn().Err(err).Int64("user_id", userID).Str("kind", string(flow.Kind())).
		Str("step", string(flow.CurrentStep())).Msg("flow aborted")

	return Reply{Text: ErrorMessage(c.assets, err), Final: true}
}

// runStep выполняет шаг над копией состояния. Паника внутри шага
// превращается в ошибку и прерывает сценарий.
func (c *Controller) runStep(ctx context.Context, token string, flow model.Flow, text string) (out outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Str("panic", fmt.Sprint(r)).Str("stack", string(debug.Stack())).
				Int64("user_id", flow.FlowUserID()).Msg("flow step panicked")
			err = fmt.Errorf("step %s panicked: %v", flow.CurrentStep(), r)
		}
	}()

	switch f := flow.(type) {
	case *model.TransferFlow:
		return c.stepTransfer(ctx, token, f, text)
	case *model.OfframpFlow:
		return c.stepOfframp(ctx, token, f, text)
	case *model.BatchFlow:
		return c.stepBatch(ctx, token, f, text)
	}
	return outcome{}, fmt.Errorf("unknown flow type %T", flow)
}
