package model

import (
	"time"
)

// FlowKind: вид многошагового сценария перевода
type FlowKind string

const (
	FlowSend     FlowKind = "send"
	FlowWithdraw FlowKind = "withdraw"
	FlowOfframp  FlowKind = "offramp"
	FlowBatch    FlowKind = "batch"
)

// Step: позиция сценария в его последовательности шагов
type Step string

const (
	StepCurrency     Step = "currency"
	StepAmount       Step = "amount"
	StepDestination  Step = "destination"
	StepWallet       Step = "wallet"
	StepQuote        Step = "quote"
	StepWalletID     Step = "wallet_id"
	StepCustomerName Step = "customer_name"
	StepBusinessName Step = "business_name"
	StepEmail        Step = "email"
	StepCountry      Step = "country"
	StepConfirm      Step = "confirm"

	StepBatchCurrency   Step = "batch_currency"
	StepBatchAmount     Step = "batch_amount"
	StepBatchRecipients Step = "batch_recipients"
	StepBatchConfirm    Step = "batch_confirm"
)

var sequences = map[FlowKind][]Step{
	FlowSend:     {StepCurrency, StepAmount, StepDestination, StepConfirm},
	FlowWithdraw: {StepCurrency, StepAmount, StepWallet, StepConfirm},
	FlowOfframp: {
		StepCurrency, StepAmount, StepQuote, StepWalletID, StepCustomerName,
		StepBusinessName, StepEmail, StepCountry, StepConfirm,
	},
	FlowBatch: {StepBatchCurrency, StepBatchAmount, StepBatchRecipients, StepBatchConfirm},
}

// Sequence возвращает фиксированную последовательность шагов сценария
func Sequence(kind FlowKind) []Step {
	return append([]Step(nil), sequences[kind]...)
}

// StepIndex возвращает позицию шага в сценарии или -1
func StepIndex(kind FlowKind, step Step) int {
	for i, s := range sequences[kind] {
		if s == step {
			return i
		}
	}
	return -1
}

// NextStep возвращает шаг, следующий за текущим. Для последнего шага ok=false.
func NextStep(kind FlowKind, step Step) (Step, bool) {
	seq := sequences[kind]
	i := StepIndex(kind, step)
	if i < 0 || i+1 >= len(seq) {
		return "", false
	}
	return seq[i+1], true
}

// Flow: состояние одного незавершённого сценария пользователя.
// Реализации: *TransferFlow, *OfframpFlow, *BatchFlow.
type Flow interface {
	FlowUserID() int64
	Kind() FlowKind
	CurrentStep() Step
	Touched() time.Time
	Touch(t time.Time)
	Clone() Flow
}

type flowMeta struct {
	UserID    int64
	Step      Step
	UpdatedAt time.Time
}

func (m *flowMeta) FlowUserID() int64     { return m.UserID }
func (m *flowMeta) CurrentStep() Step     { return m.Step }
func (m *flowMeta) Touched() time.Time    { return m.UpdatedAt }
func (m *flowMeta) Touch(t time.Time)     { m.UpdatedAt = t }
func (m *flowMeta) advance(kind FlowKind) { m.Step, _ = NextStep(kind, m.Step) }

// Destination: либо адрес кошелька, либо email получателя
type Destination struct {
	WalletAddress string
	Email         string
}

func (d Destination) String() string {
	if d.Email != "" {
		return d.Email
	}
	return d.WalletAddress
}

func (d Destination) IsZero() bool {
	return d.WalletAddress == "" && d.Email == ""
}

// TransferFlow: отправка (send) или вывод на кошелёк (withdraw)
type TransferFlow struct {
	flowMeta
	FlowKind    FlowKind
	Currency    string
	Amount      string
	Destination Destination
}

func NewTransferFlow(userID int64, kind FlowKind) *TransferFlow {
	return &TransferFlow{
		flowMeta: flowMeta{UserID: userID, Step: StepCurrency},
		FlowKind: kind,
	}
}

func (f *TransferFlow) Kind() FlowKind { return f.FlowKind }
func (f *TransferFlow) Advance()       { f.advance(f.FlowKind) }

func (f *TransferFlow) Clone() Flow {
	c := *f
	return &c
}

// OfframpFlow: конвертация в фиат с выводом на банковский счёт
type OfframpFlow struct {
	flowMeta
	Currency     string
	Amount       string
	Quote        *Quote
	Wallets      []Wallet // варианты для шага wallet_id, если удалось получить
	WalletID     string
	CustomerName string
	BusinessName string
	Email        string
	Country      string
}

func NewOfframpFlow(userID int64) *OfframpFlow {
	return &OfframpFlow{flowMeta: flowMeta{UserID: userID, Step: StepCurrency}}
}

func (f *OfframpFlow) Kind() FlowKind { return FlowOfframp }
func (f *OfframpFlow) Advance()       { f.advance(FlowOfframp) }

func (f *OfframpFlow) Clone() Flow {
	c := *f
	if f.Quote != nil {
		q := *f.Quote
		c.Quote = &q
	}
	c.Wallets = append([]Wallet(nil), f.Wallets...)
	return &c
}

// BatchItem: один получатель пакетного перевода
type BatchItem struct {
	Destination   Destination
	AmountDisplay string
	Currency      string
}

// BatchFlow: пакетный перевод нескольким получателям
type BatchFlow struct {
	flowMeta
	Currency string
	Amount   string
	Items    []BatchItem
}

func NewBatchFlow(userID int64) *BatchFlow {
	return &BatchFlow{flowMeta: flowMeta{UserID: userID, Step: StepBatchCurrency}}
}

func (f *BatchFlow) Kind() FlowKind { return FlowBatch }
func (f *BatchFlow) Advance()       { f.advance(FlowBatch) }

func (f *BatchFlow) Clone() Flow {
	c := *f
	if f.Items != nil {
		c.Items = append([]BatchItem(nil), f.Items...)
	}
	return &c
}
