package charts

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/ivanoskov/copperx_bot/internal/model"
)

// ChartGenerator рисует графики по балансам кошельков
type ChartGenerator struct{}

func NewChartGenerator() *ChartGenerator {
	return &ChartGenerator{}
}

var palette = []drawing.Color{
	{R: 39, G: 117, B: 202, A: 255},
	{R: 38, G: 161, B: 123, A: 255},
	{R: 242, G: 169, B: 0, A: 255},
	{R: 214, G: 69, B: 65, A: 255},
	{R: 142, G: 68, B: 173, A: 255},
}

// totals суммирует отображаемые балансы по символу токена во всех кошельках
func totals(wallets []model.WalletBalances) (map[string]float64, []string) {
	sums := make(map[string]decimal.Decimal)
	for _, w := range wallets {
		for _, b := range w.Balances {
			v, err := decimal.NewFromString(b.Balance)
			if err != nil {
				continue
			}
			symbol := strings.ToUpper(b.Symbol)
			sums[symbol] = sums[symbol].Add(v)
		}
	}

	out := make(map[string]float64, len(sums))
	symbols := make([]string, 0, len(sums))
	for s, v := range sums {
		if !v.IsPositive() {
			continue
		}
		out[s] = v.InexactFloat64()
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return out, symbols
}

// GenerateBalanceChart: столбчатая диаграмма баланса по валютам.
// Если положительных балансов нет, возвращает nil.
func (g *ChartGenerator) GenerateBalanceChart(wallets []model.WalletBalances) ([]byte, error) {
	sums, symbols := totals(wallets)
	if len(symbols) == 0 {
		return nil, nil
	}

	bars := make([]chart.Value, 0, len(symbols))
	for i, s := range symbols {
		bars = append(bars, chart.Value{
			Label: fmt.Sprintf("%s: %.2f", s, sums[s]),
			Value: sums[s],
			Style: chart.Style{
				FillColor:   palette[i%len(palette)],
				StrokeColor: palette[i%len(palette)],
			},
		})
	}

	top := 0.0
	for _, v := range sums {
		top = math.Max(top, v)
	}

	graph := chart.BarChart{
		Title:  "Wallet balances",
		Width:  800,
		Height: 500,
		Background: chart.Style{
			Padding: chart.Box{Top: 60, Left: 20, Right: 20, Bottom: 20},
		},
		BarWidth: 120,
		YAxis: chart.YAxis{
			// шкала от нуля, иначе один столбец даёт нулевой диапазон
			Range: &chart.ContinuousRange{Min: 0, Max: top * 1.1},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%.2f", v.(float64))
			},
		},
		Bars: bars,
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("failed to render balance chart: %w", err)
	}
	return buffer.Bytes(), nil
}

// GenerateWalletShareChart: круговая диаграмма распределения средств по
// кошелькам. Если средств нет, возвращает nil.
func (g *ChartGenerator) GenerateWalletShareChart(wallets []model.WalletBalances) ([]byte, error) {
	values := make([]chart.Value, 0, len(wallets))
	for i, w := range wallets {
		sums, _ := totals([]model.WalletBalances{w})
		total := 0.0
		for _, v := range sums {
			total += v
		}
		if total <= 0 {
			continue
		}

		label := w.Network
		if label == "" {
			label = w.WalletID
		}
		if w.IsDefault {
			label += " (default)"
		}
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s: %.2f", label, total),
			Value: total,
			Style: chart.Style{FillColor: palette[i%len(palette)]},
		})
	}
	if len(values) == 0 {
		return nil, nil
	}

	pie := chart.PieChart{
		Title:  "Funds by wallet",
		Width:  600,
		Height: 600,
		Values: values,
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := pie.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("failed to render wallet share chart: %w", err)
	}
	return buffer.Bytes(), nil
}
