// 文件: pkg/market/signal.go
// 仿真用的简单动量信号
//
// 中间价高于 lookback 个周期前 → 买，低于 → 卖，持平或历史不足 → 不出信号

package market

import "github.com/shopspring/decimal"

// Momentum 逐周期计算动量信号
type Momentum struct {
	lookback int
	history  map[string][]decimal.Decimal
}

// NewMomentum lookback<=0 时按 1 处理
func NewMomentum(lookback int) *Momentum {
	if lookback <= 0 {
		lookback = 1
	}
	return &Momentum{
		lookback: lookback,
		history:  make(map[string][]decimal.Decimal),
	}
}

// Next 喂入一根 K 线，返回同一时间戳的信号批次
func (m *Momentum) Next(bar TickBatch) SignalBatch {
	out := SignalBatch{Timestamp: bar.Timestamp, Signals: make(map[string]Signal, len(bar.Ticks))}
	for _, asset := range bar.Assets() {
		mid := bar.Ticks[asset].Mid()
		h := append(m.history[asset], mid)
		if len(h) > m.lookback+1 {
			h = h[len(h)-m.lookback-1:]
		}
		m.history[asset] = h

		if len(h) <= m.lookback {
			continue
		}
		switch mid.Cmp(h[0]) {
		case 1:
			out.Signals[asset] = SignalBuy
		case -1:
			out.Signals[asset] = SignalSell
		}
	}
	return out
}

// MomentumSignals 对整段 K 线批量计算信号
func MomentumSignals(bars []TickBatch, lookback int) []SignalBatch {
	m := NewMomentum(lookback)
	out := make([]SignalBatch, 0, len(bars))
	for _, bar := range bars {
		out = append(out, m.Next(bar))
	}
	return out
}
