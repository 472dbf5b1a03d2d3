// 文件: pkg/market/tick.go
// 单周期行情与信号批次
//
// 每个周期 (period) 外部输入两份数据:
// - TickBatch:   资产 → {high, low, volume}
// - SignalBatch: 资产 → {-1, 0, +1}

package market

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Tick 单个资产在一个周期内的行情
type Tick struct {
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Volume int64           `json:"volume"` // 周期内成交量
}

// Contains 价格是否落在 [Low, High] 区间内 (含边界)
func (t Tick) Contains(price decimal.Decimal) bool {
	return price.GreaterThanOrEqual(t.Low) && price.LessThanOrEqual(t.High)
}

// Mid 中间价，用作盯市价格
func (t Tick) Mid() decimal.Decimal {
	return t.High.Add(t.Low).Div(decimal.NewFromInt(2))
}

// TickBatch 一个周期所有资产的行情
type TickBatch struct {
	Timestamp time.Time       `json:"timestamp"`
	Ticks     map[string]Tick `json:"ticks"`
}

// Tick 按资产取行情
func (b TickBatch) Tick(asset string) (Tick, bool) {
	t, ok := b.Ticks[asset]
	return t, ok
}

// Assets 按字母序返回资产列表，保证遍历顺序稳定
func (b TickBatch) Assets() []string {
	return sortedKeys(b.Ticks)
}

// SignalBatch 一个周期所有资产的信号
type SignalBatch struct {
	Timestamp time.Time         `json:"timestamp"`
	Signals   map[string]Signal `json:"signals"`
}

// Assets 按字母序返回资产列表
func (b SignalBatch) Assets() []string {
	return sortedKeys(b.Signals)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
