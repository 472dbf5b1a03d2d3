// 文件: pkg/position/ledger.go
// 持仓账本: 资产 → Position
//
// 两种写入方式:
// - UpdatePosition: 直接修改 (先改账本再做准入检查的旧流程)
// - Preview + Commit: 在副本上试算，准入通过后才替换账本中的持仓

package position

import (
	"sort"

	"github.com/shopspring/decimal"

	"max.com/portfolio/pkg/market"
	"max.com/portfolio/pkg/transaction"
)

// Effect 一笔成交对持仓的试算结果
type Effect struct {
	Position   *Position       // 已应用成交的持仓副本
	Profit     decimal.Decimal // 实现盈亏
	Liquidated int64           // 平仓数量
	Opened     int64           // 保证金口径的开仓数 = qty - 2*liquidated
}

// Ledger 持仓账本
// 非并发安全，由 PortfolioController 独占。
type Ledger struct {
	positions map[string]*Position
}

func NewLedger() *Ledger {
	return &Ledger{positions: make(map[string]*Position)}
}

// GetOrCreate 取持仓，不存在则创建空持仓
func (l *Ledger) GetOrCreate(asset string) *Position {
	p, ok := l.positions[asset]
	if !ok {
		p = New(asset)
		l.positions[asset] = p
	}
	return p
}

// Get 只读查询，不创建
func (l *Ledger) Get(asset string) (*Position, bool) {
	p, ok := l.positions[asset]
	return p, ok
}

// OpenedContracts 保证金口径的开仓数
//
// 每平掉 1 手，同时释放被平仓位和本次成交两边的保证金，所以是 qty - 2*liquidated。
// 完全平仓的成交会得到负数 (保证金释放)。这不是实际敞口数量。
func OpenedContracts(qty, liquidated int64) int64 {
	return qty - 2*liquidated
}

// UpdatePosition 直接修改账本中的持仓
func (l *Ledger) UpdatePosition(tx transaction.Transaction) (decimal.Decimal, int64) {
	p := l.GetOrCreate(tx.Asset)
	profit, liquidated := p.Update(tx)
	return profit, OpenedContracts(tx.Quantity, liquidated)
}

// Preview 在副本上试算成交，不修改账本
func (l *Ledger) Preview(tx transaction.Transaction) Effect {
	var candidate *Position
	if p, ok := l.positions[tx.Asset]; ok {
		candidate = p.Clone()
	} else {
		candidate = New(tx.Asset)
	}

	profit, liquidated := candidate.Update(tx)
	return Effect{
		Position:   candidate,
		Profit:     profit,
		Liquidated: liquidated,
		Opened:     OpenedContracts(tx.Quantity, liquidated),
	}
}

// Commit 用试算结果替换账本中的持仓
func (l *Ledger) Commit(e Effect) {
	l.positions[e.Position.Asset] = e.Position
}

// =============================================================================
// 汇总与敞口
// =============================================================================

// Assets 按字母序返回所有出现过的资产
func (l *Ledger) Assets() []string {
	assets := make([]string, 0, len(l.positions))
	for a := range l.positions {
		assets = append(assets, a)
	}
	sort.Strings(assets)
	return assets
}

// Summary 资产 → {方向, 净数量, 已实现盈亏}
func (l *Ledger) Summary() map[string]Summary {
	out := make(map[string]Summary, len(l.positions))
	for a, p := range l.positions {
		out[a] = p.Summary()
	}
	return out
}

// Exposure 某资产某方向上的当前敞口，方向不一致为 0
func (l *Ledger) Exposure(asset string, dir market.Direction) int64 {
	p, ok := l.positions[asset]
	if !ok {
		return 0
	}
	s := p.Summary()
	if s.Direction != dir {
		return 0
	}
	return s.Quantity
}

// AggregateExposure 所有资产净持仓绝对值之和
func (l *Ledger) AggregateExposure() int64 {
	var total int64
	for _, p := range l.positions {
		total += abs(p.Net())
	}
	return total
}

// NetPositions 资产 → 带符号净持仓 (不含 0)
func (l *Ledger) NetPositions() map[string]int64 {
	out := make(map[string]int64)
	for a, p := range l.positions {
		if n := p.Net(); n != 0 {
			out[a] = n
		}
	}
	return out
}

// RealizedPnL 全部资产累计已实现盈亏
func (l *Ledger) RealizedPnL() decimal.Decimal {
	total := decimal.Zero
	for _, p := range l.positions {
		total = total.Add(p.RealizedPnL())
	}
	return total
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
