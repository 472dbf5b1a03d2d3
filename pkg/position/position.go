// 文件: pkg/position/position.go
// 单资产持仓: 分批 (lot) 记账 + 价格优先平仓
//
// 【排序约定】
//   shorts: 按价格升序，队尾是开仓价最高的空单
//   longs:  按价格降序，队尾是开仓价最低的多单
// 平仓总是从对手方向的队尾开始，即先平掉最不利的那一批。
// 平仓只改数量不改价格，所以部分平仓后放回队尾不需要重新排序。

package position

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"max.com/portfolio/pkg/market"
	"max.com/portfolio/pkg/transaction"
)

// Lot 一批同价持仓
type Lot struct {
	EntryPrice decimal.Decimal `json:"entry_price"`
	Quantity   int64           `json:"quantity"`
}

// Position 单资产持仓
type Position struct {
	Asset string

	shorts   []Lot
	longs    []Lot
	realized decimal.Decimal // 累计已实现盈亏
}

func New(asset string) *Position {
	return &Position{Asset: asset}
}

func (p *Position) side(dir market.Direction) *[]Lot {
	if dir == market.Short {
		return &p.shorts
	}
	return &p.longs
}

// Liquidate 用成交平掉对手方向持仓
// 返回本次实现盈亏与平仓数量
func (p *Position) Liquidate(tx transaction.Transaction) (decimal.Decimal, int64) {
	opposite := p.side(tx.Direction.Opposite())
	profit := decimal.Zero
	var liquidated int64

	for liquidated < tx.Quantity && len(*opposite) > 0 {
		last := len(*opposite) - 1
		lot := (*opposite)[last]
		*opposite = (*opposite)[:last]

		match := min(lot.Quantity, tx.Quantity-liquidated)

		shortPrice, longPrice := lot.EntryPrice, tx.Price
		if tx.Direction == market.Short {
			shortPrice, longPrice = tx.Price, lot.EntryPrice
		}
		profit = profit.Add(shortPrice.Sub(longPrice).Mul(decimal.NewFromInt(match)))
		liquidated += match

		if lot.Quantity > match {
			lot.Quantity -= match
			*opposite = append(*opposite, lot)
		}
	}

	p.realized = p.realized.Add(profit)
	return profit, liquidated
}

// Register 平仓后剩余数量开新仓，按排序约定插入
func (p *Position) Register(tx transaction.Transaction, remaining int64) {
	if remaining <= 0 {
		return
	}
	lots := p.side(tx.Direction)
	lot := Lot{EntryPrice: tx.Price, Quantity: remaining}

	// 同价的新批次排在旧批次之后
	var i int
	if tx.Direction == market.Short {
		i = sort.Search(len(*lots), func(k int) bool { return (*lots)[k].EntryPrice.GreaterThan(lot.EntryPrice) })
	} else {
		i = sort.Search(len(*lots), func(k int) bool { return (*lots)[k].EntryPrice.LessThan(lot.EntryPrice) })
	}

	*lots = append(*lots, Lot{})
	copy((*lots)[i+1:], (*lots)[i:])
	(*lots)[i] = lot
}

// Update 先平仓再开仓，原地修改
func (p *Position) Update(tx transaction.Transaction) (decimal.Decimal, int64) {
	profit, liquidated := p.Liquidate(tx)
	p.Register(tx, tx.Quantity-liquidated)
	return profit, liquidated
}

// =============================================================================
// 查询
// =============================================================================

// Summary 持仓汇总
type Summary struct {
	Asset       string           `json:"asset"`
	Direction   market.Direction `json:"direction"`
	Quantity    int64            `json:"quantity"`
	RealizedPnL decimal.Decimal  `json:"realized_pnl"`
}

// Net 带符号净持仓，多为正空为负
func (p *Position) Net() int64 {
	return sumQty(p.longs) - sumQty(p.shorts)
}

func (p *Position) Summary() Summary {
	s := Summary{Asset: p.Asset, RealizedPnL: p.realized}
	switch net := p.Net(); {
	case net > 0:
		s.Direction, s.Quantity = market.Long, net
	case net < 0:
		s.Direction, s.Quantity = market.Short, -net
	default:
		s.Direction = market.Flat
	}
	return s
}

// RealizedPnL 累计已实现盈亏
func (p *Position) RealizedPnL() decimal.Decimal {
	return p.realized
}

// UnrealizedPnL 按盯市价计算浮动盈亏
func (p *Position) UnrealizedPnL(mark decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, l := range p.longs {
		total = total.Add(mark.Sub(l.EntryPrice).Mul(decimal.NewFromInt(l.Quantity)))
	}
	for _, l := range p.shorts {
		total = total.Add(l.EntryPrice.Sub(mark).Mul(decimal.NewFromInt(l.Quantity)))
	}
	return total
}

// Lots 返回某方向持仓批次副本，顺序与内部一致 (队尾在最后)
func (p *Position) Lots(dir market.Direction) []Lot {
	return append([]Lot(nil), *p.side(dir)...)
}

func (p *Position) IsEmpty() bool {
	return len(p.longs) == 0 && len(p.shorts) == 0
}

// Clone 深拷贝，用于两阶段准入的试算
func (p *Position) Clone() *Position {
	return &Position{
		Asset:    p.Asset,
		shorts:   append([]Lot(nil), p.shorts...),
		longs:    append([]Lot(nil), p.longs...),
		realized: p.realized,
	}
}

func (p *Position) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s net=%d", p.Asset, p.Net())
	for _, l := range p.shorts {
		fmt.Fprintf(&sb, " S%d@%s", l.Quantity, l.EntryPrice)
	}
	for _, l := range p.longs {
		fmt.Fprintf(&sb, " L%d@%s", l.Quantity, l.EntryPrice)
	}
	return sb.String()
}

func sumQty(lots []Lot) int64 {
	var n int64
	for _, l := range lots {
		n += l.Quantity
	}
	return n
}
