// 文件: pkg/order/book.go
// 订单簿: 订单身份、生命周期、按周期撮合评估
//
// 和交易所订单簿不同，这里没有价格优先/时间优先队列:
// 每个 OPEN 订单每周期只和自己资产的行情比较一次。
// 评估结果严格按下单顺序返回，下游准入检查依赖这个顺序保证可复现。

package order

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"max.com/portfolio/pkg/market"
	"max.com/portfolio/pkg/transaction"
)

// Fill 一次评估产生的成交候选
type Fill struct {
	OrderID     int64
	Transaction transaction.Transaction
}

// Book 订单簿
// 非并发安全，由 PortfolioController 独占。
type Book struct {
	ids    IDGenerator
	orders map[int64]*Order
	seq    []int64 // 全部订单，按下单顺序
	open   []int64 // OPEN 订单，按下单顺序
}

// NewBook ids 为 nil 时使用默认雪花节点
func NewBook(ids IDGenerator) *Book {
	if ids == nil {
		ids = DefaultGenerator()
	}
	return &Book{
		ids:    ids,
		orders: make(map[int64]*Order),
	}
}

// Place 下单，返回新订单 ID
func (b *Book) Place(asset string, price decimal.Decimal, qty int64, dir market.Direction, at time.Time) (int64, error) {
	id := b.ids.NextID()
	if _, exists := b.orders[id]; exists {
		return 0, fmt.Errorf("%w: %d", ErrDuplicateOrderID, id)
	}

	o, err := NewOrder(id, asset, price, qty, dir, at)
	if err != nil {
		return 0, err
	}

	b.orders[id] = o
	b.seq = append(b.seq, id)
	b.open = append(b.open, id)
	return id, nil
}

// EvaluateOpenOrders 用一个周期的行情评估所有 OPEN 订单
//
// 返回:
// - fills: 产生成交的订单，按下单顺序
// - cancelled: 本周期被撤销的订单快照
//
// 没有该资产行情的订单保持 OPEN，留到下个周期。
func (b *Book) EvaluateOpenOrders(batch market.TickBatch) (fills []Fill, cancelled []Order) {
	remaining := b.open[:0]
	for _, id := range b.open {
		o := b.orders[id]
		if o.Status != StatusOpen {
			// 已被 Rollback
			continue
		}

		tick, ok := batch.Tick(o.Asset)
		if !ok {
			remaining = append(remaining, id)
			continue
		}

		if tx := o.Evaluate(tick, batch.Timestamp); tx != nil {
			fills = append(fills, Fill{OrderID: id, Transaction: *tx})
		} else {
			cancelled = append(cancelled, *o)
		}
	}
	b.open = remaining
	return fills, cancelled
}

// Rollback 补偿操作: 强制撤销
// 用于准入失败时撤回已评估的成交，不触碰成交账本和持仓账本。
func (b *Book) Rollback(id int64, at time.Time) error {
	o, ok := b.orders[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	o.Status = StatusCancelled
	o.UpdatedAt = at
	return nil
}

// Get 按 ID 查询订单快照
func (b *Book) Get(id int64) (Order, bool) {
	o, ok := b.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Open 当前 OPEN 订单，按下单顺序
func (b *Book) Open() []Order {
	out := make([]Order, 0, len(b.open))
	for _, id := range b.open {
		if o := b.orders[id]; o.Status == StatusOpen {
			out = append(out, *o)
		}
	}
	return out
}

// History 全部订单 (含终态)，按下单顺序
func (b *Book) History() []Order {
	out := make([]Order, 0, len(b.seq))
	for _, id := range b.seq {
		out = append(out, *b.orders[id])
	}
	return out
}
