// 文件: pkg/portfolio/snapshot.go
// 对外报告: 账户快照、资金轨迹、订单/成交查询

package portfolio

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"max.com/portfolio/pkg/order"
	"max.com/portfolio/pkg/position"
	"max.com/portfolio/pkg/risk"
	"max.com/portfolio/pkg/transaction"
)

// Snapshot 账户快照
type Snapshot struct {
	RunID           int64                       `json:"run_id"`
	Timestamp       time.Time                   `json:"timestamp"`
	Available       decimal.Decimal             `json:"available"`
	Allocated       decimal.Decimal             `json:"allocated"`
	OvernightMargin bool                        `json:"overnight_margin"`
	Positions       map[string]position.Summary `json:"positions"` // 只含非零持仓
	Risk            risk.RiskOutput             `json:"risk"`
}

// Snapshot 当前账户快照
func (c *Controller) Snapshot() Snapshot {
	var ts time.Time
	if n := len(c.trajectory); n > 0 {
		ts = c.trajectory[n-1].Timestamp
	}

	s := Snapshot{
		RunID:           c.runID,
		Timestamp:       ts,
		Available:       c.account.Available,
		Allocated:       c.account.Allocated,
		OvernightMargin: c.overnight != nil,
		Positions:       make(map[string]position.Summary),
	}

	in := risk.RiskInput{
		Account:           c.account,
		MarginPerContract: c.cfg.IntradayMargin,
		OvernightDeltas:   c.cfg.OvernightDeltas,
	}
	for _, asset := range c.positions.Assets() {
		p, _ := c.positions.Get(asset)
		sum := p.Summary()
		if sum.Quantity == 0 {
			continue
		}
		s.Positions[asset] = sum

		unrealized := decimal.Zero
		if mark, ok := c.marks[asset]; ok {
			unrealized = p.UnrealizedPnL(mark)
		}
		in.Positions = append(in.Positions, risk.Position{
			Asset:      asset,
			Direction:  sum.Direction,
			Quantity:   sum.Quantity,
			Unrealized: unrealized,
		})
	}

	// 配置已校验过保证金为正，这里不会出错
	s.Risk, _ = c.risk.ComputeRisk(in)
	return s
}

// RunID 本次运行的标识
func (c *Controller) RunID() int64 {
	return c.runID
}

// Summary 资产 → {方向, 净数量}
func (c *Controller) Summary() map[string]position.Summary {
	return c.positions.Summary()
}

// Account 当前资金
func (c *Controller) Account() risk.Account {
	return c.account
}

// Trajectory 每个周期结束时的资金轨迹
func (c *Controller) Trajectory() []CapitalPoint {
	return append([]CapitalPoint(nil), c.trajectory...)
}

// OpenOrders 当前挂单
func (c *Controller) OpenOrders() []order.Order {
	return c.book.Open()
}

// OrderHistory 全部订单，按下单顺序
func (c *Controller) OrderHistory() []order.Order {
	return c.book.History()
}

// Order 按 ID 查询订单
func (c *Controller) Order(id int64) (order.Order, bool) {
	return c.book.Get(id)
}

// Transactions 已入账成交，按入账顺序
func (c *Controller) Transactions() []transaction.Transaction {
	return c.ledger.All()
}

// PositionSnapshots 所有资产的持仓快照 (含已平仓资产)
func (c *Controller) PositionSnapshots(asOf time.Time) []position.Snapshot {
	assets := c.positions.Assets()
	out := make([]position.Snapshot, 0, len(assets))
	for _, a := range assets {
		p, _ := c.positions.Get(a)
		out = append(out, position.SnapshotOf(p, asOf))
	}
	return out
}

// closePeriod 记录资金轨迹并发出周期结束事件
func (c *Controller) closePeriod(ts time.Time) {
	c.trajectory = append(c.trajectory, CapitalPoint{
		Timestamp: ts,
		Available: c.account.Available,
		Allocated: c.account.Allocated,
	})

	var changed []position.Snapshot
	for _, a := range c.positions.Assets() {
		if _, ok := c.touched[a]; !ok {
			continue
		}
		p, _ := c.positions.Get(a)
		changed = append(changed, position.SnapshotOf(p, ts))
	}

	snap := c.Snapshot()
	c.logger.Debug("period closed",
		slog.Time("ts", ts),
		slog.String("available", snap.Available.String()),
		slog.String("allocated", snap.Allocated.String()),
		slog.Int("open_orders", len(c.book.Open())),
		slog.Int("positions", len(snap.Positions)),
	)
	c.dispatch(Event{Type: EventPeriodClosed, Timestamp: ts, Snapshot: &snap, Positions: changed})
}
