// 文件: pkg/portfolio/controller.go
// 组合控制器: 驱动单个周期的处理流程
//
// 每个周期:
//   1. 订单簿按行情评估 OPEN 订单，得到候选成交 (下单顺序)
//   2. 逐笔: 持仓试算 → 保证金准入 → 成交入账 → 资金更新
//      准入失败只回滚订单，不入账，不动资金
//   3. 信号 → 新订单 → 订单簿
//   4. 周期时间等于收盘时刻时切换隔夜保证金
//
// 所有状态由 Controller 独占，非并发安全。

package portfolio

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"max.com/portfolio/pkg/market"
	"max.com/portfolio/pkg/order"
	"max.com/portfolio/pkg/position"
	"max.com/portfolio/pkg/risk"
	"max.com/portfolio/pkg/transaction"
)

// CapitalPoint 资金轨迹上的一个点 (每周期结束时记录)
type CapitalPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Available decimal.Decimal `json:"available"`
	Allocated decimal.Decimal `json:"allocated"`
}

// OrderRequest 信号转换出的下单请求
type OrderRequest struct {
	Asset     string
	Price     decimal.Decimal
	Quantity  int64
	Direction market.Direction
}

// overnightState 隔夜保证金状态
type overnightState struct {
	adjustment decimal.Decimal
	switchedAt time.Time // 切换时的周期时间 (已转换到 Location)
}

// Controller 组合控制器
type Controller struct {
	runID int64 // 本次运行的标识，归档记录靠它区分不同运行
	cfg   Config
	clock clock
	loc   *time.Location

	account risk.Account

	book      *order.Book
	positions *position.Ledger
	ledger    *transaction.Ledger
	risk      *risk.Engine

	overnight *overnightState
	marks     map[string]decimal.Decimal // 资产 → 最近周期中间价
	touched   map[string]struct{}        // 本周期持仓有变动的资产

	trajectory []CapitalPoint
	handlers   []EventHandler
	logger     *slog.Logger
}

// Option 控制器可选项
type Option func(*Controller)

// WithLogger 注入日志
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithIDGenerator 注入订单 ID 生成器
func WithIDGenerator(ids order.IDGenerator) Option {
	return func(c *Controller) {
		c.book = order.NewBook(ids)
	}
}

// WithRunID 指定运行标识 (默认取一个雪花 ID)
func WithRunID(id int64) Option {
	return func(c *Controller) {
		c.runID = id
	}
}

// NewController 创建控制器
func NewController(cfg Config, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clk, _ := parseClock(cfg.ClosingTime)

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	c := &Controller{
		cfg:   cfg,
		clock: clk,
		loc:   loc,
		account: risk.Account{
			Available: cfg.InitialCapital,
			Allocated: cfg.InitialAllocated,
		},
		positions: position.NewLedger(),
		risk:      risk.NewEngine(),
		marks:     make(map[string]decimal.Decimal),
		touched:   make(map[string]struct{}),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.book == nil {
		c.book = order.NewBook(nil)
	}
	if c.runID == 0 {
		c.runID = order.DefaultGenerator().NextID()
	}
	c.ledger = transaction.NewRunLedger(c.runID)
	c.logger = c.logger.With(slog.String("component", "portfolio"), slog.Int64("run_id", c.runID))
	return c, nil
}

// =============================================================================
// 周期处理
// =============================================================================

// ProcessPeriod 处理一个周期
//
// 准入拒绝不是错误。返回错误的只有:
// - 成交账本 ID 耗尽
// - 信号下单参数非法 (行情价格非正)
func (c *Controller) ProcessPeriod(ticks market.TickBatch, signals market.SignalBatch) error {
	ts := ticks.Timestamp
	if ts.IsZero() {
		ts = signals.Timestamp
	}
	clear(c.touched)

	// 0. 新交易日第一个周期，恢复日内保证金
	c.restoreIntraday(ts)

	// 1. 评估挂单
	fills, cancelled := c.book.EvaluateOpenOrders(ticks)
	for i := range cancelled {
		c.dispatch(Event{Type: EventOrderCancelled, Timestamp: ts, Order: &cancelled[i]})
	}

	// 2. 逐笔准入
	for _, f := range fills {
		if err := c.settle(f, ts); err != nil {
			return err
		}
	}

	for asset, tick := range ticks.Ticks {
		c.marks[asset] = tick.Mid()
	}

	// 3. 信号下单
	for _, req := range c.DeriveOrders(ticks, signals) {
		id, err := c.book.Place(req.Asset, req.Price, req.Quantity, req.Direction, ts)
		if err != nil {
			return fmt.Errorf("place %s %s order: %w", req.Asset, req.Direction, err)
		}
		o, _ := c.book.Get(id)
		c.dispatch(Event{Type: EventOrderPlaced, Timestamp: ts, Order: &o})
	}

	// 4. 收盘切换隔夜保证金
	if c.clock.matches(ts.In(c.loc)) {
		c.switchOvernight(ts)
	}

	c.closePeriod(ts)
	return nil
}

// settle 单笔成交的准入与入账
func (c *Controller) settle(f order.Fill, ts time.Time) error {
	tx := f.Transaction

	var (
		profit decimal.Decimal
		opened int64
		effect position.Effect
	)
	switch c.cfg.Admission {
	case AdmissionLegacy:
		// 先改持仓，拒绝时持仓不回滚
		profit, opened = c.positions.UpdatePosition(tx)
		c.touched[tx.Asset] = struct{}{}
	default:
		effect = c.positions.Preview(tx)
		profit, opened = effect.Profit, effect.Opened
	}

	res := c.risk.Admit(risk.AdmissionInput{
		Account:           c.account,
		Profit:            profit,
		Opened:            opened,
		MarginPerContract: c.cfg.IntradayMargin,
		FloorOpened:       c.cfg.FloorOpenedContracts,
	})

	if !res.Accepted {
		if err := c.book.Rollback(f.OrderID, ts); err != nil {
			return err
		}
		o, _ := c.book.Get(f.OrderID)
		c.logger.Info("transaction rejected",
			slog.String("asset", tx.Asset),
			slog.String("direction", tx.Direction.String()),
			slog.Int64("quantity", tx.Quantity),
			slog.String("margin_required", res.MarginRequired.String()),
			slog.String("available", c.account.Available.String()),
			slog.Time("ts", ts),
		)
		c.dispatch(Event{
			Type:           EventTransactionRejected,
			Timestamp:      ts,
			Order:          &o,
			Transaction:    &tx,
			Profit:         profit,
			MarginRequired: res.MarginRequired,
		})
		return nil
	}

	_, committed, err := c.ledger.Register(tx)
	if err != nil {
		return fmt.Errorf("register transaction for order %d: %w", f.OrderID, err)
	}
	if c.cfg.Admission != AdmissionLegacy {
		c.positions.Commit(effect)
		c.touched[tx.Asset] = struct{}{}
	}
	c.account = res.After

	o, _ := c.book.Get(f.OrderID)
	c.logger.Debug("transaction committed",
		slog.Int64("id", committed.ID),
		slog.String("tx", committed.String()),
		slog.String("profit", profit.String()),
		slog.String("margin", res.MarginRequired.String()),
	)
	c.dispatch(Event{
		Type:           EventTransactionCommitted,
		Timestamp:      ts,
		Order:          &o,
		Transaction:    &committed,
		Profit:         profit,
		MarginRequired: res.MarginRequired,
	})
	return nil
}

// =============================================================================
// 信号 → 订单
// =============================================================================

// DeriveOrders 把信号转换为下单请求 (不下单)
//
// - 信号 -1 → SHORT，按周期最低价挂单；其余非零 → LONG，按周期最高价挂单
// - 数量受标准下单量、单资产同方向敞口、总敞口三者约束，<= 0 则不下单
// - 资产按字母序处理，保证下单顺序可复现
func (c *Controller) DeriveOrders(ticks market.TickBatch, signals market.SignalBatch) []OrderRequest {
	var out []OrderRequest
	aggregate := c.positions.AggregateExposure()

	for _, asset := range signals.Assets() {
		sig := signals.Signals[asset]
		if sig == market.SignalHold {
			continue
		}
		dir := sig.Direction()

		tick, ok := ticks.Tick(asset)
		if !ok {
			c.logger.Warn("signal without tick, skipped",
				slog.String("asset", asset),
				slog.Int("signal", int(sig)),
				slog.Time("ts", signals.Timestamp),
			)
			continue
		}

		size := c.risk.OrderSize(c.cfg.Limits, c.positions.Exposure(asset, dir), aggregate)
		if size <= 0 {
			continue
		}

		price := tick.High
		if dir == market.Short {
			price = tick.Low
		}
		out = append(out, OrderRequest{Asset: asset, Price: price, Quantity: size, Direction: dir})
	}
	return out
}

// =============================================================================
// 隔夜保证金
// =============================================================================

// switchOvernight 收盘时把有净持仓资产的保证金切换为隔夜保证金
func (c *Controller) switchOvernight(ts time.Time) {
	if c.overnight != nil {
		return
	}
	net := c.positions.NetPositions()
	if len(net) == 0 {
		return
	}

	adj := c.risk.OvernightAdjustment(net, c.cfg.OvernightDeltas)
	c.account.Allocated = c.account.Allocated.Add(adj)
	c.account.Available = c.account.Available.Sub(adj)
	c.overnight = &overnightState{adjustment: adj, switchedAt: ts.In(c.loc)}

	attrs := []any{
		slog.String("adjustment", adj.String()),
		slog.String("available", c.account.Available.String()),
		slog.Time("ts", ts),
	}
	if c.account.Available.IsNegative() {
		c.logger.Warn("overnight margin exceeds available capital", attrs...)
	} else {
		c.logger.Info("switched to overnight margin", attrs...)
	}
	c.dispatch(Event{Type: EventMarginSwitched, Timestamp: ts, Adjustment: adj})
}

// restoreIntraday 下一个交易日的第一个周期恢复日内保证金
func (c *Controller) restoreIntraday(ts time.Time) {
	if c.overnight == nil || !laterDate(ts.In(c.loc), c.overnight.switchedAt) {
		return
	}
	adj := c.overnight.adjustment
	c.account.Allocated = c.account.Allocated.Sub(adj)
	c.account.Available = c.account.Available.Add(adj)
	c.overnight = nil

	c.logger.Info("restored intraday margin",
		slog.String("adjustment", adj.String()),
		slog.Time("ts", ts),
	)
	c.dispatch(Event{Type: EventMarginRestored, Timestamp: ts, Adjustment: adj})
}

// laterDate a 的日历日期是否晚于 b
func laterDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay > by
	}
	if am != bm {
		return am > bm
	}
	return ad > bd
}

// =============================================================================
// 回测
// =============================================================================

// Backtest 按时间升序处理所有周期，返回最终可用资金
//
// 周期集合是行情与信号时间戳的并集；同一时间戳的多个批次合并，后出现的覆盖先出现的。
func (c *Controller) Backtest(ticks []market.TickBatch, signals []market.SignalBatch) (decimal.Decimal, error) {
	for _, p := range mergePeriods(ticks, signals) {
		if err := c.ProcessPeriod(p.ticks, p.signals); err != nil {
			return c.account.Available, fmt.Errorf("period %s: %w", p.ticks.Timestamp.Format(time.RFC3339), err)
		}
	}
	c.logger.Info("backtest finished",
		slog.Int("periods", len(c.trajectory)),
		slog.Int("transactions", c.ledger.Len()),
		slog.String("available", c.account.Available.String()),
		slog.String("allocated", c.account.Allocated.String()),
	)
	return c.account.Available, nil
}
