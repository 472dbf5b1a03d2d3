// 文件: pkg/portfolio/event.go
// 控制器事件
//
// 控制器单线程运行，事件在产生处同步分发给所有 handler。
// handler 不能回调控制器的写方法。

package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"max.com/portfolio/pkg/order"
	"max.com/portfolio/pkg/position"
	"max.com/portfolio/pkg/risk"
	"max.com/portfolio/pkg/transaction"
)

// EventType 事件类型
type EventType int

const (
	EventOrderPlaced          EventType = iota // 信号下单
	EventOrderCancelled                        // 评估时撤单 (价格不在区间/无成交量)
	EventTransactionCommitted                  // 成交入账
	EventTransactionRejected                   // 准入拒绝，订单回滚
	EventMarginSwitched                        // 切换到隔夜保证金
	EventMarginRestored                        // 恢复日内保证金
	EventPeriodClosed                          // 周期处理完毕
)

func (t EventType) String() string {
	switch t {
	case EventOrderPlaced:
		return "ORDER_PLACED"
	case EventOrderCancelled:
		return "ORDER_CANCELLED"
	case EventTransactionCommitted:
		return "TRANSACTION_COMMITTED"
	case EventTransactionRejected:
		return "TRANSACTION_REJECTED"
	case EventMarginSwitched:
		return "MARGIN_SWITCHED"
	case EventMarginRestored:
		return "MARGIN_RESTORED"
	case EventPeriodClosed:
		return "PERIOD_CLOSED"
	}
	return "UNKNOWN"
}

// Event 事件
type Event struct {
	RunID     int64
	Type      EventType
	Timestamp time.Time // 周期时间戳

	Order       *order.Order             // 订单事件 / 成交事件的来源订单
	Transaction *transaction.Transaction // 成交事件

	Profit         decimal.Decimal // 成交实现盈亏
	MarginRequired decimal.Decimal // 成交保证金
	Adjustment     decimal.Decimal // 隔夜保证金调整额

	Account risk.Account // 事件发生后的账户

	Snapshot  *Snapshot           // 仅 EventPeriodClosed
	Positions []position.Snapshot // 仅 EventPeriodClosed，本周期有变动的资产
}

// EventHandler 事件处理器
type EventHandler func(Event)

// OnEvent 注册事件处理器
func (c *Controller) OnEvent(handler EventHandler) {
	c.handlers = append(c.handlers, handler)
}

func (c *Controller) dispatch(event Event) {
	event.RunID = c.runID
	event.Account = c.account
	for _, h := range c.handlers {
		h(event)
	}
}
