// 文件: pkg/journal/model.go
// 组合日志 - 消息定义
//
// 控制器事件 → 日志消息 → Kafka/NATS → Writer → MySQL
//
// EventID 都带运行标识: 账本 ID 和周期时间戳在不同运行之间会重复
//
// 三类消息各走一个 topic:
//   - 成交: 只有通过准入的成交
//   - 订单: 每次状态变化一条，下游按 ID upsert
//   - 快照: 每个周期结束一条，包含账户资金与本周期变动的持仓

package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"max.com/portfolio/pkg/kafka"
	"max.com/portfolio/pkg/order"
	"max.com/portfolio/pkg/portfolio"
	"max.com/portfolio/pkg/position"
	"max.com/portfolio/pkg/transaction"
)

// Kafka topic / NATS subject
const (
	TopicTransactions = "portfolio_transactions"
	TopicOrders       = "portfolio_orders"
	TopicSnapshots    = "portfolio_snapshots"
)

// ErrUnknownTopic 无法识别的 topic
var ErrUnknownTopic = errors.New("journal: unknown topic")

// Topics 全部 topic
func Topics() []string {
	return []string{TopicTransactions, TopicOrders, TopicSnapshots}
}

// OrderChange 订单变化类型
type OrderChange string

const (
	OrderChangePlaced    OrderChange = "PLACED"
	OrderChangeCancelled OrderChange = "CANCELLED" // 评估时价格不在区间或无量
	OrderChangeRejected  OrderChange = "REJECTED"  // 准入拒绝
	OrderChangeExecuted  OrderChange = "EXECUTED"
)

// =============================================================================
// 成交消息
// =============================================================================

// TransactionMessage 成交入账
type TransactionMessage struct {
	EventID     string                  `json:"event_id"` // 幂等键
	Transaction transaction.Transaction `json:"transaction"`
	Profit      decimal.Decimal         `json:"profit"`
	Margin      decimal.Decimal         `json:"margin"`
	Available   decimal.Decimal         `json:"available"` // 入账后
	Allocated   decimal.Decimal         `json:"allocated"`
}

func (m *TransactionMessage) Topic() string { return TopicTransactions }

// Key 按资产分区，同一资产的成交有序
func (m *TransactionMessage) Key() string { return m.Transaction.Asset }

func (m *TransactionMessage) Value() ([]byte, error) { return json.Marshal(m) }

// =============================================================================
// 订单消息
// =============================================================================

// OrderMessage 订单状态变化
type OrderMessage struct {
	EventID string      `json:"event_id"`
	Change  OrderChange `json:"change"`
	Order   order.Order `json:"order"`
}

func (m *OrderMessage) Topic() string { return TopicOrders }

func (m *OrderMessage) Key() string { return m.Order.Asset }

func (m *OrderMessage) Value() ([]byte, error) { return json.Marshal(m) }

// =============================================================================
// 快照消息
// =============================================================================

// SnapshotMessage 周期结束快照
type SnapshotMessage struct {
	EventID         string              `json:"event_id"`
	RunID           int64               `json:"run_id"`
	Timestamp       time.Time           `json:"timestamp"`
	Available       decimal.Decimal     `json:"available"`
	Allocated       decimal.Decimal     `json:"allocated"`
	OvernightMargin bool                `json:"overnight_margin"`
	Equity          decimal.Decimal     `json:"equity"`
	Positions       []position.Snapshot `json:"positions"` // 本周期变动的资产
}

func (m *SnapshotMessage) Topic() string { return TopicSnapshots }

// Key 快照只有一个账户，固定 key 保证全局有序
func (m *SnapshotMessage) Key() string { return "account" }

func (m *SnapshotMessage) Value() ([]byte, error) { return json.Marshal(m) }

// =============================================================================
// 事件 → 消息
// =============================================================================

// FromEvent 把控制器事件转换为日志消息，保证金切换事件不单独落盘
// (下一条快照会带上 OvernightMargin 与资金变化)
func FromEvent(e portfolio.Event) []kafka.Message {
	switch e.Type {
	case portfolio.EventOrderPlaced:
		return orderMessages(OrderChangePlaced, e)
	case portfolio.EventOrderCancelled:
		return orderMessages(OrderChangeCancelled, e)
	case portfolio.EventTransactionRejected:
		return orderMessages(OrderChangeRejected, e)
	case portfolio.EventTransactionCommitted:
		if e.Transaction == nil {
			return nil
		}
		tx := &TransactionMessage{
			EventID:     fmt.Sprintf("TX_%d_%d", e.RunID, e.Transaction.ID),
			Transaction: *e.Transaction,
			Profit:      e.Profit,
			Margin:      e.MarginRequired,
			Available:   e.Account.Available,
			Allocated:   e.Account.Allocated,
		}
		return append([]kafka.Message{tx}, orderMessages(OrderChangeExecuted, e)...)
	case portfolio.EventPeriodClosed:
		if e.Snapshot == nil {
			return nil
		}
		return []kafka.Message{&SnapshotMessage{
			EventID:         fmt.Sprintf("SNAP_%d_%d", e.RunID, e.Timestamp.UnixNano()),
			RunID:           e.RunID,
			Timestamp:       e.Timestamp,
			Available:       e.Snapshot.Available,
			Allocated:       e.Snapshot.Allocated,
			OvernightMargin: e.Snapshot.OvernightMargin,
			Equity:          e.Snapshot.Risk.Equity,
			Positions:       e.Positions,
		}}
	}
	return nil
}

func orderMessages(change OrderChange, e portfolio.Event) []kafka.Message {
	if e.Order == nil {
		return nil
	}
	return []kafka.Message{&OrderMessage{
		EventID: fmt.Sprintf("%s_%d_%d_%d", change, e.RunID, e.Order.ID, e.Timestamp.UnixNano()),
		Change:  change,
		Order:   *e.Order,
	}}
}

// =============================================================================
// 解码
// =============================================================================

// Decode 按 topic 反序列化消息
func Decode(topic string, data []byte) (kafka.Message, error) {
	var m kafka.Message
	switch topic {
	case TopicTransactions:
		m = &TransactionMessage{}
	case TopicOrders:
		m = &OrderMessage{}
	case TopicSnapshots:
		m = &SnapshotMessage{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", topic, err)
	}
	return m, nil
}
