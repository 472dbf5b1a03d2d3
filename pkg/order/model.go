// 文件: pkg/order/model.go
// 订单模型与单周期撮合评估

package order

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"max.com/portfolio/pkg/market"
	"max.com/portfolio/pkg/transaction"
)

var (
	ErrInvalidPrice     = errors.New("order price must be positive")
	ErrInvalidQuantity  = errors.New("order quantity must be positive")
	ErrInvalidDirection = errors.New("order direction must be LONG or SHORT")
	ErrOrderNotFound    = errors.New("order not found")
	ErrDuplicateOrderID = errors.New("duplicate order id")
)

// =============================================================================
// 订单状态
// =============================================================================

type Status int8

const (
	StatusOpen              Status = iota // 挂单中
	StatusPartiallyExecuted               // 部分成交
	StatusExecuted                        // 完全成交
	StatusCancelled                       // 已撤销
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "OPEN"
	case StatusPartiallyExecuted:
		return "PARTIALLY_EXECUTED"
	case StatusExecuted:
		return "EXECUTED"
	case StatusCancelled:
		return "CANCELLED"
	}
	return "UNKNOWN"
}

// IsTerminal 非 OPEN 即终态
func (s Status) IsTerminal() bool {
	return s != StatusOpen
}

// =============================================================================
// Order
// =============================================================================

type Order struct {
	ID        int64            `gorm:"primaryKey;autoIncrement:false" json:"id"` // 雪花ID
	Asset     string           `gorm:"column:asset;type:varchar(32);index" json:"asset"`
	Price     decimal.Decimal  `gorm:"column:price;type:decimal(20,8)" json:"price"`
	Quantity  int64            `gorm:"column:quantity" json:"quantity"`
	Direction market.Direction `gorm:"column:direction" json:"direction"`
	Status    Status           `gorm:"column:status;index" json:"status"`

	PlacedAt  time.Time `gorm:"column:placed_at" json:"placed_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Order) TableName() string {
	return "portfolio_orders"
}

// NewOrder 创建订单，参数非法时不构造任何对象
func NewOrder(id int64, asset string, price decimal.Decimal, qty int64, dir market.Direction, placedAt time.Time) (*Order, error) {
	if err := Validate(price, qty, dir); err != nil {
		return nil, err
	}
	return &Order{
		ID:        id,
		Asset:     asset,
		Price:     price,
		Quantity:  qty,
		Direction: dir,
		Status:    StatusOpen,
		PlacedAt:  placedAt,
		UpdatedAt: placedAt,
	}, nil
}

// Validate 下单参数校验
func Validate(price decimal.Decimal, qty int64, dir market.Direction) error {
	if !price.IsPositive() {
		return ErrInvalidPrice
	}
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if !dir.IsTradable() {
		return ErrInvalidDirection
	}
	return nil
}

// =============================================================================
// 撮合评估
// =============================================================================

// Evaluate 用一个周期的行情评估订单
//
// 规则:
// - 价格在 [low, high] 内 → 可成交，成交量 = min(订单量, 周期成交量)
//   - 全部成交 → EXECUTED
//   - 部分成交 → PARTIALLY_EXECUTED，订单数量改为已成交量，剩余部分不再挂单
// - 价格不在区间内 → CANCELLED
// - 周期成交量为 0 → 视为无法成交，CANCELLED
//
// 只评估 OPEN 订单，终态订单返回 nil。
func (o *Order) Evaluate(tick market.Tick, ts time.Time) *transaction.Transaction {
	if o.Status != StatusOpen {
		return nil
	}
	o.UpdatedAt = ts

	if !tick.Contains(o.Price) || tick.Volume <= 0 {
		o.Status = StatusCancelled
		return nil
	}

	traded := min(o.Quantity, tick.Volume)
	tx := transaction.New(o.ID, o.Asset, o.Price, traded, o.Direction, ts)

	if traded == o.Quantity {
		o.Status = StatusExecuted
	} else {
		o.Status = StatusPartiallyExecuted
		o.Quantity = traded
	}
	return &tx
}

// IsActive 是否仍在挂单
func (o *Order) IsActive() bool {
	return o.Status == StatusOpen
}
