// 文件: pkg/transaction/model.go
// 成交记录模型
//
// Transaction 只在订单撮合评估时产生，创建后不可变。
// 只有通过准入检查的成交才会被写入 Ledger 并分配 ID。

package transaction

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"max.com/portfolio/pkg/market"
)

// Transaction 成交
// 归档主键是 (RunID, ID): ID 只在单个账本内唯一，每次运行都从 1 开始
type Transaction struct {
	RunID     int64            `gorm:"column:run_id;primaryKey;autoIncrement:false" json:"run_id"` // 所属运行，账本入账时写入
	ID        int64            `gorm:"primaryKey;autoIncrement:false" json:"id"`                   // 账本分配，未入账时为 0
	OrderID   int64            `gorm:"column:order_id;index" json:"order_id"`
	Asset     string           `gorm:"column:asset;type:varchar(32);index" json:"asset"`
	Price     decimal.Decimal  `gorm:"column:price;type:decimal(20,8)" json:"price"`
	Quantity  int64            `gorm:"column:quantity" json:"quantity"`
	Direction market.Direction `gorm:"column:direction" json:"direction"`
	Timestamp time.Time        `gorm:"column:ts;index" json:"timestamp"`
}

func (Transaction) TableName() string {
	return "portfolio_transactions"
}

// New 构造一笔未入账的成交
func New(orderID int64, asset string, price decimal.Decimal, qty int64, dir market.Direction, ts time.Time) Transaction {
	return Transaction{
		OrderID:   orderID,
		Asset:     asset,
		Price:     price,
		Quantity:  qty,
		Direction: dir,
		Timestamp: ts,
	}
}

func (t Transaction) String() string {
	return fmt.Sprintf("%s %s %d@%s", t.Asset, t.Direction, t.Quantity, t.Price.String())
}
