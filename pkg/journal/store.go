// 文件: pkg/journal/store.go
// 组合日志 - 落库
//
// Store 聚合各仓库，Apply 把一批消息写入:
//   - 成交: 按 ID 幂等插入
//   - 订单: 按 ID upsert，同一批内只保留最后状态
//   - 快照: 账户资金一行/周期，持仓快照写 MySQL 并刷新 Redis

package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"max.com/portfolio/pkg/kafka"
	"max.com/portfolio/pkg/order"
	"max.com/portfolio/pkg/position"
	"max.com/portfolio/pkg/transaction"
)

// =============================================================================
// 账户快照
// =============================================================================

// AccountSnapshot 每周期账户资金
type AccountSnapshot struct {
	EventID         string          `gorm:"primaryKey;type:varchar(64)" json:"event_id"` // SNAP_<run>_<ts>
	RunID           int64           `gorm:"column:run_id;index" json:"run_id"`
	AsOf            time.Time       `gorm:"column:as_of;index" json:"as_of"`
	Available       decimal.Decimal `gorm:"column:available;type:decimal(20,8)" json:"available"`
	Allocated       decimal.Decimal `gorm:"column:allocated;type:decimal(20,8)" json:"allocated"`
	Equity          decimal.Decimal `gorm:"column:equity;type:decimal(20,8)" json:"equity"`
	OvernightMargin bool            `gorm:"column:overnight_margin" json:"overnight_margin"`
}

func (AccountSnapshot) TableName() string {
	return "portfolio_account_snapshots"
}

// AccountRepository 账户快照存储
type AccountRepository interface {
	Save(ctx context.Context, snaps []AccountSnapshot) error
	Latest(ctx context.Context) (*AccountSnapshot, error)
	Range(ctx context.Context, from, to time.Time) ([]AccountSnapshot, error)
}

// MySQLSnapshotStore 账户快照 MySQL 实现
type MySQLSnapshotStore struct {
	db *gorm.DB
}

func NewMySQLSnapshotStore(db *gorm.DB) *MySQLSnapshotStore {
	return &MySQLSnapshotStore{db: db}
}

// AutoMigrate 建表
func (s *MySQLSnapshotStore) AutoMigrate() error {
	return s.db.AutoMigrate(&AccountSnapshot{})
}

// Save 批量写入，重复 EventID 忽略
func (s *MySQLSnapshotStore) Save(ctx context.Context, snaps []AccountSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(snaps, 100).Error
}

// Latest 最新一条，没有记录时返回 nil
func (s *MySQLSnapshotStore) Latest(ctx context.Context) (*AccountSnapshot, error) {
	var snap AccountSnapshot
	err := s.db.WithContext(ctx).Order("as_of DESC").First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Range [from, to] 内的快照，按时间升序 (资金轨迹)
func (s *MySQLSnapshotStore) Range(ctx context.Context, from, to time.Time) ([]AccountSnapshot, error) {
	var out []AccountSnapshot
	err := s.db.WithContext(ctx).
		Where("as_of BETWEEN ? AND ?", from, to).
		Order("as_of ASC").
		Find(&out).Error
	return out, err
}

// =============================================================================
// Store
// =============================================================================

// Store 日志落库目标，某个仓库为 nil 时跳过对应消息
type Store struct {
	Transactions transaction.Repository
	Orders       order.Repository
	Positions    position.SnapshotRepository
	Accounts     AccountRepository
}

// NewMySQLStore 基于同一个 *gorm.DB 构建全部仓库，positions 可带 Redis 缓存
func NewMySQLStore(db *gorm.DB, positions position.SnapshotRepository) *Store {
	return &Store{
		Transactions: transaction.NewMySQLRepository(db),
		Orders:       order.NewMySQLRepository(db),
		Positions:    positions,
		Accounts:     NewMySQLSnapshotStore(db),
	}
}

// AutoMigrate 建表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&transaction.Transaction{},
		&order.Order{},
		&position.Snapshot{},
		&AccountSnapshot{},
	)
}

// batch 按类型拆分后的一批消息
type batch struct {
	txs       []transaction.Transaction
	orders    []order.Order
	positions []position.Snapshot
	accounts  []AccountSnapshot
}

func split(msgs []kafka.Message) batch {
	var b batch
	orderIdx := make(map[int64]int)
	posIdx := make(map[string]int)

	for _, m := range msgs {
		switch v := m.(type) {
		case *TransactionMessage:
			b.txs = append(b.txs, v.Transaction)
		case *OrderMessage:
			if i, ok := orderIdx[v.Order.ID]; ok {
				b.orders[i] = v.Order
				continue
			}
			orderIdx[v.Order.ID] = len(b.orders)
			b.orders = append(b.orders, v.Order)
		case *SnapshotMessage:
			b.accounts = append(b.accounts, AccountSnapshot{
				EventID:         v.EventID,
				RunID:           v.RunID,
				AsOf:            v.Timestamp,
				Available:       v.Available,
				Allocated:       v.Allocated,
				Equity:          v.Equity,
				OvernightMargin: v.OvernightMargin,
			})
			for _, p := range v.Positions {
				if i, ok := posIdx[p.Asset]; ok {
					b.positions[i] = p
					continue
				}
				posIdx[p.Asset] = len(b.positions)
				b.positions = append(b.positions, p)
			}
		}
	}
	return b
}

// Apply 写入一批消息，各仓库独立写入，错误合并返回
func (s *Store) Apply(ctx context.Context, msgs []kafka.Message) error {
	b := split(msgs)
	var errs []error

	if s.Transactions != nil && len(b.txs) > 0 {
		if err := s.Transactions.BatchInsert(ctx, b.txs); err != nil {
			errs = append(errs, fmt.Errorf("insert %d transactions: %w", len(b.txs), err))
		}
	}
	if s.Orders != nil && len(b.orders) > 0 {
		if err := s.Orders.Save(ctx, b.orders); err != nil {
			errs = append(errs, fmt.Errorf("save %d orders: %w", len(b.orders), err))
		}
	}
	if s.Positions != nil && len(b.positions) > 0 {
		if err := s.Positions.Save(ctx, b.positions); err != nil {
			errs = append(errs, fmt.Errorf("save %d positions: %w", len(b.positions), err))
		}
	}
	if s.Accounts != nil && len(b.accounts) > 0 {
		if err := s.Accounts.Save(ctx, b.accounts); err != nil {
			errs = append(errs, fmt.Errorf("save %d account snapshots: %w", len(b.accounts), err))
		}
	}
	return errors.Join(errs...)
}
