// 文件: pkg/transaction/repository.go
// 成交归档存储 (GORM 实现)
//
// 引擎本身不落盘，归档由 journal.Writer 异步写入。

package transaction

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	// 写入 (按 RunID+ID 幂等)
	BatchInsert(ctx context.Context, txs []Transaction) error

	// 查询
	GetByID(ctx context.Context, runID, id int64) (*Transaction, error)
	ListByAsset(ctx context.Context, asset string, limit int) ([]Transaction, error)
}

type MySQLRepository struct {
	db *gorm.DB
}

func NewMySQLRepository(db *gorm.DB) *MySQLRepository {
	return &MySQLRepository{db: db}
}

// AutoMigrate 建表
func (r *MySQLRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&Transaction{})
}

// BatchInsert 批量写入，重复 (run_id, id) 忽略 (消息重投时保证幂等)
func (r *MySQLRepository) BatchInsert(ctx context.Context, txs []Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(txs, 100).Error
}

func (r *MySQLRepository) GetByID(ctx context.Context, runID, id int64) (*Transaction, error) {
	var tx Transaction
	err := r.db.WithContext(ctx).Where("run_id = ? AND id = ?", runID, id).First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// ListByAsset 按时间顺序返回某资产成交
func (r *MySQLRepository) ListByAsset(ctx context.Context, asset string, limit int) ([]Transaction, error) {
	var txs []Transaction
	err := r.db.WithContext(ctx).
		Where("asset = ?", asset).
		Order("ts ASC, run_id ASC, id ASC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}
