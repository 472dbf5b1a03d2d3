// 文件: pkg/order/mysql_repo.go
package order

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MySQLRepository struct {
	db *gorm.DB
}

func NewMySQLRepository(db *gorm.DB) *MySQLRepository {
	return &MySQLRepository{db: db}
}

func (r *MySQLRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&Order{})
}

func (r *MySQLRepository) Save(ctx context.Context, orders []Order) error {
	if len(orders) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"quantity", "status", "updated_at"}),
		}).
		Create(&orders).Error
}

func (r *MySQLRepository) GetByID(ctx context.Context, id int64) (*Order, error) {
	var o Order
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&o).Error
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *MySQLRepository) ListByStatus(ctx context.Context, status Status, limit int) ([]Order, error) {
	var orders []Order
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("placed_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *MySQLRepository) ListByAsset(ctx context.Context, asset string, limit int) ([]Order, error) {
	var orders []Order
	err := r.db.WithContext(ctx).
		Where("asset = ?", asset).
		Order("placed_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}
