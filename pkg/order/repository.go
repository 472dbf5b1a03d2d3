// 文件: pkg/order/repository.go
package order

import "context"

// Repository 订单归档 (引擎外部，由 journal 写入)
type Repository interface {
	// 写入 (按 ID upsert，后到的状态覆盖先到的)
	Save(ctx context.Context, orders []Order) error

	// 查询
	GetByID(ctx context.Context, id int64) (*Order, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]Order, error)
	ListByAsset(ctx context.Context, asset string, limit int) ([]Order, error)
}
