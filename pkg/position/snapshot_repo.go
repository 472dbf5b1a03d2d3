// 文件: pkg/position/snapshot_repo.go
// 持仓快照存储 (Redis 缓存 + MySQL 持久化)
//
// 引擎内存中的持仓不落盘，这里只保存对外展示用的快照。

package position

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"max.com/portfolio/pkg/market"
)

// =============================================================================
// 快照模型
// =============================================================================

// Snapshot 单资产持仓快照
type Snapshot struct {
	Asset       string           `gorm:"primaryKey;type:varchar(32)" json:"asset"`
	Direction   market.Direction `gorm:"column:direction" json:"direction"`
	Quantity    int64            `gorm:"column:quantity" json:"quantity"`
	RealizedPnL decimal.Decimal  `gorm:"column:realized_pnl;type:decimal(20,8)" json:"realized_pnl"`
	Lots        string           `gorm:"column:lots;type:json" json:"lots"` // {"short":[...],"long":[...]}
	AsOf        time.Time        `gorm:"column:as_of" json:"as_of"`
}

func (Snapshot) TableName() string {
	return "portfolio_positions"
}

type lotsDoc struct {
	Short []Lot `json:"short"`
	Long  []Lot `json:"long"`
}

// SnapshotOf 从持仓生成快照
func SnapshotOf(p *Position, asOf time.Time) Snapshot {
	s := p.Summary()
	// Lot 只有 decimal 与整数字段，这里不会出错
	lots, _ := json.Marshal(lotsDoc{Short: p.Lots(market.Short), Long: p.Lots(market.Long)})
	return Snapshot{
		Asset:       p.Asset,
		Direction:   s.Direction,
		Quantity:    s.Quantity,
		RealizedPnL: s.RealizedPnL,
		Lots:        string(lots),
		AsOf:        asOf,
	}
}

// =============================================================================
// 接口定义
// =============================================================================

type SnapshotRepository interface {
	Save(ctx context.Context, snaps []Snapshot) error
	Get(ctx context.Context, asset string) (*Snapshot, error)
	List(ctx context.Context) ([]Snapshot, error)
}

// =============================================================================
// Redis Key
// =============================================================================

const (
	// portfolio:position:{asset}
	snapshotKeyPattern = "portfolio:position:%s"
	snapshotListKey    = "portfolio:position:list"

	snapshotCacheTTL = 24 * time.Hour
)

func snapshotKey(asset string) string {
	return fmt.Sprintf(snapshotKeyPattern, asset)
}

// =============================================================================
// 实现
// =============================================================================

// CachedSnapshotRepository redis 为 nil 时只读写 MySQL
type CachedSnapshotRepository struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewCachedSnapshotRepository(db *gorm.DB, rds *redis.Client) *CachedSnapshotRepository {
	return &CachedSnapshotRepository{db: db, redis: rds}
}

func (r *CachedSnapshotRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&Snapshot{})
}

// Save 保存快照 (DB upsert + 更新 Redis)
func (r *CachedSnapshotRepository) Save(ctx context.Context, snaps []Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	// 1. 写 DB
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "asset"}},
			DoUpdates: clause.AssignmentColumns([]string{"direction", "quantity", "realized_pnl", "lots", "as_of"}),
		}).
		Create(&snaps).Error
	if err != nil {
		return err
	}

	// 2. 更新 Redis，平仓的资产从列表移除
	if r.redis == nil {
		return nil
	}
	for i := range snaps {
		s := &snaps[i]
		r.cacheSnapshot(ctx, s)
		if s.Quantity == 0 {
			r.redis.SRem(ctx, snapshotListKey, s.Asset)
		} else {
			r.redis.SAdd(ctx, snapshotListKey, s.Asset)
		}
	}
	return nil
}

// Get 查询单资产快照，先查 Redis 再查 DB
func (r *CachedSnapshotRepository) Get(ctx context.Context, asset string) (*Snapshot, error) {
	// 1. 查 Redis
	if r.redis != nil {
		data, err := r.redis.Get(ctx, snapshotKey(asset)).Bytes()
		if err == nil {
			var s Snapshot
			if json.Unmarshal(data, &s) == nil {
				return &s, nil
			}
		}
	}

	// 2. 查 DB
	var s Snapshot
	err := r.db.WithContext(ctx).Where("asset = ?", asset).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // 无持仓
		}
		return nil, err
	}

	// 3. 回填 Redis
	r.cacheSnapshot(ctx, &s)
	return &s, nil
}

// List 所有非零持仓
func (r *CachedSnapshotRepository) List(ctx context.Context) ([]Snapshot, error) {
	var snaps []Snapshot
	err := r.db.WithContext(ctx).
		Where("quantity != 0").
		Order("asset ASC").
		Find(&snaps).Error
	return snaps, err
}

// OpenAssets 从 Redis 集合读取当前有持仓的资产
func (r *CachedSnapshotRepository) OpenAssets(ctx context.Context) ([]string, error) {
	if r.redis == nil {
		var assets []string
		err := r.db.WithContext(ctx).Model(&Snapshot{}).
			Where("quantity != 0").
			Order("asset ASC").
			Pluck("asset", &assets).Error
		return assets, err
	}
	return r.redis.SMembers(ctx, snapshotListKey).Result()
}

func (r *CachedSnapshotRepository) cacheSnapshot(ctx context.Context, s *Snapshot) {
	if r.redis == nil {
		return
	}
	// 字段都是基础类型与 decimal，这里不会出错
	data, _ := json.Marshal(s)
	r.redis.Set(ctx, snapshotKey(s.Asset), data, snapshotCacheTTL)
}
