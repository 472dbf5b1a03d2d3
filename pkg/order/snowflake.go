// 文件: pkg/order/snowflake.go
// 订单 ID 生成器
// 默认使用开源库: github.com/bwmarrin/snowflake

package order

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/snowflake"
)

// IDGenerator 订单 ID 生成接口
type IDGenerator interface {
	NextID() int64
}

// =============================================================================
// 雪花算法
// =============================================================================

var (
	defaultNode *snowflake.Node
	initOnce    sync.Once
)

// SnowflakeGenerator 基于节点的雪花 ID
type SnowflakeGenerator struct {
	node *snowflake.Node
}

// NewSnowflakeGenerator nodeID: 节点ID (0-1023)
func NewSnowflakeGenerator(nodeID int64) (*SnowflakeGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node %d: %w", nodeID, err)
	}
	return &SnowflakeGenerator{node: node}, nil
}

func (g *SnowflakeGenerator) NextID() int64 {
	return g.node.Generate().Int64()
}

// DefaultGenerator 进程内共享的 0 号节点
func DefaultGenerator() IDGenerator {
	initOnce.Do(func() {
		// 0 号节点一定合法
		defaultNode, _ = snowflake.NewNode(0)
	})
	return &SnowflakeGenerator{node: defaultNode}
}

// =============================================================================
// 顺序 ID (测试/回放用)
// =============================================================================

// SequenceGenerator 从 1 开始递增
type SequenceGenerator struct {
	last atomic.Int64
}

func (g *SequenceGenerator) NextID() int64 {
	return g.last.Add(1)
}
