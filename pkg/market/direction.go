// 文件: pkg/market/direction.go
// 方向与信号定义，供订单/成交/持仓共用

package market

import "fmt"

// =============================================================================
// 方向
// =============================================================================

// Direction 头寸方向
type Direction int8

const (
	Flat  Direction = 0  // 无方向 (仅用于汇总)
	Long  Direction = 1  // 多
	Short Direction = -1 // 空
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	case Flat:
		return "FLAT"
	}
	return "UNKNOWN"
}

// Opposite 返回反方向，Flat 的反方向仍是 Flat
func (d Direction) Opposite() Direction {
	return -d
}

// IsTradable 只有 LONG/SHORT 可以下单
func (d Direction) IsTradable() bool {
	return d == Long || d == Short
}

// ParseDirection 解析 "LONG"/"SHORT"
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "LONG":
		return Long, nil
	case "SHORT":
		return Short, nil
	case "FLAT":
		return Flat, nil
	}
	return Flat, fmt.Errorf("unknown direction %q", s)
}

// =============================================================================
// 信号
// =============================================================================

// Signal 外部指标给出的离散信号 {-1, 0, +1}
type Signal int8

const (
	SignalSell Signal = -1
	SignalHold Signal = 0
	SignalBuy  Signal = 1
)

// Direction 信号对应的下单方向
// -1 → SHORT，其余非零 → LONG，0 → Flat (不下单)
func (s Signal) Direction() Direction {
	switch {
	case s == 0:
		return Flat
	case s == SignalSell:
		return Short
	default:
		return Long
	}
}

func (s Signal) Valid() bool {
	return s >= SignalSell && s <= SignalBuy
}
