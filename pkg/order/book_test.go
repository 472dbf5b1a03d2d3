// 文件: pkg/order/book_test.go
package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"max.com/portfolio/pkg/market"
)

var t0 = time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestBook() *Book {
	return NewBook(&SequenceGenerator{})
}

func batch(ts time.Time, ticks map[string]market.Tick) market.TickBatch {
	return market.TickBatch{Timestamp: ts, Ticks: ticks}
}

// =============================================================================
// 下单校验
// =============================================================================

func TestPlace_RejectsInvalidOrders(t *testing.T) {
	cases := []struct {
		name  string
		price decimal.Decimal
		qty   int64
		dir   market.Direction
		err   error
	}{
		{"zero price", d("0"), 1, market.Long, ErrInvalidPrice},
		{"negative price", d("-1"), 1, market.Long, ErrInvalidPrice},
		{"zero qty", d("10"), 0, market.Short, ErrInvalidQuantity},
		{"negative qty", d("10"), -3, market.Short, ErrInvalidQuantity},
		{"flat direction", d("10"), 1, market.Flat, ErrInvalidDirection},
		{"bogus direction", d("10"), 1, market.Direction(7), ErrInvalidDirection},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := newTestBook()
			_, err := b.Place("WIN", tc.price, tc.qty, tc.dir, t0)
			assert.ErrorIs(t, err, tc.err)
			assert.Empty(t, b.History(), "invalid order must not be stored")
		})
	}
}

func TestPlace_StoresOpenOrder(t *testing.T) {
	b := newTestBook()
	id, err := b.Place("WIN", d("100"), 5, market.Long, t0)
	require.NoError(t, err)

	o, ok := b.Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusOpen, o.Status)
	assert.Equal(t, int64(5), o.Quantity)
	assert.Len(t, b.Open(), 1)
}

type fixedGenerator struct{}

func (fixedGenerator) NextID() int64 { return 7 }

func TestPlace_DuplicateID(t *testing.T) {
	b := NewBook(fixedGenerator{})
	_, err := b.Place("WIN", d("100"), 1, market.Long, t0)
	require.NoError(t, err)

	_, err = b.Place("WIN", d("100"), 1, market.Long, t0)
	assert.ErrorIs(t, err, ErrDuplicateOrderID)
	assert.Len(t, b.History(), 1)
}

// =============================================================================
// 单订单评估
// =============================================================================

func TestEvaluate_InsideRangeExecutes(t *testing.T) {
	o, err := NewOrder(1, "WIN", d("11"), 5, market.Long, t0)
	require.NoError(t, err)

	tx := o.Evaluate(market.Tick{High: d("12"), Low: d("10"), Volume: 100}, t0)
	require.NotNil(t, tx)
	assert.Equal(t, StatusExecuted, o.Status)
	assert.Equal(t, int64(5), tx.Quantity)
	assert.True(t, tx.Price.Equal(d("11")))
	assert.Equal(t, int64(1), tx.OrderID)
	assert.Equal(t, t0, tx.Timestamp)
}

func TestEvaluate_BoundariesAreInclusive(t *testing.T) {
	tick := market.Tick{High: d("12"), Low: d("10"), Volume: 100}
	for _, p := range []string{"10", "12"} {
		o, _ := NewOrder(1, "WIN", d(p), 1, market.Short, t0)
		assert.NotNil(t, o.Evaluate(tick, t0), "price %s", p)
		assert.Equal(t, StatusExecuted, o.Status)
	}
}

func TestEvaluate_PartialFill(t *testing.T) {
	o, _ := NewOrder(1, "WIN", d("11"), 10, market.Long, t0)

	tx := o.Evaluate(market.Tick{High: d("12"), Low: d("10"), Volume: 4}, t0)
	require.NotNil(t, tx)
	assert.Equal(t, int64(4), tx.Quantity)
	assert.Equal(t, StatusPartiallyExecuted, o.Status)
	// 未成交部分不再挂单
	assert.Equal(t, int64(4), o.Quantity)

	// 终态订单不再评估
	assert.Nil(t, o.Evaluate(market.Tick{High: d("12"), Low: d("10"), Volume: 100}, t0))
}

func TestEvaluate_OutsideRangeCancels(t *testing.T) {
	for _, p := range []string{"9.99", "12.01"} {
		o, _ := NewOrder(1, "WIN", d(p), 5, market.Long, t0)
		tx := o.Evaluate(market.Tick{High: d("12"), Low: d("10"), Volume: 100}, t0)
		assert.Nil(t, tx)
		assert.Equal(t, StatusCancelled, o.Status)
	}
}

func TestEvaluate_ZeroVolumeCancels(t *testing.T) {
	o, _ := NewOrder(1, "WIN", d("11"), 5, market.Long, t0)
	assert.Nil(t, o.Evaluate(market.Tick{High: d("12"), Low: d("10"), Volume: 0}, t0))
	assert.Equal(t, StatusCancelled, o.Status)
}

// =============================================================================
// 批量评估
// =============================================================================

func TestEvaluateOpenOrders_PlacementOrder(t *testing.T) {
	b := newTestBook()
	// 交错下单，确认返回顺序是下单顺序而不是按资产分组
	idB1, _ := b.Place("B", d("50"), 1, market.Long, t0)
	idA1, _ := b.Place("A", d("10"), 1, market.Short, t0)
	idB2, _ := b.Place("B", d("51"), 2, market.Long, t0)
	idA2, _ := b.Place("A", d("99"), 1, market.Long, t0) // 区间外 → 撤销

	fills, cancelled := b.EvaluateOpenOrders(batch(t0.Add(time.Minute), map[string]market.Tick{
		"A": {High: d("11"), Low: d("9"), Volume: 10},
		"B": {High: d("52"), Low: d("49"), Volume: 10},
	}))

	require.Len(t, fills, 3)
	assert.Equal(t, []int64{idB1, idA1, idB2}, []int64{fills[0].OrderID, fills[1].OrderID, fills[2].OrderID})
	require.Len(t, cancelled, 1)
	assert.Equal(t, idA2, cancelled[0].ID)
	assert.Empty(t, b.Open())
}

func TestEvaluateOpenOrders_MissingTickKeepsOrderOpen(t *testing.T) {
	b := newTestBook()
	id, _ := b.Place("WDO", d("5000"), 1, market.Long, t0)

	fills, cancelled := b.EvaluateOpenOrders(batch(t0, map[string]market.Tick{
		"WIN": {High: d("2"), Low: d("1"), Volume: 1},
	}))
	assert.Empty(t, fills)
	assert.Empty(t, cancelled)

	o, _ := b.Get(id)
	assert.Equal(t, StatusOpen, o.Status)

	fills, _ = b.EvaluateOpenOrders(batch(t0.Add(time.Minute), map[string]market.Tick{
		"WDO": {High: d("5001"), Low: d("4999"), Volume: 1},
	}))
	require.Len(t, fills, 1)
	assert.Equal(t, id, fills[0].OrderID)
}

func TestEvaluateOpenOrders_TerminalOrdersNotReevaluated(t *testing.T) {
	b := newTestBook()
	b.Place("WIN", d("11"), 10, market.Long, t0)
	tick := map[string]market.Tick{"WIN": {High: d("12"), Low: d("10"), Volume: 3}}

	fills, _ := b.EvaluateOpenOrders(batch(t0, tick))
	require.Len(t, fills, 1)

	fills, cancelled := b.EvaluateOpenOrders(batch(t0.Add(time.Minute), tick))
	assert.Empty(t, fills)
	assert.Empty(t, cancelled)
}

func TestRollback(t *testing.T) {
	b := newTestBook()
	id, _ := b.Place("WIN", d("11"), 1, market.Long, t0)
	fills, _ := b.EvaluateOpenOrders(batch(t0, map[string]market.Tick{
		"WIN": {High: d("12"), Low: d("10"), Volume: 3},
	}))
	require.Len(t, fills, 1)

	require.NoError(t, b.Rollback(id, t0))
	o, _ := b.Get(id)
	assert.Equal(t, StatusCancelled, o.Status)

	assert.ErrorIs(t, b.Rollback(12345, t0), ErrOrderNotFound)
}

func TestRollback_OpenOrderLeavesBook(t *testing.T) {
	b := newTestBook()
	id, _ := b.Place("WIN", d("11"), 1, market.Long, t0)
	require.NoError(t, b.Rollback(id, t0))

	assert.Empty(t, b.Open())
	fills, cancelled := b.EvaluateOpenOrders(batch(t0, map[string]market.Tick{
		"WIN": {High: d("12"), Low: d("10"), Volume: 3},
	}))
	assert.Empty(t, fills)
	assert.Empty(t, cancelled)
	assert.Len(t, b.History(), 1)
}

func TestSnowflakeGenerator_Unique(t *testing.T) {
	g, err := NewSnowflakeGenerator(1)
	require.NoError(t, err)

	seen := make(map[int64]struct{})
	for i := 0; i < 5000; i++ {
		id := g.NextID()
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}

	_, err = NewSnowflakeGenerator(5000)
	assert.Error(t, err)
}
