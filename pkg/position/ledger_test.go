package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"max.com/portfolio/pkg/market"
	"max.com/portfolio/pkg/transaction"
)

func assetTx(asset string, dir market.Direction, price string, qty int64) transaction.Transaction {
	return transaction.New(0, asset, d(price), qty, dir, time.Unix(0, 0))
}

func TestLedger_UpdatePositionGetOrCreate(t *testing.T) {
	l := NewLedger()
	_, ok := l.Get("WIN")
	require.False(t, ok)

	profit, opened := l.UpdatePosition(assetTx("WIN", market.Long, "100", 3))
	assert.True(t, profit.IsZero())
	assert.Equal(t, int64(3), opened)

	p, ok := l.Get("WIN")
	require.True(t, ok)
	assert.Equal(t, int64(3), p.Net())

	profit, opened = l.UpdatePosition(assetTx("WIN", market.Short, "101", 3))
	assert.True(t, profit.Equal(d("3")))
	assert.Equal(t, int64(-3), opened)
}

func TestLedger_PreviewDoesNotMutate(t *testing.T) {
	l := NewLedger()
	l.UpdatePosition(assetTx("WIN", market.Long, "100", 3))

	e := l.Preview(assetTx("WIN", market.Short, "110", 5))
	assert.True(t, e.Profit.Equal(d("30")))
	assert.Equal(t, int64(3), e.Liquidated)
	assert.Equal(t, int64(-1), e.Opened)

	// 账本不变
	p, _ := l.Get("WIN")
	assert.Equal(t, int64(3), p.Net())

	// 新资产试算不会创建持仓
	l.Preview(assetTx("WDO", market.Long, "5000", 1))
	_, ok := l.Get("WDO")
	assert.False(t, ok)

	l.Commit(e)
	p, _ = l.Get("WIN")
	assert.Equal(t, int64(-2), p.Net())
}

func TestLedger_Exposure(t *testing.T) {
	l := NewLedger()
	l.UpdatePosition(assetTx("WIN", market.Long, "100", 3))
	l.UpdatePosition(assetTx("WDO", market.Short, "5000", 2))

	assert.Equal(t, int64(3), l.Exposure("WIN", market.Long))
	assert.Equal(t, int64(0), l.Exposure("WIN", market.Short))
	assert.Equal(t, int64(2), l.Exposure("WDO", market.Short))
	assert.Equal(t, int64(0), l.Exposure("IND", market.Long))
	assert.Equal(t, int64(5), l.AggregateExposure())

	assert.Equal(t, map[string]int64{"WIN": 3, "WDO": -2}, l.NetPositions())
	assert.Equal(t, []string{"WDO", "WIN"}, l.Assets())

	sum := l.Summary()
	assert.Equal(t, market.Short, sum["WDO"].Direction)
	assert.Equal(t, int64(2), sum["WDO"].Quantity)
}
