// 文件: pkg/metrics/recorder_test.go
package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"max.com/portfolio/pkg/market"
	"max.com/portfolio/pkg/order"
	"max.com/portfolio/pkg/portfolio"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRecorder_CountsControllerEvents(t *testing.T) {
	c, err := portfolio.NewController(portfolio.DefaultConfig(), portfolio.WithIDGenerator(&order.SequenceGenerator{}))
	require.NoError(t, err)
	r := NewRecorder()
	r.Attach(c)

	tick := market.Tick{High: d("101"), Low: d("99"), Volume: 10}
	t0 := time.Date(2024, 1, 2, 17, 50, 0, 0, time.UTC)
	t1 := t0.Add(5 * time.Minute) // 17:55 收盘
	t2 := time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)

	_, err = c.Backtest(
		[]market.TickBatch{
			{Timestamp: t0, Ticks: map[string]market.Tick{"WIN": tick}},
			{Timestamp: t1, Ticks: map[string]market.Tick{"WIN": tick}},
			{Timestamp: t2, Ticks: map[string]market.Tick{"WDO": tick}},
		},
		[]market.SignalBatch{
			{Timestamp: t0, Signals: map[string]market.Signal{"WIN": market.SignalBuy}},
		},
	)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.OrdersPlaced.WithLabelValues("WIN", "LONG")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Transactions.WithLabelValues("WIN", "committed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.Transactions.WithLabelValues("WIN", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.MarginSwitches.WithLabelValues("overnight")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.MarginSwitches.WithLabelValues("intraday")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.Periods))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.NetPosition.WithLabelValues("WIN")))

	// 恢复日内保证金后: 100000 - 125
	assert.Equal(t, 99875.0, testutil.ToFloat64(r.Available))
	assert.Equal(t, 125.0, testutil.ToFloat64(r.Allocated))
}

func TestRecorder_RejectedAndCancelled(t *testing.T) {
	cfg := portfolio.DefaultConfig()
	cfg.InitialCapital = d("100")
	c, err := portfolio.NewController(cfg, portfolio.WithIDGenerator(&order.SequenceGenerator{}))
	require.NoError(t, err)
	r := NewRecorder()
	r.Attach(c)

	t0 := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)
	t2 := t1.Add(time.Minute)
	tick := market.Tick{High: d("101"), Low: d("99"), Volume: 10}
	far := market.Tick{High: d("50"), Low: d("40"), Volume: 10}

	_, err = c.Backtest(
		[]market.TickBatch{
			{Timestamp: t0, Ticks: map[string]market.Tick{"WIN": tick, "WDO": tick}},
			{Timestamp: t1, Ticks: map[string]market.Tick{"WIN": tick, "WDO": far}},
			{Timestamp: t2, Ticks: map[string]market.Tick{}},
		},
		[]market.SignalBatch{
			{Timestamp: t0, Signals: map[string]market.Signal{"WIN": market.SignalSell, "WDO": market.SignalBuy}},
		},
	)
	require.NoError(t, err)

	// 保证金 125 > 可用 100
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Transactions.WithLabelValues("WIN", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.OrdersCanceled.WithLabelValues("WDO")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.OrdersPlaced.WithLabelValues("WIN", "SHORT")))
	assert.Equal(t, 100.0, testutil.ToFloat64(r.Available))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.Handle(portfolio.Event{Type: portfolio.EventPeriodClosed})

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "portfolio_periods_total 1")
	assert.Contains(t, string(body), "portfolio_available_capital")
	assert.Contains(t, string(body), "go_goroutines")
}
