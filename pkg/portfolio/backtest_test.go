// 文件: pkg/portfolio/backtest_test.go
package portfolio

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"max.com/portfolio/pkg/market"
	"max.com/portfolio/pkg/order"
)

// =============================================================================
// 回测顺序
// =============================================================================

func TestBacktest_ProcessesPeriodsInTimeOrder(t *testing.T) {
	cfg := testConfig()
	cfg.InitialCapital = d("100000")
	c := newTestController(t, cfg)
	rec := &recorder{}
	c.OnEvent(rec.handle)

	t1 := day1
	t2 := day1.Add(5 * time.Minute)
	t3 := day1.Add(10 * time.Minute)

	// 输入顺序打乱: t3, t1, t2
	tickInput := []market.TickBatch{
		ticks(t3, "WIN", tick("90", "91", 10)),
		ticks(t1, "WIN", tick("99", "101", 10)),
		ticks(t2, "WIN", tick("100", "102", 10)),
	}
	// t1 的信号在 t1 按 101 下单，只有先处理 t1 再处理 t2 才会成交
	signalInput := []market.SignalBatch{
		signals(t1, map[string]market.Signal{"WIN": market.SignalBuy}),
	}

	final, err := c.Backtest(tickInput, signalInput)
	require.NoError(t, err)

	closed := rec.ofType(EventPeriodClosed)
	require.Len(t, closed, 3)
	assert.Equal(t, []time.Time{t1, t2, t3}, []time.Time{closed[0].Timestamp, closed[1].Timestamp, closed[2].Timestamp})

	txs := c.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, t2, txs[0].Timestamp)

	// 10 手 * 125
	assert.True(t, final.Equal(d("98750")), final.String())

	traj := c.Trajectory()
	require.Len(t, traj, 3)
	assert.True(t, traj[0].Available.Equal(d("100000")))
	assert.True(t, traj[1].Available.Equal(d("98750")))
	assert.Equal(t, t3, traj[2].Timestamp)
}

func TestBacktest_MergesBatchesWithSameTimestamp(t *testing.T) {
	c := newTestController(t, testConfig())
	rec := &recorder{}
	c.OnEvent(rec.handle)

	_, err := c.Backtest(
		[]market.TickBatch{
			ticks(day1, "WIN", tick("99", "101", 10)),
			ticks(day1, "WDO", tick("49", "51", 10)),
		},
		[]market.SignalBatch{
			signals(day1, map[string]market.Signal{"WIN": market.SignalBuy}),
			signals(day1, map[string]market.Signal{"WDO": market.SignalSell}),
			// 只有信号的周期
			signals(day1.Add(time.Minute), map[string]market.Signal{"WIN": market.SignalSell}),
		},
	)
	require.NoError(t, err)

	assert.Len(t, rec.ofType(EventPeriodClosed), 2)
	// 同一周期两个资产都下了单，只有信号的周期因为没有行情不下单
	assert.Len(t, rec.ofType(EventOrderPlaced), 2)
}

func TestBacktest_Deterministic(t *testing.T) {
	gen := market.NewBarGenerator(market.DefaultBarConfig(map[string]float64{"WIN": 120000, "WDO": 5000}))
	bars := gen.Generate(300)

	// 简单动量信号: 本周期中间价高于上周期 → 买，否则卖
	var sigs []market.SignalBatch
	prev := map[string]string{}
	for _, b := range bars {
		s := market.SignalBatch{Timestamp: b.Timestamp, Signals: map[string]market.Signal{}}
		for asset, tk := range b.Ticks {
			mid := tk.Mid().String()
			if p, ok := prev[asset]; ok {
				if d(mid).GreaterThan(d(p)) {
					s.Signals[asset] = market.SignalBuy
				} else {
					s.Signals[asset] = market.SignalSell
				}
			}
			prev[asset] = mid
		}
		sigs = append(sigs, s)
	}

	run := func() (string, []CapitalPoint, int) {
		cfg := DefaultConfig()
		c, err := NewController(cfg, WithIDGenerator(&order.SequenceGenerator{}))
		require.NoError(t, err)
		final, err := c.Backtest(bars, sigs)
		require.NoError(t, err)
		return final.String(), c.Trajectory(), len(c.Transactions())
	}

	f1, traj1, n1 := run()
	f2, traj2, n2 := run()
	assert.Equal(t, f1, f2)
	assert.Equal(t, n1, n2)
	require.Equal(t, len(traj1), len(traj2))
	for i := range traj1 {
		assert.True(t, traj1[i].Available.Equal(traj2[i].Available))
	}
	assert.Positive(t, n1, "momentum signals should trade at least once")
}

// =============================================================================
// 隔夜保证金
// =============================================================================

func marginScenario(t *testing.T, cfg Config, closeTs time.Time) (*Controller, *recorder) {
	c := newTestController(t, cfg)
	rec := &recorder{}
	c.OnEvent(rec.handle)

	c.book.Place("WIN", d("100"), 2, market.Long, day1)
	require.NoError(t, c.ProcessPeriod(ticks(day1, "WIN", tick("99", "101", 10)), noSignals(day1)))
	require.True(t, c.Account().Allocated.Equal(d("250")))

	require.NoError(t, c.ProcessPeriod(ticks(closeTs, "WIN", tick("99", "101", 10)), noSignals(closeTs)))
	return c, rec
}

func TestMarginRegime_SwitchAndRestore(t *testing.T) {
	cfg := testConfig()
	cfg.InitialCapital = d("100000")
	closeTs := time.Date(2024, 1, 2, 17, 55, 0, 0, time.UTC)

	c, rec := marginScenario(t, cfg, closeTs)

	// 2 手 * 375
	switched := rec.ofType(EventMarginSwitched)
	require.Len(t, switched, 1)
	assert.True(t, switched[0].Adjustment.Equal(d("750")))
	assert.True(t, c.Account().Allocated.Equal(d("1000")))
	assert.True(t, c.Account().Available.Equal(d("99000")))
	assert.True(t, c.Snapshot().OvernightMargin)

	// 同一交易日收盘后的周期不恢复
	late := closeTs.Add(5 * time.Minute)
	require.NoError(t, c.ProcessPeriod(ticks(late, "WIN", tick("99", "101", 10)), noSignals(late)))
	assert.Empty(t, rec.ofType(EventMarginRestored))

	// 次日第一个周期恢复
	next := time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)
	require.NoError(t, c.ProcessPeriod(ticks(next, "WIN", tick("99", "101", 10)), noSignals(next)))

	restored := rec.ofType(EventMarginRestored)
	require.Len(t, restored, 1)
	assert.True(t, restored[0].Adjustment.Equal(d("750")))
	assert.True(t, c.Account().Allocated.Equal(d("250")))
	assert.True(t, c.Account().Available.Equal(d("99750")))
	assert.False(t, c.Snapshot().OvernightMargin)
}

func TestMarginRegime_ClosingTimeNeverMatches(t *testing.T) {
	cfg := testConfig()
	cfg.InitialCapital = d("100000")
	cfg.ClosingTime = "23:59"

	c, rec := marginScenario(t, cfg, time.Date(2024, 1, 2, 17, 55, 0, 0, time.UTC))
	assert.Empty(t, rec.ofType(EventMarginSwitched))
	assert.True(t, c.Account().Allocated.Equal(d("250")))
}

func TestMarginRegime_UsesConfiguredLocation(t *testing.T) {
	cfg := testConfig()
	cfg.InitialCapital = d("100000")
	cfg.Location = time.FixedZone("BRT", -3*3600)

	// 20:55 UTC == 17:55 BRT
	closeTs := time.Date(2024, 1, 2, 20, 55, 0, 0, time.UTC)
	c, rec := marginScenario(t, cfg, closeTs)
	require.Len(t, rec.ofType(EventMarginSwitched), 1)

	// 01:00 UTC 次日仍是 BRT 的 1 月 2 日，不恢复
	mid := time.Date(2024, 1, 3, 1, 0, 0, 0, time.UTC)
	require.NoError(t, c.ProcessPeriod(ticks(mid, "WIN", tick("99", "101", 10)), noSignals(mid)))
	assert.Empty(t, rec.ofType(EventMarginRestored))
}

func TestMarginRegime_AssetWithoutDelta(t *testing.T) {
	cfg := testConfig()
	cfg.InitialCapital = d("100000")
	c := newTestController(t, cfg)
	rec := &recorder{}
	c.OnEvent(rec.handle)

	c.book.Place("IND", d("100"), 2, market.Long, day1)
	require.NoError(t, c.ProcessPeriod(ticks(day1, "IND", tick("99", "101", 10)), noSignals(day1)))

	closeTs := time.Date(2024, 1, 2, 17, 55, 0, 0, time.UTC)
	require.NoError(t, c.ProcessPeriod(ticks(closeTs), noSignals(closeTs)))

	switched := rec.ofType(EventMarginSwitched)
	require.Len(t, switched, 1)
	assert.True(t, switched[0].Adjustment.IsZero())
}

func TestMarginRegime_NoPositionNoSwitch(t *testing.T) {
	c := newTestController(t, testConfig())
	rec := &recorder{}
	c.OnEvent(rec.handle)

	closeTs := time.Date(2024, 1, 2, 17, 55, 0, 0, time.UTC)
	require.NoError(t, c.ProcessPeriod(ticks(closeTs), noSignals(closeTs)))
	assert.Empty(t, rec.ofType(EventMarginSwitched))
}

// =============================================================================
// 配置
// =============================================================================

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := []func(*Config){
		func(c *Config) { c.IntradayMargin = d("0") },
		func(c *Config) { c.ClosingTime = "25:99" },
		func(c *Config) { c.Limits.MaxOverallExposure = -1 },
		func(c *Config) { c.InitialCapital = d("-1") },
		func(c *Config) { c.OvernightDeltas = map[string]decimal.Decimal{"WIN": d("-5")} },
		func(c *Config) { c.Admission = AdmissionMode(9) },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig, "case %d", i)

		_, err := NewController(cfg)
		assert.Error(t, err, "case %d", i)
	}

	mode, err := ParseAdmissionMode("legacy")
	require.NoError(t, err)
	assert.Equal(t, AdmissionLegacy, mode)
	_, err = ParseAdmissionMode("eventually")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
