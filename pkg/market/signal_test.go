package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bar(ts time.Time, mid int64) TickBatch {
	return TickBatch{Timestamp: ts, Ticks: map[string]Tick{
		"WIN": {High: decimal.NewFromInt(mid + 1), Low: decimal.NewFromInt(mid - 1), Volume: 10},
	}}
}

func TestMomentumSignals(t *testing.T) {
	t0 := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	mids := []int64{100, 102, 101, 101, 99}
	bars := make([]TickBatch, 0, len(mids))
	for i, m := range mids {
		bars = append(bars, bar(t0.Add(time.Duration(i)*time.Minute), m))
	}

	sigs := MomentumSignals(bars, 1)
	require.Len(t, sigs, len(bars))

	assert.Empty(t, sigs[0].Signals)
	assert.Equal(t, SignalBuy, sigs[1].Signals["WIN"])
	assert.Equal(t, SignalSell, sigs[2].Signals["WIN"])
	_, ok := sigs[3].Signals["WIN"]
	assert.False(t, ok, "flat mid gives no signal")
	assert.Equal(t, SignalSell, sigs[4].Signals["WIN"])
	for i := range bars {
		assert.True(t, sigs[i].Timestamp.Equal(bars[i].Timestamp))
	}
}

func TestMomentum_Lookback(t *testing.T) {
	t0 := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	m := NewMomentum(2)

	assert.Empty(t, m.Next(bar(t0, 100)).Signals)
	assert.Empty(t, m.Next(bar(t0.Add(time.Minute), 90)).Signals)
	// 与两个周期前的 100 比较
	assert.Equal(t, SignalBuy, m.Next(bar(t0.Add(2*time.Minute), 105)).Signals["WIN"])
	// 与 90 比较
	assert.Equal(t, SignalBuy, m.Next(bar(t0.Add(3*time.Minute), 95)).Signals["WIN"])
}
