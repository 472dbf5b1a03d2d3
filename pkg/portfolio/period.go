// 文件: pkg/portfolio/period.go
package portfolio

import (
	"sort"

	"max.com/portfolio/pkg/market"
)

type period struct {
	ticks   market.TickBatch
	signals market.SignalBatch
}

// mergePeriods 按时间戳合并行情与信号批次，并按时间升序排列
func mergePeriods(ticks []market.TickBatch, signals []market.SignalBatch) []period {
	byTs := make(map[int64]*period)
	get := func(b market.TickBatch) *period {
		key := b.Timestamp.UnixNano()
		p, ok := byTs[key]
		if !ok {
			p = &period{
				ticks:   market.TickBatch{Timestamp: b.Timestamp, Ticks: make(map[string]market.Tick)},
				signals: market.SignalBatch{Timestamp: b.Timestamp, Signals: make(map[string]market.Signal)},
			}
			byTs[key] = p
		}
		return p
	}

	for _, b := range ticks {
		p := get(b)
		for asset, t := range b.Ticks {
			p.ticks.Ticks[asset] = t
		}
	}
	for _, s := range signals {
		p := get(market.TickBatch{Timestamp: s.Timestamp})
		for asset, v := range s.Signals {
			p.signals.Signals[asset] = v
		}
	}

	out := make([]period, 0, len(byTs))
	for _, p := range byTs {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ticks.Timestamp.Before(out[j].ticks.Timestamp)
	})
	return out
}
