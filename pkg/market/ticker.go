// 文件: pkg/market/ticker.go
// 模拟 K 线生成器 (回测/仿真用)
//
// 使用几何布朗运动 (GBM) 为每个资产生成 high/low/volume，
// 并按交易时段推进周期时间戳。

package market

import (
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

// BarConfig 生成器配置
type BarConfig struct {
	Assets       map[string]float64 // 资产 → 初始价格
	Volatility   float64            // 年化波动率，如 0.3 代表 30%
	BaseVolume   int64              // 每周期平均成交量
	PriceDigits  int32              // 价格保留小数位
	Interval     time.Duration      // 周期长度
	Start        time.Time          // 第一根 K 线时间
	SessionOpen  time.Duration      // 交易时段开始 (距零点)，0 表示全天
	SessionClose time.Duration      // 交易时段结束 (含)，0 表示全天
	Seed         int64              // 随机种子，相同种子生成相同序列
}

// DefaultBarConfig 默认配置: 5 分钟 K 线，09:00-18:00 交易时段
func DefaultBarConfig(assets map[string]float64) BarConfig {
	return BarConfig{
		Assets:       assets,
		Volatility:   0.3,
		BaseVolume:   50,
		PriceDigits:  2,
		Interval:     5 * time.Minute,
		Start:        time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
		SessionOpen:  9 * time.Hour,
		SessionClose: 18 * time.Hour,
		Seed:         1,
	}
}

// BarGenerator K 线生成器
type BarGenerator struct {
	cfg    BarConfig
	prices map[string]float64
	assets []string
	now    time.Time
	rng    *rand.Rand

	stopChan chan struct{}
	outChan  chan TickBatch
}

// NewBarGenerator 创建生成器
func NewBarGenerator(cfg BarConfig) *BarGenerator {
	prices := make(map[string]float64, len(cfg.Assets))
	for a, p := range cfg.Assets {
		prices[a] = p
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &BarGenerator{
		cfg:      cfg,
		prices:   prices,
		assets:   sortedKeys(cfg.Assets),
		now:      cfg.Start,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		stopChan: make(chan struct{}),
		outChan:  make(chan TickBatch, 64),
	}
}

// Next 同步生成下一根 K 线
func (g *BarGenerator) Next() TickBatch {
	ts := g.now
	g.now = g.advance(ts)

	// dt 以"年"为单位，和波动率的年化口径一致
	dt := g.cfg.Interval.Hours() / 24 / 365
	sigma := g.cfg.Volatility

	batch := TickBatch{Timestamp: ts, Ticks: make(map[string]Tick, len(g.assets))}
	for _, asset := range g.assets {
		open := g.prices[asset]

		// S_new = S * exp(-0.5*σ²*dt + σ*sqrt(dt)*Z)
		z := g.rng.NormFloat64()
		closePrice := open * math.Exp(-0.5*sigma*sigma*dt+sigma*math.Sqrt(dt)*z)
		g.prices[asset] = closePrice

		// 影线长度: 半个标准差内随机
		wick := sigma * math.Sqrt(dt) * 0.5
		high := math.Max(open, closePrice) * (1 + math.Abs(g.rng.NormFloat64())*wick)
		low := math.Min(open, closePrice) * (1 - math.Abs(g.rng.NormFloat64())*wick)

		volume := int64(float64(g.cfg.BaseVolume) * (0.5 + g.rng.Float64()))

		batch.Ticks[asset] = Tick{
			High:   decimal.NewFromFloat(high).Round(g.cfg.PriceDigits),
			Low:    decimal.NewFromFloat(low).Round(g.cfg.PriceDigits),
			Volume: volume,
		}
	}
	return batch
}

// advance 计算下一个周期时间戳，跨过收盘则跳到下一交易日开盘
func (g *BarGenerator) advance(ts time.Time) time.Time {
	next := ts.Add(g.cfg.Interval)
	if g.cfg.SessionClose <= 0 {
		return next
	}
	day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
	if next.Sub(day) > g.cfg.SessionClose {
		return day.AddDate(0, 0, 1).Add(g.cfg.SessionOpen)
	}
	return next
}

// Generate 一次性生成 n 根 K 线
func (g *BarGenerator) Generate(n int) []TickBatch {
	out := make([]TickBatch, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.Next())
	}
	return out
}

// Start 在后台持续生成，直到 Stop 或生成 limit 根 (limit<=0 表示不限)
//
// 和实时行情不同，回测不能丢 K 线，所以这里是阻塞发送。
func (g *BarGenerator) Start(limit int) <-chan TickBatch {
	go g.loop(limit)
	return g.outChan
}

// Stop 停止生成
func (g *BarGenerator) Stop() {
	close(g.stopChan)
}

func (g *BarGenerator) loop(limit int) {
	defer close(g.outChan)

	for i := 0; limit <= 0 || i < limit; i++ {
		bar := g.Next()
		select {
		case <-g.stopChan:
			return
		case g.outChan <- bar:
		}
	}
}
