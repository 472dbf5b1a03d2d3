// 文件: pkg/metrics/recorder.go
// Prometheus 指标
//
// Recorder 挂在控制器事件流上，把事件折算成计数器与仪表盘。
// 使用独立 Registry，测试之间互不干扰。

package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"max.com/portfolio/pkg/portfolio"
)

// Recorder 组合指标
type Recorder struct {
	registry *prometheus.Registry

	OrdersPlaced   *prometheus.CounterVec // asset, direction
	OrdersCanceled *prometheus.CounterVec // asset
	Transactions   *prometheus.CounterVec // asset, result=committed|rejected
	MarginSwitches *prometheus.CounterVec // kind=overnight|intraday
	Periods        prometheus.Counter

	Available   prometheus.Gauge
	Allocated   prometheus.Gauge
	NetPosition *prometheus.GaugeVec // asset，带方向的净持仓
}

// NewRecorder 创建并注册全部指标
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Recorder{registry: reg}

	r.OrdersPlaced = r.counterVec("portfolio_orders_placed_total", "Orders placed from signals", "asset", "direction")
	r.OrdersCanceled = r.counterVec("portfolio_orders_cancelled_total", "Orders cancelled during evaluation", "asset")
	r.Transactions = r.counterVec("portfolio_transactions_total", "Candidate transactions by admission result", "asset", "result")
	r.MarginSwitches = r.counterVec("portfolio_margin_switches_total", "Margin regime switches", "kind")

	r.Periods = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portfolio_periods_total",
		Help: "Processed periods",
	})
	r.Available = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "portfolio_available_capital",
		Help: "Capital available for new margin",
	})
	r.Allocated = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "portfolio_allocated_capital",
		Help: "Capital held as margin",
	})
	r.NetPosition = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "portfolio_net_position",
		Help: "Signed net position per asset",
	}, []string{"asset"})
	reg.MustRegister(r.Periods, r.Available, r.Allocated, r.NetPosition)

	return r
}

func (r *Recorder) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	r.registry.MustRegister(cv)
	return cv
}

// Registry 内部注册表
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Attach 注册到控制器
func (r *Recorder) Attach(c *portfolio.Controller) {
	c.OnEvent(r.Handle)
}

// Handle 处理单个控制器事件
func (r *Recorder) Handle(e portfolio.Event) {
	switch e.Type {
	case portfolio.EventOrderPlaced:
		if e.Order != nil {
			r.OrdersPlaced.WithLabelValues(e.Order.Asset, e.Order.Direction.String()).Inc()
		}
	case portfolio.EventOrderCancelled:
		if e.Order != nil {
			r.OrdersCanceled.WithLabelValues(e.Order.Asset).Inc()
		}
	case portfolio.EventTransactionCommitted:
		if e.Transaction != nil {
			r.Transactions.WithLabelValues(e.Transaction.Asset, "committed").Inc()
		}
	case portfolio.EventTransactionRejected:
		if e.Transaction != nil {
			r.Transactions.WithLabelValues(e.Transaction.Asset, "rejected").Inc()
		}
	case portfolio.EventMarginSwitched:
		r.MarginSwitches.WithLabelValues("overnight").Inc()
	case portfolio.EventMarginRestored:
		r.MarginSwitches.WithLabelValues("intraday").Inc()
	case portfolio.EventPeriodClosed:
		r.Periods.Inc()
		for _, p := range e.Positions {
			r.NetPosition.WithLabelValues(p.Asset).Set(float64(int64(p.Direction) * p.Quantity))
		}
	}

	r.Available.Set(e.Account.Available.InexactFloat64())
	r.Allocated.Set(e.Account.Allocated.InexactFloat64())
}

// Handler 暴露指标的 HTTP 处理器
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve 在 addr 上暴露 /metrics，返回关闭函数
func (r *Recorder) Serve(addr string, logger *slog.Logger) func() {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", slog.Any("err", err))
		}
	}()
	logger.Info("metrics server listening", slog.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("metrics server shutdown failed", slog.Any("err", err))
		}
	}
}
