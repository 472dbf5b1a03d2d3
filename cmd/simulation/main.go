// 文件: cmd/simulation/main.go
// 合成行情回测
//
// 行情生成器 → 动量信号 → 组合控制器，可选把日志推到 Kafka/NATS、暴露 /metrics。
// 默认一次性回测；-stream 时逐根 K 线喂给控制器，Ctrl+C 提前结束。

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"max.com/portfolio/pkg/config"
	"max.com/portfolio/pkg/journal"
	"max.com/portfolio/pkg/kafka"
	"max.com/portfolio/pkg/logging"
	"max.com/portfolio/pkg/market"
	"max.com/portfolio/pkg/metrics"
	"max.com/portfolio/pkg/nats"
	"max.com/portfolio/pkg/portfolio"
)

func main() {
	os.Exit(runMain(os.Args[1:]))
}

// runMain 返回退出码；os.Exit 只在 main 里调用，保证日志文件先关闭
func runMain(args []string) int {
	fs := flag.NewFlagSet("simulation", flag.ContinueOnError)
	configPath := fs.String("config", "", "配置文件路径 (为空则只用默认值和环境变量)")
	stream := fs.Bool("stream", false, "逐根 K 线推进，而不是一次性回测")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 2
	}

	logger, closer := logging.New(cfg.Log)
	defer closer.Close()
	slog.SetDefault(logger)

	if err := run(cfg, *stream, logger); err != nil {
		logger.Error("simulation failed", slog.Any("err", err))
		return 1
	}
	return 0
}

func run(cfg *config.Config, stream bool, logger *slog.Logger) error {
	pc, err := cfg.ControllerConfig()
	if err != nil {
		return err
	}
	bc, err := cfg.Bars()
	if err != nil {
		return err
	}

	ctrl, err := portfolio.NewController(pc, portfolio.WithLogger(logger))
	if err != nil {
		return err
	}

	// 1. 日志出口
	// -------------------------------------------------------------------------
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.ProducerConfig(), logger)
		if err != nil {
			return err
		}
		sink := journal.NewKafkaSink(producer, logger)
		sink.Attach(ctrl)
		defer func() {
			if err := producer.Close(); err != nil {
				logger.Error("close kafka producer", slog.Any("err", err))
			}
			st := producer.Stats()
			logger.Info("kafka journal closed",
				slog.Int64("sent", st.SentCount),
				slog.Int64("errors", st.ErrorCount),
				slog.Int64("sink_failed", sink.Stats().Failed))
		}()
	}

	if cfg.Nats.Enabled {
		publisher, err := nats.NewPublisher(cfg.NatsConfig(), logger)
		if err != nil {
			return err
		}
		sink := journal.NewNatsSink(publisher, logger)
		sink.Attach(ctrl)
		defer func() {
			if err := publisher.Flush(5 * time.Second); err != nil {
				logger.Warn("flush nats", slog.Any("err", err))
			}
			publisher.Close()
			st := sink.Stats()
			logger.Info("nats journal closed",
				slog.Int64("published", st.Published),
				slog.Int64("failed", st.Failed))
		}()
	}

	// 2. 指标
	// -------------------------------------------------------------------------
	if cfg.Metrics.Enabled {
		rec := metrics.NewRecorder()
		rec.Attach(ctrl)
		shutdown := rec.Serve(cfg.Metrics.Addr, logger)
		defer shutdown()
	}

	// 3. 回测
	// -------------------------------------------------------------------------
	gen := market.NewBarGenerator(bc)
	lookback := cfg.Simulation.Lookback

	if stream {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := runStream(ctx, ctrl, gen, cfg.Simulation.Bars, lookback, logger); err != nil {
			return err
		}
	} else {
		bars := gen.Generate(cfg.Simulation.Bars)
		final, err := ctrl.Backtest(bars, market.MomentumSignals(bars, lookback))
		if err != nil {
			return err
		}
		logger.Info("backtest finished",
			slog.Int("bars", len(bars)),
			slog.String("final_capital", final.String()),
			slog.Int("transactions", len(ctrl.Transactions())))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(ctrl.Snapshot())
}

// runStream 生成器按阻塞 channel 推送 K 线，每根 K 线一个周期
func runStream(ctx context.Context, ctrl *portfolio.Controller, gen *market.BarGenerator,
	limit, lookback int, logger *slog.Logger) error {
	momentum := market.NewMomentum(lookback)
	bars := gen.Start(limit)
	defer gen.Stop()

	n := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("simulation interrupted", slog.Int("bars", n))
			return nil
		case bar, ok := <-bars:
			if !ok {
				logger.Info("simulation finished",
					slog.Int("bars", n),
					slog.String("available", ctrl.Account().Available.String()))
				return nil
			}
			if err := ctrl.ProcessPeriod(bar, momentum.Next(bar)); err != nil {
				return err
			}
			n++
		}
	}
}
