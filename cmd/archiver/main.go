// 文件: cmd/archiver/main.go
// 组合日志归档服务
//
// Kafka/NATS → MySQL (持仓快照额外写 Redis 缓存)。
// 多实例部署时 Kafka 按消费组、NATS 按队列组分摊消息。

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"max.com/portfolio/pkg/config"
	"max.com/portfolio/pkg/journal"
	"max.com/portfolio/pkg/logging"
	"max.com/portfolio/pkg/position"
)

func main() {
	os.Exit(runMain(os.Args[1:]))
}

// runMain 返回退出码；os.Exit 只在 main 里调用，保证日志文件先关闭
func runMain(args []string) int {
	fs := flag.NewFlagSet("archiver", flag.ContinueOnError)
	configPath := fs.String("config", "", "配置文件路径")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 2
	}

	cfg.Log.Module = "archiver"
	logger, closer := logging.New(cfg.Log)
	defer closer.Close()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("archiver failed", slog.Any("err", err))
		return 1
	}
	return 0
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if cfg.MySQL.DSN == "" {
		return errors.New("mysql.dsn is required")
	}
	if !cfg.Kafka.Enabled && !cfg.Nats.Enabled {
		return errors.New("enable kafka or nats as the journal source")
	}

	// 1. 存储
	// -------------------------------------------------------------------------
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: logging.NewGormLogger(logger, cfg.MySQL.SlowThreshold),
	})
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	sqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if cfg.MySQL.AutoMigrate {
		if err := journal.AutoMigrate(db); err != nil {
			return err
		}
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			return err
		}
	}

	store := journal.NewMySQLStore(db, position.NewCachedSnapshotRepository(db, rdb))

	// 2. 消费
	// -------------------------------------------------------------------------
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var stops []func()
	stopAll := func() {
		for _, s := range stops {
			s()
		}
	}

	if cfg.Kafka.Enabled {
		w, err := journal.NewWriter(cfg.Kafka.Brokers, cfg.WriterConfig(), store, logger)
		if err != nil {
			return err
		}
		w.Start(ctx)
		stops = append(stops, func() {
			if err := w.Stop(); err != nil {
				logger.Error("stop kafka writer", slog.Any("err", err))
			}
			logStats(logger, "kafka", w.Stats())
		})
	}

	if cfg.Nats.Enabled {
		w, err := journal.NewNatsWriter(cfg.NatsConfig(), cfg.WriterConfig(), store, logger)
		if err != nil {
			stopAll()
			return err
		}
		if err := w.Start(ctx); err != nil {
			stopAll()
			return err
		}
		stops = append(stops, func() {
			if err := w.Stop(); err != nil {
				logger.Error("stop nats writer", slog.Any("err", err))
			}
			logStats(logger, "nats", w.Stats())
		})
	}

	logger.Info("archiver started",
		slog.Bool("kafka", cfg.Kafka.Enabled),
		slog.Bool("nats", cfg.Nats.Enabled),
		slog.Bool("redis_cache", rdb != nil))

	<-ctx.Done()
	logger.Info("shutting down archiver")
	stopAll()
	return nil
}

func logStats(logger *slog.Logger, source string, st journal.WriterStats) {
	logger.Info("journal writer stopped",
		slog.String("source", source),
		slog.Int64("received", st.Received),
		slog.Int64("written", st.Written),
		slog.Int64("errors", st.Errors),
		slog.Int64("batches", st.Batches),
		slog.Int64("retries", st.Retries),
		slog.Int64("dropped", st.Dropped))
}
