// 文件: pkg/config/config.go
// 应用配置 (viper + validator)
//
// 读取 YAML/TOML 文件，环境变量 PORTFOLIO_<SECTION>_<KEY> 覆盖文件值，
// 例如 PORTFOLIO_KAFKA_ENABLED=true。
//
// 注意: viper 会把 map 的 key 转成小写，资产代码在转换时统一转回大写。

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"max.com/portfolio/pkg/journal"
	"max.com/portfolio/pkg/kafka"
	"max.com/portfolio/pkg/logging"
	"max.com/portfolio/pkg/market"
	"max.com/portfolio/pkg/nats"
	"max.com/portfolio/pkg/portfolio"
	"max.com/portfolio/pkg/risk"
)

// ErrUnknownAsset 隔夜保证金配置了仿真里不存在的资产
var ErrUnknownAsset = errors.New("config: unknown asset")

const envPrefix = "PORTFOLIO"

// Config 顶级配置
type Config struct {
	Portfolio  PortfolioConfig  `mapstructure:"portfolio"`
	Log        logging.Config   `mapstructure:"log"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Nats       NatsConfig       `mapstructure:"nats"`
	MySQL      MySQLConfig      `mapstructure:"mysql"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Simulation SimulationConfig `mapstructure:"simulation"`
}

// PortfolioConfig 资金与风控参数，金额用字符串避免浮点误差
type PortfolioConfig struct {
	InitialCapital       string            `mapstructure:"initial_capital" validate:"required,numeric"`
	InitialAllocated     string            `mapstructure:"initial_allocated" validate:"omitempty,numeric"`
	StandardOrderSize    int64             `mapstructure:"standard_order_size" validate:"gte=0"`
	MaxSingleExposure    int64             `mapstructure:"max_single_exposure" validate:"gte=0"`
	MaxOverallExposure   int64             `mapstructure:"max_overall_exposure" validate:"gte=0"`
	IntradayMargin       string            `mapstructure:"intraday_margin" validate:"required,numeric"`
	OvernightDeltas      map[string]string `mapstructure:"overnight_deltas" validate:"dive,numeric"`
	ClosingTime          string            `mapstructure:"closing_time" validate:"omitempty,datetime=15:04"`
	Timezone             string            `mapstructure:"timezone" validate:"omitempty,timezone"`
	Admission            string            `mapstructure:"admission" validate:"omitempty,oneof=two-phase legacy"`
	FloorOpenedContracts bool              `mapstructure:"floor_opened_contracts"`
}

// KafkaConfig 组合日志的 Kafka 出口/入口
type KafkaConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Brokers        []string      `mapstructure:"brokers" validate:"required_if=Enabled true"`
	RequiredAcks   int           `mapstructure:"required_acks" validate:"oneof=-1 0 1"`
	Compression    string        `mapstructure:"compression" validate:"omitempty,oneof=none gzip snappy lz4 zstd"`
	FlushFrequency time.Duration `mapstructure:"flush_frequency"`
	FlushMessages  int           `mapstructure:"flush_messages" validate:"gte=0"`
	MaxRetries     int           `mapstructure:"max_retries" validate:"gte=0"`
	GroupID        string        `mapstructure:"group_id" validate:"required"`
	BatchSize      int           `mapstructure:"batch_size" validate:"gt=0"`
	FlushInterval  time.Duration `mapstructure:"flush_interval" validate:"gt=0"`
}

// NatsConfig NATS 出口/入口
type NatsConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url" validate:"required_if=Enabled true"`
	Name          string        `mapstructure:"name"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// MySQLConfig 归档库
type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SlowThreshold   time.Duration `mapstructure:"slow_threshold"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig 持仓快照缓存，Addr 为空则不用缓存
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// MetricsConfig /metrics 端点
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`
}

// SimulationConfig 合成行情回测
type SimulationConfig struct {
	Assets     map[string]float64 `mapstructure:"assets" validate:"dive,gt=0"` // 资产 → 初始价格
	Bars       int                `mapstructure:"bars" validate:"gte=0"`
	Interval   time.Duration      `mapstructure:"interval"`
	Volatility float64            `mapstructure:"volatility" validate:"gte=0"`
	BaseVolume int64              `mapstructure:"base_volume" validate:"gte=0"`
	Seed       int64              `mapstructure:"seed"`
	Lookback   int                `mapstructure:"lookback" validate:"gt=0"` // 动量信号回看周期数
	Start      string             `mapstructure:"start"` // RFC3339
}

// =============================================================================
// 默认值
// =============================================================================

// map 类型的默认值不能放进 viper: viper 按叶子 key 合并各层，
// 默认的资产会混进文件里配置的资产，所以在 Unmarshal 之后补
func applyMapDefaults(c *Config) {
	if len(c.Portfolio.OvernightDeltas) == 0 {
		pc := portfolio.DefaultConfig()
		c.Portfolio.OvernightDeltas = make(map[string]string, len(pc.OvernightDeltas))
		for a, d := range pc.OvernightDeltas {
			c.Portfolio.OvernightDeltas[a] = d.String()
		}
	}
	if len(c.Simulation.Assets) == 0 {
		c.Simulation.Assets = map[string]float64{"WIN": 120000, "WDO": 5000}
	}
}

func setDefaults(v *viper.Viper) {
	pc := portfolio.DefaultConfig()
	v.SetDefault("portfolio.initial_capital", pc.InitialCapital.String())
	v.SetDefault("portfolio.initial_allocated", "0")
	v.SetDefault("portfolio.standard_order_size", pc.Limits.StandardOrderSize)
	v.SetDefault("portfolio.max_single_exposure", pc.Limits.MaxSingleExposure)
	v.SetDefault("portfolio.max_overall_exposure", pc.Limits.MaxOverallExposure)
	v.SetDefault("portfolio.intraday_margin", pc.IntradayMargin.String())
	v.SetDefault("portfolio.closing_time", pc.ClosingTime)
	v.SetDefault("portfolio.timezone", "UTC")
	v.SetDefault("portfolio.admission", pc.Admission.String())
	v.SetDefault("portfolio.floor_opened_contracts", false)

	lc := logging.DefaultConfig("portfolio")
	v.SetDefault("log.service", lc.Service)
	v.SetDefault("log.module", lc.Module)
	v.SetDefault("log.level", lc.Level)
	v.SetDefault("log.format", lc.Format)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", lc.MaxSize)
	v.SetDefault("log.max_backups", lc.MaxBackups)
	v.SetDefault("log.max_age", lc.MaxAge)
	v.SetDefault("log.compress", false)

	kp := kafka.DefaultProducerConfig([]string{"localhost:9092"})
	wc := journal.DefaultWriterConfig()
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", kp.Brokers)
	v.SetDefault("kafka.required_acks", kp.RequiredAcks)
	v.SetDefault("kafka.compression", kp.Compression)
	v.SetDefault("kafka.flush_frequency", kp.FlushFrequency)
	v.SetDefault("kafka.flush_messages", kp.FlushMessages)
	v.SetDefault("kafka.max_retries", kp.MaxRetries)
	v.SetDefault("kafka.group_id", wc.GroupID)
	v.SetDefault("kafka.batch_size", wc.BatchSize)
	v.SetDefault("kafka.flush_interval", wc.FlushInterval)

	nc := nats.DefaultConfig()
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", nc.URL)
	v.SetDefault("nats.name", nc.Name)
	v.SetDefault("nats.max_reconnects", nc.MaxReconnects)
	v.SetDefault("nats.reconnect_wait", nc.ReconnectWait)

	v.SetDefault("mysql.dsn", "")
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.conn_max_lifetime", time.Hour)
	v.SetDefault("mysql.slow_threshold", 200*time.Millisecond)
	v.SetDefault("mysql.auto_migrate", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9100")

	bc := market.DefaultBarConfig(nil)
	v.SetDefault("simulation.bars", 1000)
	v.SetDefault("simulation.interval", bc.Interval)
	v.SetDefault("simulation.volatility", bc.Volatility)
	v.SetDefault("simulation.base_volume", bc.BaseVolume)
	v.SetDefault("simulation.seed", bc.Seed)
	v.SetDefault("simulation.lookback", 3)
	v.SetDefault("simulation.start", bc.Start.Format(time.RFC3339))
}

// =============================================================================
// 加载
// =============================================================================

// Load 读取配置文件 (path 为空时只用默认值和环境变量) 并校验
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyMapDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 结构体校验 + 跨字段检查
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if len(c.Simulation.Assets) == 0 {
		return nil
	}
	known := make(map[string]struct{}, len(c.Simulation.Assets))
	for a := range c.Simulation.Assets {
		known[strings.ToUpper(a)] = struct{}{}
	}
	for asset := range c.Portfolio.OvernightDeltas {
		if _, ok := known[strings.ToUpper(asset)]; !ok {
			return fmt.Errorf("%w: overnight delta for %s", ErrUnknownAsset, strings.ToUpper(asset))
		}
	}
	return nil
}

// =============================================================================
// 转换
// =============================================================================

// ControllerConfig 转换为控制器配置
func (c *Config) ControllerConfig() (portfolio.Config, error) {
	p := c.Portfolio
	out := portfolio.Config{
		Limits: risk.Limits{
			StandardOrderSize:  p.StandardOrderSize,
			MaxSingleExposure:  p.MaxSingleExposure,
			MaxOverallExposure: p.MaxOverallExposure,
		},
		OvernightDeltas:      make(map[string]decimal.Decimal, len(p.OvernightDeltas)),
		ClosingTime:          p.ClosingTime,
		FloorOpenedContracts: p.FloorOpenedContracts,
	}

	var err error
	if out.InitialCapital, err = decimal.NewFromString(p.InitialCapital); err != nil {
		return portfolio.Config{}, fmt.Errorf("initial_capital: %w", err)
	}
	out.InitialAllocated = decimal.Zero
	if p.InitialAllocated != "" {
		if out.InitialAllocated, err = decimal.NewFromString(p.InitialAllocated); err != nil {
			return portfolio.Config{}, fmt.Errorf("initial_allocated: %w", err)
		}
	}
	if out.IntradayMargin, err = decimal.NewFromString(p.IntradayMargin); err != nil {
		return portfolio.Config{}, fmt.Errorf("intraday_margin: %w", err)
	}
	for asset, s := range p.OvernightDeltas {
		delta, err := decimal.NewFromString(s)
		if err != nil {
			return portfolio.Config{}, fmt.Errorf("overnight_deltas.%s: %w", asset, err)
		}
		out.OvernightDeltas[strings.ToUpper(asset)] = delta
	}

	tz := p.Timezone
	if tz == "" {
		tz = "UTC"
	}
	if out.Location, err = time.LoadLocation(tz); err != nil {
		return portfolio.Config{}, fmt.Errorf("timezone %q: %w", tz, err)
	}
	if out.Admission, err = portfolio.ParseAdmissionMode(p.Admission); err != nil {
		return portfolio.Config{}, err
	}
	return out, out.Validate()
}

// Bars 转换为行情生成器配置
func (c *Config) Bars() (market.BarConfig, error) {
	s := c.Simulation
	assets := make(map[string]float64, len(s.Assets))
	for a, p := range s.Assets {
		assets[strings.ToUpper(a)] = p
	}

	bc := market.DefaultBarConfig(assets)
	if s.Interval > 0 {
		bc.Interval = s.Interval
	}
	bc.Volatility = s.Volatility
	bc.BaseVolume = s.BaseVolume
	bc.Seed = s.Seed
	if s.Start != "" {
		start, err := time.Parse(time.RFC3339, s.Start)
		if err != nil {
			return market.BarConfig{}, fmt.Errorf("simulation.start: %w", err)
		}
		bc.Start = start
	}
	return bc, nil
}

// ProducerConfig Kafka 生产者配置
func (c *Config) ProducerConfig() kafka.ProducerConfig {
	k := c.Kafka
	return kafka.ProducerConfig{
		Brokers:        k.Brokers,
		RequiredAcks:   k.RequiredAcks,
		Compression:    k.Compression,
		FlushFrequency: k.FlushFrequency,
		FlushMessages:  k.FlushMessages,
		MaxRetries:     k.MaxRetries,
	}
}

// WriterConfig 归档写入器配置
func (c *Config) WriterConfig() journal.WriterConfig {
	wc := journal.DefaultWriterConfig()
	wc.GroupID = c.Kafka.GroupID
	wc.BatchSize = c.Kafka.BatchSize
	wc.FlushInterval = c.Kafka.FlushInterval
	return wc
}

// NatsConfig NATS 连接配置
func (c *Config) NatsConfig() nats.Config {
	return nats.Config{
		URL:           c.Nats.URL,
		Name:          c.Nats.Name,
		MaxReconnects: c.Nats.MaxReconnects,
		ReconnectWait: c.Nats.ReconnectWait,
	}
}
