// 文件: pkg/nats/publisher.go
// NATS 发布者
// 本地开发时替代 Kafka 作为组合日志出口

package nats

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Config 连接配置
type Config struct {
	URL           string        `mapstructure:"url"`
	Name          string        `mapstructure:"name"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "portfolio",
		MaxReconnects: 10,
		ReconnectWait: 2 * time.Second,
	}
}

// Connect 建立连接，断线/重连都会记日志
func Connect(cfg Config, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", slog.Any("err", err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", cfg.URL, err)
	}
	return conn, nil
}

// Publisher NATS 发布者
type Publisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewPublisher 创建发布者
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	conn, err := Connect(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewPublisherFrom(conn, logger), nil
}

// NewPublisherFrom 复用已有连接
func NewPublisherFrom(conn *nats.Conn, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger.With(slog.String("component", "nats_publisher"))}
}

// PublishRaw 发布原始字节
func (p *Publisher) PublishRaw(subject string, data []byte) error {
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Error("nats publish failed", slog.String("subject", subject), slog.Any("err", err))
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Flush 等待服务端确认已收到所有发布
func (p *Publisher) Flush(timeout time.Duration) error {
	return p.conn.FlushTimeout(timeout)
}

// Close 刷新并关闭连接
func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
