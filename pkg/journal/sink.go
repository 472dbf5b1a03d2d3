// 文件: pkg/journal/sink.go
// 组合日志 - 发布端
//
// Sink 挂在控制器的事件流上，把事件转换成消息发到 Kafka 或 NATS。
// 发送失败只记日志和计数，不影响控制器。

package journal

import (
	"log/slog"
	"sync/atomic"

	"max.com/portfolio/pkg/kafka"
	"max.com/portfolio/pkg/nats"
	"max.com/portfolio/pkg/portfolio"
)

// Sender 消息发送方
type Sender interface {
	Send(msg kafka.Message) error
}

// SinkStats 统计
type SinkStats struct {
	Published int64
	Failed    int64
}

// Sink 事件 → 消息发布器
type Sink struct {
	sender Sender
	logger *slog.Logger

	published atomic.Int64
	failed    atomic.Int64
}

// NewSink 包装任意发送方
func NewSink(sender Sender, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{sender: sender, logger: logger.With(slog.String("component", "journal_sink"))}
}

// NewKafkaSink Kafka 出口
func NewKafkaSink(p *kafka.Producer, logger *slog.Logger) *Sink {
	return NewSink(p, logger)
}

// NewNatsSink NATS 出口，subject 与 Kafka topic 同名
func NewNatsSink(p *nats.Publisher, logger *slog.Logger) *Sink {
	return NewSink(natsSender{p}, logger)
}

// Attach 注册到控制器
func (s *Sink) Attach(c *portfolio.Controller) {
	c.OnEvent(s.Handle)
}

// Handle 处理单个控制器事件
func (s *Sink) Handle(e portfolio.Event) {
	for _, msg := range FromEvent(e) {
		if err := s.sender.Send(msg); err != nil {
			s.failed.Add(1)
			s.logger.Error("publish journal message failed",
				slog.String("topic", msg.Topic()),
				slog.String("key", msg.Key()),
				slog.String("event", e.Type.String()),
				slog.Any("err", err),
			)
			continue
		}
		s.published.Add(1)
	}
}

// Stats 获取统计
func (s *Sink) Stats() SinkStats {
	return SinkStats{Published: s.published.Load(), Failed: s.failed.Load()}
}

type natsSender struct {
	p *nats.Publisher
}

func (n natsSender) Send(msg kafka.Message) error {
	data, err := msg.Value()
	if err != nil {
		return err
	}
	return n.p.PublishRaw(msg.Topic(), data)
}
