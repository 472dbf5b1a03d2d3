// 文件: pkg/nats/subscriber.go
// NATS 订阅者

package nats

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// MessageHandler 消息处理函数
type MessageHandler func(subject string, data []byte) error

// Subscriber NATS 订阅者
type Subscriber struct {
	conn    *nats.Conn
	subs    []*nats.Subscription
	handler MessageHandler
	logger  *slog.Logger
}

// NewSubscriber 创建订阅者
func NewSubscriber(cfg Config, handler MessageHandler, logger *slog.Logger) (*Subscriber, error) {
	conn, err := Connect(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewSubscriberFrom(conn, handler, logger), nil
}

// NewSubscriberFrom 复用已有连接
func NewSubscriberFrom(conn *nats.Conn, handler MessageHandler, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		conn:    conn,
		handler: handler,
		logger:  logger.With(slog.String("component", "nats_subscriber")),
	}
}

func (s *Subscriber) onMessage(msg *nats.Msg) {
	if err := s.handler(msg.Subject, msg.Data); err != nil {
		s.logger.Error("handle message failed", slog.String("subject", msg.Subject), slog.Any("err", err))
	}
}

// Subscribe 订阅主题
func (s *Subscriber) Subscribe(subjects ...string) error {
	for _, subject := range subjects {
		sub, err := s.conn.Subscribe(subject, s.onMessage)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	return nil
}

// SubscribeQueue 队列订阅 (同组内负载均衡)
func (s *Subscriber) SubscribeQueue(subject, queue string) error {
	sub, err := s.conn.QueueSubscribe(subject, queue, s.onMessage)
	if err != nil {
		return fmt.Errorf("queue subscribe %s/%s: %w", subject, queue, err)
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close 退订并关闭连接
func (s *Subscriber) Close() error {
	var errs []error
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	s.conn.Close()
	return errors.Join(errs...)
}
