// 文件: pkg/kafka/consumer.go
// Kafka 消费者组
//
// 归档进程用它把组合日志落库。处理函数返回错误时只记日志，
// offset 照常提交，坏消息不会阻塞分区。

package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"
)

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	GroupID       string   `mapstructure:"group_id"`
	Topics        []string `mapstructure:"topics"`
	OffsetInitial int64    `mapstructure:"offset_initial"` // -1=newest, -2=oldest
	AutoCommit    bool     `mapstructure:"auto_commit"`
}

// DefaultConsumerConfig 默认配置
func DefaultConsumerConfig(brokers []string, groupID string, topics []string) ConsumerConfig {
	return ConsumerConfig{
		Brokers:       brokers,
		GroupID:       groupID,
		Topics:        topics,
		OffsetInitial: sarama.OffsetOldest,
		AutoCommit:    true,
	}
}

// MessageHandler 消息处理函数
type MessageHandler func(ctx context.Context, msg *sarama.ConsumerMessage) error

// Consumer 消费者组封装
type Consumer struct {
	client  sarama.ConsumerGroup
	topics  []string
	handler MessageHandler
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer 创建消费者
func NewConsumer(cfg ConsumerConfig, handler MessageHandler, logger *slog.Logger) (*Consumer, error) {
	sc := sarama.NewConfig()
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = cfg.OffsetInitial
	sc.Consumer.Offsets.AutoCommit.Enable = cfg.AutoCommit
	sc.Consumer.Return.Errors = true

	client, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("create consumer group %s: %w", cfg.GroupID, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		client:  client,
		topics:  cfg.Topics,
		handler: handler,
		logger:  logger.With(slog.String("component", "kafka_consumer"), slog.String("group", cfg.GroupID)),
	}, nil
}

// Start 在后台加入消费者组，ctx 取消或 Stop 时退出
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		for err := range c.client.Errors() {
			c.logger.Error("consumer group error", slog.Any("err", err))
		}
	}()
	go func() {
		defer c.wg.Done()
		h := &groupHandler{handler: c.handler, logger: c.logger}
		for {
			// rebalance 后 Consume 返回，需要重新加入
			if err := c.client.Consume(ctx, c.topics, h); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("consume failed", slog.Any("err", err))
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
}

// Stop 停止消费并关闭客户端
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	err := c.client.Close()
	c.wg.Wait()
	return err
}

// groupHandler 实现 sarama.ConsumerGroupHandler
type groupHandler struct {
	handler MessageHandler
	logger  *slog.Logger
}

func (h *groupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.handler(session.Context(), msg); err != nil {
				h.logger.Error("handle message failed",
					slog.String("topic", msg.Topic),
					slog.Int("partition", int(msg.Partition)),
					slog.Int64("offset", msg.Offset),
					slog.Any("err", err),
				)
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
