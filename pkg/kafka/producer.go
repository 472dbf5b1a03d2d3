// 文件: pkg/kafka/producer.go
// Kafka 生产者 (组合日志的出口)
//
// - 异步发送，错误在后台协程里记日志并计数
// - 同一个 key 落到同一分区，保证单资产消息有序
// - Close 会等待 sarama 把缓冲区里的消息刷完

package kafka

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
)

// ErrProducerClosed 生产者已关闭
var ErrProducerClosed = errors.New("kafka: producer is closed")

// Message 通用消息接口
type Message interface {
	Topic() string          // 目标 topic
	Key() string            // 分区 key (相同 key 保证顺序)
	Value() ([]byte, error) // 消息体
}

// ProducerConfig 生产者配置
type ProducerConfig struct {
	Brokers        []string      `mapstructure:"brokers"`
	RequiredAcks   int           `mapstructure:"required_acks"` // 0=不等待, 1=leader, -1=全部
	Compression    string        `mapstructure:"compression"`
	FlushFrequency time.Duration `mapstructure:"flush_frequency"`
	FlushMessages  int           `mapstructure:"flush_messages"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

// DefaultProducerConfig 默认配置
func DefaultProducerConfig(brokers []string) ProducerConfig {
	return ProducerConfig{
		Brokers:        brokers,
		RequiredAcks:   1,
		Compression:    "snappy",
		FlushFrequency: 100 * time.Millisecond,
		FlushMessages:  100,
		MaxRetries:     3,
	}
}

// SaramaConfig 转换为 sarama 配置
func (cfg ProducerConfig) SaramaConfig() *sarama.Config {
	sc := sarama.NewConfig()

	switch cfg.RequiredAcks {
	case 0:
		sc.Producer.RequiredAcks = sarama.NoResponse
	case -1:
		sc.Producer.RequiredAcks = sarama.WaitForAll
	default:
		sc.Producer.RequiredAcks = sarama.WaitForLocal
	}

	switch cfg.Compression {
	case "gzip":
		sc.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		sc.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		sc.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		sc.Producer.Compression = sarama.CompressionZSTD
	default:
		sc.Producer.Compression = sarama.CompressionNone
	}

	sc.Producer.Flush.Frequency = cfg.FlushFrequency
	sc.Producer.Flush.Messages = cfg.FlushMessages
	sc.Producer.Retry.Max = cfg.MaxRetries
	sc.Producer.Partitioner = sarama.NewHashPartitioner

	sc.Producer.Return.Successes = false
	sc.Producer.Return.Errors = true
	return sc
}

// =============================================================================
// Producer
// =============================================================================

// Producer Kafka 异步生产者
type Producer struct {
	producer sarama.AsyncProducer
	logger   *slog.Logger

	sentCount  atomic.Int64
	errorCount atomic.Int64

	closed atomic.Bool
	mu     sync.RWMutex // 保护 Input() 与 Close 的并发
	wg     sync.WaitGroup
}

// NewProducer 连接 broker 并创建生产者
func NewProducer(cfg ProducerConfig, logger *slog.Logger) (*Producer, error) {
	ap, err := sarama.NewAsyncProducer(cfg.Brokers, cfg.SaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewProducerFrom(ap, logger), nil
}

// NewProducerFrom 包装已有的 sarama.AsyncProducer (测试时传入 mocks)
func NewProducerFrom(ap sarama.AsyncProducer, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Producer{
		producer: ap,
		logger:   logger.With(slog.String("component", "kafka_producer")),
	}
	p.wg.Add(1)
	go p.handleErrors()
	return p
}

// Send 序列化并异步发送
func (p *Producer) Send(msg Message) error {
	data, err := msg.Value()
	if err != nil {
		return fmt.Errorf("serialize %s message: %w", msg.Topic(), err)
	}
	return p.SendRaw(msg.Topic(), msg.Key(), data)
}

// SendRaw 发送原始字节
func (p *Producer) SendRaw(topic, key string, value []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed.Load() {
		return ErrProducerClosed
	}

	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}
	p.sentCount.Add(1)
	return nil
}

func (p *Producer) handleErrors() {
	defer p.wg.Done()

	for err := range p.producer.Errors() {
		p.errorCount.Add(1)
		topic := ""
		if err.Msg != nil {
			topic = err.Msg.Topic
		}
		p.logger.Error("kafka send failed", slog.String("topic", topic), slog.Any("err", err.Err))
	}
}

// ProducerStats 统计信息
type ProducerStats struct {
	SentCount  int64
	ErrorCount int64
}

// Stats 获取统计信息
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		SentCount:  p.sentCount.Load(),
		ErrorCount: p.errorCount.Load(),
	}
}

// Close 刷新缓冲并关闭，可重复调用
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed.Swap(true) {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	err := p.producer.Close()
	p.wg.Wait()
	return err
}
