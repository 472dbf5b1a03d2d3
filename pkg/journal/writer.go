// 文件: pkg/journal/writer.go
// 组合日志 - 数据库写入器
//
// 消费 Kafka/NATS 日志消息，写入 MySQL:
// - 批量写入提高吞吐
// - 幂等写入，消息重投不产生重复记录
// - 定时刷新 + 满批刷新 + 停止前最后刷新
// - 写库失败按退避重试有限次，仍失败才丢弃该批 (offset 已提交)

package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"max.com/portfolio/pkg/kafka"
	"max.com/portfolio/pkg/nats"
)

// WriterConfig 配置
type WriterConfig struct {
	GroupID       string        `mapstructure:"group_id"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	FlushTimeout  time.Duration `mapstructure:"flush_timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`   // 首次失败后的重试次数
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"` // 第 n 次重试前等待 n*RetryBackoff
}

// DefaultWriterConfig 默认配置
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		GroupID:       "portfolio_archiver",
		BatchSize:     100,
		FlushInterval: 500 * time.Millisecond,
		FlushTimeout:  10 * time.Second,
		MaxRetries:    3,
		RetryBackoff:  200 * time.Millisecond,
	}
}

// WriterStats 写入统计
type WriterStats struct {
	Received int64
	Written  int64
	Errors   int64
	Batches  int64
	Retries  int64
	Dropped  int64 // 重试耗尽后丢弃的消息数
}

// =============================================================================
// 批量缓冲 (Kafka/NATS 共用)
// =============================================================================

type batcher struct {
	store  *Store
	cfg    WriterConfig
	logger *slog.Logger

	mu      sync.Mutex
	buffer  []kafka.Message
	flushCh chan struct{}

	received atomic.Int64
	written  atomic.Int64
	errors   atomic.Int64
	batches  atomic.Int64
	retries  atomic.Int64
	dropped  atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newBatcher(store *Store, cfg WriterConfig, logger *slog.Logger) *batcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &batcher{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		buffer:  make([]kafka.Message, 0, cfg.BatchSize),
		flushCh: make(chan struct{}, 1),
	}
}

// add 解码并加入缓冲，满批时触发刷新
func (b *batcher) add(topic string, data []byte) error {
	msg, err := Decode(topic, data)
	if err != nil {
		b.errors.Add(1)
		return err
	}
	b.received.Add(1)

	b.mu.Lock()
	b.buffer = append(b.buffer, msg)
	full := len(b.buffer) >= b.cfg.BatchSize
	b.mu.Unlock()

	if full {
		select {
		case b.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// flush 写出当前缓冲
// 各仓库按主键幂等，重试整批不会产生重复记录
func (b *batcher) flush() {
	b.mu.Lock()
	msgs := b.buffer
	b.buffer = make([]kafka.Message, 0, b.cfg.BatchSize)
	b.mu.Unlock()

	if len(msgs) == 0 {
		return
	}

	var err error
	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			b.retries.Add(1)
			time.Sleep(time.Duration(attempt) * b.cfg.RetryBackoff)
		}
		if err = b.apply(msgs); err == nil {
			b.written.Add(int64(len(msgs)))
			b.batches.Add(1)
			return
		}
		b.logger.Warn("journal batch write failed",
			slog.Int("size", len(msgs)),
			slog.Int("attempt", attempt+1),
			slog.Any("err", err))
	}

	b.errors.Add(1)
	b.dropped.Add(int64(len(msgs)))
	b.logger.Error("journal batch dropped after retries",
		slog.Int("size", len(msgs)),
		slog.Int("retries", b.cfg.MaxRetries),
		slog.Any("err", err))
}

func (b *batcher) apply(msgs []kafka.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.FlushTimeout)
	defer cancel()
	return b.store.Apply(ctx, msgs)
}

func (b *batcher) start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.cfg.FlushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				b.flush()
				return
			case <-ticker.C:
				b.flush()
			case <-b.flushCh:
				b.flush()
			}
		}
	}()
}

func (b *batcher) stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
}

func (b *batcher) stats() WriterStats {
	return WriterStats{
		Received: b.received.Load(),
		Written:  b.written.Load(),
		Errors:   b.errors.Load(),
		Batches:  b.batches.Load(),
		Retries:  b.retries.Load(),
		Dropped:  b.dropped.Load(),
	}
}

// =============================================================================
// Writer - Kafka
// =============================================================================

// Writer Kafka → MySQL
type Writer struct {
	*batcher
	consumer *kafka.Consumer
}

// NewWriter 创建写入器，订阅全部日志 topic
func NewWriter(brokers []string, cfg WriterConfig, store *Store, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Writer{batcher: newBatcher(store, cfg, logger.With(slog.String("component", "journal_writer")))}

	consumer, err := kafka.NewConsumer(
		kafka.DefaultConsumerConfig(brokers, cfg.GroupID, Topics()),
		w.handleMessage,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("create journal consumer: %w", err)
	}
	w.consumer = consumer
	return w, nil
}

func (w *Writer) handleMessage(_ context.Context, msg *sarama.ConsumerMessage) error {
	return w.add(msg.Topic, msg.Value)
}

// Start 启动消费与定时刷新
func (w *Writer) Start(ctx context.Context) {
	w.start(ctx)
	w.consumer.Start(ctx)
}

// Stop 先停消费，再刷最后一批
func (w *Writer) Stop() error {
	err := w.consumer.Stop()
	w.stop()
	return err
}

// Stats 获取统计
func (w *Writer) Stats() WriterStats {
	return w.stats()
}

// =============================================================================
// NatsWriter - NATS
// =============================================================================

// NatsWriter NATS → MySQL，多个实例按队列组分摊
type NatsWriter struct {
	*batcher
	subscriber *nats.Subscriber
}

// NewNatsWriter 创建 NATS 写入器
func NewNatsWriter(natsCfg nats.Config, cfg WriterConfig, store *Store, logger *slog.Logger) (*NatsWriter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w := &NatsWriter{batcher: newBatcher(store, cfg, logger.With(slog.String("component", "journal_nats_writer")))}

	sub, err := nats.NewSubscriber(natsCfg, w.add, logger)
	if err != nil {
		return nil, err
	}
	w.subscriber = sub
	return w, nil
}

// Start 订阅全部 subject，GroupID 非空时按队列组订阅
func (w *NatsWriter) Start(ctx context.Context) error {
	w.start(ctx)
	if w.cfg.GroupID == "" {
		if err := w.subscriber.Subscribe(Topics()...); err != nil {
			w.stop()
			return err
		}
		return nil
	}
	for _, topic := range Topics() {
		if err := w.subscriber.SubscribeQueue(topic, w.cfg.GroupID); err != nil {
			w.stop()
			return err
		}
	}
	return nil
}

// Stop 退订并刷最后一批
func (w *NatsWriter) Stop() error {
	err := w.subscriber.Close()
	w.stop()
	return err
}

// Stats 获取统计
func (w *NatsWriter) Stats() WriterStats {
	return w.stats()
}
