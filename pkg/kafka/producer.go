package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	kafka_config "checkpost/pkg/kafka/config"
	"checkpost/pkg/logger"
	"checkpost/pkg/metrics"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
)

// MessageWriter is the subset of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PublishFunc writes a batch of messages to the producer's topic.
type PublishFunc func(ctx context.Context, msgs []Message) error

// ProducerMiddleware wraps every publish call.
type ProducerMiddleware func(ctx context.Context, msgs []Message, next PublishFunc) error

// Producer writes messages to one topic. Batches that fail are copied to
// the dead-letter topic when one is configured.
type Producer struct {
	writer     MessageWriter
	dlqWriter  MessageWriter
	topic      string
	log        *logger.Logger
	middleware []ProducerMiddleware
	now        func() time.Time
	closed     bool
	mu         sync.RWMutex
}

func compressionOf(name string) compress.Compression {
	switch name {
	case "none":
		return compress.None
	case "gzip":
		return compress.Gzip
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.Snappy
	}
}

func requiredAcksOf(acks int) kafka.RequiredAcks {
	switch acks {
	case 0:
		return kafka.RequireNone
	case 1:
		return kafka.RequireOne
	default:
		return kafka.RequireAll
	}
}

// errorLogger routes kafka-go client errors into the service logger.
func errorLogger(log *logger.Logger, component string) kafka.Logger {
	return kafka.LoggerFunc(func(msg string, args ...any) {
		log.Error(fmt.Sprintf(msg, args...), "component", component)
	})
}

var silentLogger = kafka.LoggerFunc(func(string, ...any) {})

func NewProducer(cfg *kafka_config.Config, topic, dlqTopic string, log *logger.Logger) (*Producer, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic cannot be empty")
	}

	compression := compressionOf(cfg.ProducerCompression)
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // same key, same partition
		RequiredAcks: requiredAcksOf(cfg.ProducerRequireAcks),
		Compression:  compression,
		MaxAttempts:  cfg.ProducerMaxAttempts,
		BatchTimeout: cfg.ProducerBatchTimeout,
		Logger:       silentLogger,
		ErrorLogger:  errorLogger(log, "kafka-writer"),
	}

	var dlqWriter MessageWriter
	if dlqTopic != "" {
		dlqWriter = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        dlqTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Compression:  compression,
			MaxAttempts:  3,
			Logger:       silentLogger,
			ErrorLogger:  errorLogger(log, "kafka-dlq-writer"),
		}
	}

	return newProducer(writer, dlqWriter, topic, log), nil
}

func newProducer(writer, dlqWriter MessageWriter, topic string, log *logger.Logger) *Producer {
	return &Producer{
		writer:    writer,
		dlqWriter: dlqWriter,
		topic:     topic,
		log:       log,
		now:       time.Now,
	}
}

func (p *Producer) Topic() string {
	return p.topic
}

func (p *Producer) Use(middleware ProducerMiddleware) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.middleware = append(p.middleware, middleware)
}

func (p *Producer) Publish(ctx context.Context, msg Message) error {
	return p.PublishBatch(ctx, []Message{msg})
}

// PublishBatch validates every message up front. One invalid message
// rejects the whole batch before anything is written.
func (p *Producer) PublishBatch(ctx context.Context, msgs []Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrProducerClosed
	}
	chain := p.middleware
	p.mu.RUnlock()

	if len(msgs) == 0 {
		return nil
	}
	for i := range msgs {
		if msgs[i].Key == "" {
			return ErrEmptyKey
		}
		if len(msgs[i].Value) == 0 {
			return ErrEmptyValue
		}
		msgs[i].Topic = p.topic
	}

	publish := PublishFunc(p.write)
	for i := len(chain) - 1; i >= 0; i-- {
		mw, next := chain[i], publish
		publish = func(ctx context.Context, m []Message) error {
			return mw(ctx, m, next)
		}
	}
	return publish(ctx, msgs)
}

func (p *Producer) write(ctx context.Context, msgs []Message) error {
	kms := make([]kafka.Message, len(msgs))
	for i, msg := range msgs {
		kms[i] = toKafkaMessage(msg)
	}

	err := p.writer.WriteMessages(ctx, kms...)
	if err == nil {
		return nil
	}

	if p.dlqWriter != nil {
		dlqErr := p.sendToDLQ(ctx, msgs, err)
		metrics.ObserveDeadLetter(p.topic, dlqErr)
		if dlqErr != nil {
			return fmt.Errorf("publish to %s: %w (dead-letter copy failed: %v)", p.topic, err, dlqErr)
		}
	}
	return fmt.Errorf("publish to %s: %w", p.topic, err)
}

func (p *Producer) sendToDLQ(ctx context.Context, msgs []Message, cause error) error {
	now := p.now().UTC()
	kms := make([]kafka.Message, len(msgs))
	for i, msg := range msgs {
		kms[i] = dlqMessage(msg, p.topic, cause, now)
	}
	return p.dlqWriter.WriteMessages(ctx, kms...)
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	errs := []error{p.writer.Close()}
	if p.dlqWriter != nil {
		errs = append(errs, p.dlqWriter.Close())
	}
	return errors.Join(errs...)
}
