package kafka

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/arklim/authflow/internal/infra/config"
)

// Producer owns an async producer for domain events and a sync producer
// for mail jobs, whose delivery must be confirmed before a flow proceeds.
type Producer struct {
	async  sarama.AsyncProducer
	sync   sarama.SyncProducer
	logger *zap.Logger
	prefix string
	done   chan struct{}
}

func baseConfig() *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_5_0_0
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Metadata.Retry.Max = 3
	saramaConfig.Metadata.Retry.Backoff = 250 * time.Millisecond
	return saramaConfig
}

// AsyncConfig favours throughput: leader ack only, errors returned for logging.
func AsyncConfig() *sarama.Config {
	saramaConfig := baseConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Flush.Frequency = 100 * time.Millisecond
	saramaConfig.Producer.Flush.Messages = 100
	saramaConfig.Producer.Return.Successes = false
	saramaConfig.Producer.Return.Errors = true
	return saramaConfig
}

// SyncConfig waits for all in-sync replicas.
func SyncConfig() *sarama.Config {
	saramaConfig := baseConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	return saramaConfig
}

// NewProducer dials the brokers twice, once per producer flavour.
func NewProducer(cfg config.KafkaSettings, logger *zap.Logger) (*Producer, error) {
	async, err := sarama.NewAsyncProducer(cfg.Brokers, AsyncConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka async producer: %w", err)
	}

	sync, err := sarama.NewSyncProducer(cfg.Brokers, SyncConfig())
	if err != nil {
		_ = async.Close()
		return nil, fmt.Errorf("create kafka sync producer: %w", err)
	}

	p := newProducer(async, sync, cfg.TopicPrefix, logger)

	logger.Info("kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix),
	)

	return p, nil
}

func newProducer(async sarama.AsyncProducer, sync sarama.SyncProducer, prefix string, logger *zap.Logger) *Producer {
	p := &Producer{
		async:  async,
		sync:   sync,
		logger: logger,
		prefix: prefix,
		done:   make(chan struct{}),
	}
	go p.handleErrors()
	return p
}

func (p *Producer) handleErrors() {
	for {
		select {
		case perr, ok := <-p.async.Errors():
			if !ok {
				return
			}
			if perr != nil {
				p.logger.Error("kafka async publish failed",
					zap.Error(perr.Err),
					zap.String("topic", perr.Msg.Topic),
				)
			}
		case <-p.done:
			return
		}
	}
}

// Close flushes pending async messages and shuts both producers down.
func (p *Producer) Close() error {
	p.logger.Info("closing kafka producer")
	close(p.done)

	var errs []error
	if err := p.async.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close kafka async producer: %w", err))
	}
	if err := p.sync.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close kafka sync producer: %w", err))
	}
	return errors.Join(errs...)
}

// TopicName returns the full topic name with prefix.
func (p *Producer) TopicName(eventType string) string {
	if p.prefix == "" {
		return eventType
	}

	prefix := p.prefix + "."
	if strings.HasPrefix(eventType, prefix) {
		return eventType
	}

	return prefix + eventType
}
