package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/arklim/authflow/internal/core/domain"
	"github.com/arklim/authflow/internal/core/port"
	"github.com/arklim/authflow/internal/infra/logger"
)

const TopicEmailNotification = "notification.email"

type emailJobMessage struct {
	To       string         `json:"to"`
	Template string         `json:"template"`
	Data     map[string]any `json:"data"`
}

// MailPublisher hands email jobs to a downstream notification worker.
// Send returns only after the broker acknowledged the job.
type MailPublisher struct {
	producer *Producer
	logger   *zap.Logger
}

func NewMailPublisher(producer *Producer, logger *zap.Logger) *MailPublisher {
	return &MailPublisher{producer: producer, logger: logger}
}

func (m *MailPublisher) Send(ctx context.Context, to, template string, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	job := domain.EmailJob{To: to, Template: template, Data: data}
	bytes, err := json.Marshal(emailJobMessage(job))
	if err != nil {
		return fmt.Errorf("marshal email job: %w", err)
	}

	partition, offset, err := m.producer.sync.SendMessage(&sarama.ProducerMessage{
		Topic: m.producer.TopicName(TopicEmailNotification),
		Key:   sarama.StringEncoder(to),
		Value: sarama.ByteEncoder(bytes),
	})
	if err != nil {
		return fmt.Errorf("publish email job: %w", err)
	}

	m.logger.Debug("email job published",
		logger.Email(to),
		zap.String("template", template),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

var _ port.MailDispatcher = (*MailPublisher)(nil)
