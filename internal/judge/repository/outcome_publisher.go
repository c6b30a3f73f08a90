package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"nitz/internal/common/mq"
	"nitz/internal/judge/model"
	appErr "nitz/pkg/errors"
)

// OutcomePublisher announces finished submissions.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, event model.OutcomeEvent) error
}

// MQOutcomePublisher publishes outcome events to a message queue topic.
type MQOutcomePublisher struct {
	producer mq.Producer
	topic    string
}

// NewMQOutcomePublisher creates a new publisher.
func NewMQOutcomePublisher(producer mq.Producer, topic string) *MQOutcomePublisher {
	return &MQOutcomePublisher{producer: producer, topic: topic}
}

// PublishOutcome publishes one event keyed by submission id.
func (p *MQOutcomePublisher) PublishOutcome(ctx context.Context, event model.OutcomeEvent) error {
	if p == nil || p.producer == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("outcome publisher is not configured")
	}
	if p.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("outcome topic is required")
	}
	if event.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal outcome event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = event.SubmissionID
	message.SetHeader("verdict", string(event.Verdict))
	message.SetHeader("language", event.LanguageID)
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "publish outcome event failed")
	}
	return nil
}
