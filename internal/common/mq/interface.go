// Package mq carries judging outcome events to downstream consumers.
package mq

import (
	"context"
	"time"
)

// Producer publishes messages to a topic.
type Producer interface {
	Publish(ctx context.Context, topic string, message *Message) error
	Close() error
}

// Consumer reads messages from a topic until ctx ends.
type Consumer interface {
	Consume(ctx context.Context, topic, group string, handler HandlerFunc) error
}

// Message represents a message in the queue
type Message struct {
	// ID is the unique identifier for the message, also used as the partition key.
	ID string `json:"id"`

	Body []byte `json:"body"`

	Headers map[string]string `json:"headers"`

	Timestamp time.Time `json:"timestamp"`
}

// HandlerFunc handles one consumed message. A returned error stops consumption.
type HandlerFunc func(ctx context.Context, message *Message) error

// NewMessage creates a new message with the given body
func NewMessage(body []byte) *Message {
	return &Message{
		Body:      body,
		Headers:   make(map[string]string),
		Timestamp: time.Now(),
	}
}

// SetHeader sets a header value
func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[key] = value
}

// GetHeader retrieves a header value
func (m *Message) GetHeader(key string) (string, bool) {
	if m.Headers == nil {
		return "", false
	}
	val, ok := m.Headers[key]
	return val, ok
}
