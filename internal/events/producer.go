// Package events publishes completed transfers to the transfers topic and
// gives the auditor a reader over the same topic.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nupay/banking-service/internal/model"
)

// Publisher writes transfer events keyed by source account name.
type Publisher struct {
	writer *kafka.Writer
}

// Configure builds a kafka writer for the given brokers and topic.
func Configure(kafkaBrokerUrls []string, clientId string, topic string) (*Publisher, error) {
	dialer := &kafka.Dialer{
		Timeout:  10 * time.Second,
		ClientID: clientId,
	}

	config := kafka.WriterConfig{
		Brokers:      kafkaBrokerUrls,
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		Dialer:       dialer,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	return &Publisher{writer: kafka.NewWriter(config)}, nil
}

// Push publishes one transfer event. Publishing happens after the transfer
// has committed; a failure here is the caller's to log, never to surface.
func (p *Publisher) Push(parent context.Context, ev model.TransferEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	message := kafka.Message{
		Key:   []byte(ev.FromName),
		Value: value,
		Time:  time.Now(),
	}
	return p.writer.WriteMessages(parent, message)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// NewReader builds the auditor's consumer over the transfers topic.
func NewReader(brokers []string, groupID, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:         brokers,
		GroupID:         groupID,
		Topic:           topic,
		MinBytes:        10e3,
		MaxBytes:        10e6,
		MaxWait:         1 * time.Second,
		ReadLagInterval: -1,
	})
}
