package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"triage-chatbot/pkg"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes patient-ready events to a topic for downstream
// consumers such as paging or analytics.  Messages are keyed by patient id.
type KafkaPublisher struct {
	w messageWriter
}

// NewKafkaPublisher constructs a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 5 * time.Second,
	}}
}

// PatientReady writes ev keyed by patient id, so one patient's events stay
// on one partition.
func (p *KafkaPublisher) PatientReady(ctx context.Context, ev pkg.PatientReady) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.PatientID, 10)),
		Value: value,
		Time:  time.Now(),
	})
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error { return p.w.Close() }
