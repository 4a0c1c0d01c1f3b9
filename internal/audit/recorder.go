package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"gameshop/internal/config"
	"gameshop/internal/model"
	"gameshop/internal/monitor"
	"gameshop/internal/repository"
	"gameshop/pkg/breaker"
	"gameshop/pkg/log"
)

// Recorder persists audit events
type Recorder interface {
	Record(ctx context.Context, events ...Event) error
}

// Sink is a named Recorder, used by Multi for its drop metric
type Sink interface {
	Recorder
	Name() string
}

func encodeAll(events []Event) []*model.AuditLog {
	entries := make([]*model.AuditLog, len(events))
	for i, e := range events {
		entries[i] = Encode(e)
	}
	return entries
}

// GormRecorder writes audit rows to the audit_logs table
type GormRecorder struct {
	repo repository.AuditRepository
}

// NewGormRecorder creates a database sink
func NewGormRecorder(repo repository.AuditRepository) *GormRecorder {
	return &GormRecorder{repo: repo}
}

func (r *GormRecorder) Name() string { return "database" }

func (r *GormRecorder) Record(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	return r.repo.Append(ctx, encodeAll(events))
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaRecorder publishes audit rows as JSON, keyed by resource
type KafkaRecorder struct {
	writer messageWriter
	now    func() time.Time
}

// NewKafkaRecorder creates a Kafka sink for cfg.AuditTopic
func NewKafkaRecorder(cfg config.KafkaConfig) *KafkaRecorder {
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KafkaRecorder{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.AuditTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  3,
			WriteTimeout: timeout,
			ReadTimeout:  timeout,
		},
		now: time.Now,
	}
}

func (r *KafkaRecorder) Name() string { return "kafka" }

func (r *KafkaRecorder) Record(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}

	now := r.now()
	msgs := make([]kafka.Message, 0, len(events))
	for _, entry := range encodeAll(events) {
		entry.CreatedAt = now
		value, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal audit entry: %w", err)
		}

		key := entry.Resource
		if entry.ResourceID != nil {
			key += ":" + *entry.ResourceID
		}
		msgs = append(msgs, kafka.Message{Key: []byte(key), Value: value, Time: now})
	}

	if err := r.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish audit events: %w", err)
	}
	return nil
}

// Close flushes and closes the writer
func (r *KafkaRecorder) Close() error {
	return r.writer.Close()
}

// LogRecorder writes audit rows to the application log
type LogRecorder struct{}

func (LogRecorder) Name() string { return "log" }

func (LogRecorder) Record(ctx context.Context, events ...Event) error {
	for _, entry := range encodeAll(events) {
		fields := logrus.Fields{
			"audit_action":   entry.Action,
			"audit_resource": entry.Resource,
			"audit_status":   entry.Status,
		}
		if entry.UserID != nil {
			fields["user_id"] = *entry.UserID
		}
		if entry.ResourceID != nil {
			fields["resource_id"] = *entry.ResourceID
		}
		if entry.Details.Message != "" {
			fields["detail"] = entry.Details.Message
		}
		log.WithContext(ctx).WithFields(fields).Info("audit")
	}
	return nil
}

// Nop discards events
type Nop struct{}

func (Nop) Name() string { return "nop" }

func (Nop) Record(context.Context, ...Event) error { return nil }

type guarded struct {
	Sink
	breaker *breaker.Breaker
}

// Guarded stops calling sink while b is open, so a dead broker costs one
// fast error per purchase instead of a write timeout.
func Guarded(sink Sink, b *breaker.Breaker) Sink {
	return &guarded{Sink: sink, breaker: b}
}

func (g *guarded) Record(ctx context.Context, events ...Event) error {
	return g.breaker.Execute(func() error {
		return g.Sink.Record(ctx, events...)
	})
}

type multi struct {
	sinks   []Sink
	metrics *monitor.Metrics
}

// Multi fans events out to every sink. A failing sink does not stop the
// others; the returned error joins every failure.
func Multi(metrics *monitor.Metrics, sinks ...Sink) Recorder {
	return &multi{sinks: sinks, metrics: metrics}
}

func (m *multi) Record(ctx context.Context, events ...Event) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Record(ctx, events...); err != nil {
			for range events {
				m.metrics.IncAuditDropped(sink.Name())
			}
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
