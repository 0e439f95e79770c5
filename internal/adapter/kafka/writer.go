package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"

	"github.com/couchcryptid/weather-archive-stats/internal/config"
	"github.com/couchcryptid/weather-archive-stats/internal/domain"
)

// ErrCircuitOpen is returned while the breaker rejects publishes after
// repeated broker failures.
var ErrCircuitOpen = errors.New("report publisher circuit open")

// messageWriter is the subset of kafkago.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes scope reports as JSON to a Kafka topic.
// It implements pipeline.ReportLoader.
type Writer struct {
	writer  messageWriter
	circuit *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewWriter creates a Kafka producer for the configured report topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	return newWriter(newKafkaWriter(cfg), logger)
}

// newKafkaWriter builds the producer. Reports are written one synchronous
// message at a time, so a batch never holds more than one.
func newKafkaWriter(cfg *config.Config) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.ReportTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    1,
	}
}

func newWriter(w messageWriter, logger *slog.Logger) *Writer {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "report-publisher",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return &Writer{writer: w, circuit: cb, logger: logger}
}

// LoadReport serializes and publishes one scope report.
func (w *Writer) LoadReport(ctx context.Context, report domain.ScopeReport) error {
	msg, err := serializeToMessage(report)
	if err != nil {
		return err
	}

	_, err = w.circuit.Execute(func() (interface{}, error) {
		return nil, w.writer.WriteMessages(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if err != nil {
		return fmt.Errorf("publish %s report: %w", report.Scope, err)
	}

	w.logger.Debug("report published", "scope", report.Scope, "bytes", len(msg.Value))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a ScopeReport into a Kafka message keyed by scope.
func serializeToMessage(report domain.ScopeReport) (kafkago.Message, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize scope report: %w", err)
	}
	scope := report.Scope.String()
	return kafkago.Message{
		Key:   []byte(scope),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "scope", Value: []byte(scope)},
			{Key: "unavailable", Value: []byte(strconv.Itoa(len(report.Unavailable)))},
			{Key: "generated_at", Value: []byte(report.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
