// Package events publishes ingestion job lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bull/rag-server/internal/jobs"
)

// JobFinishedEvent is published once per job when it reaches a terminal state.
type JobFinishedEvent struct {
	JobID       string      `json:"job_id"`
	Status      jobs.Status `json:"status"`
	Documents   int         `json:"documents"`
	Succeeded   int         `json:"succeeded"`
	Failed      int         `json:"failed"`
	Chunks      int         `json:"chunks"`
	ErrorDetail string      `json:"error_detail,omitempty"`
	FinishedAt  time.Time   `json:"finished_at"`
}

// NewJobFinishedEvent summarises a terminal job.
func NewJobFinishedEvent(job *jobs.Job) JobFinishedEvent {
	counts := job.Counts()
	chunks := 0
	for _, st := range job.DocumentStatus {
		chunks += st.Chunks
	}
	return JobFinishedEvent{
		JobID:       job.ID,
		Status:      job.Status,
		Documents:   len(job.Documents),
		Succeeded:   counts[jobs.DocumentSucceeded],
		Failed:      counts[jobs.DocumentFailed],
		Chunks:      chunks,
		ErrorDetail: job.ErrorDetail,
		FinishedAt:  job.UpdatedAt,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier implements jobs.Notifier. Messages are keyed by job id.
type KafkaNotifier struct {
	writer messageWriter
	logger *slog.Logger
}

// NewKafkaNotifier creates a synchronous writer for topic.
func NewKafkaNotifier(brokers []string, topic string, logger *slog.Logger) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	return newKafkaNotifier(w, topic, logger)
}

func newKafkaNotifier(w messageWriter, topic string, logger *slog.Logger) *KafkaNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaNotifier{
		writer: w,
		logger: logger.With("component", "job-events", "topic", topic),
	}
}

func (n *KafkaNotifier) JobFinished(ctx context.Context, job *jobs.Job) error {
	value, err := json.Marshal(NewJobFinishedEvent(job))
	if err != nil {
		return fmt.Errorf("marshaling job event: %w", err)
	}

	if err := n.writer.WriteMessages(ctx, kafka.Message{Key: []byte(job.ID), Value: value}); err != nil {
		n.logger.Error("Failed to publish job event", "job_id", job.ID, "error", err)
		return fmt.Errorf("publishing job event: %w", err)
	}
	n.logger.Debug("Published job event", "job_id", job.ID, "status", job.Status)
	return nil
}

// Close flushes pending writes.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
