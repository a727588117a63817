package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	queueSize    = 256
	writeTimeout = 5 * time.Second
)

// Notification is the payload published for every message.
type Notification struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes notifications so a frontend gateway can push them to
// the shopper as toasts. ShowError only enqueues; a single goroutine owns the
// writer, so broker latency never reaches the caller.
type KafkaSink struct {
	writer messageWriter
	log    *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan kafka.Message
	done   chan struct{}
}

func NewKafkaSink(topic string, log *slog.Logger, brokers ...string) *KafkaSink {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		Async:                  true,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		WriteBackoffMax:        250 * time.Millisecond,
	}
	w.Completion = func(msgs []kafka.Message, err error) {
		if err == nil {
			return
		}
		for _, m := range msgs {
			log.Error("failed to publish notification", "id", string(m.Key), "error", err)
		}
	}
	return newKafkaSink(w, log)
}

func newKafkaSink(w messageWriter, log *slog.Logger) *KafkaSink {
	s := &KafkaSink{
		writer: w,
		log:    log,
		queue:  make(chan kafka.Message, queueSize),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *KafkaSink) ShowError(ctx context.Context, message string) {
	n := Notification{
		ID:        uuid.NewString(),
		Level:     "error",
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(n)
	if err != nil {
		s.log.ErrorContext(ctx, "failed to marshal notification", "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.log.WarnContext(ctx, "notification sink closed, dropping notification", "id", n.ID)
		return
	}
	select {
	case s.queue <- kafka.Message{Key: []byte(n.ID), Value: payload}:
	default:
		s.log.WarnContext(ctx, "notification queue full, dropping notification", "id", n.ID)
	}
}

func (s *KafkaSink) run() {
	defer close(s.done)
	for msg := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := s.writer.WriteMessages(ctx, msg); err != nil {
			s.log.Error("failed to publish notification", "id", string(msg.Key), "error", err)
		}
		cancel()
	}
}

// Close publishes what is still queued and then closes the writer.
func (s *KafkaSink) Close() error {
	s.mu.Lock()
	first := !s.closed
	if first {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	<-s.done
	if !first {
		return nil
	}
	return s.writer.Close()
}
