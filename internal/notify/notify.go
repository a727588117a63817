package notify

import (
	"context"
	"log/slog"
)

// User-facing messages emitted by the cart.
const (
	MsgOutOfStock   = "Requested quantity is out of stock"
	MsgAddFailed    = "Failed to add product"
	MsgRemoveFailed = "Failed to remove product"
	MsgUpdateFailed = "Failed to update product quantity"
)

// Sink shows a message to the shopper. Implementations must not block the
// caller for long and never report delivery problems back.
type Sink interface {
	ShowError(ctx context.Context, message string)
}

// LogSink writes notifications to the structured log.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) ShowError(ctx context.Context, message string) {
	s.log.ErrorContext(ctx, "notification", "message", message)
}

// Multi delivers every notification to all sinks in order.
type Multi []Sink

func (m Multi) ShowError(ctx context.Context, message string) {
	for _, s := range m {
		s.ShowError(ctx, message)
	}
}
