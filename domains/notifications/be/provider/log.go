package provider

import (
	"context"

	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/domains/notifications/be/service"
	platformlogging "github.com/zenGate-Global/palmyra-directory/platform/go/logging"
)

// LogSender writes payloads to the log instead of sending them.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, p service.Payload) error {
	fields := []zap.Field{
		zap.String("to", p.To),
		zap.String("from", p.From),
		zap.String("template", p.TemplateID),
		zap.Any("data", p.Data),
	}
	if p.Message != nil {
		fields = append(fields, zap.String("message", *p.Message))
	}
	platformlogging.FromContextOr(ctx, s.logger).Info("email payload", fields...)
	return nil
}

var _ service.Sender = (*LogSender)(nil)
