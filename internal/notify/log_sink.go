package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogSink пишет уведомления в лог. Используется, когда других каналов нет.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Emit(_ context.Context, n Notification) error {
	s.log.Info("уведомление", append(notificationFields(n),
		zap.String("title", n.Title),
		zap.String("link", n.Link),
	)...)
	return nil
}
