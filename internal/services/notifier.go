package services

import (
	"context"

	"go.uber.org/zap"
)

// Notifier is the external notification collaborator. Dispatch is
// fire-and-forget: delivery failures are logged, never surfaced to the
// transition that triggered them.
type Notifier interface {
	NotifyRole(ctx context.Context, role, requestID, message string) error
	NotifyRequester(ctx context.Context, requesterID, requestID, message string) error
}

// LogNotifier writes notifications to the log. It stands in for the portal's
// notification service in development and tests.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With(zap.String("service", "notifier"))}
}

func (n *LogNotifier) NotifyRole(_ context.Context, role, requestID, message string) error {
	n.logger.Info("notify role",
		zap.String("role", role),
		zap.String("request_id", requestID),
		zap.String("message", message))
	return nil
}

func (n *LogNotifier) NotifyRequester(_ context.Context, requesterID, requestID, message string) error {
	n.logger.Info("notify requester",
		zap.String("requester_id", requesterID),
		zap.String("request_id", requestID),
		zap.String("message", message))
	return nil
}
