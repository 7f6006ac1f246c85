package notify

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/rl1809/duka/internal/logger"
	"github.com/rl1809/duka/internal/port"
)

// AsynqNotifier queues owner notifications for cmd/worker to deliver.
type AsynqNotifier struct {
	client *asynq.Client
	log    *zap.Logger
}

var _ port.Notifier = (*AsynqNotifier)(nil)

func NewAsynqNotifier(client *asynq.Client, log *zap.Logger) *AsynqNotifier {
	return &AsynqNotifier{client: client, log: logger.OrNop(log)}
}

func (n *AsynqNotifier) Notify(ctx context.Context, note port.Notification) error {
	task, err := NewSaleNotificationTask(note)
	if err != nil {
		return fmt.Errorf("failed to create task payload: %w", err)
	}

	info, err := n.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	n.log.Debug("notification enqueued", zap.String("task_id", info.ID), zap.String("queue", info.Queue))
	return nil
}
