package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/rl1809/duka/internal/logger"
	"github.com/rl1809/duka/internal/metrics"
	"github.com/rl1809/duka/internal/port"
)

// Sender delivers one message to its destination.
type Sender interface {
	Send(ctx context.Context, n port.Notification) error
}

// Handler consumes notify:sale tasks.
type Handler struct {
	sender  Sender
	metrics *metrics.Metrics
}

func NewHandler(sender Sender, m *metrics.Metrics) *Handler {
	return &Handler{sender: sender, metrics: m}
}

// Register mounts the handler on an asynq mux.
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.Handle(TypeSaleNotification, h)
}

func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID, _ := asynq.GetTaskID(ctx)
	queue, _ := asynq.GetQueueName(ctx)
	log := logger.WithTask(taskID, queue, t.Type())

	var payload SaleNotificationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("bad notification payload", zap.Error(err))
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.To == "" {
		return fmt.Errorf("notification has no recipient: %w", asynq.SkipRetry)
	}

	if err := h.sender.Send(ctx, port.Notification{To: payload.To, Text: payload.Text}); err != nil {
		h.metrics.Notification("send_failed")
		log.Warn("notification send failed", zap.Error(err))
		return err
	}

	h.metrics.Notification("sent")
	log.Info("notification sent", zap.String("to", payload.To))
	return nil
}
