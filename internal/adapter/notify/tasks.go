package notify

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/rl1809/duka/internal/port"
)

const (
	TypeSaleNotification = "notify:sale"
	Queue                = "notifications"

	maxRetry    = 5
	taskTimeout = 30 * time.Second
)

// Payload queued for the worker
type SaleNotificationPayload struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

func NewSaleNotificationTask(n port.Notification) (*asynq.Task, error) {
	data, err := json.Marshal(SaleNotificationPayload{To: n.To, Text: n.Text})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSaleNotification, data,
		asynq.Queue(Queue),
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(taskTimeout),
	), nil
}
