package port

import "context"

type Notification struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// Notifier hands a free-text message to an external contact address.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
