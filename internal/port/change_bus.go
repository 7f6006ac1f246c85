package port

import "context"

// ChangeBus carries "something changed" notices for a topic. Payloads are not
// needed: subscribers reload the snapshot they care about.
type ChangeBus interface {
	Publish(ctx context.Context, topic string) error
	Subscribe(ctx context.Context, topic string) (ChangeStream, error)
}

type ChangeStream interface {
	Changes() <-chan struct{}
	Close() error
}

const (
	FeedStocks = "stocks"
	FeedStaff  = "staff"
	FeedSales  = "sales"
)

// FeedTopic names the channel carrying changes of one kind for one shop.
func FeedTopic(kind, shopID string) string {
	return "duka:feed:" + kind + ":" + shopID
}
