package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/duka/internal/core/domain"
	"github.com/rl1809/duka/internal/logger"
	"github.com/rl1809/duka/internal/metrics"
	"github.com/rl1809/duka/internal/port"
)

// Options carries what every service shares. The zero value is usable.
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Timeout bounds each repository, cache and bus call. Zero disables it.
	Timeout time.Duration
	Now     func() time.Time
}

func (o Options) withDefaults() Options {
	o.Logger = logger.OrNop(o.Logger)
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (o Options) call(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.Timeout)
}

// publish tells feed subscribers that a shop's data changed. Failures only
// delay the next snapshot, so they are logged and dropped.
func (o Options) publish(ctx context.Context, bus port.ChangeBus, kind, shopID string) {
	if bus == nil {
		return
	}
	ctx, cancel := o.call(ctx)
	defer cancel()
	if err := bus.Publish(ctx, port.FeedTopic(kind, shopID)); err != nil {
		o.Logger.Warn("publish change failed",
			zap.String("feed", kind), zap.String("shop_id", shopID), zap.Error(err))
	}
}

// passDomain keeps typed domain errors intact and wraps everything else as a
// backend failure carrying msg.
func passDomain(msg string, err error) error {
	var (
		validation *domain.ValidationError
		notFound   *domain.NotFoundError
		conflict   *domain.ConflictError
		forbidden  *domain.ForbiddenError
	)
	if errors.As(err, &validation) || errors.As(err, &notFound) ||
		errors.As(err, &conflict) || errors.As(err, &forbidden) {
		return err
	}
	return domain.Backend(msg, err)
}
