package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/rl1809/duka/internal/core/domain"
	"github.com/rl1809/duka/internal/logger"
	"github.com/rl1809/duka/internal/port"
)

// Feed pushes fresh snapshots of one shop's data. The first value is the
// snapshot at subscription time. A slow reader only ever sees the latest
// snapshot. The holder must call Close, or cancel the context the feed was
// opened with, to release the subscription.
type Feed[T any] struct {
	updates chan T
	cancel  context.CancelFunc
	done    chan struct{}
}

func (f *Feed[T]) Updates() <-chan T {
	return f.updates
}

// Close stops the feed and waits until its channel is closed.
func (f *Feed[T]) Close() {
	f.cancel()
	<-f.done
}

// offer replaces any unread snapshot with v. Only the feed goroutine sends.
func (f *Feed[T]) offer(v T) {
	select {
	case f.updates <- v:
		return
	default:
	}
	select {
	case <-f.updates:
	default:
	}
	f.updates <- v
}

type FeedService struct {
	repo port.Repository
	bus  port.ChangeBus
	opts Options
}

func NewFeedService(repo port.Repository, bus port.ChangeBus, opts Options) *FeedService {
	return &FeedService{repo: repo, bus: bus, opts: opts.withDefaults()}
}

func (s *FeedService) Stocks(ctx context.Context, sess domain.Session) (*Feed[[]domain.Stock], error) {
	return openFeed(ctx, s, sess, port.FeedStocks, func(ctx context.Context) ([]domain.Stock, error) {
		return s.repo.ListStocks(ctx, sess.ShopID)
	})
}

func (s *FeedService) Staff(ctx context.Context, sess domain.Session) (*Feed[[]domain.Staff], error) {
	return openFeed(ctx, s, sess, port.FeedStaff, func(ctx context.Context) ([]domain.Staff, error) {
		return s.repo.ListStaff(ctx, sess.ShopID)
	})
}

func (s *FeedService) Sales(ctx context.Context, sess domain.Session) (*Feed[[]domain.Sale], error) {
	return openFeed(ctx, s, sess, port.FeedSales, func(ctx context.Context) ([]domain.Sale, error) {
		return s.repo.ListSales(ctx, sess.ShopID)
	})
}

func openFeed[T any](ctx context.Context, s *FeedService, sess domain.Session, kind string, load func(context.Context) (T, error)) (*Feed[T], error) {
	if s.bus == nil {
		return nil, domain.Backend(domain.MsgLoadFailed, errors.New("no change bus configured"))
	}
	log := logger.WithSession(s.opts.Logger, sess).With(zap.String("feed", kind))

	ctx, cancel := context.WithCancel(ctx)

	// subscribe before the first load so no change slips in between
	stream, err := s.bus.Subscribe(ctx, port.FeedTopic(kind, sess.ShopID))
	if err != nil {
		cancel()
		return nil, domain.Backend(domain.MsgLoadFailed, err)
	}

	reload := func() (T, error) {
		cctx, done := s.opts.call(ctx)
		defer done()
		return load(cctx)
	}

	first, err := reload()
	if err != nil {
		stream.Close()
		cancel()
		return nil, passDomain(domain.MsgLoadFailed, err)
	}

	f := &Feed[T]{
		updates: make(chan T, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	f.updates <- first

	s.opts.Metrics.FeedOpened(kind)
	log.Debug("feed opened")

	go func() {
		defer close(f.done)
		defer close(f.updates)
		defer func() {
			stream.Close()
			s.opts.Metrics.FeedClosed(kind)
			log.Debug("feed closed")
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-stream.Changes():
				if !ok {
					return
				}
				v, err := reload()
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Warn("feed reload failed", zap.Error(err))
					continue
				}
				f.offer(v)
			}
		}
	}()

	return f, nil
}
