package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/duka/internal/core/domain"
	"github.com/rl1809/duka/internal/logger"
	"github.com/rl1809/duka/internal/port"
)

// SaleTimeLayout is the timestamp format used in owner notifications.
const SaleTimeLayout = "02/01/2006 15:04"

type SellRequest struct {
	StockID      string `json:"stock_id"`
	CustomerName string `json:"customer_name"`
	Quantity     int    `json:"quantity"`
	// RequestID makes the sale idempotent when set.
	RequestID string `json:"request_id,omitempty"`
}

type SellResult struct {
	Sale  domain.Sale  `json:"sale"`
	Stock domain.Stock `json:"stock"`
	// Message is the owner notification composed in the staff flow.
	Message string `json:"message,omitempty"`
	// Warning reports a notification problem. The sale itself is recorded.
	Warning string `json:"warning,omitempty"`
}

// SaleService records sales. Each sale decrements stock and appends a sale
// record in one repository transaction.
type SaleService struct {
	repo     port.Repository
	cache    port.CacheRepository
	notifier port.Notifier
	bus      port.ChangeBus
	opts     Options
}

// NewSaleService wires the recorder. cache and notifier may be nil, which
// disables idempotency keys and owner notifications respectively.
func NewSaleService(repo port.Repository, cache port.CacheRepository, notifier port.Notifier, bus port.ChangeBus, opts Options) *SaleService {
	return &SaleService{
		repo:     repo,
		cache:    cache,
		notifier: notifier,
		bus:      bus,
		opts:     opts.withDefaults(),
	}
}

// saleAttempt follows one call to Sell through its states.
type saleAttempt struct {
	state    domain.SaleState
	quantity int
	log      *zap.Logger
	opts     Options
}

func (a *saleAttempt) to(state domain.SaleState) {
	a.log.Debug("sale state", zap.String("from", string(a.state)), zap.String("to", string(state)))
	a.state = state
}

func (a *saleAttempt) finish(state domain.SaleState, err error) error {
	a.to(state)
	a.opts.Metrics.SaleAttempt(state, a.quantity)
	if state == domain.SaleStateFailed {
		a.log.Error("sell failed", zap.String("state", string(state)), zap.Error(err))
	} else {
		a.log.Info("sell finished", zap.String("state", string(state)), zap.Error(err))
	}
	return err
}

func (s *SaleService) Sell(ctx context.Context, sess domain.Session, req SellRequest) (*SellResult, error) {
	attempt := &saleAttempt{
		state:    domain.SaleStateIdle,
		quantity: req.Quantity,
		opts:     s.opts,
		log: logger.WithSession(s.opts.Logger, sess).With(
			zap.String("stock_id", req.StockID), zap.Int("quantity", req.Quantity)),
	}
	attempt.to(domain.SaleStateValidating)

	customer := strings.TrimSpace(req.CustomerName)
	if strings.TrimSpace(req.StockID) == "" || customer == "" || req.Quantity <= 0 {
		return nil, attempt.finish(domain.SaleStateRejected, domain.ErrIncompleteSale)
	}

	cctx, cancel := s.opts.call(ctx)
	defer cancel()

	stock, err := s.repo.GetStock(cctx, sess.ShopID, req.StockID)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return nil, attempt.finish(domain.SaleStateRejected, err)
		}
		return nil, attempt.finish(domain.SaleStateFailed, domain.Backend(domain.MsgStockUpdateFailed, err))
	}
	if stock.Count < req.Quantity {
		return nil, attempt.finish(domain.SaleStateRejected, domain.ErrInsufficientStock)
	}

	var claimed string
	if req.RequestID != "" && s.cache != nil {
		key := fmt.Sprintf("sale:%s:%s", sess.ShopID, req.RequestID)
		ok, err := s.cache.SetIdempotency(cctx, key)
		if err != nil {
			return nil, attempt.finish(domain.SaleStateFailed,
				domain.Backend(domain.MsgStockUpdateFailed, fmt.Errorf("idempotency check failed: %w", err)))
		}
		if !ok {
			return nil, attempt.finish(domain.SaleStateRejected, domain.ErrDuplicateRequest)
		}
		claimed = key
	}

	attempt.to(domain.SaleStateCommitting)
	sale := domain.Sale{
		ID:           uuid.NewString(),
		ShopID:       sess.ShopID,
		StockID:      stock.ID,
		SoldBy:       sess.ActorID,
		SoldByName:   sess.ActorName,
		CustomerName: customer,
		Quantity:     req.Quantity,
		DateTime:     s.opts.Now(),
	}

	updated, err := s.repo.CommitSale(cctx, sale, sess.ActorName)
	if err != nil {
		// the request id stays usable for a retry
		s.releaseClaim(ctx, attempt.log, claimed)
		var notFound *domain.NotFoundError
		switch {
		case errors.Is(err, domain.ErrInsufficientStock), errors.As(err, &notFound):
			return nil, attempt.finish(domain.SaleStateRejected, err)
		default:
			return nil, attempt.finish(domain.SaleStateFailed, domain.Backend(domain.MsgStockUpdateFailed, err))
		}
	}

	attempt.log = attempt.log.With(zap.String("sale_id", sale.ID), zap.Int("remaining", updated.Count))
	attempt.finish(domain.SaleStateCommitted, nil)

	s.opts.publish(ctx, s.bus, port.FeedSales, sess.ShopID)
	s.opts.publish(ctx, s.bus, port.FeedStocks, sess.ShopID)

	result := &SellResult{Sale: sale, Stock: *updated}
	if sess.Role == domain.RoleStaff {
		s.notifyOwner(ctx, sess, stock.Name, result)
	}
	return result, nil
}

func (s *SaleService) releaseClaim(ctx context.Context, log *zap.Logger, key string) {
	if key == "" {
		return
	}
	cctx, cancel := s.opts.call(context.WithoutCancel(ctx))
	defer cancel()
	if err := s.cache.ReleaseIdempotency(cctx, key); err != nil {
		log.Warn("failed to release request id", zap.String("key", key), zap.Error(err))
	}
}

// notifyOwner hands the sale message to the notifier. Problems end up in
// result.Warning; the sale stays recorded.
func (s *SaleService) notifyOwner(ctx context.Context, sess domain.Session, stockName string, result *SellResult) {
	log := logger.WithSession(s.opts.Logger, sess).With(zap.String("sale_id", result.Sale.ID))
	result.Message = SaleMessage(stockName, sess.ActorName, result.Sale.CustomerName, result.Sale.DateTime, result.Stock.Count)

	cctx, cancel := s.opts.call(ctx)
	defer cancel()

	shop, err := s.repo.GetShop(cctx, sess.ShopID)
	if err != nil || strings.TrimSpace(shop.MobileNumber) == "" {
		log.Warn("owner mobile number missing", zap.Error(err))
		s.opts.Metrics.Notification("skipped")
		result.Warning = domain.MsgOwnerMobileMissing
		return
	}
	if s.notifier == nil {
		s.opts.Metrics.Notification("skipped")
		return
	}

	if err := s.notifier.Notify(cctx, port.Notification{To: shop.MobileNumber, Text: result.Message}); err != nil {
		log.Warn("notify owner failed", zap.Error(err))
		s.opts.Metrics.Notification("failed")
		result.Warning = domain.MsgNotifyFailed
		return
	}
	s.opts.Metrics.Notification("queued")
}

// SaleMessage composes the owner notification for a staff sale.
func SaleMessage(stockName, staffName, customer string, at time.Time, remaining int) string {
	return fmt.Sprintf("Item %s sold by %s to %s at %s. Remaining qty: %d.",
		stockName, staffName, customer, at.Format(SaleTimeLayout), remaining)
}
