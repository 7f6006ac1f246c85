package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/duka/internal/core/domain"
	"github.com/rl1809/duka/internal/logger"
	"github.com/rl1809/duka/internal/port"
)

// CatalogService owns a shop's stock records and their edit history.
type CatalogService struct {
	repo port.StockRepository
	bus  port.ChangeBus
	opts Options
}

func NewCatalogService(repo port.StockRepository, bus port.ChangeBus, opts Options) *CatalogService {
	return &CatalogService{repo: repo, bus: bus, opts: opts.withDefaults()}
}

func (s *CatalogService) Create(ctx context.Context, sess domain.Session, name string, count int) (*domain.Stock, error) {
	name = strings.TrimSpace(name)
	if name == "" || count <= 0 {
		return nil, domain.ErrInvalidStock
	}

	now := s.opts.Now()
	stock := domain.Stock{
		ID:           uuid.NewString(),
		ShopID:       sess.ShopID,
		Name:         name,
		Count:        count,
		LastEditedBy: sess.ActorName,
		Version:      1,
		CreatedAt:    now,
		EditHistory: []domain.EditHistory{{
			EditedBy:  sess.ActorName,
			Changes:   fmt.Sprintf("Created stock with count %d", count),
			Timestamp: now,
		}},
	}

	cctx, cancel := s.opts.call(ctx)
	defer cancel()
	if err := s.repo.CreateStock(cctx, stock); err != nil {
		return nil, passDomain(domain.MsgStockCreateFailed, err)
	}

	s.opts.Metrics.StockMutation("create")
	logger.WithSession(s.opts.Logger, sess).Info("stock created",
		zap.String("stock_id", stock.ID), zap.Int("count", count))
	s.opts.publish(ctx, s.bus, port.FeedStocks, sess.ShopID)
	return &stock, nil
}

// Update renames and/or recounts a stock. expectedVersion is the version the
// caller's edit was built from; zero means the version just read. An edit
// that changes nothing is not written and records no history.
func (s *CatalogService) Update(ctx context.Context, sess domain.Session, stockID string, expectedVersion int, newName string, newCount int) (*domain.Stock, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" || newCount <= 0 {
		return nil, domain.ErrInvalidStock
	}

	cctx, cancel := s.opts.call(ctx)
	defer cancel()

	current, err := s.repo.GetStock(cctx, sess.ShopID, stockID)
	if err != nil {
		return nil, passDomain(domain.MsgStockUpdateFailed, err)
	}
	if expectedVersion == 0 {
		expectedVersion = current.Version
	}
	if expectedVersion != current.Version {
		return nil, &domain.ConflictError{Entity: "stock", ID: stockID}
	}

	changes := DescribeChanges(current.Name, current.Count, newName, newCount)
	if changes == "" {
		return current, nil
	}

	next := *current
	next.Name = newName
	next.Count = newCount
	next.LastEditedBy = sess.ActorName
	edit := domain.EditHistory{
		EditedBy:  sess.ActorName,
		Changes:   changes,
		Timestamp: s.opts.Now(),
	}

	updated, err := s.repo.UpdateStock(cctx, next, expectedVersion, edit)
	if err != nil {
		return nil, passDomain(domain.MsgStockUpdateFailed, err)
	}

	s.opts.Metrics.StockMutation("update")
	logger.WithSession(s.opts.Logger, sess).Info("stock updated",
		zap.String("stock_id", stockID), zap.String("changes", changes), zap.Int("version", updated.Version))
	s.opts.publish(ctx, s.bus, port.FeedStocks, sess.ShopID)
	return updated, nil
}

// Delete removes a stock and its edit history. Sales that reference it stay.
func (s *CatalogService) Delete(ctx context.Context, sess domain.Session, stockID string) error {
	if !sess.IsOwner() {
		return &domain.ForbiddenError{Op: "delete stock"}
	}

	cctx, cancel := s.opts.call(ctx)
	defer cancel()
	if err := s.repo.DeleteStock(cctx, sess.ShopID, stockID); err != nil {
		return passDomain(domain.MsgStockDeleteFailed, err)
	}

	s.opts.Metrics.StockMutation("delete")
	logger.WithSession(s.opts.Logger, sess).Info("stock deleted", zap.String("stock_id", stockID))
	s.opts.publish(ctx, s.bus, port.FeedStocks, sess.ShopID)
	return nil
}

func (s *CatalogService) Get(ctx context.Context, sess domain.Session, stockID string) (*domain.Stock, error) {
	cctx, cancel := s.opts.call(ctx)
	defer cancel()
	stock, err := s.repo.GetStock(cctx, sess.ShopID, stockID)
	if err != nil {
		return nil, passDomain(domain.MsgLoadFailed, err)
	}
	return stock, nil
}

func (s *CatalogService) List(ctx context.Context, sess domain.Session) ([]domain.Stock, error) {
	cctx, cancel := s.opts.call(ctx)
	defer cancel()
	stocks, err := s.repo.ListStocks(cctx, sess.ShopID)
	if err != nil {
		return nil, passDomain(domain.MsgLoadFailed, err)
	}
	return stocks, nil
}

// Search lists the shop's stocks whose name contains query.
func (s *CatalogService) Search(ctx context.Context, sess domain.Session, query string) ([]domain.Stock, error) {
	stocks, err := s.List(ctx, sess)
	if err != nil {
		return nil, err
	}
	return SearchStocks(stocks, query), nil
}

// SearchStocks filters by case-insensitive substring on name, keeping the
// input order. A blank query matches everything.
func SearchStocks(stocks []domain.Stock, query string) []domain.Stock {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]domain.Stock, 0, len(stocks))
	for _, st := range stocks {
		if q == "" || strings.Contains(strings.ToLower(st.Name), q) {
			out = append(out, st)
		}
	}
	return out
}

// DescribeChanges renders the fields that differ, e.g.
// "Name: 'A' → 'B', Count: 5 → 3". It returns "" when nothing changed.
func DescribeChanges(oldName string, oldCount int, newName string, newCount int) string {
	var parts []string
	if oldName != newName {
		parts = append(parts, fmt.Sprintf("Name: '%s' → '%s'", oldName, newName))
	}
	if oldCount != newCount {
		parts = append(parts, fmt.Sprintf("Count: %d → %d", oldCount, newCount))
	}
	return strings.Join(parts, ", ")
}
