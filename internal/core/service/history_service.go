package service

import (
	"context"
	"iter"
	"slices"

	"github.com/rl1809/duka/internal/core/domain"
	"github.com/rl1809/duka/internal/port"
)

const unknownStock = "Unknown"

// SalesInRange yields the sales whose datetime falls inside r, in input
// order. An inactive range yields everything. The sequence is lazy and can be
// ranged over more than once.
func SalesInRange(sales []domain.Sale, r domain.DateRange) iter.Seq[domain.Sale] {
	return func(yield func(domain.Sale) bool) {
		for _, sale := range sales {
			if !r.Contains(sale.DateTime) {
				continue
			}
			if !yield(sale) {
				return
			}
		}
	}
}

// EditFeed flattens every stock's edit history into one list, newest first.
// Entries with equal timestamps keep their original relative order.
func EditFeed(stocks []domain.Stock) []domain.StockEdit {
	var feed []domain.StockEdit
	for _, st := range stocks {
		for _, e := range st.EditHistory {
			feed = append(feed, domain.StockEdit{StockID: st.ID, StockName: st.Name, EditHistory: e})
		}
	}
	slices.SortStableFunc(feed, func(a, b domain.StockEdit) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return feed
}

// StockEditHistory returns one stock's edit history, newest first.
func StockEditHistory(stock domain.Stock) []domain.EditHistory {
	edits := slices.Clone(stock.EditHistory)
	slices.SortStableFunc(edits, func(a, b domain.EditHistory) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return edits
}

type SaleLine struct {
	domain.Sale
	StockName string `json:"stock_name"`
}

type SalesView struct {
	Sales []SaleLine `json:"sales"`
	Shown int        `json:"shown"`
	Total int        `json:"total"`
}

// HistoryService serves read-only projections over sales and edits.
type HistoryService struct {
	repo port.Repository
	opts Options
}

func NewHistoryService(repo port.Repository, opts Options) *HistoryService {
	return &HistoryService{repo: repo, opts: opts.withDefaults()}
}

// Sales lists the shop's sales inside r, newest first, with stock names
// resolved. Sales of deleted stocks show as "Unknown".
func (h *HistoryService) Sales(ctx context.Context, sess domain.Session, r domain.DateRange) (*SalesView, error) {
	cctx, cancel := h.opts.call(ctx)
	defer cancel()

	sales, err := h.repo.ListSales(cctx, sess.ShopID)
	if err != nil {
		return nil, passDomain(domain.MsgLoadFailed, err)
	}
	stocks, err := h.repo.ListStocks(cctx, sess.ShopID)
	if err != nil {
		return nil, passDomain(domain.MsgLoadFailed, err)
	}

	names := make(map[string]string, len(stocks))
	for _, st := range stocks {
		names[st.ID] = st.Name
	}

	view := &SalesView{Sales: []SaleLine{}, Total: len(sales)}
	for sale := range SalesInRange(sales, r) {
		name, ok := names[sale.StockID]
		if !ok {
			name = unknownStock
		}
		view.Sales = append(view.Sales, SaleLine{Sale: sale, StockName: name})
	}
	view.Shown = len(view.Sales)
	return view, nil
}

// Edits is the shop-wide edit feed.
func (h *HistoryService) Edits(ctx context.Context, sess domain.Session) ([]domain.StockEdit, error) {
	cctx, cancel := h.opts.call(ctx)
	defer cancel()

	stocks, err := h.repo.ListStocks(cctx, sess.ShopID)
	if err != nil {
		return nil, passDomain(domain.MsgLoadFailed, err)
	}
	return EditFeed(stocks), nil
}

func (h *HistoryService) StockEdits(ctx context.Context, sess domain.Session, stockID string) ([]domain.EditHistory, error) {
	cctx, cancel := h.opts.call(ctx)
	defer cancel()

	stock, err := h.repo.GetStock(cctx, sess.ShopID, stockID)
	if err != nil {
		return nil, passDomain(domain.MsgLoadFailed, err)
	}
	return StockEditHistory(*stock), nil
}

// StockSales lists one stock's sales, newest first.
func (h *HistoryService) StockSales(ctx context.Context, sess domain.Session, stockID string) ([]domain.Sale, error) {
	cctx, cancel := h.opts.call(ctx)
	defer cancel()

	sales, err := h.repo.ListSalesByStock(cctx, sess.ShopID, stockID)
	if err != nil {
		return nil, passDomain(domain.MsgLoadFailed, err)
	}
	slices.SortStableFunc(sales, func(a, b domain.Sale) int {
		return b.DateTime.Compare(a.DateTime)
	})
	return sales, nil
}
