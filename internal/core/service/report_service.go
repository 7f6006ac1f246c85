package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/duka/internal/core/domain"
	"github.com/rl1809/duka/internal/logger"
	"github.com/rl1809/duka/internal/port"
)

var salesReportHeader = []string{"sale_id", "stock", "sold_by", "customer", "quantity", "datetime"}

type ReportInfo struct {
	Key   string `json:"key"`
	URL   string `json:"url"`
	Rows  int    `json:"rows"`
	Total int    `json:"total"`
}

// ReportService renders history views to CSV files in a blob store.
type ReportService struct {
	history *HistoryService
	store   port.ReportStore
	opts    Options
}

func NewReportService(history *HistoryService, store port.ReportStore, opts Options) *ReportService {
	return &ReportService{history: history, store: store, opts: opts.withDefaults()}
}

// ExportSales writes the sales view for r as CSV and returns where it went.
func (s *ReportService) ExportSales(ctx context.Context, sess domain.Session, r domain.DateRange) (*ReportInfo, error) {
	if !sess.IsOwner() {
		return nil, &domain.ForbiddenError{Op: "export sales"}
	}

	view, err := s.history.Sales(ctx, sess, r)
	if err != nil {
		return nil, err
	}

	body, err := WriteSalesCSV(view.Sales)
	if err != nil {
		return nil, domain.Backend(domain.MsgReportFailed, err)
	}

	key := fmt.Sprintf("reports/%s/sales-%d.csv", sess.ShopID, s.opts.Now().Unix())

	cctx, cancel := s.opts.call(ctx)
	defer cancel()
	url, err := s.store.Put(cctx, key, "text/csv", bytes.NewReader(body))
	if err != nil {
		return nil, domain.Backend(domain.MsgReportFailed, err)
	}

	logger.WithSession(s.opts.Logger, sess).Info("sales report exported",
		zap.String("key", key), zap.Int("rows", view.Shown))
	return &ReportInfo{Key: key, URL: url, Rows: view.Shown, Total: view.Total}, nil
}

func WriteSalesCSV(lines []SaleLine) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(salesReportHeader); err != nil {
		return nil, err
	}
	for _, l := range lines {
		record := []string{
			l.ID,
			l.StockName,
			l.SoldByName,
			l.CustomerName,
			strconv.Itoa(l.Quantity),
			l.DateTime.Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
