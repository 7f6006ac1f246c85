package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rl1809/duka/internal/core/domain"
)

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	m.StockMutation("create")
	m.SaleAttempt(domain.SaleStateCommitted, 2)
	m.ObserveHTTP(http.MethodGet, "/api/v1/stocks", http.StatusOK, time.Millisecond)
	m.FeedOpened("stocks")
	m.FeedClosed("stocks")
	m.Notification("sent")

	if m.Registry() != nil {
		t.Error("expected nil registry")
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestCounters(t *testing.T) {
	m := New()

	m.StockMutation("create")
	m.StockMutation("create")
	m.StockMutation("delete")
	if got := testutil.ToFloat64(m.stockMutations.WithLabelValues("create")); got != 2 {
		t.Errorf("expected 2 creates, got %v", got)
	}

	m.SaleAttempt(domain.SaleStateCommitted, 3)
	m.SaleAttempt(domain.SaleStateRejected, 5)
	if got := testutil.ToFloat64(m.unitsSold); got != 3 {
		t.Errorf("expected 3 units sold, got %v", got)
	}
	if got := testutil.ToFloat64(m.saleAttempts.WithLabelValues(string(domain.SaleStateRejected))); got != 1 {
		t.Errorf("expected 1 rejected attempt, got %v", got)
	}

	m.FeedOpened("sales")
	m.FeedOpened("sales")
	m.FeedClosed("sales")
	if got := testutil.ToFloat64(m.openFeeds.WithLabelValues("sales")); got != 1 {
		t.Errorf("expected 1 open feed, got %v", got)
	}

	m.Notification("skipped")
	if got := testutil.ToFloat64(m.notifications.WithLabelValues("skipped")); got != 1 {
		t.Errorf("expected 1 skipped notification, got %v", got)
	}

	m.ObserveHTTP(http.MethodPost, "/api/v1/sales", http.StatusCreated, 20*time.Millisecond)
	if n := testutil.CollectAndCount(m.httpDuration); n != 1 {
		t.Errorf("expected 1 latency series, got %d", n)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.StockMutation("update")
	m.SaleAttempt(domain.SaleStateCommitted, 1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`duka_stock_mutations_total{op="update"} 1`,
		"duka_units_sold_total 1",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
