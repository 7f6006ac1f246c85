package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rl1809/duka/internal/core/domain"
	"github.com/rl1809/duka/internal/core/service"
	"github.com/rl1809/duka/internal/port"
)

const dateOnly = "2006-01-02"

// dateLayouts are the plain date forms a bound may take.
var dateLayouts = []string{dateOnly, "20060102"}

// minMillisDigits keeps compact dates from reading as unix milliseconds.
const minMillisDigits = 10

var errBadRange = &domain.ValidationError{Msg: "Invalid date range."}

// feed streams snapshots as server-sent events until the client goes away.
func (h *HTTPHandler) feed(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	switch kind := chi.URLParam(r, "kind"); kind {
	case port.FeedStocks:
		f, err := h.svc.Feeds.Stocks(r.Context(), sess)
		serveFeed(h, w, r, kind, f, err)
	case port.FeedStaff:
		f, err := h.svc.Feeds.Staff(r.Context(), sess)
		serveFeed(h, w, r, kind, f, err)
	case port.FeedSales:
		f, err := h.svc.Feeds.Sales(r.Context(), sess)
		serveFeed(h, w, r, kind, f, err)
	default:
		h.writeError(w, r, &domain.NotFoundError{Entity: "feed", ID: kind})
	}
}

func serveFeed[T any](h *HTTPHandler, w http.ResponseWriter, r *http.Request, kind string, f *service.Feed[T], err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer f.Close()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-f.Updates():
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				h.log.Error("encode feed snapshot", zap.String("feed", kind), zap.Error(err))
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", kind, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// parseRange reads the inclusive from/to bounds. Each accepts RFC 3339, a
// plain date (2006-01-02 or 20060102) or unix milliseconds. A plain date as the upper bound covers the
// whole day.
func parseRange(r *http.Request) (domain.DateRange, error) {
	var rng domain.DateRange
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		t, err := parseBound(v, false)
		if err != nil {
			return rng, errBadRange
		}
		rng.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := parseBound(v, true)
		if err != nil {
			return rng, errBadRange
		}
		rng.To = &t
	}
	return rng, checkRange(rng)
}

// checkRange rejects a window whose start is after its end.
func checkRange(rng domain.DateRange) error {
	if rng.Active() && rng.From.After(*rng.To) {
		return errBadRange
	}
	return nil
}

func parseBound(v string, upper bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, v)
		if err != nil {
			continue
		}
		if upper {
			t = t.Add(24*time.Hour - time.Millisecond)
		}
		return t, nil
	}
	if len(v) < minMillisDigits {
		return time.Time{}, errBadRange
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
