package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/razaq-yassine/errorscope/internal/api/response"
	"github.com/razaq-yassine/errorscope/internal/cache"
	"github.com/razaq-yassine/errorscope/internal/store"
	"github.com/razaq-yassine/errorscope/internal/trend"
)

type trendResponse struct {
	TimeRange  trend.TimeRange `json:"time_range"`
	DataPoints []trend.Point   `json:"data_points"`
	Max        int             `json:"max"`
	Degraded   bool            `json:"degraded,omitempty"`
}

// Trends serves GET /api/v1/admin/error-dashboard/trends. Each query is
// bounded by a timeout; when the store is too slow the handler returns a
// degraded all-zero series instead of failing the request. Assembled series
// are cached for a short TTL keyed by the aligned window start.
type Trends struct {
	store        store.Store
	cache        cache.Cache
	queryTimeout time.Duration
	cacheTTL     time.Duration
}

// NewTrendsHandler creates the trends handler.
func NewTrendsHandler(s store.Store, c cache.Cache, queryTimeout, cacheTTL time.Duration) *Trends {
	return &Trends{store: s, cache: c, queryTimeout: queryTimeout, cacheTTL: cacheTTL}
}

func (h *Trends) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	timeRange, err := trend.ParseTimeRange(r.URL.Query().Get("time_range"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	filter, ok := parseEventFilter(w, r)
	if !ok {
		return
	}

	now := time.Now().UTC()
	start, end := timeRange.Window(now)

	key := cache.TrendKey(string(timeRange), filter.Environment, filter.Category, start.Unix())
	if cached, hit, err := h.cache.Get(r.Context(), key); err == nil && hit {
		var resp trendResponse
		if json.Unmarshal(cached, &resp) == nil {
			response.JSON(w, resp)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()

	rows, err := h.store.TrendBuckets(ctx, start, end, timeRange.BucketWidth(), filter)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			// Degrade rather than fail: the dashboard keeps rendering with
			// an empty series and a marker.
			points := trend.BuildSeries(timeRange, now, nil)
			response.JSON(w, trendResponse{
				TimeRange:  timeRange,
				DataPoints: points,
				Max:        trend.SeriesMax(points),
				Degraded:   true,
			})
			return
		}
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Failed to compute trend", nil)
		return
	}

	points := trend.BuildSeries(timeRange, now, rows)
	resp := trendResponse{
		TimeRange:  timeRange,
		DataPoints: points,
		Max:        trend.SeriesMax(points),
	}

	if body, err := json.Marshal(resp); err == nil {
		if err := h.cache.Set(r.Context(), key, body, h.cacheTTL); err != nil {
			slog.Debug("trend cache set failed", "error", err)
		}
	}

	response.JSON(w, resp)
}
