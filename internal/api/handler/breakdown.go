package handler

import (
	"math"
	"net/http"

	"github.com/razaq-yassine/errorscope/internal/api/response"
	"github.com/razaq-yassine/errorscope/internal/store"
)

type categoryShare struct {
	Category   string  `json:"category"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type breakdownResponse struct {
	Total      int             `json:"total"`
	Categories []categoryShare `json:"categories"`
	NoData     bool            `json:"no_data,omitempty"`
}

// NewBreakdownHandler returns the handler for
// GET /api/v1/admin/error-dashboard/breakdown: per-category counts with
// percentages that sum to 100 within rounding tolerance. An empty filtered
// set yields an explicit no-data response, never NaN.
func NewBreakdownHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, ok := parseEventFilter(w, r)
		if !ok {
			return
		}

		counts, err := s.CategoryBreakdown(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to compute category breakdown", nil)
			return
		}

		total := 0
		for _, c := range counts {
			total += c.Count
		}
		if total == 0 {
			response.JSON(w, breakdownResponse{Categories: []categoryShare{}, NoData: true})
			return
		}

		shares := make([]categoryShare, 0, len(counts))
		for _, c := range counts {
			shares = append(shares, categoryShare{
				Category:   c.Category,
				Count:      c.Count,
				Percentage: roundPercent(float64(c.Count) * 100 / float64(total)),
			})
		}

		response.JSON(w, breakdownResponse{Total: total, Categories: shares})
	}
}

// roundPercent rounds to one decimal place, keeping the share sum within
// +-0.5 of 100 for any realistic category count.
func roundPercent(p float64) float64 {
	return math.Round(p*10) / 10
}
