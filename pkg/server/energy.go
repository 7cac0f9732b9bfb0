package server

import (
	"net/http"
	"time"

	"github.com/raterudder/energyadvisor/pkg/api"
	"github.com/raterudder/energyadvisor/pkg/types"
)

func (s *Server) handleCurrentStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeJSONError(r.Context(), w, "current status not available", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, s.status.Result())
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	forecast, err := s.client.Forecast(r.Context())
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=60")
	writeJSON(w, http.StatusOK, forecast)
}

// parseHistoricalQuery reads the query from the URL. The aggregation level
// defaults to daily.
func parseHistoricalQuery(r *http.Request) (api.HistoricalQuery, error) {
	v := r.URL.Query()
	q := api.HistoricalQuery{
		StartDate:        v.Get("start_date"),
		EndDate:          v.Get("end_date"),
		AggregationLevel: types.AggregationLevel(v.Get("aggregation_level")),
	}
	if q.AggregationLevel == "" {
		q.AggregationLevel = types.AggregationDaily
	}
	return q, q.Validate()
}

func (s *Server) handleHistoricalData(w http.ResponseWriter, r *http.Request) {
	q, err := parseHistoricalQuery(r)
	if err != nil {
		writeJSONError(r.Context(), w, "invalid query: "+err.Error(), http.StatusBadRequest)
		return
	}

	points, err := s.client.HistoricalData(r.Context(), q)
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	if points == nil {
		points = []types.HistoricalDataPoint{}
	}

	// ranges that ended before today will not change
	end, _ := time.Parse(api.DateLayout, q.EndDate)
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if end.Before(today) {
		w.Header().Set("Cache-Control", "private, max-age=86400")
	} else {
		w.Header().Set("Cache-Control", "private, max-age=60")
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	goal := types.GoalCostReduction
	if v := q.Get("optimization_goal"); v != "" {
		goal = types.OptimizationGoal(v)
		if !goal.Valid() {
			writeJSONError(r.Context(), w, "invalid optimization_goal", http.StatusBadRequest)
			return
		}
	}
	period := types.PeriodHourly
	if v := q.Get("period"); v != "" {
		period = types.Period(v)
		if !period.Valid() {
			writeJSONError(r.Context(), w, "invalid period", http.StatusBadRequest)
			return
		}
	}

	recs, err := s.client.Recommendations(r.Context(), goal, period)
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	if s.ledger != nil {
		recs = s.ledger.FilterUnaccepted(recs)
	}
	if recs == nil {
		recs = []types.Recommendation{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleUpstream(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		writeJSONError(r.Context(), w, "monitor not running", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.monitor.Status())
}
