package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/raterudder/energyadvisor/pkg/ledger"
	"github.com/raterudder/energyadvisor/pkg/log"
	"github.com/raterudder/energyadvisor/pkg/types"
)

type acceptRequest struct {
	Recommendation   types.Recommendation   `json:"recommendation"`
	OptimizationGoal types.OptimizationGoal `json:"optimization_goal"`
	Period           types.Period           `json:"period"`
}

type statusRequest struct {
	Status string `json:"status"`
}

// writeLedgerError maps ledger errors to responses.
func writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		writeJSONError(ctx, w, "recommendation not found", http.StatusNotFound)
	case errors.Is(err, ledger.ErrInvalidStatus):
		writeJSONError(ctx, w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ledger.ErrInvalidTransition):
		writeJSONError(ctx, w, err.Error(), http.StatusConflict)
	default:
		log.Ctx(ctx).ErrorContext(ctx, "ledger operation failed", slog.Any("error", err))
		writeJSONError(ctx, w, "ledger operation failed", http.StatusInternalServerError)
	}
}

func (s *Server) handleListLedger(w http.ResponseWriter, r *http.Request) {
	statusStr := r.URL.Query().Get("status")
	if statusStr == "" {
		writeJSON(w, http.StatusOK, s.ledger.List())
		return
	}
	status, err := types.ParseRecommendationStatus(statusStr)
	if err != nil {
		writeJSONError(r.Context(), w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.ByStatus(status))
}

func (s *Server) handleGetLedgerEntry(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ledger.Get(r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, 1048576)
	var req acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode accept request", slog.Any("error", err))
		writeJSONError(ctx, w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Recommendation.Action == "" {
		writeJSONError(ctx, w, "recommendation action is required", http.StatusBadRequest)
		return
	}
	if !req.OptimizationGoal.Valid() {
		writeJSONError(ctx, w, "invalid optimization_goal", http.StatusBadRequest)
		return
	}
	if !req.Period.Valid() {
		writeJSONError(ctx, w, "invalid period", http.StatusBadRequest)
		return
	}

	rec := s.ledger.Accept(ctx, req.Recommendation, req.OptimizationGoal, req.Period)
	if subject := getSubject(r); subject != "" {
		log.Ctx(ctx).InfoContext(ctx, "recommendation accepted by user", slog.String("id", rec.ID), slog.String("subject", subject))
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, 1048576)
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode status request", slog.Any("error", err))
		writeJSONError(ctx, w, "invalid request body", http.StatusBadRequest)
		return
	}

	rec, err := s.ledger.UpdateStatus(ctx, r.PathValue("id"), types.RecommendationStatus(req.Status))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteLedgerEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLedgerSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Summary())
}
