package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/raterudder/energyadvisor/pkg/log"
	"github.com/raterudder/energyadvisor/pkg/types"
)

// The tracking calls mirror ledger changes to the API for server side
// bookkeeping. They are never retried; callers treat failures as advisory.

type acceptRequest struct {
	RecommendationID string    `json:"recommendation_id"`
	Type             string    `json:"type"`
	Action           string    `json:"action"`
	ProfitInUSD      float64   `json:"profit_in_usd"`
	AcceptedAt       time.Time `json:"accepted_at"`
	OptimizationGoal string    `json:"optimization_goal"`
	Period           string    `json:"period"`
}

type statusRequest struct {
	Status types.RecommendationStatus `json:"status"`
}

// TrackAccepted reports a newly accepted recommendation.
func (c *Client) TrackAccepted(ctx context.Context, rec types.AcceptedRecommendation) error {
	return c.send(ctx, http.MethodPost, "/recommendations/accept", acceptRequest{
		RecommendationID: rec.ID,
		Type:             rec.Type,
		Action:           rec.Action,
		ProfitInUSD:      rec.ProfitInUSD,
		AcceptedAt:       rec.AcceptedAt,
		OptimizationGoal: rec.OptimizationGoal,
		Period:           rec.Period,
	})
}

// TrackStatus reports a status change.
func (c *Client) TrackStatus(ctx context.Context, id string, status types.RecommendationStatus) error {
	return c.send(ctx, http.MethodPatch, "/recommendations/"+url.PathEscape(id)+"/status", statusRequest{Status: status})
}

// TrackDeleted reports a removed recommendation.
func (c *Client) TrackDeleted(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/recommendations/"+url.PathEscape(id), nil)
}

func (c *Client) send(ctx context.Context, method, path string, body any) error {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	u := c.baseURL + path
	var req *http.Request
	var err error
	if reader != nil {
		req, err = http.NewRequestWithContext(ctx, method, u, reader)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	log.Ctx(ctx).DebugContext(ctx, "sending tracking request", slog.String("method", method), slog.String("url", u))
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newHTTPError(resp)
	}
	return nil
}
