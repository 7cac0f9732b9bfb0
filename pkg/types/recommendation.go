package types

import (
	"fmt"
	"time"
)

// OptimizationGoal is the objective recommendations are generated for.
type OptimizationGoal string

const (
	GoalCostReduction    OptimizationGoal = "cost_reduction"
	GoalCarbonFootprint  OptimizationGoal = "carbon_footprint"
	GoalBatteryLongevity OptimizationGoal = "battery_longevity"
)

// Valid reports whether the goal is one the API accepts.
func (g OptimizationGoal) Valid() bool {
	switch g {
	case GoalCostReduction, GoalCarbonFootprint, GoalBatteryLongevity:
		return true
	}
	return false
}

// Period is the time granularity recommendations are generated for.
type Period string

const (
	PeriodHourly Period = "hourly"
	PeriodDaily  Period = "daily"
	PeriodWeekly Period = "weekly"
)

// Valid reports whether the period is one the API accepts.
func (p Period) Valid() bool {
	switch p {
	case PeriodHourly, PeriodDaily, PeriodWeekly:
		return true
	}
	return false
}

// Recommendation is a single suggestion from /recommendations.
type Recommendation struct {
	Type            string  `json:"type"`
	Action          string  `json:"action"`
	FinancialImpact string  `json:"financial_impact"`
	ProfitInUSD     float64 `json:"profit_in_usd"`
}

// RecommendationStatus is the lifecycle state of an accepted recommendation.
// Transitions only move forward: pending, implemented, completed.
type RecommendationStatus string

const (
	StatusPending     RecommendationStatus = "pending"
	StatusImplemented RecommendationStatus = "implemented"
	StatusCompleted   RecommendationStatus = "completed"
)

// AllStatuses lists the statuses in lifecycle order.
var AllStatuses = []RecommendationStatus{StatusPending, StatusImplemented, StatusCompleted}

// rank returns the position of the status in the lifecycle or -1 if unknown.
func (s RecommendationStatus) rank() int {
	for i, st := range AllStatuses {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known status.
func (s RecommendationStatus) Valid() bool {
	return s.rank() >= 0
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle
// moving forward. Staying on the same status is allowed.
func (s RecommendationStatus) CanTransitionTo(next RecommendationStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	return next.rank() >= s.rank()
}

// ParseRecommendationStatus validates and returns the status for str.
func ParseRecommendationStatus(str string) (RecommendationStatus, error) {
	s := RecommendationStatus(str)
	if !s.Valid() {
		return "", fmt.Errorf("unknown recommendation status: %q", str)
	}
	return s, nil
}

// AcceptedRecommendation is a recommendation the user chose to act on along
// with its lifecycle bookkeeping. CompletedAt is set the first time the entry
// reaches StatusCompleted and never cleared afterwards.
type AcceptedRecommendation struct {
	ID               string               `json:"id"`
	Type             string               `json:"type"`
	Action           string               `json:"action"`
	FinancialImpact  string               `json:"financial_impact"`
	ProfitInUSD      float64              `json:"profit_in_usd"`
	AcceptedAt       time.Time            `json:"accepted_at"`
	CompletedAt      *time.Time           `json:"completed_at,omitempty"`
	Status           RecommendationStatus `json:"status"`
	OptimizationGoal string               `json:"optimization_goal"`
	Period           string               `json:"period"`
}

// LedgerSummary is the aggregate view over the ledger.
type LedgerSummary struct {
	TotalAcceptedProfit  float64                      `json:"total_accepted_profit"`
	TotalCompletedProfit float64                      `json:"total_completed_profit"`
	Counts               map[RecommendationStatus]int `json:"counts"`
	ProfitByPeriod       map[string]float64           `json:"profit_by_period"`
	ProfitByGoal         map[string]float64           `json:"profit_by_goal"`
}
