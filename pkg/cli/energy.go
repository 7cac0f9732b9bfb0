package cli

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/subcommands"
	"github.com/raterudder/energyadvisor/pkg/api"
	"github.com/raterudder/energyadvisor/pkg/types"
)

type statusCmd struct {
	*app
}

func (*statusCmd) Name() string     { return "status" }
func (*statusCmd) Synopsis() string { return "show the current energy status" }
func (*statusCmd) Usage() string {
	return `energyctl status

  Prints the latest KPIs and energy mix reported by the API.
`
}
func (*statusCmd) SetFlags(*flag.FlagSet) {}

func (c *statusCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	status, err := c.client().CurrentStatus(ctx)
	if err != nil {
		return c.fail(err)
	}
	return c.output(status)
}

type forecastCmd struct {
	*app
}

func (*forecastCmd) Name() string     { return "forecast" }
func (*forecastCmd) Synopsis() string { return "show the consumption and solar forecast" }
func (*forecastCmd) Usage() string {
	return `energyctl forecast

  Prints the next hour, today and week forecasts.
`
}
func (*forecastCmd) SetFlags(*flag.FlagSet) {}

func (c *forecastCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	forecast, err := c.client().Forecast(ctx)
	if err != nil {
		return c.fail(err)
	}
	return c.output(forecast)
}

type historyCmd struct {
	*app
	start string
	end   string
	level string

	now func() time.Time
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "show historical energy data" }
func (*historyCmd) Usage() string {
	return `energyctl history [-s <start_date>] [-e <end_date>] [-level hourly|daily]

  Prints historical data points. Dates are YYYY-MM-DD and default to the
  last 7 days.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.start, "s", "", "Start date (YYYY-MM-DD), defaults to 7 days before the end date")
	f.StringVar(&c.end, "e", "", "End date (YYYY-MM-DD), defaults to today")
	f.StringVar(&c.level, "level", string(types.AggregationDaily), "Aggregation level (hourly, daily)")
}

// query fills in the default range before validating.
func (c *historyCmd) query() (api.HistoricalQuery, error) {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	q := api.HistoricalQuery{
		StartDate:        c.start,
		EndDate:          c.end,
		AggregationLevel: types.AggregationLevel(c.level),
	}
	if q.EndDate == "" {
		q.EndDate = now().Format(api.DateLayout)
	}
	if q.StartDate == "" {
		end, err := time.Parse(api.DateLayout, q.EndDate)
		if err != nil {
			return q, fmt.Errorf("end date must be YYYY-MM-DD: %w", err)
		}
		q.StartDate = end.AddDate(0, 0, -7).Format(api.DateLayout)
	}
	return q, q.Validate()
}

func (c *historyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	q, err := c.query()
	if err != nil {
		fmt.Fprintln(c.errOut, "Error:", err)
		return subcommands.ExitUsageError
	}
	points, err := c.client().HistoricalData(ctx, q)
	if err != nil {
		return c.fail(err)
	}
	if points == nil {
		points = []types.HistoricalDataPoint{}
	}
	return c.output(points)
}

type recommendationsCmd struct {
	*app
	goal   string
	period string
	all    bool
}

func (*recommendationsCmd) Name() string     { return "recommendations" }
func (*recommendationsCmd) Synopsis() string { return "list optimization recommendations" }
func (*recommendationsCmd) Usage() string {
	return `energyctl recommendations [-goal <goal>] [-period <period>] [-all]

  Lists recommendations that have not been accepted yet. Use -all to include
  those already in the ledger.
`
}

func (c *recommendationsCmd) SetFlags(f *flag.FlagSet) {
	setRecommendationFlags(f, &c.goal, &c.period)
	f.BoolVar(&c.all, "all", false, "Include recommendations already in the ledger")
}

func (c *recommendationsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	goal, period, err := parseRecommendationFlags(c.goal, c.period)
	if err != nil {
		fmt.Fprintln(c.errOut, "Error:", err)
		return subcommands.ExitUsageError
	}
	recs, err := c.client().Recommendations(ctx, goal, period)
	if err != nil {
		return c.fail(err)
	}
	if !c.all {
		l, err := c.openLedger(ctx)
		if err != nil {
			return c.fail(err)
		}
		defer l.Close()
		recs = l.FilterUnaccepted(recs)
	}
	if recs == nil {
		recs = []types.Recommendation{}
	}
	return c.output(recs)
}

func setRecommendationFlags(f *flag.FlagSet, goal, period *string) {
	f.StringVar(goal, "goal", string(types.GoalCostReduction), "Optimization goal (cost_reduction, carbon_footprint, battery_longevity)")
	f.StringVar(period, "period", string(types.PeriodHourly), "Recommendation period (hourly, daily, weekly)")
}

func parseRecommendationFlags(goalStr, periodStr string) (types.OptimizationGoal, types.Period, error) {
	goal := types.OptimizationGoal(goalStr)
	if !goal.Valid() {
		return "", "", fmt.Errorf("invalid goal: %q", goalStr)
	}
	period := types.Period(periodStr)
	if !period.Valid() {
		return "", "", fmt.Errorf("invalid period: %q", periodStr)
	}
	return goal, period, nil
}
