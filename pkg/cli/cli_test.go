package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/subcommands"
	"github.com/raterudder/energyadvisor/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*app, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/recommendations", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"suggestions": [
			{"type": "battery management", "action": "Charge battery overnight", "financial_impact": "Save $150", "profit_in_usd": 150},
			{"type": "load shifting", "action": "Pre-cool at 5am", "financial_impact": "Save $20", "profit_in_usd": 20}
		]}`))
	})
	mux.HandleFunc("GET /api/v1/historical-data", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2025-05-25", r.URL.Query().Get("start_date"))
		assert.Equal(t, "2025-06-01", r.URL.Query().Get("end_date"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"unexpected": true}`))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	var out, errOut bytes.Buffer
	return &app{
		apiBaseURL: ts.URL + "/api/v1",
		ledgerFile: filepath.Join(t.TempDir(), "ledger.json"),
		format:     formatJSON,
		out:        &out,
		errOut:     &errOut,
	}, &out, &errOut
}

// run parses args with the command's flags and executes it.
func run(t *testing.T, cmd subcommands.Command, args ...string) subcommands.ExitStatus {
	t.Helper()
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	cmd.SetFlags(fs)
	require.NoError(t, fs.Parse(args))
	return cmd.Execute(context.Background(), fs)
}

func TestPrint(t *testing.T) {
	a, out, _ := newTestApp(t)
	v := types.Recommendation{Type: "t", Action: "a", ProfitInUSD: 1.5}

	require.NoError(t, a.print(v))
	assert.JSONEq(t, `{"type": "t", "action": "a", "financial_impact": "", "profit_in_usd": 1.5}`, out.String())

	out.Reset()
	a.format = formatYAML
	require.NoError(t, a.print(v))
	assert.Equal(t, "action: a\nfinancial_impact: \"\"\nprofit_in_usd: 1.5\ntype: t\n", out.String())

	a.format = "xml"
	assert.Error(t, a.print(v))
}

func TestHistoryDefaults(t *testing.T) {
	a, out, errOut := newTestApp(t)
	cmd := &historyCmd{app: a, now: func() time.Time {
		return time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)
	}}
	assert.Equal(t, subcommands.ExitSuccess, run(t, cmd))
	assert.JSONEq(t, `[]`, out.String())

	cmd = &historyCmd{app: a}
	assert.Equal(t, subcommands.ExitUsageError, run(t, cmd, "-s", "2025-06-02", "-e", "2025-06-01"))
	assert.Contains(t, errOut.String(), "start_date cannot be after end_date")
}

func TestLedgerCommands(t *testing.T) {
	a, out, errOut := newTestApp(t)

	decode := func(v any) {
		t.Helper()
		require.NoError(t, json.Unmarshal(out.Bytes(), v))
		out.Reset()
	}

	var recs []types.Recommendation
	require.Equal(t, subcommands.ExitSuccess, run(t, &recommendationsCmd{app: a}))
	decode(&recs)
	require.Len(t, recs, 2)

	var accepted types.AcceptedRecommendation
	require.Equal(t, subcommands.ExitSuccess, run(t, &acceptCmd{app: a}, "-period", "daily", "1"))
	decode(&accepted)
	assert.Equal(t, "Charge battery overnight", accepted.Action)
	assert.Equal(t, types.StatusPending, accepted.Status)
	assert.Equal(t, "daily", accepted.Period)

	t.Run("accepted recommendations are hidden", func(t *testing.T) {
		require.Equal(t, subcommands.ExitSuccess, run(t, &recommendationsCmd{app: a}))
		decode(&recs)
		require.Len(t, recs, 1)
		assert.Equal(t, "Pre-cool at 5am", recs[0].Action)

		require.Equal(t, subcommands.ExitSuccess, run(t, &recommendationsCmd{app: a}, "-all"))
		decode(&recs)
		assert.Len(t, recs, 2)
	})

	t.Run("accept bad args", func(t *testing.T) {
		assert.Equal(t, subcommands.ExitUsageError, run(t, &acceptCmd{app: a}))
		assert.Equal(t, subcommands.ExitUsageError, run(t, &acceptCmd{app: a}, "zero"))
		assert.Equal(t, subcommands.ExitUsageError, run(t, &acceptCmd{app: a}, "-goal", "speed", "1"))
		assert.Equal(t, subcommands.ExitFailure, run(t, &acceptCmd{app: a}, "2"))
		assert.Contains(t, errOut.String(), "only 1 unaccepted recommendations available")
	})

	t.Run("set status", func(t *testing.T) {
		require.Equal(t, subcommands.ExitSuccess, run(t, &setStatusCmd{app: a}, accepted.ID, "completed"))
		var rec types.AcceptedRecommendation
		decode(&rec)
		assert.Equal(t, types.StatusCompleted, rec.Status)
		assert.NotNil(t, rec.CompletedAt)

		assert.Equal(t, subcommands.ExitFailure, run(t, &setStatusCmd{app: a}, accepted.ID, "pending"))
		assert.Equal(t, subcommands.ExitFailure, run(t, &setStatusCmd{app: a}, "rec_missing", "completed"))
		assert.Equal(t, subcommands.ExitUsageError, run(t, &setStatusCmd{app: a}, accepted.ID))
	})

	t.Run("list and summary", func(t *testing.T) {
		var list []types.AcceptedRecommendation
		require.Equal(t, subcommands.ExitSuccess, run(t, &ledgerCmd{app: a}, "-status", "completed"))
		decode(&list)
		require.Len(t, list, 1)
		assert.Equal(t, accepted.ID, list[0].ID)

		require.Equal(t, subcommands.ExitSuccess, run(t, &ledgerCmd{app: a}, "-status", "pending"))
		decode(&list)
		assert.Empty(t, list)

		assert.Equal(t, subcommands.ExitUsageError, run(t, &ledgerCmd{app: a}, "-status", "done"))

		var summary types.LedgerSummary
		require.Equal(t, subcommands.ExitSuccess, run(t, &summaryCmd{app: a}))
		decode(&summary)
		assert.Equal(t, 150.0, summary.TotalCompletedProfit)
		assert.Equal(t, map[string]float64{"daily": 150}, summary.ProfitByPeriod)
	})

	t.Run("delete", func(t *testing.T) {
		require.Equal(t, subcommands.ExitSuccess, run(t, &deleteCmd{app: a}, accepted.ID))
		assert.Equal(t, subcommands.ExitFailure, run(t, &deleteCmd{app: a}, accepted.ID))

		var list []types.AcceptedRecommendation
		require.Equal(t, subcommands.ExitSuccess, run(t, &ledgerCmd{app: a}))
		decode(&list)
		assert.Empty(t, list)
	})
}

func TestRegister(t *testing.T) {
	fs := flag.NewFlagSet("energyctl", flag.ContinueOnError)
	c := subcommands.NewCommander(fs, "energyctl")
	Register(c, fs)
	for _, name := range []string{"api-base-url", "ledger-file", "format", "track"} {
		assert.NotNil(t, fs.Lookup(name), name)
	}
}
