package cli

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/google/subcommands"
	"github.com/raterudder/energyadvisor/pkg/types"
)

type ledgerCmd struct {
	*app
	status string
}

func (*ledgerCmd) Name() string     { return "ledger" }
func (*ledgerCmd) Synopsis() string { return "list accepted recommendations" }
func (*ledgerCmd) Usage() string {
	return `energyctl ledger [-status pending|implemented|completed]

  Lists the recommendations in the local ledger, oldest first.
`
}

func (c *ledgerCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.status, "status", "", "Only list recommendations with this status")
}

func (c *ledgerCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var status types.RecommendationStatus
	if c.status != "" {
		var err error
		if status, err = types.ParseRecommendationStatus(c.status); err != nil {
			fmt.Fprintln(c.errOut, "Error:", err)
			return subcommands.ExitUsageError
		}
	}

	l, err := c.openLedger(ctx)
	if err != nil {
		return c.fail(err)
	}
	defer l.Close()

	if status == "" {
		return c.output(l.List())
	}
	return c.output(l.ByStatus(status))
}

type acceptCmd struct {
	*app
	goal   string
	period string
}

func (*acceptCmd) Name() string     { return "accept" }
func (*acceptCmd) Synopsis() string { return "accept a recommendation into the ledger" }
func (*acceptCmd) Usage() string {
	return `energyctl accept [-goal <goal>] [-period <period>] <number>

  Accepts the recommendation at <number> (starting at 1) in the list printed
  by "energyctl recommendations" with the same goal and period.
`
}

func (c *acceptCmd) SetFlags(f *flag.FlagSet) {
	setRecommendationFlags(f, &c.goal, &c.period)
}

func (c *acceptCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(c.errOut, "Error: expected exactly one recommendation number")
		return subcommands.ExitUsageError
	}
	n, err := strconv.Atoi(f.Arg(0))
	if err != nil || n < 1 {
		fmt.Fprintf(c.errOut, "Error: invalid recommendation number %q\n", f.Arg(0))
		return subcommands.ExitUsageError
	}
	goal, period, err := parseRecommendationFlags(c.goal, c.period)
	if err != nil {
		fmt.Fprintln(c.errOut, "Error:", err)
		return subcommands.ExitUsageError
	}

	recs, err := c.client().Recommendations(ctx, goal, period)
	if err != nil {
		return c.fail(err)
	}

	l, err := c.openLedger(ctx)
	if err != nil {
		return c.fail(err)
	}
	defer l.Close()

	recs = l.FilterUnaccepted(recs)
	if n > len(recs) {
		return c.fail(fmt.Errorf("only %d unaccepted recommendations available", len(recs)))
	}
	return c.output(l.Accept(ctx, recs[n-1], goal, period))
}

type setStatusCmd struct {
	*app
}

func (*setStatusCmd) Name() string     { return "set-status" }
func (*setStatusCmd) Synopsis() string { return "move an accepted recommendation forward" }
func (*setStatusCmd) Usage() string {
	return `energyctl set-status <id> <pending|implemented|completed>

  Updates the status of a ledger entry. Statuses only move forward.
`
}
func (*setStatusCmd) SetFlags(*flag.FlagSet) {}

func (c *setStatusCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		fmt.Fprintln(c.errOut, "Error: expected an id and a status")
		return subcommands.ExitUsageError
	}

	l, err := c.openLedger(ctx)
	if err != nil {
		return c.fail(err)
	}
	defer l.Close()

	rec, err := l.UpdateStatus(ctx, f.Arg(0), types.RecommendationStatus(f.Arg(1)))
	if err != nil {
		return c.fail(err)
	}
	return c.output(rec)
}

type deleteCmd struct {
	*app
}

func (*deleteCmd) Name() string     { return "delete" }
func (*deleteCmd) Synopsis() string { return "remove a recommendation from the ledger" }
func (*deleteCmd) Usage() string {
	return `energyctl delete <id>

  Removes the ledger entry with the given id.
`
}
func (*deleteCmd) SetFlags(*flag.FlagSet) {}

func (c *deleteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(c.errOut, "Error: expected exactly one id")
		return subcommands.ExitUsageError
	}

	l, err := c.openLedger(ctx)
	if err != nil {
		return c.fail(err)
	}
	defer l.Close()

	if err := l.Delete(ctx, f.Arg(0)); err != nil {
		return c.fail(err)
	}
	return subcommands.ExitSuccess
}

type summaryCmd struct {
	*app
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "show ledger profit totals" }
func (*summaryCmd) Usage() string {
	return `energyctl summary

  Prints accepted and completed profit totals, counts per status and
  completed profit by period and by goal.
`
}
func (*summaryCmd) SetFlags(*flag.FlagSet) {}

func (c *summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	l, err := c.openLedger(ctx)
	if err != nil {
		return c.fail(err)
	}
	defer l.Close()
	return c.output(l.Summary())
}
