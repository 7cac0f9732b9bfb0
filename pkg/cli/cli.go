// Package cli implements energyctl, a command line client for the energy API
// and a local recommendation ledger.
package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"github.com/raterudder/energyadvisor/pkg/api"
	"github.com/raterudder/energyadvisor/pkg/ledger"
	"github.com/raterudder/energyadvisor/pkg/storage"
	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// app holds the global options shared by every subcommand.
type app struct {
	apiBaseURL string
	ledgerFile string
	format     string
	track      bool

	out    io.Writer
	errOut io.Writer
}

// Register adds the global flags to fs and the subcommands to c.
func Register(c *subcommands.Commander, fs *flag.FlagSet) {
	a := &app{out: os.Stdout, errOut: os.Stderr}
	a.setFlags(fs)
	a.register(c)
}

func (a *app) setFlags(fs *flag.FlagSet) {
	fs.StringVar(&a.apiBaseURL, "api-base-url", "https://renergyapi-production-4b89.up.railway.app/api/v1", "Base URL of the energy management API")
	fs.StringVar(&a.ledgerFile, "ledger-file", "accepted_recommendations.json", "Path to the local ledger file")
	fs.StringVar(&a.format, "format", formatJSON, "Output format (json, yaml)")
	fs.BoolVar(&a.track, "track", true, "Report ledger changes to the energy API")
}

func (a *app) register(c *subcommands.Commander) {
	c.Register(&statusCmd{app: a}, "energy")
	c.Register(&forecastCmd{app: a}, "energy")
	c.Register(&historyCmd{app: a}, "energy")
	c.Register(&recommendationsCmd{app: a}, "energy")

	c.Register(&ledgerCmd{app: a}, "ledger")
	c.Register(&acceptCmd{app: a}, "ledger")
	c.Register(&setStatusCmd{app: a}, "ledger")
	c.Register(&deleteCmd{app: a}, "ledger")
	c.Register(&summaryCmd{app: a}, "ledger")
}

func (a *app) client() *api.Client {
	return api.NewClient(a.apiBaseURL, nil)
}

// openLedger loads the ledger file. The returned ledger must be closed so
// pending tracking calls finish before the process exits.
func (a *app) openLedger(ctx context.Context) (*ledger.Ledger, error) {
	var tracker ledger.Tracker
	if a.track {
		tracker = a.client()
	}
	return ledger.New(ctx, storage.NewFile(a.ledgerFile), tracker)
}

// print writes v in the selected format. YAML output goes through JSON first
// so both formats use the same field names.
func (a *app) print(v any) error {
	switch a.format {
	case formatJSON:
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format: %q", a.format)
	}
}

// fail reports err and returns the failure status.
func (a *app) fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(a.errOut, "Error:", err)
	return subcommands.ExitFailure
}

// output prints v and maps a print failure to an exit status.
func (a *app) output(v any) subcommands.ExitStatus {
	if err := a.print(v); err != nil {
		return a.fail(err)
	}
	return subcommands.ExitSuccess
}
