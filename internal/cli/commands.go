// Package cli implements the one-shot terminal commands.
package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/dosetrack/internal/meds"
	"github.com/gmsas95/dosetrack/internal/storage"
)

// CLI runs one command against an already-seeded store and exits.
type CLI struct {
	store  *meds.Store
	ledger *meds.Ledger
	doser  *meds.DoseLogger
	clock  meds.Clock
	out    io.Writer
	logger *zap.Logger
}

func New(store *meds.Store, ledger *meds.Ledger, doser *meds.DoseLogger, clock meds.Clock, out io.Writer, logger *zap.Logger) *CLI {
	if clock == nil {
		clock = meds.SystemClock()
	}
	return &CLI{store: store, ledger: ledger, doser: doser, clock: clock, out: out, logger: logger}
}

// Run dispatches a subcommand. Unknown commands return an error after
// printing usage.
func (c *CLI) Run(args []string) error {
	if len(args) == 0 {
		c.printUsage()
		return fmt.Errorf("no command given")
	}

	switch args[0] {
	case "list", "ls":
		return c.runList()
	case "add":
		return c.runAdd(args[1:])
	case "log":
		return c.runLog(args[1:])
	case "history":
		return c.runHistory(args[1:])
	case "overdue":
		return c.runOverdue()
	case "export":
		return c.runExport(args[1:])
	case "help", "--help", "-h":
		c.printUsage()
		return nil
	default:
		c.printUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func (c *CLI) printUsage() {
	fmt.Fprintln(c.out, `Usage: dosetrack <command>

Commands:
  list                          Show all medications
  add <name> <dosage> [freq] [form] [remaining] [total]
                                Add a medication
  log <id-or-name>              Record taking a dose
  history [id-or-name]          Show the dose ledger
  overdue                       Show medications past their next dose
  export <path>                 Write a YAML snapshot of meds and history

Run without a command to start the HTTP server.`)
}

func (c *CLI) runList() error {
	now := c.clock.Now()
	list := c.store.List()
	if len(list) == 0 {
		fmt.Fprintln(c.out, "No medications. Add one with: dosetrack add <name> <dosage>")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDOSAGE\tFREQUENCY\tNEXT DOSE\tSUPPLY\tID")
	for _, med := range list {
		next := meds.FormatRelative(med.NextDoseAt, now)
		if meds.IsOverdue(&med, now) {
			next += " (overdue)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\n",
			med.Name, med.Dosage, med.Frequency, next, med.RemainingUnits, med.TotalUnits, med.ID)
	}
	return w.Flush()
}

func (c *CLI) runAdd(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: dosetrack add <name> <dosage> [frequency] [form] [remaining] [total]")
	}

	in := meds.CreateInput{Name: args[0], Dosage: args[1]}
	if len(args) > 2 {
		in.Frequency = meds.ParseFrequency(args[2])
	}
	if len(args) > 3 {
		in.Form = meds.ParseForm(args[3])
	}
	if len(args) > 4 {
		n, err := strconv.Atoi(args[4])
		if err != nil {
			return fmt.Errorf("remaining units must be a number: %w", err)
		}
		in.RemainingUnits = &n
	}
	if len(args) > 5 {
		n, err := strconv.Atoi(args[5])
		if err != nil {
			return fmt.Errorf("total units must be a number: %w", err)
		}
		in.TotalUnits = &n
	}

	med, err := c.store.Create(in)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Added %s %s, next dose %s\n",
		med.Name, med.Dosage, meds.FormatRelative(med.NextDoseAt, c.clock.Now()))
	return nil
}

func (c *CLI) runLog(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: dosetrack log <id-or-name>")
	}

	med, err := c.resolve(args[0])
	if err != nil {
		return err
	}

	if !c.doser.LogDose(med.ID) {
		return fmt.Errorf("a dose of %s is already being recorded", med.Name)
	}
	if err := c.waitForCommit(med.ID); err != nil {
		return err
	}

	updated, err := c.store.Get(med.ID)
	if err != nil {
		// Deleted out from under us between tap and commit.
		return err
	}
	fmt.Fprintf(c.out, "Logged %s %s. Next dose %s, %d units left.\n",
		updated.Name, updated.Dosage,
		meds.FormatRelative(updated.NextDoseAt, c.clock.Now()),
		updated.RemainingUnits)
	return nil
}

// waitForCommit blocks until the settle delay elapses and the dose lands.
// The bound is generous; any configured settle delay fits well inside it.
// All timing goes through the injected clock.
func (c *CLI) waitForCommit(id string) error {
	deadline := c.clock.Now().Add(30 * time.Second)
	for c.doser.InFlight(id) {
		if c.clock.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for the dose to commit")
		}
		tick := make(chan struct{})
		c.clock.AfterFunc(20*time.Millisecond, func() { close(tick) })
		<-tick
	}
	return nil
}

func (c *CLI) runHistory(args []string) error {
	entries := c.ledger.Entries()
	if len(args) > 0 {
		med, err := c.resolve(args[0])
		if err != nil {
			return err
		}
		entries = c.ledger.ForMedication(med.ID)
	}

	if len(entries) == 0 {
		fmt.Fprintln(c.out, "No doses logged yet.")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tNAME\tDOSAGE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.LoggedAt.Format("2006-01-02 15:04"), e.Name, e.Dosage)
	}
	return w.Flush()
}

func (c *CLI) runOverdue() error {
	now := c.clock.Now()
	list := c.store.Overdue(now)
	if len(list) == 0 {
		fmt.Fprintln(c.out, "Nothing overdue.")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDOSAGE\tWAS DUE")
	for _, med := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n", med.Name, med.Dosage, meds.FormatRelative(med.NextDoseAt, now))
	}
	return w.Flush()
}

func (c *CLI) runExport(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: dosetrack export <path>")
	}
	path := args[0]

	snapshot := storage.NewFileStore(path)
	if err := snapshot.Save(c.store.List()); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	entries := c.ledger.Entries()
	// Append oldest first so the snapshot file reads chronologically.
	for i := len(entries) - 1; i >= 0; i-- {
		if err := snapshot.AppendHistory(entries[i]); err != nil {
			return fmt.Errorf("failed to write history: %w", err)
		}
	}

	fmt.Fprintf(c.out, "Exported %d medications and %d dose entries to %s\n",
		len(c.store.List()), len(entries), path)
	return nil
}

// resolve finds a medication by exact id or case-insensitive name.
func (c *CLI) resolve(key string) (*meds.Medication, error) {
	if med, err := c.store.Get(key); err == nil {
		return med, nil
	}
	lower := strings.ToLower(key)
	for _, med := range c.store.List() {
		if strings.ToLower(med.Name) == lower {
			out := med
			return &out, nil
		}
	}
	return nil, fmt.Errorf("no medication matches %q", key)
}
