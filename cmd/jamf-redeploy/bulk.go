package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuhlman-labs/jamf-redeploy/internal/batch"
	"github.com/kuhlman-labs/jamf-redeploy/internal/csvimport"
	"github.com/kuhlman-labs/jamf-redeploy/internal/models"
)

func newBulkCmd(a *app) *cobra.Command {
	var (
		delay  time.Duration
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "bulk <file.csv>",
		Short: "Redeploy the management framework to every computer in a CSV file",
		Long: `bulk reads one computer per line: serial number, then an optional computer
name and optional notes. A header row is detected and skipped, as are lines
without a serial number. Computers are processed one at a time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun {
				return a.printPlan(args[0])
			}
			if !cmd.Flags().Changed("delay") {
				delay = a.cfg.Bulk.Delay
			}

			creds, err := a.resolveCredentials(cmd)
			if err != nil {
				return err
			}

			db, err := a.openDatabase()
			if err != nil {
				return err
			}
			if db != nil {
				defer func() { _ = db.Close() }()
			}

			mgr, err := a.newManager(db, delay, batch.ObserverFunc(a.printProgress))
			if err != nil {
				return err
			}

			res, err := mgr.LoadFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Loaded %d computers from %s (%d lines skipped)\n", len(res.Records), args[0], res.Skipped)

			summary, err := mgr.Run(cmd.Context(), creds)
			if summary == nil {
				return err
			}
			a.printSummary(summary)

			switch {
			case summary.Cancelled:
				return errors.New("bulk redeploy cancelled")
			case summary.Failed > 0:
				return fmt.Errorf("%d of %d computers failed", summary.Failed, summary.Total)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&delay, "delay", 0, "pause between computers (default from bulk.delay)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse the file and list the computers without contacting Jamf Pro")

	return cmd
}

// printPlan lists the parsed records of a CSV file
func (a *app) printPlan(path string) error {
	records, err := csvimport.LoadFile(path)
	if err != nil {
		return err
	}
	for i, rec := range records {
		line := fmt.Sprintf("%4d  %s", i+1, rec.SerialNumber)
		if rec.ComputerName != nil {
			line += "  " + *rec.ComputerName
		}
		if rec.Notes != nil {
			line += "  (" + *rec.Notes + ")"
		}
		fmt.Fprintln(a.out, line)
	}
	fmt.Fprintf(a.out, "%d computers would be redeployed\n", len(records))
	return nil
}

// printProgress writes one line per computer that reaches a final status
func (a *app) printProgress(e batch.Event) {
	switch e.Type {
	case batch.EventRecordTransition:
		if e.Record == nil || !e.Record.Status.IsTerminal() {
			return
		}
		line := fmt.Sprintf("[%d/%d] %s %s", e.Position+1, e.Total, e.Record.DisplayName(), e.Record.Status)
		if e.Record.Status == models.StatusFailed && e.Record.ErrorMessage != "" {
			line += ": " + e.Record.ErrorMessage
		}
		fmt.Fprintln(a.out, line)
	case batch.EventAuthFailed:
		fmt.Fprintf(a.out, "Authentication failed: %v\n", e.Err)
	}
}

func (a *app) printSummary(s *models.Summary) {
	fmt.Fprintf(a.out, "\nRun %s: %d completed, %d failed of %d in %s\n",
		s.RunID, s.Completed, s.Failed, s.Total, s.Duration().Round(time.Millisecond))
	if s.Cancelled {
		fmt.Fprintf(a.out, "Cancelled with %d computers not processed\n", s.Total-s.Processed())
	}
}
