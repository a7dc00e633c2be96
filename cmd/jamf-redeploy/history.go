package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuhlman-labs/jamf-redeploy/internal/models"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit int
		prune time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recent bulk redeploy runs, or show one run in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDatabase()
			if err != nil {
				return err
			}
			if db == nil {
				return errors.New("run history is disabled (database.enabled is false)")
			}
			defer func() { _ = db.Close() }()

			if prune > 0 {
				n, err := db.DeleteRunsBefore(cmd.Context(), time.Now().Add(-prune))
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Deleted %d runs older than %s\n", n, prune)
				return nil
			}

			if len(args) == 1 {
				run, err := db.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.printRun(run)
			}

			runs, err := db.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return a.printRuns(runs)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list")
	cmd.Flags().DurationVar(&prune, "prune", 0, "delete runs started longer ago than this, e.g. 720h")
	return cmd
}

func (a *app) printRuns(runs []*models.Run) error {
	if len(runs) == 0 {
		fmt.Fprintln(a.out, "No runs recorded")
		return nil
	}
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSTARTED\tSTATUS\tTOTAL\tCOMPLETED\tFAILED\tSERVER")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.RunID, r.StartedAt.Local().Format(time.DateTime), r.Status, r.Total, r.Completed, r.Failed, r.BaseURL)
	}
	return w.Flush()
}

func (a *app) printRun(run *models.Run) error {
	fmt.Fprintf(a.out, "Run:       %s\n", run.RunID)
	fmt.Fprintf(a.out, "Server:    %s\n", run.BaseURL)
	fmt.Fprintf(a.out, "Client ID: %s\n", run.ClientID)
	fmt.Fprintf(a.out, "Status:    %s\n", run.Status)
	fmt.Fprintf(a.out, "Started:   %s\n", run.StartedAt.Local().Format(time.DateTime))
	if run.FinishedAt != nil {
		fmt.Fprintf(a.out, "Finished:  %s\n", run.FinishedAt.Local().Format(time.DateTime))
	}
	fmt.Fprintf(a.out, "Result:    %d completed, %d failed of %d\n\n", run.Completed, run.Failed, run.Total)

	if len(run.Results) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSERIAL\tNAME\tCOMPUTER ID\tSTATUS\tERROR")
	for _, res := range run.Results {
		name := ""
		if res.ComputerName != nil {
			name = *res.ComputerName
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			res.Position+1, res.SerialNumber, name, res.ComputerID, res.Status, res.ErrorMessage)
	}
	return w.Flush()
}
