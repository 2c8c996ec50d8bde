package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"billscan/internal/core"
)

var (
	syncWait     bool
	syncTimeout  time.Duration
	syncInterval time.Duration
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Scan your mailbox for new bills",
	Long: `Asks the server to scan your Gmail for bills. With --wait the command
polls until the scan finishes; run 'billscan bills' afterwards to see the results.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncWait, "wait", false, "wait for the scan to finish")
	syncCmd.Flags().DurationVar(&syncTimeout, "timeout", 10*time.Minute, "how long --wait waits")
	syncCmd.Flags().DurationVar(&syncInterval, "interval", 2*time.Second, "how often --wait polls")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	api, err := signedInClient()
	if err != nil {
		return err
	}

	started, err := api.Sync(cmd.Context())
	if err != nil {
		return explain(err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (job %s)\n", started.Message, started.Job.ID)
	if !syncWait {
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), syncTimeout)
	defer cancel()

	job, err := api.WaitSync(ctx, started.Job.ID, syncInterval)
	if err != nil {
		return explain(err)
	}
	printJob(out, job)
	if job.Status == core.JobFailed {
		return fmt.Errorf("sync failed: %s", job.Error)
	}
	return nil
}

func printJob(w io.Writer, job core.SyncJob) {
	fmt.Fprintf(w, "Sync %s: %s messages scanned, %s bills added",
		job.Status, humanize.Comma(int64(job.Scanned)), humanize.Comma(int64(job.CreatedBills)))
	if job.FinishedAt != nil {
		fmt.Fprintf(w, " (finished %s)", humanize.Time(*job.FinishedAt))
	}
	fmt.Fprintln(w)
}
