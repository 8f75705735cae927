package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/romm-sync/saveport/internal/discovery"
	"github.com/romm-sync/saveport/internal/reconcile"
	"github.com/romm-sync/saveport/internal/rommclient"
	"github.com/romm-sync/saveport/internal/store"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a single reconciliation pass",
		Long:  "Discovers every candidate save under the configured templates, reconciles each against the remote service, and exits.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context())
		},
	}

	return cmd
}

func runSync(ctx context.Context) error {
	cc := mustCLIContext(ctx)
	cfg := cc.Holder.Config()

	ctx = shutdownContext(ctx, cc.Logger)

	db, err := store.Open(cfg.System.Database, cc.Logger)
	if err != nil {
		return fmt.Errorf("opening sync database: %w", err)
	}
	defer db.Close()

	client := rommclient.New(cfg.Romm, cc.Logger)

	logger := cc.Logger.With("cycle_id", uuid.NewString())
	discoverCh := discovery.Discover(ctx, cfg, logger)
	report, syncErr := reconcile.RunSync(ctx, discoverCh, cfg.RommFormat(), client, db, logger)

	if flagJSON {
		if err := printSyncJSON(report, syncErr); err != nil {
			return err
		}
	} else {
		printSyncText(report)
	}

	if syncErr != nil {
		return fmt.Errorf("sync completed with errors: %w", syncErr)
	}
	return nil
}

func printSyncText(report reconcile.Report) {
	if report.Total() == 0 {
		fmt.Fprintln(os.Stderr, "No candidate saves found.")
		return
	}

	fmt.Fprintf(os.Stderr, "Sync complete (%d candidates)\n", report.Total())
	if report.Pushed > 0 {
		fmt.Fprintf(os.Stderr, "  Pushed to remote:  %d\n", report.Pushed)
	}
	if report.Pulled > 0 {
		fmt.Fprintf(os.Stderr, "  Pulled to device:  %d\n", report.Pulled)
	}
	if report.ResyncedDB > 0 {
		fmt.Fprintf(os.Stderr, "  DB resynced only:  %d\n", report.ResyncedDB)
	}
	if report.Noop > 0 {
		fmt.Fprintf(os.Stderr, "  Already in sync:   %d\n", report.Noop)
	}
	if report.Skipped > 0 {
		fmt.Fprintf(os.Stderr, "  Skipped (no rom):  %d\n", report.Skipped)
	}
	if report.Failed > 0 {
		fmt.Fprintf(os.Stderr, "  Failed:            %d\n", report.Failed)
	}
}

type syncJSONOutput struct {
	Pushed     int    `json:"pushed"`
	Pulled     int    `json:"pulled"`
	ResyncedDB int    `json:"resynced_db"`
	Noop       int    `json:"noop"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
}

func printSyncJSON(report reconcile.Report, syncErr error) error {
	out := syncJSONOutput{
		Pushed:     report.Pushed,
		Pulled:     report.Pulled,
		ResyncedDB: report.ResyncedDB,
		Noop:       report.Noop,
		Skipped:    report.Skipped,
		Failed:     report.Failed,
	}
	if syncErr != nil {
		out.Error = syncErr.Error()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
