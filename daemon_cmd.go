package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/romm-sync/saveport/internal/config"
	"github.com/romm-sync/saveport/internal/daemon"
	"github.com/romm-sync/saveport/internal/store"
)

func newDaemonCmd() *cobra.Command {
	var flagSocket string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the background sync daemon",
		Long:  "Runs the poll timer, filesystem watcher, and command-socket listener, serializing every sync through a single actor.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), flagSocket)
		},
	}

	cmd.Flags().StringVar(&flagSocket, "socket", "", "command socket path (default: platform runtime directory)")

	return cmd
}

func runDaemon(ctx context.Context, socketPath string) error {
	cc := mustCLIContext(ctx)
	cfg := cc.Holder.Config()

	if socketPath == "" {
		socketPath = config.DefaultSocketPath()
	}
	if socketPath == "" {
		return fmt.Errorf("cannot determine command socket path")
	}

	pidPath := config.DefaultPIDPath()
	cleanup, err := writePIDFile(pidPath)
	if err != nil {
		return err
	}
	defer cleanup()

	db, err := store.Open(cfg.System.Database, cc.Logger)
	if err != nil {
		return fmt.Errorf("opening sync database: %w", err)
	}
	defer db.Close()

	d, err := daemon.New(cc.Holder, db, socketPath, cc.Logger)
	if err != nil {
		return fmt.Errorf("initializing daemon: %w", err)
	}

	runCtx := shutdownContext(ctx, cc.Logger)

	cc.Logger.Info("daemon: starting", "socket", socketPath, "pid_file", pidPath)
	d.Run(runCtx)
	cc.Logger.Info("daemon: stopped")

	return nil
}
