package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/romm-sync/saveport/internal/config"
	"github.com/romm-sync/saveport/internal/protocol"
)

func newReloadCmd() *cobra.Command {
	var flagSocket string

	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Ask the running daemon to reload its config",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sendCommand(cmd.Context(), flagSocket, protocol.Command{
				Version: protocol.CurrentVersion,
				Kind:    protocol.KindReloadConfig,
			})
		},
	}
	cmd.Flags().StringVar(&flagSocket, "socket", "", "command socket path (default: platform runtime directory)")
	return cmd
}

func newTriggerCmd() *cobra.Command {
	var flagSocket string

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Ask the running daemon to run a sync pass now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sendCommand(cmd.Context(), flagSocket, protocol.Command{
				Version: protocol.CurrentVersion,
				Kind:    protocol.KindDoSync,
			})
		},
	}
	cmd.Flags().StringVar(&flagSocket, "socket", "", "command socket path (default: platform runtime directory)")
	return cmd
}

// sendCommand dials the daemon's command socket, sends one encoded command
// envelope, and reports the daemon's reply.
func sendCommand(ctx context.Context, socketPath string, cmd protocol.Command) error {
	cc := mustCLIContext(ctx)

	if socketPath == "" {
		socketPath = config.DefaultSocketPath()
	}
	if socketPath == "" {
		return fmt.Errorf("cannot determine command socket path")
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("connecting to daemon at %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := protocol.Encode(cmd)
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("sending command: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading daemon reply: %w", err)
	}

	var reply protocol.Reply
	if err := json.Unmarshal([]byte(line), &reply); err != nil {
		return fmt.Errorf("parsing daemon reply: %w", err)
	}
	if !reply.OK {
		return fmt.Errorf("daemon rejected command: %s", reply.Error)
	}

	cc.Logger.Info("command acknowledged", "command", cmd.Kind)
	return nil
}
