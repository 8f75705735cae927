package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/romm-sync/saveport/internal/protocol"
)

// socketPermissions restricts the command socket to its owner: the socket
// carries operator commands (reload, trigger), not data, but there is no
// reason to make it world-writable.
const socketPermissions = 0o600

// CommandSocket listens on a Unix domain socket, decodes a stream of
// protocol.Command envelopes from each connection, and dispatches them to
// a Daemon. One CommandSocket per daemon process; the path is removed and
// recreated on Serve, and removed again on Close.
type CommandSocket struct {
	path     string
	daemon   *Daemon
	logger   *slog.Logger
	listener net.Listener

	mu     sync.Mutex
	closed bool
}

// NewCommandSocket prepares a CommandSocket bound to path, dispatching to
// daemon. Call Serve to start accepting connections.
func NewCommandSocket(path string, daemon *Daemon, logger *slog.Logger) *CommandSocket {
	return &CommandSocket{path: path, daemon: daemon, logger: logger}
}

// Serve binds the socket and accepts connections until ctx is cancelled or
// a non-recoverable accept error occurs. The socket file is removed before
// binding (a stale file from a prior crashed run would otherwise make
// net.Listen fail with "address already in use") and removed again when
// Serve returns.
func (s *CommandSocket) Serve(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("daemon: creating socket directory: %w", err)
	}
	os.Remove(s.path)

	lis, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("daemon: listening on %s: %w", s.path, err)
	}
	s.listener = lis
	defer func() {
		os.Remove(s.path)
	}()

	if err := os.Chmod(s.path, socketPermissions); err != nil {
		s.logger.Warn("daemon: failed to restrict socket permissions", "path", s.path, "error", err)
	}

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		lis.Close()
	}()

	s.logger.Info("daemon: command socket listening", "path", s.path)

	for {
		conn, err := lis.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("daemon: accept: %w", err)
		}

		go s.handleConn(ctx, conn)
	}
}

func (s *CommandSocket) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	decoder := protocol.NewStreamDecoder()
	buf := make([]byte, 4096)

	for {
		n, err := reader.Read(buf)
		if n > 0 {
			commands, decodeErr := decoder.Feed(buf[:n])
			for _, cmd := range commands {
				s.dispatch(ctx, conn, cmd)
			}
			if decodeErr != nil {
				s.writeReply(conn, protocol.ErrReply(decodeErr))
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *CommandSocket) dispatch(ctx context.Context, conn net.Conn, cmd protocol.Command) {
	switch cmd.Kind {
	case protocol.KindDoSync:
		s.daemon.DoSync()
		s.writeReply(conn, protocol.OKReply())

	case protocol.KindReloadConfig:
		if err := s.daemon.ReloadConfig(ctx); err != nil {
			s.writeReply(conn, protocol.ErrReply(err))
			return
		}
		s.writeReply(conn, protocol.OKReply())

	case protocol.KindSyncSingle:
		s.writeReply(conn, protocol.ErrReply(protocol.ErrCommandNotImplemented))

	default:
		s.writeReply(conn, protocol.ErrReply(errors.New("daemon: unrecognized command")))
	}
}

func (s *CommandSocket) writeReply(conn net.Conn, reply protocol.Reply) {
	data, err := protocol.EncodeReply(reply)
	if err != nil {
		s.logger.Error("daemon: encoding reply", "error", err)
		return
	}
	if _, err := conn.Write(data); err != nil {
		s.logger.Debug("daemon: writing reply", "error", err)
	}
}
