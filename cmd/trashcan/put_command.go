package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const dialTimeout = 3 * time.Second

var errDaemonUnreachable = errors.New("could not connect to daemon; is it running? (start it with `trashcan start`)")

func newPutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "put PATHS...",
		Aliases: []string{"rm"},
		Short:   "Move files into the trash",
		Long: "Move files into the trash.\n\n" +
			"Each path is resolved to an absolute path with symlinks followed and sent to\n" +
			"the daemon. The daemon does not report per-file results; see `trashcan history`.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			paths, skipped := canonicalPaths(args)
			for _, skip := range skipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "Could not parse path: %s\n", skip)
			}
			if len(paths) == 0 {
				return nil
			}
			return sendPaths(cmd.Context(), cfg.Daemon.Listen, paths)
		},
	}
}

// canonicalPaths resolves each argument to an absolute path with symlinks
// evaluated. Arguments that do not resolve are returned in skipped.
func canonicalPaths(args []string) (paths, skipped []string) {
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			skipped = append(skipped, arg)
			continue
		}
		resolved, err := filepath.EvalSymlinks(abs)
		if err != nil || strings.ContainsRune(resolved, '\n') {
			skipped = append(skipped, arg)
			continue
		}
		paths = append(paths, resolved)
	}
	return paths, skipped
}

// sendPaths writes one path per line to the daemon and half-closes the
// connection. The daemon sends nothing back.
func sendPaths(ctx context.Context, addr string, paths []string) error {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errDaemonUnreachable
	}
	defer conn.Close()

	var payload strings.Builder
	for _, path := range paths {
		payload.WriteString(path)
		payload.WriteByte('\n')
	}
	if _, err := io.WriteString(conn, payload.String()); err != nil {
		return fmt.Errorf("send paths to daemon: %w", err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			return fmt.Errorf("finish request: %w", err)
		}
	}
	return nil
}
