// ABOUTME: remote command driving a bridge from the command line
// ABOUTME: Runs a sequence of session operations on one connection, carrying the handle
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/miniaud/minitester/internal/discovery"
	"github.com/miniaud/minitester/pkg/bridge"
	"github.com/miniaud/minitester/pkg/session"
)

var remoteCmd = &cobra.Command{
	Use:   "remote <op> [op...]",
	Short: "Drive a bridge with session operations",
	Long: `remote connects to a bridge (found over mDNS unless --server is given) and
runs the operations in order on one session, carrying the returned handle
from one operation to the next. Sessions still alive when remote exits are
deleted by the bridge.

Operations: play, pause, uninitialize, hasError, getError, deleteState.`,
	Example: `  minitester remote --backend oto --hold 3s play pause play deleteState`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runRemote,
}

func init() {
	remoteCmd.Flags().String("server", "", "Bridge URL, e.g. ws://host:8927/control")
	remoteCmd.Flags().Duration("hold", time.Second, "Pause between operations")
	remoteCmd.Flags().Duration("timeout", 5*time.Second, "Discovery and per-operation timeout")
}

func runRemote(cmd *cobra.Command, args []string) error {
	ops := make([]bridge.Op, 0, len(args))
	for _, arg := range args {
		op, err := bridge.ParseOp(arg)
		if err != nil {
			return err
		}
		ops = append(ops, op)
	}

	rt, err := setup(cmd, "")
	if err != nil {
		return err
	}
	defer func() { _ = rt.log.Sync() }()

	hold, _ := cmd.Flags().GetDuration("hold")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	url := rt.cfg.Bridge.Server
	if url == "" {
		url, err = discover(timeout, rt)
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	client, err := bridge.Dial(ctx, url, rt.log.SugaredLogger)
	cancel()
	if err != nil {
		return err
	}
	defer client.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "connected to %s (%s)\n", client.Hello().Name, url)

	backend := rt.cfg.DefaultBackend()
	var handle session.Handle
	for i, op := range ops {
		if i > 0 && hold > 0 {
			time.Sleep(hold)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		res, err := client.Do(ctx, op, handle, backend)
		cancel()
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		handle = res.Handle
		fmt.Fprintf(out, "%-13s handle=%-6s state=%-13s hasError=%-5t %s\n",
			op, handle, orDash(res.State), res.HasError, res.Error)
	}
	return nil
}

func discover(timeout time.Duration, rt *app) (string, error) {
	mgr := discovery.NewManager(discovery.Config{Logger: rt.log.SugaredLogger})
	defer mgr.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	server, err := mgr.Lookup(ctx)
	if err != nil {
		return "", fmt.Errorf("%w (use --server)", err)
	}
	return server.URL(), nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
