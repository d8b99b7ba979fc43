// ABOUTME: serve command running the websocket bridge
// ABOUTME: Exposes the session API to remote hosts and advertises it over mDNS
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/miniaud/minitester/internal/config"
	"github.com/miniaud/minitester/internal/discovery"
	"github.com/miniaud/minitester/pkg/bridge"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session API over a websocket bridge",
	Long:  `serve owns the audio devices of this machine and lets remote hosts drive sessions through /control. Prometheus metrics are served on /metrics.`,
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("listen", ":8927", "Address to listen on")
	serveCmd.Flags().String("name", "", "Bridge name announced to hosts (default hostname)")
	serveCmd.Flags().Bool("mdns", true, "Advertise the bridge over mDNS")
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := setup(cmd, "")
	if err != nil {
		return err
	}
	defer func() { _ = rt.log.Sync() }()
	log := rt.log.Named("serve")

	engine, err := rt.newEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	name := rt.cfg.Bridge.Name
	if !cmd.Flags().Changed("name") && name == "minitester" {
		if host, err := os.Hostname(); err == nil {
			name = host + "-minitester"
		}
	}

	server := bridge.New(engine, bridge.Config{
		Listen: rt.cfg.Bridge.Listen,
		Name:   name,
		Logger: rt.log.SugaredLogger,
	})

	rt.loader.Watch(log, func(cfg *config.Config) {
		if err := rt.log.SetLevel(cfg.Log.Level); err != nil {
			log.Warnw("Ignoring log level change", "error", err)
		}
	})

	if rt.cfg.Bridge.MDNS {
		mdns := discovery.NewManager(discovery.Config{
			ServiceName: name,
			Port:        listenPort(rt.cfg.Bridge.Listen),
			Logger:      rt.log.SugaredLogger,
		})
		if err := mdns.Advertise(); err != nil {
			log.Warnw("mDNS advertisement failed", "error", err)
		}
		defer mdns.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.ListenAndServe(ctx)
}

// listenPort extracts the port of a listen address, defaulting to 8927
func listenPort(addr string) int {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 8927
	}
	n, err := strconv.Atoi(port)
	if err != nil || n == 0 {
		return 8927
	}
	return n
}
