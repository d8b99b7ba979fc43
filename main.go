// ABOUTME: Entry point for minitester
// ABOUTME: Cobra root command running the terminal harness, plus shared setup
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/miniaud/minitester/internal/config"
	"github.com/miniaud/minitester/internal/logging"
	"github.com/miniaud/minitester/internal/ui"
	"github.com/miniaud/minitester/internal/version"
	"github.com/miniaud/minitester/pkg/session"
)

// harnessLogFile receives logs while the harness owns the terminal
var harnessLogFile = filepath.Join("logs", "minitester-latest-run.log")

var configFile string

var rootCmd = &cobra.Command{
	Use:     version.Product,
	Short:   "Exercise audio device sessions across playback backends",
	Long:    `minitester opens a playback device on a chosen backend and plays a test tone, exposing play, pause, uninitialize and delete as discrete steps so device lifecycle bugs can be reproduced by hand or over the network.`,
	Version: version.Version,
	RunE:    runHarness,

	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default ./minitester.yaml)")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-file", "", "Log file (default stderr, or "+harnessLogFile+" for the harness)")
	flags.String("backend", "auto", "Backend: auto, miniaudio (a), oto (b) or 0-2")
	flags.Duration("open-timeout", session.DefaultOpenTimeout, "Give up on a device that does not open in time")

	rootCmd.AddCommand(serveCmd, remoteCmd, probeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app is what every command needs after configuration is resolved
type app struct {
	cfg    *config.Config
	loader *config.Loader
	log    *logging.Logger
}

// setup resolves configuration for cmd and builds the logger. defaultLog
// is used when no log file is configured.
func setup(cmd *cobra.Command, defaultLog string) (*app, error) {
	loader := config.NewLoader(configFile)
	if err := loader.BindFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	logFile := cfg.Log.File
	if logFile == "" {
		logFile = defaultLog
	}
	logger, err := logging.New(logging.Options{
		Level:       cfg.Log.Level,
		File:        logFile,
		Development: logFile == "",
	})
	if err != nil {
		return nil, err
	}

	if file := loader.File(); file != "" {
		logger.Named("config").Debugw("Loaded configuration", "file", file)
	}
	return &app{cfg: cfg, loader: loader, log: logger}, nil
}

// newEngine builds a session engine over the real drivers
func (rt *app) newEngine() (*session.Engine, error) {
	engineCfg, err := rt.cfg.EngineConfig(rt.log.SugaredLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up drivers: %w", err)
	}
	return session.NewEngine(engineCfg)
}

func runHarness(cmd *cobra.Command, args []string) error {
	rt, err := setup(cmd, harnessLogFile)
	if err != nil {
		return err
	}
	defer func() { _ = rt.log.Sync() }()

	engine, err := rt.newEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	rt.log.Infow("Starting harness", "version", version.Version, "backend", rt.cfg.Backend)
	return ui.Run(engine, rt.cfg.DefaultBackend())
}
