// Command compositord is the compositor's process entrypoint: it loads
// configuration, brings up structured logging, starts the privilege-
// separated session helper, builds internal/server.Server, and runs it
// on internal/reactor's event loop until a shutdown signal arrives.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/wlcore/compositor/internal/applog"
	"github.com/wlcore/compositor/internal/config"
	"github.com/wlcore/compositor/internal/gpu"
	"github.com/wlcore/compositor/internal/server"
	"github.com/wlcore/compositor/internal/session"

	_ "github.com/wlcore/compositor/internal/gpu/backend/purego"
	_ "github.com/wlcore/compositor/internal/gpu/backend/webgpu"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logDir     string
		windowed   bool
	)

	cmd := &cobra.Command{
		Use:   "compositord",
		Short: "Wayland compositor core",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logDir, windowed)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file (defaults applied if omitted)")
	cmd.Flags().StringVar(&logDir, "log-dir", os.Getenv("COMPOSITOR_LOG_DIR"), "directory for rolling log files (default /tmp/custom_compositor_logs)")
	cmd.Flags().BoolVar(&windowed, "windowed", false, "force the pure-Go backend and skip the logind session helper, for nested development runs")

	return cmd
}

func run(configPath, logDir string, windowed bool) error {
	if logDir == "" {
		logDir = "/tmp/custom_compositor_logs"
	}
	opts := applog.DefaultOptions()
	opts.Dir = logDir
	if lvl, err := zerolog.ParseLevel(os.Getenv("WAYLAND_DEBUG")); err == nil {
		opts.Level = lvl
	}
	log, closeLog, err := applog.New(opts)
	if err != nil {
		return fmt.Errorf("compositord: init logging: %w", err)
	}
	defer closeLog()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("compositord: load config: %w", err)
	}

	var sess *session.Helper
	backendType := gpu.BackendAuto
	if windowed {
		backendType = gpu.BackendPureGo
	} else {
		sess, err = session.New(applog.Component(log, "session"))
		if err != nil {
			log.Warn().Err(err).Msg("compositord: session helper unavailable, continuing without logind integration")
			sess = nil
		} else {
			go sess.Run()
		}
	}

	srv, err := server.New(applog.Component(log, "server"), cfg, backendType, sess)
	if err != nil {
		return fmt.Errorf("compositord: start server: %w", err)
	}
	defer srv.Shutdown()

	log.Info().Msg("compositord: ready")
	if err := srv.Run(); err != nil {
		return fmt.Errorf("compositord: run: %w", err)
	}
	return nil
}
