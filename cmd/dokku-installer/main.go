package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/edvin/dokku-installer/internal/bootreg"
	"github.com/edvin/dokku-installer/internal/command"
	"github.com/edvin/dokku-installer/internal/config"
	"github.com/edvin/dokku-installer/internal/debconf"
	"github.com/edvin/dokku-installer/internal/hostfiles"
	"github.com/edvin/dokku-installer/internal/identity"
	"github.com/edvin/dokku-installer/internal/logging"
	"github.com/edvin/dokku-installer/internal/metrics"
	"github.com/edvin/dokku-installer/internal/probe"
	"github.com/edvin/dokku-installer/internal/selfdestruct"
	"github.com/edvin/dokku-installer/internal/service"
	"github.com/edvin/dokku-installer/internal/setup"
)

// Version is the dokku release the installer belongs to.
var Version = "v0.12.12"

const sysvInitDir = "/etc/init.d"

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "dokku-installer",
		Short:         "First-boot web installer for dokku",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(false)
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "onboot",
		Short: "Register the installer with the init system and nginx, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return onboot()
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "selfdestruct",
		Short: "Serve the installer and remove it after a successful setup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(true)
		},
	})

	return root
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return nil, err
	}
	return cfg, nil
}

func bootPaths(cfg *config.Config) bootreg.Paths {
	return bootreg.Paths{
		InitDir:       cfg.InitDir,
		SystemdDir:    cfg.SystemdDir,
		NginxDir:      cfg.NginxDir,
		NginxSitesDir: cfg.NginxSitesDir,
	}
}

func onboot() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.NewLogger(cfg, "onboot")

	exe, err := os.Executable()
	if err == nil {
		exe, err = filepath.Abs(exe)
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to resolve executable path")
		return err
	}

	res, err := bootreg.New(logger, bootPaths(cfg), exe, cfg.Port).Register()
	if err != nil {
		logger.Error().Err(err).Msg("boot registration failed")
		return err
	}

	logger.Info().Strs("written", res.Written).Strs("removed", res.Removed).Msg("boot registration complete")
	return nil
}

func serve(selfDestruct bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mode := "serve"
	if selfDestruct {
		mode = "selfdestruct"
	}
	logger := logging.NewLogger(cfg, mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env := probe.New(logger, probe.Options{
		KeyFiles:    cfg.KeyFilePaths(),
		IPLookupURL: cfg.IPLookupURL,
	}).Probe(ctx)
	logger.Info().
		Str("hostname", env.Hostname).
		Str("hostname_source", string(env.HostnameSource)).
		Str("key_file", env.KeyFile).
		Int("keys", len(env.Keys)).
		Msg("environment probed")

	runner := command.NewExecRunner()
	deps := setup.Deps{
		Sentinels:  hostfiles.NewStore(cfg.DokkuRoot),
		Identities: identity.NewResolver(logger, runner),
		Preseeder:  debconf.NewApplier(logger, runner, cfg.OSReleasePath),
	}
	if selfDestruct {
		deps.SelfDestruct = newAgent(logger, cfg, runner)
	}

	srv := setup.NewServer(logger, Version, env, deps)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           srv,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := metrics.Run(ctx, logger, cfg.MetricsAddr); err != nil {
			logger.Error().Err(err).Msg("metrics listener failed")
		}
	}()

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("starting installer")
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server failed")
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down installer")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newAgent(logger zerolog.Logger, cfg *config.Config, runner command.Runner) *selfdestruct.Agent {
	proxy := service.NewSysV(logger, runner, sysvInitDir)
	installer := service.Fallback{
		service.NewUpstart(logger, runner),
		service.NewSystemd(logger, runner),
	}
	return selfdestruct.New(logger, bootPaths(cfg), proxy, installer, selfdestruct.DefaultDelay)
}
