package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/dokku-installer/internal/command"
)

// Manager abstracts the init system so callers can stop and restart
// services without caring whether the host runs systemd, upstart or
// plain SysV init scripts.
type Manager interface {
	// Stop stops a running service.
	Stop(ctx context.Context, name string) error

	// Restart fully stops and starts a service.
	Restart(ctx context.Context, name string) error
}

// ---------------------------------------------------------------------------
// Systemd
// ---------------------------------------------------------------------------

// Systemd implements Manager using systemctl. Names without a unit suffix
// get ".service" appended.
type Systemd struct {
	logger zerolog.Logger
	runner command.Runner
}

// NewSystemd creates a Manager backed by systemd.
func NewSystemd(logger zerolog.Logger, runner command.Runner) *Systemd {
	return &Systemd{logger: logger.With().Str("svc_mgr", "systemd").Logger(), runner: runner}
}

func (s *Systemd) Stop(ctx context.Context, name string) error {
	return s.systemctl(ctx, "stop", unitName(name))
}

func (s *Systemd) Restart(ctx context.Context, name string) error {
	return s.systemctl(ctx, "restart", unitName(name))
}

func (s *Systemd) systemctl(ctx context.Context, args ...string) error {
	s.logger.Debug().Strs("args", args).Msg("systemctl")
	if _, err := s.runner.Run(ctx, nil, "systemctl", args...); err != nil {
		return err
	}
	return nil
}

func unitName(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return name + ".service"
}

// ---------------------------------------------------------------------------
// Upstart
// ---------------------------------------------------------------------------

// Upstart implements Manager with the upstart job control commands.
type Upstart struct {
	logger zerolog.Logger
	runner command.Runner
}

// NewUpstart creates a Manager backed by upstart.
func NewUpstart(logger zerolog.Logger, runner command.Runner) *Upstart {
	return &Upstart{logger: logger.With().Str("svc_mgr", "upstart").Logger(), runner: runner}
}

func (u *Upstart) Stop(ctx context.Context, name string) error {
	u.logger.Debug().Str("job", name).Msg("stop")
	_, err := u.runner.Run(ctx, nil, "stop", name)
	return err
}

func (u *Upstart) Restart(ctx context.Context, name string) error {
	u.logger.Debug().Str("job", name).Msg("restart")
	_, err := u.runner.Run(ctx, nil, "restart", name)
	return err
}

// ---------------------------------------------------------------------------
// SysV
// ---------------------------------------------------------------------------

// SysV implements Manager by calling /etc/init.d scripts directly.
type SysV struct {
	logger  zerolog.Logger
	runner  command.Runner
	initDir string
}

// NewSysV creates a Manager that runs scripts from initDir (normally /etc/init.d).
func NewSysV(logger zerolog.Logger, runner command.Runner, initDir string) *SysV {
	return &SysV{logger: logger.With().Str("svc_mgr", "sysv").Logger(), runner: runner, initDir: initDir}
}

func (s *SysV) Stop(ctx context.Context, name string) error {
	return s.script(ctx, name, "stop")
}

// Restart runs "stop" then "start" rather than "restart", which some
// scripts implement as a reload.
func (s *SysV) Restart(ctx context.Context, name string) error {
	if err := s.script(ctx, name, "stop"); err != nil {
		return err
	}
	return s.script(ctx, name, "start")
}

func (s *SysV) script(ctx context.Context, name, action string) error {
	path := filepath.Join(s.initDir, name)
	s.logger.Debug().Str("script", path).Str("action", action).Msg("init script")
	_, err := s.runner.Run(ctx, nil, path, action)
	return err
}

// ---------------------------------------------------------------------------
// Fallback
// ---------------------------------------------------------------------------

// Fallback tries each Manager in order and succeeds on the first success.
type Fallback []Manager

func (f Fallback) Stop(ctx context.Context, name string) error {
	return f.each(func(m Manager) error { return m.Stop(ctx, name) })
}

func (f Fallback) Restart(ctx context.Context, name string) error {
	return f.each(func(m Manager) error { return m.Restart(ctx, name) })
}

func (f Fallback) each(fn func(Manager) error) error {
	if len(f) == 0 {
		return fmt.Errorf("no service managers configured")
	}
	var errs []error
	for _, m := range f {
		err := fn(m)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
