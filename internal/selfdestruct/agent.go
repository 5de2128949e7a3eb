// Package selfdestruct removes the installer's boot registrations and stops
// it once setup has completed.
package selfdestruct

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/dokku-installer/internal/bootreg"
	"github.com/edvin/dokku-installer/internal/service"
)

// DefaultDelay gives the HTTP response time to reach the client before the
// installer starts tearing itself down.
const DefaultDelay = time.Second

const proxyService = "nginx"

// Agent performs the cleanup. It is started once, after a successful setup.
type Agent struct {
	logger    zerolog.Logger
	paths     bootreg.Paths
	proxy     service.Manager
	installer service.Manager
	delay     time.Duration
}

// New creates an Agent. proxy restarts nginx; installer stops this service.
func New(logger zerolog.Logger, paths bootreg.Paths, proxy, installer service.Manager, delay time.Duration) *Agent {
	return &Agent{
		logger:    logger.With().Str("component", "self-destruct").Logger(),
		paths:     paths,
		proxy:     proxy,
		installer: installer,
		delay:     delay,
	}
}

// Start runs the cleanup in a detached goroutine and returns immediately.
// Every failure is delivered on the returned channel, which is closed when
// the cleanup has finished.
func (a *Agent) Start(ctx context.Context) <-chan error {
	errs := make(chan error, 2)

	go func() {
		defer close(errs)

		if a.delay > 0 {
			select {
			case <-time.After(a.delay):
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}

		a.logger.Info().Msg("removing installer registrations")

		// Both actions run to completion. Every failure reaches errs.
		var g errgroup.Group
		g.Go(func() error { return deliver(errs, a.removeProxy(ctx)) })
		g.Go(func() error { return deliver(errs, a.removeService(ctx)) })
		if err := g.Wait(); err != nil {
			a.logger.Warn().Err(err).Msg("self-destruct incomplete")
			return
		}
		a.logger.Info().Msg("installer registrations removed")
	}()

	return errs
}

func deliver(errs chan<- error, err error) error {
	if err != nil {
		errs <- err
	}
	return err
}

// removeProxy deletes the nginx fragment and, only when that succeeded,
// restarts nginx so port 80 returns to the regular vhosts.
func (a *Agent) removeProxy(ctx context.Context) error {
	path := a.paths.NginxConf()
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove proxy config: %w", err)
	}
	if err := a.proxy.Restart(ctx, proxyService); err != nil {
		return fmt.Errorf("restart %s: %w", proxyService, err)
	}
	return nil
}

// removeService deletes both init registrations and stops the installer.
// Missing registration files are expected since only one init system is
// normally present.
func (a *Agent) removeService(ctx context.Context) error {
	var errs []error
	for _, path := range []string{a.paths.UpstartJob(), a.paths.SystemdUnit()} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
		}
	}
	if err := a.installer.Stop(ctx, bootreg.Name); err != nil {
		errs = append(errs, fmt.Errorf("stop %s: %w", bootreg.Name, err))
	}
	return errors.Join(errs...)
}

// Watch logs every error from errs until the channel is closed.
func Watch(logger zerolog.Logger, errs <-chan error) {
	for err := range errs {
		logger.Warn().Err(err).Msg("self-destruct step failed")
	}
	logger.Info().Msg("self-destruct finished")
}
