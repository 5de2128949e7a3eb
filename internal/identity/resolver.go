package identity

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/dokku-installer/internal/command"
)

// sshcommandUser is the account whose ACL receives the admin keys.
const sshcommandUser = "dokku"

// Resolver reads existing identities and registers new ones.
type Resolver struct {
	logger zerolog.Logger
	runner command.Runner
}

// NewResolver creates a Resolver that shells out through runner.
func NewResolver(logger zerolog.Logger, runner command.Runner) *Resolver {
	return &Resolver{
		logger: logger.With().Str("component", "identity-resolver").Logger(),
		runner: runner,
	}
}

// List returns the raw `dokku ssh-keys:list` output.
//
// dokku exits 1 with "No public keys found." on a host without keys, so a
// command that ran and exited non-zero is treated as an empty listing. Only a
// failure to run the command at all is returned as an error.
func (r *Resolver) List(ctx context.Context) ([]byte, error) {
	out, err := r.runner.Run(ctx, nil, "dokku", "ssh-keys:list")
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			r.logger.Debug().Err(err).Msg("ssh-keys:list exited non-zero, assuming no identities")
			return out, nil
		}
		return nil, fmt.Errorf("list identities: %w", err)
	}
	return out, nil
}

// Assign lists the current identities once and plans names for n new keys.
func (r *Resolver) Assign(ctx context.Context, n int) ([]Identity, error) {
	listing, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	ids, err := Plan(listing, n)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = id.String()
	}
	r.logger.Debug().Strs("identities", names).Msg("assigned identities")

	return ids, nil
}

// Add grants id access with the given public key via
// `sshcommand acl-add dokku <id>`, passing the key on stdin.
func (r *Resolver) Add(ctx context.Context, id Identity, key string) error {
	r.logger.Info().Str("identity", id.String()).Msg("adding ssh key")

	if _, err := r.runner.Run(ctx, strings.NewReader(key), "sshcommand", "acl-add", sshcommandUser, id.String()); err != nil {
		return fmt.Errorf("acl-add %s: %w", id, err)
	}
	return nil
}
