// Package debconf pre-seeds answers for the dokku package so that later
// package configuration runs without interactive prompts.
package debconf

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/dokku-installer/internal/command"
)

const (
	packageName = "dokku"
	// distroMarker must appear in the OS release file for debconf to exist.
	distroMarker = "debian"
)

// Type is a debconf question type.
type Type string

const (
	TypeBoolean Type = "boolean"
	TypeString  Type = "string"
)

// Selection is one pre-seeded answer.
type Selection struct {
	Key   string
	Type  Type
	Value string
}

// Bool builds a boolean selection.
func Bool(key string, v bool) Selection {
	return Selection{Key: key, Type: TypeBoolean, Value: fmt.Sprintf("%t", v)}
}

// String builds a string selection.
func String(key, v string) Selection {
	return Selection{Key: key, Type: TypeString, Value: v}
}

// Line renders the selection in debconf-set-selections format.
func (s Selection) Line() string {
	return fmt.Sprintf("%s %s/%s %s %s", packageName, packageName, s.Key, s.Type, s.Value)
}

// Applier pushes selections through debconf-set-selections.
type Applier struct {
	logger        zerolog.Logger
	runner        command.Runner
	osReleasePath string
}

// NewApplier creates an Applier. osReleasePath is normally /etc/os-release.
func NewApplier(logger zerolog.Logger, runner command.Runner, osReleasePath string) *Applier {
	return &Applier{
		logger:        logger.With().Str("component", "debconf").Logger(),
		runner:        runner,
		osReleasePath: osReleasePath,
	}
}

// Supported reports whether the host belongs to the debian family.
// An unreadable release file counts as unsupported.
func (a *Applier) Supported() bool {
	data, err := os.ReadFile(a.osReleasePath)
	if err != nil {
		a.logger.Debug().Err(err).Str("path", a.osReleasePath).Msg("cannot read os release file")
		return false
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), distroMarker) {
			return true
		}
	}
	return false
}

// Apply pushes selections in one debconf-set-selections invocation. On hosts
// without debconf it does nothing and reports applied=false with a nil error.
func (a *Applier) Apply(ctx context.Context, selections []Selection) (applied bool, err error) {
	if len(selections) == 0 {
		return false, nil
	}
	if !a.Supported() {
		a.logger.Debug().Msg("host is not debian based, skipping debconf selections")
		return false, nil
	}

	var buf bytes.Buffer
	for _, s := range selections {
		buf.WriteString(s.Line())
		buf.WriteByte('\n')
	}

	a.logger.Info().Int("count", len(selections)).Msg("setting debconf selections")

	if _, err := a.runner.Run(ctx, &buf, "debconf-set-selections"); err != nil {
		return false, fmt.Errorf("debconf-set-selections: %w", err)
	}
	return true, nil
}
