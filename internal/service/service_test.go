package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/dokku-installer/internal/command/commandtest"
)

func TestSystemd_AppendsServiceSuffix(t *testing.T) {
	rec := commandtest.New()
	s := NewSystemd(zerolog.Nop(), rec)

	require.NoError(t, s.Stop(context.Background(), "dokku-installer"))
	require.NoError(t, s.Restart(context.Background(), "nginx.service"))

	assert.Equal(t, []string{
		"systemctl stop dokku-installer.service",
		"systemctl restart nginx.service",
	}, rec.Lines())
}

func TestUpstart(t *testing.T) {
	rec := commandtest.New()
	u := NewUpstart(zerolog.Nop(), rec)

	require.NoError(t, u.Stop(context.Background(), "dokku-installer"))
	require.NoError(t, u.Restart(context.Background(), "nginx"))

	assert.Equal(t, []string{"stop dokku-installer", "restart nginx"}, rec.Lines())
}

func TestSysV_RestartIsStopThenStart(t *testing.T) {
	rec := commandtest.New()
	s := NewSysV(zerolog.Nop(), rec, "/etc/init.d")

	require.NoError(t, s.Restart(context.Background(), "nginx"))

	assert.Equal(t, []string{"/etc/init.d/nginx stop", "/etc/init.d/nginx start"}, rec.Lines())
}

func TestSysV_RestartSkipsStartWhenStopFails(t *testing.T) {
	rec := commandtest.New().Stub("/etc/init.d/nginx stop", commandtest.Response{Err: errors.New("exit status 1")})
	s := NewSysV(zerolog.Nop(), rec, "/etc/init.d")

	err := s.Restart(context.Background(), "nginx")
	require.Error(t, err)
	assert.Equal(t, []string{"/etc/init.d/nginx stop"}, rec.Lines())
}

func TestFallback_StopsAtFirstSuccess(t *testing.T) {
	rec := commandtest.New()
	f := Fallback{NewUpstart(zerolog.Nop(), rec), NewSystemd(zerolog.Nop(), rec)}

	require.NoError(t, f.Stop(context.Background(), "dokku-installer"))
	assert.Equal(t, []string{"stop dokku-installer"}, rec.Lines())
}

func TestFallback_TriesNextOnFailure(t *testing.T) {
	rec := commandtest.New().Stub("stop", commandtest.Response{Err: errors.New("stop: command not found")})
	f := Fallback{NewUpstart(zerolog.Nop(), rec), NewSystemd(zerolog.Nop(), rec)}

	require.NoError(t, f.Stop(context.Background(), "dokku-installer"))
	assert.Equal(t, []string{"stop dokku-installer", "systemctl stop dokku-installer.service"}, rec.Lines())
}

func TestFallback_AllFail(t *testing.T) {
	rec := commandtest.New().
		Stub("stop", commandtest.Response{Err: errors.New("upstart missing")}).
		Stub("systemctl", commandtest.Response{Err: errors.New("systemd missing")})
	f := Fallback{NewUpstart(zerolog.Nop(), rec), NewSystemd(zerolog.Nop(), rec)}

	err := f.Stop(context.Background(), "dokku-installer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstart missing")
	assert.Contains(t, err.Error(), "systemd missing")
}

func TestFallback_Empty(t *testing.T) {
	assert.Error(t, Fallback{}.Stop(context.Background(), "x"))
}
