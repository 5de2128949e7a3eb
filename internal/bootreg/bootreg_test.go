package bootreg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func existingPaths(t *testing.T) Paths {
	t.Helper()
	root := t.TempDir()
	p := Paths{
		InitDir:       filepath.Join(root, "init"),
		SystemdDir:    filepath.Join(root, "systemd"),
		NginxDir:      filepath.Join(root, "conf.d"),
		NginxSitesDir: filepath.Join(root, "sites-enabled"),
	}
	for _, d := range []string{p.InitDir, p.SystemdDir, p.NginxDir, p.NginxSitesDir} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	return p
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRegister_WritesAllRegistrations(t *testing.T) {
	p := existingPaths(t)
	require.NoError(t, os.WriteFile(filepath.Join(p.NginxSitesDir, "default"), []byte("server {}"), 0o644))

	res, err := New(zerolog.Nop(), p, "/usr/local/bin/dokku-installer", "2000").Register()
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{p.UpstartJob(), p.SystemdUnit(), p.NginxConf()}, res.Written)
	assert.Equal(t, []string{filepath.Join(p.NginxSitesDir, "default")}, res.Removed)
	assert.NoFileExists(t, filepath.Join(p.NginxSitesDir, "default"))

	assert.Equal(t, "start on runlevel [2345]\nexec /usr/local/bin/dokku-installer selfdestruct\n", readFile(t, p.UpstartJob()))

	unit := readFile(t, p.SystemdUnit())
	assert.Contains(t, unit, "Description=Dokku web-installer")
	assert.Contains(t, unit, "ExecStart=/usr/local/bin/dokku-installer selfdestruct")
	assert.Contains(t, unit, "WantedBy=multi-user.target")
	assert.Contains(t, unit, "WantedBy=graphical.target")

	nginx := readFile(t, p.NginxConf())
	assert.Contains(t, nginx, "upstream dokku-installer { server 127.0.0.1:2000; }")
	assert.Contains(t, nginx, "listen      80;")
	assert.Contains(t, nginx, "proxy_pass  http://dokku-installer;")
}

func TestRegister_UsesConfiguredPort(t *testing.T) {
	p := existingPaths(t)

	_, err := New(zerolog.Nop(), p, "/opt/installer", "2345").Register()
	require.NoError(t, err)

	assert.Contains(t, readFile(t, p.NginxConf()), "server 127.0.0.1:2345;")
}

func TestRegister_NoDirectoriesWritesNothing(t *testing.T) {
	root := t.TempDir()
	p := Paths{
		InitDir:       filepath.Join(root, "init"),
		SystemdDir:    filepath.Join(root, "systemd"),
		NginxDir:      filepath.Join(root, "conf.d"),
		NginxSitesDir: filepath.Join(root, "sites-enabled"),
	}

	res, err := New(zerolog.Nop(), p, "/opt/installer", "2000").Register()
	require.NoError(t, err)
	assert.Empty(t, res.Written)
	assert.Empty(t, res.Removed)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRegister_OnlySystemd(t *testing.T) {
	root := t.TempDir()
	p := Paths{
		InitDir:    filepath.Join(root, "init"),
		SystemdDir: root,
		NginxDir:   filepath.Join(root, "conf.d"),
	}

	res, err := New(zerolog.Nop(), p, "/opt/installer", "2000").Register()
	require.NoError(t, err)
	assert.Equal(t, []string{p.SystemdUnit()}, res.Written)
	assert.NoFileExists(t, p.UpstartJob())
	assert.NoFileExists(t, p.NginxConf())
}

func TestRegister_KeepsSiteSubdirectories(t *testing.T) {
	p := existingPaths(t)
	sub := filepath.Join(p.NginxSitesDir, "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.Symlink("/etc/nginx/sites-available/default", filepath.Join(p.NginxSitesDir, "default")))

	res, err := New(zerolog.Nop(), p, "/opt/installer", "2000").Register()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(p.NginxSitesDir, "default")}, res.Removed)
	assert.DirExists(t, sub)
}
