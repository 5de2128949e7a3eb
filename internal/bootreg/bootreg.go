// Package bootreg registers the installer to start on the next boot and
// routes port 80 to it until setup has completed.
package bootreg

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/template"

	"github.com/rs/zerolog"
)

// Name is used for the upstart job, systemd unit and nginx fragment.
const Name = "dokku-installer"

const upstartTemplate = `start on runlevel [2345]
exec {{ .Executable }} selfdestruct
`

const systemdTemplate = `[Unit]
Description=Dokku web-installer

[Service]
ExecStart={{ .Executable }} selfdestruct

[Install]
WantedBy=multi-user.target
WantedBy=graphical.target
`

const nginxTemplate = `upstream {{ .Name }} { server 127.0.0.1:{{ .Port }}; }
server {
  listen      80;
  location    / {
    proxy_pass  http://{{ .Name }};
  }
}
`

var (
	upstartTmpl = template.Must(template.New("upstart").Parse(upstartTemplate))
	systemdTmpl = template.Must(template.New("systemd").Parse(systemdTemplate))
	nginxTmpl   = template.Must(template.New("nginx").Parse(nginxTemplate))
)

type templateData struct {
	Name       string
	Executable string
	Port       string
}

// Paths are the directories the registrar writes into. A directory that does
// not exist is skipped.
type Paths struct {
	InitDir       string
	SystemdDir    string
	NginxDir      string
	NginxSitesDir string
}

// UpstartJob is the path of the upstart job under InitDir.
func (p Paths) UpstartJob() string { return filepath.Join(p.InitDir, Name+".conf") }

// SystemdUnit is the path of the systemd unit under SystemdDir.
func (p Paths) SystemdUnit() string { return filepath.Join(p.SystemdDir, Name+".service") }

// NginxConf is the path of the nginx fragment under NginxDir.
func (p Paths) NginxConf() string { return filepath.Join(p.NginxDir, Name+".conf") }

// Result lists what Register changed.
type Result struct {
	Written []string
	Removed []string
}

// Registrar writes the boot-time registrations.
type Registrar struct {
	logger     zerolog.Logger
	paths      Paths
	executable string
	port       string
}

// New creates a Registrar. executable must be an absolute path; it is
// re-invoked with "selfdestruct" by the init system.
func New(logger zerolog.Logger, paths Paths, executable, port string) *Registrar {
	return &Registrar{
		logger:     logger.With().Str("component", "boot-registrar").Logger(),
		paths:      paths,
		executable: executable,
		port:       port,
	}
}

// Register writes the upstart job, systemd unit and nginx fragment for every
// directory that exists, then removes all enabled nginx sites so the
// installer owns port 80.
func (r *Registrar) Register() (*Result, error) {
	data := templateData{Name: Name, Executable: r.executable, Port: r.port}
	res := &Result{}

	targets := []struct {
		dir  string
		path string
		tmpl *template.Template
	}{
		{r.paths.InitDir, r.paths.UpstartJob(), upstartTmpl},
		{r.paths.SystemdDir, r.paths.SystemdUnit(), systemdTmpl},
		{r.paths.NginxDir, r.paths.NginxConf(), nginxTmpl},
	}

	for _, t := range targets {
		if !dirExists(t.dir) {
			r.logger.Debug().Str("dir", t.dir).Msg("directory missing, skipping")
			continue
		}
		if err := render(t.path, t.tmpl, data); err != nil {
			return res, err
		}
		r.logger.Info().Str("path", t.path).Msg("wrote boot registration")
		res.Written = append(res.Written, t.path)
	}

	removed, err := removeEnabledSites(r.paths.NginxSitesDir)
	res.Removed = removed
	if err != nil {
		return res, err
	}
	if len(removed) > 0 {
		r.logger.Info().Strs("sites", removed).Msg("removed enabled nginx sites")
	}

	return res, nil
}

func render(path string, tmpl *template.Template, data templateData) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func removeEnabledSites(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var removed []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("remove %s: %w", path, err)
		}
		removed = append(removed, path)
	}
	return removed, nil
}

func dirExists(dir string) bool {
	if dir == "" {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
