package setup

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	mw "github.com/edvin/dokku-installer/internal/api/middleware"
	"github.com/edvin/dokku-installer/internal/api/response"
	"github.com/edvin/dokku-installer/internal/debconf"
	"github.com/edvin/dokku-installer/internal/identity"
	"github.com/edvin/dokku-installer/internal/probe"
	"github.com/edvin/dokku-installer/internal/selfdestruct"
)

//go:embed templates/page.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/page.html"))

// Sentinels persists the VHOST and HOSTNAME files under the dokku root.
type Sentinels interface {
	SetVhost(enabled bool, hostname string) error
	WriteHostname(hostname string) error
	Hostname() (string, error)
}

// Identities names and registers admin keys.
type Identities interface {
	Assign(ctx context.Context, n int) ([]identity.Identity, error)
	Add(ctx context.Context, id identity.Identity, key string) error
}

// Preseeder records package configuration answers.
type Preseeder interface {
	Apply(ctx context.Context, selections []debconf.Selection) (bool, error)
}

// SelfDestructor tears the installer down after a successful setup.
type SelfDestructor interface {
	Start(ctx context.Context) <-chan error
}

// Deps are the collaborators a setup run drives.
type Deps struct {
	Sentinels  Sentinels
	Identities Identities
	Preseeder  Preseeder
	// SelfDestruct is nil unless the installer runs in selfdestruct mode.
	SelfDestruct SelfDestructor
}

// Server is the installer HTTP server.
type Server struct {
	router  chi.Router
	logger  zerolog.Logger
	version string
	env     probe.Environment
	deps    Deps

	// mu serializes setup runs so identity numbering never races.
	mu           sync.Mutex
	destructOnce sync.Once
}

// NewServer creates a Server. env is captured once at startup and rendered
// into every page.
func NewServer(logger zerolog.Logger, version string, env probe.Environment, deps Deps) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		logger:  logger,
		version: version,
		env:     env,
		deps:    deps,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
	s.router.Use(middleware.GetHead)
}

func (s *Server) setupRoutes() {
	s.router.NotFound(s.handleNotFound)
	s.router.MethodNotAllowed(s.handleMethodNotAllowed)

	s.router.Post("/setup", s.handleSetup)
	s.router.Post("/setup/", s.handleSetup)

	// Any other GET path renders the page.
	s.router.Get("/*", s.handlePage)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type pageData struct {
	Version  string
	Hostname string
	KeyFile  string
	Keys     string
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, pageData{
		Version:  s.version,
		Hostname: s.env.Hostname,
		KeyFile:  s.env.KeyFile,
		Keys:     strings.Join(s.env.Keys, "\n"),
	})
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("render page")
		response.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	response.WriteError(w, http.StatusNotFound, "not found")
}

// handleMethodNotAllowed answers POSTs to anything but /setup with 404, since
// only that path accepts submissions. Other methods get 405.
func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		s.handleNotFound(w, r)
		return
	}
	allow := "GET, HEAD"
	if r.URL.Path == "/setup" || r.URL.Path == "/setup/" {
		allow += ", POST"
	}
	w.Header().Set("Allow", allow)
	response.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (s *Server) startSelfDestruct() {
	if s.deps.SelfDestruct == nil {
		return
	}
	s.destructOnce.Do(func() {
		errs := s.deps.SelfDestruct.Start(context.Background())
		go selfdestruct.Watch(s.logger, errs)
	})
}
