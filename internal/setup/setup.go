package setup

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	mw "github.com/edvin/dokku-installer/internal/api/middleware"
	"github.com/edvin/dokku-installer/internal/api/request"
	"github.com/edvin/dokku-installer/internal/api/response"
	"github.com/edvin/dokku-installer/internal/debconf"
)

var setupRuns = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "installer_setup_runs_total",
		Help: "Setup submissions by outcome",
	},
	[]string{"outcome"},
)

// handleSetup applies a submission. Success answers 200 {"status":"ok"}; a
// malformed submission answers 400 before anything is written; any failed
// required step answers 500 with per-step detail.
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	req, err := request.DecodeSetup(r)
	if err != nil {
		setupRuns.WithLabelValues("invalid").Inc()
		logger.Warn().Err(err).Msg("rejected setup submission")
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	runID := uuid.NewString()
	mw.Annotate(r.Context(), "setup_id", runID)
	runLogger := logger.With().
		Str("setup_id", runID).
		Str("hostname", req.Hostname).
		Bool("vhost", req.Vhost).
		Logger()

	// A client that disconnects mid-run must not leave a half-applied host.
	ctx := runLogger.WithContext(context.WithoutCancel(r.Context()))

	report := s.run(ctx, req)
	outcome := report.Outcome()
	setupRuns.WithLabelValues(outcome).Inc()
	mw.Annotate(r.Context(), "setup_outcome", outcome)

	if outcome != OutcomeOK {
		runLogger.Error().Str("outcome", outcome).Msg("setup failed")
		response.WriteStatus(w, http.StatusInternalServerError, outcome, report.Steps)
		return
	}

	runLogger.Info().Int("keys", len(req.Keys)).Msg("setup complete")
	response.WriteStatus(w, http.StatusOK, outcome, nil)

	s.startSelfDestruct()
}

// run applies the submission in order: VHOST, HOSTNAME, admin keys, then
// debconf answers. Sentinel failures abort the run. Key and debconf failures
// are recorded and the run continues.
func (s *Server) run(ctx context.Context, req *request.Setup) *Report {
	logger := zerolog.Ctx(ctx)
	report := &Report{}

	if err := s.deps.Sentinels.SetVhost(req.Vhost, req.Hostname); err != nil {
		logger.Error().Err(err).Msg("write VHOST")
		report.fail(StepVhost, "", err)
		return report
	}
	report.ok(StepVhost, "")

	if prev, err := s.deps.Sentinels.Hostname(); err != nil {
		logger.Debug().Err(err).Msg("read previous HOSTNAME")
	} else if prev != "" && prev != req.Hostname {
		logger.Info().Str("previous_hostname", prev).Msg("replacing hostname")
	}

	if err := s.deps.Sentinels.WriteHostname(req.Hostname); err != nil {
		logger.Error().Err(err).Msg("write HOSTNAME")
		report.fail(StepHostname, "", err)
		return report
	}
	report.ok(StepHostname, "")

	s.addKeys(ctx, report, req.AdminKeys())

	applied, err := s.deps.Preseeder.Apply(ctx, Selections(req.Hostname, req.Vhost))
	switch {
	case err != nil:
		logger.Warn().Err(err).Msg("debconf selections not applied")
		report.warn(StepDebconf, err)
	case applied:
		report.ok(StepDebconf, "")
	default:
		report.skip(StepDebconf, "")
	}

	return report
}

func (s *Server) addKeys(ctx context.Context, report *Report, keys []request.AdminKey) {
	logger := zerolog.Ctx(ctx)

	ids, err := s.deps.Identities.Assign(ctx, len(keys))
	if err != nil {
		logger.Error().Err(err).Msg("list identities")
		report.fail(StepIdentities, "", err)
		for _, k := range keys {
			report.skip(StepACLAdd, k.Fingerprint)
		}
		return
	}
	report.ok(StepIdentities, "")

	for i, k := range keys {
		id := ids[i]
		if err := s.deps.Identities.Add(ctx, id, k.Line); err != nil {
			logger.Error().Err(err).Str("identity", id.String()).Str("fingerprint", k.Fingerprint).Msg("add admin key")
			report.fail(StepACLAdd, id.String(), err)
			continue
		}
		logger.Info().Str("identity", id.String()).Str("fingerprint", k.Fingerprint).Msg("admin key added")
		report.ok(StepACLAdd, id.String())
	}
}

// Selections returns the dokku package answers for a submission.
func Selections(hostname string, vhost bool) []debconf.Selection {
	return []debconf.Selection{
		debconf.Bool("skip_key_file", true),
		debconf.Bool("vhost_enable", vhost),
		debconf.Bool("web_config", false),
		debconf.String("hostname", hostname),
	}
}
