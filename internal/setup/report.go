package setup

// Step names reported in failure responses.
const (
	StepVhost      = "vhost"
	StepHostname   = "hostname"
	StepIdentities = "list_identities"
	StepACLAdd     = "acl_add"
	StepDebconf    = "debconf"
)

// Outcomes of a setup run.
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	OutcomeError   = "error"
)

type StepStatus string

const (
	StatusOK      StepStatus = "ok"
	StatusFailed  StepStatus = "failed"
	StatusSkipped StepStatus = "skipped"
)

// StepResult is the result of one side effect of a run.
type StepResult struct {
	Step   string     `json:"step"`
	Target string     `json:"target,omitempty"`
	Status StepStatus `json:"status"`
	Error  string     `json:"error,omitempty"`

	required bool
}

// Report collects step results in execution order.
type Report struct {
	Steps []StepResult
}

func (r *Report) ok(step, target string) {
	r.Steps = append(r.Steps, StepResult{Step: step, Target: target, Status: StatusOK})
}

func (r *Report) skip(step, target string) {
	r.Steps = append(r.Steps, StepResult{Step: step, Target: target, Status: StatusSkipped})
}

func (r *Report) fail(step, target string, err error) {
	r.Steps = append(r.Steps, StepResult{Step: step, Target: target, Status: StatusFailed, Error: err.Error(), required: true})
}

// warn records a failure that does not fail the run.
func (r *Report) warn(step string, err error) {
	r.Steps = append(r.Steps, StepResult{Step: step, Status: StatusFailed, Error: err.Error()})
}

// Outcome is "ok" when no required step failed, "partial" when some step
// still took effect, and "error" otherwise.
func (r *Report) Outcome() string {
	failed, applied := false, false
	for _, s := range r.Steps {
		if s.Status == StatusFailed && s.required {
			failed = true
		}
		if s.Status == StatusOK {
			applied = true
		}
	}
	switch {
	case !failed:
		return OutcomeOK
	case applied:
		return OutcomePartial
	default:
		return OutcomeError
	}
}
