// Package commandtest provides a recording command.Runner for tests.
package commandtest

import (
	"context"
	"io"
	"strings"
	"sync"
)

// Call is one recorded invocation.
type Call struct {
	Name  string
	Args  []string
	Stdin string
}

// Line renders the call as "name arg1 arg2".
func (c Call) Line() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Response is what a stubbed command returns.
type Response struct {
	Stdout string
	Err    error
}

// Recorder records every Run call and answers from Stubs, keyed by the
// command line prefix ("dokku ssh-keys:list", "systemctl", ...). The longest
// matching prefix wins. Unmatched commands succeed with empty output.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	Stubs map[string]Response

	// OnRun, when set, is called after recording and may compute the response
	// dynamically. It takes precedence over Stubs.
	OnRun func(call Call) (Response, bool)
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{Stubs: make(map[string]Response)}
}

// Stub registers a response for commands whose line starts with prefix.
func (r *Recorder) Stub(prefix string, resp Response) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Stubs[prefix] = resp
	return r
}

func (r *Recorder) Run(_ context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	call := Call{Name: name, Args: append([]string(nil), args...)}
	if stdin != nil {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, err
		}
		call.Stdin = string(data)
	}

	r.mu.Lock()
	r.calls = append(r.calls, call)
	onRun := r.OnRun
	r.mu.Unlock()

	if onRun != nil {
		if resp, ok := onRun(call); ok {
			return []byte(resp.Stdout), resp.Err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	line := call.Line()
	best := -1
	var resp Response
	for prefix, stub := range r.Stubs {
		if strings.HasPrefix(line, prefix) && len(prefix) > best {
			best = len(prefix)
			resp = stub
		}
	}
	return []byte(resp.Stdout), resp.Err
}

// Calls returns a copy of all recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallsTo returns the recorded calls whose line starts with prefix.
func (r *Recorder) CallsTo(prefix string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if strings.HasPrefix(c.Line(), prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Lines returns every recorded call rendered with Call.Line.
func (r *Recorder) Lines() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Line()
	}
	return out
}
