// Package report records the per-target outcomes of a group fan-out or a
// batch run.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-multierror"

	vmerrors "vmplex/internal/errors"
)

// Outcome is the result of one target
type Outcome int

const (
	Succeeded Outcome = iota
	Failed
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "ok"
	case Failed:
		return "failed"
	default:
		return "skipped"
	}
}

// Entry is the outcome of a command on one target. Batch entries leave
// Host and Machine empty.
type Entry struct {
	Command string
	Host    string
	Machine string
	Outcome Outcome
	Err     error
}

// Target names the entry for messages.
func (e Entry) Target() string {
	switch {
	case e.Machine != "":
		return e.Host + "/" + e.Machine
	case e.Host != "":
		return e.Host
	default:
		return e.Command
	}
}

// Report accumulates entries in the order they were recorded
type Report struct {
	Name      string
	StartTime time.Time
	entries   []Entry
	errs      *multierror.Error
	collector *vmerrors.ErrorCollector
}

// New creates an empty report
func New(name string) *Report {
	return &Report{
		Name:      name,
		StartTime: time.Now(),
		collector: vmerrors.NewErrorCollector(),
	}
}

// Succeed records a successful target
func (r *Report) Succeed(command, host, machine string) {
	r.entries = append(r.entries, Entry{Command: command, Host: host, Machine: machine, Outcome: Succeeded})
}

// Fail records a failed target
func (r *Report) Fail(command, host, machine string, err error) {
	e := Entry{Command: command, Host: host, Machine: machine, Outcome: Failed, Err: err}
	r.entries = append(r.entries, e)
	r.errs = multierror.Append(r.errs, fmt.Errorf("%s: %w", e.Target(), err))
	r.collector.Add(err)
}

// Skip records a target that was not attempted
func (r *Report) Skip(command, host, machine string, reason error) {
	r.entries = append(r.entries, Entry{Command: command, Host: host, Machine: machine, Outcome: Skipped, Err: reason})
}

// Entries returns a copy of the recorded entries
func (r *Report) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Report) count(o Outcome) int {
	n := 0
	for _, e := range r.entries {
		if e.Outcome == o {
			n++
		}
	}
	return n
}

func (r *Report) Total() int     { return len(r.entries) }
func (r *Report) Succeeded() int { return r.count(Succeeded) }
func (r *Report) Failed() int    { return r.count(Failed) }
func (r *Report) Skipped() int   { return r.count(Skipped) }

// Err returns the failures aggregated into one error, or nil.
func (r *Report) Err() error {
	return r.errs.ErrorOrNil()
}

// Errors returns the failures grouped by error type.
func (r *Report) Errors() *vmerrors.ErrorCollector {
	return r.collector
}

// Duration returns the time since the report was created
func (r *Report) Duration() time.Duration {
	return time.Since(r.StartTime)
}

// Summary returns a one line description of the outcome
func (r *Report) Summary() string {
	s := fmt.Sprintf("%s: %d ok, %d failed, %d skipped", r.Name, r.Succeeded(), r.Failed(), r.Skipped())
	if r.collector.HasErrors() {
		s += " (" + r.collector.Summary() + ")"
	}
	return s
}

// WriteSummary writes the summary followed by one line per failure
func (r *Report) WriteSummary(w io.Writer) {
	fmt.Fprintln(w, r.Summary())
	for _, e := range r.entries {
		if e.Outcome == Failed {
			fmt.Fprintf(w, "   %s: %v\n", e.Target(), e.Err)
		}
	}
}
