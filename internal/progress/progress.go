// Package progress displays the progress of long-running control-plane
// operations and handles operator cancellation.
package progress

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"vmplex/internal/controlplane"
	vmerrors "vmplex/internal/errors"
)

// DefaultInterval is the polling interval used when none is configured.
const DefaultInterval = time.Second

// Poller waits for progress handles while drawing a progress bar
type Poller struct {
	interval time.Duration
	writer   io.Writer
	enabled  bool
}

// NewPoller creates a poller. When enabled is false no bar is drawn but
// cancellation messages are still written.
func NewPoller(interval time.Duration, writer io.Writer, enabled bool) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		interval: interval,
		writer:   writer,
		enabled:  enabled,
	}
}

// Interval returns the polling interval
func (p *Poller) Interval() time.Duration {
	return p.interval
}

func (p *Poller) newBar(description string) *progressbar.ProgressBar {
	w := p.writer
	if !p.enabled {
		w = io.Discard
	}
	return progressbar.NewOptions(100,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
	)
}

// Wait polls prog until it completes. When ctx is canceled first the
// operation is canceled if it allows it, and the interruption is returned.
// A non-zero result code is returned as an execution error.
func (p *Poller) Wait(ctx context.Context, prog controlplane.Progress, description string) error {
	bar := p.newBar(description)

	for !prog.Completed() {
		if ctx.Err() != nil {
			bar.Clear()
			return p.cancel(ctx, prog)
		}
		_ = bar.Set(prog.Percent())
		if err := prog.WaitForCompletion(p.interval); err != nil {
			bar.Clear()
			return vmerrors.NewExecutionError("failed waiting for operation", err)
		}
	}

	if code := prog.ResultCode(); code != 0 {
		bar.Clear()
		msg := prog.ErrorText()
		if msg == "" {
			msg = fmt.Sprintf("result code %d", code)
		}
		return vmerrors.NewExecutionError("Error while performing command: "+msg, nil)
	}

	_ = bar.Set(100)
	_ = bar.Finish()
	return nil
}

func (p *Poller) cancel(ctx context.Context, prog controlplane.Progress) error {
	if prog.Cancelable() {
		fmt.Fprintln(p.writer, "Canceling...")
		if err := prog.Cancel(); err != nil {
			return vmerrors.NewExecutionError("cancel failed", err)
		}
	} else {
		fmt.Fprintln(p.writer, "Cannot cancel current task")
	}
	return vmerrors.NewExecutionError("operation interrupted", ctx.Err())
}
