// Package batch runs command files through the dispatcher.
package batch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	vmerrors "vmplex/internal/errors"
	"vmplex/internal/logging"
	"vmplex/internal/report"
)

// DefaultLogFile is the batch log used when none is configured.
const DefaultLogFile = "vmplex_batch.log"

// Executor runs one command line. A non-zero status asks to stop.
type Executor interface {
	Dispatch(ctx context.Context, line string, unattended bool) (int, error)
}

// Options configures a Runner
type Options struct {
	LogPath    string
	MaxSizeMB  int
	MaxBackups int
	Output     io.Writer
	Logger     *logging.Logger

	// OnError is told about every failed command, after it was logged.
	OnError func(command string, err error)

	// Interrupts derives the context of a single command, typically one
	// canceled by an operator interrupt. Nil runs commands on the batch
	// context.
	Interrupts func(context.Context) (context.Context, context.CancelFunc)
}

// Runner executes batch files
type Runner struct {
	exec Executor
	opts Options
}

// NewRunner creates a runner dispatching through exec
func NewRunner(exec Executor, opts Options) *Runner {
	if opts.LogPath == "" {
		opts.LogPath = DefaultLogFile
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 3
	}
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	return &Runner{exec: exec, opts: opts}
}

// Result is the outcome of one batch file
type Result struct {
	RunID   string
	Report  *report.Report
	Stopped bool // a command returned a non-zero status
}

// Run executes every command of file. Blank lines and lines starting with
// # are skipped, and a line may hold several commands separated by ';'.
// Failing or interrupted commands are written to the batch log and the
// batch continues. The batch stops early on a non-zero status or when ctx
// is done.
func (r *Runner) Run(ctx context.Context, file string, unattended bool) (*Result, error) {
	res := &Result{
		RunID:  uuid.New().String(),
		Report: report.New("batch " + file),
	}

	sink := &lumberjack.Logger{
		Filename:   r.opts.LogPath,
		MaxSize:    r.opts.MaxSizeMB,
		MaxBackups: r.opts.MaxBackups,
		LocalTime:  true,
	}
	blog := slog.New(slog.NewTextHandler(sink, nil)).With("run_id", res.RunID)
	defer func() {
		blog.Info(fmt.Sprintf("Batch %s finished", file))
		sink.Close()
		r.opts.Logger.LogBatchFinish(file, res.RunID, res.Report.Succeeded(), res.Report.Failed(), res.Report.Duration())
		fmt.Fprintln(r.opts.Output, "Finishing batch")
	}()

	r.opts.Logger.LogBatchStart(file, res.RunID)
	blog.Info(fmt.Sprintf("Batch %s started", file))

	f, err := os.Open(file)
	if err != nil {
		err = vmerrors.NewExecutionError("Could not open batch file", err)
		blog.Error(err.Error(), "file", file)
		return res, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		for _, command := range strings.Split(line, ";") {
			command = strings.TrimSpace(command)
			if command == "" {
				continue
			}
			if ctx.Err() != nil {
				blog.Warn(fmt.Sprintf("INTERRUPT: batch canceled before '%s' command", command))
				return res, nil
			}

			status, err := r.dispatch(ctx, command, unattended)
			switch {
			case err != nil && errors.Is(err, context.Canceled):
				blog.Warn(fmt.Sprintf("INTERRUPT: Interrupted batch file while executing '%s' command", command))
				res.Report.Skip(command, "", "", err)
			case err != nil:
				blog.Error(fmt.Sprintf("ERROR: Error while executing '%s' command. Details: %v", command, err))
				res.Report.Fail(command, "", "", err)
				if r.opts.OnError != nil {
					r.opts.OnError(command, err)
				}
			default:
				res.Report.Succeed(command, "", "")
			}

			if status != 0 {
				res.Stopped = true
				return res, nil
			}
		}
	}

	if err := scanner.Err(); err != nil {
		err = vmerrors.NewExecutionError("error reading batch file", err)
		blog.Error(err.Error(), "file", file)
		return res, err
	}
	return res, nil
}

func (r *Runner) dispatch(ctx context.Context, command string, unattended bool) (int, error) {
	if r.opts.Interrupts == nil {
		return r.exec.Dispatch(ctx, command, unattended)
	}
	cctx, stop := r.opts.Interrupts(ctx)
	defer stop()
	return r.exec.Dispatch(cctx, command, unattended)
}

