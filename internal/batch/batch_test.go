package batch_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"vmplex/internal/batch"
	vmerrors "vmplex/internal/errors"
)

type outcome struct {
	status int
	err    error
}

type recorder struct {
	outcomes   map[string]outcome
	commands   []string
	unattended []bool
	onDispatch func(command string)
}

func (r *recorder) Dispatch(ctx context.Context, line string, unattended bool) (int, error) {
	r.commands = append(r.commands, line)
	r.unattended = append(r.unattended, unattended)
	if r.onDispatch != nil {
		r.onDispatch(line)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	o := r.outcomes[line]
	return o.status, o.err
}

type BatchTestSuite struct {
	suite.Suite
	ctx    context.Context
	dir    string
	log    string
	out    *bytes.Buffer
	exec   *recorder
	errors []string
	runner *batch.Runner
}

func TestBatchTestSuite(t *testing.T) {
	suite.Run(t, new(BatchTestSuite))
}

func (s *BatchTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.dir = s.T().TempDir()
	s.log = filepath.Join(s.dir, "batch.log")
	s.out = &bytes.Buffer{}
	s.exec = &recorder{outcomes: map[string]outcome{}}
	s.errors = nil
	s.runner = batch.NewRunner(s.exec, batch.Options{
		LogPath: s.log,
		Output:  s.out,
		OnError: func(command string, err error) { s.errors = append(s.errors, command) },
	})
}

func (s *BatchTestSuite) writeBatch(content string) string {
	path := filepath.Join(s.dir, "run.batch")
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (s *BatchTestSuite) logContent() string {
	data, err := os.ReadFile(s.log)
	s.Require().NoError(err)
	return string(data)
}

func (s *BatchTestSuite) TestRunAll() {
	file := s.writeBatch("# nightly\nstart vm1\n\nsleep 1 ; start vm2;\n")

	res, err := s.runner.Run(s.ctx, file, true)
	s.Require().NoError(err)
	s.Equal([]string{"start vm1", "sleep 1", "start vm2"}, s.exec.commands)
	s.Equal([]bool{true, true, true}, s.exec.unattended)
	s.Equal(3, res.Report.Succeeded())
	s.False(res.Stopped)
	s.NotEmpty(res.RunID)

	s.Contains(s.out.String(), "Finishing batch")
	s.Contains(s.logContent(), "run_id="+res.RunID)
	s.Contains(s.logContent(), "finished")
}

func (s *BatchTestSuite) TestErrorsAreLoggedAndSkipped() {
	s.exec.outcomes["start vm1"] = outcome{err: vmerrors.NewExecutionError("machine locked", nil)}
	file := s.writeBatch("start vm1\nstart vm2\n")

	res, err := s.runner.Run(s.ctx, file, false)
	s.Require().NoError(err)
	s.Equal([]string{"start vm1", "start vm2"}, s.exec.commands)
	s.Equal(1, res.Report.Failed())
	s.Equal(1, res.Report.Succeeded())
	s.Equal([]string{"start vm1"}, s.errors)
	s.Error(res.Report.Err())

	s.Contains(s.logContent(), "ERROR: Error while executing 'start vm1' command. Details: machine locked")
}

func (s *BatchTestSuite) TestStopOnNonZeroStatus() {
	s.exec.outcomes["exit"] = outcome{status: 1}
	file := s.writeBatch("start vm1\nexit\nstart vm2\n")

	res, err := s.runner.Run(s.ctx, file, true)
	s.Require().NoError(err)
	s.True(res.Stopped)
	s.Equal([]string{"start vm1", "exit"}, s.exec.commands)
	s.Contains(s.out.String(), "Finishing batch")
}

func (s *BatchTestSuite) TestInterruptedCommandContinues() {
	runner := batch.NewRunner(s.exec, batch.Options{
		LogPath: s.log,
		Output:  s.out,
		Interrupts: func(ctx context.Context) (context.Context, context.CancelFunc) {
			cctx, cancel := context.WithCancel(ctx)
			if len(s.exec.commands) == 0 {
				cancel()
			}
			return cctx, cancel
		},
	})
	file := s.writeBatch("export vm1 /tmp\nstart vm2\n")

	res, err := runner.Run(s.ctx, file, true)
	s.Require().NoError(err)
	s.Equal([]string{"export vm1 /tmp", "start vm2"}, s.exec.commands)
	s.Equal(1, res.Report.Skipped())
	s.Equal(1, res.Report.Succeeded())
	s.Contains(s.logContent(), "INTERRUPT: Interrupted batch file while executing 'export vm1 /tmp' command")
}

func (s *BatchTestSuite) TestCanceledBatchStops() {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	s.exec.onDispatch = func(string) { cancel() }
	file := s.writeBatch("start vm1\nstart vm2\n")

	res, err := s.runner.Run(ctx, file, true)
	s.Require().NoError(err)
	s.Equal([]string{"start vm1"}, s.exec.commands)
	s.Equal(1, res.Report.Skipped())
	s.Contains(s.logContent(), "INTERRUPT: batch canceled before 'start vm2' command")
}

func (s *BatchTestSuite) TestMissingFile() {
	res, err := s.runner.Run(s.ctx, filepath.Join(s.dir, "missing.batch"), true)
	s.Error(err)
	s.True(errors.Is(err, vmerrors.ErrExecution))
	s.NotNil(res)
	s.Contains(s.out.String(), "Finishing batch")
	s.Contains(s.logContent(), "Could not open batch file")
}
