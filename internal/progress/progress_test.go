package progress_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vmplex/internal/controlplane"
	"vmplex/internal/controlplane/fake"
	vmerrors "vmplex/internal/errors"
	"vmplex/internal/progress"
)

type PollerTestSuite struct {
	suite.Suite
	out    *bytes.Buffer
	poller *progress.Poller
}

func TestPollerTestSuite(t *testing.T) {
	suite.Run(t, new(PollerTestSuite))
}

func (s *PollerTestSuite) SetupTest() {
	s.out = &bytes.Buffer{}
	s.poller = progress.NewPoller(time.Millisecond, s.out, false)
}

func (s *PollerTestSuite) TestDefaultInterval() {
	s.Equal(progress.DefaultInterval, progress.NewPoller(0, s.out, false).Interval())
}

func (s *PollerTestSuite) TestWaitCompletes() {
	prog := &fake.Progress{Steps: []int{30, 60, 100}}
	s.NoError(s.poller.Wait(context.Background(), prog, "Starting vm1"))
	s.Equal(3, prog.Waits())
	s.Empty(s.out.String(), "a disabled bar draws nothing")
}

func (s *PollerTestSuite) TestWaitFinished() {
	s.NoError(s.poller.Wait(context.Background(), controlplane.Finished(0, ""), "Importing"))
}

func (s *PollerTestSuite) TestWaitResultCode() {
	tests := []struct {
		description string
		prog        controlplane.Progress
		expected    string
	}{
		{"error text", &fake.Progress{Steps: []int{50}, Code: 1, Text: "disk full"}, "Error while performing command: disk full"},
		{"code only", controlplane.Finished(3, ""), "Error while performing command: result code 3"},
	}

	for _, test := range tests {
		err := s.poller.Wait(context.Background(), test.prog, "Exporting")
		s.Error(err, test.description)
		s.True(errors.Is(err, vmerrors.ErrExecution), test.description)
		s.Equal(test.expected, err.Error(), test.description)
	}
}

func (s *PollerTestSuite) TestCancelable() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prog := &fake.Progress{Steps: []int{10, 20}, CanCancel: true}
	err := s.poller.Wait(ctx, prog, "Exporting")
	s.Error(err)
	s.True(errors.Is(err, context.Canceled))
	s.True(prog.Canceled())
	s.Contains(s.out.String(), "Canceling...")
}

func (s *PollerTestSuite) TestNotCancelable() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prog := &fake.Progress{Steps: []int{10, 20}}
	err := s.poller.Wait(ctx, prog, "Starting")
	s.Error(err)
	s.False(prog.Canceled())
	s.Contains(s.out.String(), "Cannot cancel current task")
}

func (s *PollerTestSuite) TestEnabledBarDraws() {
	poller := progress.NewPoller(time.Millisecond, s.out, true)
	s.NoError(poller.Wait(context.Background(), &fake.Progress{Steps: []int{50, 100}}, "Starting vm1"))
	s.Contains(s.out.String(), "Starting vm1")
}
