package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"

	vmerrors "vmplex/internal/errors"
)

type ErrorsTestSuite struct {
	suite.Suite
}

func TestErrorsTestSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}

func (s *ErrorsTestSuite) TestClassifiedErrorMessage() {
	tests := []struct {
		description string
		err         *vmerrors.ClassifiedError
		expected    string
	}{
		{"message only", vmerrors.NewInvalidArgumentError("bad input", nil), "bad input"},
		{"message and cause", vmerrors.NewExecutionError("failed to start", stderrors.New("locked")), "failed to start: locked"},
		{"cause only", &vmerrors.ClassifiedError{Type: vmerrors.UnknownErrorType, Original: stderrors.New("boom")}, "boom"},
		{"empty", &vmerrors.ClassifiedError{}, "unknown error"},
		{"parse error with line", vmerrors.NewConfigParseError(3, "missing host name", nil), "line 3: missing host name"},
		{"parse error without line", vmerrors.NewConfigParseError(0, "could not open file", nil), "could not open file"},
	}

	for _, test := range tests {
		s.Equal(test.expected, test.err.Error(), test.description)
	}
}

func (s *ErrorsTestSuite) TestSentinels() {
	wrapped := fmt.Errorf("loading: %w", vmerrors.NewConfigParseError(2, "bad line", nil))
	s.True(stderrors.Is(wrapped, vmerrors.ErrConfigParse))
	s.False(stderrors.Is(wrapped, vmerrors.ErrExecution))

	s.True(stderrors.Is(vmerrors.NewNotConnectedError("no host"), vmerrors.ErrNotConnected))
	s.True(stderrors.Is(vmerrors.NewUnknownCommandError("frob"), vmerrors.ErrUnknownCommand))
	s.True(stderrors.Is(vmerrors.NewGroupFanoutError("1 failed", nil), vmerrors.ErrGroupFanout))
}

func (s *ErrorsTestSuite) TestUnwrap() {
	cause := stderrors.New("root cause")
	err := vmerrors.NewConnectionError("connect", cause)
	s.True(stderrors.Is(err, cause))
	s.Equal(cause, stderrors.Unwrap(err))
}

func (s *ErrorsTestSuite) TestTypeOf() {
	tests := []struct {
		description string
		err         error
		expected    vmerrors.ErrorType
	}{
		{"nil", nil, vmerrors.UnknownErrorType},
		{"classified", vmerrors.NewNotConnectedError("x"), vmerrors.NotConnectedErrorType},
		{"wrapped classified", fmt.Errorf("ctx: %w", vmerrors.NewExecutionError("x", nil)), vmerrors.ExecutionErrorType},
		{"connection keyword", stderrors.New("dial tcp: connection refused"), vmerrors.ConnectionErrorType},
		{"argument keyword", stderrors.New("Invalid value"), vmerrors.InvalidArgumentErrorType},
		{"shlex quoting", stderrors.New("EOF found when expecting closing quote"), vmerrors.InvalidArgumentErrorType},
		{"unrelated", stderrors.New("something odd"), vmerrors.UnknownErrorType},
	}

	for _, test := range tests {
		s.Equal(test.expected, vmerrors.TypeOf(test.err), test.description)
	}
}

func (s *ErrorsTestSuite) TestErrorTypeString() {
	s.Equal("invalid_argument", vmerrors.InvalidArgumentErrorType.String())
	s.Equal("group_fanout", vmerrors.GroupFanoutErrorType.String())
	s.Equal("unknown", vmerrors.ErrorType(99).String())
}

func (s *ErrorsTestSuite) TestErrorCollector() {
	ec := vmerrors.NewErrorCollector()
	s.False(ec.HasErrors())
	s.Equal("no errors", ec.Summary())

	ec.Add(nil)
	ec.Add(vmerrors.NewExecutionError("a", nil))
	ec.Add(vmerrors.NewExecutionError("b", nil))
	ec.Add(stderrors.New("connection reset by peer"))

	s.True(ec.HasErrors())
	s.Equal(3, ec.Count())
	s.Equal(2, ec.CountByType(vmerrors.ExecutionErrorType))
	s.Len(ec.GetErrorsByType(vmerrors.ConnectionErrorType), 1)
	s.Equal("total: 3 errors (1 connection, 2 execution)", ec.Summary())
}
