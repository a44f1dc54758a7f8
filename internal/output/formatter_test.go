package output_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/suite"

	"vmplex/internal/controlplane"
	"vmplex/internal/output"
)

type PrinterTestSuite struct {
	suite.Suite
	buf     *bytes.Buffer
	printer *output.Printer
}

func TestPrinterTestSuite(t *testing.T) {
	suite.Run(t, new(PrinterTestSuite))
}

func (s *PrinterTestSuite) SetupSuite() {
	color.NoColor = true
}

func (s *PrinterTestSuite) SetupTest() {
	s.buf = &bytes.Buffer{}
	s.printer = output.NewPrinter(s.buf)
}

func (s *PrinterTestSuite) TestPrint() {
	s.printer.Println("Host successfully removed")
	s.printer.Printf("Environments: %s\n", "a, b")
	s.printer.Error(errors.New("Unknown host"))
	s.printer.Notice("Unexisting host %s", "h9")

	s.Equal("Host successfully removed\nEnvironments: a, b\nUnknown host\nUnexisting host h9\n", s.buf.String())
	s.Equal(s.buf, s.printer.Writer())
}

func (s *PrinterTestSuite) TestTable() {
	s.printer.Table([]string{"NAME", "STATE"}, [][]string{
		{"vm1", "Running"},
		{"database", "Poweroff"},
	})

	lines := strings.Split(strings.TrimRight(s.buf.String(), "\n"), "\n")
	s.Require().Len(lines, 3)
	s.Contains(lines[0], "NAME")
	s.Contains(lines[1], "vm1")
	s.Contains(lines[2], "Poweroff")
}

func (s *PrinterTestSuite) TestStateLabel() {
	tests := []struct {
		description string
		state       string
		expected    string
	}{
		{"poweroff", controlplane.StatePoweredOff, "Poweroff"},
		{"running", controlplane.StateRunning, "Running"},
		{"empty", "", "Unknown"},
	}

	for _, test := range tests {
		s.Equal(test.expected, s.printer.StateLabel(test.state), test.description)
	}
}

func (s *PrinterTestSuite) TestGuestResult() {
	err := s.printer.GuestResult("vm1", &controlplane.GuestResult{
		Stdout:   "line one\nline two\n",
		Stderr:   "warning",
		ExitCode: 2,
	})
	s.NoError(err)
	s.Equal("[vm1] line one\n[vm1] line two\n[vm1] warning\n[vm1] Exit code: 2\n", s.buf.String())
}
