// Package output renders command results for the operator.
package output

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"vmplex/internal/controlplane"
)

// Printer writes command output, errors and tables to one writer
type Printer struct {
	writer io.Writer
	red    *color.Color
	yellow *color.Color
	title  cases.Caser
}

// NewPrinter creates a printer writing to writer, or stdout when nil
func NewPrinter(writer io.Writer) *Printer {
	if writer == nil {
		writer = os.Stdout
	}
	return &Printer{
		writer: writer,
		red:    color.New(color.FgRed),
		yellow: color.New(color.FgYellow),
		title:  cases.Title(language.English),
	}
}

// Writer returns the underlying writer
func (p *Printer) Writer() io.Writer {
	return p.writer
}

func (p *Printer) Println(a ...any) {
	fmt.Fprintln(p.writer, a...)
}

func (p *Printer) Printf(format string, a ...any) {
	fmt.Fprintf(p.writer, format, a...)
}

// Error prints err in red
func (p *Printer) Error(err error) {
	p.red.Fprintln(p.writer, err.Error())
}

// Notice prints a highlighted informational line
func (p *Printer) Notice(format string, a ...any) {
	p.yellow.Fprintln(p.writer, fmt.Sprintf(format, a...))
}

// Table renders rows under headers without borders
func (p *Printer) Table(headers []string, rows [][]string) {
	table := tablewriter.NewWriter(p.writer)
	table.SetHeader(headers)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	table.AppendBulk(rows)
	table.Render()
}

// StateLabel renders a machine state such as "poweroff" as "Poweroff"
func (p *Printer) StateLabel(state string) string {
	if state == "" {
		return "Unknown"
	}
	return p.title.String(state)
}

// GuestResult prints the output of a guest process with [machine] prefixes
// followed by its exit code
func (p *Printer) GuestResult(machine string, result *controlplane.GuestResult) error {
	prefix := fmt.Sprintf("[%s]", machine)

	for _, stream := range []string{result.Stdout, result.Stderr} {
		if stream == "" {
			continue
		}
		scanner := bufio.NewScanner(strings.NewReader(stream))
		for scanner.Scan() {
			if _, err := fmt.Fprintf(p.writer, "%s %s\n", prefix, scanner.Text()); err != nil {
				return fmt.Errorf("failed to write guest output: %w", err)
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("error reading guest output: %w", err)
		}
	}

	if _, err := fmt.Fprintf(p.writer, "%s Exit code: %d\n", prefix, result.ExitCode); err != nil {
		return fmt.Errorf("failed to write exit code: %w", err)
	}
	return nil
}
