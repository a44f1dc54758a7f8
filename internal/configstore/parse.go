// Package configstore loads and saves the host and group topology as a
// line-oriented text file:
//
//	host name=<displayname> [address=<hostname>] port=<port> [user=<user>] [password=<password>]
//	machine host=<hostname> name=<machine> [group=<group>] [user=<user>] [password=<password>]
//
// Blank lines and lines starting with # are ignored. Fields are split the
// way a POSIX shell splits words, so a value holding spaces is quoted.
package configstore

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/google/shlex"

	vmerrors "vmplex/internal/errors"
)

// Record kinds
const (
	KindHost    = "host"
	KindMachine = "machine"
)

// Recognized parameter keys
const (
	KeyHost     = "host"
	KeyName     = "name"
	KeyGroup    = "group"
	KeyUser     = "user"
	KeyPort     = "port"
	KeyPassword = "password"
	KeyAddress  = "address"
)

var knownKeys = map[string]bool{
	KeyHost:     true,
	KeyName:     true,
	KeyGroup:    true,
	KeyUser:     true,
	KeyPort:     true,
	KeyPassword: true,
	KeyAddress:  true,
}

// Record is one host or machine line
type Record struct {
	Kind   string
	Line   int
	Params map[string]string
}

// Get returns a parameter value, empty when absent
func (r Record) Get(key string) string {
	return r.Params[key]
}

// Has reports whether a parameter is present
func (r Record) Has(key string) bool {
	_, ok := r.Params[key]
	return ok
}

// Warning is a non-fatal problem found while loading
type Warning struct {
	Line    int
	Message string
}

func (w Warning) String() string {
	if w.Line > 0 {
		return fmt.Sprintf("%s (line %d)", w.Message, w.Line)
	}
	return w.Message
}

// ParseLine parses one non-comment line. Duplicate and unknown keys produce
// warnings; the first occurrence of a key wins.
func ParseLine(lineNum int, line string) (Record, []Warning, error) {
	fields, err := shlex.Split(line)
	if err != nil {
		return Record{}, nil, vmerrors.NewConfigParseError(lineNum, "unbalanced quotes", err)
	}
	if len(fields) == 0 {
		return Record{}, nil, vmerrors.NewConfigParseError(lineNum, "empty line", nil)
	}

	kind := fields[0]
	if kind != KindHost && kind != KindMachine {
		return Record{}, nil, vmerrors.NewConfigParseError(lineNum,
			"line must start with keyword 'host' or 'machine'", nil)
	}

	rec := Record{Kind: kind, Line: lineNum, Params: make(map[string]string)}
	var warnings []Warning

	for _, field := range fields[1:] {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return Record{}, nil, vmerrors.NewConfigParseError(lineNum,
				fmt.Sprintf("parameter '%s' is not key=value", field), nil)
		}
		if !knownKeys[key] {
			warnings = append(warnings, Warning{Line: lineNum, Message: fmt.Sprintf("Undefined parameter '%s'", key)})
			continue
		}
		if _, dup := rec.Params[key]; dup {
			warnings = append(warnings, Warning{Line: lineNum, Message: fmt.Sprintf("Parameter '%s' already set, ignoring this one", key)})
			continue
		}
		rec.Params[key] = value
	}

	return rec, warnings, nil
}

// Parse reads every record from r. Parsing stops at the first fatal line.
func Parse(r io.Reader) ([]Record, []Warning, error) {
	var (
		records  []Record
		warnings []Warning
	)

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rec, w, err := ParseLine(lineNum, line)
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, w...)
		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, nil, vmerrors.NewConfigParseError(lineNum+1, "error reading configuration", err)
	}

	return records, warnings, nil
}
