// Package prompt reads operator input from a terminal.
package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

type result struct {
	line string
	err  error
}

type request struct {
	secret bool
	reply  chan result
}

// Terminal reads lines from an input stream. Reads happen on a single
// background goroutine so a prompt can be abandoned when its context is
// canceled; a line typed after that is handed to the next prompt.
//
// Terminal is not safe for concurrent use.
type Terminal struct {
	reader  *bufio.Reader
	out     io.Writer
	fd      int
	isTTY   bool
	reqs    chan request
	pending chan result
}

// NewTerminal reads from in, hiding secret input when in is a terminal.
func NewTerminal(in *os.File, out io.Writer) *Terminal {
	t := NewReader(in, out)
	t.fd = int(in.Fd())
	t.isTTY = term.IsTerminal(t.fd)
	return t
}

// NewReader reads from any stream. Secret input is echoed like any other.
func NewReader(in io.Reader, out io.Writer) *Terminal {
	if out == nil {
		out = io.Discard
	}
	return &Terminal{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Prompt writes label and returns the next line without its line ending.
// io.EOF is returned at end of input.
func (t *Terminal) Prompt(ctx context.Context, label string) (string, error) {
	fmt.Fprint(t.out, label)
	return t.read(ctx, false)
}

// PromptSecret is Prompt without echo on a terminal.
func (t *Terminal) PromptSecret(ctx context.Context, label string) (string, error) {
	fmt.Fprint(t.out, label)
	return t.read(ctx, true)
}

func (t *Terminal) read(ctx context.Context, secret bool) (string, error) {
	if t.reqs == nil {
		t.reqs = make(chan request)
		go t.loop()
	}

	reply := t.pending
	t.pending = nil
	if reply == nil {
		reply = make(chan result, 1)
		select {
		case t.reqs <- request{secret: secret, reply: reply}:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	select {
	case r := <-reply:
		return r.line, r.err
	case <-ctx.Done():
		t.pending = reply
		return "", ctx.Err()
	}
}

func (t *Terminal) loop() {
	for req := range t.reqs {
		req.reply <- t.readOne(req.secret)
	}
}

func (t *Terminal) readOne(secret bool) result {
	if secret && t.isTTY {
		b, err := term.ReadPassword(t.fd)
		fmt.Fprintln(t.out)
		return result{line: string(b), err: err}
	}

	line, err := t.reader.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	return result{line: strings.TrimRight(line, "\r\n"), err: err}
}

// IsAbort reports whether answer asks to abandon an interactive dialog.
func IsAbort(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "cancel", "quit", "exit", "abort":
		return true
	}
	return false
}
