package vboxmanage

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

// streamProgress tracks a running VBoxManage process. It is the writer for
// the process output and picks up the "0%...10%...20%" markers VBoxManage
// prints for long operations.
type streamProgress struct {
	mu       sync.Mutex
	percent  int
	digits   []byte
	output   bytes.Buffer
	proc     Process
	done     chan struct{}
	code     int
	errText  string
	canceled bool
}

// startProgress launches args on runner and returns a handle that completes
// when the process exits.
func startProgress(ctx context.Context, runner Runner, args ...string) (*streamProgress, error) {
	p := &streamProgress{done: make(chan struct{})}
	proc, err := runner.Start(ctx, p, args...)
	if err != nil {
		return nil, err
	}
	p.proc = proc

	go func() {
		err := proc.Wait()
		p.finish(err)
		close(p.done)
	}()

	return p, nil
}

// Write implements io.Writer.
func (p *streamProgress) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.output.Write(b)
	for _, c := range b {
		switch {
		case c >= '0' && c <= '9':
			if len(p.digits) < 3 {
				p.digits = append(p.digits, c)
			}
		case c == '%':
			if n, err := strconv.Atoi(string(p.digits)); err == nil && n <= 100 && n > p.percent {
				p.percent = n
			}
			p.digits = p.digits[:0]
		default:
			p.digits = p.digits[:0]
		}
	}
	return len(b), nil
}

func (p *streamProgress) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err == nil {
		p.code = 0
		p.percent = 100
		return
	}

	var exitErr *ExitError
	switch {
	case p.canceled:
		p.code = 1
		p.errText = "operation canceled"
	case errors.As(err, &exitErr):
		p.code = exitErr.Code
		p.errText = errorText(p.output.String())
	default:
		p.code = 1
		p.errText = err.Error()
	}
	if p.errText == "" {
		p.errText = err.Error()
	}
}

func (p *streamProgress) Percent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.percent
}

func (p *streamProgress) Completed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *streamProgress) WaitForCompletion(timeout time.Duration) error {
	if timeout < 0 {
		<-p.done
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-timer.C:
	}
	return nil
}

func (p *streamProgress) ResultCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code
}

func (p *streamProgress) ErrorText() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errText
}

func (p *streamProgress) Cancelable() bool {
	return true
}

func (p *streamProgress) Cancel() error {
	if p.Completed() {
		return nil
	}
	p.mu.Lock()
	p.canceled = true
	p.mu.Unlock()
	return p.proc.Kill()
}
