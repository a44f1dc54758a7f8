package controlplane

import "time"

// finished is a Progress for an operation that has already completed.
type finished struct {
	code int
	text string
}

// Finished returns a completed Progress with the given result.
func Finished(resultCode int, errorText string) Progress {
	return &finished{code: resultCode, text: errorText}
}

func (f *finished) Percent() int                          { return 100 }
func (f *finished) Completed() bool                       { return true }
func (f *finished) WaitForCompletion(time.Duration) error { return nil }
func (f *finished) ResultCode() int                       { return f.code }
func (f *finished) ErrorText() string                     { return f.text }
func (f *finished) Cancelable() bool                      { return false }
func (f *finished) Cancel() error                         { return nil }
