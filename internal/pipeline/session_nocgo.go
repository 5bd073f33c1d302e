//go:build !cgo

package pipeline

import "context"

// Session is a stub when cgo is disabled: every Run fails with
// ErrCGORequired.
type Session struct {
	launch   string
	requires []string
}

// NewSession creates a stub session.
func NewSession(launch string, requires ...string) *Session {
	return &Session{launch: launch, requires: requires}
}

// Launch returns the pipeline description.
func (s *Session) Launch() string {
	return s.launch
}

// Check returns ErrCGORequired.
func (s *Session) Check() error {
	return ErrCGORequired
}

// Run returns ErrCGORequired.
func (s *Session) Run(ctx context.Context, h Handler) error {
	return ErrCGORequired
}

// CheckElements returns ErrCGORequired.
func CheckElements(factories ...string) error {
	return ErrCGORequired
}
