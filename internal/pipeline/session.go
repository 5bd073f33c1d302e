//go:build cgo

package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// Session runs a launch string with an appsink named SinkName.
type Session struct {
	launch   string
	requires []string
}

// NewSession creates a session for the launch string. requires lists
// element factories that must be installed; they are checked before
// the launch string is parsed so a missing camera plugin is reported by
// name instead of as a parse error.
func NewSession(launch string, requires ...string) *Session {
	return &Session{launch: launch, requires: requires}
}

// Launch returns the pipeline description.
func (s *Session) Launch() string {
	return s.launch
}

// Check verifies that the required element factories are installed.
func (s *Session) Check() error {
	return CheckElements(s.requires...)
}

// Run builds the pipeline, sets it to PLAYING and monitors the bus until
// ctx is cancelled, EOS or an error message. The pipeline is always set
// to NULL before Run returns, so no callback runs after that.
func (s *Session) Run(ctx context.Context, h Handler) error {
	// Initialize GStreamer (safe to call multiple times)
	gst.Init(nil)

	if err := CheckElements(s.requires...); err != nil {
		return err
	}

	p, err := gst.NewPipelineFromString(s.launch)
	if err != nil {
		return fmt.Errorf("%w: failed to parse pipeline: %v", ErrLaunch, err)
	}
	defer func() {
		if err := p.SetState(gst.StateNull); err != nil {
			slog.Error("pipeline: failed to set pipeline to NULL", "error", err)
		}
	}()

	elem, err := p.GetElementByName(SinkName)
	if err != nil || elem == nil {
		return fmt.Errorf("%w: appsink %q not found in pipeline", ErrLaunch, SinkName)
	}
	sink := app.SinkFromElement(elem)
	if sink == nil {
		return fmt.Errorf("%w: element %q is not an appsink", ErrLaunch, SinkName)
	}

	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return OnNewSample(sink, h)
		},
	})

	if err := p.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("%w: failed to start pipeline: %v", ErrLaunch, err)
	}

	slog.Info("pipeline: started", "launch", s.launch)

	return MonitorPipelineBus(ctx, p, h)
}

// CheckElements verifies that every element factory is installed.
func CheckElements(factories ...string) error {
	gst.Init(nil)

	for _, name := range factories {
		elem, err := gst.NewElement(name)
		if err != nil {
			return fmt.Errorf("%w: element %q not available: %v", ErrLaunch, name, err)
		}
		elem.SetState(gst.StateNull)
	}
	return nil
}
