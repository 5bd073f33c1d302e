//go:build cgo

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
)

// busPollInterval bounds how long a cancelled context goes unnoticed.
const busPollInterval = 50 * time.Millisecond

// MonitorPipelineBus monitors the GStreamer pipeline bus for messages
//
// This function:
//  1. Polls pipeline bus for messages (EOS, Error, Warning, QoS, StateChanged)
//  2. Classifies errors for telemetry
//  3. Forwards every relevant message to the handler as an Event
//
// Returns a *BusError if the pipeline posts an error.
// Returns nil on EOS or if context is cancelled (graceful shutdown).
func MonitorPipelineBus(ctx context.Context, pipeline *gst.Pipeline, h Handler) error {
	if pipeline == nil {
		return fmt.Errorf("pipeline not initialized")
	}

	bus := pipeline.GetPipelineBus()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("pipeline: context cancelled, stopping bus monitor")
			return nil

		default:
			// Poll for messages with short timeout for responsive shutdown
			msg := bus.TimedPop(busPollInterval)
			if msg == nil {
				continue
			}

			switch msg.Type() {
			case gst.MessageEOS:
				slog.Info("pipeline: end of stream received")
				h.OnEvent(Event{Kind: EventEOS, At: time.Now()})
				return nil

			case gst.MessageError:
				gerr := msg.ParseError()
				busErr := &BusError{
					Message:  gerr.Error(),
					Debug:    gerr.DebugString(),
					Category: ClassifyError(gerr.Error(), gerr.DebugString()),
				}

				slog.Error("pipeline: error on bus",
					"error", busErr.Message,
					"debug", busErr.Debug,
					"category", busErr.Category.String(),
					"source", msg.Source(),
				)
				h.OnEvent(Event{
					Kind:     EventError,
					At:       time.Now(),
					Message:  busErr.Message,
					Debug:    busErr.Debug,
					Category: busErr.Category,
					Source:   msg.Source(),
				})
				return busErr

			case gst.MessageWarning:
				gerr := msg.ParseWarning()
				slog.Warn("pipeline: warning on bus",
					"warning", gerr.Error(),
					"debug", gerr.DebugString(),
					"source", msg.Source(),
				)
				h.OnEvent(Event{
					Kind:     EventWarning,
					At:       time.Now(),
					Message:  gerr.Error(),
					Debug:    gerr.DebugString(),
					Category: ClassifyError(gerr.Error(), gerr.DebugString()),
					Source:   msg.Source(),
				})

			case gst.MessageQoS:
				processed, dropped := parseQoSStats(msg)
				slog.Debug("pipeline: qos message",
					"source", msg.Source(),
					"processed", processed,
					"dropped", dropped,
				)
				h.OnEvent(Event{
					Kind:      EventQoS,
					At:        time.Now(),
					Source:    msg.Source(),
					Processed: processed,
					Dropped:   dropped,
				})

			case gst.MessageStateChanged:
				if msg.Source() == pipeline.GetName() {
					from, to := msg.ParseStateChanged()
					slog.Debug("pipeline: state changed",
						"from", from,
						"to", to,
					)
					h.OnEvent(Event{
						Kind: EventStateChanged,
						At:   time.Now(),
						From: stateName(from),
						To:   stateName(to),
					})
				}
			}
		}
	}
}

func stateName(s gst.State) string {
	switch s {
	case gst.StateVoidPending:
		return "void-pending"
	case gst.StateNull:
		return "null"
	case gst.StateReady:
		return "ready"
	case gst.StatePaused:
		return "paused"
	case gst.StatePlaying:
		return "playing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
