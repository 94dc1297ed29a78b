package gesture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/kutubofficial/WSI-detection/pkg/metrics"
	"github.com/kutubofficial/WSI-detection/pkg/types"
	"github.com/kutubofficial/WSI-detection/pkg/viewport"
)

// Kind names a gesture channel.
type Kind string

const (
	KindDrag  Kind = "drag"
	KindWheel Kind = "wheel"
	KindPinch Kind = "pinch"
)

// ErrUnknownGesture is returned by Handle for events of an unrecognised kind.
var ErrUnknownGesture = errors.New("unknown gesture kind")

// Event is one normalized gesture as emitted by the input source.
//
//	drag:  X, Y are the absolute offset from the gesture origin
//	wheel: DeltaY is the signed vertical scroll delta
//	pinch: Distance is the normalized pinch offset distance
type Event struct {
	Kind     Kind    `json:"kind"`
	X        float64 `json:"x,omitempty"`
	Y        float64 `json:"y,omitempty"`
	DeltaY   float64 `json:"delta_y,omitempty"`
	Distance float64 `json:"distance,omitempty"`
}

// Adapter routes drag, wheel and pinch gestures to viewport mutations.
// Every event is applied immediately; there is no debouncing.
type Adapter struct {
	state   *viewport.State
	logger  *slog.Logger
	metrics *metrics.Metrics

	// OnChange, when set, is called after every applied gesture.
	OnChange func(viewport.Viewport)
}

// NewAdapter creates an adapter bound to state. logger and m may be nil.
func NewAdapter(state *viewport.State, logger *slog.Logger, m *metrics.Metrics) *Adapter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Adapter{state: state, logger: logger, metrics: m}
}

// OnDrag replaces the pan offset.
func (a *Adapter) OnDrag(offset types.Point) viewport.Viewport {
	vp := a.state.ApplyPan(offset)
	a.applied(KindDrag, vp, false)
	return vp
}

// OnWheel steps the zoom.
func (a *Adapter) OnWheel(deltaY float64) viewport.Viewport {
	vp, clamped := a.state.ApplyWheelZoom(deltaY)
	a.applied(KindWheel, vp, clamped)
	return vp
}

// OnPinch sets the zoom from a pinch distance.
func (a *Adapter) OnPinch(distance float64) viewport.Viewport {
	vp, clamped := a.state.ApplyPinchZoom(distance)
	a.applied(KindPinch, vp, clamped)
	return vp
}

// Handle dispatches a single event to its channel handler.
func (a *Adapter) Handle(ev Event) (viewport.Viewport, error) {
	switch ev.Kind {
	case KindDrag:
		return a.OnDrag(types.Point{X: ev.X, Y: ev.Y}), nil
	case KindWheel:
		return a.OnWheel(ev.DeltaY), nil
	case KindPinch:
		return a.OnPinch(ev.Distance), nil
	default:
		return a.state.Snapshot(), fmt.Errorf("%w: %q", ErrUnknownGesture, ev.Kind)
	}
}

// Run applies events in arrival order until events is closed or ctx is done.
// Unknown events are logged and skipped.
func (a *Adapter) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if _, err := a.Handle(ev); err != nil {
				a.logger.Warn("gesture skipped", "error", err)
			}
		}
	}
}

func (a *Adapter) applied(kind Kind, vp viewport.Viewport, clamped bool) {
	a.metrics.ObserveGesture(string(kind), vp.Zoom, clamped)
	if clamped {
		a.logger.Debug("zoom clamped", "gesture", string(kind), "zoom", vp.Zoom)
	}
	if a.OnChange != nil {
		a.OnChange(vp)
	}
}
