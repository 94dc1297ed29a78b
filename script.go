package wsiviewer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kutubofficial/WSI-detection/pkg/gesture"
	"github.com/kutubofficial/WSI-detection/pkg/overlay"
	"github.com/kutubofficial/WSI-detection/pkg/types"
)

// Step kinds that are not gestures.
const (
	StepEnter = "enter"
	StepMove  = "move"
	StepLeave = "leave"
	StepFrame = "frame"
	StepReset = "reset"
)

// Step is one entry of an interaction script. Gesture kinds (drag, wheel,
// pinch) use the gesture.Event fields; enter and move use X, Y as a screen
// point; frame asks for a snapshot.
type Step struct {
	Kind     string  `json:"kind"`
	X        float64 `json:"x,omitempty"`
	Y        float64 `json:"y,omitempty"`
	DeltaY   float64 `json:"delta_y,omitempty"`
	Distance float64 `json:"distance,omitempty"`
	Name     string  `json:"name,omitempty"`
}

// ParseScript decodes a JSON array of steps.
func ParseScript(r io.Reader) ([]Step, error) {
	var steps []Step
	if err := json.NewDecoder(r).Decode(&steps); err != nil {
		return nil, fmt.Errorf("failed to decode script: %w", err)
	}
	return steps, nil
}

// LoadScript reads a script file.
func LoadScript(path string) ([]Step, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open script: %w", err)
	}
	defer f.Close()
	return ParseScript(f)
}

// FrameFunc receives the frame requested by a frame step.
type FrameFunc func(step Step, f overlay.Frame) error

// Play applies steps in order. Each frame step calls onFrame; a script with
// no frame step still produces one final frame. Unknown kinds stop playback.
func (v *Viewer) Play(ctx context.Context, steps []Step, onFrame FrameFunc) error {
	framed := false
	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch s.Kind {
		case StepEnter:
			v.PointerEnter(types.Point{X: s.X, Y: s.Y})
		case StepMove:
			v.PointerMove(types.Point{X: s.X, Y: s.Y})
		case StepLeave:
			v.PointerLeave()
		case StepReset:
			v.Reset()
		case StepFrame:
			framed = true
			if onFrame != nil {
				if err := onFrame(s, v.Frame()); err != nil {
					return fmt.Errorf("step %d: %w", i, err)
				}
			}
		default:
			ev := gesture.Event{Kind: gesture.Kind(s.Kind), X: s.X, Y: s.Y, DeltaY: s.DeltaY, Distance: s.Distance}
			if _, err := v.gestures.Handle(ev); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		}
	}
	if !framed && onFrame != nil {
		return onFrame(Step{Kind: StepFrame, Name: "final"}, v.Frame())
	}
	return nil
}
