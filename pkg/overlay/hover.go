package overlay

import "github.com/kutubofficial/WSI-detection/pkg/types"

// HoverState is whether the pointer is over the viewer surface.
type HoverState int

const (
	Idle HoverState = iota
	Hovering
)

func (s HoverState) String() string {
	if s == Hovering {
		return "hovering"
	}
	return "idle"
}

// Hover tracks the pointer over the viewer. Position is the hover point in
// native image coordinates. The zero value is Idle at the origin.
type Hover struct {
	State    HoverState
	Position types.Point
}

// Enter moves to Hovering and records p immediately, so overlays shown on
// entry use the current pointer rather than the last known one.
// It reports whether the state changed.
func (h *Hover) Enter(p types.Point) bool {
	changed := h.State != Hovering
	h.State = Hovering
	h.Position = p
	return changed
}

// Move records p without changing state.
func (h *Hover) Move(p types.Point) {
	h.Position = p
}

// Leave moves to Idle. It reports whether the state changed.
func (h *Hover) Leave() bool {
	changed := h.State != Idle
	h.State = Idle
	return changed
}

// Active reports whether the pointer is over the viewer.
func (h Hover) Active() bool { return h.State == Hovering }
