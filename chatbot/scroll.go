package chatbot

import "sync"

// DefaultTopOffset is the distance in pixels from the top of the viewport that
// auto-scroll never pushes an exchange's top above. It is tunable policy.
const DefaultTopOffset = 100.0

// Rect is a container's vertical extent relative to the top of the viewport
type Rect struct {
	Top    float64
	Bottom float64
}

// Viewport is the scrollable area that holds the exchange's container
type Viewport interface {
	Height() float64
	ContainerRect() Rect
	ScrollBy(dy float64)
}

// ScrollController keeps an exchange's newest content in view until the user
// scrolls away.
type ScrollController struct {
	viewport  Viewport
	topOffset float64

	mu           sync.Mutex
	override     bool
	programmatic bool
}

// NewScrollController creates a new ScrollController for v
func NewScrollController(v Viewport, topOffset float64) *ScrollController {
	return &ScrollController{viewport: v, topOffset: topOffset}
}

// OnScroll handles a scroll event. Scrolls not caused by Follow set the user override.
func (s *ScrollController) OnScroll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.programmatic {
		s.programmatic = false
		return
	}
	s.override = true
}

// Overridden reports whether automatic scrolling is suspended
func (s *ScrollController) Overridden() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.override
}

// Follow scrolls the container's bottom into view after content grows
func (s *ScrollController) Follow() {
	s.mu.Lock()
	if s.override {
		s.mu.Unlock()
		return
	}

	rect := s.viewport.ContainerRect()
	dy := rect.Bottom - s.viewport.Height()
	pin := rect.Top-dy < s.topOffset
	if pin {
		// the container is taller than the space below the offset: put its
		// top at the offset, scrolling back if needed, and stop following
		dy = rect.Top - s.topOffset
		s.override = true
	}
	if dy == 0 || (dy < 0 && !pin) {
		s.mu.Unlock()
		return
	}
	s.programmatic = true
	s.mu.Unlock()

	s.viewport.ScrollBy(dy)
}
