package chatbot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeViewport holds a container whose top starts at top and grows by content.
// ScrollBy fires a scroll event the way a browser would.
type fakeViewport struct {
	height    float64
	top       float64
	contentHt float64
	scrolls   []float64
	onScroll  func()
}

func (v *fakeViewport) Height() float64 { return v.height }

func (v *fakeViewport) ContainerRect() Rect {
	return Rect{Top: v.top, Bottom: v.top + v.contentHt}
}

func (v *fakeViewport) ScrollBy(dy float64) {
	v.scrolls = append(v.scrolls, dy)
	v.top -= dy
	if v.onScroll != nil {
		v.onScroll()
	}
}

func newFollowed(v *fakeViewport, offset float64) *ScrollController {
	s := NewScrollController(v, offset)
	v.onScroll = s.OnScroll
	return s
}

func TestScrollFollowKeepsBottomInView(t *testing.T) {
	v := &fakeViewport{height: 500, top: 300, contentHt: 100}
	s := newFollowed(v, DefaultTopOffset)

	// fits: nothing to do
	s.Follow()
	assert.Empty(t, v.scrolls)

	v.contentHt = 250
	s.Follow()
	assert.Equal(t, []float64{50}, v.scrolls)
	assert.Equal(t, 500.0, v.ContainerRect().Bottom)
	assert.False(t, s.Overridden(), "programmatic scroll set the override")
}

func TestScrollFollowPinsTopAndStops(t *testing.T) {
	v := &fakeViewport{height: 500, top: 300, contentHt: 100}
	s := newFollowed(v, 100)

	v.contentHt = 600
	s.Follow()
	assert.Equal(t, []float64{200}, v.scrolls)
	assert.Equal(t, 100.0, v.top)
	assert.True(t, s.Overridden())

	v.contentHt = 900
	s.Follow()
	assert.Len(t, v.scrolls, 1)
}

func TestScrollUserOverride(t *testing.T) {
	v := &fakeViewport{height: 500, top: 300, contentHt: 100}
	s := newFollowed(v, DefaultTopOffset)

	s.OnScroll()
	assert.True(t, s.Overridden())

	v.contentHt = 300
	s.Follow()
	assert.Empty(t, v.scrolls)
}

func TestScrollProgrammaticFlagIsOneShot(t *testing.T) {
	v := &fakeViewport{height: 500, top: 300, contentHt: 300}
	s := NewScrollController(v, DefaultTopOffset)

	// the scroll event arrives later, not from inside ScrollBy
	s.Follow()
	assert.Equal(t, []float64{100}, v.scrolls)

	s.OnScroll()
	assert.False(t, s.Overridden())

	s.OnScroll()
	assert.True(t, s.Overridden())
}

func TestScrollFollowPinsTopScrollingBack(t *testing.T) {
	// top already above the offset and the bottom just below the fold
	v := &fakeViewport{height: 500, top: 40, contentHt: 480}
	s := newFollowed(v, 100)

	s.Follow()
	assert.Equal(t, []float64{-60}, v.scrolls)
	assert.Equal(t, 100.0, v.top)
	assert.True(t, s.Overridden())
}
