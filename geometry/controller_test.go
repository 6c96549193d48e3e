package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestControllerDrag(t *testing.T) {
	e := newEngine(t, demoConfig())
	c := NewController(e)

	c.DragStart(Point{X: 100, Y: 100})
	assert.True(t, c.Dragging())

	c.DragMove(Point{X: 130, Y: 120})
	assert.InDelta(t, 80, e.State().X, delta)
	assert.InDelta(t, 70, e.State().Y, delta)

	// far outside the element, clamped
	c.DragMove(Point{X: 5000, Y: -5000})
	assert.InDelta(t, 520, e.State().X, delta)
	assert.Zero(t, e.State().Y)

	// positions derive from the reference frame, not from the last move
	c.DragMove(Point{X: 100, Y: 100})
	assert.Equal(t, 50.0, e.State().X)
	assert.Equal(t, 50.0, e.State().Y)

	c.DragEnd()
	assert.False(t, c.Dragging())
	c.DragMove(Point{X: 300, Y: 300})
	assert.Equal(t, 50.0, e.State().X)
}

func TestControllerManySmallMovesDoNotDrift(t *testing.T) {
	e := newEngine(t, demoConfig())
	c := NewController(e)

	c.DragStart(Point{X: 0, Y: 0})
	for i := 1; i <= 1000; i++ {
		c.DragMove(Point{X: float64(i) * 0.1, Y: float64(i) * 0.1})
	}
	for i := 999; i >= 0; i-- {
		c.DragMove(Point{X: float64(i) * 0.1, Y: float64(i) * 0.1})
	}
	c.DragEnd()

	assert.Equal(t, 50.0, e.State().X)
	assert.Equal(t, 50.0, e.State().Y)
}

func TestControllerMoveWithoutStart(t *testing.T) {
	e := newEngine(t, demoConfig())
	c := NewController(e)
	c.DragMove(Point{X: 10, Y: 10})
	assert.Equal(t, 50.0, e.State().X)
}

func TestControllerZoomShortcuts(t *testing.T) {
	e := newEngine(t, demoConfig())
	c := NewController(e)

	c.ZoomOut()
	assert.InDelta(t, 0.95, e.State().Zoom, delta)
	c.ZoomIn()
	assert.InDelta(t, 1, e.State().Zoom, delta)

	c.ZoomOut()
	c.ZoomToFit()
	st := e.State()
	assert.Equal(t, st.MinZoom, st.Zoom)
	assert.Zero(t, st.X)
	assert.Zero(t, st.Y)

	c.ZoomReset()
	assert.Equal(t, 1.0, e.State().Zoom)
}
