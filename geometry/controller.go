package geometry

// Controller turns drag gestures and zoom buttons into Engine calls.
type Controller struct {
	engine *Engine

	dragging bool
	// reference frame captured at drag start
	origin Point
	start  Point
}

func NewController(engine *Engine) *Controller {
	return &Controller{engine: engine}
}

// DragStart records the box position and the pointer position. Pointer
// coordinates may be in any space that shares the displayed-space scale,
// e.g. page coordinates.
func (c *Controller) DragStart(pointer Point) {
	st := c.engine.State()
	c.origin = Point{X: st.X, Y: st.Y}
	c.start = pointer
	c.dragging = true
}

// DragMove positions the box at origin + (pointer - start). Moves without
// a preceding DragStart are ignored.
func (c *Controller) DragMove(pointer Point) {
	if !c.dragging {
		return
	}
	c.engine.MoveTo(
		c.origin.X+(pointer.X-c.start.X),
		c.origin.Y+(pointer.Y-c.start.Y),
	)
}

func (c *Controller) DragEnd() {
	c.dragging = false
	c.origin = Point{}
	c.start = Point{}
}

func (c *Controller) Dragging() bool { return c.dragging }

func (c *Controller) ZoomIn() { c.engine.StepZoom(c.engine.ZoomStep()) }

func (c *Controller) ZoomOut() { c.engine.StepZoom(-c.engine.ZoomStep()) }

// ZoomToFit shows as much of the image as possible and re-origins the box.
func (c *Controller) ZoomToFit() { c.engine.ResetToFit() }

// ZoomReset goes back to 100%, the tightest box.
func (c *Controller) ZoomReset() { c.engine.SetZoom(1) }
