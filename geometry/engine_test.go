package geometry

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const delta = 1e-6

func demoConfig() Config {
	return Config{
		Natural:   Size{W: 2000, H: 1400},
		Displayed: Size{W: 800, H: 560},
		Target:    Size{W: 700, H: 466},
		Position:  Point{X: 50, Y: 50},
		Zoom:      0.2,
		ZoomStep:  0.05,
	}
}

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg)
	require.NoError(t, err)
	return e
}

func assertInvariants(t *testing.T, e *Engine) {
	t.Helper()
	st := e.State()
	d := e.Metrics().Displayed
	assert.GreaterOrEqual(t, st.X, 0.0)
	assert.GreaterOrEqual(t, st.Y, 0.0)
	assert.LessOrEqual(t, st.X, d.W-st.BoxWidth+delta)
	assert.LessOrEqual(t, st.Y, d.H-st.BoxHeight+delta)
	assert.GreaterOrEqual(t, st.Zoom, st.MinZoom)
	assert.LessOrEqual(t, st.Zoom, 1.0)
}

func TestNew(t *testing.T) {
	e := newEngine(t, demoConfig())
	st := e.State()

	assert.InDelta(t, 0.35, st.MinZoom, delta)
	assert.LessOrEqual(t, e.base.W/st.MinZoom, 800+delta)
	assert.LessOrEqual(t, e.base.H/st.MinZoom, 560+delta)

	// 0.2 does not fit 800x560, so the zoom falls back to 1
	assert.Equal(t, 1.0, st.Zoom)
	assert.Equal(t, 50.0, st.X)
	assert.Equal(t, 50.0, st.Y)
	assert.InDelta(t, 280, st.BoxWidth, delta)
	assert.InDelta(t, 186.4, st.BoxHeight, delta)
	assertInvariants(t, e)
}

func TestNewKeepsFittingZoom(t *testing.T) {
	cfg := demoConfig()
	cfg.Zoom = 0.5
	e := newEngine(t, cfg)
	assert.Equal(t, 0.5, e.State().Zoom)
	assert.Zero(t, e.State().LastZoom)
}

func TestNewConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"target wider than image", func(c *Config) { c.Target.W = 2001 }},
		{"target taller than image", func(c *Config) { c.Target.H = 1401 }},
		{"zero target", func(c *Config) { c.Target = Size{} }},
		{"missing natural size", func(c *Config) { c.Natural = Size{} }},
		{"nan displayed", func(c *Config) { c.Displayed.W = math.NaN() }},
		{"infinite displayed", func(c *Config) { c.Displayed.H = math.Inf(1) }},
		{"negative position", func(c *Config) { c.Position.X = -1 }},
		{"zero zoom", func(c *Config) { c.Zoom = 0 }},
		{"zoom above one", func(c *Config) { c.Zoom = 1.5 }},
		{"zero step", func(c *Config) { c.ZoomStep = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := demoConfig()
			tt.mutate(&cfg)
			e, err := New(cfg)
			require.Error(t, err)
			assert.Nil(t, e)
			assert.True(t, IsConfigError(err), "got %T", err)
		})
	}
}

func TestMinZoomWithinBounds(t *testing.T) {
	tests := []struct {
		natural, displayed, target Size
	}{
		{Size{2000, 1400}, Size{800, 560}, Size{700, 466}},
		{Size{700, 466}, Size{700, 466}, Size{700, 466}},
		{Size{4000, 1000}, Size{1200, 300}, Size{500, 500}},
		{Size{1000, 4000}, Size{250, 1000}, Size{300, 900}},
		{Size{1920, 1080}, Size{640, 640}, Size{1080, 1080}},
		{Size{3000, 2000}, Size{300, 600}, Size{200, 150}},
	}
	for _, tt := range tests {
		t.Run(tt.target.String()+"in"+tt.natural.String(), func(t *testing.T) {
			e := newEngine(t, Config{
				Natural:   tt.natural,
				Displayed: tt.displayed,
				Target:    tt.target,
				Zoom:      1,
				ZoomStep:  0.1,
			})
			st := e.State()
			assert.Greater(t, st.MinZoom, 0.0)
			assert.LessOrEqual(t, st.MinZoom, 1.0)

			e.ResetToFit()
			assertInvariants(t, e)
		})
	}
}

func TestSourceRect(t *testing.T) {
	e := newEngine(t, demoConfig())
	r := e.SourceRect()
	assert.InDelta(t, 125, r.X, delta)
	assert.InDelta(t, 125, r.Y, delta)
	assert.InDelta(t, 700, r.W, delta)
	assert.InDelta(t, 466, r.H, delta)

	e.ResetToFit()
	r = e.SourceRect()
	assert.Zero(t, r.X)
	assert.Zero(t, r.Y)
	assert.InDelta(t, 2000, r.W, delta)
	assert.InDelta(t, 2000*466.0/700, r.H, delta)
}

func TestSourceRectStaysInsideImage(t *testing.T) {
	e := newEngine(t, demoConfig())
	for _, z := range []float64{1, 0.8, 0.5, 0.35} {
		e.SetZoom(z)
		e.Pan(10000, 10000)
		r := e.SourceRect()
		assert.LessOrEqual(t, r.X+r.W, 2000+delta, "zoom %v", z)
		assert.LessOrEqual(t, r.Y+r.H, 1400+delta, "zoom %v", z)
		assert.InDelta(t, 700/z, r.W, delta, "zoom %v", z)
	}
}

func TestSourceRectPortraitTarget(t *testing.T) {
	e := newEngine(t, Config{
		Natural:   Size{1400, 2000},
		Displayed: Size{560, 800},
		Target:    Size{466, 700},
		Zoom:      1,
		ZoomStep:  0.05,
	})
	assert.InDelta(t, 0.35, e.State().MinZoom, delta)

	r := e.SourceRect()
	assert.InDelta(t, 700, r.H, delta)
	assert.InDelta(t, 466, r.W, delta)
}

func TestPreviewRect(t *testing.T) {
	e := newEngine(t, demoConfig())
	r := e.PreviewRect()
	assert.InDelta(t, 0, r.X, delta)
	assert.InDelta(t, 800, r.W, delta)
	assert.InDelta(t, 466*800.0/700, r.H, delta)
	assert.InDelta(t, (560-r.H)/2, r.Y, delta)

	src := e.SourceRect()
	assert.InDelta(t, src.H/src.W, r.H/r.W, delta)
}

func TestPan(t *testing.T) {
	e := newEngine(t, demoConfig())

	e.Pan(-1000, -1000)
	assert.Zero(t, e.State().X)
	assert.Zero(t, e.State().Y)

	e.Pan(1000, 1000)
	st := e.State()
	assert.InDelta(t, 800-280, st.X, delta)
	assert.InDelta(t, 560-186.4, st.Y, delta)

	e.Pan(math.NaN(), 1)
	assert.Equal(t, st, e.State())
}

func TestSetZoomResetSentinel(t *testing.T) {
	e := newEngine(t, demoConfig())
	e.SetZoom(0.6)
	e.Pan(30, 40)

	e.SetZoom(ZoomReset)
	st := e.State()
	assert.Zero(t, st.X)
	assert.Zero(t, st.Y)
	assert.Equal(t, st.MinZoom, st.Zoom)
	assert.Equal(t, 0.6, st.LastZoom)
}

func TestSetZoomClamps(t *testing.T) {
	e := newEngine(t, demoConfig())

	e.SetZoom(5)
	assert.Equal(t, 1.0, e.State().Zoom)

	e.SetZoom(0.01)
	assert.Equal(t, e.State().MinZoom, e.State().Zoom)
	assert.Equal(t, 1.0, e.State().LastZoom)

	e.SetZoom(-3)
	assert.Equal(t, e.State().MinZoom, e.State().Zoom)
}

func TestStepZoomBounds(t *testing.T) {
	e := newEngine(t, demoConfig())
	c := NewController(e)

	for i := 0; i < 100; i++ {
		c.ZoomIn()
	}
	assert.Equal(t, 1.0, e.State().Zoom)

	for i := 0; i < 100; i++ {
		c.ZoomOut()
	}
	assert.Equal(t, e.State().MinZoom, e.State().Zoom)
}

func TestStepZoomNeverResets(t *testing.T) {
	e := newEngine(t, demoConfig())
	e.Pan(20, 20)
	before := e.State()

	// zoom + delta == 0 must clamp, not snap to origin
	e.StepZoom(-1)
	st := e.State()
	assert.Equal(t, st.MinZoom, st.Zoom)
	assert.Equal(t, before.Zoom, st.LastZoom)
	assert.NotZero(t, st.Y)
}

func TestIdempotence(t *testing.T) {
	e := newEngine(t, demoConfig())
	e.SetZoom(0.7)
	e.Pan(13.3, 7.1)
	st := e.State()

	e.Pan(0, 0)
	assert.Equal(t, st, e.State())

	e.SetZoom(st.Zoom)
	assert.Equal(t, st, e.State())

	e.StepZoom(0)
	assert.Equal(t, st, e.State())
}

func TestInvariantsHoldUnderRandomInput(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	e := newEngine(t, demoConfig())

	for i := 0; i < 2000; i++ {
		switch rng.Intn(5) {
		case 0:
			e.Pan(rng.Float64()*2000-1000, rng.Float64()*2000-1000)
		case 1:
			e.SetZoom(rng.Float64()*2 - 0.5)
		case 2:
			e.StepZoom(rng.Float64()*0.4 - 0.2)
		case 3:
			e.MoveTo(rng.Float64()*1600-400, rng.Float64()*1200-300)
		case 4:
			w := 100 + rng.Float64()*1500
			require.NoError(t, e.RefreshMetrics(ImageMetrics{
				Natural:   Size{2000, 1400},
				Displayed: Size{W: w, H: w * (0.5 + rng.Float64())},
			}))
		}
		assertInvariants(t, e)
		if t.Failed() {
			t.Fatalf("invariant broken at step %d", i)
		}
	}
}

func TestRefreshMetricsScalesPosition(t *testing.T) {
	e := newEngine(t, demoConfig())
	before := e.SourceRect()

	require.NoError(t, e.RefreshMetrics(ImageMetrics{
		Natural:   Size{2000, 1400},
		Displayed: Size{400, 280},
	}))
	st := e.State()
	assert.InDelta(t, 25, st.X, delta)
	assert.InDelta(t, 25, st.Y, delta)
	assert.Equal(t, 1.0, st.Zoom)
	assert.InDelta(t, 140, st.BoxWidth, delta)

	after := e.SourceRect()
	assert.InDelta(t, before.X, after.X, delta)
	assert.InDelta(t, before.Y, after.Y, delta)
	assert.InDelta(t, before.W, after.W, delta)
}

func TestRefreshMetricsRecoversLastZoom(t *testing.T) {
	e := newEngine(t, demoConfig())
	e.SetZoom(0.8)
	e.SetZoom(0.4)
	require.Equal(t, 0.8, e.State().LastZoom)

	// a smaller natural image raises minZoom to 0.7, so 0.4 no longer fits
	require.NoError(t, e.RefreshMetrics(ImageMetrics{
		Natural:   Size{1000, 700},
		Displayed: Size{400, 280},
	}))
	st := e.State()
	assert.InDelta(t, 0.7, st.MinZoom, delta)
	assert.Equal(t, 0.8, st.Zoom)
	assertInvariants(t, e)
}

func TestRefreshMetricsFallsBackToOne(t *testing.T) {
	e := newEngine(t, demoConfig())
	e.SetZoom(0.45)
	e.SetZoom(0.4)

	require.NoError(t, e.RefreshMetrics(ImageMetrics{
		Natural:   Size{1000, 700},
		Displayed: Size{400, 280},
	}))
	assert.Equal(t, 1.0, e.State().Zoom)
	assertInvariants(t, e)
}

func TestRefreshMetricsRejectsSmallImage(t *testing.T) {
	e := newEngine(t, demoConfig())
	st := e.State()

	err := e.RefreshMetrics(ImageMetrics{
		Natural:   Size{600, 400},
		Displayed: Size{600, 400},
	})
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.Equal(t, st, e.State())
}

func TestParseSize(t *testing.T) {
	s, err := ParseSize("700x466")
	require.NoError(t, err)
	assert.Equal(t, Size{700, 466}, s)

	s, err = ParseSize(" 12.5X8 ")
	require.NoError(t, err)
	assert.Equal(t, Size{12.5, 8}, s)

	_, err = ParseSize("700")
	assert.Error(t, err)
	_, err = ParseSize("axb")
	assert.Error(t, err)
	assert.Equal(t, "700x466", Size{700, 466}.String())
}
