package viz

import (
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/orbitlab/internal/config"
	"github.com/san-kum/orbitlab/internal/dynamo"
	"github.com/san-kum/orbitlab/internal/sim"
)

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func twoBodyBuilder(t *testing.T) Builder {
	cfg := config.GetPreset("two_body")
	require.NotNil(t, cfg)
	return func() (sim.Stepper, error) { return cfg.NewStepper(nil) }
}

func newTestModel(t *testing.T) Model {
	m, err := NewModel("two_body", twoBodyBuilder(t), 0.05)
	require.NoError(t, err)
	return m
}

func update(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestCanvas_SetAndClear(t *testing.T) {
	c := NewCanvas(4, 2)
	w, h := c.Pixels()
	assert.Equal(t, 8, w)
	assert.Equal(t, 8, h)

	c.Set(0, 0)
	c.Set(1, 3)
	c.Set(-1, 2)
	c.Set(100, 100)
	assert.True(t, c.IsSet(0, 0))
	assert.True(t, c.IsSet(1, 3))
	assert.False(t, c.IsSet(1, 0))
	assert.Equal(t, rune(brailleBlank|0x1|0x80), c.Grid[0][0])

	c.Clear()
	assert.False(t, c.IsSet(0, 0))
	assert.Equal(t, rune(brailleBlank), c.Grid[0][0])
}

func TestCanvas_DrawLineEndpoints(t *testing.T) {
	c := NewCanvas(10, 5)
	c.DrawLine(1, 1, 17, 13)
	assert.True(t, c.IsSet(1, 1))
	assert.True(t, c.IsSet(17, 13))
}

func TestCanvas_String(t *testing.T) {
	c := NewCanvas(3, 2)
	lines := strings.Split(strings.TrimSuffix(c.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, 3, len([]rune(lines[0])))
}

func TestCamera_Project(t *testing.T) {
	cam := NewCamera(2)
	x, y, ok := cam.Project(dynamo.Vec3{}, 100, 80)
	assert.True(t, ok)
	assert.Equal(t, 50, x)
	assert.Equal(t, 40, y)

	x, y, ok = cam.Project(dynamo.Vec3{2, 0, 0}, 100, 80)
	assert.True(t, ok)
	assert.Equal(t, 90, x)
	assert.Equal(t, 40, y)

	_, y, _ = cam.Project(dynamo.Vec3{0, 1, 0}, 100, 80)
	assert.Equal(t, 20, y, "positive y is up")

	cam.ZoomIn()
	x, _, _ = cam.Project(dynamo.Vec3{1, 0, 0}, 100, 80)
	assert.Equal(t, 75, x)

	_, _, ok = cam.Project(dynamo.Vec3{10, 0, 0}, 100, 80)
	assert.False(t, ok)
}

func TestCamera_RotatePreservesLength(t *testing.T) {
	cam := NewCamera(1)
	cam.RotateX(0.7)
	cam.RotateY(-1.3)
	p := dynamo.Vec3{0.3, -1.2, 0.5}
	assert.InDelta(t, p.Norm(), cam.Rotate(p).Norm(), 1e-15)
}

func TestNewModel_Validation(t *testing.T) {
	_, err := NewModel("x", twoBodyBuilder(t), 0)
	assert.True(t, errors.Is(err, dynamo.ErrParameterBounds))

	_, err = NewModel("x", func() (sim.Stepper, error) { return nil, dynamo.ErrTooFewBodies }, 0.1)
	assert.True(t, errors.Is(err, dynamo.ErrTooFewBodies))
}

func TestModel_TickAdvancesTime(t *testing.T) {
	m := newTestModel(t)
	for k := 0; k < 4; k++ {
		m = update(m, TickMsg(time.Now()))
	}
	assert.InDelta(t, 0.2, m.stepper.Time(), 1e-14)
	assert.Len(t, m.history, 5)
	assert.Less(t, math.Pow(10, m.drift[len(m.drift)-1]), 1e-12)

	view := m.View()
	assert.Contains(t, view, "TWO_BODY")
	assert.Contains(t, view, "RUNNING")
}

func TestModel_PauseAndRestart(t *testing.T) {
	m := newTestModel(t)
	m = update(m, key(" "))
	assert.False(t, m.running)
	m = update(m, TickMsg(time.Now()))
	assert.Zero(t, m.stepper.Time())
	assert.Contains(t, m.View(), "PAUSED")

	m = update(m, key(" "))
	m = update(m, TickMsg(time.Now()))
	require.Positive(t, m.stepper.Time())

	m = update(m, key("r"))
	assert.Zero(t, m.stepper.Time())
	assert.Len(t, m.history, 1)
}

func TestModel_Scrub(t *testing.T) {
	m := newTestModel(t)
	for k := 0; k < 3; k++ {
		m = update(m, TickMsg(time.Now()))
	}
	m = update(m, key("["))
	assert.Equal(t, 2, m.playHead)
	assert.False(t, m.running)
	assert.Contains(t, m.View(), "REPLAY")

	m = update(m, key("]"))
	m = update(m, key("]"))
	assert.Equal(t, -1, m.playHead)
}

func TestModel_ThemeAndZoomKeys(t *testing.T) {
	m := newTestModel(t)
	zoom := m.camera.Zoom
	m = update(m, key("+"))
	assert.Greater(t, m.camera.Zoom, zoom)
	m = update(m, key("t"))
	assert.Equal(t, Themes[1].Name, m.theme.Name)
}

func TestModel_RecordGIF(t *testing.T) {
	m := newTestModel(t)
	m.GIFPath = filepath.Join(t.TempDir(), "orbit.gif")

	m = update(m, key("g"))
	require.True(t, m.recording)
	m = update(m, TickMsg(time.Now()))
	m = update(m, TickMsg(time.Now()))
	assert.Len(t, m.frames, 2)

	m = update(m, key("g"))
	assert.False(t, m.recording)
	assert.NoError(t, m.err)
	assert.FileExists(t, m.GIFPath)
}

func TestNextTheme_Wraps(t *testing.T) {
	assert.Equal(t, Themes[0].Name, NextTheme(Themes[len(Themes)-1]).Name)
	assert.Equal(t, Themes[0].Name, GetTheme("missing").Name)
	assert.Equal(t, len(Themes), len(ThemeNames()))
}

func TestApp_PresetToLive(t *testing.T) {
	var a tea.Model = *NewApp(nil)
	assert.Contains(t, a.View(), "ORBITLAB")

	a, _ = a.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Contains(t, a.View(), "tolerance")

	a, cmd := a.Update(key("s"))
	assert.NotNil(t, cmd)
	app := a.(App)
	require.NoError(t, app.err)
	assert.Equal(t, stateSim, app.state)

	a, _ = a.Update(TickMsg(time.Now()))
	assert.Positive(t, a.(App).live.stepper.Time())
}

func TestApp_EditField(t *testing.T) {
	var a tea.Model = *NewApp(nil)
	a, _ = a.Update(tea.KeyMsg{Type: tea.KeyEnter})
	a, _ = a.Update(key("j"))
	a, _ = a.Update(tea.KeyMsg{Type: tea.KeyEnter})
	app := a.(App)
	require.True(t, app.editing)

	app.editBuf = ""
	a = app
	a, _ = a.Update(key("1e-9"))
	a, _ = a.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, 1e-9, a.(App).cfg.Tolerance)
}
