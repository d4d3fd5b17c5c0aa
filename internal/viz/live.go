package viz

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"math"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/orbitlab/internal/dynamo"
	"github.com/san-kum/orbitlab/internal/sim"
)

const (
	width           = 80
	height          = 24
	historyCapacity = 600
	trailCapacity   = 400
	frameRate       = 30
)

// Builder creates a fresh stepper at its initial conditions.
type Builder func() (sim.Stepper, error)

// Snapshot is one drawn frame kept for replay.
type Snapshot struct {
	Time   float64
	Q      []dynamo.Vec3
	Energy float64
	sim.Counters
}

type TickMsg time.Time

// Model steps a system by FrameStep of simulated time per frame and draws
// its heliocentric positions.
type Model struct {
	name      string
	build     Builder
	stepper   sim.Stepper
	FrameStep float64
	GIFPath   string

	width, height int
	canvas        *Canvas
	camera        *Camera
	theme         Theme
	styles        styles

	e0       float64
	drift    []float64
	trails   [][]dynamo.Vec3
	history  []Snapshot
	playHead int

	running   bool
	showHelp  bool
	recording bool
	frames    []*image.Paletted
	err       error
}

// NewModel builds the stepper once and sizes the view to the initial
// orbits.
func NewModel(name string, build Builder, frameStep float64) (Model, error) {
	if !(frameStep > 0) {
		return Model{}, fmt.Errorf("%w: frame step must be positive", dynamo.ErrParameterBounds)
	}
	m := Model{
		name:      name,
		build:     build,
		FrameStep: frameStep,
		GIFPath:   "orbitlab.gif",
		width:     width,
		height:    height,
		canvas:    NewCanvas(width, height),
		theme:     Themes[0],
		styles:    newStyles(Themes[0]),
		running:   true,
		playHead:  -1,
	}
	if err := m.restart(); err != nil {
		return Model{}, err
	}
	return m, nil
}

func (m *Model) restart() error {
	stepper, err := m.build()
	if err != nil {
		return err
	}
	m.stepper = stepper
	m.e0 = stepper.Hamiltonian()
	m.drift = make([]float64, 0, historyCapacity)
	m.history = make([]Snapshot, 0, historyCapacity)
	m.playHead = -1
	m.err = nil

	q, _ := stepper.Inertial()
	m.trails = make([][]dynamo.Vec3, len(q))
	extent := 0.0
	for i := 1; i < len(q); i++ {
		extent = math.Max(extent, q[i].Sub(q[0]).Norm())
	}
	m.camera = NewCamera(1.1 * extent)
	m.record()
	return nil
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/frameRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd { return tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			if err := m.restart(); err != nil {
				m.err = err
				m.running = false
			}
		case "[":
			m.scrub(-1)
		case "]":
			m.scrub(1)
		case "x":
			m.camera.RotateX(0.1)
		case "X":
			m.camera.RotateX(-0.1)
		case "y":
			m.camera.RotateY(0.1)
		case "Y":
			m.camera.RotateY(-0.1)
		case "+", "=":
			m.camera.ZoomIn()
		case "-", "_":
			m.camera.ZoomOut()
		case "t":
			m.theme = NextTheme(m.theme)
			m.styles = newStyles(m.theme)
		case "g":
			m.toggleRecording()
		case "?":
			m.showHelp = !m.showHelp
		}
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
	case TickMsg:
		if m.running {
			if m.playHead == -1 {
				m.step()
			} else {
				m.playHead++
				if m.playHead >= len(m.history) {
					m.playHead = -1
				}
			}
		}
		if m.recording {
			m.draw()
			m.captureFrame()
		}
		return m, tick()
	}
	return m, nil
}

func (m *Model) resize(w, h int) {
	cw, ch := w-56, h-4
	if cw < 20 || ch < 8 {
		return
	}
	m.width, m.height = cw, ch
	m.canvas = NewCanvas(cw, ch)
}

// step advances the simulation by one frame.
func (m *Model) step() {
	if m.err != nil {
		return
	}
	tEnd := m.stepper.Time() + m.FrameStep
	if err := m.stepper.Integrate(context.Background(), tEnd); err != nil {
		m.err = err
		m.running = false
		return
	}
	m.record()
}

func (m *Model) record() {
	q, _ := m.stepper.Inertial()
	rel := make([]dynamo.Vec3, len(q))
	for i := range q {
		rel[i] = q[i].Sub(q[0])
		m.trails[i] = append(m.trails[i], rel[i])
		if len(m.trails[i]) > trailCapacity {
			m.trails[i] = m.trails[i][1:]
		}
	}

	energy := m.stepper.Hamiltonian()
	m.drift = append(m.drift, relativeDrift(energy, m.e0))
	if len(m.drift) > historyCapacity {
		m.drift = m.drift[1:]
	}

	m.history = append(m.history, Snapshot{
		Time:     m.stepper.Time(),
		Q:        rel,
		Energy:   energy,
		Counters: m.stepper.Counters(),
	})
	if len(m.history) > historyCapacity {
		m.history = m.history[1:]
	}
}

// relativeDrift is log10 |E - E0| / |E0|, floored at -17 so exact
// conservation still plots.
func relativeDrift(e, e0 float64) float64 {
	d := math.Abs(e - e0)
	if e0 != 0 {
		d /= math.Abs(e0)
	}
	return math.Log10(math.Max(d, 1e-17))
}

// scrub changes the playback position in history.
func (m *Model) scrub(dir int) {
	if m.playHead == -1 {
		if len(m.history) == 0 {
			return
		}
		m.playHead = len(m.history) - 1
		m.running = false
	}
	m.playHead += dir
	if m.playHead < 0 {
		m.playHead = 0
	}
	if m.playHead >= len(m.history) {
		m.playHead = -1
	}
}

func (m *Model) current() Snapshot {
	if m.playHead >= 0 && m.playHead < len(m.history) {
		return m.history[m.playHead]
	}
	return m.history[len(m.history)-1]
}

func (m *Model) draw() {
	m.canvas.Clear()
	sw, sh := m.canvas.Pixels()

	for i := 1; i < len(m.trails); i++ {
		for _, p := range m.trails[i] {
			if x, y, ok := m.camera.Project(p, sw, sh); ok {
				m.canvas.Set(x, y)
			}
		}
	}
	for i, p := range m.current().Q {
		r := 1
		if i == 0 {
			r = 2
		}
		x, y, _ := m.camera.Project(p, sw, sh)
		m.canvas.Disc(x, y, r)
	}
}

func (m Model) status() string {
	switch {
	case m.err != nil:
		return m.styles.failed.Render("FAILED")
	case m.recording:
		return m.styles.recording.Render("● REC")
	case m.playHead != -1:
		dt := m.history[m.playHead].Time - m.history[len(m.history)-1].Time
		return m.styles.paused.Render(fmt.Sprintf("REPLAY (%+.2f)", dt))
	case !m.running:
		return m.styles.paused.Render("PAUSED")
	}
	return m.styles.running.Render("RUNNING")
}

func (m Model) View() string {
	m.draw()
	snap := m.current()
	st := m.styles

	var s strings.Builder
	s.WriteString(st.header.Render(strings.ToUpper(m.name)) + "\n")
	s.WriteString(m.status() + "\n")

	if len(m.drift) > 1 {
		chart := asciigraph.Plot(m.drift, asciigraph.Height(6), asciigraph.Width(32), asciigraph.Precision(1),
			asciigraph.Caption("log10 |dE/E0|"))
		s.WriteString(st.graph.Render(chart) + "\n")
	}

	row := func(label, value string) {
		s.WriteString(st.label.Render(label) + st.value.Render(value) + "\n")
	}
	row("Time", fmt.Sprintf("%.4f", snap.Time))
	row("Energy", fmt.Sprintf("%.15g", snap.Energy))
	row("Drift", fmt.Sprintf("%.3e", math.Pow(10, m.drift[len(m.drift)-1])))
	row("Steps", fmt.Sprintf("%d", snap.Steps))
	row("Rectified", fmt.Sprintf("%d", snap.Rectifications))
	row("Bodies", fmt.Sprintf("%d", len(snap.Q)))
	row("Zoom", fmt.Sprintf("%.2fx", m.camera.Zoom))
	if m.err != nil {
		s.WriteString("\n" + st.failed.Render(m.err.Error()) + "\n")
	}
	s.WriteString(st.help.Render("SP:Pause R:Restart Q:Quit\nT:Theme G:Record ?:Help\n[ ]:Replay +/-:Zoom"))

	main := lipgloss.JoinHorizontal(lipgloss.Top,
		st.canvas.Render(m.canvas.String()),
		st.panel.Render(s.String()))
	if m.showHelp {
		return helpText + "\n" + main
	}
	return main
}

func (m *Model) toggleRecording() {
	if !m.recording {
		m.recording = true
		m.frames = make([]*image.Paletted, 0)
		return
	}
	if err := m.saveGIF(); err != nil {
		m.err = err
	}
	m.recording = false
	m.frames = nil
}

// captureFrame rasterises the canvas, one 4x4 block per sub-pixel.
func (m *Model) captureFrame() {
	const dot = 4
	sw, sh := m.canvas.Pixels()
	img := image.NewPaletted(image.Rect(0, 0, sw*dot, sh*dot), color.Palette{color.Black, color.White})
	for y := 0; y < sh; y++ {
		for x := 0; x < sw; x++ {
			if !m.canvas.IsSet(x, y) {
				continue
			}
			for py := 0; py < dot; py++ {
				for px := 0; px < dot; px++ {
					img.SetColorIndex(x*dot+px, y*dot+py, 1)
				}
			}
		}
	}
	m.frames = append(m.frames, img)
}

func (m *Model) saveGIF() error {
	if len(m.frames) == 0 {
		return nil
	}
	anim := gif.GIF{LoopCount: 0}
	for _, frame := range m.frames {
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, 100/frameRate)
	}
	f, err := os.Create(m.GIFPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return gif.EncodeAll(f, &anim)
}

// Run starts a full-screen program for the model.
func Run(m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
