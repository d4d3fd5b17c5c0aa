package viz

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/san-kum/orbitlab/internal/config"
	"github.com/san-kum/orbitlab/internal/sim"
)

var presetInfo = map[string]string{
	"two_body":            "planet on a circular orbit",
	"sun_jupiter_saturn":  "outer giants, secular exchange",
	"hierarchical_triple": "massive inner pair, wide third",
	"inner_planets":       "mercury to mars",
}

const (
	stateMenu = iota
	stateConfig
	stateSim
)

// field is one editable run setting.
type field struct {
	name string
	get  func(*config.Config) string
	set  func(*config.Config, string) error
}

func floatField(name string, ptr func(*config.Config) *float64) field {
	return field{
		name: name,
		get:  func(c *config.Config) string { return strconv.FormatFloat(*ptr(c), 'g', 6, 64) },
		set: func(c *config.Config, s string) error {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return err
			}
			*ptr(c) = v
			return nil
		},
	}
}

var fields = []field{
	{
		name: "integrator",
		get:  func(c *config.Config) string { return c.Integrator },
		set: func(c *config.Config, s string) error {
			c.Integrator = s
			return nil
		},
	},
	floatField("tolerance", func(c *config.Config) *float64 { return &c.Tolerance }),
	floatField("h0", func(c *config.Config) *float64 { return &c.InitialStep }),
	floatField("dq_max", func(c *config.Config) *float64 { return &c.DQMax }),
	floatField("frame_step", func(c *config.Config) *float64 { return &c.OutputInterval }),
}

// App picks a preset, lets its settings be edited and then runs it live.
type App struct {
	state, cursor int
	presets       []string
	cfg           *config.Config
	fieldCursor   int
	editing       bool
	editBuf       string
	err           error
	width, height int
	live          Model
	log           *zap.Logger
}

func NewApp(log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	return &App{
		state:   stateMenu,
		presets: config.ListPresets(),
		width:   width,
		height:  height,
		log:     log,
	}
}

func (a App) Init() tea.Cmd { return nil }

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
	}
	if a.state == stateSim {
		live, cmd := a.live.Update(msg)
		a.live = live.(Model)
		return a, cmd
	}
	return a, nil
}

func (a App) handleKey(msg tea.KeyMsg) (App, tea.Cmd) {
	switch a.state {
	case stateMenu:
		return a.menuKey(msg)
	case stateConfig:
		return a.configKey(msg)
	case stateSim:
		if msg.String() == "esc" {
			a.state = stateConfig
			return a, nil
		}
		live, cmd := a.live.Update(msg)
		a.live = live.(Model)
		return a, cmd
	}
	return a, nil
}

func (a App) menuKey(msg tea.KeyMsg) (App, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit
	case "up", "k":
		if a.cursor > 0 {
			a.cursor--
		}
	case "down", "j":
		if a.cursor < len(a.presets)-1 {
			a.cursor++
		}
	case "enter", " ":
		a.cfg = config.GetPreset(a.presets[a.cursor])
		a.cfg.OutputInterval = a.cfg.Duration / 2000
		a.state, a.fieldCursor, a.err = stateConfig, 0, nil
	}
	return a, nil
}

func (a App) configKey(msg tea.KeyMsg) (App, tea.Cmd) {
	if a.editing {
		switch msg.String() {
		case "enter":
			a.err = fields[a.fieldCursor].set(a.cfg, strings.TrimSpace(a.editBuf))
			a.editing, a.editBuf = false, ""
		case "esc":
			a.editing, a.editBuf = false, ""
		case "backspace":
			if len(a.editBuf) > 0 {
				a.editBuf = a.editBuf[:len(a.editBuf)-1]
			}
		default:
			if msg.Type == tea.KeyRunes {
				a.editBuf += string(msg.Runes)
			}
		}
		return a, nil
	}
	switch msg.String() {
	case "q", "esc":
		a.state = stateMenu
	case "up", "k":
		if a.fieldCursor > 0 {
			a.fieldCursor--
		}
	case "down", "j":
		if a.fieldCursor < len(fields)-1 {
			a.fieldCursor++
		}
	case "enter", " ":
		a.editing, a.editBuf = true, fields[a.fieldCursor].get(a.cfg)
	case "s":
		return a.start()
	}
	return a, nil
}

func (a App) start() (App, tea.Cmd) {
	if err := a.cfg.Validate(); err != nil {
		a.err = err
		return a, nil
	}
	cfg := a.cfg.Clone()
	build := func() (sim.Stepper, error) { return cfg.NewStepper(a.log) }
	live, err := NewModel(cfg.Name, build, cfg.OutputInterval)
	if err != nil {
		a.err = err
		return a, nil
	}
	live.resize(a.width, a.height)
	a.live, a.state, a.err = live, stateSim, nil
	return a, live.Init()
}

func (a App) View() string {
	switch a.state {
	case stateMenu:
		return a.viewMenu()
	case stateConfig:
		return a.viewConfig()
	case stateSim:
		return a.live.View()
	}
	return ""
}

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#00cccc")).Bold(true)
	subStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#666688"))
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ffff")).Bold(true)
	itemStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff")).Bold(true)
	descStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff88ff"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#555566"))
	keyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#00aaaa")).Bold(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff4444"))
)

func keys(pairs ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		b.WriteString(keyStyle.Render(pairs[i]) + dimStyle.Render(" "+pairs[i+1]+"  "))
	}
	return b.String()
}

func (a App) viewMenu() string {
	var b strings.Builder
	b.WriteString("\n\n    " + titleStyle.Render("ORBITLAB") + "\n    " + subStyle.Render("encke n-body integrator") +
		"\n    " + subStyle.Render("─────────────────────────") + "\n\n")
	for i, name := range a.presets {
		if i == a.cursor {
			b.WriteString(fmt.Sprintf("    %s %s  %s\n", cursorStyle.Render("▸"),
				itemStyle.Render(fmt.Sprintf("%-20s", name)), descStyle.Render(presetInfo[name])))
		} else {
			b.WriteString(fmt.Sprintf("      %s  %s\n", dimStyle.Render(fmt.Sprintf("%-20s", name)), dimStyle.Render(presetInfo[name])))
		}
	}
	b.WriteString("\n    " + keys("j/k", "navigate", "enter", "select", "q", "quit") + "\n")
	return b.String()
}

func (a App) viewConfig() string {
	var b strings.Builder
	b.WriteString("\n\n    " + titleStyle.Render(strings.ToUpper(a.cfg.Name)) + "\n    " +
		subStyle.Render(presetInfo[a.cfg.Name]) + "\n    " + subStyle.Render("─────────────────────────") + "\n\n")
	for i, f := range fields {
		val := f.get(a.cfg)
		if a.editing && i == a.fieldCursor {
			val = a.editBuf + "_"
		}
		if i == a.fieldCursor {
			b.WriteString(fmt.Sprintf("    %s %s %s\n", cursorStyle.Render("▸"),
				itemStyle.Render(fmt.Sprintf("%-12s", f.name)), descStyle.Render(val)))
		} else {
			b.WriteString(fmt.Sprintf("      %s %s\n", dimStyle.Render(fmt.Sprintf("%-12s", f.name)), dimStyle.Render(val)))
		}
	}
	if a.err != nil {
		b.WriteString("\n    " + errStyle.Render(a.err.Error()) + "\n")
	}
	b.WriteString("\n    " + keys("j/k", "select", "enter", "edit", "s", "start", "esc", "back") + "\n")
	return b.String()
}

// RunInteractive starts the preset picker full screen.
func RunInteractive(log *zap.Logger) error {
	_, err := tea.NewProgram(NewApp(log), tea.WithAltScreen()).Run()
	return err
}
