// Package tui is the foreground dashboard around the poll scheduler.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rsm23/netflix-home-auto-confirm/internal/model"
	"github.com/rsm23/netflix-home-auto-confirm/internal/watch"
)

// Controller is what the dashboard drives.
type Controller interface {
	Start() error
	Stop()
	Trigger()
	Status() watch.Status
	Settings() model.Settings
	Apply(model.Settings) error
}

type viewState int

const (
	viewDashboard viewState = iota
	viewSettings
)

const maxEvents = 200

type AppModel struct {
	ctrl      Controller
	Err       error
	status    string
	statusSeq int
	busy      bool // a start/stop/apply command is in flight

	view     viewState
	snapshot watch.Status
	events   []string

	// Settings form
	inputs  []textinput.Model
	focus   int
	formErr string

	// Sub-models
	logViewport viewport.Model
	spin        spinner.Model

	// Layout
	width, height int

	now func() time.Time
}

func NewAppModel(ctrl Controller) AppModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = accentStyle
	return AppModel{
		ctrl:        ctrl,
		view:        viewDashboard,
		snapshot:    ctrl.Status(),
		inputs:      newForm(),
		logViewport: viewport.New(0, 0),
		spin:        sp,
		now:         time.Now,
	}
}

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, refreshAfter(time.Second))
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logViewport.Width = msg.Width
		m.logViewport.Height = max(msg.Height-headerLines-footerLines, 3)
		m.syncLog()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case CycleEventMsg:
		m.snapshot = m.ctrl.Status()
		m.addEvent(formatEvent(watch.Event(msg)))
		return m, nil

	case actionResultMsg:
		m.busy = false
		m.snapshot = m.ctrl.Status()
		if msg.err != nil {
			if msg.action == "apply" {
				m.formErr = msg.err.Error()
				return m, nil
			}
			m.setStatus(fmt.Sprintf("%s failed: %v", msg.action, msg.err))
			return m, m.clearStatusAfter(3 * time.Second)
		}
		if msg.action == "apply" {
			m.view = viewDashboard
			m.formErr = ""
		}
		m.setStatus(fmt.Sprintf("%s complete", msg.action))
		m.addEvent(fmt.Sprintf("%s  %s", m.now().Format("15:04:05"), msg.action))
		return m, m.clearStatusAfter(2 * time.Second)

	case refreshMsg:
		m.snapshot = m.ctrl.Status()
		return m, refreshAfter(time.Second)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case statusMsg:
		if msg.seq == m.statusSeq {
			m.status = ""
		}
		return m, nil
	}

	var cmd tea.Cmd
	switch m.view {
	case viewSettings:
		m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	case viewDashboard:
		m.logViewport, cmd = m.logViewport.Update(msg)
	}
	return m, cmd
}

func (m *AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// Global keys
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.view {
	case viewDashboard:
		switch key {
		case "q":
			return m, tea.Quit
		case "s":
			if m.busy {
				return m, nil
			}
			m.busy = true
			if m.snapshot.State == watch.StateRunning {
				m.setStatus("Stopping after the current cycle...")
				return m, m.stopCmd()
			}
			m.setStatus("Starting...")
			return m, m.startCmd()
		case "r":
			if m.snapshot.State != watch.StateRunning {
				m.setStatus("Start the watcher first (s)")
				return m, m.clearStatusAfter(2 * time.Second)
			}
			m.ctrl.Trigger()
			m.setStatus("Next cycle requested")
			return m, m.clearStatusAfter(2 * time.Second)
		case "c":
			m.openSettings()
			return m, textinput.Blink
		}
		var cmd tea.Cmd
		m.logViewport, cmd = m.logViewport.Update(msg)
		return m, cmd

	case viewSettings:
		switch key {
		case "esc":
			m.view = viewDashboard
			m.formErr = ""
			return m, nil
		case "tab", "down":
			m.setFocus(m.focus + 1)
			return m, nil
		case "shift+tab", "up":
			m.setFocus(m.focus - 1)
			return m, nil
		case "enter":
			if m.busy {
				return m, nil
			}
			s, err := parseForm(m.inputs)
			if err != nil {
				// The previous settings stay in effect.
				m.formErr = err.Error()
				return m, nil
			}
			m.busy = true
			m.formErr = ""
			m.setStatus("Applying settings...")
			return m, m.applyCmd(s)
		}
		var cmd tea.Cmd
		m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *AppModel) openSettings() {
	fillForm(m.inputs, m.ctrl.Settings())
	m.formErr = ""
	m.view = viewSettings
	m.setFocus(0)
}

func (m *AppModel) setFocus(i int) {
	n := len(m.inputs)
	m.focus = ((i % n) + n) % n
	for j := range m.inputs {
		if j == m.focus {
			m.inputs[j].Focus()
		} else {
			m.inputs[j].Blur()
		}
	}
}

func (m *AppModel) addEvent(line string) {
	m.events = append(m.events, line)
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
	m.syncLog()
}

func (m *AppModel) syncLog() {
	m.logViewport.SetContent(strings.Join(m.events, "\n"))
	m.logViewport.GotoBottom()
}

// Commands

func (m *AppModel) startCmd() tea.Cmd {
	return func() tea.Msg {
		return actionResultMsg{action: "start", err: m.ctrl.Start()}
	}
}

func (m *AppModel) stopCmd() tea.Cmd {
	return func() tea.Msg {
		m.ctrl.Stop()
		return actionResultMsg{action: "stop"}
	}
}

func (m *AppModel) applyCmd(s model.Settings) tea.Cmd {
	return func() tea.Msg {
		return actionResultMsg{action: "apply", err: m.ctrl.Apply(s)}
	}
}

// setStatus replaces the status line; older clear timers no longer apply.
func (m *AppModel) setStatus(s string) {
	m.status = s
	m.statusSeq++
}

// clearStatusAfter clears the current status line after d unless it has
// been replaced in the meantime.
func (m *AppModel) clearStatusAfter(d time.Duration) tea.Cmd {
	seq := m.statusSeq
	return tea.Tick(d, func(time.Time) tea.Msg {
		return statusMsg{seq: seq}
	})
}

func refreshAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

// View renders the appropriate view based on current state.
func (m *AppModel) View() string {
	if m.Err != nil {
		return "Error: " + m.Err.Error() + "\n"
	}

	var b strings.Builder
	switch m.view {
	case viewDashboard:
		b.WriteString(m.statusHeader())
		b.WriteString("\n")
		b.WriteString(m.logViewport.View())
		b.WriteString("\n")
		b.WriteString(dashboardFooter())
	case viewSettings:
		b.WriteString(m.settingsView())
		b.WriteString("\n")
		b.WriteString(settingsFooter())
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.status)
	}
	return b.String()
}
