package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"

	"github.com/rsm23/netflix-home-auto-confirm/internal/model"
)

const (
	fieldInterval = iota
	fieldCloseDelay
	fieldOutputDir
	fieldOpenOnce
	fieldAutoClick
	fieldCount
)

var fieldLabels = [fieldCount]string{
	"Interval (s)",
	"Close delay (s)",
	"Output dir",
	"Open once (y/n)",
	"Auto click (y/n)",
}

func newForm() []textinput.Model {
	inputs := make([]textinput.Model, fieldCount)
	for i := range inputs {
		ti := textinput.New()
		ti.Prompt = ""
		ti.CharLimit = 256
		ti.Width = 40
		inputs[i] = ti
	}
	inputs[fieldInterval].Placeholder = "60"
	inputs[fieldCloseDelay].Placeholder = "10"
	inputs[fieldOutputDir].Placeholder = "./out"
	return inputs
}

func fillForm(inputs []textinput.Model, s model.Settings) {
	inputs[fieldInterval].SetValue(strconv.Itoa(int(s.Interval / time.Second)))
	inputs[fieldCloseDelay].SetValue(strconv.Itoa(int(s.CloseDelay / time.Second)))
	inputs[fieldOutputDir].SetValue(s.OutputDir)
	inputs[fieldOpenOnce].SetValue(yesNo(s.OpenOnce))
	inputs[fieldAutoClick].SetValue(yesNo(s.AutoClick))
}

// parseForm converts and validates the form.
func parseForm(inputs []textinput.Model) (model.Settings, error) {
	var s model.Settings
	interval, err := strconv.Atoi(strings.TrimSpace(inputs[fieldInterval].Value()))
	if err != nil {
		return s, fmt.Errorf("interval: not a whole number of seconds")
	}
	closeDelay, err := strconv.Atoi(strings.TrimSpace(inputs[fieldCloseDelay].Value()))
	if err != nil {
		return s, fmt.Errorf("close delay: not a whole number of seconds")
	}
	openOnce, err := parseYesNo(inputs[fieldOpenOnce].Value())
	if err != nil {
		return s, fmt.Errorf("open once: %w", err)
	}
	autoClick, err := parseYesNo(inputs[fieldAutoClick].Value())
	if err != nil {
		return s, fmt.Errorf("auto click: %w", err)
	}
	s = model.Settings{
		Interval:   time.Duration(interval) * time.Second,
		CloseDelay: time.Duration(closeDelay) * time.Second,
		OutputDir:  strings.TrimSpace(inputs[fieldOutputDir].Value()),
		OpenOnce:   openOnce,
		AutoClick:  autoClick,
	}
	if err := s.Validate(); err != nil {
		return model.Settings{}, err
	}
	return s, nil
}

func yesNo(b bool) string {
	if b {
		return "y"
	}
	return "n"
}

func parseYesNo(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "y", "yes", "true", "1", "on":
		return true, nil
	case "n", "no", "false", "0", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("want y or n, got %q", v)
}

func (m *AppModel) settingsView() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Settings"))
	b.WriteString("\n")
	for i, in := range m.inputs {
		cursor := "  "
		if i == m.focus {
			cursor = accentStyle.Render("> ")
		}
		b.WriteString(cursor + formLabelStyle.Render(fieldLabels[i]) + in.View() + "\n")
	}
	if m.formErr != "" {
		b.WriteString("\n" + errStyle.Render(m.formErr) + "\n")
	}
	return b.String()
}

func settingsFooter() string {
	return footerStyle.Render("tab: next field  enter: apply  esc: cancel")
}
