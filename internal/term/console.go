package term

import (
	"fmt"
	"io"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

var (
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	stepStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

// Console is the interactive UI implementation backed by huh forms and
// lipgloss-styled output.
type Console struct {
	out io.Writer
}

// NewConsole returns a Console writing non-interactive output to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Select(title string, options []string, preselect string) (string, error) {
	opts := make([]huh.Option[string], 0, len(options))
	for _, o := range options {
		opts = append(opts, huh.NewOption(o, o))
	}

	selected := preselect
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(title).
				Options(opts...).
				Value(&selected),
		),
	)
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("selection canceled: %w", err)
	}
	return selected, nil
}

func (c *Console) Choose(title string, options []string) (string, error) {
	return c.Select(title, options, "")
}

func (c *Console) Confirm(title string) (bool, error) {
	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Yes").
				Negative("No").
				Value(&confirmed),
		),
	)
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("confirmation canceled: %w", err)
	}
	return confirmed, nil
}

func (c *Console) Input(title string) (string, error) {
	var value string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				Value(&value),
		),
	)
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("input canceled: %w", err)
	}
	return value, nil
}

func (c *Console) Progress(title string) Progress {
	fmt.Fprintln(c.out, stepStyle.Render(title))
	return &consoleProgress{out: c.out}
}

func (c *Console) Log(line string) {
	fmt.Fprintln(c.out, line)
}

func (c *Console) Notify(level Level, message string) {
	var prefix string
	switch level {
	case LevelWarn:
		prefix = warnStyle.Render("WARN")
	case LevelError:
		prefix = errorStyle.Render("ERROR")
	default:
		prefix = infoStyle.Render("INFO")
	}
	fmt.Fprintf(c.out, "%s %s\n", prefix, message)
}

type consoleProgress struct {
	out io.Writer
}

func (p *consoleProgress) Step(percent int, message string) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	fmt.Fprintf(p.out, "%s %s\n", stepStyle.Render(fmt.Sprintf("[%3d%%]", percent)), message)
}

func (p *consoleProgress) Done() {}
