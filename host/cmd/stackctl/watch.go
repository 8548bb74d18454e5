package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"stackctl/protocol"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(10)

	busyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true)

	idleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2"))

	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	watchErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")).
			Bold(true)
)

const barWidth = 30

// rigControl is the part of rig.Rig the watch view drives
type rigControl interface {
	Progress(ctx context.Context) (*protocol.Progress, error)
	Stack(ctx context.Context) error
	Stop(ctx context.Context) error
	Photo(ctx context.Context) error
	Home(ctx context.Context) error
}

type tickMsg time.Time

type progressMsg struct {
	progress *protocol.Progress
	at       time.Time
}

type actionMsg string

type errMsg struct{ err error }

// watchModel is the bubbletea model of the live progress view
type watchModel struct {
	rig      rigControl
	port     string
	interval time.Duration
	timeout  time.Duration

	progress   *protocol.Progress
	lastUpdate time.Time
	lastAction string
	err        error
}

func newWatchModel(r rigControl, port string, interval, timeout time.Duration) watchModel {
	if timeout <= 0 {
		timeout = interval
	}
	return watchModel{rig: r, port: port, interval: interval, timeout: timeout}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.fetch())
}

func (m watchModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m watchModel) fetch() tea.Cmd {
	r, timeout := m.rig, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		p, err := r.Progress(ctx)
		if err != nil {
			return errMsg{err}
		}
		return progressMsg{progress: p, at: time.Now()}
	}
}

func (m watchModel) action(name string, fn func(context.Context) error) tea.Cmd {
	timeout := m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			return errMsg{err}
		}
		return actionMsg(name)
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "s":
			return m, m.action("stack", m.rig.Stack)
		case "x":
			return m, m.action("stop", m.rig.Stop)
		case "p":
			return m, m.action("photo", m.rig.Photo)
		case "h":
			return m, m.action("home", m.rig.Home)
		case "r":
			return m, m.fetch()
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.tick(), m.fetch())

	case progressMsg:
		m.progress = msg.progress
		m.lastUpdate = msg.at
		m.err = nil
		return m, nil

	case actionMsg:
		m.lastAction = string(msg)
		m.err = nil
		return m, m.fetch()

	case errMsg:
		m.err = msg.err
		return m, nil
	}
	return m, nil
}

func (m watchModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("stackctl watch " + m.port))
	sb.WriteString("\n\n")

	p := m.progress
	if p == nil {
		sb.WriteString("waiting for progress…\n")
	} else {
		state := idleStyle.Render(p.StateName())
		if p.Busy() {
			state = busyStyle.Render(p.StateName())
		}
		fmt.Fprintf(&sb, "%s%s\n", labelStyle.Render("state"), state)
		fmt.Fprintf(&sb, "%s%s\n", labelStyle.Render("step"), p.SubStateName())
		fmt.Fprintf(&sb, "%s%d / %d\n", labelStyle.Render("photo"), p.CurrentStep, p.StackCount)
		fmt.Fprintf(&sb, "%s%s %3.0f%%\n", labelStyle.Render("progress"), progressBar(p.Fraction()), p.Fraction()*100)
		fmt.Fprintf(&sb, "%s%d ms\n", labelStyle.Render("elapsed"), p.CurrentDuration)
		if p.IsStackFinished {
			fmt.Fprintf(&sb, "%s%s\n", labelStyle.Render(""), idleStyle.Render("stack finished"))
		}
	}

	sb.WriteString("\n")
	if m.err != nil {
		sb.WriteString(watchErrorStyle.Render("error: " + m.err.Error()))
		sb.WriteString("\n")
	} else if m.lastAction != "" {
		sb.WriteString("sent " + m.lastAction + "\n")
	}
	if !m.lastUpdate.IsZero() {
		sb.WriteString(helpStyle.Render("updated " + m.lastUpdate.Format(time.TimeOnly)))
		sb.WriteString("\n")
	}
	sb.WriteString(helpStyle.Render("s stack • x stop • p photo • h home • r refresh • q quit"))
	sb.WriteString("\n")
	return sb.String()
}

func progressBar(fraction float64) string {
	filled := int(fraction*barWidth + 0.5)
	if filled > barWidth {
		filled = barWidth
	}
	if filled < 0 {
		filled = 0
	}
	return barStyle.Render(strings.Repeat("█", filled)) + strings.Repeat("░", barWidth-filled)
}

func newWatchCmd(a *app) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live view of the stacking progress",
		Long: `watch polls get_progress and shows the stack state full screen.

Key bindings:
  s  start a stack     x  stop
  p  take a photo      h  home
  r  refresh now       q  quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval < time.Duration(protocol.MinStatusInterval)*time.Millisecond {
				return fmt.Errorf("interval must be at least %dms", protocol.MinStatusInterval)
			}

			r, stop, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer stop()

			m := newWatchModel(r, a.cfg.Port, interval, a.cfg.RequestTimeout)
			p := tea.NewProgram(m,
				tea.WithAltScreen(),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()),
			)
			_, err = p.Run()
			return err
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 500*time.Millisecond, "progress poll interval")
	return cmd
}
