package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"scribe/internal/ipc"
)

type PanelCommand struct {
	Refresh time.Duration `long:"refresh" default:"1s" description:"Status poll interval"`
}

const (
	maxLogs   = 6
	boardRows = 4
	boardCols = 13
	firstCol  = -2
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	boardStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	logStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
)

type replyMsg struct {
	cmd   string
	reply ipc.Reply
	err   error
}

type statusMsg struct {
	status *ipc.Status
	err    error
}

type panelModel struct {
	socket  string
	refresh time.Duration

	input textinput.Model
	spin  spinner.Model

	status  *ipc.Status
	linkErr error
	pending string
	logs    []string
	width   int
}

func newPanel(socket string, refresh time.Duration) panelModel {
	ti := textinput.New()
	ti.Placeholder = "text to write"
	ti.CharLimit = 200
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return panelModel{socket: socket, refresh: refresh, input: ti, spin: sp}
}

func (m *panelModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

func (m panelModel) call(msg ipc.ControlMessage) tea.Cmd {
	socket := m.socket
	return func() tea.Msg {
		r, err := ipc.SendCommand(context.Background(), socket, msg)
		return replyMsg{cmd: msg.Cmd, reply: r, err: err}
	}
}

func (m panelModel) poll(after time.Duration) tea.Cmd {
	socket := m.socket
	return tea.Tick(after, func(time.Time) tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		r, err := ipc.SendCommand(ctx, socket, ipc.ControlMessage{Cmd: ipc.CmdStatus})
		return statusMsg{status: r.Status, err: err}
	})
}

func (m panelModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.poll(0))
}

// keys maps shortcuts to daemon commands.
var keys = map[string]string{
	"ctrl+e": ipc.CmdErase,
	"ctrl+p": ipc.CmdPaint,
	"ctrl+r": ipc.CmdReset,
	"ctrl+t": ipc.CmdTrigger,
	"ctrl+n": ipc.CmdRenew,
	"ctrl+q": ipc.CmdQuit,
}

func (m panelModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		key := msg.String()
		switch key {
		case "esc", "ctrl+c":
			return m, tea.Quit
		case "ctrl+x":
			// emergency stop never waits for the running command
			m.addLog("emergency stop")
			return m, m.call(ipc.ControlMessage{Cmd: ipc.CmdStop})
		}

		if m.pending != "" {
			if _, ok := keys[key]; ok || key == "enter" || key == "alt+enter" {
				m.addLog("busy with " + m.pending)
				return m, nil
			}
		}

		if cmd, ok := keys[key]; ok {
			return m.start(ipc.ControlMessage{Cmd: cmd})
		}
		if key == "enter" || key == "alt+enter" {
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			cmd := ipc.CmdWrite
			if key == "alt+enter" {
				cmd = ipc.CmdSay
			}
			return m.start(ipc.ControlMessage{Cmd: cmd, Text: text})
		}

	case replyMsg:
		if msg.cmd == m.pending {
			m.pending = ""
		}
		switch {
		case msg.err != nil:
			m.addLog(errStyle.Render(fmt.Sprintf("%s: %v", msg.cmd, msg.err)))
		case !msg.reply.Ok:
			m.addLog(errStyle.Render(fmt.Sprintf("%s: %s", msg.cmd, msg.reply.Error)))
		default:
			m.addLog(okStyle.Render(describe(msg.cmd, msg.reply)))
		}
		if msg.reply.Status != nil {
			m.status = msg.reply.Status
		}
		return m, nil

	case statusMsg:
		m.linkErr = msg.err
		if msg.status != nil {
			m.status = msg.status
		}
		return m, m.poll(m.refresh)

	case spinner.TickMsg:
		if m.pending == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m panelModel) start(msg ipc.ControlMessage) (tea.Model, tea.Cmd) {
	m.pending = msg.Cmd
	label := msg.Cmd
	if msg.Text != "" {
		label += fmt.Sprintf(" %q", msg.Text)
	}
	m.addLog(label)
	return m, tea.Batch(m.call(msg), m.spin.Tick)
}

func describe(cmd string, r ipc.Reply) string {
	out := cmd + ": ok"
	if r.Intent != "" && r.Intent != cmd {
		out += " (" + r.Intent + ")"
	}
	if len(r.Paths) > 0 {
		out += fmt.Sprintf(", %d letters", len(r.Paths))
	}
	if r.Skipped != "" {
		out += fmt.Sprintf(", skipped %q", r.Skipped)
	}
	if r.Full {
		out += ", board full"
	}
	return out
}

// renderBoard draws the writing grid: written cells, the cursor and free
// cells.
func renderBoard(st *ipc.Status) string {
	var sb strings.Builder
	for row := 0; row < boardRows; row++ {
		for i := 0; i < boardCols; i++ {
			col := firstCol + i
			switch {
			case st == nil:
				sb.WriteString("·")
			case row < st.Row || (row == st.Row && col < st.Col) || st.Full:
				sb.WriteString("█")
			case row == st.Row && col == st.Col:
				sb.WriteString("▸")
			default:
				sb.WriteString("·")
			}
		}
		if row < boardRows-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func (m panelModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("scribe"))
	switch {
	case m.linkErr != nil:
		sb.WriteString(errStyle.Render("  daemon not reachable"))
	case m.status != nil:
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  session %.8s", m.status.Session)))
		if m.status.Quit {
			sb.WriteString(errStyle.Render("  closed: " + m.status.Reason + " (ctrl+n renews)"))
		}
	}
	if m.pending != "" {
		sb.WriteString("  " + m.spin.View() + " " + m.pending)
	}
	sb.WriteString("\n\n")

	sb.WriteString(boardStyle.Render(renderBoard(m.status)))
	sb.WriteString("\n\n")
	sb.WriteString(m.input.View())
	sb.WriteString("\n\n")

	help := "enter write · alt+enter ask · ctrl+e erase · ctrl+p paint · ctrl+r reset · ctrl+t listen · ctrl+x STOP · ctrl+q quit · esc exit"
	sb.WriteString(statusStyle.Render(help))
	sb.WriteString("\n")

	var lines string
	if len(m.logs) == 0 {
		lines = statusStyle.Render("no commands yet")
	} else {
		lines = strings.Join(m.logs, "\n")
	}
	style := logStyle
	if m.width > 4 {
		style = style.Width(m.width - 4)
	}
	sb.WriteString(style.Render(lines))
	sb.WriteString("\n")
	return sb.String()
}

func (c *PanelCommand) Execute(args []string) error {
	p := tea.NewProgram(newPanel(opts.Socket, c.Refresh))
	_, err := p.Run()
	return err
}
