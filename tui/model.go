package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"midiseq/midi"
	"midiseq/norm"
	"midiseq/sequencer"
	"midiseq/theme"
)

// maxFrames is the number of frames listed
const maxFrames = 16

// Model is the live monitor. The engine loop runs in another goroutine;
// commands are posted to it and the view renders its snapshots.
type Model struct {
	Manager  *sequencer.Manager
	Scanner  *midi.Scanner // may be nil
	Theme    *theme.Theme
	snap     sequencer.Snapshot
	ports    []midi.PortEvent
	status   string
	failed   bool
	quitting bool
}

type UpdateMsg struct{}

type PortEventMsg midi.PortEvent

// StatusMsg carries the result of a command
type StatusMsg struct {
	Cmd string
	Out string
	Err error
}

func NewModel(manager *sequencer.Manager, scanner *midi.Scanner, th *theme.Theme) Model {
	if th == nil {
		th = theme.New(nil)
	}
	return Model{
		Manager: manager,
		Scanner: scanner,
		Theme:   th,
		snap:    manager.Snapshot(),
	}
}

func ListenForUpdates(manager *sequencer.Manager) tea.Cmd {
	return func() tea.Msg {
		<-manager.UpdateChan
		return UpdateMsg{}
	}
}

func ListenForPorts(scanner *midi.Scanner) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-scanner.Events()
		if !ok {
			return nil
		}
		return PortEventMsg(event)
	}
}

// Exec runs a console command inside the engine loop
func Exec(manager *sequencer.Manager, line string) tea.Cmd {
	return func() tea.Msg {
		done := make(chan StatusMsg, 1)
		manager.Post(func() {
			out, err := manager.Exec(line)
			done <- StatusMsg{Cmd: line, Out: out, Err: err}
		})
		return <-done
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{ListenForUpdates(m.Manager)}
	if m.Scanner != nil {
		cmds = append(cmds, ListenForPorts(m.Scanner))
	}
	return tea.Batch(cmds...)
}

var keyCommands = map[string]string{
	"p": "play",
	"r": "rec",
	"s": "stop",
	"i": "idle",
	"x": "shut",
	"0": "goto 0",
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		key := msg.String()
		switch key {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Sequence(Exec(m.Manager, "stop"), tea.Quit)
		case "+", "=":
			return m, Exec(m.Manager, fmt.Sprintf("tempo %d", m.snap.Tempo+5))
		case "-", "_":
			return m, Exec(m.Manager, fmt.Sprintf("tempo %d", m.snap.Tempo-5))
		}
		if cmd, ok := keyCommands[key]; ok {
			return m, Exec(m.Manager, cmd)
		}

	case UpdateMsg:
		m.snap = m.Manager.Snapshot()
		return m, ListenForUpdates(m.Manager)

	case StatusMsg:
		m.snap = m.Manager.Snapshot()
		m.failed = msg.Err != nil
		switch {
		case msg.Err != nil:
			m.status = fmt.Sprintf("%s: %v", msg.Cmd, msg.Err)
		case msg.Out != "":
			m.status = msg.Out
		default:
			m.status = msg.Cmd
		}

	case PortEventMsg:
		ev := midi.PortEvent(msg)
		m.ports = updatePorts(m.ports, ev)
		m.status = fmt.Sprintf("port %s %s", ev.Name, ev.Type)
		return m, ListenForPorts(m.Scanner)
	}

	return m, nil
}

func updatePorts(ports []midi.PortEvent, ev midi.PortEvent) []midi.PortEvent {
	out := ports[:0]
	for _, p := range ports {
		if p.Name != ev.Name {
			out = append(out, p)
		}
	}
	if ev.Type == midi.PortConnected {
		out = append(out, ev)
	}
	return out
}

func (m Model) modeSymbol() (rune, lipgloss.Color) {
	sym := m.Theme.Symbols
	switch m.snap.Mode {
	case sequencer.ModePlay:
		return sym.Play, m.Theme.Success()
	case sequencer.ModeRecord:
		return sym.Record, m.Theme.Warning()
	case sequencer.ModeIdle:
		return sym.Stop, m.Theme.FG()
	}
	return sym.Stop, m.Theme.Muted()
}

func (m Model) frameLine(f sequencer.Frame) string {
	sym := m.Theme.Symbols
	r, color := sym.Closed, m.Theme.Muted()
	switch {
	case f.Tag&norm.TagPass == 0:
		r = sym.Muted
	case f.Tag&norm.TagPending != 0:
		r, color = sym.Pending, m.Theme.Warning()
	case f.Phase&midi.PhaseLast == 0:
		r, color = sym.Open, m.Theme.Level(f.Ev.Val, valueMax(f.Ev))
	}
	style := lipgloss.NewStyle().Foreground(color)
	return style.Render(fmt.Sprintf("%c %-28s %-12v %-16v n=%d", r, f.Ev, f.Phase, f.Flags, f.NEvents))
}

func valueMax(ev midi.Event) uint16 {
	switch ev.Kind {
	case midi.KindBend, midi.KindXCtl:
		return midi.BendMax
	}
	return 127
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	textStyle := lipgloss.NewStyle().Foreground(m.Theme.FG())

	r, color := m.modeSymbol()
	mode := lipgloss.NewStyle().Foreground(color).Render(fmt.Sprintf("%c %s", r, m.snap.Mode))
	header := headerStyle.Render(fmt.Sprintf("midiseq  %3dbpm  tpb:%d  tic:%d", m.snap.Tempo, m.snap.TPB, m.snap.Tic))

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header + "  " + mode)
	out.WriteString("\n")
	out.WriteString(dimStyle.Render(fmt.Sprintf("in:%d  out:%d  recorded:%d  song:%d",
		m.snap.Received, m.snap.Sent, m.snap.Recorded, m.snap.SongLen)))
	out.WriteString("\n\n")

	for _, d := range m.snap.Devices {
		line := fmt.Sprintf("%2d %-24s %s", d.Unit, d.Name, d.Mode)
		if d.Failed {
			out.WriteString(lipgloss.NewStyle().Foreground(m.Theme.Warning()).Render(line + " failed"))
		} else {
			out.WriteString(textStyle.Render(line))
		}
		out.WriteString("\n")
	}
	if len(m.ports) > 0 {
		names := make([]string, len(m.ports))
		for i, p := range m.ports {
			names[i] = p.Name
		}
		out.WriteString(dimStyle.Render("ports: " + strings.Join(names, ", ")))
		out.WriteString("\n")
	}
	out.WriteString("\n")

	frames := m.snap.Frames
	if len(frames) > maxFrames {
		frames = frames[len(frames)-maxFrames:]
	}
	for _, f := range frames {
		out.WriteString(m.frameLine(f))
		out.WriteString("\n")
	}
	if len(m.snap.Frames) == 0 {
		out.WriteString(dimStyle.Render("no frames"))
		out.WriteString("\n")
	}

	if m.status != "" {
		out.WriteString("\n")
		style := textStyle
		if m.failed {
			style = lipgloss.NewStyle().Foreground(m.Theme.Warning())
		}
		out.WriteString(style.Render(m.status))
	}
	out.WriteString("\n\n")
	out.WriteString(dimStyle.Render("p:play  r:rec  s:stop  i:idle  x:shut  0:rewind  +/-:tempo  q:quit"))

	return out.String()
}
