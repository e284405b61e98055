package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"midiseq/midi"
	"midiseq/sequencer"
)

func runManager(t *testing.T) *sequencer.Manager {
	t.Helper()
	m, err := sequencer.NewManager(sequencer.Options{})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		m.Close()
	})
	return m
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends a key and feeds the command result back to the model
func press(t *testing.T, m Model, k string) Model {
	t.Helper()
	next, cmd := m.Update(key(k))
	if cmd == nil {
		t.Fatalf("key %q: no command", k)
	}
	next, _ = next.Update(cmd())
	return next.(Model)
}

func TestKeys(t *testing.T) {
	m := NewModel(runManager(t), nil, nil)
	if v := m.View(); !strings.Contains(v, "idle") || !strings.Contains(v, "120bpm") {
		t.Fatalf("view:\n%s", v)
	}

	m = press(t, m, "p")
	if m.snap.Mode != sequencer.ModePlay || !strings.Contains(m.View(), "play") {
		t.Fatalf("mode %v", m.snap.Mode)
	}
	m = press(t, m, "+")
	if m.snap.Tempo != 125 {
		t.Fatalf("tempo %d", m.snap.Tempo)
	}
	m = press(t, m, "s")
	if m.snap.Mode != sequencer.ModeStopped {
		t.Fatalf("mode %v", m.snap.Mode)
	}

	if _, cmd := m.Update(key("z")); cmd != nil {
		t.Fatal("unbound key produced a command")
	}
}

func TestStatus(t *testing.T) {
	m := NewModel(runManager(t), nil, nil)
	next, _ := m.Update(StatusMsg{Cmd: "tempo 300", Err: errors.New("tempo out of range")})
	m = next.(Model)
	if !m.failed || !strings.Contains(m.View(), "tempo 300: tempo out of range") {
		t.Fatalf("view:\n%s", m.View())
	}
}

func TestPorts(t *testing.T) {
	m := NewModel(runManager(t), nil, nil)
	m.ports = updatePorts(m.ports, midi.PortEvent{Type: midi.PortConnected, Name: "a", In: true})
	m.ports = updatePorts(m.ports, midi.PortEvent{Type: midi.PortConnected, Name: "b", Out: true})
	m.ports = updatePorts(m.ports, midi.PortEvent{Type: midi.PortDisconnected, Name: "a"})
	if len(m.ports) != 1 || m.ports[0].Name != "b" {
		t.Fatalf("ports %+v", m.ports)
	}
	if !strings.Contains(m.View(), "ports: b") {
		t.Fatalf("view:\n%s", m.View())
	}
}
