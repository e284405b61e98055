package midi

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

// ErrScanTimeout is returned when the driver does not answer in time
var ErrScanTimeout = errors.New("port scan timed out")

// DefaultScanTimeout bounds one driver query
const DefaultScanTimeout = 3 * time.Second

// PortEvent is emitted when a port appears or disappears
type PortEvent struct {
	Type PortEventType
	Name string
	In   bool
	Out  bool
}

type PortEventType int

const (
	PortConnected PortEventType = iota
	PortDisconnected
)

func (t PortEventType) String() string {
	if t == PortConnected {
		return "connected"
	}
	return "disconnected"
}

// Ports is a snapshot of the system MIDI ports
type Ports struct {
	In  []string
	Out []string
}

// Scanner watches the system MIDI ports for hot-plug changes
type Scanner struct {
	known    map[string]PortEvent
	mu       sync.RWMutex
	events   chan PortEvent
	pollRate time.Duration
	timeout  time.Duration
}

// NewScanner creates a scanner polling once per second
func NewScanner() *Scanner {
	return &Scanner{
		known:    make(map[string]PortEvent),
		events:   make(chan PortEvent, 16),
		pollRate: time.Second,
		timeout:  DefaultScanTimeout,
	}
}

// Events returns a channel of connect/disconnect events
func (s *Scanner) Events() <-chan PortEvent {
	return s.events
}

// Known returns the ports seen by the last scan, sorted by name
func (s *Scanner) Known() []PortEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PortEvent, 0, len(s.known))
	for _, p := range s.known {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Run starts the polling loop (blocking - run in goroutine)
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollRate)
	defer ticker.Stop()

	s.scan()

	for {
		select {
		case <-ctx.Done():
			close(s.events)
			return
		case <-ticker.C:
			s.scan()
		}
	}
}

// ListPorts returns the system ports, giving up after timeout (some
// drivers hang when the MIDI server is wedged)
func ListPorts(timeout time.Duration) (Ports, error) {
	ch := make(chan Ports, 1)
	go func() {
		var p Ports
		for _, in := range gomidi.GetInPorts() {
			p.In = append(p.In, in.String())
		}
		for _, out := range gomidi.GetOutPorts() {
			p.Out = append(p.Out, out.String())
		}
		ch <- p
	}()

	select {
	case p := <-ch:
		return p, nil
	case <-time.After(timeout):
		return Ports{}, ErrScanTimeout
	}
}

func (s *Scanner) scan() {
	ports, err := ListPorts(s.timeout)
	if err != nil {
		// driver is hung, skip this scan
		return
	}

	seen := make(map[string]PortEvent)
	for _, name := range ports.In {
		p := seen[name]
		p.Name, p.In = name, true
		seen[name] = p
	}
	for _, name := range ports.Out {
		p := seen[name]
		p.Name, p.Out = name, true
		seen[name] = p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, p := range seen {
		if _, ok := s.known[name]; !ok {
			p.Type = PortConnected
			s.events <- p
		}
	}
	for name, p := range s.known {
		if _, ok := seen[name]; !ok {
			p.Type = PortDisconnected
			s.events <- p
		}
	}
	s.known = seen
}
