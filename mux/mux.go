// Package mux is the single-threaded scheduler of the engine. Each call to
// Poll waits on the devices, the console and the clock, then dispatches
// device input, clock advance and console input in that order.
package mux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"midiseq/debug"
	"midiseq/midi"
)

var (
	// ErrBusy is returned by Sleep while the loop is polling
	ErrBusy = errors.New("mux: loop is running")
	// ErrInterrupted is returned by Poll after a user interrupt
	ErrInterrupted = errors.New("interrupted")
)

// Handler receives what the loop produces
type Handler interface {
	// Input is called with the bytes read from a device
	Input(unit uint8, data []byte)
	// Error is called once when a device fails; it is not polled anymore
	Error(unit uint8, err error)
	// Advance is called with the time elapsed while the clock runs, in
	// 24ths of microsecond; delta is never zero
	Advance(delta uint64)
}

// PollFunc waits for descriptors, like poll(2); timeout is in milliseconds
type PollFunc func(fds []unix.PollFd, timeout int) (int, error)

// Options configure a Mux; zero values select the defaults
type Options struct {
	Clock   Clock
	Poll    PollFunc
	Exit    func(code int)
	Log     *slog.Logger
	Console *Console
}

// Mux multiplexes device input, console input and the clock
type Mux struct {
	Timers Timers

	h       Handler
	devs    []midi.Device
	failed  map[uint8]bool
	cons    *Console
	clock   Clock
	poll    PollFunc
	exit    func(int)
	log     *slog.Logger
	buf     []byte
	open    bool
	last    time.Time
	busy    atomic.Bool
	intr    atomic.Bool
	wakeR   int
	wakeW   int
	mu      sync.Mutex
	posted  []func()
	stopSig func()
}

// New creates a multiplexer dispatching to h
func New(h Handler, opts Options) (*Mux, error) {
	m := &Mux{
		h:      h,
		failed: make(map[uint8]bool),
		cons:   opts.Console,
		clock:  opts.Clock,
		poll:   opts.Poll,
		exit:   opts.Exit,
		log:    debug.Or(opts.Log),
		buf:    make([]byte, 1024),
	}
	if m.clock == nil {
		m.clock = SystemClock
	}
	if m.poll == nil {
		m.poll = unix.Poll
	}
	if m.exit == nil {
		m.exit = os.Exit
	}
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, fmt.Errorf("wake pipe: %w", err)
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, fmt.Errorf("wake pipe: %w", err)
		}
	}
	m.wakeR, m.wakeW = fds[0], fds[1]
	return m, nil
}

// Close releases the wake pipe and the signal handler
func (m *Mux) Close() error {
	if m.stopSig != nil {
		m.stopSig()
		m.stopSig = nil
	}
	err := errors.Join(unix.Close(m.wakeR), unix.Close(m.wakeW))
	m.wakeR, m.wakeW = -1, -1
	return err
}

// Add registers a device; a device with the same unit is replaced
func (m *Mux) Add(d midi.Device) {
	delete(m.failed, d.Unit())
	for i, o := range m.devs {
		if o.Unit() == d.Unit() {
			m.devs[i] = d
			return
		}
	}
	m.devs = append(m.devs, d)
}

// Remove unregisters a device and returns it
func (m *Mux) Remove(unit uint8) (midi.Device, error) {
	for i, d := range m.devs {
		if d.Unit() == unit {
			m.devs = append(m.devs[:i], m.devs[i+1:]...)
			delete(m.failed, unit)
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: unit %d", midi.ErrUnknownDevice, unit)
}

// Device returns the device of a unit
func (m *Mux) Device(unit uint8) (midi.Device, error) {
	for _, d := range m.devs {
		if d.Unit() == unit {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: unit %d", midi.ErrUnknownDevice, unit)
}

// Devices returns the registered devices
func (m *Mux) Devices() []midi.Device {
	return append([]midi.Device(nil), m.devs...)
}

// Failed reports whether a unit failed and is no longer polled
func (m *Mux) Failed(unit uint8) bool { return m.failed[unit] }

// StartClock starts measuring time; Poll then wakes up every millisecond
// and reports elapsed time to Advance
func (m *Mux) StartClock() {
	m.open = true
	m.last = m.clock.Now()
}

// StopClock stops measuring time
func (m *Mux) StopClock() {
	m.open = false
}

// Busy reports whether Poll is running
func (m *Mux) Busy() bool { return m.busy.Load() }

// ClockRunning reports whether the clock is started
func (m *Mux) ClockRunning() bool { return m.open }

// Wake makes a blocked Poll return; safe from any goroutine
func (m *Mux) Wake() {
	unix.Write(m.wakeW, []byte{0})
}

// Post queues fn to run inside the loop; safe from any goroutine
func (m *Mux) Post(fn func()) {
	m.mu.Lock()
	m.posted = append(m.posted, fn)
	m.mu.Unlock()
	m.Wake()
}

// Interrupt requests the loop to abort the current operation. If the
// previous request was not consumed yet, the process exits.
func (m *Mux) Interrupt() {
	if m.intr.Swap(true) {
		m.log.Error("interrupted twice, exiting")
		m.exit(1)
		return
	}
	m.Wake()
}

// HandleSignals routes SIGINT to Interrupt until Close
func (m *Mux) HandleSignals() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ch:
				m.Interrupt()
			case <-done:
				return
			}
		}
	}()
	m.stopSig = func() {
		signal.Stop(ch)
		close(done)
	}
}

func (m *Mux) fatal(what string, err error) error {
	err = fmt.Errorf("%s: %w", what, err)
	m.log.Error("scheduler failure", "err", err)
	m.exit(1)
	return err
}

// Poll runs one iteration of the loop
func (m *Mux) Poll() error {
	m.busy.Store(true)
	defer m.busy.Store(false)

	if m.intr.Swap(false) {
		m.log.Info("interrupt")
		return ErrInterrupted
	}

	pfds := []unix.PollFd{{Fd: int32(m.wakeR), Events: unix.POLLIN}}
	consIdx := -1
	if m.cons != nil && m.cons.wants() {
		consIdx = len(pfds)
		pfds = append(pfds, unix.PollFd{Fd: int32(m.cons.fd), Events: unix.POLLIN})
	}
	type slot struct {
		dev        midi.Device
		start, end int
	}
	var slots []slot
	for _, d := range m.devs {
		if m.failed[d.Unit()] || d.Mode()&midi.ModeIn == 0 {
			continue
		}
		fds := d.PollFD(unix.POLLIN)
		if len(fds) == 0 {
			continue
		}
		slots = append(slots, slot{d, len(pfds), len(pfds) + len(fds)})
		pfds = append(pfds, fds...)
	}

	timeout := -1
	if m.open {
		timeout = 1
	}
	if _, err := m.poll(pfds, timeout); err != nil {
		if err == unix.EINTR {
			return nil
		}
		return m.fatal("poll", err)
	}

	if pfds[0].Revents != 0 {
		m.drainWake()
	}

	for _, s := range slots {
		rev := s.dev.Revents(pfds[s.start:s.end])
		switch {
		case rev&unix.POLLIN != 0:
			n, err := s.dev.Read(m.buf)
			if err != nil || s.dev.EOF() {
				m.fail(s.dev, err)
				continue
			}
			if n > 0 {
				m.h.Input(s.dev.Unit(), m.buf[:n])
			}
		case rev&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0:
			m.fail(s.dev, io.ErrUnexpectedEOF)
		}
	}

	if m.open {
		now := m.clock.Now()
		// the clock may go backwards; skip until it catches up
		if delta := Usec24(now.Sub(m.last)); delta > 0 {
			// the part below a microsecond is carried to the next wakeup
			m.last = m.last.Add(time.Duration(delta/24) * time.Microsecond)
			m.Timers.Update(delta)
			m.h.Advance(delta)
		}
	}

	if consIdx >= 0 && pfds[consIdx].Revents != 0 {
		m.cons.fill()
	}

	m.runPosted()
	return nil
}

func (m *Mux) fail(d midi.Device, err error) {
	if err == nil {
		err = io.EOF
	}
	m.failed[d.Unit()] = true
	m.log.Warn("device failed", "unit", d.Unit(), "name", d.Name(), "err", err)
	m.h.Error(d.Unit(), err)
}

func (m *Mux) drainWake() {
	var b [64]byte
	for {
		n, err := unix.Read(m.wakeR, b[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (m *Mux) runPosted() {
	m.mu.Lock()
	fns := m.posted
	m.posted = nil
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Run polls until ctx is done or Poll fails
func (m *Mux) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, m.Wake)
	defer stop()
	for ctx.Err() == nil {
		if err := m.Poll(); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// Sleep blocks for d without servicing anything, then resynchronizes the
// clock so the pause is not reported to Advance. It must be called from
// the goroutine driving Poll, between two Poll calls (a console command,
// for instance); from inside Poll it fails with ErrBusy. The clock fields
// are not guarded, so other goroutines must Post instead.
func (m *Mux) Sleep(d time.Duration) error {
	if m.busy.Load() {
		return ErrBusy
	}
	deadline := time.Now().Add(d)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			break
		}
		ms := int((left + time.Millisecond - 1) / time.Millisecond)
		if _, err := m.poll(nil, ms); err != nil && err != unix.EINTR {
			return m.fatal("sleep", err)
		}
	}
	if m.open {
		m.last = m.clock.Now()
	}
	return nil
}
