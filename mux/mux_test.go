package mux

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"midiseq/midi"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time            { return c.t }
func (c *fakeClock) Add(d time.Duration)       { c.t = c.t.Add(d) }
func newClock() *fakeClock                     { return &fakeClock{t: time.Unix(1000, 0)} }
func (h *recorder) Input(unit uint8, b []byte) { h.log("in %d % x", unit, b) }
func (h *recorder) Error(unit uint8, err error) {
	h.log("err %d", unit)
}
func (h *recorder) Advance(delta uint64) { h.log("adv %d", delta) }

type recorder struct {
	calls []string
}

func (h *recorder) log(format string, args ...any) {
	h.calls = append(h.calls, fmt.Sprintf(format, args...))
}

func (h *recorder) take() []string {
	c := h.calls
	h.calls = nil
	return c
}

func expectCalls(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("call %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func newMux(t *testing.T, opts Options) (*Mux, *recorder, *fakeClock) {
	t.Helper()
	h := &recorder{}
	clk := newClock()
	if opts.Clock == nil {
		opts.Clock = clk
	}
	m, err := New(h, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	return m, h, clk
}

func newDevice(t *testing.T, unit uint8) *midi.VirtualDevice {
	t.Helper()
	d, err := midi.NewVirtual(unit, fmt.Sprintf("virt%d", unit))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestInputThenAdvance(t *testing.T) {
	m, h, clk := newMux(t, Options{})
	d := newDevice(t, 3)
	m.Add(d)
	m.StartClock()

	if err := d.Feed([]byte{0x90, 60, 100}); err != nil {
		t.Fatal(err)
	}
	clk.Add(2 * time.Millisecond)
	if err := m.Poll(); err != nil {
		t.Fatal(err)
	}
	expectCalls(t, h.take(), "in 3 90 3c 64", "adv 48000")
}

func TestClockBackwards(t *testing.T) {
	m, h, clk := newMux(t, Options{})
	m.StartClock()

	clk.Add(-5 * time.Second)
	if err := m.Poll(); err != nil {
		t.Fatal(err)
	}
	expectCalls(t, h.take())

	// less than a microsecond is not reported either
	clk.Add(5*time.Second + 500*time.Nanosecond)
	if err := m.Poll(); err != nil {
		t.Fatal(err)
	}
	expectCalls(t, h.take())

	clk.Add(time.Microsecond)
	if err := m.Poll(); err != nil {
		t.Fatal(err)
	}
	expectCalls(t, h.take(), "adv 24")
}

func TestClockRemainder(t *testing.T) {
	m, h, clk := newMux(t, Options{})
	m.StartClock()

	var total uint64
	for i := 0; i < 200; i++ {
		clk.Add(1500 * time.Nanosecond)
		if err := m.Poll(); err != nil {
			t.Fatal(err)
		}
		for _, c := range h.take() {
			var d uint64
			if _, err := fmt.Sscanf(c, "adv %d", &d); err != nil {
				t.Fatalf("call %q", c)
			}
			total += d
		}
	}
	// 300µs elapsed, none of it lost to rounding
	if total != 300*24 {
		t.Fatalf("advanced %d, want %d", total, 300*24)
	}
}

func TestClockStopped(t *testing.T) {
	m, h, clk := newMux(t, Options{})
	d := newDevice(t, 0)
	m.Add(d)
	d.Feed([]byte{0xf8})
	clk.Add(time.Second)
	if err := m.Poll(); err != nil {
		t.Fatal(err)
	}
	expectCalls(t, h.take(), "in 0 f8")
}

func TestDeviceEOF(t *testing.T) {
	m, h, _ := newMux(t, Options{})
	a, b := newDevice(t, 1), newDevice(t, 2)
	m.Add(a)
	m.Add(b)
	m.StartClock()

	a.CloseInput()
	if err := m.Poll(); err != nil {
		t.Fatal(err)
	}
	expectCalls(t, h.take(), "err 1")
	if !m.Failed(1) || m.Failed(2) {
		t.Fatal("failed flags")
	}

	b.Feed([]byte{0xfe})
	if err := m.Poll(); err != nil {
		t.Fatal(err)
	}
	expectCalls(t, h.take(), "in 2 fe")
}

func TestInterrupt(t *testing.T) {
	exits := 0
	m, _, _ := newMux(t, Options{Exit: func(int) { exits++ }})

	m.Interrupt()
	if err := m.Poll(); !errors.Is(err, ErrInterrupted) {
		t.Fatalf("got %v", err)
	}
	m.StartClock()
	if err := m.Poll(); err != nil {
		t.Fatalf("interrupt not cleared: %v", err)
	}

	m.Interrupt()
	m.Interrupt()
	if exits != 1 {
		t.Fatalf("exits %d", exits)
	}
}

func TestPollFailure(t *testing.T) {
	code := -1
	m, _, _ := newMux(t, Options{
		Exit: func(c int) { code = c },
		Poll: func([]unix.PollFd, int) (int, error) { return 0, unix.EBADF },
	})
	if err := m.Poll(); !errors.Is(err, unix.EBADF) || code != 1 {
		t.Fatalf("err %v code %d", err, code)
	}

	m2, h, _ := newMux(t, Options{
		Exit: func(int) { t.Fatal("exit on EINTR") },
		Poll: func([]unix.PollFd, int) (int, error) { return 0, unix.EINTR },
	})
	if err := m2.Poll(); err != nil {
		t.Fatal(err)
	}
	expectCalls(t, h.take())
}

func TestSleep(t *testing.T) {
	m, h, clk := newMux(t, Options{})
	m.StartClock()

	var inside error
	m.Post(func() { inside = m.Sleep(time.Millisecond) })
	if err := m.Poll(); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(inside, ErrBusy) {
		t.Fatalf("sleep inside loop: %v", inside)
	}
	h.take()

	clk.Add(time.Second)
	if err := m.Sleep(time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := m.Poll(); err != nil {
		t.Fatal(err)
	}
	expectCalls(t, h.take())
}

func TestPostWakesLoop(t *testing.T) {
	m, _, _ := newMux(t, Options{})
	ran := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		m.Post(func() { close(ran) })
	}()
	for {
		if err := m.Poll(); err != nil {
			t.Fatal(err)
		}
		select {
		case <-ran:
			return
		default:
		}
	}
}

func TestConsole(t *testing.T) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		t.Fatal(err)
	}
	defer unix.Close(fds[0])
	m, h, clk := newMux(t, Options{Console: NewConsole(fds[0])})
	d := newDevice(t, 0)
	m.Add(d)
	m.StartClock()

	unix.Write(fds[1], []byte("play\ntempo 100\nsh"))
	d.Feed([]byte{0xfe})
	clk.Add(time.Millisecond)

	line, err := m.ReadLine()
	if err != nil || line != "play" {
		t.Fatalf("line %q err %v", line, err)
	}
	expectCalls(t, h.take(), "in 0 fe", "adv 24000")

	if line, err := m.ReadLine(); err != nil || line != "tempo 100" {
		t.Fatalf("line %q err %v", line, err)
	}
	unix.Close(fds[1])
	if line, err := m.ReadLine(); err != nil || line != "sh" {
		t.Fatalf("line %q err %v", line, err)
	}
	if _, err := m.ReadLine(); err != io.EOF {
		t.Fatalf("got %v, want EOF", err)
	}
}

func TestTimers(t *testing.T) {
	var tm Timers
	var fired []int
	tm.Schedule(30, func() { fired = append(fired, 30) })
	tm.Schedule(10, func() { fired = append(fired, 10) })
	cancel := tm.Schedule(20, func() { fired = append(fired, 20) })
	tm.Schedule(10, func() {
		fired = append(fired, 11)
		tm.Schedule(0, func() { fired = append(fired, 12) })
	})
	cancel()

	tm.Update(15)
	tm.Update(15)
	want := []int{10, 11, 12, 30}
	if fmt.Sprint(fired) != fmt.Sprint(want) || tm.Len() != 0 || tm.Now() != 30 {
		t.Fatalf("fired %v len %d now %d", fired, tm.Len(), tm.Now())
	}
}

func TestMuxDrivesTimers(t *testing.T) {
	m, _, clk := newMux(t, Options{})
	m.StartClock()
	fired := false
	m.Timers.Schedule(Usec24(3*time.Millisecond), func() { fired = true })
	clk.Add(2 * time.Millisecond)
	m.Poll()
	if fired {
		t.Fatal("fired early")
	}
	clk.Add(time.Millisecond)
	m.Poll()
	if !fired {
		t.Fatal("not fired")
	}
}

func TestDevices(t *testing.T) {
	m, _, _ := newMux(t, Options{})
	d := newDevice(t, 4)
	m.Add(d)
	if got, err := m.Device(4); err != nil || got != d {
		t.Fatalf("device: %v %v", got, err)
	}
	if _, err := m.Device(5); !errors.Is(err, midi.ErrUnknownDevice) {
		t.Fatalf("unknown: %v", err)
	}
	if _, err := m.Remove(4); err != nil || len(m.Devices()) != 0 {
		t.Fatalf("remove: %v", err)
	}

	d.Send(midi.Encode(midi.NoteOn(4, 0, 60, 1))...)
	if out := d.Output(); !bytes.Equal(out, []byte{0x90, 60, 1}) {
		t.Fatalf("output % x", out)
	}
}
