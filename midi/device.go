package midi

import (
	"errors"
	"fmt"
	"io"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"go.bug.st/serial"
	"golang.org/x/sys/unix"
)

// ErrUnknownDevice is returned for an unknown unit or driver
var ErrUnknownDevice = errors.New("unknown device")

// Mode tells whether a device is used for input, output or both
type Mode uint8

const (
	ModeIn Mode = 1 << iota
	ModeOut
	ModeInOut = ModeIn | ModeOut
)

func (m Mode) String() string {
	switch m {
	case ModeIn:
		return "in"
	case ModeOut:
		return "out"
	case ModeInOut:
		return "inout"
	}
	return "none"
}

// ParseMode parses "in", "out" or "inout"
func ParseMode(s string) (Mode, error) {
	switch s {
	case "in":
		return ModeIn, nil
	case "out":
		return ModeOut, nil
	case "inout", "":
		return ModeInOut, nil
	}
	return 0, fmt.Errorf("bad device mode %q", s)
}

// Device is one MIDI unit as seen by the multiplexer. Input is exposed as a
// pollable descriptor; output takes encoded messages.
type Device interface {
	Unit() uint8
	Name() string
	Mode() Mode
	// PollFD returns the descriptors to wait on for the requested events,
	// nil when the device has no input or is at end of stream.
	PollFD(events int16) []unix.PollFd
	// Revents folds the returned events of the descriptors given by PollFD
	Revents(pfds []unix.PollFd) int16
	// Read returns available input bytes; it never blocks
	Read(p []byte) (int, error)
	EOF() bool
	Send(msgs ...gomidi.Message) error
	Close() error
}

// fdDevice is a device whose input is a non-blocking descriptor
type fdDevice struct {
	unit  uint8
	name  string
	mode  Mode
	rfd   int
	eof   bool
	write func([]byte) error
	close []func() error
}

func (d *fdDevice) Unit() uint8  { return d.unit }
func (d *fdDevice) Name() string { return d.name }
func (d *fdDevice) Mode() Mode   { return d.mode }
func (d *fdDevice) EOF() bool    { return d.eof }

func (d *fdDevice) PollFD(events int16) []unix.PollFd {
	if d.mode&ModeIn == 0 || d.eof || d.rfd < 0 {
		return nil
	}
	return []unix.PollFd{{Fd: int32(d.rfd), Events: events}}
}

func (d *fdDevice) Revents(pfds []unix.PollFd) int16 {
	var ev int16
	for _, p := range pfds {
		ev |= p.Revents
	}
	return ev
}

func (d *fdDevice) Read(p []byte) (int, error) {
	if d.eof {
		return 0, io.EOF
	}
	n, err := unix.Read(d.rfd, p)
	switch {
	case err == unix.EAGAIN || err == unix.EINTR:
		return 0, nil
	case err != nil:
		d.eof = true
		return 0, fmt.Errorf("%s: read: %w", d.name, err)
	case n == 0:
		d.eof = true
		return 0, io.EOF
	}
	return n, nil
}

func (d *fdDevice) Send(msgs ...gomidi.Message) error {
	if d.mode&ModeOut == 0 || d.write == nil {
		return fmt.Errorf("%s: not an output", d.name)
	}
	for _, m := range msgs {
		if err := d.write(m.Bytes()); err != nil {
			return fmt.Errorf("%s: write: %w", d.name, err)
		}
	}
	return nil
}

func (d *fdDevice) Close() error {
	var errs []error
	for i := len(d.close) - 1; i >= 0; i-- {
		if err := d.close[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.close = nil
	d.eof = true
	return errors.Join(errs...)
}

func writeFD(fd int) func([]byte) error {
	return func(p []byte) error {
		for len(p) > 0 {
			n, err := unix.Write(fd, p)
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			if err != nil {
				return err
			}
			p = p[n:]
		}
		return nil
	}
}

func closeFD(fd int) func() error {
	return func() error { return unix.Close(fd) }
}

// pipe returns a pipe whose read end is non-blocking
func pipe() (r, w int, err error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return -1, -1, fmt.Errorf("pipe: %w", err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return -1, -1, fmt.Errorf("pipe: %w", err)
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])
	return fds[0], fds[1], nil
}

// OpenRaw opens a character device such as /dev/midi1 or /dev/snd/midiC1D0
func OpenRaw(unit uint8, path string, mode Mode) (Device, error) {
	flags := unix.O_NONBLOCK | unix.O_CLOEXEC
	switch mode {
	case ModeIn:
		flags |= unix.O_RDONLY
	case ModeOut:
		flags |= unix.O_WRONLY
	default:
		flags |= unix.O_RDWR
	}
	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	d := &fdDevice{unit: unit, name: path, mode: mode, rfd: fd, close: []func() error{closeFD(fd)}}
	if mode&ModeOut != 0 {
		d.write = writeFD(fd)
	}
	return d, nil
}

// VirtualDevice is a pipe-backed device. Bytes given to Feed show up as
// input; sent messages are collected and returned by Output.
type VirtualDevice struct {
	fdDevice
	wfd int

	mu  sync.Mutex
	out []byte
}

// NewVirtual creates an in-out virtual device
func NewVirtual(unit uint8, name string) (*VirtualDevice, error) {
	r, w, err := pipe()
	if err != nil {
		return nil, err
	}
	v := &VirtualDevice{wfd: w}
	v.fdDevice = fdDevice{
		unit:  unit,
		name:  name,
		mode:  ModeInOut,
		rfd:   r,
		close: []func() error{closeFD(r), v.CloseInput},
	}
	v.write = func(p []byte) error {
		v.mu.Lock()
		v.out = append(v.out, p...)
		v.mu.Unlock()
		return nil
	}
	return v, nil
}

// Feed writes bytes to the input side; safe from any goroutine
func (v *VirtualDevice) Feed(data []byte) error {
	v.mu.Lock()
	fd := v.wfd
	v.mu.Unlock()
	if fd < 0 {
		return fmt.Errorf("%s: input closed", v.name)
	}
	return writeFD(fd)(data)
}

// CloseInput closes the input side; the device reads end of stream next
func (v *VirtualDevice) CloseInput() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.wfd < 0 {
		return nil
	}
	err := unix.Close(v.wfd)
	v.wfd = -1
	return err
}

// Output returns and clears the bytes sent to the device
func (v *VirtualDevice) Output() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := v.out
	v.out = nil
	return out
}

// OpenPort opens a system MIDI port through the gomidi driver. Received
// messages are written to a pipe so the multiplexer can poll them like any
// other descriptor.
func OpenPort(unit uint8, name string, mode Mode) (Device, error) {
	d := &fdDevice{unit: unit, name: name, mode: mode, rfd: -1}
	if mode&ModeIn != 0 {
		in, err := gomidi.FindInPort(name)
		if err != nil {
			return nil, fmt.Errorf("find input %q: %w", name, err)
		}
		r, w, err := pipe()
		if err != nil {
			return nil, err
		}
		put := writeFD(w)
		stop, err := gomidi.ListenTo(in, func(msg gomidi.Message, timestampms int32) {
			_ = put(msg.Bytes())
		}, gomidi.UseSysEx())
		if err != nil {
			unix.Close(r)
			unix.Close(w)
			return nil, fmt.Errorf("listen %q: %w", name, err)
		}
		d.rfd = r
		d.close = append(d.close, closeFD(r), closeFD(w), func() error { stop(); return nil })
	}
	if mode&ModeOut != 0 {
		out, err := gomidi.FindOutPort(name)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("find output %q: %w", name, err)
		}
		send, err := gomidi.SendTo(out)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("open output %q: %w", name, err)
		}
		d.write = func(p []byte) error { return send(gomidi.Message(p)) }
	}
	return d, nil
}

// SerialBaud is the DIN MIDI line rate
const SerialBaud = 31250

// OpenSerial opens a UART carrying MIDI. A goroutine pumps received bytes
// into a pipe; the pipe reaches end of stream when the port fails.
func OpenSerial(unit uint8, path string, baud int, mode Mode) (Device, error) {
	if baud == 0 {
		baud = SerialBaud
	}
	port, err := serial.Open(path, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", path, err)
	}
	d := &fdDevice{unit: unit, name: path, mode: mode, rfd: -1}
	d.close = append(d.close, port.Close)
	if mode&ModeIn != 0 {
		r, w, err := pipe()
		if err != nil {
			port.Close()
			return nil, err
		}
		d.rfd = r
		d.close = append(d.close, closeFD(r))
		go func() {
			defer unix.Close(w)
			put := writeFD(w)
			buf := make([]byte, 256)
			for {
				n, err := port.Read(buf)
				if err != nil {
					return
				}
				if n > 0 && put(buf[:n]) != nil {
					return
				}
			}
		}()
	}
	if mode&ModeOut != 0 {
		d.write = func(p []byte) error {
			_, err := port.Write(p)
			return err
		}
	}
	return d, nil
}

// Open opens a device with the named driver: raw, port, serial or virtual
func Open(unit uint8, driver, path string, mode Mode, baud int) (Device, error) {
	switch driver {
	case "raw", "":
		return OpenRaw(unit, path, mode)
	case "port":
		return OpenPort(unit, path, mode)
	case "serial":
		return OpenSerial(unit, path, baud, mode)
	case "virtual":
		return NewVirtual(unit, path)
	}
	return nil, fmt.Errorf("%w: driver %q", ErrUnknownDevice, driver)
}
