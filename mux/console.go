package mux

import (
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// Console is the buffered interactive input (usually stdin). It is read
// only when the loop reports its descriptor ready.
type Console struct {
	fd  int
	buf [1024]byte
	pos int
	n   int
	eof bool
	err error
}

// NewConsole wraps descriptor fd
func NewConsole(fd int) *Console {
	return &Console{fd: fd}
}

// wants reports whether the console must be polled
func (c *Console) wants() bool {
	return c.pos == c.n && !c.eof
}

func (c *Console) fill() {
	n, err := unix.Read(c.fd, c.buf[:])
	switch {
	case err == unix.EAGAIN || err == unix.EINTR:
	case err != nil:
		c.eof, c.err = true, fmt.Errorf("console: %w", err)
	case n == 0:
		c.eof = true
	default:
		c.pos, c.n = 0, n
	}
}

// EOF reports whether the console reached end of stream
func (c *Console) EOF() bool { return c.eof && c.pos == c.n }

// Getc returns the next console byte, running the loop while none is
// buffered. It returns ErrInterrupted when the user interrupts and io.EOF
// at end of stream.
func (m *Mux) Getc() (byte, error) {
	c := m.cons
	if c == nil {
		return 0, io.EOF
	}
	for {
		if c.pos < c.n {
			b := c.buf[c.pos]
			c.pos++
			return b, nil
		}
		if c.eof {
			if c.err != nil {
				return 0, c.err
			}
			return 0, io.EOF
		}
		if err := m.Poll(); err != nil {
			return 0, err
		}
	}
}

// ReadLine returns the next console line without its newline. A partial
// line is dropped on interrupt.
func (m *Mux) ReadLine() (string, error) {
	var line []byte
	for {
		b, err := m.Getc()
		if err == io.EOF && len(line) > 0 {
			return string(line), nil
		}
		if err != nil {
			return "", err
		}
		if b == '\n' {
			return string(line), nil
		}
		line = append(line, b)
	}
}
