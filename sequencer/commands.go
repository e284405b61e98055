package sequencer

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"midiseq/mux"
	"midiseq/track"
)

var (
	// ErrQuit is returned by Exec for the quit command
	ErrQuit = errors.New("quit")
	// ErrBadCommand is returned for unknown commands and bad arguments
	ErrBadCommand = errors.New("bad command")
)

const help = `commands:
  play          play the song from the current position
  rec           play and record the input
  stop          stop the song and the input
  idle          stop the song, keep forwarding the input
  goto TIC      move the song position
  tempo BPM     set the tempo (40..240)
  shut          terminate the frames forwarded from the input
  load [FILE]   load a standard MIDI file as the song, the last take
                without FILE
  save [FILE]   save the recording, as a new take without FILE
  takes         list saved takes
  info          show the engine state
  quit`

// Exec runs one console command and returns its output
func (m *Manager) Exec(line string) (string, error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return "", nil
	}
	argc := func(n int) error {
		if len(args)-1 != n {
			return fmt.Errorf("%w: %s takes %d argument(s)", ErrBadCommand, args[0], n)
		}
		return nil
	}

	switch args[0] {
	case "play", "p":
		m.Play()
	case "rec", "r":
		m.Record()
	case "stop", "s":
		m.Stop()
	case "idle", "i":
		m.Idle()
	case "goto", "g":
		if err := argc(1); err != nil {
			return "", err
		}
		tic, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || tic < 0 {
			return "", fmt.Errorf("%w: bad position %q", ErrBadCommand, args[1])
		}
		m.Seek(tic)
	case "tempo", "t":
		if err := argc(1); err != nil {
			return "", err
		}
		bpm, err := strconv.Atoi(args[1])
		if err != nil {
			return "", fmt.Errorf("%w: bad tempo %q", ErrBadCommand, args[1])
		}
		return "", m.SetTempo(bpm)
	case "shut", "x":
		m.Shut()
	case "load":
		if len(args) == 1 {
			return "", m.LoadTake("")
		}
		if err := argc(1); err != nil {
			return "", err
		}
		s, err := track.ReadSMFFile(args[1], m.out, m.ctls)
		if err != nil {
			return "", err
		}
		m.Load(s)
		return fmt.Sprintf("%d track(s), %d tpq", len(s.Tracks), s.TPQ), nil
	case "save":
		if len(args) > 2 {
			return "", argc(1)
		}
		if len(args) == 2 {
			return "", m.SaveRecording(args[1])
		}
		s, err := m.RecordedSong()
		if err != nil {
			return "", err
		}
		path, err := SaveTake("", s)
		if err != nil {
			return "", err
		}
		return path, nil
	case "takes":
		takes, err := ListTakes()
		if err != nil {
			return "", err
		}
		var b strings.Builder
		for _, t := range takes {
			fmt.Fprintf(&b, "%s  %s\n", t.Timestamp.Format("2006-01-02 15:04:05"), t.Filename)
		}
		return strings.TrimSuffix(b.String(), "\n"), nil
	case "info":
		return m.Snapshot().String(), nil
	case "help", "?":
		return help, nil
	case "quit", "q":
		return "", ErrQuit
	default:
		return "", fmt.Errorf("%w: %q, try help", ErrBadCommand, args[0])
	}
	return "", nil
}

// Console reads commands from the scheduler console until end of input or
// quit. The loop keeps running while waiting for a line. An interrupt
// abandons the line being typed.
func (m *Manager) Console(w io.Writer, prompt bool) error {
	for {
		if prompt {
			fmt.Fprint(w, "> ")
		}
		line, err := m.sched.ReadLine()
		switch {
		case errors.Is(err, mux.ErrInterrupted):
			fmt.Fprintln(w, "\ninterrupted")
			continue
		case err == io.EOF:
			return nil
		case err != nil:
			return err
		}

		out, err := m.Exec(line)
		if errors.Is(err, ErrQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(w, "error:", err)
			continue
		}
		if out != "" {
			fmt.Fprintln(w, out)
		}
	}
}

func (s Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s tempo %d tpb %d tic %d\n", s.Mode, s.Tempo, s.TPB, s.Tic)
	fmt.Fprintf(&b, "received %d sent %d recorded %d song %d\n", s.Received, s.Sent, s.Recorded, s.SongLen)
	for _, d := range s.Devices {
		failed := ""
		if d.Failed {
			failed = " failed"
		}
		fmt.Fprintf(&b, "dev %d %s %s%s\n", d.Unit, d.Name, d.Mode, failed)
	}
	for _, f := range s.Frames {
		fmt.Fprintf(&b, "frame %v %v [%v] tag=%x n=%d\n", f.Ev, f.Phase, f.Flags, f.Tag, f.NEvents)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
