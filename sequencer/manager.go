// Package sequencer is the engine: it routes device input through the
// normalizer and the filter to the outputs, plays a song and records the
// filtered input on the transport clock.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"midiseq/debug"
	"midiseq/midi"
	"midiseq/mux"
	"midiseq/norm"
	"midiseq/state"
	"midiseq/track"
)

var (
	// ErrNoOutput is returned when an event has no device to go to
	ErrNoOutput = errors.New("no output device")
	// ErrNothingRecorded is returned when saving an empty recording
	ErrNothingRecorded = errors.New("nothing recorded")
)

// Mode is the transport state of the engine
type Mode int

const (
	// ModeStopped ignores input; the clock does not run
	ModeStopped Mode = iota
	// ModeIdle forwards input, the song does not play
	ModeIdle
	ModePlay
	// ModeRecord plays the song and records the forwarded input
	ModeRecord
)

func (m Mode) String() string {
	switch m {
	case ModeStopped:
		return "stopped"
	case ModeIdle:
		return "idle"
	case ModePlay:
		return "play"
	case ModeRecord:
		return "record"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Options configure a Manager; zero values select the defaults
type Options struct {
	Ctls     *midi.CtlTable
	Tempo    int
	TPB      int
	Throttle int
	// Output is the unit receiving events whose own unit cannot output
	Output uint8
	Log    *slog.Logger
	Mux    mux.Options
}

// Manager is the engine context. Apart from Snapshot, UpdateChan and Post,
// its methods must be called from the goroutine running the loop.
type Manager struct {
	UpdateChan chan struct{} // signals when the snapshot changed

	sched    *mux.Mux
	log      *slog.Logger
	ctls     *midi.CtlTable
	decoders map[uint8]*midi.Decoder
	norm     *norm.Normalizer
	filter   Filter
	out      uint8
	tr       *Transport
	mode     Mode

	song    *track.Track
	next    int         // index of the next song event to play
	playing *state.List // frames sounding from the song

	rec       *track.Track
	recStates *state.List

	received uint64
	sent     uint64

	mu   sync.Mutex
	snap Snapshot
}

// NewManager creates an idle engine with no devices
func NewManager(opts Options) (*Manager, error) {
	if opts.Ctls == nil {
		opts.Ctls = midi.DefaultCtlTable()
	}
	if opts.Tempo == 0 {
		opts.Tempo = DefaultTempo
	}
	tr, err := NewTransport(opts.Tempo, opts.TPB)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		UpdateChan: make(chan struct{}, 1),
		log:        debug.Or(opts.Log),
		ctls:       opts.Ctls,
		decoders:   make(map[uint8]*midi.Decoder),
		filter:     Passthrough,
		out:        opts.Output,
		tr:         tr,
	}
	if opts.Mux.Log == nil {
		opts.Mux.Log = m.log
	}
	if m.sched, err = mux.New(m, opts.Mux); err != nil {
		return nil, err
	}
	m.norm = norm.New(m.filterStage(m.filter), m.ctls, m.log)
	if opts.Throttle > 0 {
		m.norm.Throttle = opts.Throttle
	}
	m.Idle()
	return m, nil
}

// Mux returns the scheduler driving the engine
func (m *Manager) Mux() *mux.Mux { return m.sched }

// Close stops the engine and closes every device
func (m *Manager) Close() error {
	m.Stop()
	var errs []error
	for _, d := range m.sched.Devices() {
		errs = append(errs, d.Close())
	}
	errs = append(errs, m.sched.Close())
	return errors.Join(errs...)
}

// AddDevice registers a device with the scheduler
func (m *Manager) AddDevice(d midi.Device) {
	m.sched.Add(d)
	m.decoders[d.Unit()] = midi.NewDecoder(d.Unit(), m.ctls)
	m.log.Info("device added", "unit", d.Unit(), "name", d.Name())
	m.publish()
}

// RemoveDevice unregisters and closes the device of a unit
func (m *Manager) RemoveDevice(unit uint8) error {
	d, err := m.sched.Remove(unit)
	if err != nil {
		return err
	}
	delete(m.decoders, unit)
	m.publish()
	return d.Close()
}

// Run services the devices until ctx is done
func (m *Manager) Run(ctx context.Context) error {
	return m.sched.Run(ctx)
}

// Post queues fn to run inside the loop; safe from any goroutine
func (m *Manager) Post(fn func()) {
	m.sched.Post(fn)
}

// Input implements mux.Handler
func (m *Manager) Input(unit uint8, data []byte) {
	dec := m.decoders[unit]
	if dec == nil {
		dec = midi.NewDecoder(unit, m.ctls)
		m.decoders[unit] = dec
	}
	dec.Feed(data, m.input)
	m.publish()
}

func (m *Manager) input(ev midi.Event) {
	m.received++
	if m.mode == ModeStopped {
		return
	}
	m.norm.Put(ev)
}

// Error implements mux.Handler
func (m *Manager) Error(unit uint8, err error) {
	m.log.Warn("device lost", "unit", unit, "err", err)
	delete(m.decoders, unit)
	m.publish()
}

// Advance implements mux.Handler
func (m *Manager) Advance(delta uint64) {
	if m.mode != ModePlay && m.mode != ModeRecord {
		return
	}
	if m.tr.Advance(delta) == 0 {
		return
	}
	m.playing.Outdate()
	if m.recStates != nil {
		m.recStates.Outdate()
	}
	m.playUntil(m.tr.Tic())
	m.publish()
}

func (m *Manager) filterStage(f Filter) norm.Putter {
	return norm.PutFunc(func(ev midi.Event) {
		ev, ok := f.Filter(ev)
		if !ok {
			return
		}
		if m.mode == ModeRecord && ev.IsVoice() {
			m.record(ev)
		}
		if err := m.Send(ev); err != nil {
			debug.LogEvery(50, "thru", "%v: %v", ev, err)
		}
	})
}

// SetFilter replaces the filter. Frames forwarded through the previous
// filter are terminated first.
func (m *Manager) SetFilter(f Filter) {
	if f == nil {
		f = Passthrough
	}
	m.filter = f
	m.norm.SetOutput(m.filterStage(f))
}

// output returns the device for unit, or the default output when unit
// cannot output
func (m *Manager) output(unit uint8) (midi.Device, error) {
	if d, err := m.sched.Device(unit); err == nil && d.Mode()&midi.ModeOut != 0 && !m.sched.Failed(unit) {
		return d, nil
	}
	d, err := m.sched.Device(m.out)
	if err != nil || d.Mode()&midi.ModeOut == 0 || m.sched.Failed(m.out) {
		return nil, fmt.Errorf("%w: unit %d", ErrNoOutput, unit)
	}
	return d, nil
}

// Send writes an event to its output device
func (m *Manager) Send(ev midi.Event) error {
	msgs := midi.Encode(ev)
	if len(msgs) == 0 {
		return nil
	}
	d, err := m.output(ev.Dev)
	if err != nil {
		return err
	}
	if err := d.Send(msgs...); err != nil {
		return fmt.Errorf("send to %s: %w", d.Name(), err)
	}
	m.sent++
	return nil
}

// SendSysex sends a bank of sysex messages to unit, pausing gap between
// them so slow receivers keep up. The loop is suspended meanwhile, so it
// fails with mux.ErrBusy when called from inside it.
func (m *Manager) SendSysex(unit uint8, bank [][]byte, gap time.Duration) error {
	if m.sched.Busy() {
		return mux.ErrBusy
	}
	d, err := m.output(unit)
	if err != nil {
		return err
	}
	for i, data := range bank {
		if err := d.Send(midi.Encode(midi.Sysex(unit, data))...); err != nil {
			return fmt.Errorf("sysex %d: %w", i, err)
		}
		m.sent++
		if err := m.sched.Sleep(gap); err != nil {
			return err
		}
	}
	debug.Log("sysex", "sent %d messages to unit %d", len(bank), unit)
	return nil
}

// Mode returns the transport state
func (m *Manager) Mode() Mode { return m.mode }

// Transport returns the transport clock
func (m *Manager) Transport() *Transport { return m.tr }

// Idle stops the song, keeps forwarding input
func (m *Manager) Idle() {
	m.idle()
	m.log.Info("idle")
	m.publish()
}

func (m *Manager) idle() {
	switch m.mode {
	case ModePlay, ModeRecord:
		m.stopPlayback()
	case ModeStopped:
		m.norm.Start(&m.sched.Timers)
		m.sched.StartClock()
	}
	m.mode = ModeIdle
}

// Stop stops the song and the input: every sounding frame is terminated
func (m *Manager) Stop() {
	if m.mode == ModeStopped {
		return
	}
	if m.mode == ModePlay || m.mode == ModeRecord {
		m.stopPlayback()
	}
	m.norm.Stop()
	m.sched.StopClock()
	m.mode = ModeStopped
	m.log.Info("stop")
	m.publish()
}

// Play starts the song at the current position
func (m *Manager) Play() {
	if m.mode == ModePlay || m.mode == ModeRecord {
		return
	}
	m.idle()
	m.mode = ModePlay
	m.startPlayback()
	m.log.Info("play", "tic", m.tr.Tic())
	m.publish()
}

// Record plays the song and appends the forwarded input to the
// recording at the current position
func (m *Manager) Record() {
	if m.mode == ModeRecord {
		return
	}
	m.idle()
	if m.rec == nil {
		m.rec = track.New("rec")
	}
	m.recStates = state.NewList(m.ctls)
	m.mode = ModeRecord
	m.startPlayback()

	// frames already sounding are recorded from their current value
	tic := m.tr.Tic()
	for _, st := range m.norm.States() {
		if st.Tag&norm.TagPass == 0 || !st.Open() {
			continue
		}
		for _, ev := range midi.RestoreOf(st.Ev, st.First) {
			if ev, ok := m.filter.Filter(ev); ok {
				m.record(ev)
			}
		}
	}
	m.log.Info("record", "tic", tic)
	m.publish()
}

func (m *Manager) record(ev midi.Event) {
	tic := m.tr.Tic()
	m.recStates.SetTic(tic)
	m.recStates.Update(ev)
	m.rec.Add(tic, ev)
}

func (m *Manager) startPlayback() {
	pos := m.tr.Tic()
	m.next = 0
	if m.song == nil {
		m.playing = state.NewList(m.ctls)
		return
	}
	for m.next < m.song.Len() && m.song.Events[m.next].Tic < pos {
		if e := m.song.Events[m.next]; e.Kind == midi.KindTempo {
			m.tr.SetTickLen(uint64(e.Tempo))
		}
		m.next++
	}
	m.playing = track.Replay(m.song, pos, m.ctls)
	for _, st := range m.playing.States() {
		for _, ev := range m.playing.Restore(st) {
			m.sendLogged(ev)
		}
	}
	m.playUntil(pos)
}

func (m *Manager) playUntil(tic int64) {
	if m.song == nil {
		return
	}
	for m.next < m.song.Len() && m.song.Events[m.next].Tic <= tic {
		e := m.song.Events[m.next]
		m.next++
		switch e.Kind {
		case midi.KindTempo:
			m.tr.SetTickLen(uint64(e.Tempo))
		case midi.KindTimeSig:
		default:
			m.playing.SetTic(e.Tic)
			m.playing.Update(e.Event)
			m.sendLogged(e.Event)
		}
	}
}

func (m *Manager) stopPlayback() {
	for _, st := range m.playing.States() {
		for _, ev := range m.playing.Cancel(st) {
			m.playing.Update(ev)
			m.sendLogged(ev)
		}
	}
	m.playing.Clear()
	if m.mode == ModeRecord {
		tic := m.tr.Tic()
		for _, st := range m.recStates.States() {
			for _, ev := range m.recStates.Cancel(st) {
				m.recStates.Update(ev)
				m.rec.Add(tic, ev)
			}
		}
		m.recStates = nil
	}
	m.mode = ModeIdle
}

func (m *Manager) sendLogged(ev midi.Event) {
	if err := m.Send(ev); err != nil {
		m.log.Debug("playback", "ev", ev.String(), "err", err)
	}
}

// Seek moves the song position; a playing song resumes from there
func (m *Manager) Seek(tic int64) {
	m.reposition(func() { m.tr.Seek(tic) })
}

// reposition runs fn with the song stopped, then resumes it
func (m *Manager) reposition(fn func()) {
	mode := m.mode
	if mode == ModePlay || mode == ModeRecord {
		m.stopPlayback()
	}
	fn()
	if mode == ModePlay || mode == ModeRecord {
		m.mode = mode
		if mode == ModeRecord {
			m.recStates = state.NewList(m.ctls)
		}
		m.startPlayback()
	}
	m.publish()
}

// SetTempo sets the tempo in beats per minute
func (m *Manager) SetTempo(bpm int) error {
	if err := m.tr.SetTempo(bpm); err != nil {
		return err
	}
	m.publish()
	return nil
}

// Shut terminates every frame forwarded from the input
func (m *Manager) Shut() {
	m.norm.Shut()
	m.publish()
}

// Load replaces the song with the tracks of s merged together. The
// transport takes the resolution of the file.
func (m *Manager) Load(s *track.Song) {
	m.reposition(func() {
		t := track.New("song")
		for _, src := range s.Tracks {
			track.Merge(t, src, 0)
		}
		m.song = t
		if s.TPQ > 0 {
			m.tr.SetTPB(int(s.TPQ))
		}
	})
}

// Recording returns a copy of the recorded track, nil if nothing was recorded
func (m *Manager) Recording() *track.Track {
	if m.rec == nil {
		return nil
	}
	return track.Dup(m.rec)
}

// RecordedSong returns the recording as a song at the transport resolution
func (m *Manager) RecordedSong() (*track.Song, error) {
	if m.rec == nil || m.rec.Len() == 0 {
		return nil, ErrNothingRecorded
	}
	return &track.Song{TPQ: uint16(m.tr.TPB()), Tracks: []*track.Track{track.Dup(m.rec)}}, nil
}

// SaveRecording writes the recording to a standard MIDI file
func (m *Manager) SaveRecording(path string) error {
	s, err := m.RecordedSong()
	if err != nil {
		return err
	}
	return track.WriteSMFFile(path, s)
}

// notifyUpdate signals the UI without blocking
func (m *Manager) notifyUpdate() {
	select {
	case m.UpdateChan <- struct{}{}:
	default:
	}
}
