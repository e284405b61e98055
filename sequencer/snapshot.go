package sequencer

import (
	"midiseq/midi"
	"midiseq/state"
)

// Frame describes a frame tracked by the normalizer
type Frame struct {
	Ev      midi.Event
	Phase   midi.Phase
	Flags   state.Flags
	Tag     uint32
	NEvents int
}

// DeviceInfo describes a registered device
type DeviceInfo struct {
	Unit   uint8
	Name   string
	Mode   midi.Mode
	Failed bool
}

// Snapshot is a copy of the engine state, safe to read from any goroutine
type Snapshot struct {
	Mode     Mode
	Tempo    int
	TPB      int
	Tic      int64
	Received uint64
	Sent     uint64
	Recorded int
	SongLen  int64
	Frames   []Frame
	Devices  []DeviceInfo
}

// Snapshot returns the state published by the loop
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// publish refreshes the snapshot and notifies the UI
func (m *Manager) publish() {
	s := Snapshot{
		Mode:     m.mode,
		Tempo:    m.tr.Tempo(),
		TPB:      m.tr.TPB(),
		Tic:      m.tr.Tic(),
		Received: m.received,
		Sent:     m.sent,
	}
	if m.rec != nil {
		s.Recorded = m.rec.Len()
	}
	if m.song != nil {
		s.SongLen = m.song.End()
	}
	if m.norm != nil {
		for _, st := range m.norm.States() {
			s.Frames = append(s.Frames, Frame{
				Ev:      st.Ev,
				Phase:   st.Phase,
				Flags:   st.Flags,
				Tag:     st.Tag,
				NEvents: st.NEvents,
			})
		}
	}
	for _, d := range m.sched.Devices() {
		s.Devices = append(s.Devices, DeviceInfo{
			Unit:   d.Unit(),
			Name:   d.Name(),
			Mode:   d.Mode(),
			Failed: m.sched.Failed(d.Unit()),
		})
	}

	m.mu.Lock()
	m.snap = s
	m.mu.Unlock()
	m.notifyUpdate()
}
