package mux

import "sort"

type timeout struct {
	at  uint64
	seq uint64
	fn  func()
}

// Timers is a set of one-shot timeouts driven by the transport clock. Times
// are in 24ths of microsecond.
type Timers struct {
	now  uint64
	seq  uint64
	list []*timeout // ordered by expiry, then by insertion
}

// Schedule runs fn once delay units from now. The returned function cancels
// the timeout if it has not fired yet.
func (t *Timers) Schedule(delay uint64, fn func()) func() {
	if delay == 0 {
		delay = 1
	}
	t.seq++
	to := &timeout{at: t.now + delay, seq: t.seq, fn: fn}
	i := sort.Search(len(t.list), func(i int) bool { return t.list[i].at > to.at })
	t.list = append(t.list, nil)
	copy(t.list[i+1:], t.list[i:])
	t.list[i] = to
	return func() { t.remove(to) }
}

func (t *Timers) remove(to *timeout) {
	for i, o := range t.list {
		if o == to {
			copy(t.list[i:], t.list[i+1:])
			t.list[len(t.list)-1] = nil
			t.list = t.list[:len(t.list)-1]
			return
		}
	}
}

// Update advances the clock by delta and fires the expired timeouts in
// expiry order. Timeouts scheduled by callbacks fire on a later update.
func (t *Timers) Update(delta uint64) {
	t.now += delta
	for len(t.list) > 0 && t.list[0].at <= t.now {
		to := t.list[0]
		copy(t.list, t.list[1:])
		t.list[len(t.list)-1] = nil
		t.list = t.list[:len(t.list)-1]
		to.fn()
	}
}

// Now returns the time elapsed since the timers were created
func (t *Timers) Now() uint64 { return t.now }

// Len returns the number of pending timeouts
func (t *Timers) Len() int { return len(t.list) }
