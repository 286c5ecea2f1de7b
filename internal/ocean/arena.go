package ocean

import "oceancl/internal/compute"

// Handle names one completion token in an EventArena. The zero Handle is
// invalid.
type Handle struct {
	slot int32
	gen  uint32
	node int32
}

// Valid reports whether h was ever issued by an arena.
func (h Handle) Valid() bool { return h.gen != 0 }

// Node is the frame graph node recorded for the launch behind h.
func (h Handle) Node() int { return int(h.node) }

type arenaSlot struct {
	events []compute.Event
	gen    uint32
	live   bool
}

// EventArena is a growable pool of completion tokens. Slots are handed out
// from the head and all of them retire together on ResetFrame; a retired
// handle never resolves again even after its slot is reused.
type EventArena struct {
	slots []arenaSlot
	head  int
}

// Acquire returns a fresh handle, growing the pool when every slot is in use.
func (a *EventArena) Acquire() Handle {
	if a.head == len(a.slots) {
		a.slots = append(a.slots, arenaSlot{})
	}
	s := &a.slots[a.head]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.live = true
	s.events = s.events[:0]
	h := Handle{slot: int32(a.head), gen: s.gen, node: -1}
	a.head++
	return h
}

// Bind attaches the events that complete h. Binding a stale handle is a no-op.
func (a *EventArena) Bind(h Handle, evs ...compute.Event) {
	s, ok := a.slot(h)
	if !ok {
		return
	}
	for _, ev := range evs {
		if ev != nil {
			s.events = append(s.events, ev)
		}
	}
}

// Lookup resolves h to its events. It returns false for handles that are
// invalid or were retired by ResetFrame.
func (a *EventArena) Lookup(h Handle) ([]compute.Event, bool) {
	s, ok := a.slot(h)
	if !ok {
		return nil, false
	}
	return s.events, true
}

// ResetFrame retires every outstanding handle and rewinds to the head.
func (a *EventArena) ResetFrame() {
	for i := range a.slots[:a.head] {
		a.slots[i].live = false
		clear(a.slots[i].events)
		a.slots[i].events = a.slots[i].events[:0]
	}
	a.head = 0
}

// Len is the number of handles issued since the last reset.
func (a *EventArena) Len() int { return a.head }

// Cap is the number of slots ever allocated.
func (a *EventArena) Cap() int { return len(a.slots) }

func (a *EventArena) slot(h Handle) (*arenaSlot, bool) {
	if !h.Valid() || h.slot < 0 || int(h.slot) >= len(a.slots) {
		return nil, false
	}
	s := &a.slots[h.slot]
	if !s.live || s.gen != h.gen {
		return nil, false
	}
	return s, true
}
