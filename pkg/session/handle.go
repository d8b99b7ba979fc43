// ABOUTME: Generation-checked session handles
// ABOUTME: Slot table mapping handles to sessions with stale handle detection
package session

import "fmt"

// Handle is an opaque session reference. Zero means no session.
//
// The low 32 bits hold the slot index plus one, the high 32 bits the slot
// generation at allocation time. Deleting a session bumps the generation, so
// a retained handle is detected as stale instead of aliasing a new session.
type Handle uint64

func makeHandle(index, generation uint32) Handle {
	return Handle(uint64(generation)<<32 | uint64(index+1))
}

func (h Handle) index() (uint32, bool) {
	low := uint32(h)
	if low == 0 {
		return 0, false
	}
	return low - 1, true
}

func (h Handle) generation() uint32 {
	return uint32(h >> 32)
}

func (h Handle) String() string {
	if h == 0 {
		return "0"
	}
	idx, _ := h.index()
	return fmt.Sprintf("%d#%d", idx, h.generation())
}

type slot struct {
	generation uint32
	session    *session
}

// slotTable is a generation-checked arena of sessions. Not safe for
// concurrent use; the engine mutex guards it.
type slotTable struct {
	slots []slot
	free  []uint32
	limit int
	live  int
}

func newSlotTable(limit int) *slotTable {
	return &slotTable{limit: limit}
}

// insert stores s and returns its handle, or false when the table is full
func (t *slotTable) insert(s *session) (Handle, bool) {
	if t.live >= t.limit {
		return 0, false
	}

	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, slot{generation: 1})
	}

	t.slots[idx].session = s
	t.live++
	return makeHandle(idx, t.slots[idx].generation), true
}

// lookupResult classifies a handle lookup
type lookupResult int

const (
	lookupNone lookupResult = iota
	lookupStale
	lookupLive
)

func (t *slotTable) lookup(h Handle) (*session, lookupResult) {
	idx, ok := h.index()
	if !ok {
		return nil, lookupNone
	}
	if int(idx) >= len(t.slots) {
		return nil, lookupStale
	}

	sl := t.slots[idx]
	if sl.session == nil || sl.generation != h.generation() {
		return nil, lookupStale
	}
	return sl.session, lookupLive
}

// remove frees the slot of a live handle
func (t *slotTable) remove(h Handle) {
	idx, _ := h.index()
	sl := &t.slots[idx]
	sl.session = nil
	sl.generation++
	if sl.generation == 0 {
		sl.generation = 1
	}
	t.free = append(t.free, idx)
	t.live--
}

// each calls fn for every live handle
func (t *slotTable) each(fn func(Handle, *session)) {
	for i, sl := range t.slots {
		if sl.session != nil {
			fn(makeHandle(uint32(i), sl.generation), sl.session)
		}
	}
}
