package timeline

import "fmt"

// defaultEventIndex is the neutral midpoint event index assigned to the
// first event ever written into a fragment. Leaving headroom on both
// sides lets a fragment grow in either direction without renumbering.
const defaultEventIndex = 0

// EventKey is a lexicographic (fragmentId, eventIndex) key. Ordering is
// only meaningful between keys sharing a fragmentId; comparing keys
// across fragments requires a FragmentIdComparer.
type EventKey struct {
	FragmentID int64
	EventIndex int64
}

// DefaultFragmentKey returns the neutral midpoint key for a fragment
// that has not yet had any event written into it.
func DefaultFragmentKey(fragmentID int64) EventKey {
	return EventKey{FragmentID: fragmentID, EventIndex: defaultEventIndex}
}

// NextKeyForDirection returns the key immediately following this one in
// the given direction: +1 to the event index for Forward, -1 for
// Backward. It does not cross fragment boundaries.
func (k EventKey) NextKeyForDirection(dir Direction) EventKey {
	if dir.IsForward() {
		return EventKey{FragmentID: k.FragmentID, EventIndex: k.EventIndex + 1}
	}
	return EventKey{FragmentID: k.FragmentID, EventIndex: k.EventIndex - 1}
}

// Less reports whether k sorts before other, lexicographically on
// (FragmentID, EventIndex). Only meaningful within one fragment chain
// where FragmentID order has already been established by a
// FragmentIdComparer; a raw Less across unrelated fragments is not a
// statement about timeline order.
func (k EventKey) Less(other EventKey) bool {
	if k.FragmentID != other.FragmentID {
		return k.FragmentID < other.FragmentID
	}
	return k.EventIndex < other.EventIndex
}

func (k EventKey) String() string {
	return fmt.Sprintf("%d/%d", k.FragmentID, k.EventIndex)
}
