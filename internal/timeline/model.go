package timeline

import "encoding/json"

// Event is a server-side event, as returned inside a /messages or
// /context response chunk. Content is a catch-all for fields the
// fragment engine does not itself interpret.
type Event struct {
	EventID      string          `json:"event_id"`
	RoomID       string          `json:"room_id"`
	Sender       string          `json:"sender"`
	Type         string          `json:"type"`
	StateKey     *string         `json:"state_key,omitempty"`
	Content      json.RawMessage `json:"content"`
	PrevContent  json.RawMessage `json:"prev_content,omitempty"`
	OriginServer int64           `json:"origin_server_ts,omitempty"`
}

// IsState reports whether this event carries a state key, i.e. it is
// eligible to be consulted during sender resolution.
func (e *Event) IsState() bool { return e.StateKey != nil }

// MemberSnapshot is the display-name/avatar stamp carried by a stored
// event, taken from room member state at the time of insertion.
type MemberSnapshot struct {
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// decodeMemberSnapshot extracts the displayname/avatar_url fields a
// Matrix m.room.member event content carries. Malformed or empty
// content yields a zero-value snapshot rather than an error: a missing
// display name is a normal, not exceptional, outcome.
func decodeMemberSnapshot(content json.RawMessage) *MemberSnapshot {
	var fields struct {
		DisplayName string `json:"displayname"`
		AvatarURL   string `json:"avatar_url"`
	}
	if len(content) > 0 {
		_ = json.Unmarshal(content, &fields)
	}
	return &MemberSnapshot{DisplayName: fields.DisplayName, AvatarURL: fields.AvatarURL}
}

// RelationBookkeeping records the subset of relation fields owned by
// the external relation writer, never mutated by this engine directly.
type RelationBookkeeping struct {
	TargetEventID string `json:"targetEventId,omitempty"`
	RelationType  string `json:"relType,omitempty"`
}

// EventStorageEntry is an Event plus its EventKey and local annotations.
// Exactly one exists per (RoomID, EventID) pair once stored; immutable
// after insert except for the Relation field, owned by the relation
// writer.
type EventStorageEntry struct {
	Key      EventKey
	RoomID   string
	Event    Event
	Member   *MemberSnapshot
	Relation *RelationBookkeeping
}

// EventEntry is the result-sequence wrapper around a stored event,
// mirroring the shape callers receive back from GapWriter.
type EventEntry struct {
	Entry EventStorageEntry
}

// EntryKind discriminates the sum type carried in a GapWriter result's
// Entries sequence: EventEntry and FragmentBoundaryEntry are distinct
// variants appended into the same directional sequence, and callers
// must discriminate on Kind rather than assume one shape.
type EntryKind int

const (
	// EntryKindEvent wraps a newly-stored EventEntry.
	EntryKindEvent EntryKind = iota
	// EntryKindFragmentBoundary wraps a FragmentBoundaryEntry that was
	// touched (created, linked, or re-tokened) during this call.
	EntryKindFragmentBoundary
)

// Entry is one element of a GapWriter result's directional entry
// sequence: either an EventEntry or a FragmentBoundaryEntry.
type Entry struct {
	Kind     EntryKind
	Event    *EventEntry
	Boundary *FragmentBoundaryEntry
}

func eventEntryOf(e EventStorageEntry) Entry {
	var ee = EventEntry{Entry: e}
	return Entry{Kind: EntryKindEvent, Event: &ee}
}

func boundaryEntryOf(b FragmentBoundaryEntry) Entry {
	return Entry{Kind: EntryKindFragmentBoundary, Boundary: &b}
}

// appendDirectional is the directional-append helper shared by every
// sequence the engine produces: push to the tail for Forward, push to
// the head for Backward.
func appendDirectional[T any](seq []T, v T, dir Direction) []T {
	if dir.IsForward() {
		return append(seq, v)
	}
	var out = make([]T, 0, len(seq)+1)
	out = append(out, v)
	out = append(out, seq...)
	return out
}
