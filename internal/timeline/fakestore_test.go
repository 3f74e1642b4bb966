package timeline

import (
	"context"
	"encoding/json"
	"fmt"
)

// fakeEvents and fakeFragments are in-memory stand-ins for the
// transactional collaborator stores, used to exercise GapWriter,
// OverlapDetector, EventInserter and FragmentLinker without a real
// database.

type fakeEvents struct {
	byID map[string]EventStorageEntry // keyed by roomID+"|"+eventID
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{byID: make(map[string]EventStorageEntry)}
}

func (f *fakeEvents) key(roomID, eventID string) string { return roomID + "|" + eventID }

func (f *fakeEvents) Insert(_ context.Context, entry EventStorageEntry) error {
	f.byID[f.key(entry.RoomID, entry.Event.EventID)] = entry
	return nil
}

func (f *fakeEvents) GetByEventID(_ context.Context, roomID, eventID string) (EventStorageEntry, bool, error) {
	var e, ok = f.byID[f.key(roomID, eventID)]
	return e, ok, nil
}

func (f *fakeEvents) FindFirstOccurringEventID(_ context.Context, roomID string, ids []string) (string, bool, error) {
	for _, id := range ids {
		if _, ok := f.byID[f.key(roomID, id)]; ok {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (f *fakeEvents) fragmentEvents(roomID string, fragmentID int64) []EventStorageEntry {
	var out []EventStorageEntry
	for _, e := range f.byID {
		if e.RoomID == roomID && e.Key.FragmentID == fragmentID {
			out = append(out, e)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Key.EventIndex < out[j-1].Key.EventIndex; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func (f *fakeEvents) FirstEvents(_ context.Context, roomID string, fragmentID int64, n int) ([]EventStorageEntry, error) {
	var all = f.fragmentEvents(roomID, fragmentID)
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}

func (f *fakeEvents) LastEvents(_ context.Context, roomID string, fragmentID int64, n int) ([]EventStorageEntry, error) {
	var all = f.fragmentEvents(roomID, fragmentID)
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

func (f *fakeEvents) UpdateRelation(_ context.Context, roomID, eventID string, content json.RawMessage, rel *RelationBookkeeping) error {
	var k = f.key(roomID, eventID)
	var e, ok = f.byID[k]
	if !ok {
		return fmt.Errorf("no such event %q", eventID)
	}
	e.Event.Content = content
	e.Relation = rel
	f.byID[k] = e
	return nil
}

type fakeFragments struct {
	byID map[int64]*Fragment
	next int64
}

func newFakeFragments() *fakeFragments {
	return &fakeFragments{byID: make(map[int64]*Fragment)}
}

func (f *fakeFragments) Add(_ context.Context, fr *Fragment) error {
	if fr.ID == 0 {
		f.next++
		fr.ID = f.next
	} else if fr.ID > f.next {
		f.next = fr.ID
	}
	var copied = *fr
	f.byID[fr.ID] = &copied
	return nil
}

func (f *fakeFragments) Update(_ context.Context, fr *Fragment) error {
	var copied = *fr
	f.byID[fr.ID] = &copied
	return nil
}

func (f *fakeFragments) Get(_ context.Context, roomID string, id int64) (*Fragment, bool, error) {
	var fr, ok = f.byID[id]
	if !ok || fr.RoomID != roomID {
		return nil, false, nil
	}
	var copied = *fr
	return &copied, true, nil
}

func (f *fakeFragments) GetMaxFragmentID(_ context.Context, roomID string) (int64, error) {
	var max int64
	for _, fr := range f.byID {
		if fr.RoomID == roomID && fr.ID > max {
			max = fr.ID
		}
	}
	return max, nil
}

type fakeLogger struct {
	entries []string
}

func (l *fakeLogger) Log(message string, level LogLevel, fields map[string]any) {
	l.entries = append(l.entries, message)
}

func newTestTxn() (Transaction, *fakeEvents, *fakeFragments) {
	var events = newFakeEvents()
	var fragments = newFakeFragments()
	return Transaction{Events: events, Fragments: fragments}, events, fragments
}

func textEvent(roomID, eventID, sender string) Event {
	return Event{EventID: eventID, RoomID: roomID, Sender: sender, Type: "m.room.message", Content: []byte(`{"body":"hi"}`)}
}
