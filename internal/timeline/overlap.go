package timeline

import "context"

// OverlapResult is what OverlapDetector produces for one chunk: every
// chunk event not already on disk, in chunk order, to store, plus (if
// found) the boundary entry of the fragment the first accepted
// duplicate belongs to.
type OverlapResult struct {
	NonOverlappingEvents []Event
	NeighbourFragment    *FragmentBoundaryEntry
}

// OverlapDetector scans a candidate chunk against what is already on
// disk.
type OverlapDetector struct {
	Txn Transaction
	Log Logger
}

// Detect runs the overlap algorithm for one chunk arriving at
// currentFragmentID's edge in the given direction. linkedFragmentID is
// the fragment already known to be linked beyond that edge, or 0 if
// none.
func (d OverlapDetector) Detect(ctx context.Context, roomID string, currentFragmentID, linkedFragmentID int64, dir Direction, chunk []Event) (OverlapResult, error) {
	if len(chunk) == 0 {
		return OverlapResult{}, nil
	}

	var expectedOverlappingEventID string
	var haveExpected bool
	if linkedFragmentID != 0 {
		var id, ok, err = d.edgeEventID(ctx, roomID, linkedFragmentID, dir.Reverse())
		if err != nil {
			return OverlapResult{}, err
		}
		expectedOverlappingEventID, haveExpected = id, ok
	}

	var result OverlapResult
	var remaining = chunk

	for len(remaining) > 0 {
		var ids = make([]string, len(remaining))
		for i, e := range remaining {
			ids[i] = e.EventID
		}

		var dupID, found, err = d.Txn.Events.FindFirstOccurringEventID(ctx, roomID, ids)
		if err != nil {
			return OverlapResult{}, err
		}
		if !found {
			result.NonOverlappingEvents = append(result.NonOverlappingEvents, remaining...)
			break
		}

		var idx = indexOfEventID(remaining, dupID)
		if idx < 0 {
			return OverlapResult{}, wrapf(ErrInvariantViolation,
				"findFirstOccurringEventId returned %q which is absent from the chunk it was given", dupID)
		}

		result.NonOverlappingEvents = append(result.NonOverlappingEvents, remaining[:idx]...)

		if result.NeighbourFragment == nil && (!haveExpected || expectedOverlappingEventID == dupID) {
			var entry, err = d.neighbourFor(ctx, roomID, dupID, dir)
			if err != nil {
				return OverlapResult{}, err
			}
			if entry != nil {
				if entry.FragmentID() == currentFragmentID {
					d.Log.Log("discarding self-link candidate", LogWarn, map[string]any{
						"roomId":     roomID,
						"fragmentId": currentFragmentID,
						"eventId":    dupID,
					})
				} else {
					result.NeighbourFragment = entry
				}
			}
		}

		// Continue past the duplicate regardless of whether it was the
		// expected one: tolerates the known server bug where duplicate
		// event IDs appear in chunks that are not actually the adjacent
		// fragment.
		remaining = remaining[idx+1:]
	}

	return result, nil
}

// neighbourFor builds the boundary entry for the fragment owning
// eventID, from that fragment's own point of view. A chunk scanned in
// direction dir finds its duplicate sitting across the gap on dir's
// far side; the neighbour's edge that borders *that* gap faces back in
// the reverse direction, which is why this constructs the entry with
// dir.Reverse() rather than dir -- it is this reversed entry whose
// LinkedFragmentID FragmentLinker will set to the current fragment.
func (d OverlapDetector) neighbourFor(ctx context.Context, roomID, eventID string, dir Direction) (*FragmentBoundaryEntry, error) {
	var stored, ok, err = d.Txn.Events.GetByEventID(ctx, roomID, eventID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var fragment, fok, ferr = d.Txn.Fragments.Get(ctx, roomID, stored.Key.FragmentID)
	if ferr != nil {
		return nil, ferr
	}
	if !fok {
		return nil, wrapf(ErrUnknownFragment, "fragment %d referenced by event %q not found", stored.Key.FragmentID, eventID)
	}

	var entry = FragmentBoundaryEntry{Fragment: fragment, Direction: dir.Reverse()}
	return &entry, nil
}

// edgeEventID returns the event ID at the edge of fragmentID facing the
// given direction -- i.e. the last event a walk in that direction would
// encounter before leaving the fragment.
func (d OverlapDetector) edgeEventID(ctx context.Context, roomID string, fragmentID int64, dir Direction) (string, bool, error) {
	var entries []EventStorageEntry
	var err error
	if dir.IsForward() {
		entries, err = d.Txn.Events.LastEvents(ctx, roomID, fragmentID, 1)
	} else {
		entries, err = d.Txn.Events.FirstEvents(ctx, roomID, fragmentID, 1)
	}
	if err != nil {
		return "", false, err
	}
	if len(entries) == 0 {
		return "", false, nil
	}
	return entries[0].Event.EventID, true, nil
}

func indexOfEventID(events []Event, id string) int {
	for i, e := range events {
		if e.EventID == id {
			return i
		}
	}
	return -1
}
