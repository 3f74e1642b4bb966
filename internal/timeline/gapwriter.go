package timeline

import (
	"context"

	"github.com/google/uuid"
)

// Metrics is the numeric counterpart to Logger: counts of engine
// operations, wired by internal/ops to Prometheus collectors. A nil
// Metrics is valid; every call is a no-op guard.
type Metrics interface {
	IncChunksIngested()
	IncOverlapsDetected()
	IncSelfLinksDiscarded()
	IncFragmentsLinked()
}

// MessagesResponse is a /messages backfill response.
type MessagesResponse struct {
	Chunk []Event `json:"chunk"`
	Start string  `json:"start"`
	End   string  `json:"end"` // empty means "no further pagination" (server/compensated)
	State []Event `json:"state,omitempty"`
}

// ContextResponse is a /context response.
type ContextResponse struct {
	Event        Event   `json:"event"`
	EventsBefore []Event `json:"events_before"`
	EventsAfter  []Event `json:"events_after"`
	Start        string  `json:"start"`
	End          string  `json:"end"`
	State        []Event `json:"state,omitempty"`
}

// WriteResult is the shape every GapWriter entry point returns.
type WriteResult struct {
	Entries        []Entry
	UpdatedEntries []EventStorageEntry
	Fragments      []*Fragment
	ContextEvent   *EventEntry
}

// GapWriter orchestrates OverlapDetector, EventInserter and
// FragmentLinker for the two response shapes the client's history
// paginator produces. Every exported method runs inside one
// caller-provided Transaction; GapWriter never commits it.
type GapWriter struct {
	Txn     Transaction
	Log     Logger
	Metrics Metrics

	// MemberCacheSize sizes the EventInserter's sender-resolution cache
	// this GapWriter builds internally. Zero uses the package default.
	MemberCacheSize int
}

func (w *GapWriter) metrics() Metrics {
	if w.Metrics != nil {
		return w.Metrics
	}
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) IncChunksIngested()     {}
func (noopMetrics) IncOverlapsDetected()   {}
func (noopMetrics) IncSelfLinksDiscarded() {}
func (noopMetrics) IncFragmentsLinked()    {}

// WriteFragmentFill processes a /messages backfill response for a
// known fragment edge.
func (w *GapWriter) WriteFragmentFill(ctx context.Context, roomID string, fragmentID int64, dir Direction, resp MessagesResponse) (WriteResult, error) {
	var txnID = uuid.NewString()
	w.metrics().IncChunksIngested()

	if resp.Chunk == nil {
		return WriteResult{}, wrapf(ErrMalformedResponse, "[txn %s] chunk is not a sequence", txnID)
	}

	var fresh, ok, err = w.Txn.Fragments.Get(ctx, roomID, fragmentID)
	if err != nil {
		return WriteResult{}, err
	}
	if !ok {
		return WriteResult{}, wrapf(ErrUnknownFragment, "[txn %s] fragment %d not found on reload", txnID, fragmentID)
	}
	var entry = FragmentBoundaryEntry{Fragment: fresh, Direction: dir}

	if entry.Token() != resp.Start {
		return WriteResult{}, wrapf(ErrStaleToken, "[txn %s] fragment %d token %q does not match response.start %q",
			txnID, fragmentID, entry.Token(), resp.Start)
	}

	if len(resp.Chunk) == 0 {
		fresh.setEdgeReachedForDirection(dir, true)
		fresh.setTokenForDirection(dir, "")
		if err := w.Txn.Fragments.Update(ctx, fresh); err != nil {
			return WriteResult{}, err
		}
		return WriteResult{
			Entries:   []Entry{boundaryEntryOf(entry)},
			Fragments: nil,
		}, nil
	}

	var lastKey, lkErr = w.edgeKeyOrDefault(ctx, roomID, fragmentID, dir)
	if lkErr != nil {
		return WriteResult{}, lkErr
	}

	var detector = OverlapDetector{Txn: w.Txn, Log: w.Log}
	var overlap, dErr = detector.Detect(ctx, roomID, fragmentID, entry.LinkedFragmentID(), dir, resp.Chunk)
	if dErr != nil {
		return WriteResult{}, dErr
	}
	if overlap.NeighbourFragment != nil {
		w.metrics().IncOverlapsDetected()
	}

	var end = resp.End
	if len(overlap.NonOverlappingEvents) == 0 && overlap.NeighbourFragment == nil {
		// Known-bug compensation: fully-overlapping chunk, no
		// identifiable neighbour. We cannot productively paginate
		// further with this token; clear it.
		end = ""
		w.Log.Log("fully overlapping chunk with no identifiable neighbour, clearing continuation token", LogWarn, map[string]any{
			"roomId":     roomID,
			"fragmentId": fragmentID,
			"txnId":      txnID,
		})
	}

	var inserter = NewEventInserterWithCacheSize(w.Txn, w.Log, w.MemberCacheSize)
	var stored, sErr = inserter.StoreEvents(ctx, overlap.NonOverlappingEvents, lastKey, dir, resp.State)
	if sErr != nil {
		return WriteResult{}, sErr
	}

	var entries = wrapEventEntries(stored.Entries)

	var linker = FragmentLinker{Txn: w.Txn}
	var linked, uErr = linker.UpdateFragments(ctx, entry, overlap.NeighbourFragment, end, entries)
	if uErr != nil {
		return WriteResult{}, uErr
	}
	if overlap.NeighbourFragment != nil {
		w.metrics().IncFragmentsLinked()
	}

	return WriteResult{
		Entries:        linked.Entries,
		UpdatedEntries: stored.UpdatedRelationEntries,
		Fragments:      linked.ChangedFragments,
	}, nil
}

// WriteContext processes a /context response, which can materialize a
// new fragment and link it in both directions at once.
func (w *GapWriter) WriteContext(ctx context.Context, roomID string, resp ContextResponse) (WriteResult, error) {
	var txnID = uuid.NewString()
	w.metrics().IncChunksIngested()

	if resp.EventsBefore == nil || resp.EventsAfter == nil {
		return WriteResult{}, wrapf(ErrMalformedResponse, "[txn %s] events_before/events_after must both be sequences", txnID)
	}
	if resp.Start == "" || resp.End == "" {
		return WriteResult{}, wrapf(ErrMalformedResponse, "[txn %s] start and end tokens are both required", txnID)
	}

	if existing, ok, err := w.Txn.Events.GetByEventID(ctx, roomID, resp.Event.EventID); err != nil {
		return WriteResult{}, err
	} else if ok {
		var ee = EventEntry{Entry: existing}
		return WriteResult{ContextEvent: &ee}, nil
	}

	var detector = OverlapDetector{Txn: w.Txn, Log: w.Log}

	var upFragmentID, downFragmentID int64 // 0 until we know a real current fragment; context has none.
	var overlapUp, upErr = detector.Detect(ctx, roomID, upFragmentID, 0, Backward, resp.EventsBefore)
	if upErr != nil {
		return WriteResult{}, upErr
	}
	var overlapDown, downErr = detector.Detect(ctx, roomID, downFragmentID, 0, Forward, resp.EventsAfter)
	if downErr != nil {
		return WriteResult{}, downErr
	}
	if overlapUp.NeighbourFragment != nil || overlapDown.NeighbourFragment != nil {
		w.metrics().IncOverlapsDetected()
	}

	var main, other overlapSide
	switch {
	case overlapUp.NeighbourFragment != nil:
		main = overlapSide{result: overlapUp}
		other = overlapSide{result: overlapDown}
	case overlapDown.NeighbourFragment != nil:
		main = overlapSide{result: overlapDown}
		other = overlapSide{result: overlapUp}
	default:
		var fresh, err = w.createNewFragment(ctx, roomID, resp.Start)
		if err != nil {
			return WriteResult{}, err
		}
		// Treat the new fragment as if overlapUp had found this
		// fragment's own end (Forward-facing) boundary: overlapUp scans
		// with Backward, so a genuine neighbour it finds always carries
		// Direction Forward (see OverlapDetector.neighbourFor). Carry
		// overlapUp's own non-overlapping events (events_before) across
		// onto the substituted boundary -- they are real, newly-seen
		// events and must not be dropped just because this fragment is
		// new rather than pre-existing.
		var boundary = FragmentBoundaryEntry{Fragment: fresh, Direction: Forward}
		main = overlapSide{
			result: OverlapResult{NonOverlappingEvents: overlapUp.NonOverlappingEvents, NeighbourFragment: &boundary},
		}
		other = overlapSide{result: overlapDown}
	}

	// Self-link guard across both sides: even though each side's own
	// OverlapDetector call already discards a neighbour equal to its own
	// current fragment, the two sides here have no "current fragment" of
	// their own (context lands in isolation) -- the risk is the two
	// *sides* resolving to the same neighbour, which would both create a
	// self link and an infinite walk. MUST be refused, not silently
	// accepted.
	if main.result.NeighbourFragment != nil && other.result.NeighbourFragment != nil &&
		main.result.NeighbourFragment.FragmentID() == other.result.NeighbourFragment.FragmentID() {
		w.metrics().IncSelfLinksDiscarded()
		w.Log.Log("discarding context link that would self-link a fragment", LogWarn, map[string]any{
			"roomId":     roomID,
			"fragmentId": main.result.NeighbourFragment.FragmentID(),
			"txnId":      txnID,
		})
		other.result.NeighbourFragment = nil
	}

	return w.linkOverlapping(ctx, roomID, main, other, resp.Event, resp.End)
}

type overlapSide struct {
	result OverlapResult
}

// linkOverlapping joins main's fragment to other's across the
// gap. "main's direction" is the Direction carried by main's own
// neighbour boundary entry: writing
// proceeds from main's existing fragment, across the gap, toward
// other -- the reversal of main.result.NonOverlappingEvents below is
// what makes that true regardless of which original side (up or down)
// became main.
func (w *GapWriter) linkOverlapping(ctx context.Context, roomID string, main, other overlapSide, event Event, token string) (WriteResult, error) {
	var allEvents = make([]Event, 0, len(main.result.NonOverlappingEvents)+1+len(other.result.NonOverlappingEvents))
	for i := len(main.result.NonOverlappingEvents) - 1; i >= 0; i-- {
		allEvents = append(allEvents, main.result.NonOverlappingEvents[i])
	}
	allEvents = append(allEvents, event)
	allEvents = append(allEvents, other.result.NonOverlappingEvents...)

	var mainDir = main.result.NeighbourFragment.Direction
	var lastKey, err = w.edgeKeyOrDefault(ctx, roomID, main.result.NeighbourFragment.FragmentID(), mainDir)
	if err != nil {
		return WriteResult{}, err
	}

	var inserter = NewEventInserterWithCacheSize(w.Txn, w.Log, w.MemberCacheSize)
	var stored, sErr = inserter.StoreEvents(ctx, allEvents, lastKey, mainDir, nil)
	if sErr != nil {
		return WriteResult{}, sErr
	}

	var entries = wrapEventEntries(stored.Entries)

	var linker = FragmentLinker{Txn: w.Txn}
	var linked, uErr = linker.UpdateFragments(ctx, *main.result.NeighbourFragment, other.result.NeighbourFragment, token, entries)
	if uErr != nil {
		return WriteResult{}, uErr
	}
	if other.result.NeighbourFragment != nil {
		w.metrics().IncFragmentsLinked()
	}

	var result = WriteResult{
		Entries:        linked.Entries,
		UpdatedEntries: stored.UpdatedRelationEntries,
		Fragments:      linked.ChangedFragments,
	}

	for _, se := range stored.Entries {
		if se.Event.EventID == event.EventID {
			var ee = EventEntry{Entry: se}
			result.ContextEvent = &ee
			break
		}
	}

	return result, nil
}

// wrapEventEntries wraps an already chronologically-ordered slice of
// stored entries (as produced by EventInserter.StoreEvents, which
// applies the directional-append helper once itself) into the Entry
// sum type, preserving order -- it must not re-apply directional
// append, which would double-reverse a Backward-direction batch.
func wrapEventEntries(stored []EventStorageEntry) []Entry {
	var entries = make([]Entry, len(stored))
	for i, se := range stored {
		entries[i] = eventEntryOf(se)
	}
	return entries
}

// createNewFragment allocates a fresh fragment for roomID, anchored at
// previousToken on its backward edge. Fragment ID monotonicity within a
// room is essential to FragmentIdComparer. The forward edge is left for
// the caller's subsequent UpdateFragments call to fill in.
func (w *GapWriter) createNewFragment(ctx context.Context, roomID string, previousToken string) (*Fragment, error) {
	var maxID, err = w.Txn.Fragments.GetMaxFragmentID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	var f = &Fragment{ID: maxID + 1, RoomID: roomID, PreviousToken: previousToken}
	if err := w.Txn.Fragments.Add(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// edgeKeyOrDefault returns the key of the event currently at
// fragmentID's edge facing dir, or EventKey.DefaultFragmentKey if the
// fragment is empty on that side.
func (w *GapWriter) edgeKeyOrDefault(ctx context.Context, roomID string, fragmentID int64, dir Direction) (EventKey, error) {
	var entries []EventStorageEntry
	var err error
	if dir.IsForward() {
		entries, err = w.Txn.Events.LastEvents(ctx, roomID, fragmentID, 1)
	} else {
		entries, err = w.Txn.Events.FirstEvents(ctx, roomID, fragmentID, 1)
	}
	if err != nil {
		return EventKey{}, err
	}
	if len(entries) == 0 {
		return DefaultFragmentKey(fragmentID), nil
	}
	return entries[0].Key, nil
}
