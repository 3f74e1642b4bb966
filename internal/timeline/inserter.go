package timeline

import (
	"context"

	jsonpatch "github.com/evanphx/json-patch/v5"
	lru "github.com/hashicorp/golang-lru/v2"
)

// memberCacheSize bounds the sender-resolution member cache. A room's
// active membership rarely exceeds a few thousand distinct senders
// across the lifetime of one client process.
const memberCacheSize = 4096

// EventInserter stores the non-overlapping portion of a chunk at
// successive event keys, stamping sender display-name/avatar snapshots
// and delegating relation-target bookkeeping to the external relation
// writer.
type EventInserter struct {
	Txn Transaction
	Log Logger

	memberCache *lru.Cache[string, *MemberSnapshot]
}

// NewEventInserter builds an EventInserter with its member-resolution
// cache initialized to the default size.
func NewEventInserter(txn Transaction, log Logger) *EventInserter {
	return NewEventInserterWithCacheSize(txn, log, memberCacheSize)
}

// NewEventInserterWithCacheSize is NewEventInserter with an explicit
// member-resolution cache size, e.g. sized from CacheConfig.
func NewEventInserterWithCacheSize(txn Transaction, log Logger, cacheSize int) *EventInserter {
	if cacheSize <= 0 {
		cacheSize = memberCacheSize
	}
	var cache, _ = lru.New[string, *MemberSnapshot](cacheSize)
	return &EventInserter{Txn: txn, Log: log, memberCache: cache}
}

// StoreResult is what storeEvents produces.
type StoreResult struct {
	Entries                []EventStorageEntry
	UpdatedRelationEntries []EventStorageEntry
}

// StoreEvents stores events in order, advancing startKey by one step
// per event in the given direction.
func (ins *EventInserter) StoreEvents(ctx context.Context, events []Event, startKey EventKey, dir Direction, chunkState []Event) (StoreResult, error) {
	var result StoreResult
	var key = startKey

	for i, event := range events {
		key = key.NextKeyForDirection(dir)

		var entry = EventStorageEntry{
			Key:    key,
			RoomID: event.RoomID,
			Event:  event,
		}

		if snap := ins.resolveSender(ctx, events, i, dir, chunkState); snap != nil {
			entry.Member = snap
		}

		if err := ins.Txn.Events.Insert(ctx, entry); err != nil {
			return StoreResult{}, err
		}

		if ins.Txn.Relations != nil {
			var updated, err = ins.Txn.Relations.WriteGapRelation(ctx, entry, dir, ins.Txn, ins.Log)
			if err != nil {
				return StoreResult{}, err
			}
			result.UpdatedRelationEntries = append(result.UpdatedRelationEntries, updated...)
		}

		result.Entries = appendDirectional(result.Entries, entry, dir)
	}

	return result, nil
}

// resolveSender scans older in-chunk events first
// (authoritative content), then newer in-chunk events (prevContent,
// "replacing"), then chunkState. If all three are silent, fall back to
// this process's most recently cached snapshot for the sender in this
// room, if any -- a best-effort enrichment that never overrides an
// in-chunk or chunkState result and never blocks storage on a miss.
func (ins *EventInserter) resolveSender(ctx context.Context, events []Event, index int, dir Direction, chunkState []Event) *MemberSnapshot {
	var event = events[index]
	var sender = event.Sender
	var cacheKey = event.RoomID + "|" + sender

	if snap, ok := ins.scanOlder(events, index, dir, sender); ok {
		ins.cacheMember(cacheKey, snap)
		return snap
	}
	if snap, ok := ins.scanNewer(events, index, dir, sender); ok {
		ins.cacheMember(cacheKey, snap)
		return snap
	}
	if snap, ok := scanMemberEvents(chunkState, sender, false); ok {
		ins.cacheMember(cacheKey, snap)
		return snap
	}
	if ins.memberCache != nil {
		if snap, ok := ins.memberCache.Get(cacheKey); ok {
			return snap
		}
	}
	return nil
}

func (ins *EventInserter) cacheMember(key string, snap *MemberSnapshot) {
	if ins.memberCache != nil && snap != nil {
		ins.memberCache.Add(key, snap)
	}
}

// scanOlder scans events that are chronologically older than index
// within the chunk: toward higher indices for Backward chunks, lower
// indices for Forward chunks.
func (ins *EventInserter) scanOlder(events []Event, index int, dir Direction, sender string) (*MemberSnapshot, bool) {
	if dir.IsBackward() {
		return scanMemberEvents(events[index+1:], sender, false)
	}
	return scanMemberEventsReverse(events[:index], sender, false)
}

// scanNewer scans events that are chronologically newer than index
// within the chunk, using prevContent ("replacing").
func (ins *EventInserter) scanNewer(events []Event, index int, dir Direction, sender string) (*MemberSnapshot, bool) {
	if dir.IsBackward() {
		return scanMemberEventsReverse(events[:index], sender, true)
	}
	return scanMemberEvents(events[index+1:], sender, true)
}

func scanMemberEvents(events []Event, sender string, usePrevContent bool) (*MemberSnapshot, bool) {
	for _, e := range events {
		if snap, ok := memberSnapshotFromEvent(e, sender, usePrevContent); ok {
			return snap, true
		}
	}
	return nil, false
}

func scanMemberEventsReverse(events []Event, sender string, usePrevContent bool) (*MemberSnapshot, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if snap, ok := memberSnapshotFromEvent(events[i], sender, usePrevContent); ok {
			return snap, true
		}
	}
	return nil, false
}

func memberSnapshotFromEvent(e Event, sender string, usePrevContent bool) (*MemberSnapshot, bool) {
	if e.Type != "m.room.member" || e.StateKey == nil || *e.StateKey != sender {
		return nil, false
	}
	var raw = e.Content
	if usePrevContent {
		if len(e.PrevContent) == 0 {
			return nil, false
		}
		// Apply the prevContent as a merge-patch over content: a
		// "replacing" snapshot takes every field the older membership
		// event carried, and keeps content's value for any field
		// prevContent omits.
		if merged, err := jsonpatch.MergePatch(e.Content, e.PrevContent); err == nil {
			raw = merged
		} else {
			raw = e.PrevContent
		}
	}
	return decodeMemberSnapshot(raw), true
}
