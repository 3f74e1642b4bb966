package timeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOverlapDetectorNoOverlap(t *testing.T) {
	var txn, _, _ = newTestTxn()
	var detector = OverlapDetector{Txn: txn, Log: &fakeLogger{}}

	var chunk = []Event{textEvent("!room", "$a", "@alice:x"), textEvent("!room", "$b", "@alice:x")}
	var result, err = detector.Detect(context.Background(), "!room", 1, 0, Backward, chunk)

	require.NoError(t, err)
	require.Equal(t, chunk, result.NonOverlappingEvents)
	require.Nil(t, result.NeighbourFragment)
}

func TestOverlapDetectorFindsNeighbour(t *testing.T) {
	var txn, events, fragments = newTestTxn()
	var ctx = context.Background()

	var f2 = &Fragment{ID: 2, RoomID: "!room"}
	require.NoError(t, fragments.Add(ctx, f2))
	require.NoError(t, events.Insert(ctx, EventStorageEntry{
		Key: EventKey{FragmentID: f2.ID, EventIndex: 0}, RoomID: "!room",
		Event: textEvent("!room", "$dup", "@alice:x"),
	}))

	var detector = OverlapDetector{Txn: txn, Log: &fakeLogger{}}

	// Scanning Backward from fragment 1 finds fragment 2's own event as
	// a duplicate; the matching edge belongs to fragment 2's Forward
	// side.
	var chunk = []Event{textEvent("!room", "$new", "@alice:x"), textEvent("!room", "$dup", "@alice:x")}
	var result, err = detector.Detect(ctx, "!room", 1, 0, Backward, chunk)

	require.NoError(t, err)
	require.Equal(t, []Event{chunk[0]}, result.NonOverlappingEvents)
	require.NotNil(t, result.NeighbourFragment)
	require.Equal(t, f2.ID, result.NeighbourFragment.FragmentID())
	require.Equal(t, Forward, result.NeighbourFragment.Direction)
}

func TestOverlapDetectorDiscardsSelfLink(t *testing.T) {
	var txn, events, fragments = newTestTxn()
	var ctx = context.Background()

	var f1 = &Fragment{RoomID: "!room"}
	require.NoError(t, fragments.Add(ctx, f1))
	require.NoError(t, events.Insert(ctx, EventStorageEntry{
		Key: EventKey{FragmentID: f1.ID, EventIndex: 0}, RoomID: "!room",
		Event: textEvent("!room", "$dup", "@alice:x"),
	}))

	var log = &fakeLogger{}
	var detector = OverlapDetector{Txn: txn, Log: log}

	var chunk = []Event{textEvent("!room", "$new", "@alice:x"), textEvent("!room", "$dup", "@alice:x")}
	var result, err = detector.Detect(ctx, "!room", f1.ID, 0, Backward, chunk)

	require.NoError(t, err)
	require.Nil(t, result.NeighbourFragment)
	require.NotEmpty(t, log.entries)
}
