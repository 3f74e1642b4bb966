package sqlite

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nsf/jsondiff"
	"github.com/stretchr/testify/require"

	"github.com/hydrogen-go/timelinefill/internal/timeline"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	var store, err = Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

// requireJSONEqual asserts a and b are the same JSON document,
// rendering a human-readable diff on mismatch rather than a raw byte
// comparison failure.
func requireJSONEqual(t *testing.T, a, b []byte) {
	t.Helper()
	var opts = jsondiff.DefaultJSONOptions()
	var diff, explanation = jsondiff.Compare(a, b, &opts)
	require.Equal(t, jsondiff.FullMatch, diff, "stored content diverged from expected:\n%s", explanation)
}

func TestOpenWithOptionsSetsBusyTimeoutAndForeignKeys(t *testing.T) {
	var store, err = OpenWithOptions(context.Background(), ":memory:", Options{BusyTimeoutMS: 2500, ForeignKeys: true})
	require.NoError(t, err)
	defer store.Close()

	var row = store.db.QueryRowContext(context.Background(), "PRAGMA busy_timeout;")
	var ms int
	require.NoError(t, row.Scan(&ms))
	require.Equal(t, 2500, ms)

	row = store.db.QueryRowContext(context.Background(), "PRAGMA foreign_keys;")
	var fk int
	require.NoError(t, row.Scan(&fk))
	require.Equal(t, 1, fk)
}

func TestFragmentAddAssignsRowID(t *testing.T) {
	var store = openTestStore(t)
	var ctx = context.Background()
	var txn, err = store.BeginTxn(ctx, DefaultRelationWriter{})
	require.NoError(t, err)
	defer txn.Rollback()

	var f = &timeline.Fragment{RoomID: "!room:test", PreviousToken: "tok-prev"}
	require.NoError(t, fragmentStore{txn.tx}.Add(ctx, f))
	require.NotZero(t, f.ID)

	var loaded, ok, getErr = fragmentStore{txn.tx}.Get(ctx, "!room:test", f.ID)
	require.NoError(t, getErr)
	require.True(t, ok)
	require.Equal(t, "tok-prev", loaded.PreviousToken)
	require.False(t, loaded.HasPrevious())
	require.False(t, loaded.HasNext())
}

func TestFragmentAddWithExplicitIDPreservesIt(t *testing.T) {
	var store = openTestStore(t)
	var ctx = context.Background()
	var txn, err = store.BeginTxn(ctx, DefaultRelationWriter{})
	require.NoError(t, err)
	defer txn.Rollback()

	var f = &timeline.Fragment{ID: 42, RoomID: "!room:test"}
	require.NoError(t, fragmentStore{txn.tx}.Add(ctx, f))
	require.EqualValues(t, 42, f.ID)

	var loaded, ok, getErr = fragmentStore{txn.tx}.Get(ctx, "!room:test", 42)
	require.NoError(t, getErr)
	require.True(t, ok)
	require.EqualValues(t, 42, loaded.ID)
}

func TestFragmentGetMissingReturnsNotFound(t *testing.T) {
	var store = openTestStore(t)
	var ctx = context.Background()
	var txn, err = store.BeginTxn(ctx, DefaultRelationWriter{})
	require.NoError(t, err)
	defer txn.Rollback()

	var loaded, ok, getErr = fragmentStore{txn.tx}.Get(ctx, "!room:test", 999)
	require.NoError(t, getErr)
	require.False(t, ok)
	require.Nil(t, loaded)
}

func TestFragmentUpdateChangesLinksAndTokens(t *testing.T) {
	var store = openTestStore(t)
	var ctx = context.Background()
	var txn, err = store.BeginTxn(ctx, DefaultRelationWriter{})
	require.NoError(t, err)
	defer txn.Rollback()

	var fs = fragmentStore{txn.tx}
	var f = &timeline.Fragment{RoomID: "!room:test"}
	require.NoError(t, fs.Add(ctx, f))

	f.Next = 7
	f.NextToken = "tok-next"
	f.NextEdgeReached = true
	require.NoError(t, fs.Update(ctx, f))

	var loaded, ok, getErr = fs.Get(ctx, "!room:test", f.ID)
	require.NoError(t, getErr)
	require.True(t, ok)
	require.EqualValues(t, 7, loaded.Next)
	require.Equal(t, "tok-next", loaded.NextToken)
	require.True(t, loaded.NextEdgeReached)
}

func TestFragmentGetMaxFragmentIDAcrossRooms(t *testing.T) {
	var store = openTestStore(t)
	var ctx = context.Background()
	var txn, err = store.BeginTxn(ctx, DefaultRelationWriter{})
	require.NoError(t, err)
	defer txn.Rollback()

	var fs = fragmentStore{txn.tx}
	var a = &timeline.Fragment{RoomID: "!a:test"}
	var b1 = &timeline.Fragment{RoomID: "!b:test"}
	var b2 = &timeline.Fragment{RoomID: "!b:test"}
	require.NoError(t, fs.Add(ctx, a))
	require.NoError(t, fs.Add(ctx, b1))
	require.NoError(t, fs.Add(ctx, b2))

	var max, maxErr = fs.GetMaxFragmentID(ctx, "!b:test")
	require.NoError(t, maxErr)
	require.Equal(t, b2.ID, max)

	var emptyMax, emptyErr = fs.GetMaxFragmentID(ctx, "!unknown:test")
	require.NoError(t, emptyErr)
	require.Zero(t, emptyMax)
}

func TestEventInsertAndGetByEventIDRoundTrips(t *testing.T) {
	var store = openTestStore(t)
	var ctx = context.Background()
	var txn, err = store.BeginTxn(ctx, DefaultRelationWriter{})
	require.NoError(t, err)
	defer txn.Rollback()

	var fs = fragmentStore{txn.tx}
	var f = &timeline.Fragment{RoomID: "!room:test"}
	require.NoError(t, fs.Add(ctx, f))

	var es = eventStore{txn.tx}
	var stateKey = ""
	var entry = timeline.EventStorageEntry{
		RoomID: "!room:test",
		Key:    timeline.EventKey{FragmentID: f.ID, EventIndex: 1},
		Event: timeline.Event{
			EventID:  "$a:test",
			RoomID:   "!room:test",
			Sender:   "@alice:test",
			Type:     "m.room.message",
			StateKey: &stateKey,
			Content:  json.RawMessage(`{"body":"hi"}`),
		},
		Member: &timeline.MemberSnapshot{DisplayName: "Alice"},
	}
	require.NoError(t, es.Insert(ctx, entry))

	var loaded, ok, getErr = es.GetByEventID(ctx, "!room:test", "$a:test")
	require.NoError(t, getErr)
	require.True(t, ok)
	require.Equal(t, "@alice:test", loaded.Event.Sender)
	require.JSONEq(t, `{"body":"hi"}`, string(loaded.Event.Content))
	require.NotNil(t, loaded.Event.StateKey)
	require.Equal(t, "", *loaded.Event.StateKey)
	require.NotNil(t, loaded.Member)
	require.Equal(t, "Alice", loaded.Member.DisplayName)
	require.Nil(t, loaded.Relation)
}

func TestEventFindFirstOccurringEventIDPicksEarliestInScanOrder(t *testing.T) {
	var store = openTestStore(t)
	var ctx = context.Background()
	var txn, err = store.BeginTxn(ctx, DefaultRelationWriter{})
	require.NoError(t, err)
	defer txn.Rollback()

	var fs = fragmentStore{txn.tx}
	var f = &timeline.Fragment{RoomID: "!room:test"}
	require.NoError(t, fs.Add(ctx, f))

	var es = eventStore{txn.tx}
	for i, id := range []string{"$a:test", "$b:test", "$c:test"} {
		require.NoError(t, es.Insert(ctx, timeline.EventStorageEntry{
			RoomID: "!room:test",
			Key:    timeline.EventKey{FragmentID: f.ID, EventIndex: int64(i)},
			Event:  timeline.Event{EventID: id, RoomID: "!room:test", Sender: "@a:test", Type: "m.room.message", Content: json.RawMessage(`{}`)},
		}))
	}

	var found, ok, findErr = es.FindFirstOccurringEventID(ctx, "!room:test", []string{"$z:test", "$b:test", "$a:test"})
	require.NoError(t, findErr)
	require.True(t, ok)
	require.Equal(t, "$b:test", found)

	var notFound, notOK, notErr = es.FindFirstOccurringEventID(ctx, "!room:test", []string{"$z:test", "$y:test"})
	require.NoError(t, notErr)
	require.False(t, notOK)
	require.Equal(t, "", notFound)
}

func TestEventFirstAndLastEventsReturnAscendingOrder(t *testing.T) {
	var store = openTestStore(t)
	var ctx = context.Background()
	var txn, err = store.BeginTxn(ctx, DefaultRelationWriter{})
	require.NoError(t, err)
	defer txn.Rollback()

	var fs = fragmentStore{txn.tx}
	var f = &timeline.Fragment{RoomID: "!room:test"}
	require.NoError(t, fs.Add(ctx, f))

	var es = eventStore{txn.tx}
	for i := 0; i < 5; i++ {
		require.NoError(t, es.Insert(ctx, timeline.EventStorageEntry{
			RoomID: "!room:test",
			Key:    timeline.EventKey{FragmentID: f.ID, EventIndex: int64(i)},
			Event: timeline.Event{
				EventID: "$" + string(rune('a'+i)) + ":test", RoomID: "!room:test",
				Sender: "@a:test", Type: "m.room.message", Content: json.RawMessage(`{}`),
			},
		}))
	}

	var first, firstErr = es.FirstEvents(ctx, "!room:test", f.ID, 2)
	require.NoError(t, firstErr)
	require.Len(t, first, 2)
	require.Equal(t, "$a:test", first[0].Event.EventID)
	require.Equal(t, "$b:test", first[1].Event.EventID)

	var last, lastErr = es.LastEvents(ctx, "!room:test", f.ID, 2)
	require.NoError(t, lastErr)
	require.Len(t, last, 2)
	require.Equal(t, "$d:test", last[0].Event.EventID)
	require.Equal(t, "$e:test", last[1].Event.EventID)
}

func TestEventUpdateRelationSetsBookkeeping(t *testing.T) {
	var store = openTestStore(t)
	var ctx = context.Background()
	var txn, err = store.BeginTxn(ctx, DefaultRelationWriter{})
	require.NoError(t, err)
	defer txn.Rollback()

	var fs = fragmentStore{txn.tx}
	var f = &timeline.Fragment{RoomID: "!room:test"}
	require.NoError(t, fs.Add(ctx, f))

	var es = eventStore{txn.tx}
	require.NoError(t, es.Insert(ctx, timeline.EventStorageEntry{
		RoomID: "!room:test",
		Key:    timeline.EventKey{FragmentID: f.ID, EventIndex: 0},
		Event:  timeline.Event{EventID: "$a:test", RoomID: "!room:test", Sender: "@a:test", Type: "m.reaction", Content: json.RawMessage(`{"v":1}`)},
	}))

	require.NoError(t, es.UpdateRelation(ctx, "!room:test", "$a:test", json.RawMessage(`{"v":2}`),
		&timeline.RelationBookkeeping{TargetEventID: "$target:test", RelationType: "m.annotation"}))

	var loaded, ok, getErr = es.GetByEventID(ctx, "!room:test", "$a:test")
	require.NoError(t, getErr)
	require.True(t, ok)
	requireJSONEqual(t, []byte(`{"v":2}`), loaded.Event.Content)
	require.NotNil(t, loaded.Relation)
	require.Equal(t, "$target:test", loaded.Relation.TargetEventID)
	require.Equal(t, "m.annotation", loaded.Relation.RelationType)
}

func TestTxnCommitPersistsAcrossTransactions(t *testing.T) {
	var store = openTestStore(t)
	var ctx = context.Background()

	var txn1, err = store.BeginTxn(ctx, DefaultRelationWriter{})
	require.NoError(t, err)
	var f = &timeline.Fragment{RoomID: "!room:test"}
	require.NoError(t, fragmentStore{txn1.tx}.Add(ctx, f))
	require.NoError(t, txn1.Commit())

	var txn2, err2 = store.BeginTxn(ctx, DefaultRelationWriter{})
	require.NoError(t, err2)
	defer txn2.Rollback()
	var loaded, ok, getErr = fragmentStore{txn2.tx}.Get(ctx, "!room:test", f.ID)
	require.NoError(t, getErr)
	require.True(t, ok)
	require.Equal(t, f.RoomID, loaded.RoomID)
}

func TestTxnRollbackDiscardsChanges(t *testing.T) {
	var store = openTestStore(t)
	var ctx = context.Background()

	var txn1, err = store.BeginTxn(ctx, DefaultRelationWriter{})
	require.NoError(t, err)
	var f = &timeline.Fragment{RoomID: "!room:test"}
	require.NoError(t, fragmentStore{txn1.tx}.Add(ctx, f))
	require.NoError(t, txn1.Rollback())

	var txn2, err2 = store.BeginTxn(ctx, DefaultRelationWriter{})
	require.NoError(t, err2)
	defer txn2.Rollback()
	var _, ok, getErr = fragmentStore{txn2.tx}.Get(ctx, "!room:test", f.ID)
	require.NoError(t, getErr)
	require.False(t, ok)
}
