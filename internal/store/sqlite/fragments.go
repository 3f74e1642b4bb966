package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hydrogen-go/timelinefill/internal/timeline"
)

// fragmentStore implements timeline.TimelineFragments over a single
// *sql.Tx.
type fragmentStore struct {
	tx *sql.Tx
}

// Add inserts f, leaving its id column NULL when f.ID is zero so
// sqlite's INTEGER PRIMARY KEY rowid-alias autoassigns one -- passing
// an explicit 0 would insert the literal rowid 0 instead.
func (s fragmentStore) Add(ctx context.Context, f *timeline.Fragment) error {
	if f.ID != 0 {
		var _, err = s.tx.ExecContext(ctx, `
			INSERT INTO fragments (id, room_id, previous_id, next_id, previous_token, next_token, previous_edge_reached, next_edge_reached)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.RoomID, f.Previous, f.Next, f.PreviousToken, f.NextToken, f.PreviousEdgeReached, f.NextEdgeReached)
		if err != nil {
			return fmt.Errorf("inserting fragment: %w", err)
		}
		return nil
	}

	var res, err = s.tx.ExecContext(ctx, `
		INSERT INTO fragments (room_id, previous_id, next_id, previous_token, next_token, previous_edge_reached, next_edge_reached)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.RoomID, f.Previous, f.Next, f.PreviousToken, f.NextToken, f.PreviousEdgeReached, f.NextEdgeReached)
	if err != nil {
		return fmt.Errorf("inserting fragment: %w", err)
	}
	var id, idErr = res.LastInsertId()
	if idErr != nil {
		return fmt.Errorf("reading inserted fragment id: %w", idErr)
	}
	f.ID = id
	return nil
}

func (s fragmentStore) Update(ctx context.Context, f *timeline.Fragment) error {
	var _, err = s.tx.ExecContext(ctx, `
		UPDATE fragments
		SET previous_id = ?, next_id = ?, previous_token = ?, next_token = ?,
		    previous_edge_reached = ?, next_edge_reached = ?
		WHERE id = ? AND room_id = ?`,
		f.Previous, f.Next, f.PreviousToken, f.NextToken, f.PreviousEdgeReached, f.NextEdgeReached,
		f.ID, f.RoomID)
	if err != nil {
		return fmt.Errorf("updating fragment %d: %w", f.ID, err)
	}
	return nil
}

func (s fragmentStore) Get(ctx context.Context, roomID string, id int64) (*timeline.Fragment, bool, error) {
	var f = &timeline.Fragment{}
	var row = s.tx.QueryRowContext(ctx, `
		SELECT id, room_id, previous_id, next_id, previous_token, next_token, previous_edge_reached, next_edge_reached
		FROM fragments WHERE id = ? AND room_id = ?`, id, roomID)

	var err = row.Scan(&f.ID, &f.RoomID, &f.Previous, &f.Next, &f.PreviousToken, &f.NextToken, &f.PreviousEdgeReached, &f.NextEdgeReached)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading fragment %d: %w", id, err)
	}
	return f, true, nil
}

func (s fragmentStore) GetMaxFragmentID(ctx context.Context, roomID string) (int64, error) {
	var max sql.NullInt64
	var row = s.tx.QueryRowContext(ctx, `SELECT MAX(id) FROM fragments WHERE room_id = ?`, roomID)
	if err := row.Scan(&max); err != nil {
		return 0, fmt.Errorf("loading max fragment id for room %q: %w", roomID, err)
	}
	return max.Int64, nil
}
