package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hydrogen-go/timelinefill/internal/timeline"
)

// eventStore implements timeline.TimelineEvents over a single *sql.Tx.
type eventStore struct {
	tx *sql.Tx
}

func (s eventStore) Insert(ctx context.Context, entry timeline.EventStorageEntry) error {
	var stateKey sql.NullString
	if entry.Event.StateKey != nil {
		stateKey = sql.NullString{String: *entry.Event.StateKey, Valid: true}
	}

	var member, relTarget, relType = decomposeAnnotations(entry)

	var _, err = s.tx.ExecContext(ctx, `
		INSERT INTO events (
			room_id, event_id, fragment_id, event_index, sender, type, state_key,
			content, prev_content, origin_ts,
			member_display_name, member_avatar_url,
			relation_target_event_id, relation_type
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RoomID, entry.Event.EventID, entry.Key.FragmentID, entry.Key.EventIndex,
		entry.Event.Sender, entry.Event.Type, stateKey,
		[]byte(entry.Event.Content), nullableBytes(entry.Event.PrevContent), entry.Event.OriginServer,
		member.displayName, member.avatarURL, relTarget, relType,
	)
	if err != nil {
		return fmt.Errorf("inserting event %q: %w", entry.Event.EventID, err)
	}
	return nil
}

func (s eventStore) GetByEventID(ctx context.Context, roomID, eventID string) (timeline.EventStorageEntry, bool, error) {
	var row = s.tx.QueryRowContext(ctx, eventSelectColumns+` WHERE room_id = ? AND event_id = ?`, roomID, eventID)
	var entry, ok, err = scanEventRow(row.Scan)
	if err != nil {
		return timeline.EventStorageEntry{}, false, fmt.Errorf("loading event %q: %w", eventID, err)
	}
	return entry, ok, nil
}

func (s eventStore) FindFirstOccurringEventID(ctx context.Context, roomID string, ids []string) (string, bool, error) {
	if len(ids) == 0 {
		return "", false, nil
	}

	var placeholders = make([]string, len(ids))
	var args = make([]any, 0, len(ids)+1)
	args = append(args, roomID)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	var rows, err = s.tx.QueryContext(ctx,
		`SELECT event_id FROM events WHERE room_id = ? AND event_id IN (`+strings.Join(placeholders, ",")+`)`,
		args...)
	if err != nil {
		return "", false, fmt.Errorf("querying for occurring event ids: %w", err)
	}
	defer rows.Close()

	var present = make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", false, fmt.Errorf("scanning occurring event id: %w", err)
		}
		present[id] = true
	}
	if err := rows.Err(); err != nil {
		return "", false, err
	}

	for _, id := range ids {
		if present[id] {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (s eventStore) UpdateRelation(ctx context.Context, roomID, eventID string, content json.RawMessage, rel *timeline.RelationBookkeeping) error {
	var relTarget, relType sql.NullString
	if rel != nil {
		relTarget = sql.NullString{String: rel.TargetEventID, Valid: true}
		relType = sql.NullString{String: rel.RelationType, Valid: true}
	}

	var _, err = s.tx.ExecContext(ctx, `
		UPDATE events SET content = ?, relation_target_event_id = ?, relation_type = ?
		WHERE room_id = ? AND event_id = ?`,
		[]byte(content), relTarget, relType, roomID, eventID)
	if err != nil {
		return fmt.Errorf("updating relation bookkeeping for event %q: %w", eventID, err)
	}
	return nil
}

func (s eventStore) FirstEvents(ctx context.Context, roomID string, fragmentID int64, n int) ([]timeline.EventStorageEntry, error) {
	return s.edgeEvents(ctx, roomID, fragmentID, n, "ASC")
}

func (s eventStore) LastEvents(ctx context.Context, roomID string, fragmentID int64, n int) ([]timeline.EventStorageEntry, error) {
	return s.edgeEvents(ctx, roomID, fragmentID, n, "DESC")
}

// edgeEvents loads the n rows at one edge of a fragment, always
// returning them back out in ascending key order regardless of the
// scan direction used to pick them.
func (s eventStore) edgeEvents(ctx context.Context, roomID string, fragmentID int64, n int, scanOrder string) ([]timeline.EventStorageEntry, error) {
	var rows, err = s.tx.QueryContext(ctx,
		eventSelectColumns+` WHERE room_id = ? AND fragment_id = ? ORDER BY event_index `+scanOrder+` LIMIT ?`,
		roomID, fragmentID, n)
	if err != nil {
		return nil, fmt.Errorf("querying fragment %d edge events: %w", fragmentID, err)
	}
	defer rows.Close()

	var out []timeline.EventStorageEntry
	for rows.Next() {
		var entry, _, err = scanEventRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning fragment %d edge event: %w", fragmentID, err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if scanOrder == "DESC" {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

const eventSelectColumns = `
	SELECT room_id, event_id, fragment_id, event_index, sender, type, state_key,
	       content, prev_content, origin_ts,
	       member_display_name, member_avatar_url,
	       relation_target_event_id, relation_type
	FROM events`

func scanEventRow(scan func(dest ...any) error) (timeline.EventStorageEntry, bool, error) {
	var entry timeline.EventStorageEntry
	var stateKey sql.NullString
	var content, prevContent []byte
	var displayName, avatarURL, relTarget, relType sql.NullString

	var err = scan(
		&entry.RoomID, &entry.Event.EventID, &entry.Key.FragmentID, &entry.Key.EventIndex,
		&entry.Event.Sender, &entry.Event.Type, &stateKey,
		&content, &prevContent, &entry.Event.OriginServer,
		&displayName, &avatarURL, &relTarget, &relType,
	)
	if err == sql.ErrNoRows {
		return timeline.EventStorageEntry{}, false, nil
	}
	if err != nil {
		return timeline.EventStorageEntry{}, false, err
	}

	if stateKey.Valid {
		entry.Event.StateKey = &stateKey.String
	}
	entry.Event.Content = json.RawMessage(content)
	if prevContent != nil {
		entry.Event.PrevContent = json.RawMessage(prevContent)
	}

	if displayName.Valid || avatarURL.Valid {
		entry.Member = &timeline.MemberSnapshot{DisplayName: displayName.String, AvatarURL: avatarURL.String}
	}
	if relTarget.Valid {
		entry.Relation = &timeline.RelationBookkeeping{TargetEventID: relTarget.String, RelationType: relType.String}
	}

	return entry, true, nil
}

type annotations struct {
	displayName sql.NullString
	avatarURL   sql.NullString
}

func decomposeAnnotations(entry timeline.EventStorageEntry) (ann annotations, relTarget, relType sql.NullString) {
	if entry.Member != nil {
		ann.displayName = sql.NullString{String: entry.Member.DisplayName, Valid: true}
		ann.avatarURL = sql.NullString{String: entry.Member.AvatarURL, Valid: true}
	}
	if entry.Relation != nil {
		relTarget = sql.NullString{String: entry.Relation.TargetEventID, Valid: true}
		relType = sql.NullString{String: entry.Relation.RelationType, Valid: true}
	}
	return ann, relTarget, relType
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
