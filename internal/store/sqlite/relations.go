package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/minio/highwayhash"

	"github.com/hydrogen-go/timelinefill/internal/timeline"
)

// contentHashKey is the fixed 32-byte HighwayHash key used to fingerprint
// event content. It need not be secret -- it only has to be stable
// across a process's lifetime so two computations of the same content
// agree.
var contentHashKey = make([]byte, highwayhash.Size)

const relReplace = "m.replace"

type relatesTo struct {
	RelType string `json:"rel_type"`
	EventID string `json:"event_id"`
}

// DefaultRelationWriter is a reference timeline.RelationWriter that
// folds Matrix edit (m.replace) relations into the event they target,
// the way a real client aggregates "new_content" onto the original
// message. Reaction (m.annotation) relations are recognized but left
// for the caller's annotation view to aggregate; this writer only
// guards against redundant target rewrites.
type DefaultRelationWriter struct{}

var _ timeline.RelationWriter = DefaultRelationWriter{}

// WriteGapRelation implements timeline.RelationWriter.
func (DefaultRelationWriter) WriteGapRelation(ctx context.Context, entry timeline.EventStorageEntry, dir timeline.Direction, txn timeline.Transaction, log timeline.Logger) ([]timeline.EventStorageEntry, error) {
	var rel, ok = extractRelation(entry.Event.Content)
	if !ok || rel.RelType != relReplace || rel.EventID == "" {
		return nil, nil
	}

	var target, found, err = txn.Events.GetByEventID(ctx, entry.RoomID, rel.EventID)
	if err != nil {
		return nil, fmt.Errorf("loading relation target %q: %w", rel.EventID, err)
	}
	if !found {
		// Edit arrived before the event it targets; nothing to fold yet.
		return nil, nil
	}

	var newContent = extractNewContent(entry.Event.Content)
	if newContent == nil {
		return nil, nil
	}

	var merged, mergeErr = jsonpatch.MergePatch(target.Event.Content, newContent)
	if mergeErr != nil {
		log.Log("discarding malformed edit relation", timeline.LogWarn, map[string]any{
			"roomId":     entry.RoomID,
			"eventId":    entry.Event.EventID,
			"targetId":   rel.EventID,
			"mergeError": mergeErr,
		})
		return nil, nil
	}

	if contentHashEqual(target.Event.Content, merged) {
		return nil, nil // idempotent: this edit was already folded in.
	}

	var updatedRel = &timeline.RelationBookkeeping{TargetEventID: rel.EventID, RelationType: rel.RelType}
	if err := txn.Events.UpdateRelation(ctx, entry.RoomID, rel.EventID, merged, updatedRel); err != nil {
		return nil, err
	}

	target.Event.Content = merged
	target.Relation = updatedRel
	return []timeline.EventStorageEntry{target}, nil
}

func extractRelation(content json.RawMessage) (relatesTo, bool) {
	var wrapper struct {
		RelatesTo relatesTo `json:"m.relates_to"`
	}
	if err := json.Unmarshal(content, &wrapper); err != nil {
		return relatesTo{}, false
	}
	if wrapper.RelatesTo.RelType == "" {
		return relatesTo{}, false
	}
	return wrapper.RelatesTo, true
}

func extractNewContent(content json.RawMessage) json.RawMessage {
	var wrapper struct {
		NewContent json.RawMessage `json:"m.new_content"`
	}
	if err := json.Unmarshal(content, &wrapper); err != nil {
		return nil
	}
	return wrapper.NewContent
}

// contentHashEqual reports whether a and b fingerprint to the same
// HighwayHash digest, used to skip re-writing a relation target whose
// merged content is unchanged from what is already stored.
func contentHashEqual(a, b []byte) bool {
	return contentHash(a) == contentHash(b)
}

func contentHash(data []byte) uint64 {
	var h, err = highwayhash.New64(contentHashKey)
	if err != nil {
		// contentHashKey is a fixed, correctly-sized key; this cannot fail.
		panic(err)
	}
	h.Write(data)
	return h.Sum64()
}
