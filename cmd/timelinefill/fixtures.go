package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hydrogen-go/timelinefill/internal/timeline"
)

// fillFixture is the on-disk shape consumed by the "fill" subcommand:
// a /messages response addressed at a known fragment edge.
type fillFixture struct {
	RoomID     string                    `json:"roomId"`
	FragmentID int64                     `json:"fragmentId"`
	Direction  string                    `json:"direction"` // "f" or "b"
	Response   timeline.MessagesResponse `json:"response"`
}

// contextFixture is the on-disk shape consumed by the "context"
// subcommand: a /context response that may materialize a new fragment.
type contextFixture struct {
	RoomID   string                  `json:"roomId"`
	Response timeline.ContextResponse `json:"response"`
}

func loadFixture(path string, out any) error {
	var f, err = os.Open(path)
	if err != nil {
		return fmt.Errorf("opening fixture %q: %w", path, err)
	}
	defer f.Close()

	var dec = json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decoding fixture %q: %w", path, err)
	}
	return nil
}
