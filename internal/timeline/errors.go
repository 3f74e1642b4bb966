package timeline

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Sentinel error kinds, comparable with errors.Is. These are fatal:
// client bugs or protocol violations that must abort the enclosing
// transaction rather than silently corrupt the on-disk timeline graph.
var (
	// ErrMalformedResponse covers a /messages or /context response that
	// fails basic shape validation (chunk not a sequence, missing
	// tokens, end not a string).
	ErrMalformedResponse = errors.New("timeline: malformed response")

	// ErrStaleToken means the fragment's current pagination token no
	// longer matches response.start: another request already consumed
	// this gap, and honouring the response would duplicate or corrupt
	// the fragment.
	ErrStaleToken = errors.New("timeline: stale pagination token")

	// ErrUnknownFragment means a fragment ID reloaded from storage at
	// the top of a call could not be found.
	ErrUnknownFragment = errors.New("timeline: unknown fragment")

	// ErrLinkConflict means a fragment's linkedFragmentId is already set
	// to a different fragment than the one FragmentLinker is trying to
	// join it to. Never silently overwritten.
	ErrLinkConflict = errors.New("timeline: fragment link conflict")

	// ErrInvariantViolation covers invariant violations this package
	// detects but that do not fit one of the more specific kinds above,
	// e.g. findFirstOccurringEventId reporting an event ID absent from
	// the chunk it was handed.
	ErrInvariantViolation = errors.New("timeline: invariant violation")
)

// wrapf attaches a stack trace (via github.com/pkg/errors) to a fatal
// sentinel error, the way a client bug deserves more context than a
// recoverable condition does.
func wrapf(sentinel error, format string, args ...any) error {
	return pkgerrors.WithStack(fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel))
}
