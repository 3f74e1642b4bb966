package timeline

import "context"

// FragmentLinker mutates two FragmentBoundaryEntrys to create a
// verified link, clearing both pagination tokens, or sets a single
// entry's continuation token when no neighbour was found. It never
// silently overwrites an existing, conflicting link.
type FragmentLinker struct {
	Txn Transaction
}

// UpdateResult is what updateFragments produces: the fragments it
// persisted (in dynamic-order terms, the ones that must be handed to
// the FragmentIdComparer), and the accumulated entries sequence.
type UpdateResult struct {
	ChangedFragments []*Fragment
	Entries          []Entry
}

// UpdateFragments links entry to neighbour (or records entry's
// continuation token if neighbour is nil). entries is the
// already-accumulated entries sequence (e.g. from EventInserter); the
// fragment boundary entries this call touches are appended to it
// directionally and the combined sequence is returned.
func (l FragmentLinker) UpdateFragments(ctx context.Context, entry FragmentBoundaryEntry, neighbour *FragmentBoundaryEntry, endToken string, entries []Entry) (UpdateResult, error) {
	entries = appendDirectional(entries, boundaryEntryOf(entry), entry.Direction)

	var result = UpdateResult{Entries: entries}

	if neighbour != nil {
		if err := linkOneSide(entry, *neighbour); err != nil {
			return UpdateResult{}, err
		}
		if err := linkOneSide(*neighbour, entry); err != nil {
			return UpdateResult{}, err
		}

		entry.Fragment.setTokenForDirection(entry.Direction, "")
		neighbour.Fragment.setTokenForDirection(neighbour.Direction, "")

		if err := l.Txn.Fragments.Update(ctx, neighbour.Fragment); err != nil {
			return UpdateResult{}, err
		}
		result.Entries = appendDirectional(result.Entries, boundaryEntryOf(*neighbour), neighbour.Direction)
		result.ChangedFragments = append(result.ChangedFragments, entry.Fragment, neighbour.Fragment)
	} else {
		entry.Fragment.setTokenForDirection(entry.Direction, endToken)
	}

	if err := l.Txn.Fragments.Update(ctx, entry.Fragment); err != nil {
		return UpdateResult{}, err
	}

	return result, nil
}

// linkOneSide sets side's link to other's fragment if unset, or fails
// with ErrLinkConflict if it is already set to a different fragment.
// It refuses self-links even if somehow requested directly.
func linkOneSide(side, other FragmentBoundaryEntry) error {
	if side.FragmentID() == other.FragmentID() {
		return wrapf(ErrInvariantViolation, "fragment %d cannot link to itself", side.FragmentID())
	}

	var existing = side.LinkedFragmentID()
	if existing == 0 {
		side.Fragment.setLinkedFragmentForDirection(side.Direction, other.FragmentID())
		return nil
	}
	if existing != other.FragmentID() {
		return wrapf(ErrLinkConflict, "fragment %d already linked to %d, refusing to relink to %d",
			side.FragmentID(), existing, other.FragmentID())
	}
	return nil
}
