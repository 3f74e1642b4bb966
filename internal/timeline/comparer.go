package timeline

import "sync"

// Order reports the relative position of two fragments known to be in
// the same linked chain, or that they are not (yet) known to be
// connected at all.
type Order int

const (
	// Incomparable means the two fragment IDs are not known to be in
	// the same connected chain. Callers must handle this explicitly;
	// it is not an error.
	Incomparable Order = iota
	Before
	Equal
	After
)

// FragmentIdComparer is a dynamic partial order over fragment IDs,
// rebuilt whenever fragment links change. It is process-wide shared
// state: it must be mutated only after the transaction that produced a
// ChangedFragments list has committed, never before or during.
//
// Internally this keeps a rank per fragment within its connected chain,
// derived from the directed graph previousId -> id -> nextId. Applying
// a batch of changed fragments recomputes ranks only for the chains
// those fragments belong to, not the whole set. Finding a chain's
// members and relabelling merged chains both scan every fragment the
// comparer has observed, so the cost of Apply grows with the total
// number of known fragments, not only with the touched chains.
type FragmentIdComparer struct {
	mu sync.RWMutex

	// chainOf maps a fragment ID to an opaque chain identifier shared by
	// every fragment in the same connected chain.
	chainOf map[int64]int64
	// rank maps a fragment ID to its position within its chain. Only
	// meaningful relative to other fragments with the same chainOf.
	rank map[int64]int64
	// next and prev are the full adjacency this comparer has learned:
	// next maps a fragment ID to its successor, prev to its predecessor.
	next map[int64]int64
	prev map[int64]int64

	nextChainID int64
}

// NewFragmentIdComparer returns an empty comparer.
func NewFragmentIdComparer() *FragmentIdComparer {
	return &FragmentIdComparer{
		chainOf: make(map[int64]int64),
		rank:    make(map[int64]int64),
		next:    make(map[int64]int64),
		prev:    make(map[int64]int64),
	}
}

// Compare returns the relative order of a and b. If either has never
// been observed, or they are not in the same connected chain, it
// reports Incomparable.
func (c *FragmentIdComparer) Compare(a, b int64) Order {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if a == b {
		return Equal
	}
	var ca, oka = c.chainOf[a]
	var cb, okb = c.chainOf[b]
	if !oka || !okb || ca != cb {
		return Incomparable
	}
	switch {
	case c.rank[a] < c.rank[b]:
		return Before
	case c.rank[a] > c.rank[b]:
		return After
	default:
		return Equal
	}
}

// Apply folds a batch of changed fragments (as returned by GapWriter,
// after the caller has committed the transaction that produced them)
// into the comparer's graph, and rebuilds rank only for the chains
// those fragments touch.
func (c *FragmentIdComparer) Apply(fragments []*Fragment) {
	if len(fragments) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var touchedChains = make(map[int64]struct{})

	for _, f := range fragments {
		c.observe(f.ID)
		if f.HasNext() {
			c.observe(f.Next)
			c.next[f.ID] = f.Next
			c.prev[f.Next] = f.ID
		}
		if f.HasPrevious() {
			c.observe(f.Previous)
			c.prev[f.ID] = f.Previous
			c.next[f.Previous] = f.ID
		}
	}

	for _, f := range fragments {
		touchedChains[c.mergeChains(f.ID)] = struct{}{}
	}

	for chain := range touchedChains {
		c.rebuildChain(chain)
	}
}

func (c *FragmentIdComparer) observe(id int64) {
	if _, ok := c.chainOf[id]; !ok {
		c.nextChainID++
		c.chainOf[id] = c.nextChainID
	}
}

// mergeChains walks outward from id along known prev/next edges,
// unifying every fragment it touches onto a single chain ID, and
// returns that chain ID.
func (c *FragmentIdComparer) mergeChains(id int64) int64 {
	var chain = c.chainOf[id]

	var visit = func(other int64) {
		var otherChain = c.chainOf[other]
		if otherChain == chain {
			return
		}
		// Relabel every fragment on the other chain onto chain.
		for fid, ch := range c.chainOf {
			if ch == otherChain {
				c.chainOf[fid] = chain
			}
		}
	}

	var fifo = []int64{id}
	var seen = map[int64]struct{}{id: {}}
	for len(fifo) != 0 {
		var cur = fifo[0]
		fifo = fifo[1:]
		if n, ok := c.next[cur]; ok {
			visit(n)
			if _, ok := seen[n]; !ok {
				seen[n] = struct{}{}
				fifo = append(fifo, n)
			}
		}
		if p, ok := c.prev[cur]; ok {
			visit(p)
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				fifo = append(fifo, p)
			}
		}
	}
	return chain
}

// rebuildChain finds the head of the given chain (the fragment with no
// known predecessor, or an arbitrary member if the chain only contains
// a cycle -- which would itself be a stored invariant violation) and
// assigns ranks by walking forward.
func (c *FragmentIdComparer) rebuildChain(chain int64) {
	var members []int64
	for id, ch := range c.chainOf {
		if ch == chain {
			members = append(members, id)
		}
	}
	if len(members) == 0 {
		return
	}

	var head = members[0]
	for _, id := range members {
		if _, hasPrev := c.prev[id]; !hasPrev {
			head = id
			break
		}
	}

	var rank int64
	var cur = head
	var visited = make(map[int64]struct{}, len(members))
	for {
		if _, ok := visited[cur]; ok {
			break // defensive: a cycle should never reach here.
		}
		visited[cur] = struct{}{}
		c.rank[cur] = rank
		rank++

		next, ok := c.next[cur]
		if !ok {
			break
		}
		cur = next
	}
}
