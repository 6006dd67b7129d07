package temporal

import "errors"

var (
	// ErrUnknownAgent signals an operation whose contract requires an
	// existing agent. Lookup operations return nil instead.
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrUnknownGraph is available for callers that distinguish a missing
	// graph from an empty result. The store itself returns nil.
	ErrUnknownGraph = errors.New("unknown graph")

	// ErrTemporalInvariantViolated reports that an insertion would break
	// the version-chain invariants. Internal and fatal.
	ErrTemporalInvariantViolated = errors.New("temporal invariant violated")

	// ErrIndexCorrupted reports that index state disagrees with the graph
	// table. Internal and fatal.
	ErrIndexCorrupted = errors.New("index corrupted")

	// ErrReentrantMutation reports that an event handler attempted to
	// mutate the store while a mutation was in flight.
	ErrReentrantMutation = errors.New("reentrant mutation")
)
