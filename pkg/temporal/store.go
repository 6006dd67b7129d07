// Package temporal implements a bitemporal, versioned, named-graph store of
// RDF quads. Every snapshot of an agent lands in a fresh named graph stamped
// with valid-time and transaction-time metadata; earlier versions are
// superseded by closing their valid-time interval, never rewritten.
package temporal

import (
	"fmt"
	"sync"
	"time"

	"github.com/replicant-partners/chrysalis/internal/encoding"
	"github.com/replicant-partners/chrysalis/pkg/rdf"
)

// DefaultBaseURI is the prefix under which graph and agent URIs are
// synthesized when the store is not configured with one.
const DefaultBaseURI = "https://chrysalis.replicant.dev"

// Snapshot is the public projection of one stored version of an agent.
// Snapshots returned by the store are copies; mutations go through store
// operations.
type Snapshot struct {
	AgentID  string
	GraphURI string
	Version  int

	// ValidFrom is when the snapshot became true in the modeled world.
	ValidFrom time.Time
	// ValidTo is when the snapshot ceased to be true. The zero time means
	// the interval is open and the snapshot is current.
	ValidTo time.Time
	// TransactionTime is the insertion instant. Never rewritten.
	TransactionTime time.Time

	Quads         []*rdf.Quad
	SourceFormat  string
	FidelityScore float64
}

// IsOpen reports whether the snapshot's valid-time interval is open
func (s *Snapshot) IsOpen() bool {
	return s.ValidTo.IsZero()
}

func (s *Snapshot) clone() *Snapshot {
	c := *s
	c.Quads = append([]*rdf.Quad(nil), s.Quads...)
	return &c
}

// CreateOptions carries the optional metadata of a snapshot insertion
type CreateOptions struct {
	// SourceFormat tags the framework the quads were converted from
	SourceFormat string

	// FidelityScore is a caller-supplied scalar in [0, 1]; nil records the
	// default of 1.0. The store does not interpret it.
	FidelityScore *float64

	// ValidFrom back- or forward-dates the snapshot; the zero time means
	// the insertion instant.
	ValidFrom time.Time
}

// SnapshotQuery scopes snapshot lookups and queries in time. Zero values
// mean the dimension is unconstrained.
type SnapshotQuery struct {
	// Version selects one specific version (versions start at 1)
	Version int

	// AsOf selects by valid time: the version whose [ValidFrom, ValidTo)
	// interval contains the instant, treating open as +infinity
	AsOf time.Time

	// AsRecorded selects by transaction time: versions recorded at or
	// before the instant
	AsRecorded time.Time

	// CurrentOnly restricts to snapshots whose valid-time is still open
	CurrentOnly bool
}

type graphSet map[string]struct{}

// Store is the temporal quad store. All operations are safe for concurrent
// use; snapshot creation for one agent serializes under the store's writer
// lock so version assignment and supersession are atomic.
type Store struct {
	mu      sync.RWMutex
	baseURI string
	now     func() time.Time

	// mutating spans a mutation including its synchronous event delivery,
	// so a handler that mutates is detected instead of corrupting state
	mutating bool

	graphOrder []string
	graphs     map[string]*Snapshot // graph URI -> owned record

	agentOrder    []string
	agentVersions map[string][]string // agent id -> graph URIs, ascending version

	subjectIndex   map[encoding.TermKey]graphSet
	predicateIndex map[encoding.TermKey]graphSet
	objectIndex    map[encoding.TermKey]graphSet

	subs   []subscriber
	nextID int
}

// Option configures a Store
type Option func(*Store)

// WithBaseURI overrides the prefix used for synthesized graph and agent URIs
func WithBaseURI(base string) Option {
	return func(s *Store) { s.baseURI = base }
}

// WithClock overrides the time source, for tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty store
func NewStore(opts ...Option) *Store {
	s := &Store{
		baseURI:        DefaultBaseURI,
		now:            time.Now,
		graphs:         make(map[string]*Snapshot),
		agentVersions:  make(map[string][]string),
		subjectIndex:   make(map[encoding.TermKey]graphSet),
		predicateIndex: make(map[encoding.TermKey]graphSet),
		objectIndex:    make(map[encoding.TermKey]graphSet),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BaseURI returns the prefix used for synthesized URIs
func (s *Store) BaseURI() string {
	return s.baseURI
}

// GraphURI synthesizes the deterministic graph URI for a version of an agent
func (s *Store) GraphURI(agentID string, version int) string {
	return fmt.Sprintf("%s/snapshot/%s/v%d", s.baseURI, agentID, version)
}

// CreateSnapshot stores a new version of an agent. The input quads are
// rewritten into a fresh named graph (their original graph positions are
// discarded); the previous open version, if any, has its valid-time closed
// at the insertion instant.
func (s *Store) CreateSnapshot(agentID string, quads []*rdf.Quad, opts *CreateOptions) (*Snapshot, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: empty agent id", ErrUnknownAgent)
	}

	s.mu.Lock()
	if s.mutating {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: create snapshot for agent %q during another mutation", ErrReentrantMutation, agentID)
	}
	s.mutating = true

	now := s.now()
	version := len(s.agentVersions[agentID]) + 1
	graphURI := s.GraphURI(agentID, version)

	validFrom := now
	sourceFormat := ""
	fidelity := 1.0
	if opts != nil {
		if !opts.ValidFrom.IsZero() {
			validFrom = opts.ValidFrom
		}
		sourceFormat = opts.SourceFormat
		if opts.FidelityScore != nil {
			fidelity = *opts.FidelityScore
		}
	}

	// Rewrite every quad into the synthesized graph
	rewritten := make([]*rdf.Quad, 0, len(quads))
	graphNode := rdf.NewNamedNode(graphURI)
	for _, quad := range quads {
		q, err := rdf.NewQuad(quad.Subject, quad.Predicate, quad.Object, graphNode)
		if err != nil {
			s.mutating = false
			s.mu.Unlock()
			return nil, err
		}
		rewritten = append(rewritten, q)
	}

	// Transaction times of one agent never move backwards
	if chain := s.agentVersions[agentID]; len(chain) > 0 {
		last := s.graphs[chain[len(chain)-1]]
		if now.Before(last.TransactionTime) {
			s.mutating = false
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: transaction time %v precedes version %d of agent %q", ErrTemporalInvariantViolated, now, last.Version, agentID)
		}
		// Supersede the previous version. Closing at the insertion
		// instant, not at ValidFrom: back-dated snapshots may overlap
		// the closed interval of their predecessor.
		if last.IsOpen() {
			last.ValidTo = now
		}
	}

	record := &Snapshot{
		AgentID:         agentID,
		GraphURI:        graphURI,
		Version:         version,
		ValidFrom:       validFrom,
		TransactionTime: now,
		Quads:           rewritten,
		SourceFormat:    sourceFormat,
		FidelityScore:   fidelity,
	}

	if version == 1 {
		s.agentOrder = append(s.agentOrder, agentID)
	}
	s.agentVersions[agentID] = append(s.agentVersions[agentID], graphURI)
	s.graphOrder = append(s.graphOrder, graphURI)
	s.graphs[graphURI] = record
	if err := s.indexGraph(record); err != nil {
		s.mutating = false
		s.mu.Unlock()
		return nil, err
	}

	result := record.clone()
	s.mu.Unlock()

	s.emit(Event{Kind: EventSnapshotCreated, AgentID: agentID, Snapshot: result.clone()})

	s.mu.Lock()
	s.mutating = false
	s.mu.Unlock()

	return result, nil
}

// GetSnapshot returns a snapshot of the agent selected by query, or nil when
// none matches. With a nil or zero query it returns the currently open
// (latest) version.
func (s *Store) GetSnapshot(agentID string, query *SnapshotQuery) *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.agentVersions[agentID]
	// Latest matching version wins; back-dating can make closed intervals
	// overlap, so an as-of instant may sit inside more than one.
	for i := len(chain) - 1; i >= 0; i-- {
		record := s.graphs[chain[i]]
		if snapshotVisible(record, query) {
			return record.clone()
		}
	}
	return nil
}

// GetAgentHistory returns every snapshot of the agent in ascending version
// order, or nil for an unknown agent.
func (s *Store) GetAgentHistory(agentID string) []*Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.agentVersions[agentID]
	if chain == nil {
		return nil
	}
	history := make([]*Snapshot, 0, len(chain))
	for _, uri := range chain {
		history = append(history, s.graphs[uri].clone())
	}
	return history
}

// GetGraphQuads returns the quads of a graph in insertion order, or nil for
// an unknown graph.
func (s *Store) GetGraphQuads(graphURI string) []*rdf.Quad {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.graphs[graphURI]
	if !ok {
		return nil
	}
	quads := make([]*rdf.Quad, len(record.Quads))
	copy(quads, record.Quads)
	return quads
}

// DeleteAgent removes every graph, snapshot record, and index entry of the
// agent. It reports whether the agent existed.
func (s *Store) DeleteAgent(agentID string) (bool, error) {
	s.mu.Lock()
	if s.mutating {
		s.mu.Unlock()
		return false, fmt.Errorf("%w: delete agent %q during another mutation", ErrReentrantMutation, agentID)
	}

	chain, ok := s.agentVersions[agentID]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	s.mutating = true

	removed := make(map[string]struct{}, len(chain))
	for _, uri := range chain {
		record := s.graphs[uri]
		s.unindexGraph(record)
		delete(s.graphs, uri)
		removed[uri] = struct{}{}
	}
	s.graphOrder = filterOut(s.graphOrder, removed)
	s.agentOrder = filterOut(s.agentOrder, map[string]struct{}{agentID: {}})
	delete(s.agentVersions, agentID)

	s.mu.Unlock()
	s.emit(Event{Kind: EventAgentDeleted, AgentID: agentID})

	s.mu.Lock()
	s.mutating = false
	s.mu.Unlock()

	return true, nil
}

// Clear wipes every table
func (s *Store) Clear() error {
	s.mu.Lock()
	if s.mutating {
		s.mu.Unlock()
		return fmt.Errorf("%w: clear during another mutation", ErrReentrantMutation)
	}
	s.mutating = true

	s.graphOrder = nil
	s.graphs = make(map[string]*Snapshot)
	s.agentOrder = nil
	s.agentVersions = make(map[string][]string)
	s.subjectIndex = make(map[encoding.TermKey]graphSet)
	s.predicateIndex = make(map[encoding.TermKey]graphSet)
	s.objectIndex = make(map[encoding.TermKey]graphSet)

	s.mu.Unlock()
	s.emit(Event{Kind: EventCleared})

	s.mu.Lock()
	s.mutating = false
	s.mu.Unlock()

	return nil
}

// Stats summarizes the store's contents
type Stats struct {
	GraphCount    int
	QuadCount     int
	AgentCount    int
	SnapshotCount int

	OldestValidFrom time.Time
	NewestValidFrom time.Time

	// ApproxBytes is a coarse estimate of the stored term text
	ApproxBytes int64
}

// GetStats returns summary statistics
func (s *Store) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		GraphCount:    len(s.graphs),
		AgentCount:    len(s.agentVersions),
		SnapshotCount: len(s.graphs),
	}
	for _, uri := range s.graphOrder {
		record := s.graphs[uri]
		stats.QuadCount += len(record.Quads)
		if stats.OldestValidFrom.IsZero() || record.ValidFrom.Before(stats.OldestValidFrom) {
			stats.OldestValidFrom = record.ValidFrom
		}
		if record.ValidFrom.After(stats.NewestValidFrom) {
			stats.NewestValidFrom = record.ValidFrom
		}
		for _, quad := range record.Quads {
			stats.ApproxBytes += int64(len(quad.Subject.String()) + len(quad.Predicate.String()) +
				len(quad.Object.String()) + len(quad.Graph.String()))
		}
	}
	return stats
}

// VerifyIndexes checks the three term indexes against the graph table and
// returns ErrIndexCorrupted on any disagreement.
func (s *Store) VerifyIndexes() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, index := range []map[encoding.TermKey]graphSet{s.subjectIndex, s.predicateIndex, s.objectIndex} {
		for key, set := range index {
			if len(set) == 0 {
				return fmt.Errorf("%w: empty graph set retained for term key %x", ErrIndexCorrupted, key[:])
			}
			for uri := range set {
				if _, ok := s.graphs[uri]; !ok {
					return fmt.Errorf("%w: index references missing graph %s", ErrIndexCorrupted, uri)
				}
			}
		}
	}

	check := func(index map[encoding.TermKey]graphSet, term rdf.Term, uri string) error {
		key, err := encoding.KeyForTerm(term)
		if err != nil {
			return err
		}
		if _, ok := index[key][uri]; !ok {
			return fmt.Errorf("%w: graph %s missing from index for %s", ErrIndexCorrupted, uri, term)
		}
		return nil
	}
	for _, uri := range s.graphOrder {
		record := s.graphs[uri]
		for _, quad := range record.Quads {
			if err := check(s.subjectIndex, quad.Subject, uri); err != nil {
				return err
			}
			if err := check(s.predicateIndex, quad.Predicate, uri); err != nil {
				return err
			}
			if quad.Object.Type() != rdf.TermTypeLiteral {
				if err := check(s.objectIndex, quad.Object, uri); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// indexGraph adds the graph's terms to the subject, predicate, and object
// indexes. Literal objects are not indexed.
func (s *Store) indexGraph(record *Snapshot) error {
	for _, quad := range record.Quads {
		if err := indexTerm(s.subjectIndex, quad.Subject, record.GraphURI); err != nil {
			return err
		}
		if err := indexTerm(s.predicateIndex, quad.Predicate, record.GraphURI); err != nil {
			return err
		}
		if quad.Object.Type() != rdf.TermTypeLiteral {
			if err := indexTerm(s.objectIndex, quad.Object, record.GraphURI); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) unindexGraph(record *Snapshot) {
	for _, quad := range record.Quads {
		unindexTerm(s.subjectIndex, quad.Subject, record.GraphURI)
		unindexTerm(s.predicateIndex, quad.Predicate, record.GraphURI)
		if quad.Object.Type() != rdf.TermTypeLiteral {
			unindexTerm(s.objectIndex, quad.Object, record.GraphURI)
		}
	}
}

func indexTerm(index map[encoding.TermKey]graphSet, term rdf.Term, graphURI string) error {
	key, err := encoding.KeyForTerm(term)
	if err != nil {
		return err
	}
	set, ok := index[key]
	if !ok {
		set = make(graphSet)
		index[key] = set
	}
	set[graphURI] = struct{}{}
	return nil
}

func unindexTerm(index map[encoding.TermKey]graphSet, term rdf.Term, graphURI string) {
	key, err := encoding.KeyForTerm(term)
	if err != nil {
		return
	}
	if set, ok := index[key]; ok {
		delete(set, graphURI)
		if len(set) == 0 {
			delete(index, key)
		}
	}
}

// snapshotVisible applies the temporal filter: every constrained dimension
// of the query must admit the record.
func snapshotVisible(record *Snapshot, query *SnapshotQuery) bool {
	if query == nil {
		return true
	}
	if query.Version != 0 && record.Version != query.Version {
		return false
	}
	if query.CurrentOnly && !record.IsOpen() {
		return false
	}
	if !query.AsOf.IsZero() {
		if query.AsOf.Before(record.ValidFrom) {
			return false
		}
		if !record.IsOpen() && !query.AsOf.Before(record.ValidTo) {
			return false
		}
	}
	if !query.AsRecorded.IsZero() && record.TransactionTime.After(query.AsRecorded) {
		return false
	}
	return true
}

func filterOut(order []string, removed map[string]struct{}) []string {
	kept := order[:0]
	for _, v := range order {
		if _, drop := removed[v]; !drop {
			kept = append(kept, v)
		}
	}
	return kept
}
