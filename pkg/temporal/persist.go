package temporal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/replicant-partners/chrysalis/internal/storage"
	"github.com/replicant-partners/chrysalis/pkg/rdf"
)

// snapshotRecord is the persisted form of one snapshot. Quads travel as
// N-Triples text; the graph position is implied by GraphURI.
type snapshotRecord struct {
	AgentID         string    `json:"agent_id"`
	GraphURI        string    `json:"graph_uri"`
	Version         int       `json:"version"`
	ValidFrom       time.Time `json:"valid_from"`
	ValidTo         time.Time `json:"valid_to,omitzero"`
	TransactionTime time.Time `json:"transaction_time"`
	SourceFormat    string    `json:"source_format,omitempty"`
	FidelityScore   float64   `json:"fidelity_score"`
	Quads           string    `json:"quads"`
}

const metaBaseURIKey = "base_uri"

// SaveTo writes the store's full state into st as an append-ordered snapshot
// journal: key = big-endian creation sequence, value = metadata record plus
// the graph's quads in N-Triples text. Existing journal contents are
// replaced.
func (s *Store) SaveTo(st storage.Storage) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txn, err := st.Begin(true)
	if err != nil {
		return err
	}
	defer txn.Rollback()

	// Drop any previous journal so the save is a full replacement
	it, err := txn.Scan(storage.TableSnapshots, nil, nil)
	if err != nil {
		return err
	}
	var stale [][]byte
	for it.Next() {
		stale = append(stale, append([]byte(nil), it.Key()...))
	}
	it.Close()
	for _, key := range stale {
		if err := txn.Delete(storage.TableSnapshots, key); err != nil {
			return err
		}
	}

	for seq, uri := range s.graphOrder {
		record := s.graphs[uri]
		value, err := json.Marshal(snapshotRecord{
			AgentID:         record.AgentID,
			GraphURI:        record.GraphURI,
			Version:         record.Version,
			ValidFrom:       record.ValidFrom,
			ValidTo:         record.ValidTo,
			TransactionTime: record.TransactionTime,
			SourceFormat:    record.SourceFormat,
			FidelityScore:   record.FidelityScore,
			Quads:           rdf.SerializeNTriples(record.Quads),
		})
		if err != nil {
			return fmt.Errorf("failed to encode snapshot %s: %w", uri, err)
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], uint64(seq)) // #nosec G115 - sequence numbers are non-negative
		if err := txn.Set(storage.TableSnapshots, key[:], value); err != nil {
			return err
		}
	}

	if err := txn.Set(storage.TableMeta, []byte(metaBaseURIKey), []byte(s.baseURI)); err != nil {
		return err
	}

	return txn.Commit()
}

// LoadStore rebuilds a store from a journal written by SaveTo. Snapshot
// metadata is restored exactly as written; the term indexes are rebuilt
// from the graphs. No events are emitted during a load.
func LoadStore(st storage.Storage, opts ...Option) (*Store, error) {
	txn, err := st.Begin(false)
	if err != nil {
		return nil, err
	}
	defer txn.Rollback()

	s := NewStore()
	if base, err := txn.Get(storage.TableMeta, []byte(metaBaseURIKey)); err == nil {
		s.baseURI = string(base)
	} else if err != storage.ErrNotFound {
		return nil, err
	}
	for _, opt := range opts {
		opt(s)
	}

	it, err := txn.Scan(storage.TableSnapshots, nil, nil)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	for it.Next() {
		value, err := it.Value()
		if err != nil {
			return nil, err
		}
		var record snapshotRecord
		if err := json.Unmarshal(value, &record); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot record: %w", err)
		}
		if err := s.restoreSnapshot(&record); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// restoreSnapshot rehydrates one persisted snapshot, verifying the version
// chain as it goes.
func (s *Store) restoreSnapshot(record *snapshotRecord) error {
	chain := s.agentVersions[record.AgentID]
	if record.Version != len(chain)+1 {
		return fmt.Errorf("%w: journal has version %d of agent %q after %d stored versions",
			ErrTemporalInvariantViolated, record.Version, record.AgentID, len(chain))
	}

	triples, err := rdf.ParseNTriplesStrict(strings.NewReader(record.Quads))
	if err != nil {
		return fmt.Errorf("failed to parse quads of graph %s: %w", record.GraphURI, err)
	}

	graphNode := rdf.NewNamedNode(record.GraphURI)
	quads := make([]*rdf.Quad, 0, len(triples))
	for _, triple := range triples {
		quad, err := rdf.NewQuad(triple.Subject, triple.Predicate, triple.Object, graphNode)
		if err != nil {
			return err
		}
		quads = append(quads, quad)
	}

	snapshot := &Snapshot{
		AgentID:         record.AgentID,
		GraphURI:        record.GraphURI,
		Version:         record.Version,
		ValidFrom:       record.ValidFrom,
		ValidTo:         record.ValidTo,
		TransactionTime: record.TransactionTime,
		Quads:           quads,
		SourceFormat:    record.SourceFormat,
		FidelityScore:   record.FidelityScore,
	}

	if record.Version == 1 {
		s.agentOrder = append(s.agentOrder, record.AgentID)
	}
	s.agentVersions[record.AgentID] = append(chain, record.GraphURI)
	s.graphOrder = append(s.graphOrder, record.GraphURI)
	s.graphs[record.GraphURI] = snapshot
	return s.indexGraph(snapshot)
}
