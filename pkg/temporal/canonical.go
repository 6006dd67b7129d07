package temporal

import (
	"time"

	"github.com/replicant-partners/chrysalis/pkg/rdf"
)

// NativeFormat is the source-framework tag recorded when a snapshot was not
// converted from an external form.
const NativeFormat = "chrysalis"

// CanonicalAgent is the protocol-neutral projection of a snapshot
type CanonicalAgent struct {
	AgentURI        string
	Quads           []*rdf.Quad
	SourceFramework string
	Extensions      []string
	Metadata        CanonicalMetadata
}

// CanonicalMetadata carries the translation provenance of a canonical record
type CanonicalMetadata struct {
	FidelityScore float64
	TranslatedAt  time.Time

	// Conversion counters; zero for records projected straight from the store
	LossyFields int
	Warnings    int
}

// SnapshotToCanonical projects a snapshot into the canonical agent
// representation. The projection rule lives with the store because it owns
// the data model the rule reads.
func (s *Store) SnapshotToCanonical(snapshot *Snapshot, agentID string) *CanonicalAgent {
	sourceFramework := snapshot.SourceFormat
	if sourceFramework == "" {
		sourceFramework = NativeFormat
	}

	fidelity := snapshot.FidelityScore
	if fidelity == 0 {
		fidelity = 1.0
	}

	return &CanonicalAgent{
		AgentURI:        s.baseURI + "/agent/" + agentID,
		Quads:           append([]*rdf.Quad(nil), snapshot.Quads...),
		SourceFramework: sourceFramework,
		Extensions:      []string{},
		Metadata: CanonicalMetadata{
			FidelityScore: fidelity,
			TranslatedAt:  snapshot.ValidFrom,
		},
	}
}
