package temporal

import (
	"strings"
	"time"

	"github.com/replicant-partners/chrysalis/pkg/rdf"
)

// Well-known predicates used by agent discovery
var (
	// PredicateName carries an agent's display name as a literal
	PredicateName = rdf.NewNamedNode(DefaultBaseURI + "/ontology#name")

	// PredicateToolName carries one capability the agent provides
	PredicateToolName = rdf.NewNamedNode(DefaultBaseURI + "/ontology#tool-name")
)

// AgentSummary is the discovery view of an agent's latest snapshot
type AgentSummary struct {
	AgentID       string
	Name          string
	LatestVersion int
	Capabilities  []string
	Protocols     []string
	ValidFrom     time.Time
}

// DiscoveryCriteria filters discovered agents. Zero-valued fields do not
// constrain.
type DiscoveryCriteria struct {
	// NameContains matches the display name case-insensitively
	NameContains string

	// RequiredCapabilities must all be present
	RequiredCapabilities []string

	// RequiredProtocols must all be present
	RequiredProtocols []string

	// CreatedAfter / CreatedBefore bound the latest snapshot's ValidFrom
	CreatedAfter  time.Time
	CreatedBefore time.Time
}

// DiscoverAgents extracts structured facts from every agent's latest
// snapshot and returns the agents matching criteria, in agent insertion
// order. Names come from the well-known name predicate, capabilities from
// the tool-name predicate, and protocols from rdf:type objects whose local
// name mentions "Protocol" or "Binding".
func (s *Store) DiscoverAgents(criteria *DiscoveryCriteria) []*AgentSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summaries []*AgentSummary
	for _, agentID := range s.agentOrder {
		chain := s.agentVersions[agentID]
		record := s.graphs[chain[len(chain)-1]]
		summary := summarize(agentID, record)
		if matchesCriteria(summary, criteria) {
			summaries = append(summaries, summary)
		}
	}
	return summaries
}

// ListAgents returns unfiltered agent summaries, paged by offset and limit.
// A non-positive limit means no limit.
func (s *Store) ListAgents(limit, offset int) []*AgentSummary {
	all := s.DiscoverAgents(nil)
	if offset >= len(all) {
		return nil
	}
	if offset > 0 {
		all = all[offset:]
	}
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

func summarize(agentID string, record *Snapshot) *AgentSummary {
	summary := &AgentSummary{
		AgentID:       agentID,
		LatestVersion: record.Version,
		ValidFrom:     record.ValidFrom,
	}

	for _, quad := range record.Quads {
		switch {
		case quad.Predicate.Equals(PredicateName):
			if lit, ok := quad.Object.(*rdf.Literal); ok && summary.Name == "" {
				summary.Name = lit.Value
			}
		case quad.Predicate.Equals(PredicateToolName):
			if lit, ok := quad.Object.(*rdf.Literal); ok {
				summary.Capabilities = append(summary.Capabilities, lit.Value)
			}
		case quad.Predicate.Equals(rdf.RDFType):
			if node, ok := quad.Object.(*rdf.NamedNode); ok {
				local := localName(node.IRI)
				if strings.Contains(local, "Protocol") || strings.Contains(local, "Binding") {
					summary.Protocols = append(summary.Protocols, local)
				}
			}
		}
	}
	return summary
}

func matchesCriteria(summary *AgentSummary, criteria *DiscoveryCriteria) bool {
	if criteria == nil {
		return true
	}
	if criteria.NameContains != "" &&
		!strings.Contains(strings.ToLower(summary.Name), strings.ToLower(criteria.NameContains)) {
		return false
	}
	for _, want := range criteria.RequiredCapabilities {
		if !containsString(summary.Capabilities, want) {
			return false
		}
	}
	for _, want := range criteria.RequiredProtocols {
		if !containsString(summary.Protocols, want) {
			return false
		}
	}
	if !criteria.CreatedAfter.IsZero() && summary.ValidFrom.Before(criteria.CreatedAfter) {
		return false
	}
	if !criteria.CreatedBefore.IsZero() && summary.ValidFrom.After(criteria.CreatedBefore) {
		return false
	}
	return true
}

// localName extracts the fragment or final path segment of an IRI
func localName(iri string) string {
	if idx := strings.LastIndex(iri, "#"); idx != -1 {
		return iri[idx+1:]
	}
	if idx := strings.LastIndex(iri, "/"); idx != -1 {
		return iri[idx+1:]
	}
	return iri
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
