package temporal

import (
	"fmt"

	"github.com/replicant-partners/chrysalis/internal/encoding"
	"github.com/replicant-partners/chrysalis/pkg/rdf"
)

// PatternTerm is one position of a query pattern: a bound term, a wildcard,
// or a named variable.
type PatternTerm interface {
	isPatternTerm()
}

type exactTerm struct {
	term rdf.Term
}

func (exactTerm) isPatternTerm() {}

type wildcardTerm struct{}

func (wildcardTerm) isPatternTerm() {}

// Variable is a named query variable
type Variable struct {
	Name string
}

func (*Variable) isPatternTerm() {}

func (v *Variable) String() string {
	return "?" + v.Name
}

// Exact binds a pattern position to a term
func Exact(term rdf.Term) PatternTerm {
	return exactTerm{term: term}
}

// Any leaves a pattern position unconstrained
func Any() PatternTerm {
	return wildcardTerm{}
}

// Var puts a named variable at a pattern position
func Var(name string) PatternTerm {
	return &Variable{Name: name}
}

// Pattern is a triple pattern over the subject, predicate, and object
// positions. A nil position is treated as a wildcard.
type Pattern struct {
	Subject   PatternTerm
	Predicate PatternTerm
	Object    PatternTerm
}

// NewPattern creates a pattern; nil positions become wildcards
func NewPattern(subject, predicate, object PatternTerm) *Pattern {
	if subject == nil {
		subject = wildcardTerm{}
	}
	if predicate == nil {
		predicate = wildcardTerm{}
	}
	if object == nil {
		object = wildcardTerm{}
	}
	return &Pattern{Subject: subject, Predicate: predicate, Object: object}
}

// Binding maps variable names to the terms they are bound to
type Binding map[string]rdf.Term

func (b Binding) clone() Binding {
	c := make(Binding, len(b))
	for k, v := range b {
		c[k] = v
	}
	return c
}

// Solutions is the result of a basic-graph-pattern evaluation: the flat list
// of successful bindings plus every variable appearing in the patterns.
type Solutions struct {
	Bindings  []Binding
	Variables []string
}

// Query scans every graph visible under scope for quads matching the
// pattern. Variables in the pattern behave as wildcards. Quads come back in
// insertion order within each graph, graphs in insertion order.
func (s *Store) Query(pattern *Pattern, scope *SnapshotQuery) ([]*rdf.Quad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates, empty, err := s.candidateGraphs(pattern)
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, nil
	}

	var results []*rdf.Quad
	for _, uri := range s.graphOrder {
		if candidates != nil {
			if _, ok := candidates[uri]; !ok {
				continue
			}
		}
		record := s.graphs[uri]
		if !snapshotVisible(record, scope) {
			continue
		}
		for _, quad := range record.Quads {
			if matchQuad(pattern, quad) {
				results = append(results, quad)
			}
		}
	}
	return results, nil
}

// Select evaluates a basic graph pattern. All patterns of one call are
// joined within each visible graph; there is no cross-graph join. Results
// from different graphs are concatenated in graph insertion order, without
// deduplication.
func (s *Store) Select(patterns []*Pattern, scope *SnapshotQuery) (*Solutions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	solutions := &Solutions{Variables: collectVariables(patterns)}
	if len(patterns) == 0 {
		return solutions, nil
	}

	for _, uri := range s.graphOrder {
		record := s.graphs[uri]
		if !snapshotVisible(record, scope) {
			continue
		}
		solutions.Bindings = append(solutions.Bindings, evalPatterns(record.Quads, patterns, Binding{})...)
	}
	return solutions, nil
}

// Construct evaluates the patterns and instantiates the template triples
// once per binding. Template triples with an unbound position, or whose
// instantiation violates quad positional constraints, are skipped. The
// produced quads carry the default graph.
func (s *Store) Construct(template []*Pattern, patterns []*Pattern, scope *SnapshotQuery) ([]*rdf.Quad, error) {
	solutions, err := s.Select(patterns, scope)
	if err != nil {
		return nil, err
	}

	var results []*rdf.Quad
	for _, binding := range solutions.Bindings {
		for _, tmpl := range template {
			subject, ok := resolveTemplateTerm(tmpl.Subject, binding)
			if !ok {
				continue
			}
			predicate, ok := resolveTemplateTerm(tmpl.Predicate, binding)
			if !ok {
				continue
			}
			object, ok := resolveTemplateTerm(tmpl.Object, binding)
			if !ok {
				continue
			}
			quad, err := rdf.NewTriple(subject, predicate, object)
			if err != nil {
				continue
			}
			results = append(results, quad)
		}
	}
	return results, nil
}

// candidateGraphs narrows the graphs worth scanning using the term indexes.
// It returns (nil, false, nil) when no position narrows the scan and
// (nil, true, nil) when a bound term appears in no graph at all.
func (s *Store) candidateGraphs(pattern *Pattern) (graphSet, bool, error) {
	var candidates graphSet

	narrow := func(index map[encoding.TermKey]graphSet, term rdf.Term) (bool, error) {
		key, err := encoding.KeyForTerm(term)
		if err != nil {
			return false, err
		}
		set, ok := index[key]
		if !ok {
			return true, nil
		}
		if candidates == nil {
			candidates = make(graphSet, len(set))
			for uri := range set {
				if _, ok := s.graphs[uri]; !ok {
					return false, fmt.Errorf("%w: index references missing graph %s", ErrIndexCorrupted, uri)
				}
				candidates[uri] = struct{}{}
			}
			return false, nil
		}
		for uri := range candidates {
			if _, ok := set[uri]; !ok {
				delete(candidates, uri)
			}
		}
		return len(candidates) == 0, nil
	}

	if t, ok := pattern.Subject.(exactTerm); ok {
		if empty, err := narrow(s.subjectIndex, t.term); empty || err != nil {
			return nil, empty, err
		}
	}
	if t, ok := pattern.Predicate.(exactTerm); ok {
		if empty, err := narrow(s.predicateIndex, t.term); empty || err != nil {
			return nil, empty, err
		}
	}
	// Literal objects are not indexed; fall back to scanning for them
	if t, ok := pattern.Object.(exactTerm); ok && t.term.Type() != rdf.TermTypeLiteral {
		if empty, err := narrow(s.objectIndex, t.term); empty || err != nil {
			return nil, empty, err
		}
	}

	return candidates, false, nil
}

// matchQuad checks the bound positions of a single-pattern scan. Wildcards
// and variables match anything.
func matchQuad(pattern *Pattern, quad *rdf.Quad) bool {
	if t, ok := pattern.Subject.(exactTerm); ok && !t.term.Equals(quad.Subject) {
		return false
	}
	if t, ok := pattern.Predicate.(exactTerm); ok && !t.term.Equals(quad.Predicate) {
		return false
	}
	if t, ok := pattern.Object.(exactTerm); ok && !t.term.Equals(quad.Object) {
		return false
	}
	return true
}

// evalPatterns evaluates patterns against one graph's quads, extending
// binding pattern by pattern.
func evalPatterns(quads []*rdf.Quad, patterns []*Pattern, binding Binding) []Binding {
	if len(patterns) == 0 {
		return []Binding{binding.clone()}
	}

	var results []Binding
	for _, quad := range quads {
		extended, ok := matchPattern(patterns[0], quad, binding)
		if !ok {
			continue
		}
		results = append(results, evalPatterns(quads, patterns[1:], extended)...)
	}
	return results
}

// matchPattern matches one pattern against one quad under the current
// binding. Already-bound variables must agree with the quad's term at their
// position; fresh variables are bound. Returns the extended binding.
func matchPattern(pattern *Pattern, quad *rdf.Quad, binding Binding) (Binding, bool) {
	fresh := make(Binding)

	match := func(pt PatternTerm, term rdf.Term) bool {
		switch p := pt.(type) {
		case exactTerm:
			return p.term.Equals(term)
		case wildcardTerm, nil:
			return true
		case *Variable:
			if bound, ok := binding[p.Name]; ok {
				return bound.Equals(term)
			}
			if bound, ok := fresh[p.Name]; ok {
				return bound.Equals(term)
			}
			fresh[p.Name] = term
			return true
		default:
			return false
		}
	}

	if !match(pattern.Subject, quad.Subject) {
		return nil, false
	}
	if !match(pattern.Predicate, quad.Predicate) {
		return nil, false
	}
	if !match(pattern.Object, quad.Object) {
		return nil, false
	}

	if len(fresh) == 0 {
		return binding, true
	}
	extended := binding.clone()
	for name, term := range fresh {
		extended[name] = term
	}
	return extended, true
}

func resolveTemplateTerm(pt PatternTerm, binding Binding) (rdf.Term, bool) {
	switch p := pt.(type) {
	case exactTerm:
		return p.term, true
	case *Variable:
		term, ok := binding[p.Name]
		return term, ok
	default:
		return nil, false
	}
}

func collectVariables(patterns []*Pattern) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, pattern := range patterns {
		for _, pt := range []PatternTerm{pattern.Subject, pattern.Predicate, pattern.Object} {
			if v, ok := pt.(*Variable); ok {
				if _, dup := seen[v.Name]; !dup {
					seen[v.Name] = struct{}{}
					names = append(names, v.Name)
				}
			}
		}
	}
	return names
}
