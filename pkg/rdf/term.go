package rdf

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrInvalidTerm is returned when a literal is constructed with a
	// language tag and a datatype other than rdf:langString.
	ErrInvalidTerm = errors.New("invalid term")

	// ErrInvalidQuad is returned when a quad position holds a term kind
	// that is not allowed there.
	ErrInvalidQuad = errors.New("invalid quad")
)

// TermType represents the kind of an RDF term
type TermType byte

const (
	TermTypeNamedNode TermType = iota + 1
	TermTypeBlankNode
	TermTypeLiteral
	TermTypeDefaultGraph
)

// Term represents an RDF term (IRI, blank node, literal, or the default graph)
type Term interface {
	Type() TermType
	String() string
	Equals(other Term) bool
}

// NamedNode represents an IRI
type NamedNode struct {
	IRI string
}

func NewNamedNode(iri string) *NamedNode {
	return &NamedNode{IRI: iri}
}

func (n *NamedNode) Type() TermType {
	return TermTypeNamedNode
}

func (n *NamedNode) String() string {
	return fmt.Sprintf("<%s>", n.IRI)
}

func (n *NamedNode) Equals(other Term) bool {
	if on, ok := other.(*NamedNode); ok {
		return n.IRI == on.IRI
	}
	return false
}

// BlankNode represents a blank node
type BlankNode struct {
	ID string
}

func NewBlankNode(id string) *BlankNode {
	return &BlankNode{ID: id}
}

// NewAnonBlankNode creates a blank node with a process-unique identifier.
// Callers that need stable identity across calls must use NewBlankNode.
func NewAnonBlankNode() *BlankNode {
	return &BlankNode{ID: "b" + uuid.NewString()}
}

func (b *BlankNode) Type() TermType {
	return TermTypeBlankNode
}

func (b *BlankNode) String() string {
	return fmt.Sprintf("_:%s", b.ID)
}

func (b *BlankNode) Equals(other Term) bool {
	if ob, ok := other.(*BlankNode); ok {
		return b.ID == ob.ID
	}
	return false
}

// Literal represents an RDF literal
type Literal struct {
	Value    string
	Language string     // for language-tagged strings
	Datatype *NamedNode // nil is treated as xsd:string
}

// NewLiteral creates a plain string literal (datatype xsd:string)
func NewLiteral(value string) *Literal {
	return &Literal{Value: value, Datatype: XSDString}
}

// NewLiteralWithLanguage creates a language-tagged literal with datatype
// rdf:langString. An empty language tag yields a plain xsd:string literal.
func NewLiteralWithLanguage(value, language string) *Literal {
	if language == "" {
		return NewLiteral(value)
	}
	return &Literal{Value: value, Language: language, Datatype: RDFLangString}
}

// NewLiteralWithDatatype creates a typed literal. A nil datatype defaults to
// xsd:string.
func NewLiteralWithDatatype(value string, datatype *NamedNode) *Literal {
	if datatype == nil {
		datatype = XSDString
	}
	return &Literal{Value: value, Datatype: datatype}
}

// NewLiteralFull creates a literal from an explicit language tag and
// datatype, validating that the two are compatible: a non-empty language tag
// only combines with rdf:langString (or no datatype at all).
func NewLiteralFull(value, language string, datatype *NamedNode) (*Literal, error) {
	if language != "" {
		if datatype != nil && datatype.IRI != RDFLangString.IRI {
			return nil, fmt.Errorf("%w: language tag %q conflicts with datatype <%s>", ErrInvalidTerm, language, datatype.IRI)
		}
		return NewLiteralWithLanguage(value, language), nil
	}
	return NewLiteralWithDatatype(value, datatype), nil
}

func (l *Literal) Type() TermType {
	return TermTypeLiteral
}

// DatatypeIRI returns the literal's datatype IRI, defaulting to xsd:string.
func (l *Literal) DatatypeIRI() string {
	if l.Datatype == nil {
		return XSDString.IRI
	}
	return l.Datatype.IRI
}

func (l *Literal) String() string {
	result := fmt.Sprintf(`"%s"`, l.Value)
	if l.Language != "" {
		result += "@" + l.Language
	} else if l.DatatypeIRI() != XSDString.IRI {
		result += "^^<" + l.DatatypeIRI() + ">"
	}
	return result
}

func (l *Literal) Equals(other Term) bool {
	if ol, ok := other.(*Literal); ok {
		return l.Value == ol.Value &&
			l.Language == ol.Language &&
			l.DatatypeIRI() == ol.DatatypeIRI()
	}
	return false
}

// DefaultGraph represents the default graph
type DefaultGraph struct{}

func NewDefaultGraph() *DefaultGraph {
	return &DefaultGraph{}
}

func (d *DefaultGraph) Type() TermType {
	return TermTypeDefaultGraph
}

func (d *DefaultGraph) String() string {
	return "DEFAULT"
}

func (d *DefaultGraph) Equals(other Term) bool {
	_, ok := other.(*DefaultGraph)
	return ok
}

// Quad represents an RDF quad (subject, predicate, object, graph)
type Quad struct {
	Subject   Term
	Predicate Term
	Object    Term
	Graph     Term
}

// NewQuad creates a quad, validating the positional constraints: the subject
// is a named or blank node, the predicate is a named node, the object is a
// named node, blank node, or literal, and the graph is a named node, blank
// node, or the default graph. A nil graph defaults to the default graph.
func NewQuad(subject, predicate, object, graph Term) (*Quad, error) {
	switch subject.(type) {
	case *NamedNode, *BlankNode:
	default:
		return nil, fmt.Errorf("%w: subject must be a named or blank node, got %T", ErrInvalidQuad, subject)
	}
	if _, ok := predicate.(*NamedNode); !ok {
		return nil, fmt.Errorf("%w: predicate must be a named node, got %T", ErrInvalidQuad, predicate)
	}
	switch object.(type) {
	case *NamedNode, *BlankNode, *Literal:
	default:
		return nil, fmt.Errorf("%w: object must be a named node, blank node, or literal, got %T", ErrInvalidQuad, object)
	}
	if graph == nil {
		graph = NewDefaultGraph()
	}
	switch graph.(type) {
	case *NamedNode, *BlankNode, *DefaultGraph:
	default:
		return nil, fmt.Errorf("%w: graph must be a named node, blank node, or the default graph, got %T", ErrInvalidQuad, graph)
	}
	return &Quad{
		Subject:   subject,
		Predicate: predicate,
		Object:    object,
		Graph:     graph,
	}, nil
}

// NewTriple creates a quad in the default graph
func NewTriple(subject, predicate, object Term) (*Quad, error) {
	return NewQuad(subject, predicate, object, NewDefaultGraph())
}

func (q *Quad) Equals(other *Quad) bool {
	if other == nil {
		return false
	}
	return q.Subject.Equals(other.Subject) &&
		q.Predicate.Equals(other.Predicate) &&
		q.Object.Equals(other.Object) &&
		q.Graph.Equals(other.Graph)
}

func (q *Quad) String() string {
	return fmt.Sprintf("%s %s %s %s .", q.Subject, q.Predicate, q.Object, q.Graph)
}

// Well-known vocabulary
var (
	XSDString     = NewNamedNode("http://www.w3.org/2001/XMLSchema#string")
	RDFLangString = NewNamedNode("http://www.w3.org/1999/02/22-rdf-syntax-ns#langString")
	RDFType       = NewNamedNode("http://www.w3.org/1999/02/22-rdf-syntax-ns#type")
)
