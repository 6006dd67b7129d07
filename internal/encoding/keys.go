// Package encoding produces fixed-size keys for RDF terms. The term index
// maps use the 17-byte form (type byte + 128-bit xxh3 hash of the term's
// text; for literals the value, language tag, and datatype IRI together)
// instead of raw strings.
package encoding

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/xxh3"

	"github.com/replicant-partners/chrysalis/pkg/rdf"
)

// TermKeySize is the size of an encoded term key: one type byte plus a
// 128-bit hash.
const TermKeySize = 17

// TermKey is a fixed-size, collision-resistant key for a term value.
// Two value-equal terms always produce the same key.
type TermKey [TermKeySize]byte

// Hash128 computes the 128-bit xxh3 hash of s
func Hash128(s string) [16]byte {
	hash := xxh3.Hash128([]byte(s))
	var result [16]byte
	binary.BigEndian.PutUint64(result[0:8], hash.Hi)
	binary.BigEndian.PutUint64(result[8:16], hash.Lo)
	return result
}

// KeyForTerm encodes a term into its fixed-size key
func KeyForTerm(term rdf.Term) (TermKey, error) {
	var key TermKey
	key[0] = byte(term.Type())

	switch t := term.(type) {
	case *rdf.NamedNode:
		hash := Hash128(t.IRI)
		copy(key[1:], hash[:])
	case *rdf.BlankNode:
		hash := Hash128(t.ID)
		copy(key[1:], hash[:])
	case *rdf.Literal:
		// Value, language tag, and datatype all participate so that
		// "x"@en and "x"^^xsd:string key differently
		combined := t.Value + "\x00" + t.Language + "\x00" + t.DatatypeIRI()
		hash := Hash128(combined)
		copy(key[1:], hash[:])
	case *rdf.DefaultGraph:
		// type byte alone, remaining bytes zero
	default:
		return key, fmt.Errorf("unknown term type: %T", term)
	}

	return key, nil
}

// TermType extracts the term type from a key
func (k TermKey) TermType() rdf.TermType {
	return rdf.TermType(k[0])
}
