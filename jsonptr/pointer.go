// Package jsonptr provides JSON-Pointer (RFC 6901) tokenizing, querying,
// and mutating helpers shared by the schema fixer, document normalizer, and
// patch engine.
//
// Documents are represented as a mutable tree where every object and array
// slot is individually addressable: objects are map[string]*interface{} and
// arrays are []*interface{}, mirroring flow.Pointer.Create in the upstream
// codebase this package is adapted from. Decode/Encode convert to and from
// the plain map[string]interface{}/[]interface{} shape encoding/json
// produces, so callers only need the mutable form while a pointer is
// actually being created or walked.
package jsonptr

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-openapi/jsonpointer"
)

// Pointer is a parsed JSON Pointer.
type Pointer struct {
	tokens []string
}

// Parse parses a JSON Pointer string such as "/foo/0/bar". The empty
// string is the document root (zero tokens).
func Parse(s string) (Pointer, error) {
	if s == "" {
		return Pointer{}, nil
	}
	ptr, err := jsonpointer.New(s)
	if err != nil {
		return Pointer{}, fmt.Errorf("parsing json pointer %q: %w", s, err)
	}
	return Pointer{tokens: ptr.DecodedTokens()}, nil
}

// Tokens returns the decoded path segments of the pointer.
func (p Pointer) Tokens() []string { return p.tokens }

// Tokenize splits a JSON Pointer string into its decoded segments. An
// invalid pointer yields a nil slice.
func Tokenize(s string) []string {
	p, err := Parse(s)
	if err != nil {
		return nil
	}
	return p.tokens
}

// Join re-assembles decoded tokens into a JSON Pointer string, escaping "~"
// and "/" per RFC 6901.
func Join(tokens []string) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteByte('/')
		b.WriteString(strings.NewReplacer("~", "~0", "/", "~1").Replace(t))
	}
	return b.String()
}

// Parent splits ptr into its container pointer and final key/index token.
func Parent(ptr string) (parent string, key string) {
	toks := Tokenize(ptr)
	if len(toks) == 0 {
		return "", ""
	}
	return Join(toks[:len(toks)-1]), toks[len(toks)-1]
}

// Decode parses JSON bytes into the mutable tree representation.
func Decode(data []byte) (interface{}, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return ToMutable(raw), nil
}

// Encode renders the mutable tree representation back to JSON.
func Encode(doc interface{}) ([]byte, error) {
	return json.Marshal(ToPlain(doc))
}

// ToMutable converts a plain encoding/json value (map[string]interface{},
// []interface{}, scalars) into the addressable map[string]*interface{} /
// []*interface{} tree that Create operates over.
func ToMutable(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		out := make(map[string]*interface{}, len(vv))
		for k, val := range vv {
			mv := ToMutable(val)
			out[k] = &mv
		}
		return out
	case []interface{}:
		out := make([]*interface{}, len(vv))
		for i, val := range vv {
			mv := ToMutable(val)
			out[i] = &mv
		}
		return out
	default:
		return vv
	}
}

// ToPlain converts the mutable tree representation back into the plain
// map[string]interface{} / []interface{} shape encoding/json expects.
func ToPlain(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]*interface{}:
		out := make(map[string]interface{}, len(vv))
		for k, val := range vv {
			if val == nil {
				out[k] = nil
			} else {
				out[k] = ToPlain(*val)
			}
		}
		return out
	case []*interface{}:
		out := make([]interface{}, len(vv))
		for i, val := range vv {
			if val == nil {
				out[i] = nil
			} else {
				out[i] = ToPlain(*val)
			}
		}
		return out
	default:
		return vv
	}
}

// Create walks the pointer within doc (a *interface{} holding the mutable
// tree representation), instantiating any missing intermediate objects or
// arrays, and returns a mutable *interface{} at the pointed-to location. An
// existing array is extended with nulls as required to reach a given
// index. "-" always appends. Ported from flow.Pointer.Create.
func (p Pointer) Create(doc *interface{}) (*interface{}, error) {
	var next = doc
	var child *interface{}

	for _, token := range p.tokens {
		index, indexErr := strconv.Atoi(token)

		if *next == nil {
			if indexErr != nil && token != "-" {
				*next = make(map[string]*interface{})
			} else {
				*next = make([]*interface{}, 0)
			}
		}

		switch vv := (*next).(type) {
		case map[string]*interface{}:
			if child = vv[token]; child == nil {
				child = new(interface{})
				vv[token] = child
			}

		case []*interface{}:
			if token == "-" {
				child = new(interface{})
				vv = append(vv, child)
				*next = vv
			} else if indexErr == nil {
				if index < 0 {
					return nil, fmt.Errorf("negative array index %d", index)
				}
				for len(vv) <= index {
					vv = append(vv, nil)
				}
				*next = vv

				if child = vv[index]; child == nil {
					child = new(interface{})
					vv[index] = child
				}
			} else {
				return nil, fmt.Errorf("expected array, not %v", *next)
			}
		default:
			return nil, fmt.Errorf("expected object or array, not %v", *next)
		}
		next = child
	}
	return next, nil
}

// Query looks up the value at the pointer within the mutable tree doc
// without creating missing locations. ok is false if any intermediate step
// is missing or of the wrong type.
func (p Pointer) Query(doc interface{}) (value interface{}, ok bool) {
	var cur = doc
	for _, token := range p.tokens {
		switch vv := cur.(type) {
		case map[string]*interface{}:
			next, present := vv[token]
			if !present || next == nil {
				return nil, false
			}
			cur = *next
		case []*interface{}:
			idx, err := strconv.Atoi(token)
			if err != nil || idx < 0 || idx >= len(vv) || vv[idx] == nil {
				return nil, false
			}
			cur = *vv[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Delete removes the leaf named by the pointer's final token from its
// parent object, leaving the parent and any siblings untouched.
// Deleting a nonexistent path, the document root, or an element of an
// array is a no-op.
func (p Pointer) Delete(doc interface{}) {
	if len(p.tokens) == 0 {
		return
	}
	parentPtr := Pointer{tokens: p.tokens[:len(p.tokens)-1]}
	leaf := p.tokens[len(p.tokens)-1]

	parent, ok := parentPtr.Query(doc)
	if !ok {
		return
	}
	switch vv := parent.(type) {
	case map[string]*interface{}:
		delete(vv, leaf)
	case []*interface{}:
		// Removing an array element is not supported; the array is left
		// unchanged.
	}
}

// Query is a package-level convenience for one-shot lookups by pointer
// string against the mutable tree representation.
func Query(doc interface{}, ptr string) (interface{}, bool) {
	p, err := Parse(ptr)
	if err != nil {
		return nil, false
	}
	return p.Query(doc)
}

// Create is a package-level convenience mirroring Query.
func Create(doc *interface{}, ptr string) (*interface{}, error) {
	p, err := Parse(ptr)
	if err != nil {
		return nil, err
	}
	return p.Create(doc)
}

// Delete is a package-level convenience mirroring Query.
func Delete(doc interface{}, ptr string) {
	p, err := Parse(ptr)
	if err != nil {
		return
	}
	p.Delete(doc)
}
