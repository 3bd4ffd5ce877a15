// Package schema rewrites Airbyte-supplied JSON Schema documents so the
// runtime can rely on declared keys actually being present, and so vendor
// extensions and enum quirks Airbyte connectors commonly emit don't leak
// into the runtime's own schema validation.
//
// Grounded on fix_document_schema.rs's traversal shape, restricted per
// spec.md §4.3 to Property steps only (Index/NextIndex rejected, a
// simplification relative to the original's array-minItems handling —
// see DESIGN.md).
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/estuary/airbyte-adaptor/jsonptr"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// object is the plain-map representation schema documents are traversed
// in; document schemas are small enough that there is no benefit to the
// mutable tree jsonptr uses elsewhere.
type object = map[string]interface{}

// FixKeys ensures every key pointer in keyPtrs resolves, within
// schemaJSON, to a property that is `required` and whose `type` excludes
// `"null"`. Pointers may only contain Property (name) steps; an Index or
// "-" (NextIndex) step is rejected outright, per spec.md.
func FixKeys(schemaJSON []byte, keyPtrs []string) ([]byte, error) {
	var doc object
	if err := json.Unmarshal(schemaJSON, &doc); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}

	for _, keyPtr := range keyPtrs {
		if err := fixKey(doc, jsonptr.Tokenize(keyPtr)); err != nil {
			return nil, fmt.Errorf("fixing key %q: %w", keyPtr, err)
		}
	}

	return json.Marshal(doc)
}

func fixKey(root object, tokens []string) error {
	var current = root

	for _, token := range tokens {
		if isArrayStep(token) {
			return fmt.Errorf("index or next-index step %q is not supported in a key pointer", token)
		}

		if hasCombinator(current) {
			// Known limitation: allOf/anyOf/not subschemas are left
			// untouched rather than guessed into.
			return nil
		}

		resolveRef(current, root)

		addRequired(current, token)
		stripNullType(current)

		props, _ := current["properties"].(object)
		if props == nil {
			return fmt.Errorf("expected %q to have a 'properties' object", token)
		}
		propSchema, ok := props[token].(object)
		if !ok {
			return fmt.Errorf("expected key %q to exist in 'properties'", token)
		}
		stripNullType(propSchema)

		current = propSchema
	}
	return nil
}

func isArrayStep(token string) bool {
	if token == "-" {
		return true
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(token) > 0
}

func hasCombinator(s object) bool {
	_, allOf := s["allOf"]
	_, anyOf := s["anyOf"]
	_, not := s["not"]
	return allOf || anyOf || not
}

// resolveRef, when s is a {"$ref": "#/$defs/Name"} schema, replaces s's
// contents in place with the referenced $defs entry's contents. Only a
// single level of indirection is resolved, matching the "no deep cycles"
// design note.
func resolveRef(s object, root object) {
	ref, ok := s["$ref"].(string)
	if !ok {
		return
	}
	const prefix = "#/$defs/"
	if !strings.HasPrefix(ref, prefix) {
		return
	}
	name := strings.TrimPrefix(ref, prefix)
	defs, _ := root["$defs"].(object)
	if defs == nil {
		return
	}
	target, ok := defs[name].(object)
	if !ok {
		return
	}
	// Copy the definition so fixes applied beneath s leave $defs unchanged.
	b, err := json.Marshal(target)
	if err != nil {
		return
	}
	var copied object
	if err := json.Unmarshal(b, &copied); err != nil {
		return
	}
	delete(s, "$ref")
	for k, v := range copied {
		s[k] = v
	}
}

// addRequired adds prop to s's "required" array if not already present.
func addRequired(s object, prop string) {
	existing, _ := s["required"].([]interface{})
	for _, r := range existing {
		if r == prop {
			return
		}
	}
	s["required"] = append(existing, prop)
}

// stripNullType removes "null" from a type array, collapsing a
// single remaining type to a bare string per spec.md §4.3.
func stripNullType(s object) {
	typ, ok := s["type"]
	if !ok {
		return
	}
	arr, ok := typ.([]interface{})
	if !ok {
		return
	}
	var out = make([]interface{}, 0, len(arr))
	for _, t := range arr {
		if t != "null" {
			out = append(out, t)
		}
	}
	if len(out) == 1 {
		s["type"] = out[0]
	} else {
		s["type"] = out
	}
}

// vendorKeys are Airbyte/connector-builder annotations with no meaning to
// the runtime's own schema handling.
var vendorKeys = []string{"airbyte_hidden", "group", "airbyte_type", "name", "xml"}

// StripVendorAttributes walks every subschema reachable through
// properties/* and items, removing vendor keys and rewriting
// format: int32|int64 to format: integer.
func StripVendorAttributes(schemaJSON []byte) ([]byte, error) {
	var doc object
	if err := json.Unmarshal(schemaJSON, &doc); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	walk(doc, "", func(s object, _ string) {
		for _, k := range vendorKeys {
			delete(s, k)
		}
		if f, ok := s["format"].(string); ok && (f == "int32" || f == "int64") {
			s["format"] = "integer"
		}
	})
	return json.Marshal(doc)
}

// RemoveEnums strips "enum" from every subschema. When the subschema has
// no explicit "type", one is synthesized from the union of JSON types
// observed among the enum's values.
func RemoveEnums(schemaJSON []byte) ([]byte, error) {
	var doc object
	if err := json.Unmarshal(schemaJSON, &doc); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	walk(doc, "", func(s object, _ string) {
		enumVals, ok := s["enum"].([]interface{})
		if !ok {
			return
		}
		delete(s, "enum")
		if _, hasType := s["type"]; hasType {
			return
		}
		var types = synthesizeTypes(enumVals)
		if len(types) == 1 {
			s["type"] = types[0]
		} else if len(types) > 1 {
			var asIface = make([]interface{}, len(types))
			for i, t := range types {
				asIface[i] = t
			}
			s["type"] = asIface
		}
	})
	return json.Marshal(doc)
}

func synthesizeTypes(values []interface{}) []string {
	var seen = map[string]bool{}
	var order []string
	for _, v := range values {
		var t string
		switch vv := v.(type) {
		case nil:
			t = "null"
		case bool:
			t = "boolean"
		case string:
			t = "string"
		case float64:
			if vv == float64(int64(vv)) {
				t = "integer"
			} else {
				t = "number"
			}
		case map[string]interface{}:
			t = "object"
		case []interface{}:
			t = "array"
		default:
			t = "string"
		}
		if !seen[t] {
			seen[t] = true
			order = append(order, t)
		}
	}
	return order
}

// NormalizeDateToDateTime rewrites format: "date" to format: "date-time"
// throughout the schema. Driven by the presence of "date-to-datetime" in
// schema_normalizations.json; see the interceptor package.
func NormalizeDateToDateTime(schemaJSON []byte) ([]byte, error) {
	var doc object
	if err := json.Unmarshal(schemaJSON, &doc); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	walk(doc, "", func(s object, _ string) {
		if f, ok := s["format"].(string); ok && f == "date" {
			s["format"] = "date-time"
		}
	})
	return json.Marshal(doc)
}

// walk applies fn to every subschema reachable from doc through
// properties/* and items, including doc itself. The pointer passed to fn
// uses "/*" for array item segments, per the traversal contract in
// spec.md §4.3.
func walk(s object, ptr string, fn func(object, string)) {
	fn(s, ptr)
	if props, ok := s["properties"].(object); ok {
		for name, sub := range props {
			if subObj, ok := sub.(object); ok {
				walk(subObj, ptr+"/"+name, fn)
			}
		}
	}
	if items, ok := s["items"].(object); ok {
		walk(items, ptr+"/*", fn)
	}
}

// Validate compiles the (already fixed) schema to catch structurally
// broken output before it reaches the runtime. It never validates
// document data — only that the schema itself is well-formed.
func Validate(schemaJSON []byte) error {
	compiler := jsonschema.NewCompiler()
	var doc interface{}
	if err := json.Unmarshal(schemaJSON, &doc); err != nil {
		return fmt.Errorf("parsing schema for validation: %w", err)
	}
	const resourceName = "schema.json"
	if err := compiler.AddResource(resourceName, doc); err != nil {
		return fmt.Errorf("adding schema resource: %w", err)
	}
	if _, err := compiler.Compile(resourceName); err != nil {
		return fmt.Errorf("compiling fixed schema: %w", err)
	}
	return nil
}
