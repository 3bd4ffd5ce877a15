// Package patch implements the two document-rewriting primitives the
// interceptor uses to adapt connector configuration and responses: RFC
// 7396 JSON Merge Patch, and a JSON-Pointer-keyed "remap" that relocates
// values within a document.
package patch

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/estuary/airbyte-adaptor/jsonptr"
)

// Merge applies an RFC 7396 JSON Merge Patch: fields present in patch
// override target, and a null value deletes the corresponding target key.
// Both target and patch are raw JSON documents; the result is returned as
// raw JSON.
func Merge(target, patchDoc []byte) ([]byte, error) {
	if len(patchDoc) == 0 {
		return target, nil
	}
	if len(target) == 0 {
		target = []byte("{}")
	}
	out, err := jsonpatch.MergePatch(target, patchDoc)
	if err != nil {
		return nil, fmt.Errorf("applying merge patch: %w", err)
	}
	return out, nil
}

// MergeValue is a convenience wrapper over Merge for callers already
// holding decoded values rather than raw JSON bytes.
func MergeValue(target, patchDoc interface{}) (interface{}, error) {
	targetJSON, err := json.Marshal(target)
	if err != nil {
		return nil, err
	}
	patchJSON, err := json.Marshal(patchDoc)
	if err != nil {
		return nil, err
	}
	merged, err := Merge(targetJSON, patchJSON)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(merged, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Remap interprets mapping as a set of {destinationPointer: sourcePointer}
// pairs: for each pair, the value at sourcePointer is copied to
// destinationPointer (creating any missing intermediate objects along the
// way), and then the source leaf — and only the leaf, never its parent —
// is deleted from doc. Mapping keys and values must both be JSON Pointers.
//
// Grounded on airbyte_source_interceptor.rs's remap: copy first, then
// delete, so a destination that happens to alias part of the source path
// observes the pre-delete value.
func Remap(doc interface{}, mapping map[string]string) error {
	for dst, src := range mapping {
		value, ok := jsonptr.Query(doc, src)
		if !ok {
			continue // Nothing to remap; source absent is not an error.
		}

		var docIface interface{} = doc
		leaf, err := jsonptr.Create(&docIface, dst)
		if err != nil {
			return fmt.Errorf("remap: creating destination %q: %w", dst, err)
		}
		*leaf = value

		jsonptr.Delete(doc, src)
	}
	return nil
}

// RemapJSON is the raw-JSON convenience form of Remap used by the
// interceptor, which only ever holds connector config as bytes on disk.
func RemapJSON(docJSON []byte, mapping map[string]string) ([]byte, error) {
	if len(mapping) == 0 {
		return docJSON, nil
	}
	doc, err := jsonptr.Decode(docJSON)
	if err != nil {
		return nil, fmt.Errorf("remap: decoding document: %w", err)
	}
	if err := Remap(doc, mapping); err != nil {
		return nil, err
	}
	return jsonptr.Encode(doc)
}
