package interceptor

import (
	"encoding/json"
	"fmt"

	"github.com/estuary/airbyte-adaptor/airbyte"
	"github.com/estuary/airbyte-adaptor/patch"
	"github.com/estuary/airbyte-adaptor/protocol"
	"github.com/estuary/airbyte-adaptor/schema"
)

// ProtocolVersion is the runtime protocol version this adaptor's Spec
// response advertises.
const ProtocolVersion = "3.2.0"

// resourceConfigSchema is the fixed JSON Schema describing a capture
// binding's resource configuration, derived from catalog.ResourceSpec the
// way driver.go's ResourceSpec backs its own connector-facing schema.
var resourceConfigSchema = json.RawMessage(`{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["stream", "syncMode"],
	"properties": {
		"stream": {"type": "string", "title": "Stream"},
		"namespace": {"type": "string", "title": "Namespace"},
		"syncMode": {"type": "string", "enum": ["incremental", "full_refresh"], "title": "Sync Mode"},
		"cursorField": {"type": "array", "items": {"type": "string"}, "title": "Cursor Field"}
	}
}`)

// AdaptSpecResponse implements the Spec response path: merging
// spec.patch.json into the connector's own connection schema, swapping in
// oauth2.patch.json as the auth specification when present, overriding
// documentation_url from documentation_url.patch.json, and stripping
// vendor attributes before handing the schema to the runtime.
func AdaptSpecResponse(spec *airbyte.Spec) (*protocol.SpecResponse, error) {
	if spec == nil {
		return nil, fmt.Errorf("connector produced no spec message")
	}

	endpointSchema := []byte(spec.ConnectionSpecification)
	if len(endpointSchema) == 0 {
		endpointSchema = []byte(`{}`)
	}

	if specPatch, err := readOptionalFile(specPatchFileName); err != nil {
		return nil, err
	} else if specPatch != nil {
		if endpointSchema, err = patch.Merge(endpointSchema, specPatch); err != nil {
			return nil, fmt.Errorf("merging %s: %w", specPatchFileName, err)
		}
	}

	fixed, err := schema.StripVendorAttributes(endpointSchema)
	if err != nil {
		return nil, fmt.Errorf("stripping vendor attributes from connection spec: %w", err)
	}
	endpointSchema = fixed

	var oauth2 json.RawMessage
	if oauth2Patch, err := readOptionalFile(oauth2PatchFileName); err != nil {
		return nil, err
	} else if oauth2Patch != nil {
		oauth2 = oauth2Patch
	} else if len(spec.AuthSpecification) > 0 {
		oauth2 = spec.AuthSpecification
	}

	docURL := spec.DocumentationURL
	var docURLPatch struct {
		DocumentationURL string `json:"documentation_url"`
	}
	if present, err := readOptionalJSON(docURLPatchFileName, &docURLPatch); err != nil {
		return nil, err
	} else if present && docURLPatch.DocumentationURL != "" {
		docURL = docURLPatch.DocumentationURL
	}

	return &protocol.SpecResponse{
		ProtocolVersion:          ProtocolVersion,
		ConfigSchemaJSON:         endpointSchema,
		ResourceConfigSchemaJSON: resourceConfigSchema,
		Oauth2:                   oauth2,
		DocumentationURL:         docURL,
	}, nil
}
