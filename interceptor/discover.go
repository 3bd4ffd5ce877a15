package interceptor

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/estuary/airbyte-adaptor/airbyte"
	"github.com/estuary/airbyte-adaptor/catalog"
	"github.com/estuary/airbyte-adaptor/jsonptr"
	"github.com/estuary/airbyte-adaptor/patch"
	"github.com/estuary/airbyte-adaptor/protocol"
	"github.com/estuary/airbyte-adaptor/schema"
)

// AdaptDiscoverRequest remaps the runtime's config document per
// spec.map.json and writes it to config.json for the child to read.
func AdaptDiscoverRequest(dir string, req *protocol.DiscoverRequest) error {
	configJSON, err := remapConfig(req.ConfigJSON)
	if err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, configFileName), configJSON)
}

// remapConfig applies spec.map.json's pointer-to-pointer mapping to a raw
// config document, if the file is present. spec.map.json is a
// working-directory override, resolved relative to the process's cwd.
func remapConfig(configJSON []byte) ([]byte, error) {
	var mapping map[string]string
	if present, err := readOptionalJSON(specMapFileName, &mapping); err != nil {
		return nil, err
	} else if !present {
		return configJSON, nil
	}
	out, err := patch.RemapJSON(configJSON, mapping)
	if err != nil {
		return nil, fmt.Errorf("remapping config per %s: %w", specMapFileName, err)
	}
	return out, nil
}

// AdaptDiscoverResponse builds the runtime's discovered-binding list from
// an Airbyte Catalog: recommended names, sync mode resolution, primary
// key resolution (Airbyte-declared, overridable per-stream), cursor field
// resolution, schema patch/strip/normalize/fix, and stream selection.
func AdaptDiscoverResponse(cat *airbyte.Catalog) (*protocol.DiscoverResponse, error) {
	if cat == nil {
		return nil, fmt.Errorf("connector produced no catalog message")
	}

	var selected []string
	hasSelection, err := readOptionalJSON(selectedStreamsFileName, &selected)
	if err != nil {
		return nil, err
	}

	var normalizations []string
	if _, err := readOptionalJSON(schemaNormalizationsFile, &normalizations); err != nil {
		return nil, err
	}

	resp := &protocol.DiscoverResponse{}

	for _, stream := range cat.Streams {
		recommendedName := catalog.RecommendedName(stream.Name)

		syncMode := airbyte.SyncModeFullRefresh
		for _, m := range stream.SupportedSyncModes {
			if m == airbyte.SyncModeIncremental {
				syncMode = airbyte.SyncModeIncremental
			}
		}

		primaryKey := stream.SourceDefinedPrimaryKey
		var pkOverride []string
		if present, err := readStreamOverride(recommendedName, streamPKSuffix, &pkOverride); err != nil {
			return nil, err
		} else if present {
			primaryKey = make([][]string, 0, len(pkOverride))
			for _, p := range pkOverride {
				primaryKey = append(primaryKey, strings.Split(p, "/"))
			}
		}

		keyPtrs := make([]string, 0, len(primaryKey))
		for _, pk := range primaryKey {
			keyPtrs = append(keyPtrs, jsonptr.Join(pk))
		}

		cursorField := catalog.ResolveCursorField(stream.DefaultCursorField, primaryKey)

		var docSchema json.RawMessage = stream.JSONSchema
		if len(docSchema) == 0 {
			docSchema = json.RawMessage(`{}`)
		}

		var docPatch json.RawMessage
		if present, err := readStreamOverride(recommendedName, streamPatchSuffix, &docPatch); err != nil {
			return nil, err
		} else if present {
			if docSchema, err = patch.Merge(docSchema, docPatch); err != nil {
				return nil, fmt.Errorf("merging schema patch for %q: %w", stream.Name, err)
			}
		}

		if docSchema, err = schema.StripVendorAttributes(docSchema); err != nil {
			return nil, fmt.Errorf("stripping vendor attributes for %q: %w", stream.Name, err)
		}
		if docSchema, err = schema.RemoveEnums(docSchema); err != nil {
			return nil, fmt.Errorf("removing enums for %q: %w", stream.Name, err)
		}
		for _, n := range normalizations {
			if n == "date-to-datetime" {
				if docSchema, err = schema.NormalizeDateToDateTime(docSchema); err != nil {
					return nil, fmt.Errorf("normalizing schema dates for %q: %w", stream.Name, err)
				}
			}
		}
		if docSchema, err = schema.FixKeys(docSchema, keyPtrs); err != nil {
			return nil, fmt.Errorf("fixing schema keys for %q: %w", stream.Name, err)
		}
		if err := schema.Validate(docSchema); err != nil {
			return nil, fmt.Errorf("validating fixed schema for %q: %w", stream.Name, err)
		}

		disable := hasSelection && !contains(selected, stream.Name)

		resourceSpec := catalog.ResourceSpec{
			Stream:      stream.Name,
			Namespace:   stream.Namespace,
			SyncMode:    syncMode,
			CursorField: cursorField,
		}
		resourceJSON, err := json.Marshal(resourceSpec)
		if err != nil {
			return nil, fmt.Errorf("encoding resource spec for %q: %w", stream.Name, err)
		}

		resp.Bindings = append(resp.Bindings, protocol.DiscoveredBinding{
			RecommendedName:    recommendedName,
			ResourceConfigJSON: resourceJSON,
			DocumentSchemaJSON: docSchema,
			Key:                keyPtrs,
			Disable:            disable,
		})
	}

	return resp, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
