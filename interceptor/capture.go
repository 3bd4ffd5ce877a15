package interceptor

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/estuary/airbyte-adaptor/airbyte"
	"github.com/estuary/airbyte-adaptor/catalog"
	"github.com/estuary/airbyte-adaptor/jsonptr"
	"github.com/estuary/airbyte-adaptor/normalize"
	"github.com/estuary/airbyte-adaptor/protocol"
)

// AdaptOpenRequest persists state.json and config.json, populates store
// with one Binding per runtime binding, and returns the ConfiguredCatalog
// to write to catalog.json before signaling READY.
//
// Grounded on adapt_pull_request_stream's Open handling: the
// stream_to_binding insertion loop, primary-key tokenization from
// collection.key_ptrs, and the ConfiguredCatalog.validate() call.
func AdaptOpenRequest(dir string, store *catalog.Store, open *protocol.OpenRequest) (*airbyte.ConfiguredCatalog, error) {
	if err := writeFile(filepath.Join(dir, stateFileName), nonEmptyJSON(open.StateJSON)); err != nil {
		return nil, err
	}

	configJSON, err := remapConfig(open.Capture.ConfigJSON)
	if err != nil {
		return nil, err
	}
	if err := writeFile(filepath.Join(dir, configFileName), configJSON); err != nil {
		return nil, err
	}

	runtimeBindings := make([]catalog.RuntimeBinding, 0, len(open.Capture.Bindings))
	for i, b := range open.Capture.Bindings {
		var resource catalog.ResourceSpec
		if err := json.Unmarshal(b.ResourceConfigJSON, &resource); err != nil {
			return nil, fmt.Errorf("binding %d: parsing resource spec: %w", i, err)
		}

		var normEntries []normalize.Entry
		recommendedName := catalog.RecommendedName(resource.Stream)
		if _, err := readStreamOverride(recommendedName, streamNormalizeSuffix, &normEntries); err != nil {
			return nil, err
		}

		runtimeBindings = append(runtimeBindings, catalog.RuntimeBinding{
			ResourceConfigJSON: b.ResourceConfigJSON,
			CollectionName:     b.Collection.Name,
			WriteSchemaJSON:    b.Collection.WriteSchemaJSON,
			Key:                b.Collection.Key,
			Projections:        projectionsToPointers(b.Collection.Projections),
			Normalizations:     normEntries,
		})
	}

	cat, err := catalog.BuildConfiguredCatalog(store, runtimeBindings, airbyte.FullRange.Begin, airbyte.FullRange.End)
	if err != nil {
		return nil, err
	}

	catalogJSON, err := json.Marshal(cat)
	if err != nil {
		return nil, fmt.Errorf("encoding configured catalog: %w", err)
	}
	if err := writeFile(filepath.Join(dir, catalogFileName), catalogJSON); err != nil {
		return nil, err
	}

	return cat, nil
}

// projectionsToPointers is a no-op today (CollectionSpec.Projections is
// already field->pointer), kept as a named seam in case a future
// CollectionSpec revision carries richer projection metadata.
func projectionsToPointers(p map[string]string) map[string]string { return p }

func nonEmptyJSON(b []byte) []byte {
	if len(b) == 0 {
		return []byte(`{}`)
	}
	return b
}

// AdaptCaptureMessage turns one decoded Airbyte message from the child's
// Pull response stream into the runtime Response it corresponds to.
// State messages become Checkpoints; Record messages become Captured
// responses after running automatic then user normalizations against the
// looked-up binding. Any other message type (besides Log, siphoned off
// earlier by the supervisor) is an error.
func AdaptCaptureMessage(store *catalog.Store, msg *airbyte.Message) (*protocol.Response, error) {
	switch {
	case msg.State != nil:
		return &protocol.Response{
			Checkpoint: &protocol.CheckpointResponse{
				State: protocol.CheckpointState{
					UpdatedJSON: msg.State.Data,
					MergePatch:  msg.State.Merge,
				},
			},
		}, nil

	case msg.Record != nil:
		binding, ok := store.Lookup(msg.Record.Stream)
		if !ok {
			return nil, fmt.Errorf("record for unknown stream %q", msg.Record.Stream)
		}

		doc, err := jsonptr.Decode(msg.Record.Data)
		if err != nil {
			return nil, fmt.Errorf("decoding record for stream %q: %w", msg.Record.Stream, err)
		}
		normalize.ApplyAutomatic(&doc, binding.DocSchema)
		normalize.ApplyUser(&doc, binding.Normalizations)
		docJSON, err := jsonptr.Encode(doc)
		if err != nil {
			return nil, fmt.Errorf("encoding normalized record for stream %q: %w", msg.Record.Stream, err)
		}

		return &protocol.Response{
			Captured: &protocol.CapturedResponse{
				Binding: binding.Index,
				DocJSON: docJSON,
			},
		}, nil

	default:
		return nil, fmt.Errorf("expected a state or record message, got type %q", msg.Type)
	}
}
