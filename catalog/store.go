// Package catalog holds the per-run mapping from Airbyte stream name to
// runtime binding index, together with the mutable context (document
// schema, normalization entries) each binding needs while the capture's
// response path is translating records.
//
// Grounded on airbyte_source_interceptor.rs's stream_to_binding map and
// its adapt_pull_request_stream ConfiguredCatalog construction.
package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/estuary/airbyte-adaptor/airbyte"
	"github.com/estuary/airbyte-adaptor/jsonptr"
	"github.com/estuary/airbyte-adaptor/normalize"
	"github.com/google/uuid"
)

// Binding is the per-stream state retained across a capture's lifetime:
// its runtime binding index, its document schema (used as context for
// automatic normalization), and any user-declared normalization entries.
type Binding struct {
	Index          int
	Stream         string
	DocSchema      map[string]interface{}
	Normalizations []normalize.Entry
}

// Store is the stream→Binding map a running capture consults on its
// response path. Safe for concurrent use: the request path populates it
// once at Open, the response path reads it for every record.
type Store struct {
	mu      sync.Mutex
	byName  map[string]*Binding
	RunID   string
}

// NewStore allocates an empty store, tagging it with a fresh random
// RunID. The store does not log, and RunID is not attached to any log
// output by this module.
func NewStore() *Store {
	return &Store{
		byName: make(map[string]*Binding),
		RunID:  uuid.NewString(),
	}
}

// Put inserts or replaces the binding for b.Stream.
func (s *Store) Put(b *Binding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byName[b.Stream] = b
}

// Lookup returns the binding registered for stream, or ok=false if none.
func (s *Store) Lookup(stream string) (*Binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byName[stream]
	return b, ok
}

// Len reports how many bindings are registered.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byName)
}

// RuntimeBinding is the subset of protocol.CaptureBinding needed to build
// a ConfiguredCatalog entry and populate the Store; kept separate from
// the protocol package's own type so catalog has no import-cycle risk.
type RuntimeBinding struct {
	ResourceConfigJSON []byte
	CollectionName     string
	WriteSchemaJSON    []byte
	Key                []string
	Projections        map[string]string
	Normalizations     []normalize.Entry
}

// ResourceSpec is the resource-level configuration the discover/validate/
// capture paths round-trip through JSON: which upstream stream/namespace
// a binding targets, and which sync mode and cursor field to use.
type ResourceSpec struct {
	Stream      string   `json:"stream"`
	Namespace   string   `json:"namespace,omitempty"`
	SyncMode    airbyte.SyncMode `json:"syncMode"`
	CursorField []string `json:"cursorField,omitempty"`
}

// BuildConfiguredCatalog walks runtime bindings in order, registering
// each into store under its resolved stream name and producing the
// matching airbyte.ConfiguredStream list plus the overall
// airbyte.ConfiguredCatalog, ready for airbyte.ConfiguredCatalog.Validate.
func BuildConfiguredCatalog(store *Store, bindings []RuntimeBinding, keyBegin, keyEnd uint32) (*airbyte.ConfiguredCatalog, error) {
	cat := &airbyte.ConfiguredCatalog{
		Range: airbyte.Range{Begin: keyBegin, End: keyEnd},
	}

	for i, rb := range bindings {
		var resource ResourceSpec
		if err := json.Unmarshal(rb.ResourceConfigJSON, &resource); err != nil {
			return nil, fmt.Errorf("binding %d: parsing resource spec: %w", i, err)
		}

		var docSchema map[string]interface{}
		if err := json.Unmarshal(rb.WriteSchemaJSON, &docSchema); err != nil {
			return nil, fmt.Errorf("binding %d: parsing write schema: %w", i, err)
		}

		store.Put(&Binding{
			Index:          i,
			Stream:         resource.Stream,
			DocSchema:      docSchema,
			Normalizations: rb.Normalizations,
		})

		primaryKey := make([][]string, 0, len(rb.Key))
		for _, ptr := range rb.Key {
			primaryKey = append(primaryKey, jsonptr.Tokenize(ptr))
		}

		projections := make(map[string]string, len(rb.Projections))
		for field, ptr := range rb.Projections {
			projections[field] = ptr
		}

		cat.Streams = append(cat.Streams, airbyte.ConfiguredStream{
			Stream: airbyte.Stream{
				Name:                resource.Stream,
				Namespace:           resource.Namespace,
				JSONSchema:          rb.WriteSchemaJSON,
				SupportedSyncModes:  []airbyte.SyncMode{resource.SyncMode},
			},
			SyncMode:            resource.SyncMode,
			DestinationSyncMode: airbyte.DestinationSyncModeAppend,
			CursorField:         resource.CursorField,
			PrimaryKey:          primaryKey,
			Projections:         projections,
		})
	}

	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configured catalog: %w", err)
	}
	return cat, nil
}

// RecommendedName sanitizes an arbitrary upstream stream name into one
// usable as a collection name component: split on "/", keep only
// [A-Za-z0-9._-] within each chunk, drop chunks left empty, rejoin with
// "/". Idempotent: RecommendedName(RecommendedName(s)) == RecommendedName(s).
func RecommendedName(stream string) string {
	chunks := strings.Split(stream, "/")
	kept := chunks[:0]
	for _, chunk := range chunks {
		var b strings.Builder
		for _, r := range chunk {
			if isNameRune(r) {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			kept = append(kept, b.String())
		}
	}
	return strings.Join(kept, "/")
}

func isNameRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '.' || r == '_':
		return true
	default:
		return false
	}
}

// ResolveCursorField computes the effective cursor field for a discovered
// stream: the connector's own default if non-empty, else the path tokens
// (non-pointer form) of the first primary-key component, else nil when
// both are empty. Primary-key components after the first are not used.
func ResolveCursorField(connectorDefault []string, primaryKey [][]string) []string {
	if len(connectorDefault) > 0 {
		return connectorDefault
	}
	if len(primaryKey) > 0 {
		return primaryKey[0]
	}
	return nil
}
