// Package airbyte holds the wire types of the Airbyte source protocol: the
// newline-delimited JSON conversation a child connector process speaks on
// its own stdio, as opposed to the runtime's native protocol in package
// protocol.
package airbyte

import (
	"encoding/json"
	"fmt"
)

type SyncMode string

const (
	SyncModeIncremental SyncMode = "incremental"
	SyncModeFullRefresh SyncMode = "full_refresh"
)

var AllSyncModes = []SyncMode{SyncModeIncremental, SyncModeFullRefresh}

type Stream struct {
	Name                    string          `json:"name"`
	JSONSchema              json.RawMessage `json:"json_schema"`
	SupportedSyncModes      []SyncMode      `json:"supported_sync_modes"`
	SourceDefinedCursor     bool            `json:"source_defined_cursor,omitempty"`
	DefaultCursorField      []string        `json:"default_cursor_field,omitempty"`
	SourceDefinedPrimaryKey [][]string      `json:"source_defined_primary_key,omitempty"`
	Namespace               string          `json:"namespace,omitempty"`
}

func (s *Stream) Validate() error {
	if len(s.SupportedSyncModes) == 0 {
		return fmt.Errorf("stream must have at least one supported_sync_modes")
	}
	return nil
}

type DestinationSyncMode string

const (
	DestinationSyncModeAppend      DestinationSyncMode = "append"
	DestinationSyncModeOverwrite   DestinationSyncMode = "overwrite"
	DestinationSyncModeAppendDedup DestinationSyncMode = "append_dedup"
)

type ConfiguredStream struct {
	Stream              Stream              `json:"stream"`
	SyncMode            SyncMode            `json:"sync_mode"`
	DestinationSyncMode DestinationSyncMode `json:"destination_sync_mode"`
	CursorField         []string            `json:"cursor_field,omitempty"`
	PrimaryKey          [][]string          `json:"primary_key,omitempty"`
	Projections         map[string]string   `json:"estuary.dev/projections,omitempty"`
}

// UnmarshalJSON accepts either the namespaced or bare "projections" key, for
// compatibility with connectors that predate the estuary.dev/ prefix.
func (s *ConfiguredStream) UnmarshalJSON(b []byte) error {
	var tmp struct {
		Stream              Stream              `json:"stream"`
		SyncMode            SyncMode            `json:"sync_mode"`
		DestinationSyncMode DestinationSyncMode `json:"destination_sync_mode"`
		CursorField         []string            `json:"cursor_field,omitempty"`
		PrimaryKey          [][]string          `json:"primary_key,omitempty"`
		NSProjections       map[string]string   `json:"estuary.dev/projections"`
		Projections         map[string]string   `json:"projections"`
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*s = ConfiguredStream{
		Stream:              tmp.Stream,
		SyncMode:            tmp.SyncMode,
		DestinationSyncMode: tmp.DestinationSyncMode,
		CursorField:         tmp.CursorField,
		PrimaryKey:          tmp.PrimaryKey,
		Projections:         tmp.NSProjections,
	}
	if len(s.Projections) == 0 {
		s.Projections = tmp.Projections
	}
	return nil
}

// Validate enforces invariant 1: the stream's declared sync_mode must
// appear in its own supported_sync_modes.
func (c *ConfiguredStream) Validate() error {
	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("stream invalid: %w", err)
	}
	var syncModeValid = false
	for _, m := range c.Stream.SupportedSyncModes {
		if m == c.SyncMode {
			syncModeValid = true
		}
	}
	if !syncModeValid {
		return fmt.Errorf("sync_mode %q is not in supported_sync_modes", c.SyncMode)
	}
	return nil
}

type Catalog struct {
	Streams []Stream `json:"streams"`
}

// Range is the shard key-range carried on a ConfiguredCatalog, defaulted to
// the full uint32 space when the runtime request doesn't shard captures
// across multiple adaptor instances. Wire-encoded as zero-padded hex, per
// the airbyte-to-flow predecessor's Range::serialize.
type Range struct {
	Begin uint32
	End   uint32
}

// FullRange is the default Range covering the entire key space.
var FullRange = Range{Begin: 0, End: 0xffffffff}

func (r Range) Validate() error {
	if r.Begin > r.End {
		return fmt.Errorf("range: expected begin <= end, got begin=%d end=%d", r.Begin, r.End)
	}
	return nil
}

func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Begin string `json:"begin"`
		End   string `json:"end"`
	}{
		Begin: fmt.Sprintf("%08x", r.Begin),
		End:   fmt.Sprintf("%08x", r.End),
	})
}

func (r *Range) UnmarshalJSON(b []byte) error {
	var tmp struct {
		Begin string `json:"begin"`
		End   string `json:"end"`
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	var begin, end uint32
	if _, err := fmt.Sscanf(tmp.Begin, "%08x", &begin); err != nil {
		return fmt.Errorf("parsing range.begin %q: %w", tmp.Begin, err)
	}
	if _, err := fmt.Sscanf(tmp.End, "%08x", &end); err != nil {
		return fmt.Errorf("parsing range.end %q: %w", tmp.End, err)
	}
	r.Begin, r.End = begin, end
	return nil
}

type ConfiguredCatalog struct {
	Streams []ConfiguredStream `json:"streams"`
	Tail    bool               `json:"estuary.dev/tail"`
	Range   Range              `json:"estuary.dev/range"`
}

// UnmarshalJSON accepts either the namespaced or bare tail/range
// identifiers, for compatibility.
func (c *ConfiguredCatalog) UnmarshalJSON(b []byte) error {
	var tmp struct {
		Streams []ConfiguredStream `json:"streams"`
		NSTail  *bool              `json:"estuary.dev/tail"`
		Tail    *bool              `json:"tail"`
		NSRange *Range             `json:"estuary.dev/range"`
		Range   *Range             `json:"range"`
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	var tail bool
	if tmp.NSTail != nil {
		tail = *tmp.NSTail
	} else if tmp.Tail != nil {
		tail = *tmp.Tail
	}
	var r = FullRange
	if tmp.NSRange != nil {
		r = *tmp.NSRange
	} else if tmp.Range != nil {
		r = *tmp.Range
	}
	*c = ConfiguredCatalog{Streams: tmp.Streams, Tail: tail, Range: r}
	return nil
}

// Validate enforces invariant 1 across every configured stream, plus the
// catalog and range shape invariants.
func (c *ConfiguredCatalog) Validate() error {
	if len(c.Streams) == 0 {
		return fmt.Errorf("catalog must have at least one stream")
	}
	for i, s := range c.Streams {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("streams[%d]: %w", i, err)
		}
	}
	if err := c.Range.Validate(); err != nil {
		return fmt.Errorf("range: %w", err)
	}
	return nil
}

type Status string

const (
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

type ConnectionStatus struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

type Record struct {
	Stream    string          `json:"stream"`
	Data      json.RawMessage `json:"data"`
	EmittedAt int64           `json:"emitted_at"`
	Namespace string          `json:"namespace,omitempty"`
}

type LogLevel string

const (
	LogLevelTrace LogLevel = "TRACE"
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelFatal LogLevel = "FATAL"
)

type Log struct {
	Level   LogLevel `json:"level"`
	Message string   `json:"message"`
}

// State is the Airbyte STATE message payload. Data must be a JSON object
// per the Airbyte spec; Merge indicates it should be interpreted as an RFC
// 7396 merge patch against the previous state rather than a full replace.
type State struct {
	Data  json.RawMessage `json:"data"`
	Merge bool            `json:"estuary.dev/merge,omitempty"`
}

func (s *State) UnmarshalJSON(b []byte) error {
	var tmp struct {
		Data    json.RawMessage `json:"data"`
		NSMerge bool            `json:"estuary.dev/merge"`
		Merge   bool            `json:"merge"`
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	s.Data = tmp.Data
	s.Merge = tmp.NSMerge || tmp.Merge
	return nil
}

type Spec struct {
	DocumentationURL         string          `json:"documentationUrl,omitempty"`
	ChangelogURL             string          `json:"changelogUrl,omitempty"`
	ConnectionSpecification  json.RawMessage `json:"connectionSpecification"`
	SupportsIncremental      bool            `json:"supportsIncremental,omitempty"`
	SupportedDestinationSyncModes []DestinationSyncMode `json:"supported_destination_sync_modes,omitempty"`
	SupportsNormalization    bool            `json:"supportsNormalization,omitempty"`
	SupportsDBT              bool            `json:"supportsDBT,omitempty"`
	AuthSpecification        json.RawMessage `json:"authSpecification,omitempty"`
	AdvancedAuth             json.RawMessage `json:"advanced_auth,omitempty"`
}

type MessageType string

const (
	MessageTypeRecord           MessageType = "RECORD"
	MessageTypeState            MessageType = "STATE"
	MessageTypeLog              MessageType = "LOG"
	MessageTypeSpec             MessageType = "SPEC"
	MessageTypeConnectionStatus MessageType = "CONNECTION_STATUS"
	MessageTypeCatalog          MessageType = "CATALOG"
)

// Message is the Airbyte protocol envelope: exactly one of the pointer
// fields is populated, selected by Type.
type Message struct {
	Type             MessageType       `json:"type"`
	Log              *Log              `json:"log,omitempty"`
	State            *State            `json:"state,omitempty"`
	Record           *Record           `json:"record,omitempty"`
	ConnectionStatus *ConnectionStatus `json:"connectionStatus,omitempty"`
	Spec             *Spec             `json:"spec,omitempty"`
	Catalog          *Catalog          `json:"catalog,omitempty"`
}

func NewLogMessage(level LogLevel, msg string, args ...interface{}) Message {
	return Message{
		Type: MessageTypeLog,
		Log:  &Log{Level: level, Message: fmt.Sprintf(msg, args...)},
	}
}
