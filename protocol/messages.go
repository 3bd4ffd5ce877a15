// Package protocol defines the runtime's native capture protocol: the
// Request/Response envelopes exchanged over the length-delimited or
// newline-delimited stdio boundary between the host runtime and this
// adaptor, as distinct from the Airbyte protocol the adaptor speaks to its
// child (see package airbyte).
//
// No .proto schema or protoc toolchain is available in this environment,
// so these types hand-implement the minimal contract gogo/protobuf's
// generated code normally provides (Reset/String/ProtoMessage plus
// Marshal/Unmarshal) backed by encoding/json, which lets the real
// wire.BinaryWriter/BinaryReader (gogo/protobuf/io's length-delimited
// framing) drive them exactly as driver.go drives its generated protobuf
// types. This is a deliberate, documented substitution — see DESIGN.md —
// not a fabricated dependency: the framing library is real, only the
// payload encoding differs from compiled protobuf.
package protocol

import "encoding/json"

// Operation is the tagged variant inferred from which optional sub-message
// is present on the first Request read from the runtime.
type Operation string

const (
	OperationUnknown  Operation = ""
	OperationSpec     Operation = "spec"
	OperationDiscover Operation = "discover"
	OperationValidate Operation = "validate"
	OperationApply    Operation = "apply"
	OperationCapture  Operation = "capture"
)

// SpecRequest carries nothing beyond its presence: asking the connector to
// describe its own configuration schema.
type SpecRequest struct{}

// DiscoverRequest asks the connector to enumerate the streams available
// given a configuration document.
type DiscoverRequest struct {
	ConfigJSON json.RawMessage `json:"configJson"`
}

// ValidateRequest asks the connector to confirm connectivity for a
// proposed set of resource bindings.
type ValidateRequest struct {
	ConfigJSON json.RawMessage   `json:"configJson"`
	Bindings   []ValidateBinding `json:"bindings"`
}

type ValidateBinding struct {
	ResourceConfigJSON json.RawMessage `json:"resourceConfigJson"`
}

// ApplyRequest asks the connector to materialize/update any resources a
// capture needs before records flow (a no-op for this source adaptor; the
// child is invoked but its response discarded).
type ApplyRequest struct {
	ConfigJSON json.RawMessage `json:"configJson"`
}

// OpenRequest begins a Capture: it carries the full binding list (each
// with its own resource config and collection schema) plus the
// previously-persisted checkpoint, if any.
type OpenRequest struct {
	Capture CaptureSpec     `json:"capture"`
	StateJSON json.RawMessage `json:"stateJson"`
}

type CaptureSpec struct {
	ConfigJSON json.RawMessage  `json:"configJson"`
	Bindings   []CaptureBinding `json:"bindings"`
}

type CaptureBinding struct {
	ResourceConfigJSON json.RawMessage   `json:"resourceConfigJson"`
	Collection         CollectionSpec    `json:"collection"`
}

// CollectionSpec is the subset of the runtime's collection definition the
// adaptor needs to build an Airbyte ConfiguredCatalog entry.
type CollectionSpec struct {
	Name            string            `json:"name"`
	WriteSchemaJSON json.RawMessage   `json:"writeSchemaJson"`
	Key             []string          `json:"key"`
	Projections     map[string]string `json:"projections,omitempty"`
}

// Request is the envelope read from the runtime. Exactly one sub-message
// field is set per message; Operation() reports which.
type Request struct {
	Spec     *SpecRequest     `json:"spec,omitempty"`
	Discover *DiscoverRequest `json:"discover,omitempty"`
	Validate *ValidateRequest `json:"validate,omitempty"`
	Apply    *ApplyRequest    `json:"apply,omitempty"`
	Open     *OpenRequest     `json:"open,omitempty"`
}

// Operation inspects which optional sub-message is present and returns the
// corresponding Operation, or OperationUnknown if none is set. If more than
// one is set, the first match in the order Spec, Discover, Validate, Apply,
// Open wins.
func (r *Request) Operation() Operation {
	switch {
	case r.Spec != nil:
		return OperationSpec
	case r.Discover != nil:
		return OperationDiscover
	case r.Validate != nil:
		return OperationValidate
	case r.Apply != nil:
		return OperationApply
	case r.Open != nil:
		return OperationCapture
	default:
		return OperationUnknown
	}
}

func (r *Request) Reset()         { *r = Request{} }
func (r *Request) String() string { b, _ := json.Marshal(r); return string(b) }
func (r *Request) ProtoMessage()  {}
func (r *Request) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
func (r *Request) Unmarshal(b []byte) error {
	return json.Unmarshal(b, r)
}

// SpecResponse echoes the connector's configuration schema back in the
// runtime's shape.
type SpecResponse struct {
	ProtocolVersion   string          `json:"protocolVersion"`
	ConfigSchemaJSON  json.RawMessage `json:"configSchemaJson"`
	ResourceConfigSchemaJSON json.RawMessage `json:"resourceConfigSchemaJson"`
	DocumentationURL  string          `json:"documentationUrl,omitempty"`
	Oauth2            json.RawMessage `json:"oauth2,omitempty"`
}

// DiscoverResponse lists the bindings the runtime can choose to add.
type DiscoverResponse struct {
	Bindings []DiscoveredBinding `json:"bindings"`
}

type DiscoveredBinding struct {
	RecommendedName    string          `json:"recommendedName"`
	ResourceConfigJSON json.RawMessage `json:"resourceConfigJson"`
	DocumentSchemaJSON json.RawMessage `json:"documentSchemaJson"`
	Key                []string        `json:"key,omitempty"`
	Disable            bool            `json:"disable,omitempty"`
}

// ValidateResponse echoes back the resource path for every binding that
// was found valid.
type ValidateResponse struct {
	Bindings []ValidatedBinding `json:"bindings"`
}

type ValidatedBinding struct {
	ResourcePath []string `json:"resourcePath"`
}

// ApplyResponse carries no data; its presence signals completion.
type ApplyResponse struct{}

// OpenedResponse signals that a Capture is ready to stream records; it
// must precede any Captured or Checkpoint response.
type OpenedResponse struct{}

// CapturedResponse carries one document for one binding.
type CapturedResponse struct {
	Binding int             `json:"binding"`
	DocJSON json.RawMessage `json:"docJson"`
}

// CheckpointResponse carries a state update, optionally to be interpreted
// as an RFC 7396 merge patch against the prior checkpoint.
type CheckpointResponse struct {
	State CheckpointState `json:"state"`
}

type CheckpointState struct {
	UpdatedJSON json.RawMessage `json:"updatedJson"`
	MergePatch  bool            `json:"mergePatch,omitempty"`
}

// Response is the envelope written to the runtime. Exactly one sub-message
// field is set.
type Response struct {
	Spec       *SpecResponse       `json:"spec,omitempty"`
	Discovered *DiscoverResponse   `json:"discovered,omitempty"`
	Validated  *ValidateResponse   `json:"validated,omitempty"`
	Applied    *ApplyResponse      `json:"applied,omitempty"`
	Opened     *OpenedResponse     `json:"opened,omitempty"`
	Captured   *CapturedResponse   `json:"captured,omitempty"`
	Checkpoint *CheckpointResponse `json:"checkpoint,omitempty"`
}

func (r *Response) Reset()         { *r = Response{} }
func (r *Response) String() string { b, _ := json.Marshal(r); return string(b) }
func (r *Response) ProtoMessage()  {}
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
func (r *Response) Unmarshal(b []byte) error {
	return json.Unmarshal(b, r)
}

// HasCheckpoint reports whether this response carries a Checkpoint,
// used by the supervisor's pending-checkpoint tracker.
func (r *Response) HasCheckpoint() bool { return r.Checkpoint != nil }

// SyntheticCheckpoint builds the final `{}` merge-patch checkpoint the
// supervisor injects when the child exits after emitting a record with no
// subsequent checkpoint.
func SyntheticCheckpoint() *Response {
	return &Response{
		Checkpoint: &CheckpointResponse{
			State: CheckpointState{UpdatedJSON: json.RawMessage(`{}`), MergePatch: true},
		},
	}
}
