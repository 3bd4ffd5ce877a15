package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOperationDispatch(t *testing.T) {
	require.Equal(t, OperationSpec, (&Request{Spec: &SpecRequest{}}).Operation())
	require.Equal(t, OperationDiscover, (&Request{Discover: &DiscoverRequest{}}).Operation())
	require.Equal(t, OperationValidate, (&Request{Validate: &ValidateRequest{}}).Operation())
	require.Equal(t, OperationApply, (&Request{Apply: &ApplyRequest{}}).Operation())
	require.Equal(t, OperationCapture, (&Request{Open: &OpenRequest{}}).Operation())
	require.Equal(t, OperationUnknown, (&Request{}).Operation())
}

func TestRequestMarshalRoundTrip(t *testing.T) {
	var req = Request{Discover: &DiscoverRequest{ConfigJSON: []byte(`{"a":1}`)}}
	b, err := req.Marshal()
	require.NoError(t, err)

	var got Request
	require.NoError(t, got.Unmarshal(b))
	require.Equal(t, OperationDiscover, got.Operation())
	require.JSONEq(t, `{"a":1}`, string(got.Discover.ConfigJSON))
}

func TestSyntheticCheckpointShape(t *testing.T) {
	var cp = SyntheticCheckpoint()
	require.True(t, cp.HasCheckpoint())
	require.True(t, cp.Checkpoint.State.MergePatch)
	require.JSONEq(t, `{}`, string(cp.Checkpoint.State.UpdatedJSON))
}
