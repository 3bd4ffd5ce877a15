package normalize

import (
	"encoding/json"
	"testing"

	"github.com/estuary/airbyte-adaptor/jsonptr"
	"github.com/stretchr/testify/require"
)

func mustMutable(t *testing.T, js string) interface{} {
	t.Helper()
	v, err := jsonptr.Decode([]byte(js))
	require.NoError(t, err)
	return v
}

func encode(t *testing.T, doc interface{}) string {
	t.Helper()
	b, err := jsonptr.Encode(doc)
	require.NoError(t, err)
	var pretty json.RawMessage = b
	return string(pretty)
}

func TestApplyUserScenarioS4(t *testing.T) {
	entries := []Entry{{Pointer: "/properties/hs_latest_source_timestamp", Kind: DatetimeToDate}}

	cases := []struct{ in, want string }{
		{
			`{"some":"thing","properties":{"hs_latest_source_timestamp":"2023-03-05T15:41:54.565000+00:00"}}`,
			`{"some":"thing","properties":{"hs_latest_source_timestamp":"2023-03-05"}}`,
		},
		{
			`{"some":"thing","properties":{"hs_latest_source_timestamp":"2023-03-05"}}`,
			`{"some":"thing","properties":{"hs_latest_source_timestamp":"2023-03-05"}}`,
		},
		{
			`{"some":"thing","properties":{"hs_latest_source_timestamp":"hello"}}`,
			`{"some":"thing","properties":{"hs_latest_source_timestamp":"hello"}}`,
		},
	}

	for _, c := range cases {
		doc := mustMutable(t, c.in)
		ApplyUser(&doc, entries)
		require.JSONEq(t, c.want, encode(t, doc))
	}
}

func TestApplyUserSkipsUnknownPointer(t *testing.T) {
	doc := mustMutable(t, `{"a":1}`)
	entries := []Entry{{Pointer: "/missing", Kind: DatetimeToDate}}
	require.NotPanics(t, func() { ApplyUser(&doc, entries) })
	require.JSONEq(t, `{"a":1}`, encode(t, doc))
}

func TestApplyAutomaticScenarioS5Strings(t *testing.T) {
	schema := map[string]interface{}{
		"properties": map[string]interface{}{
			"created": map[string]interface{}{"format": "date-time"},
			"nested": map[string]interface{}{
				"properties": map[string]interface{}{
					"x": map[string]interface{}{"format": "date-time"},
				},
			},
		},
	}

	doc := mustMutable(t, `{"created":"2023-01-30 02:34:15","nested":{"x":"2020-03-25T21:03:18.000+0000"}}`)
	ApplyAutomatic(&doc, schema)
	require.JSONEq(t, `{"created":"2023-01-30T02:34:15Z","nested":{"x":"2020-03-25T21:03:18Z"}}`, encode(t, doc))
}

func TestApplyAutomaticScenarioS5Numeric(t *testing.T) {
	schema := map[string]interface{}{
		"properties": map[string]interface{}{
			"t": map[string]interface{}{"format": "date-time"},
		},
	}

	cases := []struct {
		in   string
		want string
	}{
		{`{"t":1685098188}`, `{"t":"2023-05-26T10:49:48Z"}`},
		{`{"t":1685098188123}`, `{"t":"2023-05-26T10:49:48.123Z"}`},
		{`{"t":1685098188.123}`, `{"t":"2023-05-26T10:49:48.123Z"}`},
	}
	for _, c := range cases {
		doc := mustMutable(t, c.in)
		ApplyAutomatic(&doc, schema)
		require.JSONEq(t, c.want, encode(t, doc))
	}
}

func TestApplyAutomaticConvertsNonUTCOffsetToZ(t *testing.T) {
	schema := map[string]interface{}{
		"properties": map[string]interface{}{
			"t": map[string]interface{}{"format": "date-time"},
		},
	}
	doc := mustMutable(t, `{"t":"2020-03-25T21:03:18+0200"}`)
	ApplyAutomatic(&doc, schema)
	require.JSONEq(t, `{"t":"2020-03-25T19:03:18Z"}`, encode(t, doc))
}

func TestApplyAutomaticExpandsArrayItems(t *testing.T) {
	schema := map[string]interface{}{
		"properties": map[string]interface{}{
			"events": map[string]interface{}{
				"items": map[string]interface{}{"format": "date-time"},
			},
		},
	}
	doc := mustMutable(t, `{"events":["2023-01-30 02:34:15","2023-05-26T10:49:48Z"]}`)
	ApplyAutomatic(&doc, schema)
	require.JSONEq(t, `{"events":["2023-01-30T02:34:15Z","2023-05-26T10:49:48Z"]}`, encode(t, doc))
}

func TestApplyAutomaticLeavesUnparseableValuesUnchanged(t *testing.T) {
	schema := map[string]interface{}{
		"properties": map[string]interface{}{
			"t": map[string]interface{}{"format": "date-time"},
		},
	}
	doc := mustMutable(t, `{"t":"not a date"}`)
	ApplyAutomatic(&doc, schema)
	require.JSONEq(t, `{"t":"not a date"}`, encode(t, doc))
}
