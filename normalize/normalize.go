// Package normalize applies the two families of document normalization
// the interceptor runs over captured records: user-declared normalization
// entries attached to a binding, and automatic normalization driven by the
// collection's write schema (currently: coercing values reachable through
// a `format: "date-time"` subschema to RFC 3339).
//
// Grounded on normalize.rs's DatetimeToDate rule for the user-declared
// family; the automatic family has no upstream precedent and is built
// directly from spec.md's description of automatic_normalizations, reusing
// this package's own walk/parse helpers.
package normalize

import (
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/estuary/airbyte-adaptor/jsonptr"
)

// Kind identifies a user-declared normalization rule. DatetimeToDate is the
// only variant defined today; the type is a string so new variants can be
// added without a breaking change to callers that persist entries to disk.
type Kind string

// DatetimeToDate truncates a datetime string down to its leading calendar
// date, leaving values that are already a bare RFC 3339 date untouched.
const DatetimeToDate Kind = "datetime_to_date"

// Entry is one user-declared normalization rule: apply Kind at Pointer.
type Entry struct {
	Pointer string `json:"pointer"`
	Kind    Kind   `json:"normalization"`
}

var dateLeadRe = regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2}`)

// ApplyUser runs every entry against doc (the mutable jsonptr tree
// representation), in order. Unknown Kinds and pointers that resolve to
// nothing are silently skipped, matching normalize_doc's behavior of never
// failing a capture over a malformed normalization rule.
func ApplyUser(doc *interface{}, entries []Entry) {
	for _, e := range entries {
		if e.Kind != DatetimeToDate {
			continue
		}
		applyDatetimeToDate(doc, e.Pointer)
	}
}

func applyDatetimeToDate(doc *interface{}, ptrStr string) {
	ptr, err := jsonptr.Parse(ptrStr)
	if err != nil {
		return
	}
	val, ok := ptr.Query(*doc)
	if !ok {
		return
	}
	s, ok := val.(string)
	if !ok {
		return
	}
	if isRFC3339Date(s) {
		return
	}
	m := dateLeadRe.FindString(s)
	if m == "" {
		return
	}
	slot, err := ptr.Create(doc)
	if err != nil {
		return
	}
	var replaced interface{} = m
	*slot = replaced
}

// isRFC3339Date reports whether s is already a bare calendar date
// (YYYY-MM-DD) with no time component.
func isRFC3339Date(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// yearThreeThousandSeconds is the spec's cutoff (32503680000) for
// distinguishing an epoch value expressed in seconds from one expressed in
// milliseconds: any value at or below it is treated as seconds.
const yearThreeThousandSeconds = 32503680000

var liberalLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ApplyAutomatic walks schema for every subschema with format:"date-time"
// and coerces the document value(s) at the corresponding pointer to RFC
// 3339, expanding a trailing "/*" array-items segment against the actual
// array length in doc. Unparseable values are left as-is.
func ApplyAutomatic(doc *interface{}, schema interface{}) {
	walkSchema(schema, nil, func(tokens []string) {
		normalizeAtPath(doc, tokens)
	})
}

// walkSchema mirrors the schema package's traversal contract: Property
// descent through "properties", and "/*" for array items via "items".
func walkSchema(schema interface{}, path []string, fn func(tokens []string)) {
	obj, ok := schema.(map[string]interface{})
	if !ok {
		return
	}
	if format, ok := obj["format"].(string); ok && format == "date-time" {
		fn(path)
	}
	if props, ok := obj["properties"].(map[string]interface{}); ok {
		for name, sub := range props {
			walkSchema(sub, append(append([]string{}, path...), name), fn)
		}
	}
	if items, ok := obj["items"]; ok {
		walkSchema(items, append(append([]string{}, path...), "*"), fn)
	}
}

// normalizeAtPath resolves tokens against doc, expanding any "*" segment
// against the array actually present, and normalizes every resolved
// scalar value in place.
func normalizeAtPath(doc *interface{}, tokens []string) {
	var resolve func(cur *interface{}, rest []string)
	resolve = func(cur *interface{}, rest []string) {
		if len(rest) == 0 {
			normalizeValue(cur)
			return
		}
		token := rest[0]
		if token == "*" {
			arr, ok := (*cur).([]*interface{})
			if !ok {
				return
			}
			for _, elem := range arr {
				if elem != nil {
					resolve(elem, rest[1:])
				}
			}
			return
		}
		m, ok := (*cur).(map[string]*interface{})
		if !ok {
			return
		}
		child, ok := m[token]
		if !ok || child == nil {
			return
		}
		resolve(child, rest[1:])
	}
	resolve(doc, tokens)
}

func normalizeValue(slot *interface{}) {
	switch v := (*slot).(type) {
	case string:
		// Already RFC 3339: left untouched as-is to avoid losing precision or
		// offset information needlessly.
		if _, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return
		}
		if ts, ok := parseLiberalDatetime(v); ok {
			*slot = formatRFC3339(ts)
		}
	case float64:
		*slot = formatRFC3339(epochToTime(v))
	}
}

// parseLiberalDatetime attempts RFC 3339 first, then each fallback layout
// in turn.
func parseLiberalDatetime(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range liberalLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// epochToTime interprets a numeric value per spec.md's seconds/
// milliseconds/float heuristic: values at or below the year-3000-in-
// seconds cutoff are seconds (keeping any fractional part); whole numbers
// above it are milliseconds; fractional numbers above it are
// seconds-with-fraction. Fractions are rounded to the microsecond.
func epochToTime(v float64) time.Time {
	if v > yearThreeThousandSeconds && v == float64(int64(v)) {
		return time.UnixMilli(int64(v)).UTC()
	}
	sec := int64(v)
	nsec := int64(math.Round((v-float64(sec))*1e6)) * 1e3
	return time.Unix(sec, nsec).UTC()
}

// formatRFC3339 converts t to UTC and emits Z-suffixed RFC 3339 with
// auto-precision: no fractional seconds when the value falls on a whole
// second, milliseconds otherwise. Converting first matters whenever the
// parsed value carried an explicit non-zero offset: formatting with a
// literal "Z" directive (rather than a "Z07:00" zone verb) prints whatever
// wall-clock t holds, so t must already be in UTC.
func formatRFC3339(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond() == 0 {
		return t.Format("2006-01-02T15:04:05Z")
	}
	ms := t.Nanosecond() / 1e6
	return fmt.Sprintf("%s.%03dZ", t.Format("2006-01-02T15:04:05"), ms)
}
