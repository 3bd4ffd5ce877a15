// Package opstest provides an in-memory ops.Logger double for asserting on
// log routing and level mapping without standing up a real sink, modeled
// on the teacher's ops/testutil.TestLogPublisher.
package opstest

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// TestLogEvent represents either a recorded event or an expectation to
// match against.
type TestLogEvent struct {
	Timestamp time.Time
	Level     log.Level
	Message   string
	Fields    map[string]interface{}
}

// Matches reports whether actual satisfies the expectation in expected. A
// zero Timestamp skips the timestamp check; only fields present on
// expected are checked, so actual may carry extra fields.
func (expected *TestLogEvent) Matches(actual *TestLogEvent) bool {
	if actual == nil {
		return expected == nil
	}
	if expected.Level != actual.Level || expected.Message != actual.Message {
		return false
	}
	if !expected.Timestamp.IsZero() && expected.Timestamp.Format(time.RFC3339Nano) != actual.Timestamp.Format(time.RFC3339Nano) {
		return false
	}
	for key, expectedField := range expected.Fields {
		actualField, ok := actual.Fields[key]
		if !ok {
			return false
		}
		expectedJSON, err := json.Marshal(&expectedField)
		if err != nil {
			panic(err)
		}
		actualJSON, err := json.Marshal(&actualField)
		if err != nil {
			panic(err)
		}
		if string(expectedJSON) != string(actualJSON) {
			return false
		}
	}
	return true
}

// NormalizeFields round-trips fields through JSON so that log.Fields and
// map[string]json.RawMessage values compare equal regardless of source.
func NormalizeFields(fields interface{}) map[string]interface{} {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		panic(err)
	}
	var m = make(map[string]interface{})
	if err := json.Unmarshal(fieldsJSON, &m); err != nil {
		panic(err)
	}
	return m
}

// TestLogPublisher is an ops.Logger that collects events in memory.
type TestLogPublisher struct {
	mutex  sync.Mutex
	events []TestLogEvent
	level  log.Level
}

func NewTestLogPublisher(level log.Level) *TestLogPublisher {
	return &TestLogPublisher{level: level}
}

// WaitForLogs blocks until logCount events are recorded or timeout elapses,
// failing the test immediately in the latter case.
func (p *TestLogPublisher) WaitForLogs(t *testing.T, timeout time.Duration, logCount int) {
	var deadline = time.Now().Add(timeout)
	var n int
	for time.Now().Before(deadline) {
		p.mutex.Lock()
		n = len(p.events)
		p.mutex.Unlock()
		if n >= logCount {
			return
		}
	}
	var events = p.TakeEvents()
	require.FailNowf(t, "WaitForLogs failed", "timed out after %s waiting on %d logs, only got %d: %+v", timeout.String(), logCount, n, events)
}

// RequireEventsMatching consumes all recorded events and asserts they
// match expected exactly, in order.
func (p *TestLogPublisher) RequireEventsMatching(t *testing.T, expected []TestLogEvent) {
	var actual = p.TakeEvents()

	for i, expectedEvent := range expected {
		if len(actual) <= i {
			break
		}
		if !expectedEvent.Matches(&actual[i]) {
			require.Failf(t, "mismatched event", "event %d mismatched, expected: %+v, actual: %+v", i, expectedEvent, actual[i])
		}
	}
	if len(actual) > len(expected) {
		require.Failf(t, "more actual logs than expected", "extra actual: %+v", actual[len(expected):])
	} else if len(actual) < len(expected) {
		require.Failf(t, "more expected logs than actual", "extra expected: %+v", expected[len(actual):])
	}
}

// TakeEvents returns and clears all events recorded so far.
func (p *TestLogPublisher) TakeEvents() []TestLogEvent {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	var events = p.events
	p.events = nil
	return events
}

func (p *TestLogPublisher) Level() log.Level { return p.level }

func (p *TestLogPublisher) Log(level log.Level, fields log.Fields, message string) error {
	if level > p.level {
		return nil
	}
	var event = TestLogEvent{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Fields:    NormalizeFields(fields),
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *TestLogPublisher) LogForwarded(ts time.Time, level log.Level, fields map[string]json.RawMessage, message string) error {
	if level > p.level {
		return nil
	}
	var event = TestLogEvent{
		Timestamp: ts,
		Level:     level,
		Message:   message,
		Fields:    NormalizeFields(fields),
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.events = append(p.events, event)
	return nil
}
