// Package ops provides the adaptor's own logging abstraction: a sink
// interface decoupled from logrus so the pipeline can attach per-run
// context fields and route forwarded child-process log lines without
// re-serializing them, mirroring the teacher's flow/ops package.
package ops

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/estuary/airbyte-adaptor/airbyte"
	log "github.com/sirupsen/logrus"
)

// Logger publishes log events produced either by the adaptor itself (Log)
// or forwarded verbatim from a child process's stderr or Airbyte LOG
// messages (LogForwarded).
type Logger interface {
	Log(level log.Level, fields log.Fields, message string) error
	LogForwarded(ts time.Time, level log.Level, fields map[string]json.RawMessage, message string) error
	Level() log.Level
}

// AirbyteToLogrusLevel maps an Airbyte LOG message's level onto the
// equivalent logrus level, demoting FATAL to Error rather than logrus's
// own FatalLevel.
func AirbyteToLogrusLevel(l airbyte.LogLevel) log.Level {
	switch l {
	case airbyte.LogLevelTrace:
		return log.TraceLevel
	case airbyte.LogLevelDebug:
		return log.DebugLevel
	case airbyte.LogLevelInfo:
		return log.InfoLevel
	case airbyte.LogLevelWarn:
		return log.WarnLevel
	default: // Includes LogLevelError, LogLevelFatal.
		return log.ErrorLevel
	}
}

// NewLoggerWithFields wraps delegate and returns a Logger that adds the
// given fields to every logged event. The fields are pre-serialized to
// JSON once so LogForwarded doesn't pay re-marshal cost on every call.
func NewLoggerWithFields(delegate Logger, add log.Fields) Logger {
	var addJSON = make(map[string]json.RawMessage, len(add))
	for k, v := range add {
		encoded, err := json.Marshal(v)
		if err != nil {
			panic(fmt.Sprintf("encoding log field %q: %v", k, err))
		}
		addJSON[k] = encoded
	}
	return &withFieldsLogger{delegate: delegate, add: add, addJSON: addJSON}
}

type withFieldsLogger struct {
	delegate Logger
	add      log.Fields
	addJSON  map[string]json.RawMessage
}

func (l *withFieldsLogger) Level() log.Level { return l.delegate.Level() }

func (l *withFieldsLogger) Log(level log.Level, fields log.Fields, message string) error {
	var final log.Fields
	if l.requiresMapCopy(level, len(fields)) {
		final = log.Fields{}
		for k, v := range l.add {
			final[k] = v
		}
		for k, v := range fields {
			final[k] = v
		}
	} else {
		final = l.add
	}
	return l.delegate.Log(level, final, message)
}

func (l *withFieldsLogger) LogForwarded(ts time.Time, level log.Level, fields map[string]json.RawMessage, message string) error {
	var final map[string]json.RawMessage
	if l.requiresMapCopy(level, len(fields)) {
		final = make(map[string]json.RawMessage, len(fields)+len(l.addJSON))
		for k, v := range l.addJSON {
			final[k] = v
		}
		for k, v := range fields {
			final[k] = v
		}
	} else {
		final = l.addJSON
	}
	return l.delegate.LogForwarded(ts, level, final, message)
}

// requiresMapCopy avoids allocating a merged map when there's nothing to
// merge, or when the event would be filtered out by level anyway.
func (l *withFieldsLogger) requiresMapCopy(level log.Level, givenFieldsLen int) bool {
	return givenFieldsLen > 0 && level <= l.delegate.Level()
}

type stdLogAppender struct{}

func (stdLogAppender) Level() log.Level { return log.GetLevel() }

func (l stdLogAppender) Log(level log.Level, fields log.Fields, message string) error {
	if level > l.Level() {
		return nil
	}
	log.WithFields(fields).Log(level, message)
	return nil
}

func (l stdLogAppender) LogForwarded(ts time.Time, level log.Level, fields map[string]json.RawMessage, message string) error {
	var entry = log.NewEntry(log.StandardLogger())
	entry.Time = ts
	for key, val := range fields {
		var deser interface{}
		if err := json.Unmarshal(val, &deser); err == nil {
			entry.Data[key] = deser
		}
	}
	entry.Log(level, message)
	return nil
}

// StdLogger returns a Logger that forwards directly to the package-level
// logrus logger, used when no per-run context needs attaching.
func StdLogger() Logger {
	return stdLogAppender{}
}
