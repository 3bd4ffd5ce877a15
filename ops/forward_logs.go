package ops

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
)

// logSourceField names the field ForwardLogs stamps onto every event it
// emits, identifying where the line came from (e.g. "connector stderr").
const logSourceField = "logSource"

// ForwardLogs reads lines from logSource and republishes each one through
// publisher. It first attempts to parse the line as a JSON structured log
// event (permissively matching level/timestamp/message field names,
// case-insensitively); lines that don't parse are forwarded as plain text
// at fallbackLevel. logSource is closed when ForwardLogs returns.
func ForwardLogs(sourceDesc string, fallbackLevel log.Level, logSource io.ReadCloser, publisher Logger) {
	var reader = bufio.NewReader(logSource)
	defer logSource.Close()
	var jsonLines, textLines int

	sourceDescJSON, err := json.Marshal(sourceDesc)
	if err != nil {
		panic(fmt.Sprintf("serializing sourceDesc: %v", err))
	}

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				publisher.Log(log.ErrorLevel, log.Fields{
					"error":        err,
					logSourceField: sourceDesc,
				}, "failed to read logs from source")
			}
			break
		}
		line = bytes.TrimSuffix(line, []byte{'\n'})
		if len(line) == 0 {
			continue
		}

		var event logEvent
		if err := json.Unmarshal(line, &event); err == nil {
			jsonLines++
			event.Fields[logSourceField] = json.RawMessage(sourceDescJSON)
			if event.Timestamp.IsZero() {
				event.Timestamp = time.Now().UTC()
			}
			var level = fallbackLevel
			if !event.Level.isZero() {
				level = log.Level(event.Level)
			}
			publisher.LogForwarded(event.Timestamp, level, event.Fields, event.Message)
		} else {
			textLines++
			var fields = map[string]json.RawMessage{logSourceField: json.RawMessage(sourceDescJSON)}
			publisher.LogForwarded(time.Now().UTC(), fallbackLevel, fields, string(line))
		}
	}

	publisher.Log(log.TraceLevel, log.Fields{
		"jsonLines":    jsonLines,
		"textLines":    textLines,
		logSourceField: sourceDesc,
	}, "finished forwarding logs")
}

// NewLogForwardWriter returns an io.WriteCloser that feeds everything
// written to it through ForwardLogs on a background goroutine, suitable
// for assignment directly as a command's Stderr. Close waits for the
// forwarding goroutine to drain and finish.
func NewLogForwardWriter(sourceDesc string, fallbackLevel log.Level, publisher Logger) io.WriteCloser {
	r, w := io.Pipe()
	var done = make(chan struct{})
	go func() {
		ForwardLogs(sourceDesc, fallbackLevel, r, publisher)
		close(done)
	}()
	return &logForwardWriter{w: w, done: done}
}

type logForwardWriter struct {
	w    *io.PipeWriter
	done chan struct{}
}

func (l *logForwardWriter) Write(p []byte) (int, error) { return l.w.Write(p) }

func (l *logForwardWriter) Close() error {
	var err = l.w.Close()
	<-l.done
	return err
}

// jsonLogLevel wraps log.Level with permissive JSON unmarshaling that
// matches common spellings ("warn" vs "warning", etc.) by prefix.
type jsonLogLevel log.Level

func (l jsonLogLevel) isZero() bool { return l == 0 }

var errInvalidLogLevel = errors.New("invalid log level")

func (l *jsonLogLevel) UnmarshalJSON(b []byte) error {
	if len(b) < 5 { // shortest valid is 3-char level + 2 quotes.
		return errInvalidLogLevel
	}
	b = b[1 : len(b)-1]

	for _, candidate := range []struct {
		prefix string
		level  log.Level
	}{
		{"debug", log.DebugLevel},
		{"info", log.InfoLevel},
		{"trace", log.TraceLevel},
		{"warn", log.WarnLevel},
		{"err", log.ErrorLevel},
		{"fatal", log.ErrorLevel},
		{"panic", log.ErrorLevel},
	} {
		if len(b) >= len(candidate.prefix) && eqIgnoreASCIICase(candidate.prefix, b[:len(candidate.prefix)]) {
			*l = jsonLogLevel(candidate.level)
			return nil
		}
	}
	return errInvalidLogLevel
}

func eqIgnoreASCIICase(a string, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if a[i] != b[i] && (a[i]^32) != b[i] {
			return false
		}
	}
	return true
}

// logEvent is a permissively-parsed structured log line: it hunts for
// fields matching common level/timestamp/message spellings and buckets
// everything else under Fields.
type logEvent struct {
	Level     jsonLogLevel
	Timestamp time.Time
	Fields    map[string]json.RawMessage
	Message   string
}

func (e *logEvent) UnmarshalJSON(b []byte) error {
	*e = logEvent{}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	for k, v := range m {
		switch {
		case fieldMatches(k, "timestamp", "time", "ts") && e.Timestamp.IsZero():
			var t time.Time
			if err := json.Unmarshal(v, &t); err == nil {
				e.Timestamp = t
				delete(m, k)
			}
		case fieldMatches(k, "level", "lvl") && e.Level.isZero():
			if err := json.Unmarshal(v, &e.Level); err == nil {
				delete(m, k)
			}
		case fieldMatches(k, "message", "msg") && e.Message == "":
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				e.Message = s
				delete(m, k)
			}
		}
	}
	e.Fields = m
	return nil
}

func fieldMatches(field string, allowed ...string) bool {
	for _, candidate := range allowed {
		if eqIgnoreASCIICase(candidate, []byte(field)) {
			return true
		}
	}
	return false
}
