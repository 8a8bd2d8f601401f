package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithOutput(&buf), WithLevel(LevelWarn))

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("low-severity output leaked: %q", out)
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("high-severity output missing: %q", out)
	}
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithOutput(&buf), WithFormat(FormatJSON), WithName("handshake"))

	l.Info("suite chosen", Fields{"suite": 0xc02f})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse JSON log line: %v", err)
	}
	if entry["msg"] != "suite chosen" || entry["level"] != "INFO" {
		t.Errorf("entry mismatch: %v", entry)
	}
	if entry["logger"] != "handshake" {
		t.Errorf("logger name missing: %v", entry)
	}
	if entry["suite"] != float64(0xc02f) {
		t.Errorf("field missing: %v", entry)
	}
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithOutput(&buf), WithFormat(FormatJSON)).With(Fields{"role": "client"})

	l.Info("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse JSON log line: %v", err)
	}
	if entry["role"] != "client" {
		t.Errorf("default field missing: %v", entry)
	}
}

func TestNilLoggerIsSilent(t *testing.T) {
	var l *Logger
	// Must not panic.
	l.Debug("into the void")
	l.Info("into the void")
	l.With(Fields{"a": 1}).Warn("still the void")
	l.Named("sub").Error("quiet")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"Warning": LevelWarn,
		"error":   LevelError,
		"off":     LevelSilent,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q): got %v, want %v", in, got, want)
		}
	}
}

func TestSimpleTracerRecordsSpans(t *testing.T) {
	tr := NewSimpleTracer()

	_, end := tr.StartSpan(context.Background(), "tls.handshake.client", WithSpanKind(SpanKindClient))
	end(nil)

	spans := tr.Spans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "tls.handshake.client" || spans[0].Kind != SpanKindClient {
		t.Errorf("span mismatch: %+v", spans[0])
	}

	tr.Reset()
	if len(tr.Spans()) != 0 {
		t.Errorf("reset did not clear spans")
	}
}
