package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	commerrors "github.com/stilsoft/commkit/pkg/errors"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewTextFormatter())
	logger.SetLevel(DebugLevel)

	logger.Debug("Debug message", String("key", "value"))
	logger.Info("Info message", Int("count", 42))
	logger.Warn("Warning message", Bool("flag", true))
	logger.Error("Error message", ErrorField(errors.New("test error")))

	output := buf.String()

	for _, want := range []string{
		"Debug message", "Info message", "Warning message", "Error message",
		"key=value", "count=42", "flag=true", "error=test error",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewTextFormatter())
	logger.SetLevel(WarnLevel)

	logger.Debug("Debug message")
	logger.Info("Info message")
	logger.Warn("Warning message")
	logger.Error("Error message")

	output := buf.String()

	if strings.Contains(output, "Debug message") || strings.Contains(output, "Info message") {
		t.Error("debug and info should be filtered out")
	}
	if !strings.Contains(output, "Warning message") || !strings.Contains(output, "Error message") {
		t.Error("warn and error should be present")
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNop()
	logger.Error("dropped")
	if logger.GetLevel() != OffLevel {
		t.Errorf("expected OffLevel, got %v", logger.GetLevel())
	}
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewTextFormatter()).WithFields(
		String("channel", "loopback"),
		String("mode", "send_receive"),
	)

	logger.Info("Test message", Hex("request", []byte{0x01, 0xab}))

	output := buf.String()
	for _, want := range []string{"channel=loopback", "mode=send_receive", "request=01ab"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewTextFormatter())

	ctx := ContextWithExecutionID(context.Background(), "exec-123")
	logger.WithContext(ctx).Info("Test message")

	if !strings.Contains(buf.String(), "[exec-123]") {
		t.Errorf("expected execution ID in output: %s", buf.String())
	}
	if ExecutionIDFromContext(context.Background()) != "" {
		t.Error("empty context should have no execution ID")
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewTextFormatter())

	err := commerrors.RequestValidationFailed("bad checksum", 1, false).
		WithContext(&commerrors.Context{
			ExecutionID: "exec-9",
			Component:   "Command",
			Operation:   "validate_request",
		})

	logger.WithError(err).Error("Execution failed")

	output := buf.String()
	for _, want := range []string{
		"error=bad checksum",
		"error_code=1102",
		"error_category=validation",
		"[exec-9]",
		"Command/validate_request:",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewJSONFormatter())

	logger.Info("Test message",
		String("key", "value"),
		Int("count", 42),
		Duration("delay", 5*time.Millisecond),
		ErrorField(errors.New("test error")),
	)

	var entry map[string]interface{}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Failed to parse JSON output: %v", err)
	}

	if entry["level"] != "INFO" {
		t.Errorf("Expected level INFO, got %v", entry["level"])
	}
	if entry["message"] != "Test message" {
		t.Errorf("unexpected message %v", entry["message"])
	}
	if entry["count"] != float64(42) {
		t.Errorf("Expected count=42, got %v", entry["count"])
	}
	if entry["error"] != "test error" {
		t.Errorf("Expected error string, got %v", entry["error"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("Expected timestamp field")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"off", OffLevel, false},
		{"verbose", InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewFromConfigRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commkit.log")
	cfg := DefaultConfig()
	cfg.Output = path
	cfg.Level = "debug"
	cfg.Format = "json"

	logger, closer, err := NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}
	logger.Debug("written to file", String("k", "v"))
	if err := closer.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file missing entry: %s", data)
	}
}

func TestNewFromConfigRejectsUnknownFormat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Format = "xml"
	if _, _, err := NewFromConfig(cfg); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestGlobalLogger(t *testing.T) {
	previous := GetGlobalLogger()
	defer SetGlobalLogger(previous)

	var buf bytes.Buffer
	logger := New(&buf, NewTextFormatter())
	logger.SetLevel(DebugLevel)
	SetGlobalLogger(logger)

	GetGlobalLogger().Debug("Debug message", String("key", "value"))
	LogError("Error message")

	output := buf.String()
	for _, want := range []string{"Debug message", "key=value", "[ERROR]", "Error message"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output", want)
		}
	}
}

func TestTextFormatterCommandColumns(t *testing.T) {
	f := &TextFormatter{DisableColors: true, DisableTimestamp: true}

	err := commerrors.NewError(commerrors.CodeResponseInvalid, "bad frame",
		commerrors.CategoryValidation, commerrors.SeverityError)

	tests := []struct {
		name  string
		entry *Entry
		want  string
	}{
		{
			name:  "message only",
			entry: &Entry{Level: InfoLevel, Message: "ready", Fields: map[string]interface{}{}},
			want:  "[INFO] ready\n",
		},
		{
			name: "fixed columns before sorted fields",
			entry: &Entry{
				Level:       WarnLevel,
				Message:     "command failed",
				ExecutionID: "exec-1",
				Component:   "Command",
				Operation:   "validate_response",
				Mode:        "send_receive",
				Fields: map[string]interface{}{
					"response": "cafe",
					"retries":  1,
					"stage":    "response",
					"duration": 1500 * time.Microsecond,
					"note":     "two words",
				},
				Err: newErrorDetail(err),
			},
			want: "[WARN] [exec-1] Command/validate_response: command failed" +
				" | mode=send_receive stage=response retries=1 duration=1.5ms note=\"two words\" response=cafe" +
				" | error_code=1104 error_name=ResponseInvalid error_category=validation error_severity=error error=bad frame\n",
		},
		{
			name: "plain error and operation without component",
			entry: &Entry{
				Level:     ErrorLevel,
				Message:   "periodic send failed",
				Operation: "periodic",
				Fields:    map[string]interface{}{"payload": []byte{0x0a, 0xff}},
				Err:       newErrorDetail(errors.New("wire cut")),
			},
			want: "[ERROR] periodic: periodic send failed | payload=0aff | error=wire cut\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := f.Format(tt.entry)
			if err != nil {
				t.Fatalf("Format failed: %v", err)
			}
			if string(out) != tt.want {
				t.Errorf("got  %q\nwant %q", out, tt.want)
			}
		})
	}
}

func TestJSONFormatterEngineError(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewJSONFormatter())

	err := commerrors.HandlerLoop(8).WithContext(&commerrors.Context{
		ExecutionID: "exec-7",
		Mode:        "receive",
		Component:   "Command",
		Operation:   "handle_response",
	})
	logger.WithError(err).Error("Execution failed", Hex("response", []byte{0x01}))

	var entry struct {
		ExecutionID string      `json:"execution_id"`
		Mode        string      `json:"mode"`
		Operation   string      `json:"operation"`
		Response    string      `json:"response"`
		Error       ErrorDetail `json:"error"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse JSON output: %v", err)
	}

	if entry.ExecutionID != "exec-7" || entry.Mode != "receive" || entry.Operation != "handle_response" {
		t.Errorf("context not lifted: %+v", entry)
	}
	if entry.Response != "01" {
		t.Errorf("response = %q", entry.Response)
	}
	want := ErrorDetail{
		Message:  err.Error(),
		Code:     commerrors.CodeHandlerLoop,
		Name:     "HandlerLoop",
		Category: string(commerrors.CategoryConfiguration),
		Severity: string(commerrors.SeverityError),
	}
	if entry.Error != want {
		t.Errorf("error = %+v, want %+v", entry.Error, want)
	}
}
