package logging

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// commandColumns are printed right after the message, in this order,
// whenever an entry carries them
var commandColumns = []string{"stage", "attempt", "retries", "retries_left", "duration"}

// TextFormatter renders one line per entry:
//
//	<time> [LEVEL] [execution] Component/operation: message | mode=.. stage=.. retries=.. other=.. | error_code=.. error=..
type TextFormatter struct {
	TimestampFormat  string
	DisableColors    bool
	DisableTimestamp bool
}

// NewTextFormatter creates a text formatter with millisecond timestamps
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{TimestampFormat: "2006-01-02 15:04:05.000"}
}

// Format implements Formatter
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	var buf bytes.Buffer

	if !f.DisableTimestamp {
		buf.WriteString(entry.Timestamp.Format(f.TimestampFormat))
		buf.WriteByte(' ')
	}
	buf.WriteString(f.level(entry.Level))
	buf.WriteByte(' ')
	if entry.ExecutionID != "" {
		buf.WriteString("[" + entry.ExecutionID + "] ")
	}
	if origin := joinNonEmpty("/", entry.Component, entry.Operation); origin != "" {
		buf.WriteString(origin + ": ")
	}
	buf.WriteString(entry.Message)

	if cols := commandPairs(entry); len(cols) > 0 {
		buf.WriteString(" | ")
		buf.WriteString(strings.Join(cols, " "))
	}
	if entry.Err != nil {
		buf.WriteString(" | ")
		buf.WriteString(errorPairs(entry.Err))
	}

	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// commandPairs lays out the mode, the fixed command columns and then the
// remaining fields sorted by key
func commandPairs(entry *Entry) []string {
	var pairs []string
	if entry.Mode != "" {
		pairs = append(pairs, "mode="+entry.Mode)
	}

	fixed := make(map[string]bool, len(commandColumns))
	for _, key := range commandColumns {
		fixed[key] = true
		if v, ok := entry.Fields[key]; ok {
			pairs = append(pairs, key+"="+textValue(v))
		}
	}

	rest := make([]string, 0, len(entry.Fields))
	for key := range entry.Fields {
		if !fixed[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		pairs = append(pairs, key+"="+textValue(entry.Fields[key]))
	}
	return pairs
}

// errorPairs prints the code columns first and the free text message last
func errorPairs(d *ErrorDetail) string {
	var pairs []string
	if d.Code != 0 {
		pairs = append(pairs,
			"error_code="+strconv.Itoa(d.Code),
			"error_name="+d.Name,
			"error_category="+d.Category,
			"error_severity="+d.Severity,
		)
	}
	pairs = append(pairs, "error="+d.Message)
	return strings.Join(pairs, " ")
}

func textValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		if strings.ContainsAny(val, " |=") {
			return strconv.Quote(val)
		}
		return val
	case []byte:
		return hex.EncodeToString(val)
	case error:
		return strconv.Quote(val.Error())
	case time.Duration:
		return val.String()
	default:
		return fmt.Sprint(v)
	}
}

func (f *TextFormatter) level(l Level) string {
	text := "[" + l.String() + "]"
	if f.DisableColors {
		return text
	}

	var color string
	switch l {
	case DebugLevel:
		color = "\033[90m"
	case InfoLevel:
		color = "\033[34m"
	case WarnLevel:
		color = "\033[33m"
	case ErrorLevel:
		color = "\033[31m"
	default:
		return text
	}
	return color + text + "\033[0m"
}

func joinNonEmpty(sep string, parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

// JSONFormatter renders one JSON object per line. Engine errors become an
// object with code, name, category and severity; other errors a string.
type JSONFormatter struct {
	TimestampFormat  string
	DisableTimestamp bool
}

// NewJSONFormatter creates a JSON formatter with RFC 3339 millisecond timestamps
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"}
}

// Format implements Formatter
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	data := make(map[string]interface{}, len(entry.Fields)+8)
	for k, v := range entry.Fields {
		switch val := v.(type) {
		case error:
			data[k] = val.Error()
		case []byte:
			data[k] = hex.EncodeToString(val)
		case time.Duration:
			data[k] = val.String()
		default:
			data[k] = v
		}
	}

	data["level"] = entry.Level.String()
	data["message"] = entry.Message
	if !f.DisableTimestamp {
		data["timestamp"] = entry.Timestamp.Format(f.TimestampFormat)
	}
	for key, v := range map[string]string{
		executionIDKey: entry.ExecutionID,
		componentKey:   entry.Component,
		operationKey:   entry.Operation,
		modeKey:        entry.Mode,
	} {
		if v != "" {
			data[key] = v
		}
	}
	if d := entry.Err; d != nil {
		if d.Code != 0 {
			data[errorKey] = d
		} else {
			data[errorKey] = d.Message
		}
	}

	out, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal log entry: %w", err)
	}
	return append(out, '\n'), nil
}
