package protocol

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ParseResultLine reports whether line is a complete single-line JSON object and returns it
// trimmed. Blank lines, plain text and truncated objects are rejected.
func ParseResultLine(line string) ([]byte, bool) {
	text := strings.TrimSpace(line)
	if !strings.HasPrefix(text, "{") || !strings.HasSuffix(text, "}") {
		return nil, false
	}
	payload := []byte(text)
	if !json.Valid(payload) {
		return nil, false
	}
	return payload, true
}

// FilterResultLines keeps the well-formed JSON object lines, in order.
func FilterResultLines(lines []string) [][]byte {
	var out [][]byte
	for _, line := range lines {
		if payload, ok := ParseResultLine(line); ok {
			out = append(out, payload)
		}
	}
	return out
}

// TagOrigin adds a "machine" field to a JSON object unless one is already present.
// Existing fields keep their order and encoding.
func TagOrigin(payload []byte, machine string) ([]byte, error) {
	trimmed := bytes.TrimSpace(payload)
	if machine == "" {
		return trimmed, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil || fields == nil {
		return nil, ErrNotObject
	}
	if _, ok := fields["machine"]; ok {
		return trimmed, nil
	}
	tag, err := json.Marshal(machine)
	if err != nil {
		return nil, err
	}

	rest := bytes.TrimSpace(trimmed[1:])
	var out bytes.Buffer
	out.Grow(len(trimmed) + len(tag) + 12)
	out.WriteString(`{"machine":`)
	out.Write(tag)
	if len(fields) > 0 {
		out.WriteByte(',')
	}
	out.Write(rest)
	return out.Bytes(), nil
}
