package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

var ErrNotObject = errors.New("frame is not a JSON object")

// Envelope holds the routing fields of a frame. Everything else is left in the raw payload.
type Envelope struct {
	Type     string   `json:"type"`
	Command  string   `json:"command"`
	Machine  string   `json:"machine"`
	Hostname string   `json:"hostname"`
	Machines []string `json:"machines"`
}

// Peek decodes the routing fields of payload. It fails when payload is not a JSON object.
func Peek(payload []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, ErrNotObject
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Envelope{}, errors.Join(ErrNotObject, err)
	}
	envelope := Envelope{
		Type:     stringField(fields, "type"),
		Command:  stringField(fields, "command"),
		Machine:  stringField(fields, "machine"),
		Hostname: stringField(fields, "hostname"),
	}
	if raw, ok := fields["machines"]; ok {
		_ = json.Unmarshal(raw, &envelope.Machines)
	}
	return envelope, nil
}

// stringField tolerates non-string values so a numeric machine id still routes.
func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var value string
	if err := json.Unmarshal(raw, &value); err == nil {
		return value
	}
	var number json.Number
	if err := json.Unmarshal(raw, &number); err == nil {
		return number.String()
	}
	return ""
}

// Metric extracts a display value from the first present key, for log lines only.
func Metric(payload []byte, keys ...string) (string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return "", false
	}
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok || string(raw) == "null" {
			continue
		}
		var text string
		if err := json.Unmarshal(raw, &text); err == nil {
			return text, true
		}
		var number float64
		if err := json.Unmarshal(raw, &number); err == nil {
			return strconv.FormatFloat(number, 'f', -1, 64), true
		}
		return string(raw), true
	}
	return "", false
}

// Keys accepted for the core count and throughput of a result frame.
var (
	CoreKeys       = []string{"cores", "vms"}
	ThroughputKeys = []string{"requests", "bandwidth", "kpi"}
)
