package protocol

import (
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"
)

var schemaTypes = map[string]any{
	"register":        Register{},
	"heartbeat":       Heartbeat{},
	"keepalive":       Keepalive{},
	"agent_list":      AgentList{},
	"command":         Command{},
	"status_response": StatusResponse{},
	"pong":            Pong{},
	"run_error":       RunError{},
}

// SchemaNames lists the message schemas available from Schema, sorted.
func SchemaNames() []string {
	names := make([]string, 0, len(schemaTypes))
	for name := range schemaTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schema reflects the JSON Schema of a named message.
func Schema(name string) (*jsonschema.Schema, error) {
	value, ok := schemaTypes[name]
	if !ok {
		return nil, fmt.Errorf("unknown message schema %q", name)
	}
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	schema := reflector.Reflect(value)
	schema.Title = name
	return schema, nil
}
