package protocol

import (
	"bytes"
	"embed"
	"fmt"
	"path"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBaseURL = "https://npcsim.ai/schemas/"

// Schema names understood by CompileSchema.
const (
	SchemaAgentView = "agent_view.schema.json"
	SchemaEvent     = "event.schema.json"
	SchemaIntent    = "intent.schema.json"
	SchemaMessage   = "message.schema.json"
	SchemaInput     = "input.schema.json"
)

// CompileSchema compiles one of the embedded wire schemas. Cross references
// between schemas resolve against the embedded set, never the network.
func CompileSchema(name string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	ents, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	for _, e := range ents {
		b, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBaseURL+e.Name(), bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", e.Name(), err)
		}
	}
	s, err := c.Compile(schemaBaseURL + name)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return s, nil
}
