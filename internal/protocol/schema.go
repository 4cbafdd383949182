package protocol

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// inbound maps client message types to their schema file.
var inbound = map[string]string{
	TypeHello:       "hello.schema.json",
	TypeSetBlock:    "set_block.schema.json",
	TypeLoadSection: "load_section.schema.json",
}

var schemas = compileSchemas()

func compileSchemas() map[string]*jsonschema.Schema {
	out := make(map[string]*jsonschema.Schema, len(inbound))
	for typ, name := range inbound {
		raw, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			panic(err)
		}
		out[typ] = jsonschema.MustCompileString(name, string(raw))
	}
	return out
}

// ValidateInbound checks a client message against its schema and returns its
// routing header. Unknown types are rejected.
func ValidateInbound(raw []byte) (BaseMessage, error) {
	base, err := DecodeBase(raw)
	if err != nil {
		return base, err
	}
	s, ok := schemas[base.Type]
	if !ok {
		return base, fmt.Errorf("unknown message type %q", base.Type)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return base, err
	}
	if err := s.Validate(v); err != nil {
		return base, err
	}
	return base, nil
}
