package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/smartfolder/smartfolder/internal/llm"
)

// Param is one argument in a tool's input contract.
type Param struct {
	Name        string
	Type        string // "string", "integer" or "boolean"
	Description string
	Required    bool
	// Path marks a folder-relative path argument. Path params are contained
	// even on dry runs, so the preview fails where the real run would.
	Path bool
}

// Schema is the authoritative input contract of one tool. The model-facing
// definition and the argument validator are both derived from it, so the two
// can never drift apart.
type Schema struct {
	Name        string
	Description string
	Params      []Param
}

type jsonProp struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

type jsonSchema struct {
	Type                 string              `json:"type"`
	Properties           map[string]jsonProp `json:"properties"`
	Required             []string            `json:"required,omitempty"`
	AdditionalProperties bool                `json:"additionalProperties"`
}

// ModelDef converts a schema into the wire-format tool definition.
func ModelDef(s Schema) llm.ToolDef {
	props := make(map[string]jsonProp, len(s.Params))
	var required []string
	for _, p := range s.Params {
		props[p.Name] = jsonProp{Type: p.Type, Description: p.Description}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	params, err := json.Marshal(jsonSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	})
	if err != nil {
		// The schema table is static data; a marshal failure is a
		// programming error.
		panic(fmt.Sprintf("encoding schema for %s: %v", s.Name, err))
	}
	return llm.ToolDef{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  params,
		},
	}
}

// ValidateArgs checks raw against the schema: it must be a JSON object whose
// keys are all declared, whose required keys are present, and whose values
// match the declared types.
func ValidateArgs(s Schema, raw json.RawMessage) error {
	args := map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return fmt.Errorf("arguments are not a JSON object: %w", err)
		}
	}

	byName := make(map[string]Param, len(s.Params))
	for _, p := range s.Params {
		byName[p.Name] = p
	}
	for name := range args {
		if _, ok := byName[name]; !ok {
			return fmt.Errorf("unexpected argument %q", name)
		}
	}

	for _, p := range s.Params {
		v, ok := args[p.Name]
		if !ok {
			if p.Required {
				return fmt.Errorf("missing required argument %q", p.Name)
			}
			continue
		}
		switch p.Type {
		case "string":
			if _, ok := v.(string); !ok {
				return fmt.Errorf("argument %q must be a string", p.Name)
			}
		case "boolean":
			if _, ok := v.(bool); !ok {
				return fmt.Errorf("argument %q must be a boolean", p.Name)
			}
		case "integer":
			f, ok := v.(float64)
			if !ok || f != math.Trunc(f) {
				return fmt.Errorf("argument %q must be an integer", p.Name)
			}
		default:
			return fmt.Errorf("schema for %s declares unknown type %q", s.Name, p.Type)
		}
	}
	return nil
}
