package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/AltairaLabs/RealtimeKit/realtime"
)

// ArgsError reports tool arguments that do not match the declared parameters.
type ArgsError struct {
	Tool    string
	Details []string
}

func (e *ArgsError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %s: %s", e.Tool, strings.Join(e.Details, "; "))
}

// argValidator checks tool call arguments against compiled parameter schemas.
type argValidator struct {
	schemas map[string]*gojsonschema.Schema
}

func newArgValidator(decls []realtime.FunctionDeclaration) (*argValidator, error) {
	v := &argValidator{schemas: make(map[string]*gojsonschema.Schema, len(decls))}
	for _, d := range decls {
		if len(d.Parameters) == 0 {
			continue
		}
		var doc any
		if err := json.Unmarshal(d.Parameters, &doc); err != nil {
			return nil, fmt.Errorf("%w: tool %s parameters: %v", realtime.ErrInvalidConfig, d.Name, err)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(lowerTypes(doc)))
		if err != nil {
			return nil, fmt.Errorf("%w: tool %s parameters: %v", realtime.ErrInvalidConfig, d.Name, err)
		}
		v.schemas[d.Name] = schema
	}
	return v, nil
}

// validate passes tools that were not declared with parameters.
func (v *argValidator) validate(name string, args json.RawMessage) error {
	schema, ok := v.schemas[name]
	if !ok {
		return nil
	}
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return &ArgsError{Tool: name, Details: []string{err.Error()}}
	}
	if result.Valid() {
		return nil
	}
	details := make([]string, len(result.Errors()))
	for i, desc := range result.Errors() {
		details[i] = desc.String()
	}
	return &ArgsError{Tool: name, Details: details}
}

// lowerTypes rewrites upper-case OpenAPI type names ("OBJECT", "STRING"),
// which the Live API accepts, into JSON Schema names.
func lowerTypes(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if s, ok := child.(string); ok && k == "type" {
				t[k] = strings.ToLower(s)
				continue
			}
			t[k] = lowerTypes(child)
		}
	case []any:
		for i := range t {
			t[i] = lowerTypes(t[i])
		}
	}
	return v
}
