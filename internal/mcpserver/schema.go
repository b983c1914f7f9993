package mcpserver

import "github.com/maas-mcp/bridge/internal/dispatch"

// jsonSchemaFor renders a dispatch.Schema as the JSON Schema object MCP
// clients expect in a tool's inputSchema.
func jsonSchemaFor(s dispatch.Schema) map[string]any {
	properties := make(map[string]any, len(s.Fields))
	var required []string

	for _, f := range s.Fields {
		prop := map[string]any{"type": jsonSchemaType(f.Type)}
		if len(f.Enum) > 0 {
			prop["enum"] = f.Enum
		}
		properties[f.Name] = prop
		if f.Required {
			required = append(required, f.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func jsonSchemaType(t dispatch.FieldType) string {
	switch t {
	case dispatch.FieldInteger:
		return "integer"
	case dispatch.FieldNumber:
		return "number"
	case dispatch.FieldBoolean:
		return "boolean"
	case dispatch.FieldObject:
		return "object"
	case dispatch.FieldArray:
		return "array"
	default:
		return "string"
	}
}
