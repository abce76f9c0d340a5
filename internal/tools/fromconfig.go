package tools

import (
	"manifold/internal/config"
	"manifold/internal/httptool"
	"manifold/internal/sensitive"
)

// RegisterHTTPFromConfig turns each configured HTTP tool descriptor into an
// httptool.Descriptor plus its model-facing JSON schema and registers it.
// Grounded on config.ToolDescriptorConfig's doc comment, which names this
// package as the place that performs the translation.
func RegisterHTTPFromConfig(reg *Registry, descs []config.ToolDescriptorConfig) {
	for _, d := range descs {
		reg.RegisterHTTP(toHTTPDescriptor(d), toJSONSchema(d))
	}
}

func toHTTPDescriptor(d config.ToolDescriptorConfig) httptool.Descriptor {
	fields := make([]sensitive.FieldConfig, 0, len(d.ResponseSensitiveFields))
	for _, f := range d.ResponseSensitiveFields {
		fields = append(fields, sensitive.FieldConfig{
			Path:           f.Path,
			MaskType:       sensitive.MaskType(f.MaskType),
			Identifier:     f.Identifier,
			AddFlag:        f.AddFlag,
			Pattern:        f.Pattern,
			MaskPercentage: f.MaskPercentage,
			MaxMaskLength:  f.MaxMaskLength,
		})
	}
	return httptool.Descriptor{
		Name:     d.Name,
		Origin:   d.Origin,
		Path:     d.Path,
		Method:   d.Method,
		IsStream: d.IsStream,
		Auth: httptool.AuthConfig{
			Location: d.Auth.Location,
			Key:      d.Auth.Key,
			Value:    d.Auth.Value,
		},
		ResponseSensitiveFields: fields,
		RecoverableFields:       d.RecoverableFields,
		NestedFields:            d.NestedSensitiveFields,
	}
}

func toJSONSchema(d config.ToolDescriptorConfig) map[string]any {
	schema := d.ParametersSchema
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	out := map[string]any{
		"description": d.Description,
		"parameters":  schema,
	}
	return out
}
