package tools

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/trajgen/server/internal/synth/model"
	logx "github.com/trajgen/server/pkg/logger"
)

type catalogFile struct {
	Tools []rawTool `yaml:"tools"`
}

type rawTool struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Kind        model.ToolKind `yaml:"kind"`
	Keywords    []string       `yaml:"keywords"`
	Always      bool           `yaml:"always"`
	Parameters  map[string]any `yaml:"parameters"`
}

// LoadCatalog reads a {"tools": [...]} definitions file. YAML and JSON are
// both accepted. Parameters may be either a name -> spec map or a JSON
// Schema object with "properties" and "required". An empty path yields the
// built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tool definitions: %w", err)
	}
	return ParseCatalog(b)
}

func ParseCatalog(b []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse tool definitions: %w", err)
	}

	specs := make([]model.ToolSpec, 0, len(f.Tools))
	for _, t := range f.Tools {
		specs = append(specs, model.ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Kind:        t.Kind,
			Keywords:    t.Keywords,
			Always:      t.Always,
			Parameters:  convertParams(t.Parameters),
		})
	}
	c, err := NewCatalog(specs)
	if err != nil {
		return nil, err
	}
	logx.Info().Int("tools", len(specs)).Msg("Loaded tool definitions")
	return c, nil
}

func convertParams(raw map[string]any) map[string]model.ParamSpec {
	out := map[string]model.ParamSpec{}
	if props, ok := raw["properties"].(map[string]any); ok {
		required := map[string]bool{}
		if req, ok := raw["required"].([]any); ok {
			for _, r := range req {
				if s, ok := r.(string); ok {
					required[s] = true
				}
			}
		}
		for name, p := range props {
			spec := paramFromMap(p)
			spec.Required = spec.Required || required[name]
			out[name] = spec
		}
		return out
	}
	for name, p := range raw {
		out[name] = paramFromMap(p)
	}
	return out
}

func paramFromMap(v any) model.ParamSpec {
	m, ok := v.(map[string]any)
	if !ok {
		return model.ParamSpec{Type: "string"}
	}
	spec := model.ParamSpec{Type: "string", Default: m["default"]}
	if s, ok := m["type"].(string); ok {
		spec.Type = s
	}
	if s, ok := m["description"].(string); ok {
		spec.Description = s
	}
	if b, ok := m["required"].(bool); ok {
		spec.Required = b
	}
	if enum, ok := m["enum"].([]any); ok {
		for _, e := range enum {
			spec.Enum = append(spec.Enum, fmt.Sprint(e))
		}
	}
	return spec
}
