package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var embeddedSchema string

// VerifyAgainstEmbeddedSchema checks raw YAML config against the embedded JSON schema
// and returns dotted paths of keys the schema doesn't declare, sorted.
func VerifyAgainstEmbeddedSchema(raw []byte) ([]string, error) {
	var schema map[string]any
	if err := json.Unmarshal([]byte(embeddedSchema), &schema); err != nil {
		return nil, fmt.Errorf("parse embedded schema: %w", err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	defs, _ := schema["$defs"].(map[string]any)
	unknown := unknownKeys(doc, resolve(schema, defs), defs, "")
	slices.Sort(unknown)
	return unknown, nil
}

// unknownKeys walks the document along schema properties
func unknownKeys(doc map[string]any, node, defs map[string]any, prefix string) []string {
	props, _ := node["properties"].(map[string]any)
	res := []string{}
	for k, v := range doc {
		path := strings.TrimPrefix(prefix+"."+k, ".")
		prop, ok := props[k].(map[string]any)
		if !ok {
			res = append(res, path)
			continue
		}
		if sub, isMap := v.(map[string]any); isMap {
			res = append(res, unknownKeys(sub, resolve(prop, defs), defs, path)...)
		}
	}
	return res
}

// resolve follows a local "#/$defs/Name" reference
func resolve(node, defs map[string]any) map[string]any {
	ref, ok := node["$ref"].(string)
	if !ok {
		return node
	}
	if def, found := defs[strings.TrimPrefix(ref, "#/$defs/")].(map[string]any); found {
		return def
	}
	return node
}

// GenerateSchema generates a JSON schema for the Config struct
func GenerateSchema() (*jsonschema.Schema, error) {
	return jsonschema.Reflect(&Config{}), nil
}
