package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// requiredSchemaText lists every key a deployment config must carry. Leaves
// are empty; declaration order is the order in which missing keys are
// reported.
const requiredSchemaText = `
model_store:
  location:
model:
  name:
  version:
deploy:
  include:
  requirements:
    python:
    platforms:
    file:
    save_to:
    vulnerability_db:
api:
  name:
  version:
`

// RequiredSchema is the parsed form of the required deployment keys.
var RequiredSchema = MustParseSchema(requiredSchemaText)

// ConfigError reports a missing or invalid configuration key. Path is the
// colon-joined key path, e.g. "deploy:requirements:file".
type ConfigError struct {
	Path   string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config %s: %s", e.Path, e.Reason)
}

// ParseSchema parses a YAML schema tree. Mappings are branches, anything
// else (normally an empty value) is a leaf.
func ParseSchema(text string) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return unwrapDocument(&doc), nil
}

// MustParseSchema is ParseSchema for package-level schemas.
func MustParseSchema(text string) *yaml.Node {
	n, err := ParseSchema(text)
	if err != nil {
		panic(err)
	}
	return n
}

// Validate walks schema depth-first in declaration order and checks that
// every key it names exists in cfg at the same level. It stops at the first
// missing key. Values are not inspected beyond their presence.
func Validate(cfg, schema *yaml.Node) error {
	return validateLevel(unwrapDocument(cfg), unwrapDocument(schema), "")
}

func validateLevel(cfg, schema *yaml.Node, path string) error {
	if schema == nil || schema.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(schema.Content); i += 2 {
		key := schema.Content[i].Value
		keyPath := key
		if path != "" {
			keyPath = path + ":" + key
		}
		val, ok := lookup(cfg, key)
		if !ok {
			return &ConfigError{Path: keyPath, Reason: "missing key in config file"}
		}
		if err := validateLevel(val, schema.Content[i+1], keyPath); err != nil {
			return err
		}
	}
	return nil
}

// lookup returns the value stored under key in mapping node n.
func lookup(n *yaml.Node, key string) (*yaml.Node, bool) {
	if n == nil {
		return nil, false
	}
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	if n.Kind != yaml.MappingNode {
		return nil, false
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1], true
		}
	}
	return nil, false
}

// lookupPath follows keys from n.
func lookupPath(n *yaml.Node, keys ...string) (*yaml.Node, bool) {
	cur := unwrapDocument(n)
	for _, k := range keys {
		next, ok := lookup(cur, k)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func unwrapDocument(n *yaml.Node) *yaml.Node {
	if n != nil && n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		return n.Content[0]
	}
	return n
}
