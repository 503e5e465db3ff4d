package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// DecodeError reports a malformed JSON catalog column. The feature slug and
// column name identify the offending row so operators can repair the data.
type DecodeError struct {
	Feature string
	Column  string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("catalog: feature %q column %q: %v", e.Feature, e.Column, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

const fileMappingsSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "source": {"type": "string", "minLength": 1},
      "destination": {"type": "string", "minLength": 1}
    },
    "required": ["source", "destination"],
    "additionalProperties": false
  }
}`

const schemaMappingsSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "model": {"type": "string"},
      "source": {"type": "string", "minLength": 1}
    },
    "required": ["source"],
    "additionalProperties": false
  }
}`

const envVarsSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "key": {"type": "string", "minLength": 1},
      "description": {"type": "string"},
      "required": {"type": "boolean"},
      "default": {"type": "string"}
    },
    "required": ["key"],
    "additionalProperties": false
  }
}`

const npmPackagesSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "name": {"type": "string", "minLength": 1},
      "version": {"type": "string", "minLength": 1},
      "kind": {"enum": ["runtime", "dev", "peer"]},
      "target": {"enum": ["server", "web"]}
    },
    "required": ["name", "version"],
    "additionalProperties": false
  }
}`

var (
	fileMappingsCompiled   = mustCompileColumn("fileMappings", fileMappingsSchema)
	schemaMappingsCompiled = mustCompileColumn("schemaMappings", schemaMappingsSchema)
	envVarsCompiled        = mustCompileColumn("envVars", envVarsSchema)
	npmPackagesCompiled    = mustCompileColumn("npmPackages", npmPackagesSchema)
)

func mustCompileColumn(column, schema string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	schemaURL := fmt.Sprintf("https://starter.schemas.local/catalog/%s.schema.json", column)
	if err := c.AddResource(schemaURL, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("catalog: load %s schema: %v", column, err))
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("catalog: compile %s schema: %v", column, err))
	}
	return compiled
}

// validateColumn checks raw against the column's compiled schema. Empty and
// JSON-null columns are treated as absent and pass.
func validateColumn(slug, column string, compiled *jsonschema.Schema, raw []byte) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &DecodeError{Feature: slug, Column: column, Err: err}
	}
	if err := compiled.Validate(doc); err != nil {
		return &DecodeError{Feature: slug, Column: column, Err: err}
	}
	return nil
}

func decodeStrict(slug, column string, raw []byte, out any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return &DecodeError{Feature: slug, Column: column, Err: err}
	}
	return nil
}

// DecodeFileMappings validates and decodes a file_mappings column.
func DecodeFileMappings(slug string, raw []byte) ([]FileMapping, error) {
	if err := validateColumn(slug, "fileMappings", fileMappingsCompiled, raw); err != nil {
		return nil, err
	}
	var out []FileMapping
	if err := decodeStrict(slug, "fileMappings", raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeSchemaMappings validates and decodes a schema_mappings column.
func DecodeSchemaMappings(slug string, raw []byte) ([]SchemaMapping, error) {
	if err := validateColumn(slug, "schemaMappings", schemaMappingsCompiled, raw); err != nil {
		return nil, err
	}
	var out []SchemaMapping
	if err := decodeStrict(slug, "schemaMappings", raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeEnvVars validates and decodes an env_vars column.
func DecodeEnvVars(slug string, raw []byte) ([]EnvVar, error) {
	if err := validateColumn(slug, "envVars", envVarsCompiled, raw); err != nil {
		return nil, err
	}
	var out []EnvVar
	if err := decodeStrict(slug, "envVars", raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeNPMPackages validates and decodes an npm_packages column. Entries
// without an explicit kind default to runtime.
func DecodeNPMPackages(slug string, raw []byte) ([]PackageSpec, error) {
	if err := validateColumn(slug, "npmPackages", npmPackagesCompiled, raw); err != nil {
		return nil, err
	}
	var out []PackageSpec
	if err := decodeStrict(slug, "npmPackages", raw, &out); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Kind == "" {
			out[i].Kind = KindRuntime
		}
	}
	return out, nil
}

// decodeFeatureColumns fills the four JSON-backed slices of f from their raw
// column values. Used by the Postgres and SQLite readers after row scan.
func decodeFeatureColumns(f *Feature, fileRaw, schemaRaw, envRaw, npmRaw []byte) error {
	var err error
	if f.FileMappings, err = DecodeFileMappings(f.Slug, fileRaw); err != nil {
		return err
	}
	if f.SchemaMappings, err = DecodeSchemaMappings(f.Slug, schemaRaw); err != nil {
		return err
	}
	if f.EnvVars, err = DecodeEnvVars(f.Slug, envRaw); err != nil {
		return err
	}
	if f.NPMPackages, err = DecodeNPMPackages(f.Slug, npmRaw); err != nil {
		return err
	}
	return nil
}
