package record

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrSchema is returned when a document does not match the record schema.
var ErrSchema = errors.New("record: does not match schema")

//go:embed schema.json
var schemaJSON []byte

// Schema returns the JSON Schema of a serialized StructuredRecord.
func Schema() []byte {
	return append([]byte(nil), schemaJSON...)
}

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("structured_record.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("structured_record.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
})

// ValidateJSON checks a serialized record against the schema.
func ValidateJSON(data []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal record: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}

// JSON returns the indented JSON encoding of r.
func (r *StructuredRecord) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Parse decodes a serialized record after checking it against the schema.
func Parse(data []byte) (*StructuredRecord, error) {
	if err := ValidateJSON(data); err != nil {
		return nil, err
	}
	var r StructuredRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &r, nil
}
