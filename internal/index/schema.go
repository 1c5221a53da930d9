package index

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaName = "package-index.schema.json"

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		comp := jsonschema.NewCompiler()
		if err := comp.AddResource(schemaName, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("loading schema %q: %w", schemaName, err)
			return
		}
		schema, schemaErr = comp.Compile(schemaName)
	})
	return schema, schemaErr
}

// validateShape checks the parts of the document the tool navigates. Other
// content is unconstrained.
func validateShape(data []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
