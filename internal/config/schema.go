package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	invschema "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const groupSchemaURL = "summarize-model-group.schema.json"

var (
	schemaOnce  sync.Once
	schemaJSON  []byte
	groupSchema *jsonschema.Schema
	schemaErr   error
)

func groupSchemaJSON() ([]byte, error) {
	compileGroupSchema()
	return schemaJSON, schemaErr
}

func compileGroupSchema() {
	schemaOnce.Do(func() {
		r := &invschema.Reflector{
			Anonymous:                 true,
			AllowAdditionalProperties: true,
			DoNotReference:            true,
		}
		schema := r.Reflect(&ModelGroup{})
		schemaJSON, schemaErr = json.MarshalIndent(schema, "", "  ")
		if schemaErr != nil {
			return
		}
		c := jsonschema.NewCompiler()
		if schemaErr = c.AddResource(groupSchemaURL, bytes.NewReader(schemaJSON)); schemaErr != nil {
			return
		}
		groupSchema, schemaErr = c.Compile(groupSchemaURL)
	})
}

// ValidateGroup checks a decoded group value against the schema.
func ValidateGroup(group any) error {
	compileGroupSchema()
	if schemaErr != nil {
		return fmt.Errorf("compile group schema: %w", schemaErr)
	}

	payload, err := json.Marshal(group)
	if err != nil {
		return fmt.Errorf("encode group: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return fmt.Errorf("decode group: %w", err)
	}

	if err := groupSchema.Validate(decoded); err != nil {
		return fmt.Errorf("model group invalid: %w", err)
	}
	return nil
}
