package httpapi

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const pushBodySchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["latestVerId", "files"],
	"properties": {
		"latestVerId": {
			"type": "integer",
			"minimum": 0
		},
		"files": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"url": {"type": "string"}
				}
			}
		},
		"postbackUrl": {"type": "string"}
	}
}`

var (
	pushSchemaOnce sync.Once
	pushSchema     *jsonschema.Schema
	pushSchemaErr  error
)

func compilePushSchema() (*jsonschema.Schema, error) {
	pushSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(pushBodySchema))
		if err != nil {
			pushSchemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("push.json", doc); err != nil {
			pushSchemaErr = err
			return
		}
		pushSchema, pushSchemaErr = compiler.Compile("push.json")
	})
	return pushSchema, pushSchemaErr
}

// validatePushBody checks the raw push payload against the embedded schema
// before any engine work starts.
func validatePushBody(body []byte) error {
	schema, err := compilePushSchema()
	if err != nil {
		return fmt.Errorf("push schema unavailable: %w", err)
	}
	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("invalid json body")
	}
	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("push body rejected: %v", err)
	}
	return nil
}
