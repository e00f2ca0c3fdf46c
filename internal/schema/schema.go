// Package schema validates tool parameter schemas as a non-fatal
// diagnostic at cook time — it never mutates the schema, it only reports
// whether santhosh-tekuri/jsonschema accepts it as well-formed.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validate compiles parameters as a JSON Schema document and returns a
// short diagnostic string if it isn't well-formed, or "" if it is (or if
// parameters is empty, which is treated as "no schema declared").
func Validate(toolName string, parameters map[string]interface{}) string {
	if len(parameters) == 0 {
		return ""
	}

	data, err := json.Marshal(parameters)
	if err != nil {
		return fmt.Sprintf("encoding parameters: %v", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Sprintf("decoding schema: %v", err)
	}

	resourceURL := "mem://" + toolName + ".schema.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceURL, doc); err != nil {
		return fmt.Sprintf("invalid schema: %v", err)
	}
	if _, err := c.Compile(resourceURL); err != nil {
		return fmt.Sprintf("invalid schema: %v", err)
	}
	return ""
}
