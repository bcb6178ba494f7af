package quiz

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// contentSchema describes the quiz content wire format: an ordered list of
// question objects.
const contentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "question"],
    "properties": {
      "id": {"type": ["string", "integer"]},
      "type": {"type": "string"},
      "question": {"type": "string", "minLength": 1},
      "options": {
        "type": "array",
        "items": {
          "oneOf": [
            {"type": "string"},
            {
              "type": "object",
              "required": ["text"],
              "properties": {
                "id": {"type": ["string", "integer"]},
                "text": {"type": "string"}
              }
            }
          ]
        }
      },
      "correctAnswer": {"type": ["integer", "string", "boolean"]},
      "points": {"type": "number", "minimum": 0},
      "explanation": {"type": "string"}
    }
  }
}`

var loadSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(contentSchema))
})

// validateContent checks raw quiz content against the wire schema.
func validateContent(data []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return fmt.Errorf("compile quiz schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return &ParseError{Reason: "content is not valid JSON", Err: err}
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return &ParseError{Reason: strings.Join(msgs, "; ")}
	}
	return nil
}
