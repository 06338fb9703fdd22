package progress

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidRecord wraps schema violations reported by Validate.
var ErrInvalidRecord = errors.New("invalid progress record")

// recordSchema constrains the well-known keys only. Unknown keys pass.
const recordSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "total_xp":              {"type": "integer", "minimum": 0},
    "difficulty":            {"type": "string", "minLength": 1},
    "exams_completed":       {"type": "integer", "minimum": 0},
    "average_accuracy":      {"type": "number", "minimum": 0, "maximum": 100},
    "last_accuracy":         {"type": "number", "minimum": 0, "maximum": 100},
    "last_correct":          {"type": "integer", "minimum": 0},
    "last_total":            {"type": "integer", "minimum": 0},
    "correct_answers_total": {"type": "integer", "minimum": 0},
    "questions_total":       {"type": "integer", "minimum": 0}
  },
  "patternProperties": {
    "^daily_xp_[0-9]{4}-[0-9]{2}-[0-9]{2}$": {"type": "integer", "minimum": 0}
  }
}`

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(recordSchema))
})

// Validate checks the well-known keys of rec against the record schema.
func Validate(rec Record) error {
	if rec == nil {
		rec = Record{}
	}

	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile progress schema: %w", err)
	}

	res, err := schema.Validate(gojsonschema.NewGoLoader(rec))
	if err != nil {
		return fmt.Errorf("validate progress record: %w", err)
	}
	if res.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(msgs, "; "))
}
