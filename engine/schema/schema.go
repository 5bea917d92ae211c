package schema

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// testRequestSchema validates the body of POST /api/tests/{kind}. Headers
// must be a flat string map and the chaos knobs are bounded; anything else
// is an input error reported before a run is created.
const testRequestSchema = `{
	"type": "object",
	"required": ["target_url"],
	"properties": {
		"target_url": {"type": "string", "minLength": 1},
		"drm_enabled": {"type": "boolean"},
		"headers": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		},
		"chaos": {
			"type": "object",
			"properties": {
				"error_rate_pct": {"type": "number", "minimum": 0, "maximum": 100},
				"extra_latency_ms": {"type": "integer", "minimum": 0, "maximum": 5000},
				"enable_fault_mode": {"type": "boolean"}
			},
			"additionalProperties": false
		}
	},
	"additionalProperties": false
}`

var (
	compileOnce sync.Once
	compiled    *gojsonschema.Schema
	compileErr  error
)

func requestSchema() (*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		loader := gojsonschema.NewStringLoader(testRequestSchema)
		compiled, compileErr = gojsonschema.NewSchema(loader)
	})
	return compiled, compileErr
}

// ValidateTestRequest validates a raw test request body against the request
// schema and returns a descriptive error listing every violation.
func ValidateTestRequest(body []byte) error {
	s, err := requestSchema()
	if err != nil {
		return fmt.Errorf("failed to compile request schema: %w", err)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}

	if result.Valid() {
		return nil
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("invalid test request: %s", strings.Join(problems, "; "))
}
