package classify

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// checkResponseSchema is the accepted shape of POST /api/check responses.
// Only safety_score and risk_level are mandatory; the rest default to zero values.
const checkResponseSchema = `{
	"type": "object",
	"required": ["safety_score", "risk_level"],
	"properties": {
		"url":                  {"type": "string"},
		"safety_score":         {"type": "integer", "minimum": 0, "maximum": 100},
		"risk_level":           {"enum": ["safe", "suspicious", "phishing"]},
		"phishing_probability": {"type": "number", "minimum": 0, "maximum": 100},
		"explanations":         {"type": "array", "items": {"type": "string"}},
		"details": {
			"type": "object",
			"properties": {
				"url_length":   {"type": "integer", "minimum": 0},
				"https":        {"type": "boolean"},
				"sus_keywords": {"type": "integer", "minimum": 0}
			}
		},
		"vibe":  {"type": "string"},
		"emoji": {"type": "string"}
	}
}`

const schemaURL = "check_response.json"

func compileResponseSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(checkResponseSchema))
	if err != nil {
		return nil, fmt.Errorf("compileResponseSchema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("compileResponseSchema: %w", err)
	}
	sch, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compileResponseSchema: %w", err)
	}
	return sch, nil
}

// validateBody checks a raw response body against the compiled schema.
func validateBody(sch *jsonschema.Schema, body []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("response does not match schema: %w", err)
	}
	return nil
}
