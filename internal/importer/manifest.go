package importer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Manifest carries the per-upload options attached to a job. All fields are
// optional; an absent manifest means engine defaults.
type Manifest struct {
	Profile           string `json:"profile,omitempty"`
	ExpectedQuestions int    `json:"expected_questions,omitempty"`
}

const manifestSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"profile": {
			"type": "string",
			"minLength": 1
		},
		"expected_questions": {
			"type": "integer",
			"minimum": 1,
			"maximum": 500
		}
	}
}`

var manifestSchemaLoader = gojsonschema.NewStringLoader(manifestSchema)

// ParseManifest validates and decodes a job manifest. A nil or empty raw
// document yields a zero manifest; a malformed one is a job-level failure.
func ParseManifest(raw json.RawMessage) (Manifest, error) {
	var m Manifest
	if len(raw) == 0 {
		return m, nil
	}

	result, err := gojsonschema.Validate(manifestSchemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return m, fmt.Errorf("validate manifest: %w", err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return m, fmt.Errorf("invalid manifest: %s", strings.Join(details, "; "))
	}

	if err := json.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}
