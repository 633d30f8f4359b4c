package services

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaBaseURL = "https://champollion.schemas.local/corrections/"

var correctionSchemaSources = map[string]string{
	"openDays":       `{"type":"array","items":{"type":"string","pattern":"^[0-6]$"}}`,
	"array":          `{"type":"array"}`,
	"object":         `{"type":"object"}`,
	"holidays":       `{"enum":["treatedAsClosed","treatedAsOpen"]}`,
	"jobTitleGroup":  `{"type":"array","minItems":1,"items":{"type":"integer","minimum":1}}`,
	"dateString":     `{"type":"string","minLength":10}`,
	"contractPeriod": `{"type":"object","required":["start","end"],"properties":{"start":{"type":"string"},"end":{"type":"string"}}}`,
}

// correctionSchemas holds the compiled shape checks for stored corrections.
type correctionSchemas struct {
	openDays       *jsonschema.Schema
	array          *jsonschema.Schema
	object         *jsonschema.Schema
	holidays       *jsonschema.Schema
	jobTitleGroup  *jsonschema.Schema
	dateString     *jsonschema.Schema
	contractPeriod *jsonschema.Schema
}

func compileCorrectionSchemas() (*correctionSchemas, error) {
	compiled := make(map[string]*jsonschema.Schema, len(correctionSchemaSources))
	for name, source := range correctionSchemaSources {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		schemaURL := fmt.Sprintf("%s%s.schema.json", schemaBaseURL, name)
		if err := c.AddResource(schemaURL, strings.NewReader(source)); err != nil {
			return nil, fmt.Errorf("corrections schema %s load failed: %w", name, err)
		}
		s, err := c.Compile(schemaURL)
		if err != nil {
			return nil, fmt.Errorf("corrections schema %s compile failed: %w", name, err)
		}
		compiled[name] = s
	}
	return &correctionSchemas{
		openDays:       compiled["openDays"],
		array:          compiled["array"],
		object:         compiled["object"],
		holidays:       compiled["holidays"],
		jobTitleGroup:  compiled["jobTitleGroup"],
		dateString:     compiled["dateString"],
		contractPeriod: compiled["contractPeriod"],
	}, nil
}

var schemas = mustCompileCorrectionSchemas()

func mustCompileCorrectionSchemas() *correctionSchemas {
	s, err := compileCorrectionSchemas()
	if err != nil {
		panic(err)
	}
	return s
}
