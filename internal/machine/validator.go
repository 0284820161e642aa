package machine

import (
	"bytes"
	_ "embed"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/machine_v1.json
var schemaJSON []byte

const schemaURL = "https://schemas.pm-rul.dev/machine_v1.json"

// Validator handles machine document validation
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded machine schema
func NewValidator() (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add schema: %w", err)
	}

	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// ValidateDirectory loads and validates all machine files in a directory
func (v *Validator) ValidateDirectory(dirPath string) []ValidationError {
	docs, loadErrors := LoadFromDirectory(dirPath)

	var allErrors []ValidationError
	allErrors = append(allErrors, loadErrors...)

	if len(docs) == 0 {
		return allErrors
	}

	allErrors = append(allErrors, v.Validate(docs)...)
	return allErrors
}

// Validate checks already loaded documents against the schema and the
// cross-field rules the schema cannot express
func (v *Validator) Validate(docs []DocumentWithFile) []ValidationError {
	var allErrors []ValidationError

	for _, doc := range docs {
		allErrors = append(allErrors, v.validateSchema(doc.File, doc.Raw)...)
	}

	allErrors = append(allErrors, validateExtraRules(docs)...)
	return allErrors
}

// validateSchema validates a single untyped document against the JSON schema
func (v *Validator) validateSchema(file string, raw any) []ValidationError {
	if err := v.schema.Validate(raw); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			return extractSchemaErrors(file, validationErr)
		}
		return []ValidationError{{File: file, Message: err.Error()}}
	}
	return nil
}

// extractSchemaErrors flattens nested JSON schema errors
func extractSchemaErrors(file string, err *jsonschema.ValidationError) []ValidationError {
	var errors []ValidationError

	path := strings.Join(err.InstanceLocation, ".")
	if path == "" {
		path = "(root)"
	}

	errors = append(errors, ValidationError{
		File:    file,
		Path:    path,
		Message: err.Error(),
	})

	for _, cause := range err.Causes {
		errors = append(errors, extractSchemaErrors(file, cause)...)
	}

	return errors
}

// validateExtraRules applies duplicate-id and event chronology checks
func validateExtraRules(docs []DocumentWithFile) []ValidationError {
	var errors []ValidationError

	idSeen := make(map[string]string)
	for _, d := range docs {
		if d.Document == nil {
			continue
		}

		id := d.Document.Metadata.ID
		if prevFile, exists := idSeen[id]; exists {
			errors = append(errors, ValidationError{
				File:    d.File,
				Path:    "metadata.id",
				Message: fmt.Sprintf("duplicate ID %q (also in %s)", id, filepath.Base(prevFile)),
			})
		} else {
			idSeen[id] = d.File
		}

		errors = append(errors, validateChronology(d.File, d.Document)...)
	}

	return errors
}

// validateChronology checks that events follow creation and repairs follow events
func validateChronology(file string, doc *Document) []ValidationError {
	var errors []ValidationError

	created := doc.Spec.CreateDate
	for i, ev := range doc.Spec.Events {
		if ev.Timestamp.Before(created) {
			errors = append(errors, ValidationError{
				File:    file,
				Path:    fmt.Sprintf("spec.events[%d].timestamp", i),
				Message: "event timestamp precedes createDate",
			})
		}

		if ev.RepairDate != nil && !ev.RepairDate.After(ev.Timestamp) {
			errors = append(errors, ValidationError{
				File:    file,
				Path:    fmt.Sprintf("spec.events[%d].repairDate", i),
				Message: "repairDate must be after the event timestamp",
			})
		}
	}

	return errors
}
