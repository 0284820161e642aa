package machine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func mustNewValidator(t *testing.T) *Validator {
	t.Helper()

	validator, err := NewValidator()
	if err != nil {
		t.Fatalf("failed to create validator: %v", err)
	}
	return validator
}

func TestLoadFromDirectory(t *testing.T) {
	docs, errors := LoadFromDirectory("../../fixtures/machines/valid")
	if len(errors) != 0 {
		t.Fatalf("expected no load errors, got %v", errors)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}

	var press *Document
	for _, d := range docs {
		if d.Document.Metadata.ID == "press-01" {
			press = d.Document
		}
	}
	if press == nil {
		t.Fatal("press-01 not loaded")
	}

	m := press.Machine()
	if m.LifeTime != 1200 {
		t.Errorf("expected lifetime 1200, got %v", m.LifeTime)
	}
	if !m.CreateDate.Equal(time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected create date %v", m.CreateDate)
	}

	records := press.EventRecords()
	if len(records) != 2 {
		t.Fatalf("expected 2 events, got %d", len(records))
	}
	if records[0].RepairEffectiveness == nil || *records[0].RepairEffectiveness != 0.8 {
		t.Errorf("expected effectiveness 0.8, got %v", records[0].RepairEffectiveness)
	}
	if records[1].RepairDate != nil {
		t.Error("expected second event to be unrepaired")
	}
}

func TestLoadFromDirectory_MissingDir(t *testing.T) {
	docs, errors := LoadFromDirectory(filepath.Join(t.TempDir(), "nope"))
	if docs != nil {
		t.Errorf("expected no documents, got %d", len(docs))
	}
	if len(errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errors))
	}
}

func TestLoadFromDirectory_BadYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("metadata: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, errors := LoadFromDirectory(dir)
	if len(errors) != 1 || !strings.Contains(errors[0].Message, "failed to parse YAML") {
		t.Errorf("expected a parse error, got %v", errors)
	}
}

func TestValidator_ValidFiles(t *testing.T) {
	validator := mustNewValidator(t)

	errors := validator.ValidateDirectory("../../fixtures/machines/valid")
	if len(errors) != 0 {
		t.Errorf("expected no errors, got %d:", len(errors))
		for _, err := range errors {
			t.Logf("  %v", err)
		}
	}
}

func TestValidator_InvalidFiles(t *testing.T) {
	validator := mustNewValidator(t)

	errors := validator.ValidateDirectory("../../fixtures/machines/invalid")
	if len(errors) == 0 {
		t.Fatal("expected validation errors, got none")
	}

	errorsByFile := make(map[string][]ValidationError)
	for _, err := range errors {
		base := filepath.Base(err.File)
		errorsByFile[base] = append(errorsByFile[base], err)
	}

	expectMention := func(file, needle string) {
		t.Helper()
		errs, ok := errorsByFile[file]
		if !ok {
			t.Errorf("expected errors for %s", file)
			return
		}
		for _, err := range errs {
			if strings.Contains(err.Message, needle) || strings.Contains(err.Path, needle) {
				return
			}
		}
		t.Errorf("expected %s error mentioning %q, got %v", file, needle, errs)
	}

	expectMention("missing-fields.yaml", "lifeTime")
	expectMention("bad-severity.yaml", "severity")
	expectMention("repair-before-event.yaml", "repairDate")

	hasDuplicate := false
	for _, err := range errors {
		if strings.Contains(err.Message, "duplicate") {
			hasDuplicate = true
			break
		}
	}
	if !hasDuplicate {
		t.Error("expected error about duplicate IDs")
	}
}

func TestValidator_UnknownField(t *testing.T) {
	dir := t.TempDir()
	doc := `apiVersion: rul/v1
kind: Machine
metadata:
  id: spare
spec:
  lifeTime: 10
  createDate: 2026-01-01T00:00:00Z
  colour: red
`
	if err := os.WriteFile(filepath.Join(dir, "spare.yaml"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	errors := mustNewValidator(t).ValidateDirectory(dir)
	if len(errors) == 0 {
		t.Fatal("expected an error for the unknown field")
	}
}

func TestValidator_LifetimeTooLong(t *testing.T) {
	dir := t.TempDir()
	doc := `apiVersion: rul/v1
kind: Machine
metadata:
  id: ancient
spec:
  lifeTime: 200000
  createDate: 2026-01-01T00:00:00Z
`
	if err := os.WriteFile(filepath.Join(dir, "ancient.yaml"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	errors := mustNewValidator(t).ValidateDirectory(dir)
	if len(errors) == 0 {
		t.Fatal("expected an error for a lifetime beyond the schema maximum")
	}
}
