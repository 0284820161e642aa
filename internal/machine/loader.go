package machine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// LoadFromDirectory discovers and loads all machine files from a directory
func LoadFromDirectory(dirPath string) ([]DocumentWithFile, []ValidationError) {
	var docs []DocumentWithFile
	var errors []ValidationError

	files, err := discoverYAMLFiles(dirPath)
	if err != nil {
		errors = append(errors, ValidationError{
			File:    dirPath,
			Message: fmt.Sprintf("failed to read directory: %v", err),
		})
		return nil, errors
	}

	for _, file := range files {
		doc, err := LoadFile(file)
		if err != nil {
			errors = append(errors, ValidationError{
				File:    file,
				Message: fmt.Sprintf("failed to parse YAML: %v", err),
			})
			continue
		}
		docs = append(docs, doc)
	}

	return docs, errors
}

// LoadFile parses a single machine file
func LoadFile(filePath string) (DocumentWithFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return DocumentWithFile{}, err
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return DocumentWithFile{}, err
	}

	// Timestamps stay strings in the untyped tree, which is what the schema expects.
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return DocumentWithFile{}, err
	}

	return DocumentWithFile{Document: &doc, File: filePath, Raw: raw}, nil
}

// discoverYAMLFiles finds all *.yaml and *.yml files in a directory, sorted by path
func discoverYAMLFiles(dirPath string) ([]string, error) {
	var files []string

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})

	sort.Strings(files)
	return files, err
}
