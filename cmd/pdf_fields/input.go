package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/a3tai/pdf-fieldstamp/internal/pdf/extraction"
)

// decodeFile decodes a .json file with encoding/json and anything else as YAML
func decodeFile(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		dec := json.NewDecoder(strings.NewReader(string(data)))
		dec.UseNumber()
		err = dec.Decode(target)
	} else {
		err = yaml.Unmarshal(data, target)
	}
	if err != nil {
		return fmt.Errorf("cannot decode %s: %w", path, err)
	}
	return nil
}

func readValues(path string) (map[string]any, error) {
	var values map[string]any
	if err := decodeFile(path, &values); err != nil {
		return nil, err
	}
	if values == nil {
		return nil, fmt.Errorf("%s holds no values", path)
	}
	return values, nil
}

// readFields accepts a bare list of fields or the output of detect
func readFields(path string) ([]extraction.DetectedField, error) {
	var fields []extraction.DetectedField
	if err := decodeFile(path, &fields); err == nil {
		return fields, nil
	}

	var detected struct {
		Fields []extraction.DetectedField `json:"fields" yaml:"fields"`
	}
	if err := decodeFile(path, &detected); err != nil {
		return nil, err
	}
	return detected.Fields, nil
}
