package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

var errEmptyDocument = errors.New("empty document")

// LoadYAML decodes the relay or task file at path into dest. An empty path is a no-op.
func LoadYAML(path string, dest any) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("read config %q: %w", path, err)
	}
	defer f.Close()
	if err := DecodeYAML(f, dest); err != nil {
		return fmt.Errorf("parse config %q: %w", path, err)
	}
	return nil
}

// DecodeYAML reads a single document. Unknown keys are rejected so typos in
// step or relay definitions fail before anything runs.
func DecodeYAML(r io.Reader, dest any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyDocument
		}
		return err
	}
	return nil
}
