// Package persistence writes values to files with a pluggable serializer.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	Indent = "    "
	Prefix = ""
)

type Serializer interface {
	Marshal(data any) ([]byte, error)
}

type Writer interface {
	Write(filename string, data []byte) error
}

type JSONSerializer struct {
	Prefix, Indent string
}

func (s JSONSerializer) Marshal(data any) ([]byte, error) {
	return json.MarshalIndent(data, s.Prefix, s.Indent)
}

// FileWriter writes whole files, creating parent directories. Without
// Overwrite an existing file is left alone and os.ErrExist returned.
type FileWriter struct {
	Overwrite bool
	Perm      os.FileMode
}

func (w FileWriter) Write(filename string, data []byte) error {
	if filename == "" {
		return os.ErrInvalid
	}
	if _, err := os.Stat(filename); !os.IsNotExist(err) && !w.Overwrite {
		return os.ErrExist
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	perm := w.Perm
	if perm == 0 {
		perm = 0644
	}
	return os.WriteFile(filename, data, perm)
}

// WriteJSONToFile serializes data and hands the bytes to writer.
func WriteJSONToFile(data any, filename string, serializer Serializer, writer Writer) error {
	if filename == "" {
		return fmt.Errorf("invalid filename: %w", os.ErrInvalid)
	}
	bytes, err := serializer.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	if err := writer.Write(filename, bytes); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	return nil
}

// WriteJSON writes data as indented JSON, replacing any existing file.
func WriteJSON(data any, filename string) error {
	return WriteJSONToFile(data, filename, JSONSerializer{Prefix: Prefix, Indent: Indent}, FileWriter{Overwrite: true})
}
