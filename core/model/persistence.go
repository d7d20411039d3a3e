package model

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
)

// SaveModel writes v to filename using encoding/gob.
func SaveModel(v interface{}, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if err := SaveModelToWriter(v, file); err != nil {
		return err
	}
	return file.Sync()
}

// SaveModelToWriter gob-encodes v into w.
func SaveModelToWriter(v interface{}, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	return nil
}

// LoadModel decodes filename into v, which must be a pointer.
func LoadModel(v interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return LoadModelFromReader(v, file)
}

// LoadModelFromReader gob-decodes r into v, which must be a pointer.
func LoadModelFromReader(v interface{}, r io.Reader) error {
	if err := gob.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("failed to decode model: %w", err)
	}
	return nil
}
