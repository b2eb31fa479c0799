package common

import (
	"encoding/json"
	"fmt"
	"io"
)

// PrintJSON writes v as indented JSON followed by a newline
func PrintJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

// PrintNDJSON writes one compact JSON document per line
func PrintNDJSON[T any](w io.Writer, items []T) error {
	enc := json.NewEncoder(w)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
	}
	return nil
}
