package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Output formats accepted by --output.
const (
	outputText = "text"
	outputYAML = "yaml"
	outputJSON = "json"
)

func validateOutput(format string) error {
	switch format {
	case outputText, outputYAML, outputJSON:
		return nil
	default:
		return fmt.Errorf("invalid --output %q: use text, yaml or json", format)
	}
}

// writeStructured encodes v as YAML or JSON.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported structured format %q", format)
	}
}
