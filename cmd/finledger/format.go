package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
)

// outputFormat validates --format.
func outputFormat() (OutputFormat, error) {
	switch OutputFormat(formatFlag) {
	case FormatJSON, FormatHuman:
		return OutputFormat(formatFlag), nil
	default:
		return "", fmt.Errorf("unsupported format: %s", formatFlag)
	}
}

// render writes resp as indented JSON, or calls human for the human format.
func render(resp any, human func(w io.Writer)) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	if format == FormatJSON || human == nil {
		return writeJSON(os.Stdout, resp)
	}
	human(os.Stdout)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
