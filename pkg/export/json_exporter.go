package export

import (
	"encoding/json"
	"fmt"
)

// JSONExporter renders datasets as an indented JSON document.
type JSONExporter struct{}

// NewJSONExporter constructs a JSON exporter.
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{}
}

type jsonDocument struct {
	Headers []string            `json:"headers"`
	Rows    []map[string]string `json:"rows"`
	Summary map[string]string   `json:"summary,omitempty"`
}

// Render produces JSON bytes for the dataset. Row order is preserved;
// missing cells render as empty strings.
func (e *JSONExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("json requires at least one header")
	}
	doc := jsonDocument{Headers: data.Headers, Rows: make([]map[string]string, 0, len(data.Rows))}
	for _, row := range data.Rows {
		entry := make(map[string]string, len(data.Headers))
		for _, header := range data.Headers {
			entry[header] = row[header]
		}
		doc.Rows = append(doc.Rows, entry)
	}
	if len(data.Summary) > 0 {
		doc.Summary = make(map[string]string, len(data.Summary))
		for _, line := range data.Summary {
			doc.Summary[line.Label] = line.Value
		}
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render json: %w", err)
	}
	return payload, nil
}
