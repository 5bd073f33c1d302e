package bufferhold

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Marshal encodes the report as JSON or YAML, selected by the extension
// of path (.json, .yaml, .yml).
func (r *Report) Marshal(path string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case ".yaml", ".yml":
		return yaml.Marshal(r)
	default:
		return nil, fmt.Errorf("buffer-hold: unsupported report format %q (use .json, .yaml or .yml)", filepath.Ext(path))
	}
}

// WriteFile writes the report to path
func (r *Report) WriteFile(path string) error {
	data, err := r.Marshal(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("buffer-hold: failed to write report: %w", err)
	}
	return nil
}
