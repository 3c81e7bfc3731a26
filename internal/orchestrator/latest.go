package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
)

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // G306: report files are meant to be shared
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}
