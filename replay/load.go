package replay

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/dialogmesh/core"
)

// ParseDialog decodes a train dialog from YAML or JSON.
func ParseDialog(data []byte) (core.TrainDialog, error) {
	var dialog core.TrainDialog
	if err := yaml.Unmarshal(data, &dialog); err != nil {
		return core.TrainDialog{}, fmt.Errorf("failed to parse train dialog: %w", err)
	}
	return dialog, nil
}

// LoadDialog reads a train dialog file.
func LoadDialog(path string) (core.TrainDialog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.TrainDialog{}, fmt.Errorf("failed to read train dialog: %w", err)
	}
	return ParseDialog(data)
}
