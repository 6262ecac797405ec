package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ModelCatalog is the optional YAML file listing which vision models callers
// may select. When present it replaces the env allow-list.
//
//	models:
//	  - id: qwen/qwen2.5-vl-72b-instruct
//	    label: Qwen 2.5 VL 72B
type ModelCatalog struct {
	Models []ModelEntry `yaml:"models"`
}

type ModelEntry struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
}

// ResolveModels returns the effective allow-list: the catalog file when
// configured, the env/default list otherwise.
func (c Config) ResolveModels() ([]string, error) {
	if c.ModelsFile == "" {
		return c.Models, nil
	}

	data, err := os.ReadFile(c.ModelsFile)
	if err != nil {
		return nil, fmt.Errorf("read model catalog: %w", err)
	}
	var catalog ModelCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse model catalog: %w", err)
	}

	var out []string
	for _, entry := range catalog.Models {
		if entry.ID != "" {
			out = append(out, entry.ID)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("model catalog %s lists no models", c.ModelsFile)
	}
	return out, nil
}
