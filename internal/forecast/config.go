package forecast

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// ModelConfig enables a model and carries its manual parameters.
type ModelConfig struct {
	ID         string            `yaml:"id"`
	Enabled    bool              `yaml:"enabled"`
	Parameters models.Parameters `yaml:"parameters"`
}

// ModelConfigFile is the YAML root structure.
type ModelConfigFile struct {
	Models []ModelConfig `yaml:"models"`
}

// DefaultModelConfigs enables every registered model with default parameters.
func DefaultModelConfigs(r *Registry) []ModelConfig {
	descs := r.Descriptors()
	configs := make([]ModelConfig, 0, len(descs))
	for _, desc := range descs {
		configs = append(configs, ModelConfig{ID: desc.ID, Enabled: true, Parameters: desc.Defaults()})
	}
	return configs
}

// LoadModelConfigs reads the model pack at path. An empty path or a missing
// file yields DefaultModelConfigs. Unknown model ids are rejected.
func LoadModelConfigs(path string, r *Registry, logger *slog.Logger) ([]ModelConfig, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return DefaultModelConfigs(r), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("model pack not found, enabling all models", slog.String("path", path))
			return DefaultModelConfigs(r), nil
		}
		return nil, err
	}
	var file ModelConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse model pack: %w", err)
	}
	configs := make([]ModelConfig, 0, len(file.Models))
	for _, cfg := range file.Models {
		desc, err := r.Describe(cfg.ID)
		if err != nil {
			return nil, err
		}
		cfg.Parameters = desc.Normalize(cfg.Parameters)
		configs = append(configs, cfg)
	}
	return configs, nil
}

// EnabledDescriptors resolves the enabled configs to descriptors, skipping
// unknown ids.
func EnabledDescriptors(r *Registry, configs []ModelConfig) []ModelDescriptor {
	out := make([]ModelDescriptor, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		desc, err := r.Describe(cfg.ID)
		if err != nil {
			continue
		}
		out = append(out, desc)
	}
	return out
}
