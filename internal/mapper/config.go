package mapper

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/beargallbladder/domain-runner-sub003/internal/model"
)

// MappingConfig describes how one legacy export maps onto the canonical
// schema. Loaded from a versioned YAML file so that a backfill can always
// be traced to the exact mapping that produced it.
type MappingConfig struct {
	LegacySourceID string            `yaml:"legacy_source_id"`
	Version        string            `yaml:"version"`
	Fields         map[string]string `yaml:"fields"`
	Defaults       DefaultsConfig    `yaml:"defaults"`
	Derive         DeriveConfig      `yaml:"derive"`
	Guards         GuardsConfig      `yaml:"guards"`
}

// DefaultsConfig holds values substituted for absent legacy columns.
type DefaultsConfig struct {
	StatusIfMissing string `yaml:"status_if_missing"`
}

// DeriveConfig selects derivation rules for fields the legacy export
// does not carry directly.
type DeriveConfig struct {
	PromptIDFromText bool `yaml:"prompt_id_from_text"`
}

// GuardsConfig bounds what a backfill will accept. MaxRowSizeBytes of 0
// means unlimited; an empty AllowModels list admits every model name.
type GuardsConfig struct {
	MaxRowSizeBytes int      `yaml:"max_row_size_bytes"`
	AllowModels     []string `yaml:"allow_models"`
}

// LoadMappingConfig reads a mapping config from a YAML file.
func LoadMappingConfig(path string) (*MappingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "mapper: read config %s", path)
	}

	var cfg MappingConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, eris.Wrap(err, "mapper: parse config")
	}
	if cfg.LegacySourceID == "" {
		return nil, eris.New("mapper: config missing legacy_source_id")
	}
	if cfg.Version == "" {
		return nil, eris.New("mapper: config missing version")
	}
	if cfg.Defaults.StatusIfMissing == "" {
		cfg.Defaults.StatusIfMissing = model.StatusSuccess
	}
	return &cfg, nil
}

// source returns the legacy column mapped to a canonical field, or the
// conventional legacy column name when the config leaves it unmapped.
func (c *MappingConfig) source(canonical, fallback string) string {
	if col, ok := c.Fields[canonical]; ok && col != "" {
		return col
	}
	return fallback
}

// ModelAllowed reports whether a model name passes the allowlist.
// Entries ending in "*" match by prefix.
func (c *MappingConfig) ModelAllowed(name string) bool {
	if len(c.Guards.AllowModels) == 0 {
		return true
	}
	for _, allowed := range c.Guards.AllowModels {
		if name == allowed {
			return true
		}
		if strings.HasSuffix(allowed, "*") && strings.HasPrefix(name, strings.TrimSuffix(allowed, "*")) {
			return true
		}
	}
	return false
}
