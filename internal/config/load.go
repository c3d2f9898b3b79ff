package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultFilename is the configuration file looked up when none is given.
const DefaultFilename = "webbundle.yaml"

// Load reads the YAML configuration at path and layers it over Default.
// Relative paths in the file are anchored at the file's directory.
//
// Mappings such as output or optimization are merged field by field, so a file
// that only sets output.path keeps the default filename and clean flag. Lists
// (rules, plugins, includePaths) and the entry map replace the defaults as a
// whole.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return Parse(filepath.Dir(abs), data)
}

// LoadOrDefault loads path when it exists and otherwise returns Default
// anchored at baseDir.
func LoadOrDefault(path, baseDir string) (*Config, error) {
	if path == "" {
		path = filepath.Join(baseDir, DefaultFilename)
	}
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		abs, absErr := filepath.Abs(baseDir)
		if absErr != nil {
			return nil, fmt.Errorf("failed to resolve base dir: %w", absErr)
		}
		return Default(abs), nil
	}
	return cfg, err
}

// Parse decodes YAML data over Default(baseDir).
func Parse(baseDir string, data []byte) (*Config, error) {
	cfg := Default(baseDir)

	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	// maps are merged key-by-key by the decoder; entries are replaced as a set
	var head struct {
		Entry map[string]string `yaml:"entry"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if head.Entry != nil {
		cfg.Entry = nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	cfg.BaseDir = baseDir
	return cfg, nil
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
