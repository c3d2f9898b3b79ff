package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\[[a-z]+\]`)

// Validate checks the configuration before a build is attempted. Every
// problem found is reported; the returned error wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Entry) == 0 {
		errs = append(errs, errors.New("at least one entry is required"))
	}
	for _, name := range c.EntryNames() {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, errors.New("entry name must not be empty"))
			continue
		}
		if err := checkEntry(name, c.Resolve(c.Entry[name])); err != nil {
			errs = append(errs, err)
		}
	}

	if c.Output.Directory == "" {
		errs = append(errs, errors.New("output.path is required"))
	}
	if c.Output.FilenameTemplate == "" {
		errs = append(errs, errors.New("output.filename is required"))
	}
	for _, ph := range placeholderRe.FindAllString(c.Output.FilenameTemplate, -1) {
		if ph != "[name]" {
			errs = append(errs, fmt.Errorf("output.filename: unsupported placeholder %s", ph))
		}
	}

	for i, rule := range c.Module.Rules {
		switch {
		case rule.Test == nil || rule.Test.Regexp == nil:
			errs = append(errs, fmt.Errorf("module.rules[%d]: test is required", i))
		case rule.Test.Empty():
			errs = append(errs, fmt.Errorf("module.rules[%d]: test must not be empty", i))
		}
		if len(rule.Use) == 0 {
			errs = append(errs, fmt.Errorf("module.rules[%d]: use must list at least one step", i))
		}
		for j, step := range rule.Use {
			if strings.TrimSpace(step) == "" {
				errs = append(errs, fmt.Errorf("module.rules[%d].use[%d]: step name must not be empty", i, j))
			}
		}
	}

	split := c.Optimization.SplitChunks
	if !split.Chunks.Valid() {
		errs = append(errs, fmt.Errorf("optimization.splitChunks.chunks: unknown mode %q", split.Chunks))
	}
	if split.Chunks != ChunksNone && split.Name == "" {
		errs = append(errs, errors.New("optimization.splitChunks.name is required when splitting is enabled"))
	}

	for i, p := range c.Plugins {
		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, fmt.Errorf("plugins[%d]: name is required", i))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// EntryNames returns the entry names in sorted order.
func (c *Config) EntryNames() []string {
	names := make([]string, 0, len(c.Entry))
	for name := range c.Entry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func checkEntry(name, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("entry %q: %w: %s", name, ErrEntryNotFound, path)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("entry %q: %w: %s is not a regular file", name, ErrEntryNotFound, path)
	}
	return nil
}
