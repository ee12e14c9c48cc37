package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxIncludeDepth = 10

// includer overlays the files named under "includes" onto a Config. seen
// holds the absolute paths merged so far, the main file included.
type includer struct {
	seen map[string]bool
}

func newIncluder(mainPath string) *includer {
	return &includer{seen: map[string]bool{mainPath: true}}
}

// apply merges cfg.Includes in order, resolving patterns against dir.
func (in *includer) apply(cfg *Config, dir string, depth int) error {
	if depth > maxIncludeDepth {
		return fmt.Errorf("config includes: max depth %d exceeded", maxIncludeDepth)
	}
	patterns := cfg.Includes
	cfg.Includes = nil

	for _, pattern := range patterns {
		paths, err := resolveInclude(pattern, dir)
		if err != nil {
			return err
		}
		for _, p := range paths {
			if err := in.overlay(cfg, p, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (in *includer) overlay(cfg *Config, path string, depth int) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config includes: abs path %q: %w", path, err)
	}
	if in.seen[abs] {
		return fmt.Errorf("config includes: circular include of %q", abs)
	}
	in.seen[abs] = true

	if err := validatePermissions(abs); err != nil {
		return fmt.Errorf("config includes: %w", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("config includes: read %q: %w", abs, err)
	}
	if len(data) == 0 {
		return nil
	}

	cfg.Includes = nil
	if err := unmarshal(abs, data, cfg); err != nil {
		return fmt.Errorf("config includes: parse %q: %w", abs, err)
	}
	if len(cfg.Includes) == 0 {
		return nil
	}
	return in.apply(cfg, filepath.Dir(abs), depth)
}

// resolveInclude expands pattern relative to dir. A literal path comes back
// even when missing so the read reports it. Glob matches skip dotfiles such
// as editor backups, and a glob with no match yields nothing.
func resolveInclude(pattern, dir string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(dir, pattern)
	}
	pattern = filepath.Clean(pattern)
	if rel, err := filepath.Rel(dir, pattern); err == nil && strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("config includes: path %q escapes config directory", pattern)
	}

	if !strings.ContainsAny(pattern, "*?[") {
		return []string{pattern}, nil
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("config includes: glob %q: %w", pattern, err)
	}
	kept := matches[:0]
	for _, m := range matches {
		if !strings.HasPrefix(filepath.Base(m), ".") {
			kept = append(kept, m)
		}
	}
	return kept, nil
}
