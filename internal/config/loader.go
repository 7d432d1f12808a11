package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// envPattern matches ${VAR} and ${VAR:-default}.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// Load reads path, expands environment references and parses the result.
// It applies defaults but does not validate.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded, err := expandEnv(raw, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	cfg, err := Parse(expanded)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes already-expanded YAML and applies defaults. Unknown keys
// are rejected.
func Parse(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// expandEnv substitutes ${VAR} and ${VAR:-default} line by line. Comment
// lines are copied untouched. Every variable that has neither a value nor
// a default is reported once, in order of first use.
func expandEnv(raw []byte, lookup func(string) (string, bool)) ([]byte, error) {
	var (
		out        bytes.Buffer
		unresolved []string
	)
	for line := range bytes.Lines(raw) {
		if bytes.HasPrefix(bytes.TrimSpace(line), []byte("#")) {
			out.Write(line)
			continue
		}
		out.Write(envPattern.ReplaceAllFunc(line, func(match []byte) []byte {
			subs := envPattern.FindSubmatchIndex(match)
			name := string(match[subs[2]:subs[3]])
			if v, ok := lookup(name); ok {
				return []byte(v)
			}
			if subs[4] >= 0 {
				return match[subs[4]:subs[5]]
			}
			if !slices.Contains(unresolved, name) {
				unresolved = append(unresolved, name)
			}
			return match
		}))
	}
	if len(unresolved) > 0 {
		return nil, fmt.Errorf("unresolved variables: %s", strings.Join(unresolved, ", "))
	}
	return out.Bytes(), nil
}
