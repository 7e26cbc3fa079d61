package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

const (
	baseFile   = "base.yaml"
	envVarName = "ENVIRONMENT"
	defaultEnv = "development"
)

// Load reads <dir>/base.yaml, overlays <dir>/<ENVIRONMENT>.yaml when it
// exists, substitutes ${VAR} / ${VAR:-default} references from the process
// environment, and decodes the result strictly into Config.
//
// A bare ${VAR} whose variable is unset is an error: required secrets must
// not silently load as empty strings.
func Load(dir string) (*Config, error) {
	env := strings.TrimSpace(os.Getenv(envVarName))
	if env == "" {
		env = defaultEnv
	}

	base, err := readYAMLMap(filepath.Join(dir, baseFile))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", baseFile, err)
	}

	overridePath := filepath.Join(dir, env+".yaml")
	if _, err := os.Stat(overridePath); err == nil {
		override, err := readYAMLMap(overridePath)
		if err != nil {
			return nil, fmt.Errorf("load %s.yaml: %w", env, err)
		}
		mergeMap(base, override)
	}

	expanded, err := expandEnv(base)
	if err != nil {
		return nil, err
	}

	cfg, err := decodeStrict(expanded)
	if err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readYAMLMap parses a YAML file into a string-keyed tree.
func readYAMLMap(path string) (map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v any
	if err := yaml.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	v = normalizeYAML(v)
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: top level must be a mapping", filepath.Base(path))
	}
	return m, nil
}

// normalizeYAML ensures all map keys are strings so the tree can be
// JSON-marshaled for the strict decode step.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalizeYAML(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}

// mergeMap overlays override onto base in place. Nested maps merge
// recursively; any other value replaces the base value.
func mergeMap(base, override map[string]any) {
	for k, v := range override {
		if bm, ok := base[k].(map[string]any); ok {
			if om, ok := v.(map[string]any); ok {
				mergeMap(bm, om)
				continue
			}
		}
		base[k] = v
	}
}

// envRef matches a leaf value that is exactly one ${...} reference.
var envRef = regexp.MustCompile(`^\$\{([^}]+)\}$`)

// expandEnv walks the tree and substitutes ${VAR} and ${VAR:-default}
// leaf strings. Substituted values are coerced to bool/int/float when the
// resulting text has that shape, mirroring YAML scalar typing.
func expandEnv(in any) (any, error) {
	switch x := in.(type) {
	case map[string]any:
		for k, v := range x {
			ev, err := expandEnv(v)
			if err != nil {
				return nil, err
			}
			x[k] = ev
		}
		return x, nil
	case []any:
		for i := range x {
			ev, err := expandEnv(x[i])
			if err != nil {
				return nil, err
			}
			x[i] = ev
		}
		return x, nil
	case string:
		m := envRef.FindStringSubmatch(x)
		if m == nil {
			return x, nil
		}
		return substituteEnvVar(m[1])
	default:
		return in, nil
	}
}

func substituteEnvVar(expr string) (any, error) {
	var value string
	if name, def, ok := strings.Cut(expr, ":-"); ok {
		value = os.Getenv(strings.TrimSpace(name))
		if value == "" {
			value = def
		}
	} else {
		name = strings.TrimSpace(expr)
		v, ok := os.LookupEnv(name)
		if !ok {
			return nil, fmt.Errorf("required environment variable %q is not set", name)
		}
		value = v
	}
	return coerceScalar(value), nil
}

var floatShape = regexp.MustCompile(`^-?\d+\.\d+$`)

// coerceScalar types a substituted string the way YAML would type an
// unquoted scalar: bool, int, float, else string.
func coerceScalar(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && s != "" && s[0] != '+' {
		return n
	}
	if floatShape.MatchString(s) {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	return s
}

// decodeStrict re-uses the strict JSON decoder for the merged tree so
// unknown keys are rejected with a useful error.
func decodeStrict(tree any) (*Config, error) {
	jb, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("config marshal: %w", err)
	}
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid config: trailing data")
	}
	return &cfg, nil
}
