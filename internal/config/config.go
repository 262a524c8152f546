// Package config loads agent options from a YAML file, .env files, and
// AISEN_* environment variables. The result is an options map for
// agent.FromOptions; validation happens there.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix marks environment variables that override file options.
const EnvPrefix = "AISEN_"

// Load builds an options map. Later sources win:
//
//  1. the YAML file at path, after ${VAR} expansion (skipped when path is "")
//  2. AISEN_* variables from envFiles
//  3. AISEN_* variables from the process environment
//
// Missing env files are ignored; a missing YAML file is an error. The file
// may be a flat mapping or nest the options under a top-level "aisen" key.
func Load(path string, envFiles ...string) (map[string]any, error) {
	dotenv, err := readEnvFiles(envFiles)
	if err != nil {
		return nil, err
	}
	lookup := func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return dotenv[key]
	}

	opts := map[string]any{}
	if path != "" {
		opts, err = readFile(path, lookup)
		if err != nil {
			return nil, err
		}
	}

	applyEnv(opts, dotenv)
	applyEnv(opts, environ())
	return opts, nil
}

func readEnvFiles(files []string) (map[string]string, error) {
	merged := map[string]string{}
	for _, file := range files {
		values, err := godotenv.Read(file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read env file %s: %w", file, err)
		}
		for k, v := range values {
			merged[k] = v
		}
	}
	return merged, nil
}

func readFile(path string, lookup func(string) string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.Expand(string(data), lookup)
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if raw == nil {
		return map[string]any{}, nil
	}

	if nested, ok := raw["aisen"]; ok {
		section, ok := nested.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("config file %s: aisen must be a mapping, got %T", path, nested)
		}
		return section, nil
	}
	return raw, nil
}

// applyEnv copies AISEN_* entries into opts. AISEN_API_KEY sets api_key.
func applyEnv(opts map[string]any, env map[string]string) {
	for k, v := range env {
		name, ok := strings.CutPrefix(k, EnvPrefix)
		if !ok || name == "" {
			continue
		}
		key := strings.ToLower(name)
		// The file may spell the same option differently.
		for existing := range opts {
			if sameKey(existing, key) {
				delete(opts, existing)
			}
		}
		opts[key] = v
	}
}

func sameKey(a, b string) bool {
	norm := func(s string) string {
		return strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(s))
	}
	return norm(a) == norm(b)
}

func environ() map[string]string {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}
