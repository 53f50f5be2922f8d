package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"crossfit/internal/plan"
)

// Blueprint is the subset of a user-supplied provisioning blueprint the
// resolver consumes. Steps round-trip untouched (plan.Step keeps the raw
// JSON), so step kinds we do not know about still reach the runtime.
type Blueprint struct {
	PreferredVersions BlueprintVersions `json:"preferredVersions"`
	Steps             []plan.Step       `json:"steps"`
}

type BlueprintVersions struct {
	WP  string `json:"wp"`
	PHP string `json:"php"`
}

// LoadBlueprint reads a blueprint from a local path or an http(s) URL.
// YAML files are coerced to JSON first so both formats share one decoder.
func LoadBlueprint(ref string, httpClient *http.Client) (*Blueprint, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		data, err = fetch(ref, httpClient)
	} else {
		data, err = os.ReadFile(ref)
	}
	if err != nil {
		return nil, err
	}

	jb, _, err := coerceToJSONBytes(ref, data)
	if err != nil {
		return nil, err
	}

	var bp Blueprint
	if err := json.Unmarshal(jb, &bp); err != nil {
		return nil, fmt.Errorf("parse blueprint %s: %w", ref, err)
	}
	return &bp, nil
}

func fetch(url string, client *http.Client) ([]byte, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %s", url, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}

// coerceToJSONBytes converts YAML blueprints to JSON bytes so we can re-use
// one JSON decoder for both formats.
//
// Returns (jsonBytes, format, err) where format is "json" or "yaml".
func coerceToJSONBytes(path string, data []byte) ([]byte, string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, "json", nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, "yaml", fmt.Errorf("yaml unmarshal: %w", err)
	}

	v = normalizeYAML(v)

	j, err := json.Marshal(v)
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, "yaml", nil
}

// normalizeYAML ensures all map keys are strings so the result can be JSON-marshaled.
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
