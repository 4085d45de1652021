// Package schema defines the rule configuration document, a tree of task
// holders written in YAML or JSON, and provides strict parsing, JSON Schema
// generation, validation and construction of taskholder trees.
package schema

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// APIVersion is the only accepted apiVersion.
const APIVersion = "kombi/v1"

// Config is the top-level rule configuration document.
type Config struct {
	APIVersion  string         `yaml:"apiVersion"            json:"apiVersion"            jsonschema:"required,enum=kombi/v1"`
	Vars        map[string]any `yaml:"vars,omitempty"        json:"vars,omitempty"`
	ContextVars []string       `yaml:"contextVars,omitempty" json:"contextVars,omitempty"`
	Resources   []string       `yaml:"resources,omitempty"   json:"resources,omitempty"`
	TaskHolders []TaskHolder   `yaml:"taskHolders"           json:"taskHolders"           jsonschema:"required,minItems=1"`
}

// TaskHolder describes one rule and its children.
type TaskHolder struct {
	Task        string         `yaml:"task"                  json:"task"                  jsonschema:"required,minLength=1"`
	Target      string         `yaml:"target,omitempty"      json:"target,omitempty"`
	Filter      string         `yaml:"filter,omitempty"      json:"filter,omitempty"`
	Export      string         `yaml:"export,omitempty"      json:"export,omitempty"`
	Profile     string         `yaml:"profile,omitempty"     json:"profile,omitempty"`
	Import      []string       `yaml:"import,omitempty"      json:"import,omitempty"`
	Status      string         `yaml:"status,omitempty"      json:"status,omitempty"      jsonschema:"enum=execute,enum=bypass,enum=ignore"`
	RegroupTag  string         `yaml:"regroupTag,omitempty"  json:"regroupTag,omitempty"`
	Wrapper     string         `yaml:"wrapper,omitempty"     json:"wrapper,omitempty"`
	Match       *Match         `yaml:"match,omitempty"       json:"match,omitempty"`
	Options     map[string]any `yaml:"options,omitempty"     json:"options,omitempty"`
	Metadata    map[string]any `yaml:"metadata,omitempty"    json:"metadata,omitempty"`
	Vars        map[string]any `yaml:"vars,omitempty"        json:"vars,omitempty"`
	ContextVars []string       `yaml:"contextVars,omitempty" json:"contextVars,omitempty"`
	Tags        map[string]any `yaml:"tags,omitempty"        json:"tags,omitempty"`
	TaskHolders []TaskHolder   `yaml:"taskHolders,omitempty" json:"taskHolders,omitempty"`
}

// Match selects the elements a rule handles.
type Match struct {
	Types []string       `yaml:"types,omitempty" json:"types,omitempty"`
	Vars  map[string]any `yaml:"vars,omitempty"  json:"vars,omitempty"`
}

// LoadFile reads and parses a configuration file with strict unknown-field
// rejection. JSON files go through the same decoder.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	cfg, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Load parses a configuration from r with strict unknown-field rejection.
func Load(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// LoadPath loads a file, or every *.yaml, *.yml and *.json file of a
// directory in name order, merged into one configuration. Root vars of later
// files override earlier ones.
func LoadPath(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	if !info.IsDir() {
		return LoadFile(path)
	}
	files, err := ConfigFiles(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no configuration files in %s", path)
	}
	merged := &Config{APIVersion: APIVersion, Vars: map[string]any{}}
	for _, file := range files {
		cfg, err := LoadFile(file)
		if err != nil {
			return nil, err
		}
		if cfg.APIVersion != APIVersion {
			merged.APIVersion = cfg.APIVersion
		}
		for k, v := range cfg.Vars {
			merged.Vars[k] = v
		}
		merged.ContextVars = append(merged.ContextVars, cfg.ContextVars...)
		merged.Resources = append(merged.Resources, cfg.Resources...)
		merged.TaskHolders = append(merged.TaskHolders, cfg.TaskHolders...)
	}
	return merged, nil
}

// ConfigFiles lists the configuration files of dir, sorted by name.
func ConfigFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
