package fuzz

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Shape describes one group of campaign runs.
type Shape struct {
	// Name identifies the shape in logs and reports.
	Name string `json:"name" yaml:"name"`

	// Instructions is the number of generated instructions per run.
	Instructions int `json:"instructions" yaml:"instructions"`

	// Execute is the instruction budget given to both engines.
	Execute int `json:"execute" yaml:"execute"`

	// Runs is the number of runs.
	Runs int `json:"runs" yaml:"runs"`
}

// Config holds fuzz campaign parameters.
type Config struct {
	// Set is the instruction set: "thumb1", "thumb2" or "arm".
	Set string `json:"set" yaml:"set"`

	// Seed is the base random seed. Worker k uses Seed + k.
	Seed uint64 `json:"seed" yaml:"seed"`

	// Workers is the number of parallel runners. Default: 1.
	Workers int `json:"workers" yaml:"workers"`

	// CodeHalfwords is the arena size. Default: 3000.
	CodeHalfwords int `json:"code_halfwords" yaml:"code_halfwords"`

	// MaxBlockLength is the JIT's maximum block length. Default: 64.
	MaxBlockLength int `json:"max_block_length" yaml:"max_block_length"`

	// Shapes lists the run groups. When empty, DefaultShapes(Set) is used.
	Shapes []Shape `json:"shapes,omitempty" yaml:"shapes,omitempty"`
}

// DefaultConfig returns the configuration of the Thumb set 1 campaign.
func DefaultConfig() *Config {
	return &Config{
		Set:            "thumb1",
		Seed:           1,
		Workers:        1,
		CodeHalfwords:  DefaultCodeHalfwords,
		MaxBlockLength: 64,
	}
}

// DefaultShapes returns the run groups used for the named set.
func DefaultShapes(set string) []Shape {
	switch set {
	case "thumb2":
		return []Shape{{Name: "pc-affecting", Instructions: 1, Execute: 1, Runs: 10000}}
	case "arm":
		return []Shape{
			{Name: "single instructions", Instructions: 1, Execute: 2, Runs: 10000},
			{Name: "short blocks", Instructions: 5, Execute: 6, Runs: 3000},
			{Name: "long blocks", Instructions: 1024, Execute: 1025, Runs: 25},
		}
	}
	return []Shape{
		{Name: "single instructions", Instructions: 1, Execute: 2, Runs: 10000},
		{Name: "short blocks", Instructions: 5, Execute: 6, Runs: 3000},
		{Name: "long blocks", Instructions: 1024, Execute: 1025, Runs: 25},
	}
}

// LoadConfig loads a Config from a JSON or YAML file, selected by the
// file extension. Fields missing from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fuzz config file: %w", err)
	}

	config := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse fuzz config: %w", err)
	}

	return config, nil
}

// SaveConfig writes the Config as JSON or YAML, selected by the file
// extension.
func (c *Config) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to serialize fuzz config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write fuzz config file: %w", err)
	}

	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if _, err := SetByName(c.Set); err != nil {
		return err
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be > 0")
	}
	if c.MaxBlockLength < 1 {
		return fmt.Errorf("max_block_length must be > 0")
	}
	for _, s := range c.ResolvedShapes() {
		if s.Instructions < 1 || s.Execute < 0 || s.Runs < 0 {
			return fmt.Errorf("shape %q: instructions must be > 0, execute and runs >= 0", s.Name)
		}
		if s.Instructions*c.instructionHalfwords() > c.CodeHalfwords {
			return fmt.Errorf("shape %q: %d instructions do not fit in %d halfwords",
				s.Name, s.Instructions, c.CodeHalfwords)
		}
	}
	return nil
}

// ResolvedShapes returns Shapes, or the defaults for the set.
func (c *Config) ResolvedShapes() []Shape {
	if len(c.Shapes) > 0 {
		return c.Shapes
	}
	return DefaultShapes(c.Set)
}

func (c *Config) instructionHalfwords() int {
	if c.Set == "arm" {
		return 2
	}
	return 1
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
