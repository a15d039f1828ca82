package flow

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/accountsync/internal/org"
)

//go:embed default.yaml
var defaultConfig []byte

// Kind names what a flow does.
type Kind string

const (
	KindCreate Kind = "create"
	KindQuery  Kind = "query"
	KindDelete Kind = "delete"
	KindPoll   Kind = "poll"
	KindPush   Kind = "push"
)

// Definition describes one named flow.
type Definition struct {
	// Name is the flow name used by Registry.Resolve.
	Name string `yaml:"name"`

	// Kind selects the flow implementation.
	Kind Kind `yaml:"kind"`

	// System is the org the flow reads from or writes to ("A" or "B").
	// Push flows take the source system from the event instead.
	System string `yaml:"system,omitempty"`

	// Fields is the projection returned by query flows.
	Fields []string `yaml:"fields,omitempty"`
}

// Config is a flow configuration file.
type Config struct {
	Flows []Definition `yaml:"flows"`
}

// DefaultConfig returns the built-in flow configuration.
func DefaultConfig() (*Config, error) {
	return ParseConfig(defaultConfig)
}

// LoadConfig reads a flow configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a flow configuration, rejecting unknown keys.
//
// Only structural problems are reported here: duplicate or empty names.
// Kind specific problems surface when the flow is initialised.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse flow config: %w", err)
	}

	seen := make(map[string]bool, len(cfg.Flows))
	for i, def := range cfg.Flows {
		if def.Name == "" {
			return nil, fmt.Errorf("flows[%d]: name is required", i)
		}
		if seen[def.Name] {
			return nil, fmt.Errorf("flows[%d]: duplicate flow name %q", i, def.Name)
		}
		seen[def.Name] = true
	}
	return &cfg, nil
}

// Lookup returns the definition with the given name.
func (c *Config) Lookup(name string) (Definition, bool) {
	for _, def := range c.Flows {
		if def.Name == name {
			return def, true
		}
	}
	return Definition{}, false
}

// Validate checks the kind specific requirements of a definition.
func (d Definition) Validate() error {
	switch d.Kind {
	case KindCreate, KindDelete, KindPoll:
		if _, err := org.ParseSystem(d.System); err != nil {
			return err
		}
	case KindQuery:
		if _, err := org.ParseSystem(d.System); err != nil {
			return err
		}
		if len(d.Fields) == 0 {
			return errors.New("query flow needs at least one field")
		}
	case KindPush:
		if d.System != "" {
			return errors.New("push flow takes its system from the sourceSystem variable")
		}
	case "":
		return errors.New("kind is required")
	default:
		return fmt.Errorf("unknown kind %q", d.Kind)
	}
	return nil
}

// TargetSystem returns the definition's system. Call Validate first.
func (d Definition) TargetSystem() org.System {
	s, _ := org.ParseSystem(d.System)
	return s
}
