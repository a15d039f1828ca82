package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/accountsync/internal/flow"
	"github.com/roach88/accountsync/internal/org"
	"github.com/roach88/accountsync/internal/record"
)

// RunPlaceholder is replaced in every string value of a scenario with the
// run token, so names stay unique across runs against a shared org.
const RunPlaceholder = "${run}"

// Scenario defines one synchronisation test: records to create, trigger
// or push steps to run, and assertions on the state of both systems.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Setup creates records through the create flows before the flow runs.
	Setup []SetupStep `yaml:"setup,omitempty"`

	// Flow contains the trigger and push steps, run in order. Each step
	// waits for its sync job and requires it to succeed.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final state of both systems.
	// Supported types: synchronized, record_equals, record_absent
	Assertions []Assertion `yaml:"assertions"`

	// RunToken replaces ${run}. A random token is used when empty.
	RunToken string `yaml:"run_token,omitempty"`

	// Timeout bounds each sync job, e.g. "10s". Defaults to DefaultTimeout.
	Timeout string `yaml:"timeout,omitempty"`
}

// SetupStep creates one record.
type SetupStep struct {
	// Create names the system, A or B.
	Create string `yaml:"create"`

	// Record holds the field values of the new record.
	Record map[string]any `yaml:"record"`
}

// FlowStep is either a trigger or a push.
type FlowStep struct {
	// Trigger is a poll flow name, e.g. triggerSyncFromBFlow.
	Trigger string `yaml:"trigger,omitempty"`

	// Push delivers a notification built from the sample account.
	Push *PushStep `yaml:"push,omitempty"`
}

// PushStep describes an outbound notification.
type PushStep struct {
	// Source is the system the notification comes from, A or B.
	Source string `yaml:"source"`

	// Fields override or extend the sample account's fields.
	Fields map[string]string `yaml:"fields,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "synchronized": the records matching Where in A and B are equal
	// - "record_equals": the record matching Where in System has Expect values
	// - "record_absent": nothing in System matches Where
	Type string `yaml:"type"`

	// System is A or B (used by record_equals and record_absent).
	System string `yaml:"system,omitempty"`

	// Where selects the record; all fields must match exactly.
	Where record.Fields `yaml:"where"`

	// Expect contains expected field values (used by record_equals).
	// Subset match - only specified fields are validated.
	Expect record.Fields `yaml:"expect,omitempty"`

	// Ignore names extra fields that synchronized does not compare.
	Ignore []string `yaml:"ignore,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches typos like "assertion:" vs "assertions:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml file in dir, sorted by file
// name. Scenario names must be unique.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	seen := make(map[string]string, len(paths))
	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if prev, ok := seen[s.Name]; ok {
			return nil, fmt.Errorf("%s: scenario %q already defined in %s", path, s.Name, prev)
		}
		seen[s.Name] = path
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// TimeoutDuration returns the parsed Timeout, or DefaultTimeout when it
// is empty. ParseScenario rejects a Timeout that does not parse; on a
// Scenario built in code such a value also gives DefaultTimeout.
func (s *Scenario) TimeoutDuration() time.Duration {
	if s.Timeout == "" {
		return DefaultTimeout
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return DefaultTimeout
	}
	return d
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Timeout != "" {
		if d, err := time.ParseDuration(s.Timeout); err != nil || d <= 0 {
			return fmt.Errorf("timeout %q must be a positive duration", s.Timeout)
		}
	}

	for i, step := range s.Setup {
		if _, err := org.ParseSystem(step.Create); err != nil {
			return fmt.Errorf("setup[%d]: create: %w", i, err)
		}
		if len(step.Record) == 0 {
			return fmt.Errorf("setup[%d]: record is required", i)
		}
		if _, ok := step.Record[record.FieldName]; !ok {
			return fmt.Errorf("setup[%d]: record needs a %s", i, record.FieldName)
		}
	}

	for i, step := range s.Flow {
		switch {
		case step.Trigger != "" && step.Push != nil:
			return fmt.Errorf("flow[%d]: trigger and push are exclusive", i)
		case step.Trigger != "":
			if step.Trigger != flow.TriggerSyncFromA && step.Trigger != flow.TriggerSyncFromB {
				return fmt.Errorf("flow[%d]: unknown trigger flow %q", i, step.Trigger)
			}
		case step.Push != nil:
			if _, err := org.ParseSystem(step.Push.Source); err != nil {
				return fmt.Errorf("flow[%d]: push source: %w", i, err)
			}
		default:
			return fmt.Errorf("flow[%d]: trigger or push is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if len(a.Where) == 0 {
		return fmt.Errorf("assertions[%d]: where is required", index)
	}

	switch a.Type {
	case AssertSynchronizedType:
		if a.System != "" {
			return fmt.Errorf("assertions[%d]: synchronized compares both systems, system must be empty", index)
		}
	case AssertRecordEquals:
		if _, err := org.ParseSystem(a.System); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for record_equals", index)
		}
	case AssertRecordAbsent:
		if _, err := org.ParseSystem(a.System); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// withRunToken returns a copy of s with ${run} replaced in every string.
func (s *Scenario) withRunToken(token string) *Scenario {
	sub := func(v string) string {
		return strings.ReplaceAll(v, RunPlaceholder, token)
	}
	subFields := func(f record.Fields) record.Fields {
		if f == nil {
			return nil
		}
		out := make(record.Fields, len(f))
		for k, v := range f {
			out[k] = sub(v)
		}
		return out
	}

	c := *s
	c.RunToken = token
	c.Setup = make([]SetupStep, len(s.Setup))
	for i, step := range s.Setup {
		r := make(map[string]any, len(step.Record))
		for k, v := range step.Record {
			if str, ok := v.(string); ok {
				v = sub(str)
			}
			r[k] = v
		}
		c.Setup[i] = SetupStep{Create: step.Create, Record: r}
	}
	c.Flow = make([]FlowStep, len(s.Flow))
	for i, step := range s.Flow {
		c.Flow[i] = step
		if step.Push != nil {
			c.Flow[i].Push = &PushStep{Source: step.Push.Source, Fields: subFields(step.Push.Fields)}
		}
	}
	c.Assertions = make([]Assertion, len(s.Assertions))
	for i, a := range s.Assertions {
		c.Assertions[i] = a
		c.Assertions[i].Where = subFields(a.Where)
		c.Assertions[i].Expect = subFields(a.Expect)
	}
	return &c
}
