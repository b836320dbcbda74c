package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/packrelay/internal/filter"
)

// Scenario is a relay conformance test loaded from YAML.
type Scenario struct {
	// Name identifies the scenario and its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// MaxLimit sets the engine's per-filter ceiling. Zero keeps the default.
	MaxLimit int `yaml:"max_limit,omitempty"`

	// Publish steps run first, in order.
	Publish []PublishStep `yaml:"publish"`

	// Queries run after every publish step.
	Queries []QueryStep `yaml:"queries,omitempty"`
}

// PublishStep signs and submits one event, or resends an earlier one.
type PublishStep struct {
	// Label names the event for later steps and for the trace.
	Label string `yaml:"label,omitempty"`

	// Republish resends the event of an earlier step verbatim.
	// When set, the event fields below must be empty.
	Republish string `yaml:"republish,omitempty"`

	// Key names the publisher. Its key is derived from the name.
	Key string `yaml:"key,omitempty"`

	CreatedAt int64      `yaml:"created_at,omitempty"`
	Kind      int        `yaml:"kind,omitempty"`
	Content   string     `yaml:"content,omitempty"`
	Tags      [][]string `yaml:"tags,omitempty"`

	// Tamper corrupts the event after signing: "content" or "sig".
	Tamper string `yaml:"tamper,omitempty"`

	// Expect is the expected outcome. Empty means not checked.
	Expect string `yaml:"expect,omitempty"`
}

// QueryStep runs filters against the store.
type QueryStep struct {
	Name string `yaml:"name"`

	// Filters are wire-form filter objects.
	Filters []map[string]any `yaml:"filters"`

	// Expect lists the expected labels per filter, in result order.
	// Nil means not checked.
	Expect [][]string `yaml:"expect,omitempty"`
}

// Tamper modes.
const (
	TamperContent = "content"
	TamperSig     = "sig"
)

var (
	validOutcomes = []string{"stored", "duplicate", "invalid", "error"}
	validTampers  = []string{TamperContent, TamperSig}
)

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

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "querys:" vs "queries:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios returns the scenario files at path: the file itself, or
// every *.yaml and *.yml file directly inside a directory, sorted.
func FindScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(path, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.MaxLimit < 0 {
		return fmt.Errorf("max_limit must not be negative")
	}
	if len(s.Publish) == 0 {
		return fmt.Errorf("publish list is required and must be non-empty")
	}

	labels := make(map[string]bool)
	for i, step := range s.Publish {
		if err := validatePublish(i, step, labels); err != nil {
			return err
		}
		if step.Label != "" {
			labels[step.Label] = true
		}
	}

	for i, q := range s.Queries {
		if q.Name == "" {
			return fmt.Errorf("queries[%d]: name is required", i)
		}
		if len(q.Filters) == 0 {
			return fmt.Errorf("queries[%d]: filters list is required and must be non-empty", i)
		}
		if q.Expect != nil && len(q.Expect) != len(q.Filters) {
			return fmt.Errorf("queries[%d]: expect has %d lists for %d filters", i, len(q.Expect), len(q.Filters))
		}
		for j, raw := range q.Filters {
			if _, err := parseFilter(raw, nil); err != nil {
				return fmt.Errorf("queries[%d].filters[%d]: %w", i, j, err)
			}
		}
	}
	return nil
}

func validatePublish(i int, step PublishStep, labels map[string]bool) error {
	if step.Label != "" && labels[step.Label] {
		return fmt.Errorf("publish[%d]: duplicate label %q", i, step.Label)
	}
	if step.Expect != "" && !slices.Contains(validOutcomes, step.Expect) {
		return fmt.Errorf("publish[%d]: unknown expect %q", i, step.Expect)
	}

	if step.Republish != "" {
		if !labels[step.Republish] {
			return fmt.Errorf("publish[%d]: republish refers to unknown label %q", i, step.Republish)
		}
		if step.Key != "" || step.Content != "" || step.Tags != nil || step.Tamper != "" {
			return fmt.Errorf("publish[%d]: republish cannot set event fields", i)
		}
		return nil
	}

	if step.Label == "" {
		return fmt.Errorf("publish[%d]: label is required", i)
	}
	if step.Key == "" {
		return fmt.Errorf("publish[%d]: key is required", i)
	}
	if step.Tamper != "" && !slices.Contains(validTampers, step.Tamper) {
		return fmt.Errorf("publish[%d]: unknown tamper %q", i, step.Tamper)
	}
	return nil
}

// parseFilter converts a YAML filter object to a Filter through its wire
// form. resolve, when non-nil, maps author names to public keys.
func parseFilter(raw map[string]any, resolve func(string) string) (filter.Filter, error) {
	obj := make(map[string]any, len(raw))
	for k, v := range raw {
		obj[k] = v
	}

	if authors, ok := obj["authors"].([]any); ok && resolve != nil {
		keys := make([]any, len(authors))
		for i, a := range authors {
			if name, ok := a.(string); ok {
				keys[i] = resolve(name)
			} else {
				keys[i] = a
			}
		}
		obj["authors"] = keys
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return filter.Filter{}, err
	}
	var f filter.Filter
	if err := json.Unmarshal(data, &f); err != nil {
		return filter.Filter{}, err
	}
	if resolve == nil {
		// Author names are only resolvable at run time.
		f.Authors = nil
	}
	if err := f.Validate(); err != nil {
		return filter.Filter{}, err
	}
	return f, nil
}
