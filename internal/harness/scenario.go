package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted run of the engine against an in-memory target,
// followed by assertions on what the target ended up with.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Scene is an optional CUE scene applied before the steps run.
	// Relative paths are resolved against the scenario file.
	Scene string `yaml:"scene,omitempty"`

	// Base lists the layers of the initial style. When a scene is given and
	// Base is empty, the scene's base layers are used.
	Base []string `yaml:"base,omitempty"`

	// Styles are the other styles a style step can load, by name.
	Styles map[string][]string `yaml:"styles,omitempty"`

	// Steps drive the engine and the target in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state and the call trace.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action. Which fields apply depends on Do.
type Step struct {
	Do string `yaml:"do"`

	ID          string         `yaml:"id,omitempty"`
	Above       string         `yaml:"above,omitempty"`
	Below       string         `yaml:"below,omitempty"`
	Type        string         `yaml:"type,omitempty"`
	URL         string         `yaml:"url,omitempty"`
	Source      string         `yaml:"source,omitempty"`
	SourceLayer string         `yaml:"source_layer,omitempty"`
	Group       string         `yaml:"group,omitempty"`
	Parent      string         `yaml:"parent,omitempty"`
	Paint       map[string]any `yaml:"paint,omitempty"`
	Layout      map[string]any `yaml:"layout,omitempty"`
	Geometry    map[string]any `yaml:"geometry,omitempty"`
	Color       string         `yaml:"color,omitempty"`
	LineStyle   string         `yaml:"line_style,omitempty"`
	Hover       bool           `yaml:"hover,omitempty"`
	Feature     string         `yaml:"feature,omitempty"` // "source:source_layer:id"
	State       map[string]any `yaml:"state,omitempty"`
	Style       string         `yaml:"style,omitempty"`
	Visible     *bool          `yaml:"visible,omitempty"`
	Loaded      *bool          `yaml:"loaded,omitempty"`
	Duration    string         `yaml:"duration,omitempty"`
	Error       string         `yaml:"error,omitempty"`

	// ExpectError, when set, must be contained in the error the step
	// returns. A step that returns an unexpected error fails the scenario.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step actions.
const (
	StepLoad            = "load"
	StepIdle            = "idle"
	StepSourceData      = "source_data"
	StepStyleChange     = "style_change"
	StepError           = "error"
	StepAdvance         = "advance"
	StepSync            = "sync"
	StepRegisterGroup   = "register_group"
	StepUnregisterGroup = "unregister_group"
	StepEnsureSource    = "ensure_source"
	StepRemoveSource    = "remove_source"
	StepReloadSource    = "reload_source"
	StepEnsureLayer     = "ensure_layer"
	StepRemoveLayer     = "remove_layer"
	StepPaint           = "paint"
	StepPolygon         = "polygon"
	StepRemovePolygon   = "remove_polygon"
	StepFeatureState    = "feature_state"
	StepSourceLoaded    = "source_loaded"
	StepClick           = "click"
	StepLabels          = "labels"
	StepStyle           = "style"
	StepFailLayer       = "fail_layer"
	StepFailSource      = "fail_source"
)

// requiresID lists the step actions that need an id.
var requiresID = map[string]bool{
	StepRegisterGroup:   true,
	StepUnregisterGroup: true,
	StepEnsureSource:    true,
	StepRemoveSource:    true,
	StepReloadSource:    true,
	StepEnsureLayer:     true,
	StepRemoveLayer:     true,
	StepPaint:           true,
	StepPolygon:         true,
	StepRemovePolygon:   true,
	StepSourceLoaded:    true,
	StepClick:           true,
	StepFailLayer:       true,
	StepFailSource:      true,
}

var knownSteps = map[string]bool{
	StepLoad: true, StepIdle: true, StepSourceData: true, StepStyleChange: true,
	StepError: true, StepAdvance: true, StepSync: true, StepFeatureState: true,
	StepLabels: true, StepStyle: true,
}

// Assertion validates the final state or the call trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "layer_order": final layer ids equal Layers
	// - "call_order": Calls appear in the trace in order
	// - "call_count": calls with Op (and ID, if set) occur exactly Count times
	// - "pass_count": the journal holds exactly Count passes
	// - "expr": Expr evaluates to true
	Type string `yaml:"type"`

	Layers []string `yaml:"layers,omitempty"`
	Calls  []string `yaml:"calls,omitempty"`
	Op     string   `yaml:"op,omitempty"`
	ID     string   `yaml:"id,omitempty"`
	Count  int      `yaml:"count,omitempty"`
	Expr   string   `yaml:"expr,omitempty"`
}

// Assertion type constants.
const (
	AssertLayerOrder = "layer_order"
	AssertCallOrder  = "call_order"
	AssertCallCount  = "call_count"
	AssertPassCount  = "pass_count"
	AssertExpr       = "expr"
)

// LoadScenario reads and parses a scenario YAML file. A relative scene path
// is resolved against the scenario file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.Scene != "" && !filepath.IsAbs(scenario.Scene) {
		scenario.Scene = filepath.Join(filepath.Dir(path), scenario.Scene)
	}
	if scenario.Scene != "" {
		if _, err := os.Stat(scenario.Scene); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: scene file not found: %s", scenario.Scene)
		}
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML. Scene paths are left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
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

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, s *Step) error {
	if s.Do == "" {
		return fmt.Errorf("steps[%d]: do is required", index)
	}
	if !knownSteps[s.Do] && !requiresID[s.Do] {
		return fmt.Errorf("steps[%d]: unknown step %q", index, s.Do)
	}
	if requiresID[s.Do] && s.ID == "" {
		return fmt.Errorf("steps[%d]: id is required for %s", index, s.Do)
	}

	switch s.Do {
	case StepRegisterGroup:
		if (s.Above == "") == (s.Below == "") {
			return fmt.Errorf("steps[%d]: exactly one of above or below is required", index)
		}
	case StepFeatureState:
		if _, err := parseFeature(s.Feature); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	case StepLabels:
		if s.Visible == nil {
			return fmt.Errorf("steps[%d]: visible is required for labels", index)
		}
	case StepStyle:
		if s.Style == "" {
			return fmt.Errorf("steps[%d]: style is required", index)
		}
	case StepAdvance:
		if s.Duration != "" {
			if _, err := time.ParseDuration(s.Duration); err != nil {
				return fmt.Errorf("steps[%d]: invalid duration: %w", index, err)
			}
		}
	case StepFailLayer, StepFailSource, StepError:
		if s.Error == "" {
			return fmt.Errorf("steps[%d]: error is required for %s", index, s.Do)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertLayerOrder:
		if a.Layers == nil {
			return fmt.Errorf("assertions[%d]: layers list is required for layer_order", index)
		}
	case AssertCallOrder:
		if len(a.Calls) == 0 {
			return fmt.Errorf("assertions[%d]: calls list is required for call_order", index)
		}
	case AssertCallCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for call_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for call_count", index)
		}
	case AssertPassCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for pass_count", index)
		}
	case AssertExpr:
		if a.Expr == "" {
			return fmt.Errorf("assertions[%d]: expr is required for expr", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
