package cli

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Error codes for definition loading.
const (
	ErrCodeNotFound    = "E_NOT_FOUND"
	ErrCodeBadFormat   = "E_BAD_FORMAT"
	ErrCodeInvalidSpec = "E_INVALID_DEFINITION"
	ErrCodeGeneric     = "E_GENERIC"
)

// LoadError represents an error that occurred during definition loading.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Definition is a declarative experiment definition: the session
// identity, its block/trial structure, settings at each level, and the
// tracker declarations for the simulation run.
type Definition struct {
	Experiment string `json:"experiment" yaml:"experiment"`
	PPID       string `json:"ppid" yaml:"ppid"`
	SessionNum int    `json:"session_num" yaml:"session_num"`

	AdHoc bool `json:"ad_hoc,omitempty" yaml:"ad_hoc"`

	Settings           map[string]any `json:"settings,omitempty" yaml:"settings"`
	SettingsToLog      []string       `json:"settings_to_log,omitempty" yaml:"settings_to_log"`
	CustomHeaders      []string       `json:"custom_headers,omitempty" yaml:"custom_headers"`
	ParticipantDetails map[string]any `json:"participant_details,omitempty" yaml:"participant_details"`

	Blocks []BlockDefinition `json:"blocks" yaml:"blocks"`

	Trackers []TrackerDefinition `json:"trackers,omitempty" yaml:"trackers"`

	// TicksPerTrial is the number of simulated sampling ticks the run
	// command drives per trial.
	TicksPerTrial int `json:"ticks_per_trial,omitempty" yaml:"ticks_per_trial"`
}

// BlockDefinition declares one block: its fixed trial count and its
// block-level setting overrides.
type BlockDefinition struct {
	Trials   int            `json:"trials" yaml:"trials"`
	Settings map[string]any `json:"settings,omitempty" yaml:"settings"`
}

// TrackerDefinition declares one tracker by identity and custom header.
type TrackerDefinition struct {
	Name        string   `json:"name" yaml:"name"`
	Measurement string   `json:"measurement" yaml:"measurement"`
	Header      []string `json:"header" yaml:"header"`
}

// TrialCount returns the total trial count across all blocks.
func (d *Definition) TrialCount() int {
	n := 0
	for _, b := range d.Blocks {
		n += b.Trials
	}
	return n
}

// LoadDefinition loads an experiment definition from a .yaml/.yml or
// .cue file. CUE definitions are validated against the embedded
// schema; YAML definitions get the equivalent Go-side validation.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("definition file not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("error reading definition: %v", err)}
	}

	var def Definition
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, &LoadError{Code: ErrCodeBadFormat, Message: fmt.Sprintf("invalid YAML: %v", err)}
		}
	case ".cue":
		if err := decodeCUEDefinition(data, path, &def); err != nil {
			return nil, err
		}
	default:
		return nil, &LoadError{
			Code:    ErrCodeBadFormat,
			Message: fmt.Sprintf("unsupported definition format %q (want .yaml, .yml or .cue)", filepath.Ext(path)),
		}
	}

	if err := validateDefinition(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

// decodeCUEDefinition compiles the file, unifies it with the embedded
// #Definition schema, and decodes the concrete result.
func decodeCUEDefinition(data []byte, path string, def *Definition) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if schema.Err() != nil {
		return &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("embedded schema invalid: %v", schema.Err())}
	}

	value := ctx.CompileBytes(data, cue.Filename(path))
	if value.Err() != nil {
		return &LoadError{Code: ErrCodeBadFormat, Message: fmt.Sprintf("invalid CUE: %v", value.Err())}
	}

	unified := value.Unify(schema.LookupPath(cue.ParsePath("#Definition")))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &LoadError{Code: ErrCodeInvalidSpec, Message: fmt.Sprintf("definition does not satisfy schema: %v", err)}
	}

	if err := unified.Decode(def); err != nil {
		return &LoadError{Code: ErrCodeBadFormat, Message: fmt.Sprintf("decode definition: %v", err)}
	}
	return nil
}

// validateDefinition applies the schema constraints in Go, so YAML and
// CUE definitions fail the same way.
func validateDefinition(def *Definition) error {
	invalid := func(format string, args ...any) error {
		return &LoadError{Code: ErrCodeInvalidSpec, Message: fmt.Sprintf(format, args...)}
	}

	if def.Experiment == "" {
		return invalid("experiment name is required")
	}
	if def.PPID == "" {
		return invalid("ppid is required")
	}
	if def.SessionNum < 1 {
		return invalid("session_num must be >= 1, got %d", def.SessionNum)
	}
	if len(def.Blocks) == 0 {
		return invalid("at least one block is required")
	}
	for i, b := range def.Blocks {
		if b.Trials < 1 {
			return invalid("block %d: trials must be >= 1, got %d", i+1, b.Trials)
		}
	}
	for i, tr := range def.Trackers {
		if tr.Name == "" {
			return invalid("tracker %d: name is required", i+1)
		}
		if tr.Measurement == "" {
			return invalid("tracker %d: measurement is required", i+1)
		}
		if len(tr.Header) == 0 {
			return invalid("tracker %d (%s): header must name at least one column", i+1, tr.Name)
		}
	}
	if def.TicksPerTrial < 0 {
		return invalid("ticks_per_trial must be >= 0, got %d", def.TicksPerTrial)
	}
	return nil
}
