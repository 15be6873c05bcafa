// Package planfile loads acquisition plans from YAML files. Files are
// validated against an embedded CUE schema, then compiled to executable
// plans by resolving device names through a Catalog.
package planfile

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/seqlab/beamrun/internal/plan"
)

//go:embed schema.cue
var schemaCUE string

// Definition is one plan as declared in a file. Exactly the fields the
// declared kind uses are consulted; the schema rejects extraneous ones
// before decoding gets here.
type Definition struct {
	Kind      string       `yaml:"kind"`
	Name      string       `yaml:"name"`
	Detectors []string     `yaml:"detectors"`
	Motor     string       `yaml:"motor"`
	Start     float64      `yaml:"start"`
	Stop      float64      `yaml:"stop"`
	Num       int          `yaml:"num"`
	Plans     []Definition `yaml:"plans"`
}

// ValidationError reports a plan file that does not satisfy the schema.
type ValidationError struct {
	Path    string
	Details string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid plan file %s: %s", e.Path, e.Details)
}

// Load reads, validates, and decodes one plan file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load plan file: %w", err)
	}
	return Parse(path, data)
}

// Parse validates and decodes plan file contents. path is used only for
// error attribution.
func Parse(path string, data []byte) (*Definition, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ValidationError{Path: path, Details: err.Error()}
	}

	if err := Validate(raw); err != nil {
		return nil, &ValidationError{Path: path, Details: err.Error()}
	}

	// The schema passed, so a strict decode into the typed form cannot
	// encounter unknown fields; KnownFields is a backstop.
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, &ValidationError{Path: path, Details: err.Error()}
	}
	return &def, nil
}

// Validate checks a decoded plan document against the embedded schema.
func Validate(doc any) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	planSchema := schema.LookupPath(cue.ParsePath("#Plan"))
	if err := planSchema.Err(); err != nil {
		return fmt.Errorf("lookup #Plan: %w", err)
	}

	value := ctx.Encode(doc)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode plan document: %w", err)
	}

	unified := planSchema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s", cueerrors.Details(err, nil))
	}
	return nil
}

// Build compiles a validated definition into an executable plan, resolving
// device names through the catalog.
func Build(def *Definition, cat *Catalog) (plan.Plan, error) {
	switch def.Kind {
	case "count":
		detectors, err := cat.readables(def.Detectors)
		if err != nil {
			return nil, err
		}
		return plan.Count(detectors, def.Num), nil

	case "scan":
		motor, err := cat.Settable(def.Motor)
		if err != nil {
			return nil, err
		}
		detectors, err := cat.readables(def.Detectors)
		if err != nil {
			return nil, err
		}
		return plan.Scan(motor, detectors, def.Start, def.Stop, def.Num), nil

	case "sequence":
		name := def.Name
		if name == "" {
			name = "sequence"
		}
		subs := make([]plan.Plan, 0, len(def.Plans))
		for i := range def.Plans {
			sub, err := Build(&def.Plans[i], cat)
			if err != nil {
				return nil, err
			}
			subs = append(subs, sub)
		}
		return plan.Chain(name, subs...), nil

	default:
		return nil, fmt.Errorf("unknown plan kind %q", def.Kind)
	}
}
