// Package config loads strategy and bundle definitions from YAML files and
// deploys them through the registry.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"credit-automation/internal/domain"
	"credit-automation/internal/protocol"
	"credit-automation/internal/recipe"
	"credit-automation/internal/registry"
	"credit-automation/internal/trigger"
)

var ErrInvalidSpec = errors.New("invalid spec file")

// Built-in recipe templates usable instead of explicit calls.
var templates = map[string]func() []domain.Call{
	"boost":       protocol.BoostCalls,
	"flash-boost": protocol.FlashBoostCalls,
	"repay":       protocol.RepayCalls,
	"flash-repay": protocol.FlashRepayCalls,
	"close":       protocol.CloseCalls,
}

// File is a strategy-spec file.
type File struct {
	Strategies []StrategyDef `yaml:"strategies"`
	Bundles    []BundleDef   `yaml:"bundles"`
}

// StrategyDef defines one strategy. Exactly one of Template and Calls is set.
type StrategyDef struct {
	Name          string       `yaml:"name"`
	Template      string       `yaml:"template,omitempty"`
	Calls         []CallDef    `yaml:"calls,omitempty"`
	Triggers      []TriggerDef `yaml:"triggers"`
	UsesFlashLoan bool         `yaml:"uses_flash_loan"`
	Continuous    bool         `yaml:"continuous"`
}

// CallDef is one call in text form. Args use "$k", "&slot", "%name" or a literal.
type CallDef struct {
	Action string   `yaml:"action"`
	Args   []string `yaml:"args"`
}

// TriggerDef is one trigger. Threshold and ThresholdParam are alternatives.
type TriggerDef struct {
	Kind           string `yaml:"kind"`
	Operator       string `yaml:"operator"`
	Threshold      string `yaml:"threshold,omitempty"`
	ThresholdParam string `yaml:"threshold_param,omitempty"`
	Asset          uint64 `yaml:"asset,omitempty"`
	AssetParam     string `yaml:"asset_param,omitempty"`
}

// BundleDef groups strategies of this file by name, direct variant first.
type BundleDef struct {
	Name       string   `yaml:"name"`
	Strategies []string `yaml:"strategies"`
}

// Actions resolves action names. *action.Registry satisfies it.
type Actions interface {
	ByName(name string) (domain.ActionDescriptor, bool)
}

// Load reads and parses a spec file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec file: %w", err)
	}
	return Parse(data)
}

// Parse parses spec file contents. Unknown fields are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	return &f, nil
}

func (f *File) validate() error {
	if len(f.Strategies) == 0 {
		return errors.New("no strategies")
	}
	names := make(map[string]bool, len(f.Strategies))
	for i, s := range f.Strategies {
		if s.Name == "" {
			return fmt.Errorf("strategies[%d]: name is required", i)
		}
		if names[s.Name] {
			return fmt.Errorf("strategies[%d]: duplicate name %q", i, s.Name)
		}
		names[s.Name] = true
		if (s.Template == "") == (len(s.Calls) == 0) {
			return fmt.Errorf("strategy %q: set exactly one of template and calls", s.Name)
		}
		if s.Template != "" {
			if _, ok := templates[s.Template]; !ok {
				return fmt.Errorf("strategy %q: unknown template %q", s.Name, s.Template)
			}
		}
	}
	for i, b := range f.Bundles {
		if len(b.Strategies) == 0 {
			return fmt.Errorf("bundles[%d]: no strategies", i)
		}
		for _, name := range b.Strategies {
			if !names[name] {
				return fmt.Errorf("bundles[%d]: unknown strategy %q", i, name)
			}
		}
	}
	return nil
}

// Build converts the file into registry inputs, resolving actions by name.
func (f *File) Build(actions Actions) ([]registry.StrategySpec, error) {
	specs := make([]registry.StrategySpec, 0, len(f.Strategies))
	for _, def := range f.Strategies {
		spec, err := def.build(actions)
		if err != nil {
			return nil, fmt.Errorf("strategy %q: %w", def.Name, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (def StrategyDef) build(actions Actions) (registry.StrategySpec, error) {
	spec := registry.StrategySpec{
		Name:          def.Name,
		UsesFlashLoan: def.UsesFlashLoan,
		Continuous:    def.Continuous,
	}

	if def.Template != "" {
		spec.Calls = templates[def.Template]()
	}
	for i, c := range def.Calls {
		desc, ok := actions.ByName(c.Action)
		if !ok {
			return spec, fmt.Errorf("call %d: %w: %s", i, recipe.ErrUnknownAction, c.Action)
		}
		if len(c.Args) != len(desc.Inputs) {
			return spec, fmt.Errorf("call %d: %s takes %d args, got %d", i, c.Action, len(desc.Inputs), len(c.Args))
		}
		call := domain.Call{Action: desc, Args: make([]domain.Argument, len(c.Args))}
		for j, s := range c.Args {
			arg, err := recipe.ParseArgument(s, desc.Inputs[j].Type)
			if err != nil {
				return spec, fmt.Errorf("call %d arg %d: %w", i, j, err)
			}
			call.Args[j] = arg
		}
		spec.Calls = append(spec.Calls, call)
	}

	for i, td := range def.Triggers {
		t, err := td.build()
		if err != nil {
			return spec, fmt.Errorf("trigger %d: %w", i, err)
		}
		spec.Triggers = append(spec.Triggers, t)
	}
	return spec, nil
}

func (td TriggerDef) build() (domain.Trigger, error) {
	t := domain.Trigger{
		Kind:           domain.TriggerKind(td.Kind),
		Operator:       domain.Operator(td.Operator),
		ThresholdParam: td.ThresholdParam,
		Asset:          td.Asset,
		AssetParam:     td.AssetParam,
	}
	if td.Threshold != "" {
		v, err := decimal.NewFromString(td.Threshold)
		if err != nil {
			return t, fmt.Errorf("threshold %q: %w", td.Threshold, err)
		}
		t.Threshold = v
	}
	return t, trigger.Validate(t)
}

// Deployment maps names in the spec file to registered ids.
type Deployment struct {
	Strategies map[string]int64
	Bundles    map[string]int64
}

// Deploy registers every strategy and then every bundle of the file.
// Registration is append-only: a failure part way leaves earlier entries registered.
func Deploy(ctx context.Context, reg *registry.Registry, actions Actions, f *File) (*Deployment, error) {
	specs, err := f.Build(actions)
	if err != nil {
		return nil, err
	}

	dep := &Deployment{
		Strategies: make(map[string]int64, len(specs)),
		Bundles:    make(map[string]int64, len(f.Bundles)),
	}
	for _, spec := range specs {
		id, err := reg.RegisterStrategy(ctx, spec)
		if err != nil {
			return dep, fmt.Errorf("register strategy %q: %w", spec.Name, err)
		}
		dep.Strategies[spec.Name] = id
	}
	for _, b := range f.Bundles {
		ids := make([]int64, len(b.Strategies))
		for i, name := range b.Strategies {
			ids[i] = dep.Strategies[name]
		}
		id, err := reg.RegisterBundle(ctx, ids)
		if err != nil {
			return dep, fmt.Errorf("register bundle %q: %w", b.Name, err)
		}
		dep.Bundles[b.Name] = id
	}
	return dep, nil
}
