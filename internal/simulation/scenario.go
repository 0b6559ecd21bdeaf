package simulation

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"credit-automation/internal/ledger"
)

// Scenario is an end-to-end run on the simulated ledger: initial state,
// deployed strategies, subscriptions and a flow of steps with expectations.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Spec is the strategy-spec file to deploy, relative to the scenario file.
	Spec string `yaml:"spec"`

	Ledger        LedgerSetup         `yaml:"ledger"`
	Subscriptions []SubscriptionSetup `yaml:"subscriptions"`
	Flow          []Step              `yaml:"flow"`
}

// LedgerSetup is the initial ledger state. Amounts are decimal strings.
type LedgerSetup struct {
	MinRatio       string            `yaml:"min_ratio,omitempty"`
	SwapFeeBps     int64             `yaml:"swap_fee_bps,omitempty"`
	GasPrice       string            `yaml:"gas_price,omitempty"`
	Clock          int64             `yaml:"clock,omitempty"`
	Prices         map[uint64]string `yaml:"prices"`
	FlashLiquidity map[uint64]string `yaml:"flash_liquidity,omitempty"`
	Positions      []PositionSetup   `yaml:"positions"`
}

// PositionSetup opens one position.
type PositionSetup struct {
	Owner           string `yaml:"owner"`
	CollateralAsset uint64 `yaml:"collateral_asset"`
	Collateral      string `yaml:"collateral"`
	DebtAsset       uint64 `yaml:"debt_asset"`
	Debt            string `yaml:"debt"`
}

// SubscriptionSetup activates a subscription on a bundle named in the spec file.
type SubscriptionSetup struct {
	Owner           string `yaml:"owner"`
	Bundle          string `yaml:"bundle"`
	CollateralAsset uint64 `yaml:"collateral_asset"`
	DebtAsset       uint64 `yaml:"debt_asset"`
	LowerThreshold  string `yaml:"lower_threshold,omitempty"`
	UpperThreshold  string `yaml:"upper_threshold,omitempty"`
	TargetRatio     string `yaml:"target_ratio,omitempty"`
}

// Step is one flow entry. Exactly one action field is set.
// Subscription fields index Scenario.Subscriptions.
type Step struct {
	Name string `yaml:"name,omitempty"`

	SetPrice    *SetPriceStep    `yaml:"set_price,omitempty"`
	Execute     *ExecuteStep     `yaml:"execute,omitempty"`
	BotRound    *BotRoundStep    `yaml:"bot_round,omitempty"`
	ExpectRatio *ExpectRatioStep `yaml:"expect_ratio,omitempty"`
	SetActive   *SetActiveStep   `yaml:"set_active,omitempty"`
}

// SetPriceStep changes an oracle price, the external state change that moves ratios.
type SetPriceStep struct {
	Asset uint64 `yaml:"asset"`
	Price string `yaml:"price"`
}

// ExecuteStep calls execute directly with planner-sized runtime args.
// Expect is the error kind, empty for success.
type ExecuteStep struct {
	Subscription  int    `yaml:"subscription"`
	StrategyIndex int    `yaml:"strategy_index"`
	Expect        string `yaml:"expect,omitempty"`
}

// BotRoundStep runs one bot polling round.
type BotRoundStep struct {
	ExpectExecuted int `yaml:"expect_executed"`
}

// ExpectRatioStep bounds the ratio of the subscription's position. Empty bounds are open.
type ExpectRatioStep struct {
	Subscription int    `yaml:"subscription"`
	Min          string `yaml:"min,omitempty"`
	Max          string `yaml:"max,omitempty"`
}

// SetActiveStep toggles a subscription as its owner.
type SetActiveStep struct {
	Subscription int  `yaml:"subscription"`
	Active       bool `yaml:"active"`
}

// Kind names the step's action.
func (s Step) Kind() string {
	switch {
	case s.SetPrice != nil:
		return "set_price"
	case s.Execute != nil:
		return "execute"
	case s.BotRound != nil:
		return "bot_round"
	case s.ExpectRatio != nil:
		return "expect_ratio"
	case s.SetActive != nil:
		return "set_active"
	default:
		return ""
	}
}

func (s Step) actions() int {
	n := 0
	for _, set := range []bool{s.SetPrice != nil, s.Execute != nil, s.BotRound != nil, s.ExpectRatio != nil, s.SetActive != nil} {
		if set {
			n++
		}
	}
	return n
}

// LoadScenario reads and parses a scenario YAML file, resolving Spec
// relative to the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if sc.Spec != "" && !filepath.IsAbs(sc.Spec) {
		sc.Spec = filepath.Join(filepath.Dir(path), sc.Spec)
	}

	if err := validateScenario(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

// LoadLedger reads a ledger snapshot file in the scenario's ledger format.
func LoadLedger(path string) (*ledger.Ledger, error) {
	setup, err := LoadLedgerSetup(path)
	if err != nil {
		return nil, err
	}
	return BuildLedger(*setup)
}

// LoadLedgerSetup parses a ledger snapshot file without building it.
func LoadLedgerSetup(path string) (*LedgerSetup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger file: %w", err)
	}

	var setup LedgerSetup
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&setup); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &setup, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Spec == "" {
		return errors.New("spec is required")
	}
	if len(s.Ledger.Prices) == 0 {
		return errors.New("ledger.prices is required")
	}
	if len(s.Flow) == 0 {
		return errors.New("flow list is required and must be non-empty")
	}
	for i, sub := range s.Subscriptions {
		if sub.Owner == "" || sub.Bundle == "" {
			return fmt.Errorf("subscriptions[%d]: owner and bundle are required", i)
		}
	}
	for i, step := range s.Flow {
		if step.actions() != 1 {
			return fmt.Errorf("flow[%d]: exactly one action is required", i)
		}
		idx := -1
		switch {
		case step.Execute != nil:
			idx = step.Execute.Subscription
		case step.ExpectRatio != nil:
			idx = step.ExpectRatio.Subscription
		case step.SetActive != nil:
			idx = step.SetActive.Subscription
		}
		if idx >= len(s.Subscriptions) || (idx < 0 && step.Kind() != "set_price" && step.Kind() != "bot_round") {
			return fmt.Errorf("flow[%d]: subscription %d not defined", i, idx)
		}
	}
	return nil
}
