package reporting

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"credit-automation/internal/domain"
	"credit-automation/internal/protocol"
	"credit-automation/internal/registry"
	"credit-automation/internal/storage/memory"
)

func setupTestData(t *testing.T) (*registry.Registry, *memory.ExecutionLogStore) {
	t.Helper()
	ctx := context.Background()

	reg := registry.New(registry.Options{
		Strategies: memory.NewStrategyStore(),
		Bundles:    memory.NewBundleStore(),
		Actions:    protocol.NewRegistry(),
	})
	triggers := []domain.Trigger{{
		Kind:           domain.TriggerRatioState,
		Operator:       domain.OperatorOver,
		ThresholdParam: domain.SlotUpperThreshold,
	}}
	direct, err := reg.RegisterStrategy(ctx, registry.StrategySpec{Name: "boost", Calls: protocol.BoostCalls(), Triggers: triggers, Continuous: true})
	if err != nil {
		t.Fatalf("RegisterStrategy failed: %v", err)
	}
	flash, err := reg.RegisterStrategy(ctx, registry.StrategySpec{Name: "flash-boost", Calls: protocol.FlashBoostCalls(), Triggers: triggers, UsesFlashLoan: true})
	if err != nil {
		t.Fatalf("RegisterStrategy failed: %v", err)
	}
	if _, err := reg.RegisterBundle(ctx, []int64{direct, flash}); err != nil {
		t.Fatalf("RegisterBundle failed: %v", err)
	}

	log := memory.NewExecutionLogStore()
	records := []*domain.ExecutionRecord{
		{ExecutionID: "e1", SubscriptionID: 0, StrategyID: direct, StrategyIndex: 0, Status: domain.ExecutionRejected, ErrorKind: "ExecutionFailed", Reading: decimal.RequireFromString("2"), ExecutedAt: 1000},
		{ExecutionID: "e2", SubscriptionID: 0, StrategyID: flash, StrategyIndex: 1, Status: domain.ExecutionSuccess, Reading: decimal.RequireFromString("2"), Deactivated: true, ExecutedAt: 1001},
		{ExecutionID: "e3", SubscriptionID: 1, StrategyID: direct, StrategyIndex: 0, Status: domain.ExecutionRejected, ErrorKind: "TriggerNotMet", Reading: decimal.RequireFromString("1.8"), ExecutedAt: 2000},
		{ExecutionID: "e4", SubscriptionID: 1, StrategyID: direct, StrategyIndex: 0, Status: domain.ExecutionSuccess, Reading: decimal.RequireFromString("2.1"), ExecutedAt: 3000},
	}
	for _, r := range records {
		if err := log.Insert(ctx, r); err != nil {
			t.Fatalf("Insert record failed: %v", err)
		}
	}
	return reg, log
}

func fixedClock() time.Time {
	return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
}

func TestGenerator_Generate(t *testing.T) {
	reg, log := setupTestData(t)
	gen := NewGenerator(reg, log, log).WithClock(fixedClock)

	report, err := gen.Generate(context.Background(), 0)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if report.StrategyCount != 2 || report.BundleCount != 1 {
		t.Errorf("counts = %d/%d, want 2/1", report.StrategyCount, report.BundleCount)
	}
	if len(report.Strategies) != 2 {
		t.Fatalf("len(Strategies) = %d, want 2", len(report.Strategies))
	}

	boost := report.Strategies[0]
	if boost.Name != "boost" || boost.Attempts != 3 || boost.Successes != 1 || boost.Rejections != 2 {
		t.Errorf("boost row = %+v", boost)
	}
	if boost.TopErrorKind != "ExecutionFailed" {
		t.Errorf("TopErrorKind = %q, want ExecutionFailed (tie broken by name)", boost.TopErrorKind)
	}
	if boost.LastAt != 3000 {
		t.Errorf("LastAt = %d, want 3000", boost.LastAt)
	}

	flash := report.Strategies[1]
	if !flash.UsesFlashLoan || flash.SuccessRate != 1 {
		t.Errorf("flash row = %+v", flash)
	}

	if len(report.Executions) != 2 {
		t.Fatalf("len(Executions) = %d, want 2", len(report.Executions))
	}
	if report.Executions[0].ExecutionID != "e1" || !report.Executions[1].Deactivated {
		t.Errorf("executions = %+v", report.Executions)
	}
}

func TestGenerator_NoSubscription(t *testing.T) {
	reg, log := setupTestData(t)
	report, err := NewGenerator(reg, log, log).WithClock(fixedClock).Generate(context.Background(), -1)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(report.Executions) != 0 {
		t.Errorf("Executions = %d, want none", len(report.Executions))
	}

	md := RenderMarkdown(report)
	if strings.Contains(md, "## Executions") {
		t.Error("markdown should omit executions section")
	}
}

func TestRenderMarkdown(t *testing.T) {
	reg, log := setupTestData(t)
	report, err := NewGenerator(reg, log, log).WithClock(fixedClock).Generate(context.Background(), 0)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	md := RenderMarkdown(report)
	for _, want := range []string{
		"# Automation Report",
		"Generated: 2026-01-02T03:04:05Z",
		"Strategies: 2 | Bundles: 1",
		"| 0 | boost | false | true | 3 | 1 | 2 | 0.3333 | ExecutionFailed |",
		"| 1 | flash-boost | true | false | 1 | 1 | 0 | 1.0000 | - |",
		"## Executions of Subscription 0",
		"| 1001 | 1 | 1 | SUCCESS | - | 2 | true |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q\n%s", want, md)
		}
	}
}

func TestRenderCSV(t *testing.T) {
	rows := []StrategyRow{{StrategyID: 3, Name: "repay", Continuous: true, Attempts: 4, Successes: 1, Rejections: 3, SuccessRate: 0.25, TopErrorKind: "TriggerNotMet", LastAt: 99}}
	got := RenderCSV(rows)
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if lines[1] != "3,repay,false,true,4,1,3,0.250000,TriggerNotMet,99" {
		t.Errorf("row = %q", lines[1])
	}

	exec := RenderExecutionsCSV([]ExecutionRow{{ExecutionID: "x", StrategyID: 1, Status: "SUCCESS", Reading: "2", ExecutedAt: 5}})
	if !strings.HasSuffix(exec, "x,1,0,SUCCESS,,2,false,5\n") {
		t.Errorf("executions csv = %q", exec)
	}
}
