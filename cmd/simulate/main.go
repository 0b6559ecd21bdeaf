package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"credit-automation/internal/reporting"
	"credit-automation/internal/simulation"
)

func main() {
	// Parse flags
	scenarioPath := flag.String("scenario", "scenarios/example.yaml", "scenario YAML file")
	outputDir := flag.String("output-dir", "", "write REPORT.md and strategies.csv here (default: print the report)")
	slippageBps := flag.Int64("slippage-bps", 50, "slippage tolerance used by the planner")
	verbose := flag.Bool("verbose", false, "log executor and bot activity")
	flag.Parse()

	logger := zap.NewNop()
	if *verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
			os.Exit(1)
		}
	}

	sc, err := simulation.LoadScenario(*scenarioPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading scenario: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	res, err := simulation.NewRunner(simulation.RunnerOptions{
		Logger:      logger,
		SlippageBps: *slippageBps,
	}).Run(ctx, sc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running scenario: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Scenario: %s\n\n", res.Scenario)
	passed := 0
	for _, s := range res.Steps {
		mark := "ok  "
		if s.Passed() {
			passed++
		} else {
			mark = "FAIL"
		}
		name := s.Name
		if name == "" {
			name = s.Kind
		}
		fmt.Printf("%s %2d %-45s %s\n", mark, s.Index, name, s.Detail)
		if s.Err != nil {
			fmt.Printf("        %v\n", s.Err)
		}
	}
	fmt.Printf("\n%d/%d steps passed\n\n", passed, len(res.Steps))

	report, err := reporting.NewGenerator(res.Registry, res.ExecutionLog, res.ExecutionLog).
		WithClock(func() time.Time { return time.Unix(sc.Ledger.Clock, 0).UTC() }).
		Generate(ctx, -1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	if *outputDir == "" {
		fmt.Print(reporting.RenderMarkdown(report))
	} else {
		if err := os.MkdirAll(*outputDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating output dir: %v\n", err)
			os.Exit(1)
		}
		files := map[string]string{
			"REPORT.md":      reporting.RenderMarkdown(report),
			"strategies.csv": reporting.RenderCSV(report.Strategies),
		}
		for name, content := range files {
			path := filepath.Join(*outputDir, name)
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", path, err)
				os.Exit(1)
			}
			fmt.Printf("Wrote %s\n", path)
		}
	}

	if !res.Passed() {
		os.Exit(1)
	}
}
