package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Automation Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Strategies: %d | Bundles: %d\n\n", r.StrategyCount, r.BundleCount))

	sb.WriteString("## Strategies\n\n")
	if len(r.Strategies) > 0 {
		sb.WriteString("| ID | Name | Flash | Continuous | Attempts | Successes | Rejections | SuccessRate | TopError |\n")
		sb.WriteString("|----|------|-------|------------|----------|-----------|------------|-------------|----------|\n")
		for _, s := range r.Strategies {
			sb.WriteString(fmt.Sprintf("| %d | %s | %t | %t | %d | %d | %d | %.4f | %s |\n",
				s.StrategyID, s.Name, s.UsesFlashLoan, s.Continuous,
				s.Attempts, s.Successes, s.Rejections, s.SuccessRate, dash(s.TopErrorKind)))
		}
	} else {
		sb.WriteString("No strategies registered.\n")
	}
	sb.WriteString("\n")

	if r.SubscriptionID < 0 {
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("## Executions of Subscription %d\n\n", r.SubscriptionID))
	if len(r.Executions) > 0 {
		sb.WriteString("| ExecutedAt (ms) | Strategy | Index | Status | Error | Reading | Deactivated |\n")
		sb.WriteString("|-----------------|----------|-------|--------|-------|---------|-------------|\n")
		for _, e := range r.Executions {
			sb.WriteString(fmt.Sprintf("| %d | %d | %d | %s | %s | %s | %t |\n",
				e.ExecutedAt, e.StrategyID, e.StrategyIndex, e.Status, dash(e.ErrorKind), e.Reading, e.Deactivated))
		}
	} else {
		sb.WriteString("No executions recorded.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
