package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders strategy rows as CSV string.
func RenderCSV(rows []StrategyRow) string {
	var sb strings.Builder

	sb.WriteString("strategy_id,name,uses_flash_loan,continuous,attempts,successes,rejections,")
	sb.WriteString("success_rate,top_error_kind,last_at\n")

	for _, s := range rows {
		sb.WriteString(fmt.Sprintf("%d,%s,%t,%t,%d,%d,%d,%.6f,%s,%d\n",
			s.StrategyID,
			s.Name,
			s.UsesFlashLoan,
			s.Continuous,
			s.Attempts,
			s.Successes,
			s.Rejections,
			s.SuccessRate,
			s.TopErrorKind,
			s.LastAt,
		))
	}

	return sb.String()
}

// RenderExecutionsCSV renders execution rows as CSV string.
func RenderExecutionsCSV(rows []ExecutionRow) string {
	var sb strings.Builder

	sb.WriteString("execution_id,strategy_id,strategy_index,status,error_kind,reading,deactivated,executed_at\n")
	for _, e := range rows {
		sb.WriteString(fmt.Sprintf("%s,%d,%d,%s,%s,%s,%t,%d\n",
			e.ExecutionID, e.StrategyID, e.StrategyIndex, e.Status, e.ErrorKind, e.Reading, e.Deactivated, e.ExecutedAt))
	}
	return sb.String()
}
