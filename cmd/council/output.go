package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ErikCohenDev/consensus-council/internal/domain"
	"github.com/ErikCohenDev/consensus-council/internal/store"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	return tw
}

func renderStageAudit(w io.Writer, res *domain.OrchestrationResult) {
	tw := newTable(w, table.Row{"Auditor", "Score", "Pass", "Blocking issues"})
	for i := range res.AuditorResponses {
		r := &res.AuditorResponses[i]
		tw.AppendRow(table.Row{r.AuditorRole, fmt.Sprintf("%.2f", r.Score()), r.Passed(), issueSummary(r.BlockingIssues)})
	}
	for _, role := range res.FailedAuditors {
		tw.AppendRow(table.Row{role, "-", "-", "auditor failed"})
	}
	tw.SetTitle("Stage %s", res.Stage)
	tw.Render()

	fmt.Fprintf(w, "decision: %s\n", decision(res))
	if cr := res.ConsensusResult; cr != nil {
		fmt.Fprintf(w, "weighted average: %.2f  approval: %.0f%%  agreement: %.2f  human review: %t\n",
			cr.WeightedAverage, cr.ApprovalPercentage*100, cr.AgreementLevel, cr.RequiresHumanReview)
		for _, reason := range cr.FailureReasons {
			fmt.Fprintf(w, "  - %s\n", reason)
		}
	}
	if res.Error != "" {
		fmt.Fprintf(w, "error: %s\n", res.Error)
	}
	fmt.Fprintf(w, "tokens: %d  cost: $%.4f  cache hits: %d  time: %s\n",
		res.TotalTokens, res.TotalCost, res.CacheHits, res.ExecutionTime.Round(time.Millisecond))
}

func renderSummary(w io.Writer, s *domain.PipelineSummary) {
	tw := newTable(w, table.Row{"Stage", "Decision", "Score", "Failed auditors"})
	for _, stage := range s.Stages {
		res := s.StageResults[stage]
		score := "-"
		if res != nil && res.ConsensusResult != nil {
			score = fmt.Sprintf("%.2f", res.ConsensusResult.WeightedAverage)
		}
		failed := ""
		if res != nil {
			failed = strings.Join(res.FailedAuditors, ", ")
		}
		tw.AppendRow(table.Row{stage, decision(res), score, failed})
	}
	tw.SetTitle("Run %s", s.RunID)
	tw.Render()

	if len(s.AlignmentResults) > 0 {
		at := newTable(w, table.Row{"Source", "Target", "Aligned", "Score", "Misalignments"})
		for _, a := range s.AlignmentResults {
			at.AppendRow(table.Row{a.SourceStage, a.TargetStage, a.IsAligned,
				fmt.Sprintf("%.2f", a.AlignmentScore), strings.Join(a.Misalignments, "; ")})
		}
		at.Render()
	}

	fmt.Fprintf(w, "state: %s  iterations: %d/%d  tokens: %d  cost: $%.4f\n",
		s.State, s.Iterations, s.MaxIterations, s.TotalTokens(), s.TotalCost())
}

func renderHistory(w io.Writer, runs []store.RunRecord) {
	tw := newTable(w, table.Row{"Run", "State", "Iterations", "Stages", "Tokens", "Cost", "Started"})
	for _, r := range runs {
		tw.AppendRow(table.Row{
			r.RunID, r.State, fmt.Sprintf("%d/%d", r.Iterations, r.MaxIterations), len(r.Stages),
			r.TotalTokens, fmt.Sprintf("$%.4f", r.TotalCost), r.StartedAt.Local().Format(time.DateTime),
		})
	}
	tw.Render()
}

func decision(res *domain.OrchestrationResult) string {
	switch {
	case res == nil:
		return "NOT RUN"
	case res.ConsensusResult == nil:
		return "NO CONSENSUS"
	default:
		return string(res.ConsensusResult.FinalDecision)
	}
}

func issueSummary(issues []domain.BlockingIssue) string {
	if len(issues) == 0 {
		return ""
	}
	counts := map[domain.Severity]int{}
	for _, is := range issues {
		counts[is.Severity]++
	}
	parts := make([]string, 0, len(counts))
	for _, sev := range domain.KnownSeverities {
		if n := counts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sev))
		}
	}
	return strings.Join(parts, ", ")
}
