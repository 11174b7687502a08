package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/circuitbreaker"
	"github.com/jonesrussell/north-cloud/index-guard/internal/domain"
	"github.com/jonesrussell/north-cloud/index-guard/internal/resilience"
)

const (
	outputTable = "table"
	outputJSON  = "json"

	timeLayout  = "2006-01-02 15:04:05"
	notFinished = "-"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderRuns prints one row per run.
func renderRuns(w io.Writer, runs []domain.MigrationRun) {
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Alias", "Source", "Target", "State", "Progress", "Started", "Ended"})
	for _, run := range runs {
		t.AppendRow(table.Row{
			run.ID,
			run.SourceAlias,
			run.Source.Name,
			run.Target.Name,
			colorState(run.State),
			formatPercent(run.ProgressPercent()),
			run.StartTime.Format(timeLayout),
			formatEnd(run.EndTime),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "Total", len(runs)})
	t.Render()
}

// renderRun prints the detail view of a run and its error log.
func renderRun(w io.Writer, run domain.MigrationRun) {
	t := newTable(w)
	t.AppendRows([]table.Row{
		{"ID", run.ID},
		{"Alias", run.SourceAlias},
		{"Staging alias", run.StagingAlias},
		{"Source", run.Source.Name},
		{"Target", run.Target.Name},
		{"State", colorState(run.State)},
		{"Progress", fmt.Sprintf("%s (%d/%d, %d failed)",
			formatPercent(run.ProgressPercent()), run.ProcessedDocuments, run.TotalDocuments, run.FailedDocuments)},
		{"Throughput", fmt.Sprintf("%.1f docs/s", run.CurrentThroughput)},
		{"ETA", run.EstimatedTimeRemaining.Round(time.Second).String()},
		{"Reindex task", run.ReindexTaskID},
		{"Started", run.StartTime.Format(timeLayout)},
		{"Ended", formatEnd(run.EndTime)},
	})
	t.Render()

	if len(run.Errors) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w)
	errs := newTable(w)
	errs.AppendHeader(table.Row{"Time", "Phase", "Severity", "Message"})
	for _, e := range run.Errors {
		errs.AppendRow(table.Row{e.Timestamp.Format(timeLayout), e.Phase, colorSeverity(e.Severity), e.Message})
	}
	errs.Render()
}

// renderResilience prints breaker and bulkhead state.
func renderResilience(w io.Writer, snap resilience.Snapshot) {
	t := newTable(w)
	t.SetTitle("Circuit breakers")
	t.AppendHeader(table.Row{"Class", "State", "Failures", "Successes", "Next retry"})
	for _, b := range snap.Breakers {
		next := notFinished
		if !b.NextRetryTime.IsZero() {
			next = b.NextRetryTime.Format(timeLayout)
		}
		t.AppendRow(table.Row{b.Name, colorBreaker(b.State), b.FailureCount, b.SuccessCount, next})
	}
	t.Render()

	_, _ = fmt.Fprintln(w)
	bh := newTable(w)
	bh.SetTitle("Bulkhead")
	bh.AppendHeader(table.Row{"Active", "Max concurrent", "Queued", "Max queue"})
	bh.AppendRow(table.Row{snap.Bulkhead.Active, snap.Bulkhead.MaxConcurrent, snap.Bulkhead.Queued, snap.Bulkhead.MaxQueueSize})
	bh.Render()
}

// renderHealth prints a health check result.
func renderHealth(w io.Writer, result domain.HealthCheckResult) {
	t := newTable(w)
	t.SetTitle("Health of " + result.Index)
	t.AppendRows([]table.Row{
		{"Score", strconv.Itoa(result.Score)},
		{"Severity", colorSeverity(result.Severity)},
		{"Cluster", passFail(result.ClusterHealth, result.Details.ClusterStatus)},
		{"Index", passFail(result.IndexHealth, result.Details.IndexStatus)},
		{"Query latency", passFail(result.QueryPerformance, result.Details.QueryLatency.String())},
		{"Error rate", passFail(result.ErrorRate, fmt.Sprintf("%.2f%%", result.Details.ErrorRatio*100))},
	})
	for _, e := range result.Details.Errors {
		t.AppendRow(table.Row{"Error", e})
	}
	t.Render()
}

func formatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}

func formatEnd(end *time.Time) string {
	if end == nil {
		return notFinished
	}
	return end.Format(timeLayout)
}

func passFail(ok bool, detail string) string {
	if ok {
		return text.FgGreen.Sprint("pass") + " " + detail
	}
	return text.FgRed.Sprint("fail") + " " + detail
}

func colorState(state domain.MigrationState) string {
	switch state {
	case domain.StateCompleted:
		return text.FgGreen.Sprint(state)
	case domain.StateFailed:
		return text.FgRed.Sprint(state)
	case domain.StateRollingBack:
		return text.FgYellow.Sprint(state)
	default:
		return text.FgCyan.Sprint(state)
	}
}

func colorSeverity(sev domain.Severity) string {
	switch sev {
	case domain.SeverityCritical, domain.SeverityError:
		return text.FgRed.Sprint(sev)
	case domain.SeverityWarning:
		return text.FgYellow.Sprint(sev)
	default:
		return text.FgGreen.Sprint(sev)
	}
}

func colorBreaker(state string) string {
	switch state {
	case circuitbreaker.StateOpen.String():
		return text.FgRed.Sprint(state)
	case circuitbreaker.StateHalfOpen.String():
		return text.FgYellow.Sprint(state)
	default:
		return text.FgGreen.Sprint(state)
	}
}
