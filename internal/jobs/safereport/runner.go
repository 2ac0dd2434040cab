// Package safereport implements the reference SAFE_REPORT runner: a
// deterministic, side-effect-free transform from intent inputs to a JSON and
// a Markdown report. It never touches the clock, never reads entropy, and
// iterates every mapping in sorted key order so two runs over identical
// inputs produce byte-identical artifacts.
package safereport

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/certen/solver-core/internal/canonical"
	"github.com/certen/solver-core/internal/clockport"
	"github.com/certen/solver-core/internal/jobs"
	"github.com/certen/solver-core/internal/model"
)

// This runner's outputs are hashed into evidence; it must stay free of
// clock and entropy access.
var _ clockport.EntropyForbidden

const reportVersion = "0.1.0"

// ErrMissingSubject is returned when inputs.subject is empty; IntentValidator
// is expected to have already rejected this, so seeing it here indicates a
// caller bypassed validation.
var ErrMissingSubject = errors.New("safereport: subject is required")

// Runner implements jobs.Runner for model.JobTypeSafeReport.
type Runner struct{}

// New returns a Runner.
func New() *Runner { return &Runner{} }

var _ jobs.Runner = (*Runner)(nil)

// Run produces artifacts/report.json and artifacts/report.md from
// intent.Inputs, which must decode into model.SafeReportInputs.
func (Runner) Run(ctx model.RunContext, intent model.NormalizedIntent) (jobs.RunOutput, error) {
	inputs, err := decodeInputs(intent.Inputs)
	if err != nil {
		return jobs.RunOutput{}, err
	}
	if inputs.Subject == "" {
		return jobs.RunOutput{}, ErrMissingSubject
	}

	keys := sortedKeys(inputs.Data)
	summary := summarize(keys)

	approxBytes, err := approxBytesOf(inputs.Data)
	if err != nil {
		return jobs.RunOutput{}, fmt.Errorf("safereport: measure data size: %w", err)
	}

	report := map[string]interface{}{
		"subject": inputs.Subject,
		"data":    inputs.Data,
		"summary": summary,
		"stats": map[string]interface{}{
			"keysCount":   len(keys),
			"approxBytes": approxBytes,
		},
		"generatedBy": map[string]interface{}{
			"jobType":       string(ctx.JobType),
			"intentId":      ctx.IntentID,
			"runId":         ctx.RunID,
			"reportVersion": reportVersion,
		},
	}

	reportJSON, err := canonical.Marshal(report)
	if err != nil {
		return jobs.RunOutput{}, fmt.Errorf("safereport: encode report.json: %w", err)
	}

	reportMD := renderMarkdown(inputs.Subject, keys, inputs.Data, summary, len(keys), approxBytes, ctx)

	return jobs.RunOutput{
		Artifacts: map[string][]byte{
			"artifacts/report.json": reportJSON,
			"artifacts/report.md":   []byte(reportMD),
		},
	}, nil
}

func decodeInputs(raw map[string]interface{}) (model.SafeReportInputs, error) {
	subject, _ := raw["subject"].(string)
	data, _ := raw["data"].(map[string]interface{})
	if data == nil {
		data = map[string]interface{}{}
	}
	return model.SafeReportInputs{Subject: subject, Data: data}, nil
}

func sortedKeys(data map[string]interface{}) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// summarize buckets the key count into one of three fixed phrasings: empty,
// 1-5 keys, and 6-or-more keys.
func summarize(keys []string) string {
	n := len(keys)
	switch {
	case n == 0:
		return "Empty data object - no keys to report."
	case n <= 5:
		return fmt.Sprintf("Report contains %d key(s): %s.", n, strings.Join(keys, ", "))
	default:
		return fmt.Sprintf("Report contains %d key(s). First 5: %s.", n, strings.Join(keys[:5], ", "))
	}
}

func approxBytesOf(data map[string]interface{}) (int, error) {
	b, err := canonical.Marshal(data)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

func renderMarkdown(subject string, keys []string, data map[string]interface{}, summary string, keysCount, approxBytes int, ctx model.RunContext) string {
	var b strings.Builder
	b.WriteString("# Safe Report\n\n")
	b.WriteString("**Subject:** " + subject + "\n\n")
	b.WriteString("## Summary\n\n")
	b.WriteString(summary + "\n\n")
	b.WriteString("## Data\n\n")
	if len(keys) == 0 {
		b.WriteString("_No data keys._\n\n")
	} else {
		for _, k := range keys {
			b.WriteString("- **" + k + "**: " + renderValue(data[k]) + "\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("## Stats\n\n")
	b.WriteString("- keysCount: " + strconv.Itoa(keysCount) + "\n")
	b.WriteString("- approxBytes: " + strconv.Itoa(approxBytes) + "\n\n")
	b.WriteString("## Generated By\n\n")
	b.WriteString("- jobType: " + string(ctx.JobType) + "\n")
	b.WriteString("- intentId: " + ctx.IntentID + "\n")
	b.WriteString("- runId: " + ctx.RunID + "\n")
	b.WriteString("- reportVersion: " + reportVersion + "\n")
	return b.String()
}

// renderValue formats an arbitrary JSON value for the Markdown data list without
// depending on Go's default float/map formatting, which is locale- and
// version-sensitive; it instead round-trips through the canonical encoder.
func renderValue(v interface{}) string {
	b, err := canonical.Marshal(map[string]interface{}{"v": v})
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	s := string(b)
	const prefix = `{"v":`
	if strings.HasPrefix(s, prefix) && strings.HasSuffix(s, "}") {
		return s[len(prefix) : len(s)-1]
	}
	return s
}
