// Package pipeline orchestrates one run end to end in a strict order:
// validate -> policy -> execute -> artifact batch -> manifest -> (optional)
// signature -> append to log. It is the only package that calls every
// other package in sequence; nothing else in this service composes them.
package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/certen/solver-core/internal/appendlog"
	"github.com/certen/solver-core/internal/canonical"
	"github.com/certen/solver-core/internal/clockport"
	"github.com/certen/solver-core/internal/config"
	"github.com/certen/solver-core/internal/evidence"
	"github.com/certen/solver-core/internal/ids"
	"github.com/certen/solver-core/internal/intentvalidate"
	"github.com/certen/solver-core/internal/jobs"
	"github.com/certen/solver-core/internal/model"
	"github.com/certen/solver-core/internal/obslog"
	"github.com/certen/solver-core/internal/policy"
	"github.com/certen/solver-core/internal/signer"
	"github.com/certen/solver-core/internal/store"
)

// Outcome is the terminal result of one Run invocation, covering every
// branch: refused, failed, or succeeded.
type Outcome struct {
	Status   model.ExecutionStatus
	IntentID string
	RunID    string
	Reasons  []string // populated only when Status == StatusRefused
	Receipt  *model.Receipt
	RunDir   string
}

// Pipeline wires every port together for one solver-core deployment.
type Pipeline struct {
	Config    config.Config
	Clock     clockport.Clock
	Policy    *policy.Engine
	Jobs      *jobs.Registry
	Evidence  *evidence.Builder
	Signer    signer.Port // nil means receipts are unsigned
	Solver    model.SolverIdentity
	Log       *obslog.Logger
	ValidMode intentvalidate.Mode
}

// New builds a Pipeline from cfg, wiring a fresh policy.Engine and
// evidence.Builder bound to clock.
func New(cfg config.Config, clock clockport.Clock, registry *jobs.Registry, s signer.Port, solver model.SolverIdentity, logger *obslog.Logger) *Pipeline {
	return &Pipeline{
		Config: cfg,
		Clock:  clock,
		Policy: policy.New(policy.Config{
			JobTypeAllowlist:   cfg.PolicyJobTypeAllowlist,
			RequesterAllowlist: cfg.PolicyRequesterAllowlist,
			MaxArtifactMB:      cfg.PolicyMaxArtifactMB,
		}, clock),
		Jobs:      registry,
		Evidence:  evidence.New(clock),
		Signer:    s,
		Solver:    solver,
		Log:       logger,
		ValidMode: intentvalidate.ModeLenient,
	}
}

// Run executes the full pipeline for one raw intent document.
func (p *Pipeline) Run(raw map[string]interface{}) (Outcome, error) {
	result, err := intentvalidate.Validate(raw, p.ValidMode)
	if err != nil {
		return Outcome{}, fmt.Errorf("pipeline: validate: %w", err)
	}
	intent := result.Intent

	decision, err := p.Policy.Evaluate(intent)
	if err != nil {
		return Outcome{}, fmt.Errorf("pipeline: policy: %w", err)
	}

	runID, err := ids.RunID(intent.IntentID, string(intent.JobType), intent.Inputs)
	if err != nil {
		return Outcome{}, fmt.Errorf("pipeline: derive runId: %w", err)
	}

	runDir := filepath.Join(p.Config.EvidenceDir, runID)
	plan := model.ExecutionPlan{
		IntentID:       intent.IntentID,
		RunID:          runID,
		JobType:        intent.JobType,
		ArtifactsDir:   filepath.Join(runDir, "artifacts"),
		PolicyDecision: decision,
	}

	if !plan.PolicyDecision.Allowed {
		if err := p.recordRefusal(intent, runID, decision.Reasons); err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Status:   model.StatusRefused,
			IntentID: intent.IntentID,
			RunID:    runID,
			Reasons:  decision.Reasons,
		}, nil
	}

	s, err := store.New(runDir)
	if err != nil {
		return Outcome{}, fmt.Errorf("pipeline: create run dir: %w", err)
	}

	runCtx := model.RunContext{
		IntentID:     plan.IntentID,
		RunID:        plan.RunID,
		JobType:      plan.JobType,
		DataDir:      p.Config.DataDir,
		ArtifactsDir: plan.ArtifactsDir,
		Requester:    intent.Requester,
	}

	runResult, err := p.Jobs.Execute(runCtx, intent, s)
	if err != nil {
		return Outcome{}, fmt.Errorf("pipeline: execute: %w", err)
	}

	summary := model.ExecutionSummary{Status: runResult.Status, Error: runResult.Error}
	evResult, err := p.Evidence.Build(s, intent.IntentID, runID, intent.JobType, decision, summary, p.Solver)
	if err != nil {
		return Outcome{}, fmt.Errorf("pipeline: build evidence: %w", err)
	}

	receipt, err := p.buildReceipt(intent.IntentID, runID, runResult.Status, evResult)
	if err != nil {
		return Outcome{}, fmt.Errorf("pipeline: build receipt: %w", err)
	}

	if err := p.appendReceipt(*receipt); err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Status:   runResult.Status,
		IntentID: intent.IntentID,
		RunID:    runID,
		Receipt:  receipt,
		RunDir:   runDir,
	}, nil
}

func (p *Pipeline) buildReceipt(intentID, runID string, status model.ExecutionStatus, ev evidence.Result) (*model.Receipt, error) {
	receiptID := ids.ReceiptID(intentID, runID, ev.ManifestDigest)

	delivered := make([]model.DeliveredArtifact, 0, len(ev.Manifest.Artifacts))
	for _, a := range ev.Manifest.Artifacts {
		delivered = append(delivered, model.DeliveredArtifact{Path: a.Path, SHA256: a.SHA256})
	}

	receipt := &model.Receipt{
		ReceiptVersion: model.SupportedReceiptVersion,
		ReceiptID:      receiptID,
		IntentID:       intentID,
		RunID:          runID,
		Status:         status,
		Delivered:      delivered,
		Evidence: model.ReceiptEvidence{
			ManifestSha256: ev.ManifestDigest,
			ManifestPath:   "evidence/manifest.json",
		},
		CreatedAt: p.Clock.Now().UTC().Format("2006-01-02T15:04:05Z07:00"),
	}

	if p.Signer != nil {
		digestBytes, err := ids.IntentHashFromHex(receiptID)
		if err != nil {
			return nil, fmt.Errorf("decode receiptId for signing: %w", err)
		}
		sig, err := p.Signer.Sign(digestBytes)
		if err != nil {
			return nil, fmt.Errorf("sign receipt: %w", err)
		}
		receipt.Signature = &model.Signature{R: sig.R, S: sig.S, V: sig.V}
	}

	return receipt, nil
}

func (p *Pipeline) appendReceipt(receipt model.Receipt) error {
	b, err := canonical.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("pipeline: encode receipt: %w", err)
	}
	if err := appendlog.Append(p.Config.ReceiptsPath, string(b), appendlog.DefaultConfig()); err != nil {
		return fmt.Errorf("pipeline: append receipt: %w", err)
	}
	return nil
}

func (p *Pipeline) recordRefusal(intent model.NormalizedIntent, runID string, reasons []string) error {
	record := model.RefusalRecord{
		Timestamp:     p.Clock.Now().UTC().Format("2006-01-02T15:04:05Z07:00"),
		IntentID:      intent.IntentID,
		RunID:         runID,
		JobType:       intent.JobType,
		Requester:     intent.Requester,
		Reasons:       reasons,
		IntentVersion: intent.IntentVersion,
	}
	b, err := canonical.Marshal(record)
	if err != nil {
		return fmt.Errorf("pipeline: encode refusal: %w", err)
	}
	if err := appendlog.Append(p.Config.RefusalsPath, string(b), appendlog.DefaultConfig()); err != nil {
		return fmt.Errorf("pipeline: append refusal: %w", err)
	}
	return nil
}
