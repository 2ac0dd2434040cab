// Command solver is the CLI surface of the solver/executor core:
// check-config, print-intent, run-fixture, make-evidence, and
// validate-evidence, each with its own fixed exit codes. It is a thin
// wire-up over internal/pipeline and internal/evidence - no pipeline logic
// lives here, keeping command-line parsing and service wiring separate
// from business logic.
package main

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/certen/solver-core/internal/clockport"
	"github.com/certen/solver-core/internal/config"
	"github.com/certen/solver-core/internal/discovery"
	"github.com/certen/solver-core/internal/evidence"
	"github.com/certen/solver-core/internal/healthserver"
	"github.com/certen/solver-core/internal/intentvalidate"
	"github.com/certen/solver-core/internal/jobs"
	"github.com/certen/solver-core/internal/jobs/safereport"
	"github.com/certen/solver-core/internal/model"
	"github.com/certen/solver-core/internal/obslog"
	"github.com/certen/solver-core/internal/pipeline"
	"github.com/certen/solver-core/internal/signer"
	"github.com/certen/solver-core/internal/store"
)

// serviceVersion is the fixed literal this build reports as
// solver.serviceVersion in every manifest it produces.
const serviceVersion = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	var exitCode int

	switch cmd {
	case "check-config":
		exitCode, err = cmdCheckConfig(args)
	case "print-intent":
		exitCode, err = cmdPrintIntent(args)
	case "run-fixture":
		exitCode, err = cmdRunFixture(args)
	case "make-evidence":
		exitCode, err = cmdMakeEvidence(args)
	case "validate-evidence":
		exitCode, err = cmdValidateEvidence(args)
	case "serve":
		exitCode, err = cmdServe(args)
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "solver: unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(exitCode)
}

func printUsage() {
	fmt.Println("solver - deterministic intent solver/executor")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  solver <command> [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  check-config                Validate configuration and exit")
	fmt.Println("  print-intent <file>         Parse and validate an intent document")
	fmt.Println("  run-fixture <file>          Run the pipeline against an intent fixture")
	fmt.Println("  make-evidence <runDir>      Rebuild an evidence manifest for an existing run")
	fmt.Println("  validate-evidence <runDir>  Independently verify an evidence bundle")
	fmt.Println("  serve [addr]                Run the health/metrics/discovery HTTP edge (default :8080)")
}

// configOverlayPath returns the optional YAML overlay path from
// SOLVER_CONFIG_FILE, empty if unset.
func configOverlayPath() string {
	return os.Getenv("SOLVER_CONFIG_FILE")
}

// cmdCheckConfig loads and validates configuration only. Exit 0 on success,
// 1 on any configuration problem.
func cmdCheckConfig(args []string) (int, error) {
	cfg, err := config.Load(configOverlayPath())
	if err != nil {
		return 1, err
	}
	if err := cfg.Validate(); err != nil {
		return 1, err
	}
	fmt.Printf("config ok: dataDir=%s jobTypeAllowlist=%v maxArtifactMB=%d\n",
		cfg.DataDir, cfg.PolicyJobTypeAllowlist, cfg.PolicyMaxArtifactMB)
	return 0, nil
}

// cmdPrintIntent parses and validates the intent document at args[0],
// printing the resulting NormalizedIntent (including its derived intentId)
// as canonical-adjacent indented JSON. Exit 0 on success, 1 on parse or
// validation failure.
func cmdPrintIntent(args []string) (int, error) {
	if len(args) != 1 {
		return 1, fmt.Errorf("print-intent requires exactly one argument: <file>")
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return 1, fmt.Errorf("read intent file: %w", err)
	}
	decoded, err := intentvalidate.DecodeJSON(raw)
	if err != nil {
		return 1, err
	}
	result, err := intentvalidate.Validate(decoded, intentvalidate.ModeLenient)
	if err != nil {
		return 1, err
	}
	if result.Warning != "" {
		fmt.Fprintf(os.Stderr, "warning: %s\n", result.Warning)
	}
	out, err := json.MarshalIndent(result.Intent, "", "  ")
	if err != nil {
		return 1, fmt.Errorf("encode normalized intent: %w", err)
	}
	fmt.Println(string(out))
	return 0, nil
}

// cmdRunFixture runs the full pipeline against the intent document at
// args[0]. Exit 0 on SUCCESS, 2 on REFUSED, 3 on a FAILED execution, 1 on
// any other error (parse, config, I/O).
func cmdRunFixture(args []string) (int, error) {
	if len(args) != 1 {
		return 1, fmt.Errorf("run-fixture requires exactly one argument: <file>")
	}

	cfg, err := config.Load(configOverlayPath())
	if err != nil {
		return 1, err
	}
	if err := cfg.Validate(); err != nil {
		return 1, err
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return 1, fmt.Errorf("read intent file: %w", err)
	}
	decoded, err := intentvalidate.DecodeJSON(raw)
	if err != nil {
		return 1, err
	}

	p := buildPipeline(cfg)

	outcome, err := p.Run(decoded)
	if err != nil {
		return 1, err
	}

	switch outcome.Status {
	case model.StatusRefused:
		healthserver.RecordRefusal()
		healthserver.RecordRun(string(outcome.Status))
		p.Log.Info("intent refused", obslog.Fields{
			"intentId": outcome.IntentID,
			"runId":    outcome.RunID,
		})
		for _, reason := range outcome.Reasons {
			fmt.Fprintf(os.Stderr, "refused: %s\n", reason)
		}
		return 2, nil
	case model.StatusFailed:
		healthserver.RecordRun(string(outcome.Status))
		p.Log.Error("execution failed", obslog.Fields{
			"intentId": outcome.IntentID,
			"runId":    outcome.RunID,
		})
		fmt.Fprintf(os.Stderr, "execution failed: %s\n", outcome.Status)
		return 3, nil
	default:
		healthserver.RecordRun(string(outcome.Status))
		p.Log.Info("run succeeded", obslog.Fields{
			"intentId":  outcome.IntentID,
			"runId":     outcome.RunID,
			"receiptId": outcome.Receipt.ReceiptID,
		})
		out, err := json.MarshalIndent(outcome.Receipt, "", "  ")
		if err != nil {
			return 1, fmt.Errorf("encode receipt: %w", err)
		}
		fmt.Println(string(out))
		return 0, nil
	}
}

// cmdServe runs the external-collaborator HTTP edge (§1, §6): liveness,
// Prometheus metrics, and the /.well-known/agent-card.json discovery
// document. It never touches the deterministic pipeline directly - run-fixture
// remains the only way to execute an intent; this command only exposes the
// counters run-fixture populates and the static capability document.
// args[0], if present, overrides the default listen address.
func cmdServe(args []string) (int, error) {
	addr := ":8080"
	if len(args) == 1 {
		addr = args[0]
	} else if len(args) > 1 {
		return 1, fmt.Errorf("serve takes at most one argument: [addr]")
	}

	card := discovery.New(discovery.Identity{
		AgentID:       "solver-core",
		Name:          "solver-core",
		Description:   "Deterministic intent solver/executor reference implementation",
		Version:       serviceVersion,
		DocsURL:       "https://github.com/certen/solver-core",
		RepositoryURL: "https://github.com/certen/solver-core",
	})

	srv := healthserver.New(addr, card)
	fmt.Printf("solver-core: serving health/metrics/discovery on %s\n", addr)
	if err := srv.ListenAndServe(); err != nil {
		return 1, fmt.Errorf("serve: %w", err)
	}
	return 0, nil
}

// cmdMakeEvidence rebuilds a run's evidence manifest and digest from
// whatever artifacts currently exist under args[0]/artifacts/. It reuses the
// identity fields (intentId, jobType, policyDecision, executionSummary) of
// any manifest already present at args[0]/evidence/manifest.json, falling
// back to the run directory's own name for runId (every run directory is
// named by its runId) and to a bare SUCCESS summary when no prior manifest
// exists. This is the tool an operator reaches for
// after manually replacing a tampered artifact, to recompute the digest the
// artifacts now actually hash to. Exit 0 on success, 1 on any error.
func cmdMakeEvidence(args []string) (int, error) {
	if len(args) != 1 {
		return 1, fmt.Errorf("make-evidence requires exactly one argument: <runDir>")
	}
	runDir := args[0]

	intentID, jobType, policyDecision, summary := previousManifestMeta(runDir)
	if intentID == "" {
		intentID = filepath.Base(runDir)
	}
	runID := filepath.Base(runDir)

	s, err := store.New(runDir)
	if err != nil {
		return 1, err
	}

	builder := evidence.New(clockport.SystemClock{})
	result, err := builder.Build(s, intentID, runID, jobType, policyDecision, summary,
		model.SolverIdentity{Service: "solver-core", ServiceVersion: serviceVersion})
	if err != nil {
		return 1, err
	}
	fmt.Printf("manifestSha256=%s\n", result.ManifestDigest)
	return 0, nil
}

// previousManifestMeta reads whatever identity fields an existing
// evidence/manifest.json under runDir already carries, so a rebuild doesn't
// have to be told information the filesystem already holds. A missing or
// unreadable prior manifest is not an error here - it just means the
// caller gets SAFE_REPORT/SUCCESS defaults instead.
func previousManifestMeta(runDir string) (intentID string, jobType model.JobType, decision model.PolicyDecision, summary model.ExecutionSummary) {
	jobType = model.JobTypeSafeReport
	decision = model.PolicyDecision{Allowed: true, Reasons: []string{}}
	summary = model.ExecutionSummary{Status: model.StatusSuccess}

	raw, err := os.ReadFile(filepath.Join(runDir, "evidence", "manifest.json"))
	if err != nil {
		return "", jobType, decision, summary
	}
	var prior model.EvidenceManifest
	if err := json.Unmarshal(raw, &prior); err != nil {
		return "", jobType, decision, summary
	}
	return prior.IntentID, prior.JobType, prior.PolicyDecision, prior.ExecutionSummary
}

// cmdValidateEvidence independently re-verifies the evidence bundle rooted
// at args[0]. Exit 0 if valid, 1 otherwise (including when the report
// itself could not be produced).
func cmdValidateEvidence(args []string) (int, error) {
	if len(args) != 1 {
		return 1, fmt.Errorf("validate-evidence requires exactly one argument: <runDir>")
	}
	report := evidence.Validate(args[0])

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return 1, fmt.Errorf("encode validation report: %w", err)
	}
	fmt.Println(string(out))

	if !report.Valid {
		return 1, nil
	}
	return 0, nil
}

// buildPipeline wires a Pipeline against cfg with the reference SAFE_REPORT
// runner registered and a seed-derived in-process signer, matching the
// default, non-KMS-backed deployment shape.
func buildPipeline(cfg config.Config) *pipeline.Pipeline {
	registry := jobs.NewRegistry()
	registry.Register(model.JobTypeSafeReport, safereport.New())

	var signerPort signer.Port
	if s, err := defaultSigner(); err == nil {
		signerPort = s
	}

	solver := model.SolverIdentity{
		Service:        "solver-core",
		ServiceVersion: serviceVersion,
		GitCommit:      firstNonEmpty(os.Getenv("SOLVER_GIT_COMMIT"), ""),
	}

	logger := obslog.New(os.Stderr)

	return pipeline.New(cfg, clockport.SystemClock{}, registry, signerPort, solver, logger)
}

// defaultSigner derives the in-process signing key from SOLVER_SIGNER_SEED
// (any string; hashed to the 32-byte key seed), falling back to a fixed
// development seed, so repeated run-fixture invocations sign with the same
// key and receipts are as reproducible as the evidence they point at. A
// deployment that needs a real key wires a KMS-backed signer.Port instead.
func defaultSigner() (signer.Port, error) {
	seedInput := firstNonEmpty(os.Getenv("SOLVER_SIGNER_SEED"), "solver-core/dev-signer/v0")
	return signer.FromSeed(sha256.Sum256([]byte(seedInput)))
}

// firstNonEmpty returns the first non-empty candidate, or "" if all are
// empty. Used to resolve an optional identity field from an ordered list
// of fallbacks.
func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}
