// Package policy implements the gate every NormalizedIntent passes through
// before execution. Every configured check runs and contributes its reason
// independently - none short-circuits - so an operator sees the complete
// set of problems with one refusal record instead of fixing them one at a
// time. Allowlists (jobType, requester) are loaded once at startup and
// never mutated afterward.
package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/certen/solver-core/internal/canonical"
	"github.com/certen/solver-core/internal/clockport"
	"github.com/certen/solver-core/internal/model"
)

// Config is the immutable, once-loaded policy configuration.
type Config struct {
	JobTypeAllowlist   []model.JobType
	RequesterAllowlist []string // empty means "no restriction"
	MaxArtifactMB      int
}

// Engine evaluates a NormalizedIntent against a fixed Config.
type Engine struct {
	cfg   Config
	clock clockport.Clock
}

// New builds an Engine. clock is injected so expiry checks are
// deterministic in tests and reproducible fixture replays.
func New(cfg Config, clock clockport.Clock) *Engine {
	return &Engine{cfg: cfg, clock: clock}
}

// Evaluate runs every check in a fixed order and returns a PolicyDecision
// whose Reasons contains every failing check, not just the first.
func (e *Engine) Evaluate(intent model.NormalizedIntent) (model.PolicyDecision, error) {
	// Non-nil so an allowed decision serializes as "reasons":[] rather than
	// null.
	reasons := []string{}

	if !jobTypeAllowed(intent.JobType, e.cfg.JobTypeAllowlist) {
		list := make([]string, len(e.cfg.JobTypeAllowlist))
		for i, jt := range e.cfg.JobTypeAllowlist {
			list[i] = string(jt)
		}
		reasons = append(reasons, fmt.Sprintf("jobType '%s' not in allowlist [%s]", intent.JobType, strings.Join(list, ", ")))
	}

	if expired, ts := e.isExpired(intent.ExpiresAt); expired {
		reasons = append(reasons, fmt.Sprintf("intent expired at %s", ts))
	}

	if len(e.cfg.RequesterAllowlist) > 0 && !contains(e.cfg.RequesterAllowlist, intent.Requester) {
		reasons = append(reasons, fmt.Sprintf("requester '%s' not in allowlist", intent.Requester))
	}

	size, err := inputsSize(intent.Inputs)
	if err != nil {
		return model.PolicyDecision{}, fmt.Errorf("measure inputs size: %w", err)
	}
	maxBytes := int64(e.cfg.MaxArtifactMB) * 1024 * 1024
	if size > maxBytes {
		reasons = append(reasons, fmt.Sprintf("inputs size %d bytes exceeds max %d bytes (%d MB)", size, maxBytes, e.cfg.MaxArtifactMB))
	}

	return model.PolicyDecision{
		Allowed: len(reasons) == 0,
		Reasons: reasons,
	}, nil
}

func jobTypeAllowed(jt model.JobType, allowlist []model.JobType) bool {
	for _, a := range allowlist {
		if a == jt {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// isExpired parses expiresAt (RFC3339) using the injected clock; a missing
// or unparsable expiresAt is never a reason to refuse here - IntentValidator
// already rejected an unparsable timestamp earlier in the pipeline.
func (e *Engine) isExpired(expiresAt string) (bool, string) {
	if expiresAt == "" {
		return false, ""
	}
	t, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return false, ""
	}
	if t.Before(e.clock.Now()) {
		return true, expiresAt
	}
	return false, ""
}

func inputsSize(inputs map[string]interface{}) (int64, error) {
	b, err := canonical.Marshal(inputs)
	if err != nil {
		return 0, err
	}
	return int64(len(b)), nil
}
