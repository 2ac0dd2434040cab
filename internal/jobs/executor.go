// Package jobs implements dispatch of a validated intent to the runner
// registered for its jobType. New job types plug in purely by registering
// a Runner; nothing else in the pipeline changes.
package jobs

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/certen/solver-core/internal/model"
	"github.com/certen/solver-core/internal/store"
)

// Sentinel errors for executor operations: package-level vars, not dynamic
// fmt.Errorf, for anything a caller might want to compare against with
// errors.Is.
var (
	// ErrNoRunnerRegistered is returned when no Runner is registered for a jobType.
	ErrNoRunnerRegistered = errors.New("no runner registered for jobType")
)

// Runner executes one jobType's work against a RunContext, returning the
// artifacts it wants committed. A Runner must not
// write to disk directly - the executor commits the returned bytes as a
// batch through Store, so a failing runner leaves no partial artifacts.
type Runner interface {
	Run(ctx model.RunContext, intent model.NormalizedIntent) (RunOutput, error)
}

// RunOutput is what a Runner hands back: relative artifact path -> bytes.
// The executor batches these through store.WriteArtifactsBatch.
type RunOutput struct {
	Artifacts map[string][]byte
}

// Registry dispatches by jobType to a registered Runner.
type Registry struct {
	runners map[model.JobType]Runner
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[model.JobType]Runner)}
}

// Register associates jt with r, overwriting any previous registration.
func (reg *Registry) Register(jt model.JobType, r Runner) {
	reg.runners[jt] = r
}

// Execute dispatches intent to the runner registered for its jobType,
// writes any resulting artifacts atomically via s, and returns a RunResult.
// A runner error yields status FAILED with a sanitized error string and no
// committed artifacts; it is never returned as a Go error, since a failed
// job is a normal, expected pipeline outcome that still needs evidence
// assembled around it.
func (reg *Registry) Execute(ctx model.RunContext, intent model.NormalizedIntent, s *store.Store) (model.RunResult, error) {
	runner, ok := reg.runners[ctx.JobType]
	if !ok {
		return model.RunResult{}, fmt.Errorf("%w: %s", ErrNoRunnerRegistered, ctx.JobType)
	}

	out, err := runner.Run(ctx, intent)
	if err != nil {
		return model.RunResult{
			Status: model.StatusFailed,
			Error:  sanitizeFailure(err),
		}, nil
	}

	written, err := s.WriteArtifactsBatch(out.Artifacts)
	if err != nil {
		// Store errors may embed absolute temp-file paths; never forward
		// them verbatim into a persisted manifest.
		return model.RunResult{
			Status: model.StatusFailed,
			Error:  "artifact store write failed",
		}, nil
	}

	artifacts := make([]model.ArtifactInfo, 0, len(written))
	for _, wf := range written {
		artifacts = append(artifacts, model.ArtifactInfo{
			Path:  wf.Path,
			Bytes: out.Artifacts[wf.Path],
		})
	}

	return model.RunResult{
		Status:    model.StatusSuccess,
		Artifacts: artifacts,
	}, nil
}

// sanitizeFailure strips anything host- or filesystem-specific from an
// error before it is allowed into a persisted manifest or log line: no
// absolute paths, no Go stack frames, just the error's own message text.
// Each whitespace-separated token that is an absolute path is replaced by
// its base name; runs of whitespace collapse to single spaces.
func sanitizeFailure(err error) string {
	fields := strings.Fields(err.Error())
	for i, f := range fields {
		trimmed := strings.Trim(f, `"'()[]{},;:`)
		if filepath.IsAbs(trimmed) {
			fields[i] = strings.Replace(f, trimmed, filepath.Base(trimmed), 1)
		}
	}
	return strings.Join(fields, " ")
}
