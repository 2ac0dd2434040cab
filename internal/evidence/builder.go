// Package evidence assembles the authoritative record of a run's artifacts,
// computes its content digest, and independently re-verifies a bundle
// against the files on disk. Hashing always streams - neither side ever
// loads a whole artifact into memory, so verification scales to
// arbitrarily large inputs.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/certen/solver-core/internal/canonical"
	"github.com/certen/solver-core/internal/clockport"
	"github.com/certen/solver-core/internal/model"
	"github.com/certen/solver-core/internal/store"
)

// Builder assembles and persists an EvidenceManifest for one run.
type Builder struct {
	clock clockport.Clock
}

// New returns a Builder. clock supplies the manifest's informational
// createdAt only; it never enters the digest.
func New(clock clockport.Clock) *Builder {
	return &Builder{clock: clock}
}

// Result is what Build returns: the manifest as persisted and its digest.
type Result struct {
	Manifest       model.EvidenceManifest
	ManifestDigest string // hex-lowercase sha256
}

// Build enumerates s's artifacts/ directory, hashes every file by streaming,
// assembles the manifest, computes ManifestDigest, and atomically writes
// both evidence/manifest.json and evidence/manifest.sha256 under s.
func (b *Builder) Build(s *store.Store, intentID, runID string, jobType model.JobType, policy model.PolicyDecision, summary model.ExecutionSummary, solver model.SolverIdentity) (Result, error) {
	paths, err := s.ListFilesRecursive("artifacts")
	if err != nil {
		return Result{}, fmt.Errorf("evidence: enumerate artifacts: %w", err)
	}

	entries := make([]model.ArtifactEntry, 0, len(paths))
	for _, p := range paths {
		digest, size, err := hashFile(s, p)
		if err != nil {
			return Result{}, fmt.Errorf("evidence: hash %s: %w", p, err)
		}
		entries = append(entries, model.ArtifactEntry{
			Path:        p,
			SHA256:      digest,
			Bytes:       size,
			ContentType: contentTypeFor(p),
		})
	}

	manifest := model.EvidenceManifest{
		ManifestVersion:  model.SupportedManifestVersion,
		IntentID:         intentID,
		RunID:            runID,
		JobType:          jobType,
		CreatedAt:        b.clock.Now().UTC().Format(time.RFC3339),
		Artifacts:        entries,
		PolicyDecision:   policy,
		ExecutionSummary: summary,
		Solver:           solver,
	}

	digestHex, err := ManifestDigest(manifest)
	if err != nil {
		return Result{}, fmt.Errorf("evidence: compute manifest digest: %w", err)
	}

	manifestJSON, err := canonical.Marshal(manifest)
	if err != nil {
		return Result{}, fmt.Errorf("evidence: encode manifest.json: %w", err)
	}

	_, err = s.WriteArtifactsBatch(map[string][]byte{
		"evidence/manifest.json":   manifestJSON,
		"evidence/manifest.sha256": []byte(digestHex + "\n"),
	})
	if err != nil {
		return Result{}, fmt.Errorf("evidence: persist manifest: %w", err)
	}

	return Result{Manifest: manifest, ManifestDigest: digestHex}, nil
}

// ManifestDigest computes SHA256(canonical(manifest without createdAt)),
// hex-lowercase. createdAt is informational only (P3): changing it must
// never change the digest.
func ManifestDigest(manifest model.EvidenceManifest) (string, error) {
	b, err := canonical.MarshalExcluding(manifest, "createdAt")
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func hashFile(s *store.Store, relPath string) (digestHex string, size int64, err error) {
	f, err := s.Open(relPath)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "application/json"
	case ".md":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
