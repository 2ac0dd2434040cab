package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/certen/solver-core/internal/model"
	"github.com/certen/solver-core/internal/store"
)

// Code names one class of validation failure.
type Code string

const (
	CodeManifestNotFound      Code = "MANIFEST_NOT_FOUND"
	CodeManifestParseError    Code = "MANIFEST_PARSE_ERROR"
	CodeSchemaValidationError Code = "SCHEMA_VALIDATION_ERROR"
	CodeUnsafePath            Code = "UNSAFE_PATH"
	CodePathEscape            Code = "PATH_ESCAPE"
	CodeArtifactNotFound      Code = "ARTIFACT_NOT_FOUND"
	CodeSizeMismatch          Code = "SIZE_MISMATCH"
	CodeHashMismatch          Code = "HASH_MISMATCH"
)

// ValidationError is one entry in a validation report.
type ValidationError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

// Report is the outcome of Validate: Valid iff Errors is empty.
type Report struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors"`
}

// Validate independently re-checks the evidence bundle rooted at runDir
// against the files on disk. It never trusts the manifest's own claims: every
// hash is recomputed by streaming the artifact bytes, never by reading the
// manifest's sha256 field back at face value.
func Validate(runDir string) Report {
	var errs []ValidationError

	manifestPath := filepath.Join(runDir, "evidence", "manifest.json")
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			errs = append(errs, ValidationError{Code: CodeManifestNotFound, Message: "evidence/manifest.json is missing"})
		} else {
			errs = append(errs, ValidationError{Code: CodeManifestParseError, Message: err.Error()})
		}
		return Report{Valid: false, Errors: errs}
	}

	var manifest model.EvidenceManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		errs = append(errs, ValidationError{Code: CodeManifestParseError, Message: err.Error()})
		return Report{Valid: false, Errors: errs}
	}

	if schemaErrs := validateSchema(manifest); len(schemaErrs) > 0 {
		errs = append(errs, schemaErrs...)
		// A manifest that fails schema validation cannot be safely walked
		// for per-artifact checks (paths/fields may be absent or malformed).
		return Report{Valid: false, Errors: errs}
	}

	for _, a := range manifest.Artifacts {
		if !store.IsRelativePathSafe(a.Path) {
			errs = append(errs, ValidationError{Code: CodeUnsafePath, Message: "artifact path fails the path-safety predicate", Path: a.Path})
			continue
		}
		abs, ok := store.SafeJoin(runDir, a.Path)
		if !ok {
			errs = append(errs, ValidationError{Code: CodePathEscape, Message: "artifact path escapes runDir", Path: a.Path})
			continue
		}

		info, statErr := os.Stat(abs)
		if statErr != nil {
			errs = append(errs, ValidationError{Code: CodeArtifactNotFound, Message: "artifact file is absent", Path: a.Path})
			continue
		}
		if info.Size() != a.Bytes {
			errs = append(errs, ValidationError{Code: CodeSizeMismatch, Message: fmt.Sprintf("on-disk size %d does not match manifest size %d", info.Size(), a.Bytes), Path: a.Path})
			continue
		}

		digest, hashErr := streamHash(abs)
		if hashErr != nil {
			errs = append(errs, ValidationError{Code: CodeArtifactNotFound, Message: "artifact file could not be read", Path: a.Path})
			continue
		}
		if digest != a.SHA256 {
			errs = append(errs, ValidationError{Code: CodeHashMismatch, Message: "recomputed sha256 does not match manifest", Path: a.Path})
		}
	}

	return Report{Valid: len(errs) == 0, Errors: errs}
}

func streamHash(abs string) (string, error) {
	f, err := os.Open(abs)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// validateSchema performs the minimal structural check a hand-rolled
// validator can make without a schema library: required fields present,
// artifacts sorted ascending, status in the closed set.
func validateSchema(m model.EvidenceManifest) []ValidationError {
	var errs []ValidationError
	if m.ManifestVersion == "" {
		errs = append(errs, ValidationError{Code: CodeSchemaValidationError, Message: "manifestVersion is required"})
	}
	if m.IntentID == "" {
		errs = append(errs, ValidationError{Code: CodeSchemaValidationError, Message: "intentId is required"})
	}
	if m.RunID == "" {
		errs = append(errs, ValidationError{Code: CodeSchemaValidationError, Message: "runId is required"})
	}
	switch m.ExecutionSummary.Status {
	case model.StatusSuccess, model.StatusFailed, model.StatusRefused:
	default:
		errs = append(errs, ValidationError{Code: CodeSchemaValidationError, Message: "executionSummary.status is not a recognized value"})
	}
	for i := 1; i < len(m.Artifacts); i++ {
		if m.Artifacts[i-1].Path >= m.Artifacts[i].Path {
			errs = append(errs, ValidationError{Code: CodeSchemaValidationError, Message: "artifacts is not sorted ascending by path"})
			break
		}
	}
	return errs
}
