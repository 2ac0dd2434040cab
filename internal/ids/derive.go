// Package ids implements the three pure identifier formulas the rest of the
// pipeline keys its state by. Each is a SHA-256 over a canonicalized byte
// sequence with a domain-separation prefix: no I/O, no clock, no entropy,
// bit-identical output for the same inputs on any host.
package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/certen/solver-core/internal/canonical"
)

// IntentParams are the fields that participate in intentId. createdAt,
// expiresAt, meta, and acceptanceCriteria are deliberately excluded: they
// must be free to vary (e.g. client clock skew) without changing identity.
type IntentParams struct {
	IntentVersion string
	Requester     string
	JobType       string
	Inputs        interface{}
	Constraints   interface{} // nil is treated as {}
}

// IntentID computes SHA256("intent:" || intentVersion || ":" || requester ||
// ":" || canonical(jobType) || ":" || canonical(inputs) || ":" ||
// canonical(constraints ?? {})), hex-lowercase, 64 chars.
func IntentID(p IntentParams) (string, error) {
	constraints := p.Constraints
	if constraints == nil {
		constraints = map[string]interface{}{}
	}

	jobTypeBytes, err := canonical.Marshal(p.JobType)
	if err != nil {
		return "", fmt.Errorf("canonicalize jobType: %w", err)
	}
	inputsBytes, err := canonical.Marshal(p.Inputs)
	if err != nil {
		return "", fmt.Errorf("canonicalize inputs: %w", err)
	}
	constraintsBytes, err := canonical.Marshal(constraints)
	if err != nil {
		return "", fmt.Errorf("canonicalize constraints: %w", err)
	}

	h := sha256.New()
	h.Write([]byte("intent:"))
	h.Write([]byte(p.IntentVersion))
	h.Write([]byte(":"))
	h.Write([]byte(p.Requester))
	h.Write([]byte(":"))
	h.Write(jobTypeBytes)
	h.Write([]byte(":"))
	h.Write(inputsBytes)
	h.Write([]byte(":"))
	h.Write(constraintsBytes)

	return hex.EncodeToString(h.Sum(nil)), nil
}

// RunID computes SHA256("run:" || intentId || ":" || jobType || ":" ||
// canonical(inputs)).
func RunID(intentID, jobType string, inputs interface{}) (string, error) {
	inputsBytes, err := canonical.Marshal(inputs)
	if err != nil {
		return "", fmt.Errorf("canonicalize inputs: %w", err)
	}
	h := sha256.New()
	h.Write([]byte("run:"))
	h.Write([]byte(intentID))
	h.Write([]byte(":"))
	h.Write([]byte(jobType))
	h.Write([]byte(":"))
	h.Write(inputsBytes)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ReceiptID computes SHA256("receipt:" || intentId || ":" || runId || ":" ||
// manifestSha256).
func ReceiptID(intentID, runID, manifestSha256Hex string) string {
	h := sha256.New()
	h.Write([]byte("receipt:"))
	h.Write([]byte(intentID))
	h.Write([]byte(":"))
	h.Write([]byte(runID))
	h.Write([]byte(":"))
	h.Write([]byte(manifestSha256Hex))
	return hex.EncodeToString(h.Sum(nil))
}
