// Package intentvalidate implements the IntentValidator: consumes arbitrary
// decoded JSON and either returns a model.NormalizedIntent or a structured
// list of field errors. It dispatches by jobType to extract and validate
// each jobType's own input shape, rejecting any top-level field it does not
// recognize rather than silently passing it through. Extra keys inside
// inputs are not rejected.
package intentvalidate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/certen/solver-core/internal/ids"
	"github.com/certen/solver-core/internal/model"
)

// FieldError is one entry of a ValidationError's Errors list.
type FieldError struct {
	Path    string
	Message string
}

// ValidationError is the structured, user-visible failure of Validate. It
// never short-circuits on the first problem it finds within a single pass
// over the top-level shape, collecting every field error instead of just
// the first.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "intent validation failed"
	}
	msg := fmt.Sprintf("intent validation failed (%d errors): ", len(e.Errors))
	for i, fe := range e.Errors {
		if i > 0 {
			msg += "; "
		}
		msg += fmt.Sprintf("%s: %s", fe.Path, fe.Message)
	}
	return msg
}

// Mode controls how Validate treats a caller-supplied intentId.
type Mode int

const (
	// ModeLenient recomputes intentId and, when a caller-supplied value
	// disagrees, keeps the computed value and sets Result.Warning instead
	// of failing. This is the default.
	ModeLenient Mode = iota
	// ModeStrict recomputes intentId and rejects the intent if the
	// supplied value disagrees.
	ModeStrict
)

var topLevelFields = map[string]struct{}{
	"intentVersion":      {},
	"intentId":           {},
	"requester":          {},
	"createdAt":          {},
	"expiresAt":          {},
	"jobType":            {},
	"inputs":             {},
	"constraints":        {},
	"acceptanceCriteria": {},
	"meta":               {},
}

// Result is the outcome of a successful Validate call. Warning is non-empty
// only in ModeLenient when a supplied intentId didn't match the computed
// one.
type Result struct {
	Intent  model.NormalizedIntent
	Warning string
}

// Validate consumes a raw decoded JSON object (as produced by
// json.Unmarshal into map[string]interface{}) and returns a
// NormalizedIntent or a *ValidationError.
func Validate(raw map[string]interface{}, mode Mode) (*Result, error) {
	var errs []FieldError

	for k := range raw {
		if _, known := topLevelFields[k]; !known {
			errs = append(errs, FieldError{Path: k, Message: "unknown top-level field"})
		}
	}

	intentVersion, _ := raw["intentVersion"].(string)
	if intentVersion == "" {
		errs = append(errs, FieldError{Path: "intentVersion", Message: "required"})
	} else if intentVersion != model.SupportedIntentVersion {
		errs = append(errs, FieldError{Path: "intentVersion", Message: fmt.Sprintf("unsupported version %q, expected %q", intentVersion, model.SupportedIntentVersion)})
	}

	requester, _ := raw["requester"].(string)
	if requester == "" {
		errs = append(errs, FieldError{Path: "requester", Message: "required and must be non-empty"})
	}

	createdAt, _ := raw["createdAt"].(string)
	if createdAt == "" {
		errs = append(errs, FieldError{Path: "createdAt", Message: "required"})
	} else if _, err := time.Parse(time.RFC3339, createdAt); err != nil {
		errs = append(errs, FieldError{Path: "createdAt", Message: "must be RFC 3339 UTC"})
	}

	expiresAt, hasExpiresAt := raw["expiresAt"].(string)
	if hasExpiresAt && expiresAt != "" {
		if _, err := time.Parse(time.RFC3339, expiresAt); err != nil {
			errs = append(errs, FieldError{Path: "expiresAt", Message: "must be RFC 3339 UTC"})
		}
	} else if !hasExpiresAt && raw["expiresAt"] != nil {
		errs = append(errs, FieldError{Path: "expiresAt", Message: "must be an RFC 3339 string"})
	}
	// expiresAt <= createdAt is accepted at this stage; the policy engine
	// decides whether an already-expired intent is refused.

	// jobType membership in the closed enumeration is the policy gate's
	// jobType_allowlist check, not a validation error: refusing here would
	// keep an unknown-jobType intent from ever reaching the gate, so its
	// refusal record could never carry the full reason set. Validation only
	// requires a non-empty tag.
	jobTypeStr, _ := raw["jobType"].(string)
	jobType := model.JobType(jobTypeStr)
	if jobTypeStr == "" {
		errs = append(errs, FieldError{Path: "jobType", Message: "required and must be a non-empty string"})
	}

	inputsRaw, hasInputs := raw["inputs"]
	var inputs map[string]interface{}
	if !hasInputs {
		errs = append(errs, FieldError{Path: "inputs", Message: "required"})
	} else if m, ok := inputsRaw.(map[string]interface{}); !ok {
		errs = append(errs, FieldError{Path: "inputs", Message: "must be an object"})
	} else {
		inputs = m
		if isKnownJobType(jobType) {
			errs = append(errs, validateInputsForJobType(jobType, inputs)...)
		}
	}

	var constraints map[string]interface{}
	if c, ok := raw["constraints"]; ok {
		if m, ok := c.(map[string]interface{}); ok {
			constraints = m
		} else {
			errs = append(errs, FieldError{Path: "constraints", Message: "must be an object"})
		}
	}

	var meta map[string]interface{}
	if m, ok := raw["meta"]; ok {
		if mm, ok := m.(map[string]interface{}); ok {
			meta = mm
		} else {
			errs = append(errs, FieldError{Path: "meta", Message: "must be an object"})
		}
	}

	var criteria []model.AcceptanceCriterion
	if ac, ok := raw["acceptanceCriteria"]; ok {
		arr, ok := ac.([]interface{})
		if !ok {
			errs = append(errs, FieldError{Path: "acceptanceCriteria", Message: "must be an array"})
		} else {
			for i, el := range arr {
				c, cerrs := parseAcceptanceCriterion(el, i)
				errs = append(errs, cerrs...)
				if c != nil {
					criteria = append(criteria, *c)
				}
			}
		}
	}

	suppliedIntentID, _ := raw["intentId"].(string)

	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	computedID, err := ids.IntentID(ids.IntentParams{
		IntentVersion: intentVersion,
		Requester:     requester,
		JobType:       string(jobType),
		Inputs:        inputs,
		Constraints:   constraints,
	})
	if err != nil {
		return nil, fmt.Errorf("compute intentId: %w", err)
	}

	var warning string
	finalID := computedID
	if suppliedIntentID != "" && suppliedIntentID != computedID {
		switch mode {
		case ModeStrict:
			return nil, &ValidationError{Errors: []FieldError{{
				Path:    "intentId",
				Message: fmt.Sprintf("supplied intentId %q does not match computed %q", suppliedIntentID, computedID),
			}}}
		default:
			warning = fmt.Sprintf("supplied intentId %q does not match computed %q; accepting computed value", suppliedIntentID, computedID)
		}
	}

	ni := model.NormalizedIntent{Intent: model.Intent{
		IntentVersion:      intentVersion,
		IntentID:           finalID,
		Requester:          requester,
		CreatedAt:          createdAt,
		ExpiresAt:          expiresAt,
		JobType:            jobType,
		Inputs:             inputs,
		Constraints:        constraints,
		AcceptanceCriteria: criteria,
		Meta:               meta,
	}}

	return &Result{Intent: ni, Warning: warning}, nil
}

// DecodeJSON is a convenience wrapper that rejects malformed JSON before
// Validate ever runs, failing fast at the producer rather than deep inside
// validation logic.
func DecodeJSON(raw []byte) (map[string]interface{}, error) {
	var v map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("parse intent JSON: %w", err)
	}
	return v, nil
}

func isKnownJobType(jt model.JobType) bool {
	for _, known := range model.KnownJobTypes {
		if known == jt {
			return true
		}
	}
	return false
}

func validateInputsForJobType(jt model.JobType, inputs map[string]interface{}) []FieldError {
	switch jt {
	case model.JobTypeSafeReport:
		var errs []FieldError
		subject, ok := inputs["subject"].(string)
		if !ok || subject == "" {
			errs = append(errs, FieldError{Path: "inputs.subject", Message: "required and must be non-empty"})
		}
		if data, ok := inputs["data"]; !ok {
			errs = append(errs, FieldError{Path: "inputs.data", Message: "required"})
		} else if _, ok := data.(map[string]interface{}); !ok {
			errs = append(errs, FieldError{Path: "inputs.data", Message: "must be an object"})
		}
		return errs
	default:
		return nil
	}
}

func parseAcceptanceCriterion(v interface{}, idx int) (*model.AcceptanceCriterion, []FieldError) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, []FieldError{{Path: fmt.Sprintf("acceptanceCriteria[%d]", idx), Message: "must be an object"}}
	}
	typ, _ := m["type"].(string)
	if typ == "" {
		return nil, []FieldError{{Path: fmt.Sprintf("acceptanceCriteria[%d].type", idx), Message: "required"}}
	}
	desc, _ := m["description"].(string)
	c := &model.AcceptanceCriterion{Type: typ, Description: desc, Value: m["value"]}
	return c, nil
}
