package intentvalidate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validIntentRaw() map[string]interface{} {
	return map[string]interface{}{
		"intentVersion": "0.1.0",
		"requester":     "test@example.com",
		"createdAt":     "2026-01-01T00:00:00Z",
		"jobType":       "SAFE_REPORT",
		"inputs": map[string]interface{}{
			"subject": "Hi",
			"data":    map[string]interface{}{"k": "v"},
		},
	}
}

func TestValidate_AcceptsWellFormedIntent(t *testing.T) {
	res, err := Validate(validIntentRaw(), ModeLenient)
	require.NoError(t, err)
	require.Len(t, res.Intent.IntentID, 64)
	require.Empty(t, res.Warning)
}

func TestValidate_RejectsUnknownTopLevelField(t *testing.T) {
	raw := validIntentRaw()
	raw["bogus"] = "x"
	_, err := Validate(raw, ModeLenient)
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Contains(t, ve.Error(), "bogus")
}

func TestValidate_RejectsWrongIntentVersion(t *testing.T) {
	raw := validIntentRaw()
	raw["intentVersion"] = "9.9.9"
	_, err := Validate(raw, ModeLenient)
	require.Error(t, err)
}

func TestValidate_AcceptsUnknownJobTypeForPolicyToRefuse(t *testing.T) {
	// Enumeration membership is the policy gate's jobType_allowlist check;
	// validation passes the tag through so the refusal can carry every
	// failing reason.
	raw := validIntentRaw()
	raw["jobType"] = "UNKNOWN"
	res, err := Validate(raw, ModeLenient)
	require.NoError(t, err)
	require.EqualValues(t, "UNKNOWN", res.Intent.JobType)
	require.Len(t, res.Intent.IntentID, 64)
}

func TestValidate_RejectsEmptyJobType(t *testing.T) {
	raw := validIntentRaw()
	raw["jobType"] = ""
	_, err := Validate(raw, ModeLenient)
	require.Error(t, err)
}

func TestValidate_RejectsNonStringExpiresAt(t *testing.T) {
	raw := validIntentRaw()
	raw["expiresAt"] = 123
	_, err := Validate(raw, ModeLenient)
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "expiresAt", ve.Errors[0].Path)
}

func TestValidate_RejectsEmptySubjectForSafeReport(t *testing.T) {
	raw := validIntentRaw()
	raw["inputs"] = map[string]interface{}{"subject": "", "data": map[string]interface{}{}}
	_, err := Validate(raw, ModeLenient)
	require.Error(t, err)
}

func TestValidate_AcceptsExpiresAtBeforeCreatedAt(t *testing.T) {
	raw := validIntentRaw()
	raw["expiresAt"] = "2020-01-01T00:00:00Z"
	res, err := Validate(raw, ModeLenient)
	require.NoError(t, err)
	require.Equal(t, "2020-01-01T00:00:00Z", res.Intent.ExpiresAt)
}

func TestValidate_LenientAcceptsMismatchedIntentIDWithWarning(t *testing.T) {
	raw := validIntentRaw()
	raw["intentId"] = "0000000000000000000000000000000000000000000000000000000000000000"
	res, err := Validate(raw, ModeLenient)
	require.NoError(t, err)
	require.NotEmpty(t, res.Warning)
	require.NotEqual(t, "0000000000000000000000000000000000000000000000000000000000000000", res.Intent.IntentID)
}

func TestValidate_StrictRejectsMismatchedIntentID(t *testing.T) {
	raw := validIntentRaw()
	raw["intentId"] = "deadbeef"
	_, err := Validate(raw, ModeStrict)
	require.Error(t, err)
}

func TestValidate_StrictAcceptsMatchingIntentID(t *testing.T) {
	res1, err := Validate(validIntentRaw(), ModeLenient)
	require.NoError(t, err)

	raw := validIntentRaw()
	raw["intentId"] = res1.Intent.IntentID
	res2, err := Validate(raw, ModeStrict)
	require.NoError(t, err)
	require.Equal(t, res1.Intent.IntentID, res2.Intent.IntentID)
}

func TestValidate_CollectsMultipleErrorsWithoutShortCircuit(t *testing.T) {
	raw := map[string]interface{}{
		"intentVersion": "9.9.9",
		"jobType":       "",
	}
	_, err := Validate(raw, ModeLenient)
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.GreaterOrEqual(t, len(ve.Errors), 3) // version, requester, createdAt, jobType, inputs
}
