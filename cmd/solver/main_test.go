package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const fixtureS1 = `{
  "intentVersion": "0.1.0",
  "requester": "test@example.com",
  "createdAt": "2026-01-01T00:00:00Z",
  "jobType": "SAFE_REPORT",
  "inputs": {"subject": "Hi", "data": {"k": "v"}}
}`

func writeFixture(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func withDataDir(t *testing.T, dataDir string) {
	t.Helper()
	t.Setenv("DATA_DIR", dataDir)
	t.Setenv("RECEIPTS_PATH", filepath.Join(dataDir, "receipts.jsonl"))
	t.Setenv("REFUSALS_PATH", filepath.Join(dataDir, "refusals.jsonl"))
	t.Setenv("EVIDENCE_DIR", filepath.Join(dataDir, "runs"))
	t.Setenv("POLICY_JOBTYPE_ALLOWLIST", "")
	t.Setenv("POLICY_MAX_ARTIFACT_MB", "")
	t.Setenv("POLICY_REQUESTER_ALLOWLIST", "")
	t.Setenv("SOLVER_CONFIG_FILE", "")
}

func TestCmdPrintIntent_ValidFixtureSucceeds(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "intent.json", fixtureS1)

	code, err := cmdPrintIntent([]string{path})
	require.NoError(t, err)
	require.Equal(t, 0, code)
}

func TestCmdPrintIntent_MalformedJSONFails(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "intent.json", `{not json`)

	code, err := cmdPrintIntent([]string{path})
	require.Error(t, err)
	require.Equal(t, 1, code)
}

func TestCmdRunFixture_AcceptedPathSucceeds(t *testing.T) {
	withDataDir(t, t.TempDir())
	dir := t.TempDir()
	path := writeFixture(t, dir, "intent.json", fixtureS1)

	code, err := cmdRunFixture([]string{path})
	require.NoError(t, err)
	require.Equal(t, 0, code)
}

func TestCmdRunFixture_RefusalExitsTwoWithAllReasonsRecorded(t *testing.T) {
	dataDir := t.TempDir()
	withDataDir(t, dataDir)
	t.Setenv("POLICY_REQUESTER_ALLOWLIST", "alice@example.com")

	dir := t.TempDir()
	path := writeFixture(t, dir, "intent.json", `{
		"intentVersion": "0.1.0",
		"requester": "nobody@example.com",
		"createdAt": "2026-01-01T00:00:00Z",
		"expiresAt": "2020-01-01T00:00:00Z",
		"jobType": "UNKNOWN",
		"inputs": {"subject": "Hi", "data": {}}
	}`)

	code, err := cmdRunFixture([]string{path})
	require.NoError(t, err)
	require.Equal(t, 2, code)

	refusals, err := os.ReadFile(filepath.Join(dataDir, "refusals.jsonl"))
	require.NoError(t, err)
	require.Contains(t, string(refusals), "jobType 'UNKNOWN' not in allowlist")
	require.Contains(t, string(refusals), "intent expired at 2020-01-01T00:00:00Z")
	require.Contains(t, string(refusals), "requester 'nobody@example.com' not in allowlist")

	// No run directory or receipt for a refused intent.
	entries, err := os.ReadDir(filepath.Join(dataDir, "runs"))
	if err == nil {
		require.Empty(t, entries)
	}
	_, statErr := os.Stat(filepath.Join(dataDir, "receipts.jsonl"))
	require.True(t, os.IsNotExist(statErr))
}

func TestCmdRunFixture_ReproducibleAcrossFreshDataDirs(t *testing.T) {
	dirA := t.TempDir()
	intentDir := t.TempDir()
	path := writeFixture(t, intentDir, "intent.json", fixtureS1)

	withDataDir(t, dirA)
	codeA, err := cmdRunFixture([]string{path})
	require.NoError(t, err)
	require.Equal(t, 0, codeA)

	dirB := t.TempDir()
	withDataDir(t, dirB)
	codeB, err := cmdRunFixture([]string{path})
	require.NoError(t, err)
	require.Equal(t, 0, codeB)

	receiptsA, err := os.ReadFile(filepath.Join(dirA, "receipts.jsonl"))
	require.NoError(t, err)
	receiptsB, err := os.ReadFile(filepath.Join(dirB, "receipts.jsonl"))
	require.NoError(t, err)

	var rxA, rxB map[string]interface{}
	require.NoError(t, json.Unmarshal(receiptsA, &rxA))
	require.NoError(t, json.Unmarshal(receiptsB, &rxB))
	require.Equal(t, rxA["receiptId"], rxB["receiptId"])
	require.Equal(t, rxA["runId"], rxB["runId"])
}

func TestCmdMakeEvidenceAndValidateEvidence_RoundTrip(t *testing.T) {
	withDataDir(t, t.TempDir())
	intentDir := t.TempDir()
	path := writeFixture(t, intentDir, "intent.json", fixtureS1)

	code, err := cmdRunFixture([]string{path})
	require.NoError(t, err)
	require.Equal(t, 0, code)

	evidenceDir := os.Getenv("EVIDENCE_DIR")
	entries, err := os.ReadDir(evidenceDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	runDir := filepath.Join(evidenceDir, entries[0].Name())

	vcode, err := cmdValidateEvidence([]string{runDir})
	require.NoError(t, err)
	require.Equal(t, 0, vcode)

	mcode, err := cmdMakeEvidence([]string{runDir})
	require.NoError(t, err)
	require.Equal(t, 0, mcode)

	vcode, err = cmdValidateEvidence([]string{runDir})
	require.NoError(t, err)
	require.Equal(t, 0, vcode)
}

func TestCmdValidateEvidence_TamperDetected(t *testing.T) {
	withDataDir(t, t.TempDir())
	intentDir := t.TempDir()
	path := writeFixture(t, intentDir, "intent.json", fixtureS1)

	code, err := cmdRunFixture([]string{path})
	require.NoError(t, err)
	require.Equal(t, 0, code)

	evidenceDir := os.Getenv("EVIDENCE_DIR")
	entries, err := os.ReadDir(evidenceDir)
	require.NoError(t, err)
	runDir := filepath.Join(evidenceDir, entries[0].Name())

	reportPath := filepath.Join(runDir, "artifacts", "report.json")
	require.NoError(t, os.WriteFile(reportPath, []byte("{tampered}"), 0o644))

	vcode, err := cmdValidateEvidence([]string{runDir})
	require.NoError(t, err)
	require.Equal(t, 1, vcode)
}

func TestCmdCheckConfig_RejectsInvalidMaxArtifactMB(t *testing.T) {
	withDataDir(t, t.TempDir())
	t.Setenv("POLICY_MAX_ARTIFACT_MB", "-1")

	code, err := cmdCheckConfig(nil)
	require.Error(t, err)
	require.Equal(t, 1, code)
}
