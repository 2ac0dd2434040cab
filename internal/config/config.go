// Package config loads solver-core's configuration from environment
// variables, plus an optional YAML overlay file whose values take priority
// over the environment. It ships as a single static binary with no
// surrounding deployment templating, so the overlay file is the only way
// to change configuration without touching the process environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/certen/solver-core/internal/model"
)

// Config is the immutable, once-loaded configuration for one solver-core
// process.
type Config struct {
	DataDir string

	PolicyJobTypeAllowlist   []model.JobType
	PolicyMaxArtifactMB      int
	PolicyRequesterAllowlist []string

	ReceiptsPath string
	RefusalsPath string
	EvidenceDir  string
}

// overlay is the shape of the optional YAML config file. Scalar fields are
// pointers and list fields are nil when absent, so "absent from the file" is
// distinguishable from "zero value", letting file values override env only
// where actually present. An empty policyJobTypeAllowlist is treated as
// absent.
type overlay struct {
	DataDir                  *string  `yaml:"dataDir"`
	PolicyJobTypeAllowlist   []string `yaml:"policyJobTypeAllowlist"`
	PolicyMaxArtifactMB      *int     `yaml:"policyMaxArtifactMB"`
	PolicyRequesterAllowlist []string `yaml:"policyRequesterAllowlist"`
	ReceiptsPath             *string  `yaml:"receiptsPath"`
	RefusalsPath             *string  `yaml:"refusalsPath"`
	EvidenceDir              *string  `yaml:"evidenceDir"`
}

// Load reads configuration from environment variables, then merges an
// optional YAML file at overlayPath (if non-empty and present) on top -
// file values win over env values.
func Load(overlayPath string) (Config, error) {
	dataDir := getEnv("DATA_DIR", "./data")

	cfg := Config{
		DataDir:                  dataDir,
		PolicyJobTypeAllowlist:   parseJobTypes(getEnv("POLICY_JOBTYPE_ALLOWLIST", string(model.JobTypeSafeReport))),
		PolicyMaxArtifactMB:      getEnvInt("POLICY_MAX_ARTIFACT_MB", 5),
		PolicyRequesterAllowlist: parseCSV(getEnv("POLICY_REQUESTER_ALLOWLIST", "")),
		ReceiptsPath:             getEnv("RECEIPTS_PATH", dataDir+"/receipts.jsonl"),
		RefusalsPath:             getEnv("REFUSALS_PATH", dataDir+"/refusals.jsonl"),
		EvidenceDir:              getEnv("EVIDENCE_DIR", dataDir+"/runs"),
	}

	if overlayPath == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(overlayPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: read overlay file: %w", err)
	}

	var ov overlay
	if err := yaml.Unmarshal(raw, &ov); err != nil {
		return Config{}, fmt.Errorf("config: parse overlay file: %w", err)
	}
	applyOverlay(&cfg, ov)

	return cfg, nil
}

func applyOverlay(cfg *Config, ov overlay) {
	if ov.DataDir != nil {
		cfg.DataDir = *ov.DataDir
	}
	if len(ov.PolicyJobTypeAllowlist) > 0 {
		cfg.PolicyJobTypeAllowlist = toJobTypes(ov.PolicyJobTypeAllowlist)
	}
	if ov.PolicyMaxArtifactMB != nil {
		cfg.PolicyMaxArtifactMB = *ov.PolicyMaxArtifactMB
	}
	if ov.PolicyRequesterAllowlist != nil {
		cfg.PolicyRequesterAllowlist = ov.PolicyRequesterAllowlist
	}
	if ov.ReceiptsPath != nil {
		cfg.ReceiptsPath = *ov.ReceiptsPath
	}
	if ov.RefusalsPath != nil {
		cfg.RefusalsPath = *ov.RefusalsPath
	}
	if ov.EvidenceDir != nil {
		cfg.EvidenceDir = *ov.EvidenceDir
	}
}

// Validate checks the loaded config is internally consistent before the
// rest of the service starts wiring ports against it.
func (c Config) Validate() error {
	var errs []string
	if c.DataDir == "" {
		errs = append(errs, "DATA_DIR must not be empty")
	}
	if len(c.PolicyJobTypeAllowlist) == 0 {
		errs = append(errs, "POLICY_JOBTYPE_ALLOWLIST must name at least one jobType")
	}
	if c.PolicyMaxArtifactMB <= 0 {
		errs = append(errs, "POLICY_MAX_ARTIFACT_MB must be a positive integer")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func parseJobTypes(csv string) []model.JobType {
	parts := parseCSV(csv)
	return toJobTypes(parts)
}

func toJobTypes(parts []string) []model.JobType {
	out := make([]model.JobType, 0, len(parts))
	for _, p := range parts {
		out = append(out, model.JobType(p))
	}
	return out
}

func parseCSV(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}
