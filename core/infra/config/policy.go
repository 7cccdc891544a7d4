package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// PendingSuffix marks an unprocessed publish request in the bucket.
	PendingSuffix = "_publish.json"
	// DoneSuffix marks a request that was published successfully.
	DoneSuffix = "_published.json"
	// CorruptedSuffix marks a request whose body could not be parsed.
	CorruptedSuffix = "_corrupted.json"
	// FailedSuffix marks a request that exhausted its retry budget.
	FailedSuffix = "_failed.json"
	// FailureReportSuffix names the report written next to a dead-lettered request.
	FailureReportSuffix = "_failures.json"
)

// Policy controls retry and quarantine behaviour for failing requests.
type Policy struct {
	// MaxAttempts bounds retries for transient failures. Zero retries forever.
	MaxAttempts int `yaml:"max_attempts"`
	// QuarantineMalformed moves unparseable triggers aside instead of retrying them.
	QuarantineMalformed bool `yaml:"quarantine_malformed"`
}

// LoadPolicy loads a YAML policy file; returns defaults if missing.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return defaultPolicy(), nil
	}
	// #nosec G304 -- policy config path is operator-provided.
	data, err := os.ReadFile(path)
	if err != nil {
		return defaultPolicy(), fmt.Errorf("read policy config: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy parses policy config data from YAML bytes.
func ParsePolicy(data []byte) (*Policy, error) {
	if len(data) == 0 {
		return defaultPolicy(), nil
	}
	cfg := defaultPolicy()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return defaultPolicy(), fmt.Errorf("parse policy config: %w", err)
	}
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	return cfg, nil
}

func defaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:         0,
		QuarantineMalformed: true,
	}
}
