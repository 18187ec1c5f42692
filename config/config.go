// Package config holds the YAML-tagged configuration the CLI front-end
// (out of scope here) loads and hands to engine.Run.
package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// debugEnvVar toggles per-rule opcode-fallback diagnostics: set to 1 or
// true, it turns EngineConfig.DebugOpcodeSemantics on whatever the config
// file says; any other value leaves the file's setting unchanged.
const debugEnvVar = "INSPEQUTE_DEBUG_OPCODE_SEMANTICS"

// EngineConfig is the full set of knobs an analysis run accepts beyond its
// input/classpath list.
type EngineConfig struct {
	// EnabledRules restricts the catalog to these ids; empty means every
	// built-in rule runs.
	EnabledRules []string `yaml:"enabledRules,omitempty"`
	// DisabledRules subtracts these ids from the (possibly already
	// restricted) enabled set.
	DisabledRules []string `yaml:"disabledRules,omitempty"` // takes precedence over EnabledRules
	// DebugOpcodeSemantics turns on per-rule fallback/summary telemetry
	// events for opcodes the stack machine doesn't model precisely.
	DebugOpcodeSemantics bool `yaml:"debugOpcodeSemantics,omitempty"`
	// Dedup enables (message, artifact_uri, line, logical_location)
	// result deduplication.
	Dedup bool `yaml:"dedup,omitempty"`
	// PrintTimingSummary reports per-phase durations (scan, call graph,
	// per-rule) after a run completes.
	PrintTimingSummary bool `yaml:"printTimingSummary,omitempty"`
}

// Load unmarshals a YAML-encoded EngineConfig from r. Environment
// variables are applied after unmarshaling, so the debug variable can turn
// on a toggle the file leaves unset or sets to false, matching the CLI's
// documented precedence.
func Load(r io.Reader) (*EngineConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg := &EngineConfig{}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: unmarshal: %w", err)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *EngineConfig) {
	switch os.Getenv(debugEnvVar) {
	case "1", "true", "TRUE", "True":
		cfg.DebugOpcodeSemantics = true
	}
}

// RuleEnabled reports whether ruleID should run under cfg: it must be in
// EnabledRules (when that list is non-empty) and must not be in
// DisabledRules.
func (c *EngineConfig) RuleEnabled(ruleID string) bool {
	if c == nil {
		return true
	}
	if len(c.EnabledRules) > 0 && !contains(c.EnabledRules, ruleID) {
		return false
	}
	return !contains(c.DisabledRules, ruleID)
}

func contains(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}
