// Package config resolves the PAI_DR_* option layer: defaults →
// settings.json → environment variables, each layer overriding the last.
// Grounded on codenerd/internal/config's DefaultConfig → Load →
// applyEnvOverrides precedence chain, adapted to a JSON settings file
// instead of YAML since this system has no YAML-configured concern.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Config is the resolved PAI_DR_* option set (spec.md §6's flag table).
type Config struct {
	OptionCEnabled              bool   `json:"option_c_enabled"`
	ModeDefault                 string `json:"mode_default"`
	MaxWave1Agents               int    `json:"max_wave1_agents"`
	MaxWave2Agents               int    `json:"max_wave2_agents"`
	MaxSummaryKB                 int    `json:"max_summary_kb"`
	MaxTotalSummaryKB            int    `json:"max_total_summary_kb"`
	MaxReviewIterations          int    `json:"max_review_iterations"`
	CitationValidationTier       string `json:"citation_validation_tier"`
	CitationsBrightDataEndpoint  string `json:"citations_bright_data_endpoint"`
	CitationsApifyEndpoint       string `json:"citations_apify_endpoint"`
	NoWeb                        bool   `json:"no_web"`
	RunsRoot                     string `json:"runs_root"`
}

// DefaultConfig returns the option set's built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		OptionCEnabled:         false,
		ModeDefault:            "standard",
		MaxWave1Agents:         5,
		MaxWave2Agents:         3,
		MaxSummaryKB:           20,
		MaxTotalSummaryKB:      200,
		MaxReviewIterations:    2,
		CitationValidationTier: "standard",
		NoWeb:                  false,
		RunsRoot:               "./runs",
	}
}

// Load resolves the option layer: defaults, then settingsPath's JSON
// (if it exists), then PAI_DR_* environment variables, which always win.
func Load(settingsPath string) (*Config, error) {
	cfg := DefaultConfig()

	if settingsPath != "" {
		data, err := os.ReadFile(settingsPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", settingsPath, err)
			}
		} else if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", settingsPath, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save persists cfg as settings.json.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v, ok := lookupBool("PAI_DR_OPTION_C_ENABLED"); ok {
		c.OptionCEnabled = v
	}
	if v := os.Getenv("PAI_DR_MODE_DEFAULT"); v != "" {
		c.ModeDefault = v
	}
	if v, ok := lookupInt("PAI_DR_MAX_WAVE1_AGENTS"); ok {
		c.MaxWave1Agents = v
	}
	if v, ok := lookupInt("PAI_DR_MAX_WAVE2_AGENTS"); ok {
		c.MaxWave2Agents = v
	}
	if v, ok := lookupInt("PAI_DR_MAX_SUMMARY_KB"); ok {
		c.MaxSummaryKB = v
	}
	if v, ok := lookupInt("PAI_DR_MAX_TOTAL_SUMMARY_KB"); ok {
		c.MaxTotalSummaryKB = v
	}
	if v, ok := lookupInt("PAI_DR_MAX_REVIEW_ITERATIONS"); ok {
		c.MaxReviewIterations = v
	}
	if v := os.Getenv("PAI_DR_CITATION_VALIDATION_TIER"); v != "" {
		c.CitationValidationTier = v
	}
	if v := os.Getenv("PAI_DR_CITATIONS_BRIGHT_DATA_ENDPOINT"); v != "" {
		c.CitationsBrightDataEndpoint = v
	}
	if v := os.Getenv("PAI_DR_CITATIONS_APIFY_ENDPOINT"); v != "" {
		c.CitationsApifyEndpoint = v
	}
	if v, ok := lookupBool("PAI_DR_NO_WEB"); ok {
		c.NoWeb = v
	}
	if v := os.Getenv("PAI_DR_RUNS_ROOT"); v != "" {
		c.RunsRoot = v
	}
}

func lookupBool(name string) (bool, bool) {
	raw, present := os.LookupEnv(name)
	if !present {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func lookupInt(name string) (int, bool) {
	raw, present := os.LookupEnv(name)
	if !present {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
