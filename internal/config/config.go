// Package config provides per-guideline YAML configuration loading and
// fail-fast validation for the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Batch holds tuning knobs for the checkpointed batch processor.
type Batch struct {
	Concurrency         int     `yaml:"concurrency" validate:"min=1,max=64"`
	MaxAttempts         int     `yaml:"max_attempts" validate:"min=1,max=10"`
	BackoffBaseMillis   int     `yaml:"backoff_base_millis" validate:"min=1"`
	MaxItemFailureRatio float64 `yaml:"max_item_failure_ratio" validate:"min=0,max=1"`
}

// Inference holds thresholds for the relationship inference engine.
type Inference struct {
	AcceptThreshold float64  `yaml:"accept_threshold" validate:"min=0,max=1"`
	ReviewFloor     float64  `yaml:"review_floor" validate:"min=0,max=1"`
	FuzzyThreshold  float64  `yaml:"fuzzy_threshold" validate:"min=0,max=1"`
	Relations       []string `yaml:"relations"`
}

// Config is the validated per-guideline configuration. All recognized
// fields are enumerated here; unknown YAML keys are rejected at load time.
type Config struct {
	GuidelineID     string    `yaml:"guideline_id" validate:"required"`
	GuidelinePrefix string    `yaml:"guideline_prefix" validate:"required,alphanum"`
	PDFPath         string    `yaml:"pdf_path" validate:"required"`
	WorkspaceDir    string    `yaml:"workspace_dir"`
	DatabaseURL     string    `yaml:"database_url"`
	APIKeyEnv       string    `yaml:"api_key_env"`
	CrossrefBaseURL string    `yaml:"crossref_base_url"`
	EmbeddingDims   int       `yaml:"embedding_dims" validate:"min=0"`
	Verbose         bool      `yaml:"verbose"`
	Batch           Batch     `yaml:"batch"`
	Inference       Inference `yaml:"inference"`
}

// Default values applied before validation.
const (
	defaultConcurrency       = 8
	defaultMaxAttempts       = 4
	defaultBackoffBaseMillis = 500
	defaultFailureRatio      = 0.2
	defaultAcceptThreshold   = 0.7
	defaultReviewFloor       = 0.4
	defaultFuzzyThreshold    = 0.6
	defaultEmbeddingDims     = 256
	defaultCrossrefBaseURL   = "https://api.crossref.org"
	defaultAPIKeyEnv         = "GEMINI_API_KEY"
)

var defaultRelations = []string{"RECOMMENDS", "TREATS", "CITES"}

// Load reads, defaults, and validates a guideline configuration file.
// Validation failures name the offending field so the operator can fix the
// file without tracing a downstream stage error.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML %s: %w", path, err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults(baseDir string) {
	if c.WorkspaceDir == "" {
		c.WorkspaceDir = filepath.Join(baseDir, "workspace")
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = defaultAPIKeyEnv
	}
	if c.CrossrefBaseURL == "" {
		c.CrossrefBaseURL = defaultCrossrefBaseURL
	}
	if c.EmbeddingDims == 0 {
		c.EmbeddingDims = defaultEmbeddingDims
	}
	if c.Batch.Concurrency == 0 {
		c.Batch.Concurrency = defaultConcurrency
	}
	if c.Batch.MaxAttempts == 0 {
		c.Batch.MaxAttempts = defaultMaxAttempts
	}
	if c.Batch.BackoffBaseMillis == 0 {
		c.Batch.BackoffBaseMillis = defaultBackoffBaseMillis
	}
	if c.Batch.MaxItemFailureRatio == 0 {
		c.Batch.MaxItemFailureRatio = defaultFailureRatio
	}
	if c.Inference.AcceptThreshold == 0 {
		c.Inference.AcceptThreshold = defaultAcceptThreshold
	}
	if c.Inference.ReviewFloor == 0 {
		c.Inference.ReviewFloor = defaultReviewFloor
	}
	if c.Inference.FuzzyThreshold == 0 {
		c.Inference.FuzzyThreshold = defaultFuzzyThreshold
	}
	if len(c.Inference.Relations) == 0 {
		c.Inference.Relations = append([]string(nil), defaultRelations...)
	}
}

// Validate checks field-level constraints and cross-field invariants.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config error: field %q failed %q constraint", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("config error: %w", err)
	}

	if c.Inference.ReviewFloor > c.Inference.AcceptThreshold {
		return fmt.Errorf("config error: 'inference.review_floor' (%.2f) must not exceed 'inference.accept_threshold' (%.2f)",
			c.Inference.ReviewFloor, c.Inference.AcceptThreshold)
	}
	for _, rel := range c.Inference.Relations {
		switch rel {
		case "RECOMMENDS", "TREATS", "CITES", "SUPPORTED_BY":
		default:
			return fmt.Errorf("config error: 'inference.relations' contains unknown relation %q", rel)
		}
	}
	return nil
}

// APIKey resolves the LLM API key from the configured environment variable.
func (c *Config) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}

// StatePath returns the location of the sqlite state database for this
// guideline's workspace.
func (c *Config) StatePath() string {
	return filepath.Join(c.WorkspaceDir, "state.db")
}

// ReportDir returns where review reports are written.
func (c *Config) ReportDir() string {
	return filepath.Join(c.WorkspaceDir, "reports")
}
