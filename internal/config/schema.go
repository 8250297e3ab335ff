package config

import (
	"time"

	"github.com/jackzampolin/bowdler/internal/oracle"
)

// Config holds bowdler configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Oracle    OracleCfg    `mapstructure:"oracle" yaml:"oracle"`
	Policy    oracle.Policy `mapstructure:"policy" yaml:"policy"`
	Pipeline  PipelineCfg  `mapstructure:"pipeline" yaml:"pipeline"`
	Converter ConverterCfg `mapstructure:"converter" yaml:"converter"`
}

// OracleCfg configures the content-transformation service.
type OracleCfg struct {
	Type           string `mapstructure:"type" yaml:"type"`         // "openai" or "mock"
	Model          string `mapstructure:"model" yaml:"model"`       // model name
	APIKey         string `mapstructure:"api_key" yaml:"api_key"`   // supports ${ENV_VAR} syntax
	BaseURL        string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	RateLimit      int    `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per minute
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries" yaml:"max_retries"`
}

// Timeout returns the request timeout as a duration.
func (c OracleCfg) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PipelineCfg bounds chunking and parallelism.
type PipelineCfg struct {
	MaxParagraphs int `mapstructure:"max_paragraphs" yaml:"max_paragraphs"` // per oracle unit
	MaxWords      int `mapstructure:"max_words" yaml:"max_words"`           // per oracle unit
	MaxWorkers    int `mapstructure:"max_workers" yaml:"max_workers"`       // parallel chapters
}

// ConverterCfg configures the external document converter.
type ConverterCfg struct {
	Command string   `mapstructure:"command" yaml:"command"`
	Args    []string `mapstructure:"args" yaml:"args,omitempty"`
	WorkDir string   `mapstructure:"work_dir" yaml:"work_dir,omitempty"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Oracle: OracleCfg{
			Type:           "openai",
			Model:          "gpt-4o-mini",
			APIKey:         "${OPENAI_API_KEY}",
			RateLimit:      60,
			TimeoutSeconds: 120,
			MaxRetries:     4,
		},
		Policy: oracle.Policy{
			CategoryLevels: map[string]int{
				"language": 3,
				"sexual":   3,
				"violence": 2,
			},
		},
		Pipeline: PipelineCfg{
			MaxParagraphs: 40,
			MaxWords:      1200,
			MaxWorkers:    2,
		},
		Converter: ConverterCfg{
			Command: "book2text",
		},
	}
}
