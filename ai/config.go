// Copyright 2026 Scrivano Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import (
	"errors"
	"strings"
	"time"
)

// Config holds configuration for capability providers.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for a local OpenAI-compatible server
	EmbeddingHost string

	// ExtractionHost is the base URL for the extraction service API.
	// Example: "http://localhost:11434/v1" for a local OpenAI-compatible server
	ExtractionHost string

	// EmbeddingModel is the model identifier used for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string

	// ExtractionModel is the model identifier used for structured extraction.
	// Example: "qwen2.5:3b", "gpt-4o-mini"
	ExtractionModel string

	// RequestTimeout bounds a single capability call. Default: 180s, the
	// budget the archivist tooling historically allowed per chunk.
	RequestTimeout time.Duration
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithExtractionHost sets the extraction service host URL.
func WithExtractionHost(host string) ConfigOption {
	return func(c *Config) {
		c.ExtractionHost = host
	}
}

// WithHost sets both embedding and extraction hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.ExtractionHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithExtractionModel sets the extraction model identifier.
func WithExtractionModel(model string) ConfigOption {
	return func(c *Config) {
		c.ExtractionModel = model
	}
}

// WithRequestTimeout sets the per-call timeout.
func WithRequestTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.RequestTimeout = d
	}
}

// DefaultConfig returns a Config with sensible defaults for local
// OpenAI-compatible services. Both capabilities use the same host.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		EmbeddingHost:   defaultHost,
		ExtractionHost:  defaultHost,
		EmbeddingModel:  "embeddinggemma",
		ExtractionModel: "qwen2.5:3b",
		RequestTimeout:  180 * time.Second,
	}
}

// NewConfig creates a Config with the default values and applies the
// provided options. This is the recommended way to create a Config.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434/v1"),
//	    WithExtractionModel("qwen2.5:7b"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It automatically adds the /v1 suffix to hosts if missing, which is
// required by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	if c.EmbeddingHost != "" && !strings.HasSuffix(c.EmbeddingHost, "/v1") {
		c.EmbeddingHost = strings.TrimSuffix(c.EmbeddingHost, "/") + "/v1"
	}
	if c.ExtractionHost != "" && !strings.HasSuffix(c.ExtractionHost, "/v1") {
		c.ExtractionHost = strings.TrimSuffix(c.ExtractionHost, "/") + "/v1"
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.ExtractionHost == "" {
		return errors.New("ai config: ExtractionHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.ExtractionModel == "" {
		return errors.New("ai config: ExtractionModel is required")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("ai config: RequestTimeout must be positive")
	}
	return nil
}
