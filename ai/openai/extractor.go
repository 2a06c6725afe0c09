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


package openai

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/scrivano/scrivano/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Extractor implements ai.Extractor using OpenAI-compatible chat APIs.
type Extractor struct {
	client  llms.Model
	timeout time.Duration
	logger  *slog.Logger
}

// envelope is the wire structure the model is asked to return.
type envelope struct {
	Absent     *bool           `json:"absent"`
	Value      json.RawMessage `json:"value"`
	Confidence *float64        `json:"confidence"`
}

// newExtractor is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newExtractor(config *ai.Config) (*Extractor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Create OpenAI client configured for structured extraction
	// Use "none" as token for local OpenAI-compatible services that don't require authentication
	client, err := openai.New(
		openai.WithBaseURL(config.ExtractionHost),
		openai.WithToken("none"),
		openai.WithModel(config.ExtractionModel),
	)
	if err != nil {
		return nil, err
	}

	return &Extractor{
		client:  client,
		timeout: config.RequestTimeout,
		logger:  slog.Default().With("component", "openai-extractor"),
	}, nil
}

// NewExtractor creates a new extractor using the provided configuration.
//
// Returns ai.Extractor interface to enforce abstraction.
func NewExtractor(config *ai.Config) (ai.Extractor, error) {
	return newExtractor(config)
}

// Extract asks the model for the value described by subSchema, with the
// chunk content as the only context. The model is instructed to answer
// with an absent marker rather than fabricate a value.
func (e *Extractor) Extract(ctx context.Context, content string, subSchema []byte) (*ai.Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	systemPrompt := buildExtractionPrompt(subSchema)
	messages := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{
				llms.TextPart(systemPrompt),
			},
		},
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(content),
			},
		},
	}

	// Try up to 3 times in case of malformed JSON
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		response, err := e.client.GenerateContent(ctx, messages, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			e.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return nil, ai.Classify(err)
		}

		if len(response.Choices) < 1 {
			e.logger.Debug("no choices returned from model")
			return &ai.Extraction{Absent: true, Confidence: -1}, nil
		}

		raw := stripFences(response.Choices[0].Content)
		raw = repairJSON(raw)

		extraction, err := parseEnvelope(raw)
		if err != nil {
			lastErr = err
			e.logger.Warn("error parsing extraction response",
				"attempt", attempt+1,
				"response", raw,
				"err", err)
			continue
		}

		return extraction, nil
	}

	e.logger.Error("failed to parse extraction response after retries", "err", lastErr)
	return nil, errors.Join(ai.ErrMalformedOutput, lastErr)
}

// parseEnvelope parses the model's answer. The preferred shape is the
// envelope {"value": ..., "confidence": ...} / {"absent": true}; a bare
// value that is itself valid JSON is accepted as a fallback for models
// that ignore the envelope instruction.
func parseEnvelope(raw string) (*ai.Extraction, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err == nil {
		if env.Absent != nil && *env.Absent {
			return &ai.Extraction{Absent: true, Confidence: -1}, nil
		}
		if len(env.Value) > 0 {
			var value any
			if err := json.Unmarshal(env.Value, &value); err != nil {
				return nil, err
			}
			if value == nil {
				return &ai.Extraction{Absent: true, Confidence: -1}, nil
			}
			confidence := -1.0
			if env.Confidence != nil {
				confidence = clamp01(*env.Confidence)
			}
			return &ai.Extraction{Value: value, Confidence: confidence}, nil
		}
	}

	// Fallback: the whole answer is the value.
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, err
	}
	if value == nil {
		return &ai.Extraction{Absent: true, Confidence: -1}, nil
	}
	return &ai.Extraction{Value: value, Confidence: -1}, nil
}

// stripFences removes markdown code fences some models wrap around JSON.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
