package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scrivano/scrivano/aggregate"
	"github.com/scrivano/scrivano/chunker"
	"github.com/scrivano/scrivano/extract"
	"github.com/scrivano/scrivano/pipeline"
	"github.com/scrivano/scrivano/retrieve"
)

// FileConfig is the YAML shape of a scrivano configuration file. Every
// field is optional; zero values fall back to the built-in defaults.
type FileConfig struct {
	Host            string `yaml:"host"`
	EmbeddingHost   string `yaml:"embedding_host"`
	ExtractionHost  string `yaml:"extraction_host"`
	EmbeddingModel  string `yaml:"embedding_model"`
	ExtractionModel string `yaml:"extraction_model"`

	// RequestTimeout is a Go duration string, e.g. "180s".
	RequestTimeout string `yaml:"request_timeout"`

	Chunking struct {
		LargeSize    int `yaml:"large_size"`
		LargeOverlap int `yaml:"large_overlap"`
		SmallSize    int `yaml:"small_size"`
		SmallOverlap int `yaml:"small_overlap"`
	} `yaml:"chunking"`

	Retrieval struct {
		TopK              int `yaml:"top_k"`
		FullScanThreshold int `yaml:"full_scan_threshold"`
	} `yaml:"retrieval"`

	Extraction struct {
		MaxInFlight       int     `yaml:"max_in_flight"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		GroupFields       bool    `yaml:"group_fields"`
	} `yaml:"extraction"`

	Aggregation struct {
		Strategy         string  `yaml:"strategy"`
		OverlapThreshold float64 `yaml:"overlap_threshold"`
	} `yaml:"aggregation"`

	Validation struct {
		LowConfidenceThreshold float64 `yaml:"low_confidence_threshold"`
	} `yaml:"validation"`

	Concurrency int `yaml:"concurrency"`
}

// LoadFileConfig reads and parses a YAML configuration file.
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &config, nil
}

// Timeout parses the request_timeout field, if set.
func (fc *FileConfig) Timeout() (time.Duration, error) {
	if fc.RequestTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(fc.RequestTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid request_timeout %q: %w", fc.RequestTimeout, err)
	}
	return d, nil
}

// PipelineOptions converts the file configuration into pipeline options.
// Unset sections contribute nothing, keeping the pipeline defaults.
func (fc *FileConfig) PipelineOptions() ([]pipeline.Option, error) {
	var opts []pipeline.Option

	if fc.Chunking.LargeSize > 0 || fc.Chunking.SmallSize > 0 {
		config := chunker.DefaultConfig()
		if fc.Chunking.LargeSize > 0 {
			config.LargeSize = fc.Chunking.LargeSize
		}
		if fc.Chunking.LargeOverlap > 0 {
			config.LargeOverlap = fc.Chunking.LargeOverlap
		}
		if fc.Chunking.SmallSize > 0 {
			config.SmallSize = fc.Chunking.SmallSize
		}
		if fc.Chunking.SmallOverlap > 0 {
			config.SmallOverlap = fc.Chunking.SmallOverlap
		}
		opts = append(opts, pipeline.WithChunkerConfig(config))
	}

	var retrieveOpts []retrieve.Option
	if fc.Retrieval.TopK > 0 {
		retrieveOpts = append(retrieveOpts, retrieve.WithTopK(fc.Retrieval.TopK))
	}
	if fc.Retrieval.FullScanThreshold > 0 {
		retrieveOpts = append(retrieveOpts, retrieve.WithFullScanThreshold(fc.Retrieval.FullScanThreshold))
	}
	if len(retrieveOpts) > 0 {
		opts = append(opts, pipeline.WithRetrieveOptions(retrieveOpts...))
	}

	var extractOpts []extract.Option
	if fc.Extraction.MaxInFlight > 0 {
		extractOpts = append(extractOpts, extract.WithMaxInFlight(fc.Extraction.MaxInFlight))
	}
	if fc.Extraction.RequestsPerSecond > 0 {
		extractOpts = append(extractOpts, extract.WithRateLimit(fc.Extraction.RequestsPerSecond, 1))
	}
	if len(extractOpts) > 0 {
		opts = append(opts, pipeline.WithExtractOptions(extractOpts...))
	}

	if fc.Extraction.GroupFields {
		opts = append(opts, pipeline.WithFieldGrouping(true))
	}

	switch fc.Aggregation.Strategy {
	case "", "sum":
		// Pipeline default.
	case "max":
		opts = append(opts, pipeline.WithStrategy(aggregate.StrategyMax))
	default:
		return nil, fmt.Errorf("unknown aggregation strategy %q: must be sum or max", fc.Aggregation.Strategy)
	}

	if fc.Aggregation.OverlapThreshold > 0 {
		opts = append(opts, pipeline.WithOverlapThreshold(fc.Aggregation.OverlapThreshold))
	}
	if fc.Validation.LowConfidenceThreshold > 0 {
		opts = append(opts, pipeline.WithLowConfidenceThreshold(fc.Validation.LowConfidenceThreshold))
	}
	if fc.Concurrency > 0 {
		opts = append(opts, pipeline.WithDocPoolSize(fc.Concurrency))
	}

	return opts, nil
}
