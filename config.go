package sqextract

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/tsawler/sqextract/record"
)

// Config is the file and environment configuration of an Engine.
type Config struct {
	Catalog       string            `toml:"catalog"` // YAML catalog path; empty uses the built-in catalog
	Samples       []string          `toml:"samples"` // sample workbooks imported as extra variants
	Concurrency   int               `toml:"concurrency" validate:"gte=1,lte=256"`
	EmitUnmatched bool              `toml:"emit_unmatched"` // also return an unmatched record when no template fits
	Logging       LoggingConfig     `toml:"logging"`
	Matching      MatchingConfig    `toml:"matching"`
	Recognition   RecognitionConfig `toml:"recognition"`
	Resolve       ResolveConfig     `toml:"resolve"`
	Validation    ValidationConfig  `toml:"validation"`
	Record        RecordConfig      `toml:"record"`
}

type LoggingConfig struct {
	Level  string `toml:"level" validate:"oneof=trace debug info warn error"`
	Format string `toml:"format" validate:"oneof=console json"`
}

type MatchingConfig struct {
	MinRequiredCoverage float64 `toml:"min_required_coverage" validate:"gt=0,lte=1"`
	ConsistencyRatio    float64 `toml:"consistency_ratio" validate:"gt=0,lte=1"`
	AnchorTolerance     float64 `toml:"anchor_tolerance" validate:"gte=0,lt=1"` // edit distance ratio for label matching
}

type RecognitionConfig struct {
	Timeout      string  `toml:"timeout" validate:"duration"`       // e.g. "10s" - per attempt
	Retries      int     `toml:"retries" validate:"gte=0,lte=5"`    // extra attempts after a failure
	RetryBackoff string  `toml:"retry_backoff" validate:"duration"` // e.g. "250ms"
	RateLimit    float64 `toml:"rate_limit" validate:"gte=0"`       // calls per second, 0 = unlimited
	Burst        int     `toml:"burst" validate:"gte=0"`
	DPI          float64 `toml:"dpi" validate:"gte=72,lte=1200"` // resolution regions are rendered at
}

type ResolveConfig struct {
	Concurrency          int    `toml:"concurrency" validate:"gte=1,lte=64"` // fields resolved at once per document
	DefaultDimensionUnit string `toml:"default_dimension_unit" validate:"oneof=mm cm m in ft"`
}

type ValidationConfig struct {
	ArithmeticTolerance float64 `toml:"arithmetic_tolerance" validate:"gte=0,lt=1"`
	AreaTolerance       float64 `toml:"area_tolerance" validate:"gte=0,lt=1"`
	TotalTolerance      float64 `toml:"total_tolerance" validate:"gte=0,lt=1"`
	ReviewConfidence    float64 `toml:"review_confidence" validate:"gte=0,lte=1"`
}

type RecordConfig struct {
	Aggregation string             `toml:"aggregation" validate:"oneof=min mean weighted"`
	Weights     map[string]float64 `toml:"weights" validate:"dive,gte=0"`
}

// NewDefaultConfig returns the configuration New uses.
func NewDefaultConfig() *Config {
	opts := defaultOptions()
	return &Config{
		Concurrency: opts.concurrency,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Matching: MatchingConfig{
			MinRequiredCoverage: opts.match.MinRequiredCoverage,
			ConsistencyRatio:    opts.match.ConsistencyRatio,
			AnchorTolerance:     opts.match.Anchor.ToleranceRatio,
		},
		Recognition: RecognitionConfig{
			Timeout:      opts.recognition.Timeout.String(),
			Retries:      opts.recognition.Retries,
			RetryBackoff: opts.recognition.RetryBackoff.String(),
			RateLimit:    opts.recognition.RateLimit,
			Burst:        opts.recognition.Burst,
			DPI:          opts.recognition.Scale * 72,
		},
		Resolve: ResolveConfig{
			Concurrency:          opts.resolve.Concurrency,
			DefaultDimensionUnit: opts.resolve.DefaultDimensionUnit,
		},
		Validation: ValidationConfig{
			ArithmeticTolerance: opts.validate.ArithmeticTolerance,
			AreaTolerance:       opts.validate.AreaTolerance,
			TotalTolerance:      opts.validate.TotalTolerance,
			ReviewConfidence:    opts.validate.ReviewConfidence,
		},
		Record: RecordConfig{
			Aggregation: string(opts.record.Aggregation),
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults, then each file
// in order (later files override earlier ones), then SQEXTRACT_*
// environment variables. The result is validated.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if catalog := os.Getenv("SQEXTRACT_CATALOG"); catalog != "" {
		config.Catalog = catalog
	}
	if samples := os.Getenv("SQEXTRACT_SAMPLES"); samples != "" {
		config.Samples = strings.Split(samples, string(os.PathListSeparator))
	}
	if concurrency := os.Getenv("SQEXTRACT_CONCURRENCY"); concurrency != "" {
		if n, err := strconv.Atoi(concurrency); err == nil {
			config.Concurrency = n
		}
	}
	if emit := os.Getenv("SQEXTRACT_EMIT_UNMATCHED"); emit != "" {
		if b, err := strconv.ParseBool(emit); err == nil {
			config.EmitUnmatched = b
		}
	}

	// Logging
	if level := os.Getenv("SQEXTRACT_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("SQEXTRACT_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	// Recognition
	if timeout := os.Getenv("SQEXTRACT_RECOGNITION_TIMEOUT"); timeout != "" {
		config.Recognition.Timeout = timeout
	}
	if retries := os.Getenv("SQEXTRACT_RECOGNITION_RETRIES"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil {
			config.Recognition.Retries = n
		}
	}
	if limit := os.Getenv("SQEXTRACT_RECOGNITION_RATE_LIMIT"); limit != "" {
		if f, err := strconv.ParseFloat(limit, 64); err == nil {
			config.Recognition.RateLimit = f
		}
	}

	if aggregation := os.Getenv("SQEXTRACT_AGGREGATION"); aggregation != "" {
		config.Record.Aggregation = aggregation
	}
}

var configValidator = func() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d >= 0
	})
	return v
}()

// Validate checks every value is in range.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// apply copies the configuration onto engine options. c must be valid.
func (c *Config) apply(opts *engineOptions) {
	opts.concurrency = c.Concurrency
	opts.emitUnmatched = c.EmitUnmatched

	opts.match.MinRequiredCoverage = c.Matching.MinRequiredCoverage
	opts.match.ConsistencyRatio = c.Matching.ConsistencyRatio
	opts.match.Anchor.ToleranceRatio = c.Matching.AnchorTolerance

	opts.recognition.Timeout, _ = time.ParseDuration(c.Recognition.Timeout)
	opts.recognition.RetryBackoff, _ = time.ParseDuration(c.Recognition.RetryBackoff)
	opts.recognition.Retries = c.Recognition.Retries
	opts.recognition.RateLimit = c.Recognition.RateLimit
	opts.recognition.Burst = c.Recognition.Burst
	opts.recognition.Scale = c.Recognition.DPI / 72

	opts.resolve.Concurrency = c.Resolve.Concurrency
	opts.resolve.DefaultDimensionUnit = c.Resolve.DefaultDimensionUnit

	opts.validate.ArithmeticTolerance = c.Validation.ArithmeticTolerance
	opts.validate.AreaTolerance = c.Validation.AreaTolerance
	opts.validate.TotalTolerance = c.Validation.TotalTolerance
	opts.validate.ReviewConfidence = c.Validation.ReviewConfidence

	opts.record.Aggregation = record.Aggregation(c.Record.Aggregation)
	opts.record.Weights = c.Record.Weights
}
