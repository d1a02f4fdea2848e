package sqextract

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tsawler/sqextract/record"
	"github.com/tsawler/sqextract/templates"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewDefaultConfig_IsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "10s", cfg.Recognition.Timeout)
	assert.InDelta(t, 300, cfg.Recognition.DPI, 1e-9)
	assert.Equal(t, "min", cfg.Record.Aggregation)
}

func TestLoadFromFiles(t *testing.T) {
	base := writeFile(t, "base.toml", `
concurrency = 2
emit_unmatched = true

[recognition]
timeout = "3s"
retries = 2

[validation]
arithmetic_tolerance = 0.02
`)
	override := writeFile(t, "override.toml", `
concurrency = 6

[record]
aggregation = "weighted"
weights = { amount = 3.0, qty = 2.0 }
`)

	cfg, err := LoadFromFiles(base, "", override)
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Concurrency)
	assert.True(t, cfg.EmitUnmatched)
	assert.Equal(t, "3s", cfg.Recognition.Timeout)
	assert.Equal(t, 2, cfg.Recognition.Retries)
	assert.Equal(t, "250ms", cfg.Recognition.RetryBackoff, "unset values keep their defaults")
	assert.Equal(t, 0.02, cfg.Validation.ArithmeticTolerance)
	assert.Equal(t, 0.05, cfg.Validation.AreaTolerance)
	assert.Equal(t, "weighted", cfg.Record.Aggregation)
	assert.Equal(t, map[string]float64{"amount": 3, "qty": 2}, cfg.Record.Weights)
}

func TestLoadFromFiles_EnvOverrides(t *testing.T) {
	path := writeFile(t, "config.toml", "concurrency = 2\n")
	t.Setenv("SQEXTRACT_CONCURRENCY", "9")
	t.Setenv("SQEXTRACT_LOG_LEVEL", "debug")
	t.Setenv("SQEXTRACT_RECOGNITION_TIMEOUT", "1m")
	t.Setenv("SQEXTRACT_EMIT_UNMATCHED", "true")
	t.Setenv("SQEXTRACT_AGGREGATION", "mean")

	cfg, err := LoadFromFiles(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Concurrency)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "1m", cfg.Recognition.Timeout)
	assert.True(t, cfg.EmitUnmatched)
	assert.Equal(t, "mean", cfg.Record.Aggregation)
}

func TestLoadFromFiles_Errors(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = LoadFromFiles(writeFile(t, "bad.toml", "concurrency = [\n"))
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad timeout", func(c *Config) { c.Recognition.Timeout = "soon" }},
		{"negative backoff", func(c *Config) { c.Recognition.RetryBackoff = "-1s" }},
		{"too many retries", func(c *Config) { c.Recognition.Retries = 9 }},
		{"low dpi", func(c *Config) { c.Recognition.DPI = 10 }},
		{"coverage above one", func(c *Config) { c.Matching.MinRequiredCoverage = 1.5 }},
		{"unknown unit", func(c *Config) { c.Resolve.DefaultDimensionUnit = "yd" }},
		{"negative tolerance", func(c *Config) { c.Validation.TotalTolerance = -0.1 }},
		{"unknown aggregation", func(c *Config) { c.Record.Aggregation = "max" }},
		{"negative weight", func(c *Config) { c.Record.Weights = map[string]float64{"amount": -1} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestFromConfig(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "catalog.yaml"))
	require.NoError(t, err)
	require.NoError(t, templates.Default().Encode(f))
	require.NoError(t, f.Close())

	cfg := NewDefaultConfig()
	cfg.Catalog = f.Name()
	cfg.Concurrency = 3
	cfg.EmitUnmatched = true
	cfg.Recognition.Timeout = "2s"
	cfg.Recognition.DPI = 144
	cfg.Record.Aggregation = "mean"
	cfg.Logging.Level = "error"

	engine, err := FromConfig(cfg)
	require.NoError(t, err)
	require.NoError(t, engine.Err())

	assert.Equal(t, 3, engine.options.concurrency)
	assert.True(t, engine.options.emitUnmatched)
	assert.Equal(t, 2*time.Second, engine.options.recognition.Timeout)
	assert.InDelta(t, 2.0, engine.options.recognition.Scale, 1e-9)
	assert.Equal(t, record.AggregateMean, engine.options.record.Aggregation)
	require.NotNil(t, engine.Registry().Catalog().Variant("sq-standard"))
}

// writeSample saves a minimal quotation workbook with a product table.
func writeSample(t *testing.T, name string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	cells := map[string]any{
		"A1": "SALES QUOTATION",
		"A3": "Project Name:", "B3": "Acme Tower",
		"D3": "Quotation No:", "E3": "SQ-1001",
		"A4": "Client Name:", "B4": "Acme Corp",
		"D4": "Date:", "E4": "2024-03-01",
		"A6": "S.No", "B6": "Product Description", "C6": "Qty", "D6": "Rate", "E6": "Amount",
		"A7": 1, "B7": "Wardrobe",
		"D9": "Grand Total",
	}
	for cell, v := range cells {
		require.NoError(t, f.SetCellValue("Sheet1", cell, v))
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestFromConfig_Samples(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Samples = []string{writeSample(t, "acme-compact.xlsx")}

	engine, err := FromConfig(cfg)
	require.NoError(t, err)

	catalog := engine.Registry().Catalog()
	require.NotNil(t, catalog.Variant("sq-standard"), "the built-in variants stay first")
	require.NotNil(t, catalog.Variant("acme-compact"))
	assert.Equal(t, "acme-compact", catalog.Variants[len(catalog.Variants)-1].Name)

	cfg.Samples = []string{filepath.Join(t.TempDir(), "missing.xlsx")}
	_, err = FromConfig(cfg)
	assert.ErrorContains(t, err, "failed to open sample")
}

func TestLoadFromFiles_Samples(t *testing.T) {
	path := writeFile(t, "config.toml", `samples = ["a.xlsx", "b.xlsx"]`+"\n")
	cfg, err := LoadFromFiles(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.xlsx", "b.xlsx"}, cfg.Samples)

	t.Setenv("SQEXTRACT_SAMPLES", "c.xlsx")
	cfg, err = LoadFromFiles(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"c.xlsx"}, cfg.Samples)
}

func TestFromConfig_Errors(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Concurrency = -1
	_, err := FromConfig(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = NewDefaultConfig()
	cfg.Catalog = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = FromConfig(cfg)
	assert.Error(t, err)
}
