package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical placement defaults file.
const DefaultConfigPath = "config/placement.defaults.json"

// PlacementConfig is the daemon and core configuration. Every field is a
// pointer so a partial file only overrides what it names; the Get* methods
// supply defaults for the rest.
type PlacementConfig struct {
	// Placement protocol
	PreviewStep  *bool    `json:"preview_step,omitempty"`
	ContentScale *float64 `json:"content_scale,omitempty"`

	// Session
	FrameRateHz *float64 `json:"frame_rate_hz,omitempty"`
	EndTimeout  *string  `json:"end_timeout,omitempty"` // duration string like "2s"

	// Diagnostics
	JournalPath     *string `json:"journal_path,omitempty"`
	TraceDir        *string `json:"trace_dir,omitempty"`
	TraceMaxSamples *int    `json:"trace_max_samples,omitempty"`
	DebugLogging    *bool   `json:"debug_logging,omitempty"`

	// Listeners; empty disables.
	HTTPListen *string `json:"http_listen,omitempty"`
	GRPCListen *string `json:"grpc_listen,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// DefaultPlacementConfig returns a config with every field set to its default.
func DefaultPlacementConfig() *PlacementConfig {
	return &PlacementConfig{
		PreviewStep:     ptrBool(true),
		ContentScale:    ptrFloat64(1.0),
		FrameRateHz:     ptrFloat64(60),
		EndTimeout:      ptrString("2s"),
		JournalPath:     ptrString("anchorpoint.db"),
		TraceDir:        ptrString(""),
		TraceMaxSamples: ptrInt(600),
		DebugLogging:    ptrBool(false),
		HTTPListen:      ptrString("localhost:8088"),
		GRPCListen:      ptrString("localhost:50061"),
	}
}

// LoadPlacementConfig loads a PlacementConfig from a JSON file with a .json
// extension no larger than 1MB. Omitted fields keep their defaults.
func LoadPlacementConfig(path string) (*PlacementConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &PlacementConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or a parent. Panics if not found; intended for tests and the daemon.
func MustLoadDefaultConfig() *PlacementConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadPlacementConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run from repository root")
}

// Validate checks that set values are in range.
func (c *PlacementConfig) Validate() error {
	if c.ContentScale != nil && *c.ContentScale <= 0 {
		return fmt.Errorf("content_scale must be positive, got %f", *c.ContentScale)
	}
	if c.FrameRateHz != nil && (*c.FrameRateHz <= 0 || *c.FrameRateHz > 240) {
		return fmt.Errorf("frame_rate_hz must be in (0, 240], got %f", *c.FrameRateHz)
	}
	if c.EndTimeout != nil && *c.EndTimeout != "" {
		d, err := time.ParseDuration(*c.EndTimeout)
		if err != nil {
			return fmt.Errorf("invalid end_timeout '%s': %w", *c.EndTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("end_timeout must be positive, got %s", d)
		}
	}
	if c.TraceMaxSamples != nil && *c.TraceMaxSamples < 0 {
		return fmt.Errorf("trace_max_samples must be non-negative, got %d", *c.TraceMaxSamples)
	}
	return nil
}

// GetPreviewStep returns preview_step or the default.
func (c *PlacementConfig) GetPreviewStep() bool {
	if c.PreviewStep == nil {
		return true
	}
	return *c.PreviewStep
}

// GetContentScale returns content_scale or the default.
func (c *PlacementConfig) GetContentScale() float64 {
	if c.ContentScale == nil {
		return 1.0
	}
	return *c.ContentScale
}

// GetFrameRateHz returns frame_rate_hz or the default.
func (c *PlacementConfig) GetFrameRateHz() float64 {
	if c.FrameRateHz == nil {
		return 60
	}
	return *c.FrameRateHz
}

// GetEndTimeout parses end_timeout, falling back to 2s.
func (c *PlacementConfig) GetEndTimeout() time.Duration {
	if c.EndTimeout == nil || *c.EndTimeout == "" {
		return 2 * time.Second
	}
	d, err := time.ParseDuration(*c.EndTimeout)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// GetJournalPath returns journal_path or the default.
func (c *PlacementConfig) GetJournalPath() string {
	if c.JournalPath == nil {
		return "anchorpoint.db"
	}
	return *c.JournalPath
}

// GetTraceDir returns trace_dir; empty disables PNG export.
func (c *PlacementConfig) GetTraceDir() string {
	if c.TraceDir == nil {
		return ""
	}
	return *c.TraceDir
}

// GetTraceMaxSamples returns trace_max_samples or the default.
func (c *PlacementConfig) GetTraceMaxSamples() int {
	if c.TraceMaxSamples == nil {
		return 600
	}
	return *c.TraceMaxSamples
}

// GetDebugLogging returns debug_logging or the default.
func (c *PlacementConfig) GetDebugLogging() bool {
	if c.DebugLogging == nil {
		return false
	}
	return *c.DebugLogging
}

// GetHTTPListen returns http_listen or the default.
func (c *PlacementConfig) GetHTTPListen() string {
	if c.HTTPListen == nil {
		return "localhost:8088"
	}
	return *c.HTTPListen
}

// GetGRPCListen returns grpc_listen or the default.
func (c *PlacementConfig) GetGRPCListen() string {
	if c.GRPCListen == nil {
		return "localhost:50061"
	}
	return *c.GRPCListen
}
