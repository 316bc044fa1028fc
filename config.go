package nightjar

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/swdee/go-nightjar/render"
	"github.com/swdee/go-nightjar/tracker"
)

// maxConfigSize is the largest config file accepted
const maxConfigSize = 1 * 1024 * 1024

// Config holds the settings of a Session
type Config struct {
	// HistoryCapacity is the number of center points kept per track
	HistoryCapacity int `json:"history_capacity"`
	// RenderStyle is "annotated" or "minimal"
	RenderStyle string `json:"render_style"`
	// ReconcileMode is "confidence" or "detection_id"
	ReconcileMode string `json:"reconcile_mode"`
	// LabelsFile is the text file of class names, one per line
	LabelsFile string `json:"labels_file"`
	// FontFile is an optional TrueType font for minimal style labels
	FontFile string `json:"font_file"`
	// MaskAlpha is the weight masks are added onto the frame with
	MaskAlpha float32 `json:"mask_alpha"`
	// DisableTracking skips the tracker, detections carry no track IDs
	DisableTracking bool `json:"disable_tracking"`
	// Tracker holds the ByteTrack parameters
	Tracker tracker.Config `json:"tracker"`
	// StorePath is an optional SQLite database recording every frame
	StorePath string `json:"store_path"`
}

// DefaultConfig returns the configuration used for omitted settings
func DefaultConfig() Config {
	return Config{
		HistoryCapacity: tracker.DefaultTrailSize,
		RenderStyle:     render.StyleMinimal,
		ReconcileMode:   tracker.MatchConfidence.String(),
		MaskAlpha:       render.DefaultMaskAlpha,
		Tracker:         tracker.DefaultConfig(),
	}
}

// LoadConfig reads a JSON config file over the defaults
func LoadConfig(path string) (Config, error) {

	cfg := DefaultConfig()
	cleanPath := filepath.Clean(path)

	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return cfg, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)

	if err != nil {
		return cfg, fmt.Errorf("failed to stat config file: %w", err)
	}

	if info.Size() > maxConfigSize {
		return cfg, fmt.Errorf("config file too large: %d bytes (max %d)",
			info.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(cleanPath)

	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings are usable
func (c Config) Validate() error {

	if c.HistoryCapacity < 1 {
		return fmt.Errorf("history_capacity must be at least 1, got %d", c.HistoryCapacity)
	}

	if _, err := tracker.ParseMatchMode(c.ReconcileMode); err != nil {
		return err
	}

	if _, err := render.New(c.RenderStyle); err != nil {
		return err
	}

	if c.MaskAlpha <= 0 || c.MaskAlpha > 1 {
		return fmt.Errorf("mask_alpha must be in (0, 1], got %g", c.MaskAlpha)
	}

	t := c.Tracker

	if t.FrameRate < 1 {
		return fmt.Errorf("tracker.frame_rate must be positive, got %d", t.FrameRate)
	}

	if t.TrackBuffer < 0 {
		return fmt.Errorf("tracker.track_buffer must be non-negative, got %d", t.TrackBuffer)
	}

	for name, v := range map[string]float32{
		"track_thresh": t.TrackThresh,
		"high_thresh":  t.HighThresh,
		"match_thresh": t.MatchThresh,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("tracker.%s must be between 0 and 1, got %g", name, v)
		}
	}

	return nil
}
