package config_test

import (
	"strings"
	"testing"

	"lumenforge/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default("studio-1")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Review.AIConfidenceThreshold != 70 {
		t.Fatalf("expected threshold 70, got %d", cfg.Review.AIConfidenceThreshold)
	}
	if cfg.Rewards.Method != "platform" {
		t.Fatalf("unexpected rewards method %q", cfg.Rewards.Method)
	}
}

func TestFromYAMLRejectsBadThreshold(t *testing.T) {
	raw := strings.Replace(config.GenerateDefault("studio-1"), "ai_confidence_threshold: 70", "ai_confidence_threshold: 140", 1)
	if _, err := config.FromYAML([]byte(raw)); err == nil {
		t.Fatalf("expected threshold range error")
	}
}

func TestFromYAMLRequiresStudioID(t *testing.T) {
	if _, err := config.FromYAML([]byte("review:\n  ai_confidence_threshold: 70\n")); err == nil {
		t.Fatalf("expected missing studio id error")
	}
}
