// Package scoring evaluates contributor submissions. A configured generative
// provider produces the primary verdict; a deterministic local scorer stands
// in whenever the provider is absent, unreachable or returns garbage, so a
// submission always gets a verdict.
package scoring

import (
	"context"
	"log/slog"
	"strings"
)

// Verdict source labels recorded alongside each evaluation.
const (
	SourceProvider = "provider"
	SourceFallback = "fallback"
)

// Input is everything the engine needs to evaluate one submission.
type Input struct {
	SubmissionID    string
	TaskTitle       string
	TaskPhase       string
	TaskDescription string
	Notes           string
	AttachmentRef   string
}

// Result is a complete evaluation. Score is always within [0,100] and
// Approved is always consistent with the threshold in force at call time.
type Result struct {
	Score     int
	Feedback  string
	Approved  bool
	Threshold int
	Source    string
}

// ThresholdSource yields the approval threshold in force for a single
// evaluation. Reading it per call means operators can retune the gate
// without restarting anything.
type ThresholdSource interface {
	AIThreshold(ctx context.Context, fallback int) int
}

// Engine scores submissions.
type Engine struct {
	Provider         *Provider
	Thresholds       ThresholdSource
	DefaultThreshold int
	Logger           *slog.Logger
}

// Score evaluates the submission. It never returns an error: provider
// failures degrade to the deterministic fallback.
func (e Engine) Score(ctx context.Context, in Input) Result {
	threshold := e.threshold(ctx)
	if e.Provider.Configured() {
		verdict, err := e.Provider.Score(ctx, in)
		if err == nil {
			return e.fromProvider(verdict, threshold)
		}
		e.logger().Warn("scoring provider unavailable, using fallback",
			"submission_id", in.SubmissionID,
			"error", err)
	}
	score := FallbackScore(in.SubmissionID, in.Notes, in.AttachmentRef != "")
	return Result{
		Score:     score,
		Feedback:  fallbackFeedback(score, threshold),
		Approved:  score >= threshold,
		Threshold: threshold,
		Source:    SourceFallback,
	}
}

// fromProvider normalizes a raw provider verdict. Out-of-range scores are
// clamped and unrecognized verdict strings are re-derived from the score,
// so malformed provider output never leaks into stored state.
func (e Engine) fromProvider(v providerVerdict, threshold int) Result {
	score := clampScore(v.Score)
	approved := score >= threshold
	switch strings.ToLower(strings.TrimSpace(v.Verdict)) {
	case "approved":
		approved = true
	case "flagged", "rejected":
		approved = false
	}
	feedback := strings.TrimSpace(v.Feedback)
	if feedback == "" {
		feedback = fallbackFeedback(score, threshold)
	}
	return Result{
		Score:     score,
		Feedback:  feedback,
		Approved:  approved,
		Threshold: threshold,
		Source:    SourceProvider,
	}
}

func (e Engine) threshold(ctx context.Context) int {
	if e.Thresholds == nil {
		return e.DefaultThreshold
	}
	return e.Thresholds.AIThreshold(ctx, e.DefaultThreshold)
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
