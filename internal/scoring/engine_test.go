package scoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fixedThreshold int

func (f fixedThreshold) AIThreshold(_ context.Context, _ int) int { return int(f) }

func TestFallbackScoreDeterministic(t *testing.T) {
	notes := strings.Repeat("storyboard frame notes ", 12)
	first := FallbackScore("sub-001", notes, true)
	for i := 0; i < 10; i++ {
		if got := FallbackScore("sub-001", notes, true); got != first {
			t.Fatalf("score changed between calls: %d != %d", got, first)
		}
	}
}

func TestFallbackScoreBounds(t *testing.T) {
	cases := []struct {
		id         string
		notes      string
		attachment bool
	}{
		{"a", "", false},
		{"b", "x", false},
		{"c", strings.Repeat("y", 150), true},
		{"d", strings.Repeat("z", 500), true},
		{"e", "short note here ok", false},
	}
	for _, tc := range cases {
		score := FallbackScore(tc.id, tc.notes, tc.attachment)
		if score < 0 || score > 100 {
			t.Fatalf("score %d out of range for %q", score, tc.id)
		}
	}
}

func TestFallbackScoreSubstantiveSubmissionPasses(t *testing.T) {
	// Band floor 50 plus the >=120-char and attachment bonuses puts any
	// hash outcome at 60 or above; most land comfortably past 70.
	notes := strings.Repeat("detailed concept art direction with palette references. ", 5)
	if len(notes) < 250 {
		t.Fatalf("fixture notes too short: %d", len(notes))
	}
	score := FallbackScore("submission-passing", notes, true)
	if score < 60 {
		t.Fatalf("substantive submission scored %d, want >= 60", score)
	}
}

func TestFallbackScoreTrivialNotesPenalized(t *testing.T) {
	id := "same-id"
	trivial := FallbackScore(id, "ok", false)
	solid := FallbackScore(id, strings.Repeat("w", 150), false)
	if solid-trivial != trivialPenalty+notesBonus {
		t.Fatalf("penalty spread = %d, want %d", solid-trivial, trivialPenalty+notesBonus)
	}
}

func TestEngineUsesProviderVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"score\":88,\"feedback\":\"Strong work.\",\"verdict\":\"approved\"}"}}]}`))
	}))
	defer srv.Close()

	eng := Engine{
		Provider:         NewProvider(ProviderConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "studio-critic"}),
		Thresholds:       fixedThreshold(70),
		DefaultThreshold: 70,
	}
	res := eng.Score(context.Background(), Input{SubmissionID: "sub-9", TaskTitle: "Key art", Notes: "final pass attached"})
	if res.Source != SourceProvider {
		t.Fatalf("source = %q, want provider", res.Source)
	}
	if res.Score != 88 || !res.Approved {
		t.Fatalf("got score=%d approved=%v", res.Score, res.Approved)
	}
	if res.Feedback != "Strong work." {
		t.Fatalf("feedback = %q", res.Feedback)
	}
}

func TestEngineClampsProviderScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"score\":140,\"feedback\":\"\",\"verdict\":\"bogus\"}"}}]}`))
	}))
	defer srv.Close()

	eng := Engine{
		Provider:         NewProvider(ProviderConfig{BaseURL: srv.URL, APIKey: "k"}),
		DefaultThreshold: 70,
	}
	res := eng.Score(context.Background(), Input{SubmissionID: "sub-10", Notes: "n"})
	if res.Score != 100 {
		t.Fatalf("score = %d, want clamped 100", res.Score)
	}
	if !res.Approved {
		t.Fatal("clamped 100 against threshold 70 should approve")
	}
	if res.Feedback == "" {
		t.Fatal("expected synthesized feedback for empty provider feedback")
	}
}

func TestEngineFallsBackOnMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"sorry, I cannot respond in JSON"}}]}`))
	}))
	defer srv.Close()

	eng := Engine{
		Provider:         NewProvider(ProviderConfig{BaseURL: srv.URL, APIKey: "k"}),
		DefaultThreshold: 70,
	}
	res := eng.Score(context.Background(), Input{SubmissionID: "sub-11", Notes: strings.Repeat("n", 130)})
	if res.Source != SourceFallback {
		t.Fatalf("source = %q, want fallback", res.Source)
	}
	want := FallbackScore("sub-11", strings.Repeat("n", 130), false)
	if res.Score != want {
		t.Fatalf("fallback score = %d, want %d", res.Score, want)
	}
}

func TestEngineFallsBackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	eng := Engine{
		Provider:         NewProvider(ProviderConfig{BaseURL: srv.URL, APIKey: "k"}),
		DefaultThreshold: 70,
	}
	res := eng.Score(context.Background(), Input{SubmissionID: "sub-12", Notes: "notes"})
	if res.Source != SourceFallback {
		t.Fatalf("source = %q, want fallback", res.Source)
	}
}

func TestEngineWithoutProviderUsesFallback(t *testing.T) {
	eng := Engine{DefaultThreshold: 70}
	res := eng.Score(context.Background(), Input{SubmissionID: "sub-13", Notes: "plain notes without provider"})
	if res.Source != SourceFallback {
		t.Fatalf("source = %q, want fallback", res.Source)
	}
	if res.Threshold != 70 {
		t.Fatalf("threshold = %d, want default 70", res.Threshold)
	}
}

func TestDecodeProviderJSONHandlesCodeFence(t *testing.T) {
	var v providerVerdict
	payload := "```json\n{\"score\": 75, \"feedback\": \"fine\", \"verdict\": \"approved\"}\n```"
	if err := decodeProviderJSON(payload, &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Score != 75 || v.Verdict != "approved" {
		t.Fatalf("parsed %+v", v)
	}
}
