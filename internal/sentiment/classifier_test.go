package sentiment

import "testing"

func TestClassifyTieBreakOrder(t *testing.T) {
	c := NewClassifier(DefaultNeutralThreshold)

	tests := []struct {
		name   string
		scores Scores
		want   Label
	}{
		{name: "clear positive", scores: Scores{Positive: 0.6, Neutral: 0.3, Negative: 0.1}, want: Positive},
		{name: "positive wins even when negative also crosses", scores: Scores{Positive: 0.5, Neutral: 0.0, Negative: 0.9}, want: Positive},
		{name: "positive wins even when neutral also crosses", scores: Scores{Positive: 0.5, Neutral: 0.5, Negative: 0.0}, want: Positive},
		{name: "positive at exact boundary", scores: Scores{Positive: 0.5, Neutral: 0.1, Negative: 0.1}, want: Positive},
		{name: "clear negative", scores: Scores{Positive: 0.1, Neutral: 0.2, Negative: 0.7}, want: Negative},
		{name: "negative at exact boundary", scores: Scores{Positive: 0.49, Neutral: 0.01, Negative: 0.5}, want: Negative},
		{name: "neutral above threshold", scores: Scores{Positive: 0.3, Neutral: 0.3, Negative: 0.3}, want: Neutral},
		{name: "neutral at exact threshold", scores: Scores{Positive: 0.4, Neutral: 0.06, Negative: 0.4}, want: Neutral},
		{name: "nothing crosses", scores: Scores{Positive: 0.45, Neutral: 0.01, Negative: 0.45}, want: Mixed},
		{name: "all zeros", scores: Scores{}, want: Mixed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.Classify(tc.scores); got != tc.want {
				t.Fatalf("Classify(%+v) = %s, want %s", tc.scores, got, tc.want)
			}
		})
	}
}

// The neutral cut-off is the one knob that moved across revisions of this
// pipeline; the same scores must flip between neutral and mixed depending on
// the configured value.
func TestClassifyNeutralThresholdSensitivity(t *testing.T) {
	scores := Scores{Positive: 0.2, Neutral: 0.03, Negative: 0.1}

	if got := NewClassifier(0.02).Classify(scores); got != Neutral {
		t.Fatalf("with threshold 0.02 expected neutral, got %s", got)
	}
	if got := NewClassifier(0.06).Classify(scores); got != Mixed {
		t.Fatalf("with threshold 0.06 expected mixed, got %s", got)
	}
}

func TestNewClassifierDefaultsThreshold(t *testing.T) {
	c := NewClassifier(0)
	if c.NeutralThreshold() != DefaultNeutralThreshold {
		t.Fatalf("expected default threshold %v, got %v", DefaultNeutralThreshold, c.NeutralThreshold())
	}
}
