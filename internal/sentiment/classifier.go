// Package sentiment holds the score normalization logic applied to results
// from the external language service: mapping per-class confidence scores to
// one discrete label, and flattening mined opinions into a stable shape.
package sentiment

// Label is a discrete overall or per-aspect sentiment.
type Label string

const (
	Positive Label = "positive"
	Negative Label = "negative"
	Neutral  Label = "neutral"
	Mixed    Label = "mixed"
)

// Scores carries the per-class confidence scores reported by the provider.
// Each value is in [0,1]; they are not required to sum to 1.
type Scores struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

// DefaultNeutralThreshold is the neutral cut-off used when none is configured.
// The provider reports very small neutral scores for strongly opinionated
// text, so the threshold sits far below the 0.5 used for positive/negative.
const DefaultNeutralThreshold = 0.06

// Classifier maps confidence scores to a label. Thresholds are non-exclusive,
// so evaluation order is part of the contract: positive wins over negative,
// negative over neutral, and anything below every threshold is mixed.
type Classifier struct {
	neutralThreshold float64
}

// NewClassifier returns a classifier with the given neutral threshold.
// A non-positive threshold selects DefaultNeutralThreshold.
func NewClassifier(neutralThreshold float64) Classifier {
	if neutralThreshold <= 0 {
		neutralThreshold = DefaultNeutralThreshold
	}
	return Classifier{neutralThreshold: neutralThreshold}
}

// Classify applies the tie-break policy to one set of scores.
func (c Classifier) Classify(s Scores) Label {
	switch {
	case s.Positive >= 0.5:
		return Positive
	case s.Negative >= 0.5:
		return Negative
	case s.Neutral >= c.neutralThreshold:
		return Neutral
	default:
		return Mixed
	}
}

// NeutralThreshold exposes the configured cut-off, mostly for logging.
func (c Classifier) NeutralThreshold() float64 {
	return c.neutralThreshold
}
