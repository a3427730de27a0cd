package analytics

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSummarizeGroupsAndAverages(t *testing.T) {
	records := []Record{
		{Sentiment: "positive", PositiveScore: 0.9, NeutralScore: 0.05, NegativeScore: 0.05},
		{Sentiment: "positive", PositiveScore: 0.7, NeutralScore: 0.15, NegativeScore: 0.15},
		{Sentiment: "negative", PositiveScore: 0.1, NeutralScore: 0.1, NegativeScore: 0.8},
		{Sentiment: "mixed", PositiveScore: 0.4, NeutralScore: 0.2, NegativeScore: 0.4},
	}

	rows := Summarize(records)
	if len(rows) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(rows))
	}

	// Fixed report order: positive, neutral, negative, mixed.
	if rows[0].Sentiment != "positive" || rows[1].Sentiment != "negative" || rows[2].Sentiment != "mixed" {
		t.Fatalf("unexpected order: %v, %v, %v", rows[0].Sentiment, rows[1].Sentiment, rows[2].Sentiment)
	}

	positive := rows[0]
	if positive.Count != 2 {
		t.Fatalf("expected 2 positive records, got %d", positive.Count)
	}
	if !almostEqual(positive.AvgPositive, 0.8) || !almostEqual(positive.AvgNeutral, 0.1) || !almostEqual(positive.AvgNegative, 0.1) {
		t.Fatalf("unexpected positive averages: %+v", positive)
	}

	negative := rows[1]
	if negative.Count != 1 || !almostEqual(negative.AvgNegative, 0.8) {
		t.Fatalf("unexpected negative row: %+v", negative)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	if rows := Summarize(nil); len(rows) != 0 {
		t.Fatalf("expected no rows, got %+v", rows)
	}
}

func TestSummarizeUnknownLabelSortsLast(t *testing.T) {
	rows := Summarize([]Record{
		{Sentiment: "zeta"},
		{Sentiment: "positive"},
	})
	if rows[0].Sentiment != "positive" || rows[1].Sentiment != "zeta" {
		t.Fatalf("unexpected order: %+v", rows)
	}
}
