package sentiment

import "feedback/api/internal/textanalytics"

// Assessment is one opinion phrase attached to a target aspect.
type Assessment struct {
	Text      string `json:"text"`
	Sentiment Label  `json:"sentiment"`
	Scores    Scores `json:"scores"`
}

// Opinion is one aspect the provider identified in the document, with zero or
// more assessments. A document may carry an overall sentiment yet yield no
// opinions at all.
type Opinion struct {
	Target      string       `json:"target"`
	Sentiment   Label        `json:"targetSentiment"`
	Assessments []Assessment `json:"assessments"`
}

// AggregateOpinions flattens the provider's per-sentence mined opinions into
// one list for the whole document, preserving sentence order.
func AggregateOpinions(sentences []textanalytics.Sentence) []Opinion {
	var opinions []Opinion
	for _, sentence := range sentences {
		for _, mined := range sentence.Opinions {
			opinion := Opinion{
				Target:    mined.TargetText,
				Sentiment: Label(mined.TargetSentiment),
			}
			for _, a := range mined.Assessments {
				opinion.Assessments = append(opinion.Assessments, Assessment{
					Text:      a.Text,
					Sentiment: Label(a.Sentiment),
					Scores:    ScoresFrom(a.ConfidenceScores),
				})
			}
			opinions = append(opinions, opinion)
		}
	}
	return opinions
}

// ScoresFrom converts the provider's confidence scores into the domain shape.
func ScoresFrom(cs textanalytics.ConfidenceScores) Scores {
	return Scores{Positive: cs.Positive, Neutral: cs.Neutral, Negative: cs.Negative}
}
