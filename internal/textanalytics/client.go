// Package textanalytics is a thin REST client for the Azure AI Language
// service. It covers the two operations this system consumes: sentiment
// analysis with opinion mining, and key phrase extraction.
package textanalytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const apiVersion = "2023-04-01"

// ConfidenceScores are the provider's per-class scores for one unit of text.
type ConfidenceScores struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

// Assessment is one opinion phrase the provider attached to a target.
type Assessment struct {
	Text             string           `json:"text"`
	Sentiment        string           `json:"sentiment"`
	ConfidenceScores ConfidenceScores `json:"confidenceScores"`
}

// MinedOpinion pairs an aspect target with its assessments, with the wire
// format's assessment references already resolved.
type MinedOpinion struct {
	TargetText       string
	TargetSentiment  string
	ConfidenceScores ConfidenceScores
	Assessments      []Assessment
}

// Sentence is one analyzed sentence of a document.
type Sentence struct {
	Text             string
	Sentiment        string
	ConfidenceScores ConfidenceScores
	Opinions         []MinedOpinion
}

// DocumentError is the provider's per-document failure detail.
type DocumentError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SentimentResult is the outcome of analyzing one document. When IsError is
// set the remaining fields are zero and Error carries the provider detail.
type SentimentResult struct {
	Sentiment        string
	ConfidenceScores ConfidenceScores
	Sentences        []Sentence
	IsError          bool
	Error            *DocumentError
}

// KeyPhraseResult is the outcome of key phrase extraction for one document.
type KeyPhraseResult struct {
	KeyPhrases []string
	IsError    bool
	Error      *DocumentError
}

// Client calls the Language service REST endpoint.
type Client struct {
	endpoint   string
	key        string
	httpClient *http.Client
}

// New builds a client for the given resource endpoint and subscription key.
func New(endpoint, key string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		key:        key,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type analyzeRequest struct {
	Kind          string         `json:"kind"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	AnalysisInput analysisInput  `json:"analysisInput"`
}

type analysisInput struct {
	Documents []inputDocument `json:"documents"`
}

type inputDocument struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Text     string `json:"text"`
}

type wireRelation struct {
	RelationType string `json:"relationType"`
	Ref          string `json:"ref"`
}

type wireTarget struct {
	Text             string           `json:"text"`
	Sentiment        string           `json:"sentiment"`
	ConfidenceScores ConfidenceScores `json:"confidenceScores"`
	Relations        []wireRelation   `json:"relations"`
}

type wireSentence struct {
	Text             string           `json:"text"`
	Sentiment        string           `json:"sentiment"`
	ConfidenceScores ConfidenceScores `json:"confidenceScores"`
	Targets          []wireTarget     `json:"targets"`
	Assessments      []Assessment     `json:"assessments"`
}

type wireSentimentDocument struct {
	ID               string           `json:"id"`
	Sentiment        string           `json:"sentiment"`
	ConfidenceScores ConfidenceScores `json:"confidenceScores"`
	Sentences        []wireSentence   `json:"sentences"`
}

type wireKeyPhraseDocument struct {
	ID         string   `json:"id"`
	KeyPhrases []string `json:"keyPhrases"`
}

type wireDocumentError struct {
	ID    string        `json:"id"`
	Error DocumentError `json:"error"`
}

type sentimentResponse struct {
	Results struct {
		Documents []wireSentimentDocument `json:"documents"`
		Errors    []wireDocumentError     `json:"errors"`
	} `json:"results"`
}

type keyPhraseResponse struct {
	Results struct {
		Documents []wireKeyPhraseDocument `json:"documents"`
		Errors    []wireDocumentError     `json:"errors"`
	} `json:"results"`
}

// AnalyzeSentiment runs sentiment analysis over the documents, optionally
// with opinion mining. Results are positional: index i corresponds to
// documents[i]. A transport or service-level failure returns an error;
// per-document failures surface as IsError entries.
func (c *Client) AnalyzeSentiment(ctx context.Context, documents []string, opinionMining bool) ([]SentimentResult, error) {
	req := analyzeRequest{
		Kind: "SentimentAnalysis",
		Parameters: map[string]any{
			"opinionMining": opinionMining,
		},
		AnalysisInput: analysisInput{Documents: buildInput(documents)},
	}

	var resp sentimentResponse
	if err := c.post(ctx, req, &resp); err != nil {
		return nil, err
	}

	results := make([]SentimentResult, len(documents))
	for _, doc := range resp.Results.Documents {
		idx, ok := docIndex(doc.ID, len(documents))
		if !ok {
			continue
		}
		results[idx] = SentimentResult{
			Sentiment:        doc.Sentiment,
			ConfidenceScores: doc.ConfidenceScores,
			Sentences:        resolveSentences(doc.Sentences),
		}
	}
	applyErrors(resp.Results.Errors, len(documents), func(idx int, e DocumentError) {
		results[idx] = SentimentResult{IsError: true, Error: &e}
	})
	return results, nil
}

// ExtractKeyPhrases extracts key phrases for each document, positionally.
func (c *Client) ExtractKeyPhrases(ctx context.Context, documents []string) ([]KeyPhraseResult, error) {
	req := analyzeRequest{
		Kind:          "KeyPhraseExtraction",
		AnalysisInput: analysisInput{Documents: buildInput(documents)},
	}

	var resp keyPhraseResponse
	if err := c.post(ctx, req, &resp); err != nil {
		return nil, err
	}

	results := make([]KeyPhraseResult, len(documents))
	for _, doc := range resp.Results.Documents {
		idx, ok := docIndex(doc.ID, len(documents))
		if !ok {
			continue
		}
		results[idx] = KeyPhraseResult{KeyPhrases: doc.KeyPhrases}
	}
	applyErrors(resp.Results.Errors, len(documents), func(idx int, e DocumentError) {
		results[idx] = KeyPhraseResult{IsError: true, Error: &e}
	})
	return results, nil
}

func (c *Client) post(ctx context.Context, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/language/:analyze-text?api-version=%s", c.endpoint, apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call language service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("language service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func buildInput(documents []string) []inputDocument {
	input := make([]inputDocument, len(documents))
	for i, text := range documents {
		input[i] = inputDocument{ID: strconv.Itoa(i), Language: "en", Text: text}
	}
	return input
}

func docIndex(id string, n int) (int, bool) {
	idx, err := strconv.Atoi(id)
	if err != nil || idx < 0 || idx >= n {
		return 0, false
	}
	return idx, true
}

func applyErrors(errs []wireDocumentError, n int, set func(int, DocumentError)) {
	for _, e := range errs {
		if idx, ok := docIndex(e.ID, n); ok {
			set(idx, e.Error)
		}
	}
}

// resolveSentences dereferences the wire format's assessment relations
// ("#/documents/i/sentences/j/assessments/k") into opinions with their
// assessments inlined, the shape the rest of the pipeline consumes.
func resolveSentences(sentences []wireSentence) []Sentence {
	out := make([]Sentence, len(sentences))
	for i, ws := range sentences {
		sentence := Sentence{
			Text:             ws.Text,
			Sentiment:        ws.Sentiment,
			ConfidenceScores: ws.ConfidenceScores,
		}
		for _, target := range ws.Targets {
			opinion := MinedOpinion{
				TargetText:       target.Text,
				TargetSentiment:  target.Sentiment,
				ConfidenceScores: target.ConfidenceScores,
			}
			for _, rel := range target.Relations {
				if rel.RelationType != "assessment" {
					continue
				}
				if a, ok := lookupAssessment(sentences, rel.Ref); ok {
					opinion.Assessments = append(opinion.Assessments, a)
				}
			}
			sentence.Opinions = append(sentence.Opinions, opinion)
		}
		out[i] = sentence
	}
	return out
}

func lookupAssessment(sentences []wireSentence, ref string) (Assessment, bool) {
	// Refs look like #/documents/0/sentences/1/assessments/2; only the
	// sentence and assessment indexes matter within a single document.
	parts := strings.Split(strings.TrimPrefix(ref, "#/"), "/")
	sentenceIdx, assessmentIdx := -1, -1
	for i := 0; i+1 < len(parts); i += 2 {
		idx, err := strconv.Atoi(parts[i+1])
		if err != nil {
			return Assessment{}, false
		}
		switch parts[i] {
		case "sentences":
			sentenceIdx = idx
		case "assessments":
			assessmentIdx = idx
		}
	}
	if sentenceIdx < 0 || sentenceIdx >= len(sentences) {
		return Assessment{}, false
	}
	assessments := sentences[sentenceIdx].Assessments
	if assessmentIdx < 0 || assessmentIdx >= len(assessments) {
		return Assessment{}, false
	}
	return assessments[assessmentIdx], true
}
