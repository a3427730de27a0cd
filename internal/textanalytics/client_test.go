package textanalytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL, "test-key", 5*time.Second)
}

func TestAnalyzeSentimentResolvesOpinions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Ocp-Apim-Subscription-Key"); got != "test-key" {
			t.Errorf("missing subscription key header, got %q", got)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["kind"] != "SentimentAnalysis" {
			t.Errorf("expected SentimentAnalysis kind, got %v", req["kind"])
		}
		params, _ := req["parameters"].(map[string]any)
		if params["opinionMining"] != true {
			t.Errorf("expected opinionMining=true, got %v", params["opinionMining"])
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"kind": "SentimentAnalysisResults",
			"results": {
				"documents": [{
					"id": "0",
					"sentiment": "negative",
					"confidenceScores": {"positive": 0.05, "neutral": 0.05, "negative": 0.9},
					"sentences": [{
						"text": "The wifi was terrible.",
						"sentiment": "negative",
						"confidenceScores": {"positive": 0.01, "neutral": 0.04, "negative": 0.95},
						"targets": [{
							"text": "wifi",
							"sentiment": "negative",
							"confidenceScores": {"positive": 0.02, "neutral": 0.0, "negative": 0.98},
							"relations": [{"relationType": "assessment", "ref": "#/documents/0/sentences/0/assessments/0"}]
						}],
						"assessments": [{
							"text": "terrible",
							"sentiment": "negative",
							"confidenceScores": {"positive": 0.0, "neutral": 0.0, "negative": 1.0}
						}]
					}]
				}],
				"errors": []
			}
		}`))
	})

	results, err := client.AnalyzeSentiment(context.Background(), []string{"The wifi was terrible."}, true)
	if err != nil {
		t.Fatalf("AnalyzeSentiment failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	doc := results[0]
	if doc.IsError {
		t.Fatalf("unexpected document error: %+v", doc.Error)
	}
	if doc.Sentiment != "negative" || doc.ConfidenceScores.Negative != 0.9 {
		t.Fatalf("unexpected document result: %+v", doc)
	}
	if len(doc.Sentences) != 1 || len(doc.Sentences[0].Opinions) != 1 {
		t.Fatalf("expected one resolved opinion, got %+v", doc.Sentences)
	}
	opinion := doc.Sentences[0].Opinions[0]
	if opinion.TargetText != "wifi" || opinion.TargetSentiment != "negative" {
		t.Fatalf("unexpected opinion target: %+v", opinion)
	}
	if len(opinion.Assessments) != 1 || opinion.Assessments[0].Text != "terrible" {
		t.Fatalf("assessment ref not resolved: %+v", opinion.Assessments)
	}
}

func TestAnalyzeSentimentPerDocumentError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"results": {
				"documents": [],
				"errors": [{"id": "0", "error": {"code": "InvalidDocument", "message": "Document text is empty."}}]
			}
		}`))
	})

	results, err := client.AnalyzeSentiment(context.Background(), []string{""}, true)
	if err != nil {
		t.Fatalf("AnalyzeSentiment failed: %v", err)
	}
	if !results[0].IsError {
		t.Fatal("expected a per-document error")
	}
	if results[0].Error.Code != "InvalidDocument" {
		t.Fatalf("unexpected error detail: %+v", results[0].Error)
	}
}

func TestExtractKeyPhrases(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["kind"] != "KeyPhraseExtraction" {
			t.Errorf("expected KeyPhraseExtraction kind, got %v", req["kind"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"results": {
				"documents": [{"id": "0", "keyPhrases": ["room service", "front desk"]}],
				"errors": []
			}
		}`))
	})

	results, err := client.ExtractKeyPhrases(context.Background(), []string{"Room service was quick but the front desk lost my booking."})
	if err != nil {
		t.Fatalf("ExtractKeyPhrases failed: %v", err)
	}
	if len(results) != 1 || results[0].IsError {
		t.Fatalf("unexpected results: %+v", results)
	}
	if len(results[0].KeyPhrases) != 2 || results[0].KeyPhrases[0] != "room service" {
		t.Fatalf("unexpected key phrases: %+v", results[0].KeyPhrases)
	}
}

func TestTransportFailureReturnsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"code": "401", "message": "Access denied"}}`))
	})

	if _, err := client.AnalyzeSentiment(context.Background(), []string{"hello"}, false); err == nil {
		t.Fatal("expected an error on 401 response")
	}
	if _, err := client.ExtractKeyPhrases(context.Background(), []string{"hello"}); err == nil {
		t.Fatal("expected an error on 401 response")
	}
}
