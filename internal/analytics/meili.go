// Package analytics is the append-only analytics store. Every successful
// analysis lands here as one document, decoupled from the durable feedback
// record on purpose: ingestion must never block, or be blocked by, the
// moderation workflow. Writes are best-effort.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"

	"feedback/api/internal/sentiment"
)

const idxAnalytics = "feedback_analytics"

// ErrUnavailable is returned when the document store is unreachable. Callers
// treat it as a logged, swallowed failure.
var ErrUnavailable = errors.New("analytics store unavailable")

// Record is one analysis event. It correlates with a feedback submission
// only by content and time; there is intentionally no foreign key.
type Record struct {
	ID            string              `json:"id"`
	FeedbackText  string              `json:"feedbackText"`
	Sentiment     string              `json:"overallSentiment"`
	PositiveScore float64             `json:"positiveScore"`
	NeutralScore  float64             `json:"neutralScore"`
	NegativeScore float64             `json:"negativeScore"`
	KeyPhrases    []string            `json:"keyPhrases"`
	Opinions      []sentiment.Opinion `json:"opinions"`
	Timestamp     time.Time           `json:"timestamp"`
	UserID        string              `json:"userId"`
}

// SummaryRow is one group of the sentiment report: how many analyses landed
// on a label and the average per-class scores within the group.
type SummaryRow struct {
	Sentiment   string  `json:"sentiment"`
	Count       int     `json:"count"`
	AvgPositive float64 `json:"avgPositive"`
	AvgNeutral  float64 `json:"avgNeutral"`
	AvgNegative float64 `json:"avgNegative"`
}

// Store wraps the Meilisearch index holding analytics documents.
type Store struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
	logger  *zap.Logger
}

// New creates the store and configures the index. An unreachable service is
// not an error: the store starts degraded and a background loop keeps
// probing, matching the best-effort contract of this data path.
func New(url, apiKey string, logger *zap.Logger) *Store {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	s := &Store{
		client: client,
		done:   make(chan struct{}),
		logger: logger,
	}

	if _, err := client.Health(); err != nil {
		logger.Warn("analytics store unavailable, starting degraded", zap.String("url", url), zap.Error(err))
		s.healthy.Store(false)
	} else {
		s.healthy.Store(true)
		s.configureIndex()
	}

	go s.healthLoop()
	return s
}

func (s *Store) configureIndex() {
	if _, err := s.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxAnalytics,
		PrimaryKey: "id",
	}); err != nil {
		s.logger.Debug("create analytics index (may already exist)", zap.Error(err))
	}

	index := s.client.Index(idxAnalytics)
	filterable := []interface{}{"overallSentiment", "userId"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		s.logger.Warn("update filterable attributes", zap.Error(err))
	}
}

func (s *Store) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			_, err := s.client.Health()
			wasHealthy := s.healthy.Load()
			s.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				s.logger.Info("analytics store recovered, reconfiguring index")
				s.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (s *Store) Close() {
	close(s.done)
}

// Healthy reports whether the document store is reachable.
func (s *Store) Healthy() bool {
	return s.healthy.Load()
}

// Append inserts one analysis document. Each call writes a new document with
// its own id; nothing is ever updated or deleted.
func (s *Store) Append(ctx context.Context, record Record) error {
	if !s.healthy.Load() {
		return ErrUnavailable
	}
	if _, err := s.client.Index(idxAnalytics).AddDocuments([]Record{record}, nil); err != nil {
		s.healthy.Store(false)
		return fmt.Errorf("append analytics record: %w", err)
	}
	return nil
}

const summaryPageSize = 1000

// SentimentSummary groups all analytics documents by sentiment and averages
// their per-class scores. Meilisearch has no server-side aggregates, so the
// documents are paged down and folded in memory; volumes here are analysis
// events, not raw traffic, which keeps this tractable. The documents endpoint
// is used rather than search: search pagination is capped by the index's
// maxTotalHits setting and would silently drop records past the cap.
func (s *Store) SentimentSummary(ctx context.Context) ([]SummaryRow, error) {
	if !s.healthy.Load() {
		return nil, ErrUnavailable
	}

	var records []Record
	for offset := int64(0); ; offset += summaryPageSize {
		var page meili.DocumentsResult
		err := s.client.Index(idxAnalytics).GetDocuments(&meili.DocumentsQuery{
			Limit:  summaryPageSize,
			Offset: offset,
		}, &page)
		if err != nil {
			s.healthy.Store(false)
			return nil, fmt.Errorf("fetch analytics records: %w", err)
		}
		for _, doc := range page.Results {
			record, err := decodeRecord(doc)
			if err != nil {
				s.logger.Warn("skip malformed analytics document", zap.Error(err))
				continue
			}
			records = append(records, record)
		}
		if len(page.Results) == 0 || offset+int64(len(page.Results)) >= page.Total {
			break
		}
	}

	return Summarize(records), nil
}

func decodeRecord(doc any) (Record, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return Record{}, err
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return Record{}, err
	}
	return record, nil
}

// labelOrder fixes the report ordering; unknown labels sort last, by name.
var labelOrder = map[string]int{
	string(sentiment.Positive): 0,
	string(sentiment.Neutral):  1,
	string(sentiment.Negative): 2,
	string(sentiment.Mixed):    3,
}

// Summarize folds records into per-sentiment counts and score averages.
func Summarize(records []Record) []SummaryRow {
	type acc struct {
		count                       int
		positive, neutral, negative float64
	}
	groups := make(map[string]*acc)
	for _, r := range records {
		g, ok := groups[r.Sentiment]
		if !ok {
			g = &acc{}
			groups[r.Sentiment] = g
		}
		g.count++
		g.positive += r.PositiveScore
		g.neutral += r.NeutralScore
		g.negative += r.NegativeScore
	}

	rows := make([]SummaryRow, 0, len(groups))
	for label, g := range groups {
		n := float64(g.count)
		rows = append(rows, SummaryRow{
			Sentiment:   label,
			Count:       g.count,
			AvgPositive: g.positive / n,
			AvgNeutral:  g.neutral / n,
			AvgNegative: g.negative / n,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		oi, iok := labelOrder[rows[i].Sentiment]
		oj, jok := labelOrder[rows[j].Sentiment]
		switch {
		case iok && jok:
			return oi < oj
		case iok:
			return true
		case jok:
			return false
		default:
			return rows[i].Sentiment < rows[j].Sentiment
		}
	})
	return rows
}
