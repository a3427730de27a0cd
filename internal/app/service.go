package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"feedback/api/internal/analytics"
	"feedback/api/internal/auth"
	"feedback/api/internal/authpw"
	"feedback/api/internal/config"
	"feedback/api/internal/notify"
	"feedback/api/internal/rbac"
	"feedback/api/internal/sentiment"
	"feedback/api/internal/store"
	"feedback/api/internal/textanalytics"
	"feedback/api/internal/util"
)

// AnalysisResult is the normalized output of one analysis call.
type AnalysisResult struct {
	Sentiment  sentiment.Label     `json:"sentiment"`
	Scores     sentiment.Scores    `json:"scores"`
	KeyPhrases []string            `json:"keyPhrases"`
	Opinions   []sentiment.Opinion `json:"opinions"`
}

// Submission is what a caller gets back for one feedback submission.
// Analysis is nil for assistance requests, which skip the pipeline.
type Submission struct {
	Item     store.FeedbackItem `json:"item"`
	Analysis *AnalysisResult    `json:"analysis,omitempty"`
}

// Session is an authenticated caller.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Role      rbac.Role `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type feedbackStore interface {
	InsertFeedback(ctx context.Context, item store.FeedbackItem) error
	GetFeedback(ctx context.Context, id string) (store.FeedbackItem, error)
	UpdateFeedbackStatus(ctx context.Context, id, status string, now time.Time) (store.FeedbackItem, error)
	ListFeedback(ctx context.Context) ([]store.FeedbackItem, error)
	ListFeedbackByStatus(ctx context.Context, status string) ([]store.FeedbackItem, error)
	DeleteAllFeedback(ctx context.Context) error
	Ping(ctx context.Context) error
}

type analyticsStore interface {
	Append(ctx context.Context, record analytics.Record) error
	SentimentSummary(ctx context.Context) ([]analytics.SummaryRow, error)
	Healthy() bool
}

type languageService interface {
	AnalyzeSentiment(ctx context.Context, documents []string, opinionMining bool) ([]textanalytics.SentimentResult, error)
	ExtractKeyPhrases(ctx context.Context, documents []string) ([]textanalytics.KeyPhraseResult, error)
}

type eventBroker interface {
	Publish(ctx context.Context, event notify.Event)
	Subscribe(ctx context.Context) (<-chan notify.Event, func())
	Ping(ctx context.Context) error
}

type transcriptStore interface {
	Upload(ctx context.Context, name string, content []byte) error
	Download(ctx context.Context, name string) (string, error)
	List(ctx context.Context) ([]string, error)
}

type chatService interface {
	Ask(ctx context.Context, message, transcriptName string) (string, error)
}

// Service orchestrates the analysis pipeline and the moderation lifecycle.
type Service struct {
	cfg         config.Config
	store       feedbackStore
	analytics   analyticsStore
	language    languageService
	broker      eventBroker
	transcripts transcriptStore
	chat        chatService
	accounts    *authpw.Service
	classifier  sentiment.Classifier
	logger      *zap.Logger
}

// Deps carries the collaborators for New. Analytics, Broker, Transcripts and
// Chat may be nil; the matching features degrade to unavailable.
type Deps struct {
	Store       feedbackStore
	Users       authpw.UserStore
	Analytics   analyticsStore
	Language    languageService
	Broker      eventBroker
	Transcripts transcriptStore
	Chat        chatService
}

func New(cfg config.Config, deps Deps, logger *zap.Logger) *Service {
	return &Service{
		cfg:         cfg,
		store:       deps.Store,
		analytics:   deps.Analytics,
		language:    deps.Language,
		broker:      deps.Broker,
		transcripts: deps.Transcripts,
		chat:        deps.Chat,
		accounts:    authpw.NewService(deps.Users),
		classifier:  sentiment.NewClassifier(cfg.NeutralThreshold),
		logger:      logger,
	}
}

// ComponentHealth is one entry of the readiness report.
type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Readiness reports whether the service can take traffic and the state of
// each backing component. Only the durable store gates readiness; the
// analytics store and the notification channel are best-effort paths and
// report degraded without failing the check.
func (s *Service) Readiness(ctx context.Context) (bool, map[string]ComponentHealth) {
	checks := map[string]ComponentHealth{}

	ready := true
	if err := s.store.Ping(ctx); err != nil {
		ready = false
		checks["database"] = ComponentHealth{Status: "error", Error: err.Error()}
	} else {
		checks["database"] = ComponentHealth{Status: "ok"}
	}

	switch {
	case s.analytics == nil:
		checks["analytics"] = ComponentHealth{Status: "disabled"}
	case s.analytics.Healthy():
		checks["analytics"] = ComponentHealth{Status: "ok"}
	default:
		checks["analytics"] = ComponentHealth{Status: "degraded"}
	}

	if s.broker == nil {
		checks["events"] = ComponentHealth{Status: "disabled"}
	} else if err := s.broker.Ping(ctx); err != nil {
		checks["events"] = ComponentHealth{Status: "degraded", Error: err.Error()}
	} else {
		checks["events"] = ComponentHealth{Status: "ok"}
	}

	return ready, checks
}

// Analyze runs one text through the provider and normalizes the outcome.
// It performs no persistence; SubmitFeedback sequences that.
func (s *Service) Analyze(ctx context.Context, text string) (*AnalysisResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errValidation("feedback text is required")
	}

	documents := []string{text}
	sentiments, err := s.language.AnalyzeSentiment(ctx, documents, true)
	if err != nil {
		s.logger.Error("sentiment analysis call failed", zap.Error(err))
		return nil, errProviderUnavailable(err)
	}
	doc := sentiments[0]
	if doc.IsError {
		s.logger.Error("provider rejected document",
			zap.String("code", doc.Error.Code),
			zap.String("message", doc.Error.Message))
		return nil, errProviderError(doc.Error)
	}

	phrases, err := s.language.ExtractKeyPhrases(ctx, documents)
	if err != nil {
		s.logger.Error("key phrase call failed", zap.Error(err))
		return nil, errProviderUnavailable(err)
	}
	if phrases[0].IsError {
		s.logger.Error("provider rejected document for key phrases",
			zap.String("code", phrases[0].Error.Code),
			zap.String("message", phrases[0].Error.Message))
		return nil, errProviderError(phrases[0].Error)
	}

	scores := sentiment.ScoresFrom(doc.ConfidenceScores)
	return &AnalysisResult{
		Sentiment:  s.classifier.Classify(scores),
		Scores:     scores,
		KeyPhrases: phrases[0].KeyPhrases,
		Opinions:   sentiment.AggregateOpinions(doc.Sentences),
	}, nil
}

// SubmitFeedbackInput carries one submission. AuthorID is empty for
// anonymous callers.
type SubmitFeedbackInput struct {
	Text                string
	AuthorID            string
	IsAssistanceRequest bool
}

// SubmitFeedback analyzes (unless the item is an assistance request),
// persists the durable record, appends the analytics snapshot best-effort,
// and broadcasts completion. Nothing is persisted if analysis fails; the
// durable write is fatal; the analytics write never is.
func (s *Service) SubmitFeedback(ctx context.Context, in SubmitFeedbackInput) (*Submission, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, errValidation("feedback text is required")
	}

	var analysis *AnalysisResult
	if !in.IsAssistanceRequest {
		result, err := s.Analyze(ctx, in.Text)
		if err != nil {
			return nil, err
		}
		analysis = result
	}

	item := store.FeedbackItem{
		ID:                  util.NewID("fb"),
		Text:                in.Text,
		Status:              store.StatusSubmitted,
		IsAssistanceRequest: in.IsAssistanceRequest,
		SubmittedAt:         time.Now().UTC(),
	}
	if in.AuthorID != "" {
		authorID := in.AuthorID
		item.AuthorID = &authorID
	}

	if err := s.store.InsertFeedback(ctx, item); err != nil {
		return nil, fmt.Errorf("persist feedback: %w", err)
	}

	if analysis != nil {
		s.appendAnalytics(ctx, item, analysis)
		s.publishCompleted(ctx, item)
	}

	return &Submission{Item: item, Analysis: analysis}, nil
}

// appendAnalytics writes the analysis snapshot. The durable record is already
// committed; a failure here is logged and swallowed, never retried inline.
func (s *Service) appendAnalytics(ctx context.Context, item store.FeedbackItem, analysis *AnalysisResult) {
	if s.analytics == nil {
		return
	}
	userID := "anonymous"
	if item.AuthorID != nil {
		userID = *item.AuthorID
	}
	record := analytics.Record{
		ID:            util.NewID("ar"),
		FeedbackText:  item.Text,
		Sentiment:     string(analysis.Sentiment),
		PositiveScore: analysis.Scores.Positive,
		NeutralScore:  analysis.Scores.Neutral,
		NegativeScore: analysis.Scores.Negative,
		KeyPhrases:    analysis.KeyPhrases,
		Opinions:      analysis.Opinions,
		Timestamp:     time.Now().UTC(),
		UserID:        userID,
	}
	if err := s.analytics.Append(ctx, record); err != nil {
		s.logger.Warn("analytics append failed",
			zap.String("feedbackId", item.ID),
			zap.Error(err))
	}
}

func (s *Service) publishCompleted(ctx context.Context, item store.FeedbackItem) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(ctx, notify.Event{
		Type:    "analysis_completed",
		Message: fmt.Sprintf("Analysis completed for feedback %s", item.ID),
	})
}

var transitionStatus = map[rbac.Action]string{
	rbac.ActionReview:  store.StatusReviewed,
	rbac.ActionApprove: store.StatusApproved,
	rbac.ActionReject:  store.StatusRejected,
}

// Transition applies one moderation action to a feedback item. Authorization
// is checked before any store access, so a forbidden call mutates nothing.
func (s *Service) Transition(ctx context.Context, id string, action rbac.Action, role rbac.Role) (store.FeedbackItem, error) {
	status, ok := transitionStatus[action]
	if !ok {
		return store.FeedbackItem{}, errValidation(fmt.Sprintf("unknown transition %q", action))
	}
	if !rbac.Can(role, action) {
		return store.FeedbackItem{}, errForbidden()
	}

	item, err := s.store.UpdateFeedbackStatus(ctx, id, status, time.Now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return store.FeedbackItem{}, errNotFound("feedback item")
	}
	if err != nil {
		return store.FeedbackItem{}, fmt.Errorf("apply transition: %w", err)
	}
	return item, nil
}

// ListFeedback returns items newest submission first, optionally filtered to
// one moderation status.
func (s *Service) ListFeedback(ctx context.Context, role rbac.Role, status string) ([]store.FeedbackItem, error) {
	if !rbac.Can(role, rbac.ActionList) {
		return nil, errForbidden()
	}
	if status == "" {
		return s.store.ListFeedback(ctx)
	}
	switch status {
	case store.StatusSubmitted, store.StatusReviewed, store.StatusApproved, store.StatusRejected:
	default:
		return nil, errValidation(fmt.Sprintf("unknown status %q", status))
	}
	return s.store.ListFeedbackByStatus(ctx, status)
}

// GetFeedback fetches one item by id.
func (s *Service) GetFeedback(ctx context.Context, id string, role rbac.Role) (store.FeedbackItem, error) {
	if !rbac.Can(role, rbac.ActionList) {
		return store.FeedbackItem{}, errForbidden()
	}
	item, err := s.store.GetFeedback(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.FeedbackItem{}, errNotFound("feedback item")
	}
	if err != nil {
		return store.FeedbackItem{}, fmt.Errorf("get feedback: %w", err)
	}
	return item, nil
}

// ClearHistory deletes every feedback item. Irreversible.
func (s *Service) ClearHistory(ctx context.Context, role rbac.Role) error {
	if !rbac.Can(role, rbac.ActionClear) {
		return errForbidden()
	}
	return s.store.DeleteAllFeedback(ctx)
}

// SentimentSummary reports per-sentiment counts and score averages from the
// analytics store.
func (s *Service) SentimentSummary(ctx context.Context, role rbac.Role) ([]analytics.SummaryRow, error) {
	if !rbac.Can(role, rbac.ActionList) {
		return nil, errForbidden()
	}
	if s.analytics == nil {
		return nil, errServiceUnavailable("analytics store is not configured")
	}
	rows, err := s.analytics.SentimentSummary(ctx)
	if errors.Is(err, analytics.ErrUnavailable) {
		return nil, errServiceUnavailable("analytics store is unavailable")
	}
	if err != nil {
		return nil, fmt.Errorf("sentiment summary: %w", err)
	}
	return rows, nil
}

// SubscribeEvents attaches an observer to the shared notification group.
func (s *Service) SubscribeEvents(ctx context.Context) (<-chan notify.Event, func(), error) {
	if s.broker == nil {
		return nil, nil, errServiceUnavailable("notification channel is not configured")
	}
	events, cancel := s.broker.Subscribe(ctx)
	return events, cancel, nil
}

// Ask answers a question against a stored transcript via the LLM backend.
func (s *Service) Ask(ctx context.Context, message, transcriptName string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", errValidation("message is required")
	}
	if s.chat == nil {
		return "", errServiceUnavailable("chat backend is not configured")
	}
	answer, err := s.chat.Ask(ctx, message, transcriptName)
	if err != nil {
		return "", errProviderUnavailable(err)
	}
	return answer, nil
}

// UploadTranscript stores a transcript for later chatbot use.
func (s *Service) UploadTranscript(ctx context.Context, name string, content []byte) error {
	if strings.TrimSpace(name) == "" || len(content) == 0 {
		return errValidation("transcript name and content are required")
	}
	if s.transcripts == nil {
		return errServiceUnavailable("transcript store is not configured")
	}
	return s.transcripts.Upload(ctx, name, content)
}

func (s *Service) ListTranscripts(ctx context.Context) ([]string, error) {
	if s.transcripts == nil {
		return nil, errServiceUnavailable("transcript store is not configured")
	}
	return s.transcripts.List(ctx)
}

func (s *Service) DownloadTranscript(ctx context.Context, name string) (string, error) {
	if s.transcripts == nil {
		return "", errServiceUnavailable("transcript store is not configured")
	}
	return s.transcripts.Download(ctx, name)
}

// SignUp registers an account and signs it in.
func (s *Service) SignUp(ctx context.Context, name, email, password, role string) (Session, error) {
	user, err := s.accounts.SignUp(ctx, authpw.SignUpRequest{Name: name, Email: email, Password: password, Role: role})
	if err != nil {
		return Session{}, errValidation(err.Error())
	}
	return s.sessionFor(user)
}

// SignIn authenticates an account and issues an access token.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.accounts.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, errUnauthorized(err.Error())
	}
	return s.sessionFor(user)
}

func (s *Service) sessionFor(user store.User) (Session, error) {
	expiresAt := time.Now().Add(s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.Name,
		Role: user.Role,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.Name,
		Role:      rbac.Normalize(user.Role),
		ExpiresAt: expiresAt,
	}, nil
}

// CurrentUser re-validates a session's subject against the account store.
// The returned role is the stored one, so role changes and deletions take
// effect without waiting for the token to expire.
func (s *Service) CurrentUser(ctx context.Context, session Session) (store.User, error) {
	user, err := s.accounts.UserByID(ctx, session.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, errUnauthorized("account no longer exists")
	}
	if err != nil {
		return store.User{}, fmt.Errorf("load account: %w", err)
	}
	return user, nil
}

// SessionFromToken verifies an access token and rebuilds the session.
func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Role:      rbac.Normalize(claims.Role),
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}
