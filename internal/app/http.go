package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"feedback/api/internal/auth"
	"feedback/api/internal/rbac"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger *zap.Logger) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup":
		s.handleSignUp(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin":
		s.handleSignIn(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/api/session":
		s.handleSession(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/feedback":
		s.handleSubmitFeedback(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/api/feedback":
		s.handleListFeedback(w, r)
	case r.Method == http.MethodDelete && r.URL.Path == "/api/feedback":
		s.handleClearHistory(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/api/feedback/summary":
		s.handleSentimentSummary(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/api/feedback/events":
		s.handleEvents(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/feedback/"):
		s.handleGetFeedback(w, r)
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/api/feedback/"):
		s.handleTransition(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/chat":
		s.handleChat(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/transcripts":
		s.handleUploadTranscript(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/api/transcripts":
		s.handleListTranscripts(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/transcripts/"):
		s.handleDownloadTranscript(w, r)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ready, checks := s.service.Readiness(ctx)
	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     ready,
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.SignUp(r.Context(), body.Name, body.Email, body.Password, body.Role)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleSession reports the caller's session. The token subject is checked
// against the account store, so a deleted account reads as unauthenticated
// even while its token is still within its TTL.
func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.optionalSession(r)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	user, err := s.service.CurrentUser(r.Context(), session)
	if err != nil {
		var domainErr *DomainError
		if errors.As(err, &domainErr) && domainErr.Status == http.StatusUnauthorized {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userId":        user.ID,
		"userName":      user.Name,
		"role":          rbac.Normalize(user.Role),
	})
}

func (s *HTTPServer) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text                string `json:"text"`
		IsAssistanceRequest bool   `json:"isAssistanceRequest"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	in := SubmitFeedbackInput{Text: body.Text, IsAssistanceRequest: body.IsAssistanceRequest}
	if session, ok := s.optionalSession(r); ok {
		in.AuthorID = session.UserID
	}

	submission, err := s.service.SubmitFeedback(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, submission)
}

func (s *HTTPServer) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListFeedback(r.Context(), s.callerRole(r), r.URL.Query().Get("status"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ClearHistory(r.Context(), s.callerRole(r)); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}

func (s *HTTPServer) handleSentimentSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := s.service.SentimentSummary(r.Context(), s.callerRole(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": rows})
}

func (s *HTTPServer) handleGetFeedback(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path)
	if len(parts) != 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	item, err := s.service.GetFeedback(r.Context(), parts[2], s.callerRole(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleTransition serves POST /api/feedback/{id}/{action}.
func (s *HTTPServer) handleTransition(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path)
	if len(parts) != 4 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	id, action := parts[2], rbac.Action(parts[3])
	if action != rbac.ActionReview && action != rbac.ActionApprove && action != rbac.ActionReject {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	item, err := s.service.Transition(r.Context(), id, action, s.callerRole(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleEvents bridges the shared notification group onto an SSE stream.
// A slow consumer only affects its own connection, never the publishers.
func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "streaming unsupported", nil)
		return
	}

	events, cancel, err := s.service.SubscribeEvents(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (s *HTTPServer) handleChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message    string `json:"message"`
		Transcript string `json:"transcript"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	answer, err := s.service.Ask(r.Context(), body.Message, body.Transcript)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"answer": answer})
}

func (s *HTTPServer) handleUploadTranscript(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name    string `json:"name"`
		Content string `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.UploadTranscript(r.Context(), body.Name, []byte(body.Content)); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"name": body.Name})
}

func (s *HTTPServer) handleListTranscripts(w http.ResponseWriter, r *http.Request) {
	names, err := s.service.ListTranscripts(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transcripts": names})
}

func (s *HTTPServer) handleDownloadTranscript(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path)
	if len(parts) != 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	content, err := s.service.DownloadTranscript(r.Context(), parts[2])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": parts[2], "content": content})
}

// optionalSession resolves the bearer token if one is present and valid.
func (s *HTTPServer) optionalSession(r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(token)
	if err != nil {
		return Session{}, false
	}
	return session, true
}

// callerRole is the caller's moderation role; anonymous callers act as plain
// users, which keeps submission open while gating everything else.
func (s *HTTPServer) callerRole(r *http.Request) rbac.Role {
	session, ok := s.optionalSession(r)
	if !ok {
		return rbac.RoleUser
	}
	return session.Role
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("code", code), zap.Error(err))
	}
	writeError(w, status, code, message, details)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "INTERNAL", "Internal server error", nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			zap.String("requestId", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("durationMs", time.Since(started).Milliseconds()),
		)
	})
}

func setCORSHeaders(h http.Header, origin string) {
	if origin == "" {
		origin = "*"
	}
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
}

func randomRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
