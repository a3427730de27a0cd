package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"feedback/api/internal/auth"
	"feedback/api/internal/rbac"
	"feedback/api/internal/store"
)

func newTestServer(t *testing.T, db *fakeFeedbackStore) *httptest.Server {
	t.Helper()
	users := &fakeUserStore{users: map[string]store.User{
		"usr_test": {ID: "usr_test", Name: "Test User", Email: "test@example.com", Role: "manager"},
	}}
	svc := newTestService(Deps{Store: db, Users: users, Analytics: &fakeAnalytics{}, Language: happyLanguage(), Broker: &fakeBroker{}})
	server := httptest.NewServer(NewHTTPServer(svc, "*", zap.NewNop()).Handler())
	t.Cleanup(server.Close)
	return server
}

func tokenFor(t *testing.T, role rbac.Role) string {
	t.Helper()
	token, err := auth.IssueToken([]byte("test-secret"), auth.Claims{
		Sub:  "usr_test",
		Name: "Test User",
		Role: string(role),
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func doRequest(t *testing.T, method, url, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, payload
}

func TestHTTPSubmitFeedbackAnonymous(t *testing.T) {
	db := &fakeFeedbackStore{}
	server := newTestServer(t, db)

	resp, payload := doRequest(t, http.MethodPost, server.URL+"/api/feedback", "", `{"text":"The course was great."}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	analysis, ok := payload["analysis"].(map[string]any)
	if !ok {
		t.Fatalf("missing analysis in response: %v", payload)
	}
	if analysis["sentiment"] != "positive" {
		t.Fatalf("sentiment = %v, want positive", analysis["sentiment"])
	}
	if len(db.items) != 1 || db.items[0].AuthorID != nil {
		t.Fatalf("expected one anonymous item, got %+v", db.items)
	}
}

func TestHTTPSubmitFeedbackValidation(t *testing.T) {
	server := newTestServer(t, &fakeFeedbackStore{})

	resp, payload := doRequest(t, http.MethodPost, server.URL+"/api/feedback", "", `{"text":""}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if payload["code"] != "VALIDATION" {
		t.Fatalf("code = %v, want VALIDATION", payload["code"])
	}
}

func TestHTTPListFeedbackRBAC(t *testing.T) {
	db := &fakeFeedbackStore{items: []store.FeedbackItem{{ID: "fb_1", Status: store.StatusSubmitted}}}
	server := newTestServer(t, db)

	cases := []struct {
		name   string
		token  string
		status int
	}{
		{"anonymous", "", http.StatusForbidden},
		{"user", tokenFor(t, rbac.RoleUser), http.StatusForbidden},
		{"manager", tokenFor(t, rbac.RoleManager), http.StatusOK},
		{"admin", tokenFor(t, rbac.RoleAdmin), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, _ := doRequest(t, http.MethodGet, server.URL+"/api/feedback", tc.token, "")
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.status)
			}
		})
	}
}

func TestHTTPTransitionRBAC(t *testing.T) {
	cases := []struct {
		name   string
		action string
		role   rbac.Role
		status int
	}{
		{"manager review", "review", rbac.RoleManager, http.StatusOK},
		{"manager approve", "approve", rbac.RoleManager, http.StatusForbidden},
		{"admin approve", "approve", rbac.RoleAdmin, http.StatusOK},
		{"admin reject", "reject", rbac.RoleAdmin, http.StatusOK},
		{"user review", "review", rbac.RoleUser, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := &fakeFeedbackStore{items: []store.FeedbackItem{{ID: "fb_1", Status: store.StatusSubmitted}}}
			server := newTestServer(t, db)

			resp, _ := doRequest(t, http.MethodPost, server.URL+"/api/feedback/fb_1/"+tc.action, tokenFor(t, tc.role), "")
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.status)
			}
			if tc.status == http.StatusForbidden && db.items[0].Status != store.StatusSubmitted {
				t.Fatalf("forbidden call mutated status to %q", db.items[0].Status)
			}
		})
	}
}

func TestHTTPTransitionUnknownID(t *testing.T) {
	server := newTestServer(t, &fakeFeedbackStore{})

	resp, payload := doRequest(t, http.MethodPost, server.URL+"/api/feedback/fb_missing/approve", tokenFor(t, rbac.RoleAdmin), "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if payload["code"] != "NOT_FOUND" {
		t.Fatalf("code = %v, want NOT_FOUND", payload["code"])
	}
}

func TestHTTPTransitionUnknownAction(t *testing.T) {
	server := newTestServer(t, &fakeFeedbackStore{items: []store.FeedbackItem{{ID: "fb_1"}}})

	resp, _ := doRequest(t, http.MethodPost, server.URL+"/api/feedback/fb_1/promote", tokenFor(t, rbac.RoleAdmin), "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for unroutable action", resp.StatusCode)
	}
}

func TestHTTPClearHistoryAdminOnly(t *testing.T) {
	db := &fakeFeedbackStore{items: []store.FeedbackItem{{ID: "fb_1"}}}
	server := newTestServer(t, db)

	resp, _ := doRequest(t, http.MethodDelete, server.URL+"/api/feedback", tokenFor(t, rbac.RoleManager), "")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("manager clear status = %d, want 403", resp.StatusCode)
	}
	if db.deleted {
		t.Fatal("forbidden clear reached the store")
	}

	resp, _ = doRequest(t, http.MethodDelete, server.URL+"/api/feedback", tokenFor(t, rbac.RoleAdmin), "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin clear status = %d, want 200", resp.StatusCode)
	}
	if !db.deleted {
		t.Fatal("history was not cleared")
	}
}

func TestHTTPInvalidTokenActsAsAnonymous(t *testing.T) {
	db := &fakeFeedbackStore{}
	server := newTestServer(t, db)

	resp, _ := doRequest(t, http.MethodPost, server.URL+"/api/feedback", "not-a-real-token", `{"text":"still works"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if len(db.items) != 1 || db.items[0].AuthorID != nil {
		t.Fatalf("expected anonymous submission, got %+v", db.items)
	}

	resp, _ = doRequest(t, http.MethodGet, server.URL+"/api/feedback", "not-a-real-token", "")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("list with a garbage token = %d, want 403", resp.StatusCode)
	}
}

func TestHTTPSessionEndpoint(t *testing.T) {
	server := newTestServer(t, &fakeFeedbackStore{})

	resp, payload := doRequest(t, http.MethodGet, server.URL+"/api/session", "", "")
	if resp.StatusCode != http.StatusOK || payload["authenticated"] != false {
		t.Fatalf("anonymous session: status=%d payload=%v", resp.StatusCode, payload)
	}

	resp, payload = doRequest(t, http.MethodGet, server.URL+"/api/session", tokenFor(t, rbac.RoleManager), "")
	if resp.StatusCode != http.StatusOK || payload["authenticated"] != true {
		t.Fatalf("authenticated session: status=%d payload=%v", resp.StatusCode, payload)
	}
	if payload["role"] != "manager" {
		t.Fatalf("role = %v, want manager", payload["role"])
	}
}

func TestHTTPSessionDeletedAccount(t *testing.T) {
	server := newTestServer(t, &fakeFeedbackStore{})

	// Valid, unexpired token whose subject no longer exists in the store.
	token, err := auth.IssueToken([]byte("test-secret"), auth.Claims{
		Sub:  "usr_deleted",
		Name: "Gone",
		Role: "admin",
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	resp, payload := doRequest(t, http.MethodGet, server.URL+"/api/session", token, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if payload["authenticated"] != false {
		t.Fatalf("a deleted account must read unauthenticated: %v", payload)
	}
}

func TestHTTPReadyReportsComponents(t *testing.T) {
	server := newTestServer(t, &fakeFeedbackStore{})

	resp, payload := doRequest(t, http.MethodGet, server.URL+"/api/ready", "", "")
	if resp.StatusCode != http.StatusOK || payload["ok"] != true {
		t.Fatalf("ready: status=%d payload=%v", resp.StatusCode, payload)
	}
	checks, ok := payload["checks"].(map[string]any)
	if !ok {
		t.Fatalf("missing checks in response: %v", payload)
	}
	for _, component := range []string{"database", "analytics", "events"} {
		entry, ok := checks[component].(map[string]any)
		if !ok || entry["status"] != "ok" {
			t.Fatalf("%s = %v, want ok", component, checks[component])
		}
	}
}

func TestHTTPHealthAndSummary(t *testing.T) {
	server := newTestServer(t, &fakeFeedbackStore{})

	resp, payload := doRequest(t, http.MethodGet, server.URL+"/api/health", "", "")
	if resp.StatusCode != http.StatusOK || payload["ok"] != true {
		t.Fatalf("health: status=%d payload=%v", resp.StatusCode, payload)
	}

	resp, _ = doRequest(t, http.MethodGet, server.URL+"/api/feedback/summary", tokenFor(t, rbac.RoleManager), "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("summary status = %d, want 200", resp.StatusCode)
	}

	resp, _ = doRequest(t, http.MethodGet, server.URL+"/api/feedback/summary", "", "")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("anonymous summary status = %d, want 403", resp.StatusCode)
	}
}
