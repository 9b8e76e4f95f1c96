package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"lumenforge/internal/config"
	"lumenforge/internal/db"
	"lumenforge/internal/engine"
	"lumenforge/internal/migrate"
	"lumenforge/internal/scoring"
)

const testJWTSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

// approveAll makes every submission sail through the AI stage so server
// tests can focus on the HTTP surface.
type approveAll struct{}

func (approveAll) Score(context.Context, scoring.Input) scoring.Result {
	return scoring.Result{Score: 90, Feedback: "looks complete", Approved: true, Threshold: 70, Source: scoring.SourceFallback}
}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default("studio-1")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg, nil)
	e.Scorer = approveAll{}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testJWTSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func mintToken(t *testing.T, userID string, capabilities ...string) string {
	t.Helper()
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Capabilities: capabilities,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func authHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createTask(t *testing.T, srv *testServer, admin string) TaskResponse {
	t.Helper()
	res, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks", CreateTaskRequest{
		Title:       "Design the villain's lair",
		Phase:       "pre-production",
		Price:       "25.00",
		LumenReward: "100",
		Points:      10,
	}, authHeader(admin))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create task: %d %s", res.StatusCode, body)
	}
	var task TaskResponse
	if err := json.Unmarshal(body, &task); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	return task
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv, done := newTestServer(t)
	defer done()
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health = %d", res.StatusCode)
	}
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	srv, done := newTestServer(t)
	defer done()
	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, body %s", res.StatusCode, body)
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("error code = %q", envelope.Error.Code)
	}
}

func TestTaskCreateRequiresAdmin(t *testing.T) {
	srv, done := newTestServer(t)
	defer done()
	artist := mintToken(t, "artist-1")
	res, _ := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks", CreateTaskRequest{
		Title: "t", Phase: "p", Price: "1", LumenReward: "1",
	}, authHeader(artist))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", res.StatusCode)
	}
}

func TestClaimConflictSurfacesAs409(t *testing.T) {
	srv, done := newTestServer(t)
	defer done()
	admin := mintToken(t, "producer-1", CapAdmin)
	task := createTask(t, srv, admin)

	first := mintToken(t, "artist-1")
	second := mintToken(t, "artist-2")
	res, _ := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/claim", nil, authHeader(first))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("first claim = %d", res.StatusCode)
	}
	res, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/claim", nil, authHeader(second))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("second claim = %d, body %s", res.StatusCode, body)
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Error.Code != "task_not_available" {
		t.Fatalf("error code = %q", envelope.Error.Code)
	}
}

func TestSubmitAndReviewFlow(t *testing.T) {
	srv, done := newTestServer(t)
	defer done()
	admin := mintToken(t, "producer-1", CapAdmin)
	artist := mintToken(t, "artist-1")
	reviewer := mintToken(t, "director-1", CapReview)
	task := createTask(t, srv, admin)

	res, _ := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/claim", nil, authHeader(artist))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("claim = %d", res.StatusCode)
	}
	res, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/submit", SubmitRequest{
		Notes: "Concept set delivered with three lighting variations and annotated floor plan.",
	}, authHeader(artist))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit = %d, body %s", res.StatusCode, body)
	}
	var sub SubmissionResponse
	if err := json.Unmarshal(body, &sub); err != nil {
		t.Fatalf("decode submission: %v", err)
	}
	if sub.Status != "ai_approved" {
		t.Fatalf("submission status = %q", sub.Status)
	}

	// Only review-capable principals can decide.
	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/submissions/"+sub.ID+"/review", ReviewRequest{Approve: true}, authHeader(artist))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("review without capability = %d, want 403", res.StatusCode)
	}

	res, body = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/submissions/"+sub.ID+"/review", ReviewRequest{Approve: true, Feedback: "Great work."}, authHeader(reviewer))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("review = %d, body %s", res.StatusCode, body)
	}
	var reviewed SubmissionResponse
	if err := json.Unmarshal(body, &reviewed); err != nil {
		t.Fatalf("decode reviewed: %v", err)
	}
	if reviewed.Status != "human_approved" {
		t.Fatalf("reviewed status = %q", reviewed.Status)
	}

	// Replay must be a conflict.
	res, body = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/submissions/"+sub.ID+"/review", ReviewRequest{Approve: true}, authHeader(reviewer))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("review replay = %d, body %s", res.StatusCode, body)
	}

	// Settlement produced a pending payment for the author.
	res, body = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/payments?user_id=artist-1", nil, authHeader(artist))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list payments = %d", res.StatusCode)
	}
	var payments []PaymentResponse
	if err := json.Unmarshal(body, &payments); err != nil {
		t.Fatalf("decode payments: %v", err)
	}
	if len(payments) != 1 || payments[0].Status != "pending" {
		t.Fatalf("payments = %+v", payments)
	}
	amount, err := decimal.NewFromString(payments[0].Amount)
	if err != nil || !amount.Equal(decimal.RequireFromString("25.00")) {
		t.Fatalf("payment amount = %q", payments[0].Amount)
	}

	// Payout write-back needs the payout capability.
	payout := mintToken(t, "payout-bot", CapPayout)
	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/payments/"+payments[0].ID+"/complete", PaymentOutcomeRequest{ExternalRef: "tx-1"}, authHeader(artist))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("complete without capability = %d", res.StatusCode)
	}
	res, body = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/payments/"+payments[0].ID+"/complete", PaymentOutcomeRequest{ExternalRef: "tx-1"}, authHeader(payout))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete payment = %d, body %s", res.StatusCode, body)
	}
}

func TestThresholdEndpoint(t *testing.T) {
	srv, done := newTestServer(t)
	defer done()
	admin := mintToken(t, "admin-1", CapAdmin)
	artist := mintToken(t, "artist-1")

	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/settings/review-threshold", nil, authHeader(artist))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get threshold = %d", res.StatusCode)
	}
	var thr ThresholdResponse
	if err := json.Unmarshal(body, &thr); err != nil {
		t.Fatalf("decode threshold: %v", err)
	}
	if thr.Value != 70 {
		t.Fatalf("seeded threshold = %d, want 70", thr.Value)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/settings/review-threshold", PutThresholdRequest{Value: 85}, authHeader(artist))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("put threshold without admin = %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/settings/review-threshold", PutThresholdRequest{Value: 85}, authHeader(admin))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("put threshold = %d", res.StatusCode)
	}
	res, body = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/settings/review-threshold", nil, authHeader(artist))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get threshold = %d", res.StatusCode)
	}
	if err := json.Unmarshal(body, &thr); err != nil {
		t.Fatalf("decode threshold: %v", err)
	}
	if thr.Value != 85 {
		t.Fatalf("threshold after put = %d", thr.Value)
	}
}
