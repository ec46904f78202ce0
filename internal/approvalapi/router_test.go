package approvalapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nhle/inbox-triage/internal/approval"
	"github.com/nhle/inbox-triage/internal/model"
	"github.com/nhle/inbox-triage/internal/store"
	"github.com/nhle/inbox-triage/tests/testutil"
)

type stubSender struct {
	sent      []model.Draft
	err       error
	afterSend func()
}

func (s *stubSender) Send(_ context.Context, d model.Draft) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, d)
	if s.afterSend != nil {
		s.afterSend()
	}
	return "sent@test", nil
}

type env struct {
	router http.Handler
	file   *store.ApprovalFile
	sender *stubSender
}

func newEnv(t *testing.T, cfg model.APIConfig) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	var seed []*model.ApprovalRequest
	for _, id := range []string{"AAAAAAAAAAAA", "BBBBBBBBBBBB"} {
		seed = append(seed, &model.ApprovalRequest{
			ID:             id,
			Draft:          model.Draft{Subject: "Invoice " + id[:1], BodyText: "Please pay."},
			FinalRecipient: model.Address{Email: "vendor@x.com", Name: "Vendor"},
			Approver:       "cfo@x.com",
			Status:         model.ApprovalPending,
			CreatedAt:      created,
		})
	}

	e := &env{
		file:   testutil.NewTestApprovalFile(t, seed...),
		sender: &stubSender{},
	}
	db := testutil.NewTestStore(t)
	op := approval.NewOperator(e.file, e.sender, db, zerolog.Nop())

	if cfg.Addr == "" {
		cfg.Addr = ":0"
	}
	e.router = NewRouter(cfg, NewHandlers(op, db), zerolog.Nop())
	return e
}

func (e *env) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t, model.APIConfig{})

	w := e.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("health = %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("missing X-Request-ID")
	}

	w = e.do(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Errorf("metrics = %d", w.Code)
	}
}

func TestListPending(t *testing.T) {
	e := newEnv(t, model.APIConfig{})

	w := e.do(t, http.MethodGet, "/api/pending", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[pendingResponse](t, w)
	if len(resp.Pending) != 2 || resp.Stats != (approval.Stats{Total: 2, Pending: 2}) {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Pending[0].RequestID != "AAAAAAAAAAAA" {
		t.Errorf("first = %s", resp.Pending[0].RequestID)
	}
}

func TestApproveAndReject(t *testing.T) {
	e := newEnv(t, model.APIConfig{})

	w := e.do(t, http.MethodPost, "/api/approve/aaaaaaaaaaaa", "")
	if w.Code != http.StatusOK {
		t.Fatalf("approve = %d %s", w.Code, w.Body.String())
	}
	resp := decode[decisionResponse](t, w)
	if !resp.Success || resp.Request.Status != string(model.ApprovalApproved) || resp.Message != "Email approved and sent to vendor@x.com" {
		t.Errorf("approve resp = %+v", resp)
	}
	if len(e.sender.sent) != 1 {
		t.Errorf("sent %d drafts, want 1", len(e.sender.sent))
	}

	w = e.do(t, http.MethodPost, "/api/approve/AAAAAAAAAAAA", "")
	if w.Code != http.StatusBadRequest || decode[ErrorResponse](t, w).Message != "Request already processed" {
		t.Errorf("second approve = %d %s", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodPost, "/api/reject", `{"bill_id":"BBBBBBBBBBBB","reason":"wrong amount"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("reject = %d %s", w.Code, w.Body.String())
	}
	rej := decode[decisionResponse](t, w)
	if rej.Request.Notes == nil || *rej.Request.Notes != "wrong amount" {
		t.Errorf("reject notes = %v", rej.Request.Notes)
	}

	w = e.do(t, http.MethodGet, "/api/requests/AAAAAAAAAAAA/events", "")
	if w.Code != http.StatusOK {
		t.Fatalf("events = %d", w.Code)
	}
	events := decode[struct {
		Events []model.DecisionEvent `json:"events"`
	}](t, w)
	if len(events.Events) != 2 || events.Events[0].Outcome != model.OutcomeApproved || events.Events[0].Channel != model.ChannelHTTP {
		t.Errorf("events = %+v", events.Events)
	}

	w = e.do(t, http.MethodGet, "/api/pending", "")
	if got := decode[pendingResponse](t, w).Stats; got != (approval.Stats{Total: 2, Approved: 1, Rejected: 1}) {
		t.Errorf("stats = %+v", got)
	}
}

func TestDecisionErrors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"unknown id", http.MethodPost, "/api/approve/NOPE", "", http.StatusNotFound, ErrCodeNotFound},
		{"unknown reject", http.MethodPost, "/api/reject/NOPE", `{"reason":"x"}`, http.StatusNotFound, ErrCodeNotFound},
		{"missing id", http.MethodPost, "/api/approve", `{}`, http.StatusBadRequest, ErrCodeBadRequest},
		{"bad json", http.MethodPost, "/api/reject", `{`, http.StatusBadRequest, ErrCodeBadRequest},
		{"unknown route", http.MethodGet, "/api/nothing", "", http.StatusNotFound, ErrCodeNotFound},
		{"wrong method", http.MethodDelete, "/api/pending", "", http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, model.APIConfig{})
			w := e.do(t, tt.method, tt.path, tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
			if got := decode[ErrorResponse](t, w); got.Code != tt.code || got.RequestID == "" {
				t.Errorf("error = %+v, want code %s", got, tt.code)
			}
		})
	}
}

func TestApproveSendFailure(t *testing.T) {
	e := newEnv(t, model.APIConfig{})
	e.sender.err = errors.New("relay refused")

	w := e.do(t, http.MethodPost, "/api/approve", `{"request_id":"AAAAAAAAAAAA"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", w.Code)
	}
	req, err := e.file.Get("AAAAAAAAAAAA")
	if err != nil || req.Status != model.ApprovalPending {
		t.Errorf("request = %+v, %v", req, err)
	}
}

func TestApproveSentButNotRecorded(t *testing.T) {
	e := newEnv(t, model.APIConfig{})
	e.sender.afterSend = func() {
		if err := os.WriteFile(e.file.Path(), []byte("not json"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	w := e.do(t, http.MethodPost, "/api/approve/AAAAAAAAAAAA", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	if got := decode[ErrorResponse](t, w); got.Code != ErrCodeNotRecorded {
		t.Errorf("code = %s, want %s", got.Code, ErrCodeNotRecorded)
	}
	if len(e.sender.sent) != 1 {
		t.Errorf("sent %d, want 1", len(e.sender.sent))
	}
}

func TestApproveStoreUnreadable(t *testing.T) {
	e := newEnv(t, model.APIConfig{})
	if err := os.WriteFile(e.file.Path(), []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := e.do(t, http.MethodPost, "/api/approve/AAAAAAAAAAAA", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	if got := decode[ErrorResponse](t, w); got.Code != ErrCodeInternal {
		t.Errorf("code = %s, want %s", got.Code, ErrCodeInternal)
	}
	if len(e.sender.sent) != 0 {
		t.Errorf("sent %d, want 0", len(e.sender.sent))
	}
}

func TestBearerAuth(t *testing.T) {
	secret := "s3cret"
	e := newEnv(t, model.APIConfig{JWTSecret: secret})

	if w := e.do(t, http.MethodGet, "/api/pending", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/api/pending", "", "Authorization", "Bearer garbage"); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token = %d", w.Code)
	}

	other, _ := IssueToken([]byte("other"), "ops", time.Hour)
	if w := e.do(t, http.MethodGet, "/api/pending", "", "Authorization", "Bearer "+other); w.Code != http.StatusUnauthorized {
		t.Errorf("foreign token = %d", w.Code)
	}

	expired, _ := IssueToken([]byte(secret), "ops", -time.Minute)
	if w := e.do(t, http.MethodGet, "/api/pending", "", "Authorization", "Bearer "+expired); w.Code != http.StatusUnauthorized {
		t.Errorf("expired token = %d", w.Code)
	}

	tok, err := IssueToken([]byte(secret), "ops", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if w := e.do(t, http.MethodGet, "/api/pending", "", "Authorization", "Bearer "+tok); w.Code != http.StatusOK {
		t.Errorf("valid token = %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("health behind auth = %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	e := newEnv(t, model.APIConfig{RateRPS: 0.001, RateBurst: 2})

	for i := 0; i < 2; i++ {
		if w := e.do(t, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, w.Code)
		}
	}
	w := e.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "1" {
		t.Errorf("third request = %d", w.Code)
	}
}

func TestCORSAndGzip(t *testing.T) {
	e := newEnv(t, model.APIConfig{CORSOrigins: []string{"https://ops.example.com"}})

	w := e.do(t, http.MethodGet, "/api/pending", "", "Origin", "https://ops.example.com", "Accept-Encoding", "gzip")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://ops.example.com" {
		t.Errorf("ACAO = %q", got)
	}
	if got := w.Header().Get("Content-Encoding"); got != "gzip" {
		t.Errorf("Content-Encoding = %q", got)
	}

	w = e.do(t, http.MethodGet, "/api/pending", "", "Origin", "https://evil.example.com")
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign origin = %d", w.Code)
	}
}

func TestRecoveryReturnsJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Recovery(zerolog.Nop()))
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if got := decode[ErrorResponse](t, w); got.Code != ErrCodeInternal || got.RequestID == "" {
		t.Errorf("body = %+v", got)
	}
}
