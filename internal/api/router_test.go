package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdelr/turbinix-be/internal/metrics"
	"github.com/isdelr/turbinix-be/internal/notify"
	"github.com/isdelr/turbinix-be/internal/services"
	"github.com/isdelr/turbinix-be/internal/store/jsonfile"
)

// mailbox is a notify.Notifier that keeps every message.
type mailbox struct {
	mu   sync.Mutex
	last map[string]string
	fail error
}

func (m *mailbox) Send(_ context.Context, to, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	if m.last == nil {
		m.last = map[string]string{}
	}
	m.last[to] = body
	return nil
}

var sixDigits = regexp.MustCompile(`\b\d{6}\b`)

func (m *mailbox) code(t *testing.T, to string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	code := sixDigits.FindString(m.last[to])
	require.NotEmpty(t, code, "no code delivered to %s", to)
	return code
}

type testServer struct {
	handler http.Handler
	mail    *mailbox
}

func newTestServer(t *testing.T, verbose bool) *testServer {
	t.Helper()
	st, err := jsonfile.Open(t.TempDir())
	require.NoError(t, err)

	m := metrics.New(prometheus.NewRegistry())
	hasher := services.SHA256Hasher{}
	events := services.NewEventService(st.Events())
	mail := &mailbox{}
	dispatcher := notify.NewDispatcher(mail, notify.DispatcherConfig{
		Retries:  0,
		OnStatus: services.DeliveryReporter(events, m),
	})

	router := NewRouter(Dependencies{
		Users:         services.NewUserService(st.Users(), hasher, events, m),
		Verification:  services.NewVerificationService(services.NewCodeRegistry(st.Codes()), st.Users(), hasher, dispatcher, events, m),
		Entries:       services.NewEntryService(st.Entries()),
		Events:        events,
		Metrics:       m,
		CORSOrigins:   []string{"https://turbinix.one"},
		VerboseErrors: verbose,
	})
	return &testServer{handler: router, mail: mail}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	rec := s.raw(t, method, path, body)
	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func (s *testServer) raw(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func registerAlice(t *testing.T, s *testServer) {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/api/register", map[string]string{
		"email": "a@x.com", "username": "alice", "password": "pw", "first_name": "A", "last_name": "L",
	})
	require.Equal(t, http.StatusCreated, status, body)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, false)
	status, body := s.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t, false)

	status, body := s.do(t, http.MethodGet, "/api/check-username/alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["available"])

	registerAlice(t, s)

	status, body = s.do(t, http.MethodGet, "/api/check-username/alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["available"])

	status, body = s.do(t, http.MethodPost, "/api/register", map[string]string{
		"email": "b@x.com", "username": "alice", "password": "pw",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "Username already exists", body["error"])

	status, body = s.do(t, http.MethodPost, "/api/register", map[string]string{
		"email": "a@x.com", "username": "bob", "password": "pw",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "Email already registered", body["error"])

	status, _ = s.do(t, http.MethodPost, "/api/register", map[string]string{"email": "c@x.com"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(t, http.MethodPost, "/api/login", map[string]string{"identifier": "a@x.com", "password": "pw"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Login successful", body["message"])
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, "A", body["first_name"])
	assert.Equal(t, "L", body["last_name"])
	assert.NotContains(t, body, "password")

	status, body = s.do(t, http.MethodPost, "/api/login", map[string]string{"identifier": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid credentials", body["error"])

	status, _ = s.do(t, http.MethodPost, "/api/login", map[string]string{"identifier": "nobody", "password": "pw"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(t, http.MethodPost, "/api/login", map[string]string{"identifier": "alice"})
	assert.Equal(t, http.StatusBadRequest, status)

	rec := s.raw(t, http.MethodPost, "/api/login", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendAndVerifyCode(t *testing.T) {
	s := newTestServer(t, false)

	status, _ := s.do(t, http.MethodPost, "/api/send-code", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := s.do(t, http.MethodPost, "/api/send-code", map[string]string{"email": "a@x.com"})
	require.Equal(t, http.StatusOK, status, body)
	code := s.mail.code(t, "a@x.com")

	rec := s.raw(t, http.MethodPost, "/api/send-code", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	var throttled map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &throttled))
	assert.InDelta(t, 60, throttled["retry_after"], 1)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	status, body = s.do(t, http.MethodPost, "/api/verify-code", map[string]string{"email": "a@x.com", "code": wrong})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, false, body["verified"])

	status, body = s.do(t, http.MethodPost, "/api/verify-code", map[string]string{"email": "a@x.com", "code": code})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["verified"])

	status, body = s.do(t, http.MethodPost, "/api/verify-code", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, false, body["verified"])
}

func TestSendCodeDeliveryFailure(t *testing.T) {
	for _, verbose := range []bool{false, true} {
		s := newTestServer(t, verbose)
		s.mail.fail = errors.New("relay refused")

		status, body := s.do(t, http.MethodPost, "/api/send-code", map[string]string{"email": "a@x.com"})
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, "Failed to send verification code", body["error"])
		if verbose {
			assert.Contains(t, body["detail"], "relay refused")
		} else {
			assert.NotContains(t, body, "detail")
		}
	}
}

func TestPasswordReset(t *testing.T) {
	s := newTestServer(t, false)
	registerAlice(t, s)

	status, body := s.do(t, http.MethodPost, "/api/request-reset-code", map[string]string{"email": "ghost@x.com"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "User not found", body["error"])

	status, _ = s.do(t, http.MethodPost, "/api/request-reset-code", map[string]string{"email": "a@x.com"})
	require.Equal(t, http.StatusOK, status)
	code := s.mail.code(t, "a@x.com")

	status, _ = s.do(t, http.MethodPost, "/api/request-reset-code", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusTooManyRequests, status)

	status, _ = s.do(t, http.MethodPost, "/api/reset-password", map[string]string{"email": "a@x.com", "code": code})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(t, http.MethodPost, "/api/reset-password", map[string]string{
		"email": "a@x.com", "code": code, "new_password": "new",
	})
	require.Equal(t, http.StatusOK, status, body)

	status, _ = s.do(t, http.MethodPost, "/api/login", map[string]string{"identifier": "alice", "password": "new"})
	assert.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, http.MethodPost, "/api/login", map[string]string{"identifier": "alice", "password": "pw"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = s.do(t, http.MethodPost, "/api/reset-password", map[string]string{
		"email": "a@x.com", "code": code, "new_password": "again",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid code", body["error"])
}

func TestResetPasswordUnknownUser(t *testing.T) {
	s := newTestServer(t, false)

	status, _ := s.do(t, http.MethodPost, "/api/send-code", map[string]string{"email": "ghost@x.com"})
	require.Equal(t, http.StatusOK, status)
	code := s.mail.code(t, "ghost@x.com")

	status, _ = s.do(t, http.MethodPost, "/api/reset-password", map[string]string{
		"email": "ghost@x.com", "code": code, "new_password": "new",
	})
	assert.Equal(t, http.StatusNotFound, status)

	status, body := s.do(t, http.MethodPost, "/api/verify-code", map[string]string{"email": "ghost@x.com", "code": code})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["verified"])
}

func TestEntries(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.raw(t, http.MethodGet, "/api/entries/alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	status, body := s.do(t, http.MethodPost, "/api/entries/alice", map[string]any{"title": "first", "score": 3})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "Entry saved", body["message"])
	firstID, _ := body["id"].(string)
	require.NotEmpty(t, firstID)

	status, _ = s.do(t, http.MethodPost, "/api/entries/alice", map[string]any{"title": "second"})
	require.Equal(t, http.StatusCreated, status)
	status, _ = s.do(t, http.MethodPost, "/api/entries/bob", map[string]any{"title": "bob's"})
	require.Equal(t, http.StatusCreated, status)

	rec = s.raw(t, http.MethodPost, "/api/entries/alice", []int{1, 2})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.raw(t, http.MethodGet, "/api/entries/alice", nil)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "alice", list[0]["user"])
	assert.Equal(t, firstID, list[0]["id"])
	assert.Equal(t, float64(3), list[0]["score"])

	status, body = s.do(t, http.MethodPut, "/api/entries/alice/1", map[string]any{"title": "second!"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Entry updated", body["message"])

	status, body = s.do(t, http.MethodPut, "/api/entries/alice/9", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid index", body["error"])

	status, _ = s.do(t, http.MethodPut, "/api/entries/alice/nope", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(t, http.MethodDelete, "/api/entries/alice/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Entry not found", body["error"])

	status, body = s.do(t, http.MethodDelete, "/api/entries/alice/"+firstID, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Entry deleted", body["message"])

	rec = s.raw(t, http.MethodGet, "/api/entries/alice", nil)
	list = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "second!", list[0]["title"])
}

func TestEventsAndMetrics(t *testing.T) {
	s := newTestServer(t, false)
	registerAlice(t, s)
	status, _ := s.do(t, http.MethodPost, "/api/send-code", map[string]string{"email": "a@x.com"})
	require.Equal(t, http.StatusOK, status)

	rec := s.raw(t, http.MethodGet, "/api/events?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 2)
	assert.Equal(t, services.EventNotificationSent, events[0]["type"])
	assert.Equal(t, services.EventCodeIssued, events[1]["type"])

	rec = s.raw(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `turbinix_registrations_total{outcome="success"} 1`)
	assert.Contains(t, rec.Body.String(), `turbinix_notifications_total{outcome="success"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodOptions, "/api/login", nil)
	req.Header.Set("Origin", "https://turbinix.one")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://turbinix.one", rec.Header().Get("Access-Control-Allow-Origin"))
}
