package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/crypto/bcrypt"

	"github.com/c360studio/taskhub/assistant"
	"github.com/c360studio/taskhub/auth"
	"github.com/c360studio/taskhub/events"
	"github.com/c360studio/taskhub/llm/testutil"
	"github.com/c360studio/taskhub/seed"
	"github.com/c360studio/taskhub/storage"
	"github.com/c360studio/taskhub/upload"
	"github.com/c360studio/taskhub/workflow"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testSecret = "test-secret-that-is-long-enough-for-hs256"

type testEnv struct {
	t       *testing.T
	handler http.Handler
	store   *storage.Store
	issuer  *auth.Issuer
	seeded  *seed.Result
	events  *events.Recorder
	llm     *testutil.MockLLMClient
}

type envOption func(*Deps, *Options)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()

	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hasher := auth.Hasher{Cost: bcrypt.MinCost}
	seeded, err := seed.Run(ctx, store, seed.Options{Hasher: hasher, Logger: discardLogger()})
	require.NoError(t, err)

	issuer, err := auth.NewIssuer(testSecret, time.Hour)
	require.NoError(t, err)

	uploads, err := upload.NewStore(t.TempDir(), "/uploads")
	require.NoError(t, err)

	mock := &testutil.MockLLMClient{Unavailable: true}
	rec := &events.Recorder{}
	deps := Deps{
		Store:     store,
		Issuer:    issuer,
		Hasher:    hasher,
		Assistant: assistant.New(mock, assistant.WithLogger(discardLogger())),
		Uploads:   uploads,
		Events:    rec,
		Logger:    discardLogger(),
	}
	options := Options{Environment: "test"}
	for _, opt := range opts {
		opt(&deps, &options)
	}

	return &testEnv{
		t:       t,
		handler: New(deps, options).Handler(),
		store:   store,
		issuer:  issuer,
		seeded:  seeded,
		events:  rec,
		llm:     mock,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// user returns a seeded account by e-mail.
func (e *testEnv) user(email string) *workflow.User {
	e.t.Helper()
	u, ok := e.seeded.Users[email]
	require.True(e.t, ok, "unknown seeded user %s", email)
	return u
}

// token issues a token for a seeded account without going through login.
func (e *testEnv) token(email string) string {
	e.t.Helper()
	u := e.user(email)
	tok, err := e.issuer.Issue(auth.Claims{UserID: u.ID, Email: u.Email, Role: u.RoleName})
	require.NoError(e.t, err)
	return tok
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// testResponse mirrors envelope with a typed data member.
type testResponse[T any] struct {
	Success    bool                       `json:"success"`
	Message    string                     `json:"message"`
	Timestamp  time.Time                  `json:"timestamp"`
	Data       T                          `json:"data"`
	Pagination *Pagination                `json:"pagination"`
	Errors     []workflow.ValidationError `json:"errors"`
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) testResponse[T] {
	t.Helper()
	var out testResponse[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// expect asserts the status code and message and returns the decoded body.
func expect[T any](t *testing.T, rec *httptest.ResponseRecorder, status int, message string) testResponse[T] {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	out := decodeBody[T](t, rec)
	assert.Equal(t, message, out.Message)
	assert.Equal(t, status < 400, out.Success)
	return out
}

// createProject creates a project owned by the given account and returns it.
func (e *testEnv) createProject(email, name string) *workflow.Project {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/api/projects", e.token(email), map[string]any{
		"name":        name,
		"description": "Descripción suficientemente larga del proyecto",
		"category":    e.seeded.Categories[0].ID,
		"priority":    "High",
	})
	out := expect[projectResponseBody](e.t, rec, http.StatusCreated, "Proyecto creado exitosamente")
	return out.Data.Project
}

// addMember adds a seeded account to a project with the named role.
func (e *testEnv) addMember(ownerEmail string, p *workflow.Project, email, role string) {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/api/projects/"+p.ID+"/members", e.token(ownerEmail), map[string]any{
		"userId": e.user(email).ID,
		"roleId": e.seeded.Roles[role].ID,
	})
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())
}

// createTask creates a task in p as the given account.
func (e *testEnv) createTask(email string, p *workflow.Project, body map[string]any) *workflow.Task {
	e.t.Helper()
	if body["title"] == nil {
		body["title"] = "Tarea de prueba"
	}
	if body["description"] == nil {
		body["description"] = "Descripción de la tarea de prueba"
	}
	rec := e.do(http.MethodPost, "/api/projects/"+p.ID+"/tasks", e.token(email), body)
	out := expect[taskResponseBody](e.t, rec, http.StatusCreated, "Tarea creada exitosamente")
	return out.Data.Task
}

func (e *testEnv) state(typ workflow.StateType, name string) *workflow.State {
	e.t.Helper()
	st, err := e.store.GetStateByName(context.Background(), typ, name)
	require.NoError(e.t, err)
	return st
}

// Response bodies decoded by the tests. Derived fields of the views are
// checked through these where relevant.
type projectBody struct {
	*workflow.Project
	DaysRemaining *int `json:"daysRemaining"`
	IsOverdue     bool `json:"isOverdue"`
}

type projectResponseBody struct {
	Project *workflow.Project `json:"project"`
}

type taskResponseBody struct {
	Task *workflow.Task `json:"task"`
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "Server running", body.Message)
	assert.Equal(t, "test", body.Environment)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/nope", "/api/nope", "/api/projects/x/unknown"} {
		rec := env.do(http.MethodGet, path, env.token("admin@test.com"), nil)
		require.Equal(t, http.StatusNotFound, rec.Code, path)

		var body notFoundResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.False(t, body.Success)
		assert.Equal(t, "Endpoint not found", body.Message)
		assert.Equal(t, path, body.Path)
	}
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodGet, "/health", "", nil)

	rec := env.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `taskhub_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(_ *Deps, o *Options) {
		o.RateLimitMax = 2
		o.RateLimitWindow = time.Minute
	})
	for range 2 {
		rec := env.do(http.MethodGet, "/api/categories", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := env.do(http.MethodGet, "/api/categories", "", nil)
	expect[any](t, rec, http.StatusTooManyRequests, "Demasiadas peticiones, intenta más tarde")

	// Outside /api is not limited.
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health", "", nil).Code)
}

func TestDecodeJSON_BadBody(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[any](t, rec).Message, msgInvalidBody)
}

func TestDate_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		zero bool
	}{
		{in: `"2025-03-01"`, want: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{in: `"2025-03-01T10:30:00Z"`, want: time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)},
		{in: `1735689600`, want: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{in: `null`, zero: true},
		{in: `""`, zero: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d Date
			require.NoError(t, json.Unmarshal([]byte(tt.in), &d))
			assert.True(t, d.Set)
			if tt.zero {
				assert.Nil(t, d.Ptr())
				return
			}
			assert.True(t, tt.want.Equal(d.Time), "got %s", d.Time)
		})
	}

	var d Date
	assert.Error(t, json.Unmarshal([]byte(`"not a date"`), &d))

	var req struct {
		Due  Date `json:"dueDate"`
		Done Date `json:"doneAt"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"dueDate": null}`), &req))
	assert.True(t, req.Due.Set, "explicit null clears")
	assert.False(t, req.Done.Set, "absent field untouched")
}

func TestPageParams(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?page=3&limit=500", nil)
	assert.Equal(t, storage.Page{Page: 3, Limit: storage.MaxPageSize}, pageParams(r, 10))

	r = httptest.NewRequest(http.MethodGet, "/?page=abc", nil)
	assert.Equal(t, storage.Page{Page: 1, Limit: 10}, pageParams(r, 10))
}
