package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tradepost/internal/config"
	"tradepost/internal/http/handlers"
	applog "tradepost/internal/log"
	"tradepost/internal/testutil"
)

type harness struct {
	app  *fiber.App
	db   *sqlx.DB
	deps *handlers.Deps
}

func testConfig() config.Config {
	return config.Config{
		StandardCommissionRate: decimal.RequireFromString(config.DefaultStandardCommissionRate),
		PremiumCommissionRate:  decimal.RequireFromString(config.DefaultPremiumCommissionRate),
		BoostDailyPrice:        decimal.RequireFromString(config.DefaultBoostDailyPrice),
	}
}

func newHarness(t *testing.T, opts handlers.AppOptions) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	deps := handlers.NewDeps(db, testConfig(), nil)
	return &harness{app: handlers.NewApp(deps, opts), db: db, deps: deps}
}

type request struct {
	method  string
	path    string
	body    any
	sid     string
	headers map[string]string
}

func (h *harness) do(t *testing.T, r request) (*http.Response, map[string]any) {
	t.Helper()
	var body io.Reader
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(r.method, r.path, body)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.sid != "" {
		req.AddCookie(&http.Cookie{Name: "sid", Value: r.sid})
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

// login signs email in and returns its session cookie.
func (h *harness) login(t *testing.T, email string) string {
	t.Helper()
	resp, _ := h.do(t, request{
		method: "POST", path: "/api/v1/login",
		body: map[string]string{"email": email, "password": testutil.Password},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, c := range resp.Cookies() {
		if c.Name == "sid" && c.Value != "" {
			return c.Value
		}
	}
	t.Fatal("sid cookie missing")
	return ""
}

type logEntry struct {
	Action string         `json:"action"`
	Level  string         `json:"level"`
	Kind   string         `json:"kind"`
	Status int            `json:"status"`
	Fields map[string]any `json:"fields"`
}

type lockedBuf struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuf) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

// captureLogs routes the structured request log into a buffer while fn runs.
func captureLogs(t *testing.T, fn func()) []logEntry {
	t.Helper()
	buf := &lockedBuf{}
	applog.SetLogger(applog.New("debug", buf))
	defer applog.SetLogger(nil)

	fn()

	buf.mu.Lock()
	defer buf.mu.Unlock()
	var out []logEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.b.String()), "\n") {
		if line == "" {
			continue
		}
		var e logEntry
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		out = append(out, e)
	}
	return out
}

func findLog(entries []logEntry, action string) *logEntry {
	for i := range entries {
		if entries[i].Action == action {
			return &entries[i]
		}
	}
	return nil
}
