package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/nlq/internal/chain"
	"github.com/JonMunkholm/nlq/internal/schema"
	"github.com/JonMunkholm/nlq/internal/session"
	"github.com/JonMunkholm/nlq/internal/shaper"
)

const testSession = "6f1c1f4e-2d5b-4c1e-9a59-3f7c2b8e0a11"

type stubInvoker struct {
	records map[string]chain.Record
}

func (s stubInvoker) Invoke(_ context.Context, q string) chain.Outcome {
	rec, ok := s.records[q]
	if !ok {
		return chain.Outcome{Record: chain.SentinelRecord(q), State: chain.Failed}
	}
	return chain.Outcome{Record: rec, State: chain.Done}
}

type stubSchema struct {
	refreshed int
	err       error
}

func (s *stubSchema) GetTables() []schema.Table {
	return []schema.Table{{Name: "artists"}, {Name: "artworks"}}
}
func (s *stubSchema) TableCount() int            { return 2 }
func (s *stubSchema) GetLastRefresh() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
func (s *stubSchema) Refresh(context.Context) error {
	s.refreshed++
	return s.err
}

var records = map[string]chain.Record{
	"How many artists are there?": {
		Question: "How many artists are there?",
		SQL:      "SELECT count(*) FROM artists;",
		Result:   "[(1,)]",
		Columns:  []string{"count"},
		Answer:   "There is 1 artist.",
	},
	"Artworks by classification?": {
		Question: "Artworks by classification?",
		SQL:      "SELECT classification, count(*) FROM artworks GROUP BY 1;",
		Result:   "[('Print', 300), ('Painting', 500)]",
		Columns:  []string{"classification", "count"},
		Answer:   "Painting leads with 500.",
	},
}

func newTestServer(t *testing.T, sch SchemaSource) (*Server, *session.Manager) {
	t.Helper()
	mgr := session.NewManager()
	srv, err := New(Options{
		Invoker:  stubInvoker{records: records},
		Sessions: mgr,
		Schema:   sch,
		Info:     Info{Backend: "bedrock", Model: "anthropic.claude-v2"},
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return srv, mgr
}

func do(t *testing.T, h http.Handler, method, target, body, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: testSession})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAskAppendsAnswer(t *testing.T) {
	srv, mgr := newTestServer(t, nil)
	h := srv.Routes()

	rr := do(t, h, http.MethodPost, "/api/ask", `{"question":"How many artists are there?"}`, "application/json")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp askResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.History)
	assert.Equal(t, "There is 1 artist.", resp.Entry.Record.Answer)
	assert.False(t, resp.Entry.Record.Sentinel)
	assert.Equal(t, 1, mgr.Get(testSession).Len())
}

func TestAskFailureAppendsSentinel(t *testing.T) {
	srv, mgr := newTestServer(t, nil)

	rr := do(t, srv.Routes(), http.MethodPost, "/api/ask", `{"question":"Give me a recipe for chocolate cake."}`, "application/json")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp askResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Entry.Record.Sentinel)
	assert.Equal(t, chain.Sentinel, resp.Entry.Record.Answer)
	assert.Equal(t, 1, mgr.Get(testSession).Len())
}

func TestAskRejectsInvalidInput(t *testing.T) {
	srv, mgr := newTestServer(t, nil)
	h := srv.Routes()

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"question":`},
		{"blank", `{"question":"   "}`},
		{"too long", `{"question":"` + strings.Repeat("a", maxQuestionLen+1) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/api/ask", tt.body, "application/json")
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
	assert.Equal(t, 0, mgr.Get(testSession).Len())
}

func TestFormAskRedirectsAndRendersHistory(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Routes()

	form := url.Values{"question": {"How many artists are there?"}}.Encode()
	rr := do(t, h, http.MethodPost, "/ask", form, "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))

	rr = do(t, h, http.MethodGet, "/", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "How many artists are there?")
	assert.Contains(t, body, "There is 1 artist.")
	assert.Contains(t, body, "SELECT count(*) FROM artists;")
	assert.Contains(t, body, "anthropic.claude-v2")
	assert.Contains(t, body, "Give me a recipe for chocolate cake.")
}

func TestDetailsChartSortedByMetric(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Routes()

	do(t, h, http.MethodPost, "/api/ask", `{"question":"Artworks by classification?"}`, "application/json")
	rr := do(t, h, http.MethodGet, "/api/details", "", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var d Details
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &d))
	require.NotNil(t, d.Entry)
	assert.Equal(t, []string{"classification", "count"}, d.Columns)
	assert.Equal(t, [][]string{{"Print", "300"}, {"Painting", "500"}}, d.Rows)
	assert.Equal(t, []shaper.Point{{Category: "Painting", Metric: 500}, {Category: "Print", Metric: 300}}, d.Chart)
}

func TestDetailsHideSentinel(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Routes()

	do(t, h, http.MethodPost, "/api/ask", `{"question":"Who won the 2022 FIFA World Cup final?"}`, "application/json")
	rr := do(t, h, http.MethodGet, "/api/details", "", "")

	var d Details
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &d))
	require.NotNil(t, d.Entry)
	assert.True(t, d.Entry.Record.Sentinel)
	assert.Empty(t, d.Rows)
	assert.Empty(t, d.Chart)
}

func TestExportCSV(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Routes()

	rr := do(t, h, http.MethodGet, "/export.csv", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	do(t, h, http.MethodPost, "/api/ask", `{"question":"Artworks by classification?"}`, "application/json")
	rr = do(t, h, http.MethodGet, "/export.csv", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	assert.Equal(t, "classification,count\nPrint,300\nPainting,500\n", rr.Body.String())
}

func TestClearEmptiesHistory(t *testing.T) {
	srv, mgr := newTestServer(t, nil)
	h := srv.Routes()

	do(t, h, http.MethodPost, "/api/ask", `{"question":"How many artists are there?"}`, "application/json")
	rr := do(t, h, http.MethodPost, "/api/clear", "", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 0, mgr.Get(testSession).Len())
}

func TestAskSetsCookieForNewSession(t *testing.T) {
	srv, mgr := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"question":"How many artists are there?"}`))
	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookie, cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)
	assert.Equal(t, 1, mgr.Len())
}

func TestReadOnlyRoutesDoNotStoreSessions(t *testing.T) {
	srv, mgr := newTestServer(t, nil)
	h := srv.Routes()

	for i := 0; i < 50; i++ {
		for _, target := range []string{"/", "/api/history", "/api/details", "/export.csv"} {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
			assert.Empty(t, rr.Result().Cookies(), target)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/clear", nil))
		assert.Equal(t, http.StatusNoContent, rr.Code)
	}
	assert.Equal(t, 0, mgr.Len())

	form := url.Values{"question": {"  "}}.Encode()
	do(t, h, http.MethodPost, "/ask", form, "application/x-www-form-urlencoded")
	assert.Equal(t, 0, mgr.Len())
}

func TestDetailsDegradeWhenResultIsNotTabular(t *testing.T) {
	mgr := session.NewManager()
	srv, err := New(Options{
		Invoker: stubInvoker{records: map[string]chain.Record{
			"Odd result?": {
				Question: "Odd result?",
				SQL:      "SELECT odd();",
				Result:   "not a literal",
				Answer:   "Here is the odd result.",
			},
		}},
		Sessions: mgr,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	h := srv.Routes()

	do(t, h, http.MethodPost, "/api/ask", `{"question":"Odd result?"}`, "application/json")

	rr := do(t, h, http.MethodGet, "/api/details", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var d Details
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &d))
	require.NotNil(t, d.Entry)
	assert.Equal(t, "Here is the odd result.", d.Entry.Record.Answer)
	assert.NotEmpty(t, d.ParseError)
	assert.Empty(t, d.Rows)
	assert.Empty(t, d.Chart)

	rr = do(t, h, http.MethodGet, "/", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Here is the odd result.")

	rr = do(t, h, http.MethodGet, "/export.csv", "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestConcurrentAsksReturnTheirOwnEntry(t *testing.T) {
	srv, mgr := newTestServer(t, nil)
	h := srv.Routes()

	questions := []string{"How many artists are there?", "Artworks by classification?", "Give me a recipe for chocolate cake."}
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		q := questions[i%len(questions)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			rr := do(t, h, http.MethodPost, "/api/ask", `{"question":"`+q+`"}`, "application/json")
			var resp askResponse
			if assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp)) {
				assert.Equal(t, q, resp.Entry.Question)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 30, mgr.Get(testSession).Len())
}

func TestSchemaEndpoints(t *testing.T) {
	sch := &stubSchema{}
	srv, _ := newTestServer(t, sch)
	h := srv.Routes()

	rr := do(t, h, http.MethodGet, "/schema", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"tableCount":2`)
	assert.Contains(t, rr.Body.String(), `"lastRefresh":"2024-01-02T03:04:05Z"`)

	rr = do(t, h, http.MethodPost, "/schema/refresh", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, sch.refreshed)

	sch.err = errors.New("connection reset")
	rr = do(t, h, http.MethodPost, "/schema/refresh", "", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestSchemaUnavailable(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rr := do(t, srv.Routes(), http.MethodGet, "/schema", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestPercent(t *testing.T) {
	points := []shaper.Point{{Metric: 500}, {Metric: 250}}
	assert.Equal(t, 100.0, percent(500, points))
	assert.Equal(t, 50.0, percent(250, points))
	assert.Equal(t, 0.0, percent(-1, points))
	assert.Equal(t, 0.0, percent(1, nil))
}
