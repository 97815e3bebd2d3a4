package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medagentx/client"
	"medagentx/report"
)

const validDraft = "Patient reports chest pain and elevated bp over the last week."

type stubAnalyzer struct {
	mu     sync.Mutex
	calls  int
	result report.AnalysisResult
	err    error
	// start is closed when the first call begins; block holds calls until closed.
	start chan struct{}
	block chan struct{}
}

func (s *stubAnalyzer) Analyze(_ context.Context, _ string) (report.AnalysisResult, error) {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	result, err := s.result, s.err
	s.mu.Unlock()

	if first && s.start != nil {
		close(s.start)
	}
	if s.block != nil {
		<-s.block
	}
	return result, err
}

func (s *stubAnalyzer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newBlockingAnalyzer() *stubAnalyzer {
	return &stubAnalyzer{
		result: report.AnalysisResult{Summary: "s"},
		start:  make(chan struct{}),
		block:  make(chan struct{}),
	}
}

func newTestServer(t *testing.T, a *stubAnalyzer) (*httptest.Server, *http.Client) {
	t.Helper()
	_, ts, c := newTestServerWith(t, a)
	return ts, c
}

func newTestServerWith(t *testing.T, a *stubAnalyzer) (*Server, *httptest.Server, *http.Client) {
	t.Helper()
	srv, err := New(nil, a, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return srv, ts, &http.Client{Jar: jar}
}

func getState(t *testing.T, c *http.Client, url string) map[string]any {
	t.Helper()
	resp, err := c.Get(url + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	return state
}

func postJSON(t *testing.T, c *http.Client, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := c.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return buf.String()
}

func TestIndex_InitialPage(t *testing.T) {
	srv, ts, c := newTestServerWith(t, &stubAnalyzer{})

	resp, err := c.Get(ts.URL + "/")
	require.NoError(t, err)
	body := readBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Paste a medical report here...")
	assert.Contains(t, body, "Results will appear here once analysis is complete.")
	assert.Contains(t, body, `id="submit" type="submit" disabled`)
	assert.Empty(t, resp.Cookies())
	assert.Zero(t, srv.store.len())
}

func TestCookielessReadsDoNotCreateSessions(t *testing.T) {
	srv, ts, _ := newTestServerWith(t, &stubAnalyzer{})

	for i := 0; i < 20; i++ {
		for _, path := range []string{"/", "/api/state"} {
			// a fresh client each time, like a crawler without cookies
			resp, err := http.Get(ts.URL + path)
			require.NoError(t, err)
			resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)
		}
		_, out := postJSON(t, http.DefaultClient, ts.URL+"/api/validate", map[string]string{"report": validDraft})
		require.Equal(t, true, out["valid"])
	}
	assert.Zero(t, srv.store.len())
}

func TestSubmitForm_Success(t *testing.T) {
	a := &stubAnalyzer{result: report.AnalysisResult{
		Cardiologist:  "- cardiac finding",
		Psychologist:  "- anxiety finding",
		Pulmonologist: "- lung finding",
		Summary:       "- overall",
	}}
	ts, c := newTestServer(t, a)

	resp, err := c.PostForm(ts.URL+"/submit", url.Values{"report": {validDraft}})
	require.NoError(t, err)
	body := readBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, a.callCount())
	order := []string{"Cardiologist&#39;s Report", "Psychologist&#39;s Report", "Pulmonologist&#39;s Report", "Final MDT Summary"}
	last := -1
	for _, title := range order {
		idx := strings.Index(body, title)
		require.Greater(t, idx, last, title)
		last = idx
	}
	assert.Contains(t, body, "<li>lung finding</li>")
	assert.NotContains(t, body, "Results will appear here")
}

func TestSubmitForm_Invalid(t *testing.T) {
	a := &stubAnalyzer{}
	ts, c := newTestServer(t, a)

	resp, err := c.PostForm(ts.URL+"/submit", url.Values{"report": {"hello"}})
	require.NoError(t, err)
	body := readBody(t, resp)

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Zero(t, a.callCount())
	assert.Contains(t, body, "Report is too short.")
	assert.Contains(t, body, `id="submit" type="submit" disabled`)
	assert.Contains(t, body, ">hello</textarea>")
}

func TestSubmitForm_ServerError(t *testing.T) {
	a := &stubAnalyzer{err: &client.StatusError{StatusCode: 500, Message: "model quota exceeded"}}
	ts, c := newTestServer(t, a)

	resp, err := c.PostForm(ts.URL+"/submit", url.Values{"report": {validDraft}})
	require.NoError(t, err)
	body := readBody(t, resp)

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body, `<p class="error">model quota exceeded</p>`)
}

func TestAPI_Validate(t *testing.T) {
	ts, c := newTestServer(t, &stubAnalyzer{})

	resp, out := postJSON(t, c, ts.URL+"/api/validate", map[string]string{"report": validDraft})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, out["valid"])
	assert.ElementsMatch(t, []any{"bp", "patient"}, out["keywords"])

	_, out = postJSON(t, c, ts.URL+"/api/validate", map[string]string{"report": "hello"})
	assert.Equal(t, false, out["valid"])
	assert.Equal(t, "too short", out["reason"])
	assert.Equal(t, []any{}, out["keywords"])
}

func TestAPI_SubmitAndState(t *testing.T) {
	a := &stubAnalyzer{result: report.AnalysisResult{Cardiologist: "ok", Summary: "done"}}
	ts, c := newTestServer(t, a)

	resp, out := postJSON(t, c, ts.URL+"/api/submit", map[string]string{"report": validDraft})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "succeeded", out["state"])
	sections, ok := out["sections"].([]any)
	require.True(t, ok)
	require.Len(t, sections, 4)
	assert.Equal(t, "", sections[1].(map[string]any)["html"])

	// the session cookie ties the follow-up request to the same controller
	state := getState(t, c, ts.URL)
	assert.Equal(t, "succeeded", state["state"])
	assert.Equal(t, validDraft, state["draft"])
}

func TestAPI_SubmitErrors(t *testing.T) {
	a := &stubAnalyzer{err: &client.StatusError{StatusCode: 500, Message: client.GenericServerMessage}}
	ts, c := newTestServer(t, a)

	resp, out := postJSON(t, c, ts.URL+"/api/submit", map[string]string{"report": "hello"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "idle", out["state"])
	assert.NotEmpty(t, out["validation"])

	resp, out = postJSON(t, c, ts.URL+"/api/submit", map[string]string{"report": validDraft})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "failed", out["state"])
	assert.Equal(t, "Server error", out["error"])
	assert.Nil(t, out["result"])
}

func TestSessionsAreIsolated(t *testing.T) {
	a := &stubAnalyzer{result: report.AnalysisResult{Summary: "s"}}
	ts, c1 := newTestServer(t, a)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	c2 := &http.Client{Jar: jar}

	postJSON(t, c1, ts.URL+"/api/submit", map[string]string{"report": validDraft})

	state := getState(t, c2, ts.URL)
	assert.Equal(t, "idle", state["state"])
	assert.Equal(t, "", state["draft"])
}

func TestAPI_SubmitRejectedWhileInFlight(t *testing.T) {
	a := newBlockingAnalyzer()
	ts, c := newTestServer(t, a)

	// a rejected draft opens the session without reaching the analyzer
	resp, _ := postJSON(t, c, ts.URL+"/api/submit", map[string]string{"report": "hello"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	done := make(chan int, 1)
	go func() {
		b, _ := json.Marshal(map[string]string{"report": validDraft})
		resp, err := c.Post(ts.URL+"/api/submit", "application/json", bytes.NewReader(b))
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()
	<-a.start

	resp, out := postJSON(t, c, ts.URL+"/api/submit", map[string]string{"report": validDraft})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "submitting", out["state"])
	assert.Equal(t, true, out["loading"])
	assert.Contains(t, out["notice"], "already running")

	close(a.block)
	assert.Equal(t, http.StatusOK, <-done)
	assert.Equal(t, 1, a.callCount())
	assert.Equal(t, "succeeded", getState(t, c, ts.URL)["state"])
}

func TestSubmitForm_RejectedWhileInFlight(t *testing.T) {
	a := newBlockingAnalyzer()
	ts, c := newTestServer(t, a)

	resp, err := c.PostForm(ts.URL+"/submit", url.Values{"report": {"hello"}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	done := make(chan int, 1)
	go func() {
		resp, err := c.PostForm(ts.URL+"/submit", url.Values{"report": {validDraft}})
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()
	<-a.start

	resp, err = c.PostForm(ts.URL+"/submit", url.Values{"report": {validDraft}})
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body, "An analysis is already running for this report.")
	assert.Contains(t, body, "Analyzing...")
	assert.Contains(t, body, `id="submit" type="submit" disabled`)

	close(a.block)
	assert.Equal(t, http.StatusOK, <-done)
	assert.Equal(t, 1, a.callCount())
}

func TestAPI_SubmitCanceled(t *testing.T) {
	a := &stubAnalyzer{err: context.Canceled}
	ts, c := newTestServer(t, a)

	resp, out := postJSON(t, c, ts.URL+"/api/submit", map[string]string{"report": validDraft})
	assert.Equal(t, http.StatusRequestTimeout, resp.StatusCode)
	assert.Equal(t, "failed", out["state"])
	assert.Equal(t, "Something went wrong.", out["error"])
}

func TestAPI_ValidateUpdatesSession(t *testing.T) {
	ts, c := newTestServer(t, &stubAnalyzer{})

	resp, _ := postJSON(t, c, ts.URL+"/api/submit", map[string]string{"report": "hello"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.NotEmpty(t, getState(t, c, ts.URL)["validation"])

	_, out := postJSON(t, c, ts.URL+"/api/validate", map[string]string{"report": validDraft})
	require.Equal(t, true, out["valid"])

	state := getState(t, c, ts.URL)
	assert.Nil(t, state["validation"])
	assert.Equal(t, validDraft, state["draft"])
	assert.Equal(t, true, state["can_submit"])
}

func TestHealth(t *testing.T) {
	ts, c := newTestServer(t, &stubAnalyzer{})
	resp, err := c.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNew_RequiresAnalyzer(t *testing.T) {
	_, err := New(nil, nil, nil)
	assert.Error(t, err)
}
