package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func serve(t *testing.T, server *HTTPServer, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d body=%s", status, rr.Code, rr.Body.String())
	}
	if code != "" {
		if got, _ := decodeMap(t, rr)["code"].(string); got != code {
			t.Fatalf("expected code %s, got %q", code, got)
		}
	}
}

func replayBody(persist bool) string {
	return `{"documentId":"doc-1","persist":` + strconv.FormatBool(persist) +
		`,"changelog":` + helloChangelog + `,"userMap":` + helloUsers + `}`
}

func TestHealthEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*", "secret", nil)
	rr := serve(t, server, http.MethodGet, "/api/health", "", "")
	expectStatus(t, rr, http.StatusOK, "")
	if decodeMap(t, rr)["ok"] != true {
		t.Fatalf("expected ok=true, got %s", rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("unexpected CORS origin %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestReadyEndpoint(t *testing.T) {
	fs := newFakeStore()
	server := NewHTTPServer(newTestService(fs), "*", "", nil)

	rr := serve(t, server, http.MethodGet, "/api/ready", "", "")
	expectStatus(t, rr, http.StatusOK, "")
	if decodeMap(t, rr)["status"] != "ready" {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}

	fs.pingErr = errors.New("connection refused")
	rr = serve(t, server, http.MethodGet, "/api/ready", "", "")
	expectStatus(t, rr, http.StatusServiceUnavailable, "")
	checks, _ := decodeMap(t, rr)["checks"].(map[string]any)
	database, _ := checks["database"].(map[string]any)
	if database["status"] != "error" || database["error"] != "connection refused" {
		t.Fatalf("unexpected checks %+v", checks)
	}
}

func TestReadyWithoutStore(t *testing.T) {
	server := NewHTTPServer(newTestService(nil), "*", "", nil)
	rr := serve(t, server, http.MethodGet, "/api/ready", "", "")
	expectStatus(t, rr, http.StatusServiceUnavailable, "")
}

func TestTokenRequired(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*", "secret", nil)

	rr := serve(t, server, http.MethodPost, "/api/replay", "", replayBody(false))
	expectStatus(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")

	rr = serve(t, server, http.MethodPost, "/api/replay", "wrong", replayBody(false))
	expectStatus(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")

	rr = serve(t, server, http.MethodPost, "/api/replay", "secret", replayBody(false))
	expectStatus(t, rr, http.StatusOK, "")
}

func TestQueryTokenOnlyForWebsocket(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*", "secret", nil)

	rr := serve(t, server, http.MethodGet, "/api/documents/doc-1/events?token=secret", "", "")
	expectStatus(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")

	req := httptest.NewRequest(http.MethodGet, "/api/documents/doc-1/events?token=secret", nil)
	req.Header.Set("Upgrade", "websocket")
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	expectStatus(t, rr, http.StatusServiceUnavailable, "EVENTS_UNAVAILABLE")
}

func TestReplayEndpoint(t *testing.T) {
	fs := newFakeStore()
	server := NewHTTPServer(newTestService(fs), "*", "", nil)

	rr := serve(t, server, http.MethodPost, "/api/replay", "", replayBody(true))
	expectStatus(t, rr, http.StatusOK, "")
	var out struct {
		ReportID string `json:"reportId"`
		Cached   bool   `json:"cached"`
		Result   struct {
			FinalText string `json:"finalText"`
			Tiles     []any  `json:"tiles"`
		} `json:"result"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if out.ReportID == "" || out.Cached || len(out.Result.Tiles) != 1 {
		t.Fatalf("unexpected response %s", rr.Body.String())
	}
	if out.Result.FinalText != " world, this is a long inserted phrase" {
		t.Fatalf("unexpected final text %q", out.Result.FinalText)
	}
}

func TestReplayEndpointErrors(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore()), "*", "", nil)
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"malformed body", `{"changelog":`, http.StatusBadRequest, "INVALID_BODY"},
		{"empty body", "", http.StatusBadRequest, "INVALID_CHANGELOG"},
		{"object changelog", `{"changelog":{"ty":"is"}}`, http.StatusBadRequest, "INVALID_CHANGELOG"},
		{"negative option", `{"changelog":[],"options":{"tileGapMs":-5}}`, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(t, server, http.MethodPost, "/api/replay", "", tt.body)
			expectStatus(t, rr, tt.status, tt.code)
		})
	}
}

func TestReplayEndpointTooLarge(t *testing.T) {
	svc := newTestService(nil)
	svc.cfg.MaxOperations = 1
	server := NewHTTPServer(svc, "*", "", nil)
	rr := serve(t, server, http.MethodPost, "/api/replay", "", `{"changelog":`+helloChangelog+`}`)
	expectStatus(t, rr, http.StatusRequestEntityTooLarge, "CHANGELOG_TOO_LARGE")
}

func TestReportEndpoints(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*", "", nil)
	first := replayHello(t, svc, true)

	rr := serve(t, server, http.MethodGet, "/api/reports/"+first.ReportID, "", "")
	expectStatus(t, rr, http.StatusOK, "")
	payload := decodeMap(t, rr)
	if payload["id"] != first.ReportID || payload["documentId"] != "doc-1" || payload["archived"] != false {
		t.Fatalf("unexpected report payload %+v", payload)
	}
	if _, ok := payload["result"].(map[string]any); !ok {
		t.Fatalf("expected embedded result, got %T", payload["result"])
	}

	rr = serve(t, server, http.MethodGet, "/api/reports/rpt_missing", "", "")
	expectStatus(t, rr, http.StatusNotFound, "NOT_FOUND")

	rr = serve(t, server, http.MethodGet, "/api/documents/doc-1/reports?limit=5", "", "")
	expectStatus(t, rr, http.StatusOK, "")
	reports, _ := decodeMap(t, rr)["reports"].([]any)
	if len(reports) != 1 {
		t.Fatalf("expected one report, got %s", rr.Body.String())
	}
	summary, _ := reports[0].(map[string]any)
	if summary["tiles"] != float64(1) || summary["createdAtText"] == "" {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestRerunEndpoint(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*", "", nil)
	first := replayHello(t, svc, true)

	rr := serve(t, server, http.MethodPost, "/api/reports/"+first.ReportID+"/rerun", "", `{"options":{"minPasteLen":100}}`)
	expectStatus(t, rr, http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE")

	svc.archive = newFakeArchive()
	second := replayHello(t, svc, true)
	if second.ReportID != first.ReportID {
		t.Fatalf("expected fingerprint reuse, got %q", second.ReportID)
	}
	minPaste := 0
	archived, err := svc.Replay(context.Background(), ReplayInput{
		DocumentID: "doc-1",
		Changelog:  json.RawMessage(helloChangelog),
		Options:    ReplayOptionsInput{MinPasteLen: &minPaste},
		Persist:    true,
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	rr = serve(t, server, http.MethodPost, "/api/reports/"+archived.ReportID+"/rerun", "", `{"options":{"minPasteLen":100}}`)
	expectStatus(t, rr, http.StatusOK, "")
	if decodeMap(t, rr)["reportId"] == archived.ReportID {
		t.Fatal("expected a new report id")
	}
}

func TestExportEndpoint(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*", "", nil)
	first := replayHello(t, svc, true)

	rr := serve(t, server, http.MethodGet, "/api/reports/"+first.ReportID+"/export?format=html", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("unexpected content type %q", rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "provenance-doc-1-") {
		t.Fatalf("unexpected disposition %q", rr.Header().Get("Content-Disposition"))
	}
	if !strings.Contains(rr.Body.String(), "Ada") {
		t.Fatal("expected author name in export")
	}

	rr = serve(t, server, http.MethodGet, "/api/reports/"+first.ReportID+"/export?format=odt", "", "")
	expectStatus(t, rr, http.StatusBadRequest, "UNSUPPORTED_FORMAT")
}

func TestShareEndpoints(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	now := time.Now()
	svc.now = func() time.Time { return now }
	server := NewHTTPServer(svc, "*", "secret", nil)
	first := replayHello(t, svc, true)

	rr := serve(t, server, http.MethodPost, "/api/reports/"+first.ReportID+"/share", "secret", "")
	expectStatus(t, rr, http.StatusCreated, "")
	path, _ := decodeMap(t, rr)["path"].(string)
	if !strings.HasPrefix(path, "/api/shared/") {
		t.Fatalf("unexpected share path %q", path)
	}

	rr = serve(t, server, http.MethodGet, path, "", "")
	expectStatus(t, rr, http.StatusOK, "")
	if decodeMap(t, rr)["shared"] != true {
		t.Fatalf("unexpected shared payload %s", rr.Body.String())
	}

	rr = serve(t, server, http.MethodGet, "/api/shared/garbage", "", "")
	expectStatus(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")

	now = now.Add(2 * time.Hour)
	rr = serve(t, server, http.MethodGet, path, "", "")
	expectStatus(t, rr, http.StatusGone, "SHARE_EXPIRED")
}

func TestSearchEndpoint(t *testing.T) {
	svc := newTestService(newFakeStore())
	searcher := &fakeSearch{}
	svc.search = searcher
	server := NewHTTPServer(svc, "*", "", nil)

	rr := serve(t, server, http.MethodGet, "/api/search?q=%20", "", "")
	expectStatus(t, rr, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	rr = serve(t, server, http.MethodGet, "/api/search?q=hello&documentId=doc-1&authorId=u1&limit=5&offset=10", "", "")
	expectStatus(t, rr, http.StatusOK, "")
	payload := decodeMap(t, rr)
	if payload["backend"] != "pgfts" || payload["total"] != float64(1) {
		t.Fatalf("unexpected search payload %+v", payload)
	}
	q := searcher.queries[0]
	if q.Text != "hello" || q.DocumentID != "doc-1" || q.AuthorID != "u1" || q.Limit != 5 || q.Offset != 10 {
		t.Fatalf("unexpected query %+v", q)
	}
}

func TestSearchWithoutBackend(t *testing.T) {
	server := NewHTTPServer(newTestService(nil), "*", "", nil)
	rr := serve(t, server, http.MethodGet, "/api/search?q=hello", "", "")
	expectStatus(t, rr, http.StatusOK, "")
	if decodeMap(t, rr)["backend"] != "none" {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestSnapshotsEndpoint(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*", "", nil)

	rr := serve(t, server, http.MethodGet, "/api/documents/doc-1/snapshots", "", "")
	expectStatus(t, rr, http.StatusServiceUnavailable, "SNAPSHOTS_UNAVAILABLE")

	svc.snapshots = &fakeSnapshots{}
	replayHello(t, svc, true)
	rr = serve(t, server, http.MethodGet, "/api/documents/doc-1/snapshots", "", "")
	expectStatus(t, rr, http.StatusOK, "")
	snapshots, _ := decodeMap(t, rr)["snapshots"].([]any)
	if len(snapshots) != 1 {
		t.Fatalf("expected one snapshot, got %s", rr.Body.String())
	}

	rr = serve(t, server, http.MethodGet, "/api/documents/doc-1/snapshots/abc1234", "", "")
	expectStatus(t, rr, http.StatusOK, "")
	if text, _ := decodeMap(t, rr)["text"].(string); text != " world, this is a long inserted phrase" {
		t.Fatalf("unexpected snapshot text %q", text)
	}

	rr = serve(t, server, http.MethodGet, "/api/documents/doc-1/snapshots/0000000", "", "")
	expectStatus(t, rr, http.StatusNotFound, "NOT_FOUND")
}

func TestRouterFallbacks(t *testing.T) {
	server := NewHTTPServer(newTestService(nil), "https://app.example", "", nil)

	rr := serve(t, server, http.MethodGet, "/api/nope", "", "")
	expectStatus(t, rr, http.StatusNotFound, "NOT_FOUND")

	rr = serve(t, server, http.MethodDelete, "/api/health", "", "")
	expectStatus(t, rr, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED")

	rr = serve(t, server, http.MethodOptions, "/api/replay", "", "")
	if rr.Code != http.StatusNoContent || rr.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Fatalf("unexpected preflight %d %v", rr.Code, rr.Header())
	}
}
