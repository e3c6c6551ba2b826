package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/labels"
	"github.com/starford/laguz/internal/labelservice"
	"github.com/starford/laguz/internal/preview"
	"github.com/starford/laguz/internal/storage"
	"github.com/starford/laguz/internal/testutil"
)

// testEnv sets up a dataset directory with images, a SQLite DB, the label
// service and the router. An empty token means auth is disabled.
func testEnv(t *testing.T, authToken string, images ...string) (*labelservice.Service, http.Handler, storage.Provider) {
	t.Helper()
	if len(images) == 0 {
		images = []string{"a.png", "b.png", "c.png"}
	}
	_, store := testutil.ImageTree(t, images...)

	renderer, err := preview.New(preview.Config{}, nil)
	if err != nil {
		t.Fatalf("preview.New: %v", err)
	}
	t.Cleanup(renderer.Flush)

	svc := labelservice.New(store, labels.NewCodec(labels.DefaultVocabulary()),
		labelservice.WithIndex(testutil.TestDB(t)),
		labelservice.WithRenderer(renderer),
	)
	router := NewRouter(svc, authToken != "", authToken, nil)
	return svc, router, store
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) SessionState {
	t.Helper()
	var st SessionState
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode state: %v (%s)", err, w.Body.String())
	}
	return st
}

// scanAndOpen creates and saves the dataset, then opens it.
func scanAndOpen(t *testing.T, router http.Handler) SessionState {
	t.Helper()
	w := do(t, router, http.MethodPost, "/dataset/scan", ScanRequest{Save: true})
	if w.Code != http.StatusOK {
		t.Fatalf("scan = %d, body = %s", w.Code, w.Body.String())
	}
	w = do(t, router, http.MethodPost, "/dataset/open", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("open = %d, body = %s", w.Code, w.Body.String())
	}
	return decodeState(t, w)
}

func TestVocabulary(t *testing.T) {
	_, router, _ := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/vocabulary", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("vocabulary = %d", w.Code)
	}
	var resp VocabularyResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Labels) != 3 || resp.Labels[1].ID != "fire" || resp.Labels[2].Name != "Smoke" {
		t.Errorf("labels = %+v", resp.Labels)
	}
}

func TestScan(t *testing.T) {
	_, router, store := testEnv(t, "", "fire/a.png", "smoke/b.png")

	w := do(t, router, http.MethodPost, "/dataset/scan", ScanRequest{Filename: "labels.csv", HaveLabels: true, Save: false})
	if w.Code != http.StatusOK {
		t.Fatalf("scan = %d, body = %s", w.Code, w.Body.String())
	}
	var res CreateResult
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Images != 2 || res.Saved {
		t.Errorf("result = %+v", res)
	}
	if storage.Exists(store, "labels.csv") {
		t.Error("unsaved scan wrote the file")
	}

	w = do(t, router, http.MethodPost, "/dataset/scan", ScanRequest{Filename: "labels.txt", Save: true})
	if w.Code != http.StatusBadRequest {
		t.Errorf("non-csv scan = %d, want 400", w.Code)
	}
}

func TestOpen_NotFound(t *testing.T) {
	_, router, _ := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/dataset/open", OpenRequest{Filename: "nope.csv"})
	if w.Code != http.StatusNotFound {
		t.Errorf("open missing = %d, want 404", w.Code)
	}
}

func TestDatasetListAndStats(t *testing.T) {
	_, router, _ := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/dataset", nil); w.Code != http.StatusNotFound {
		t.Errorf("list before scan = %d, want 404", w.Code)
	}
	do(t, router, http.MethodPost, "/dataset/scan", ScanRequest{Save: true})

	w := do(t, router, http.MethodGet, "/dataset?limit=2&offset=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var page RowsPage
	_ = json.Unmarshal(w.Body.Bytes(), &page)
	if page.Total != 3 || len(page.Items) != 2 || page.Items[0].ImageID != "b.png" {
		t.Errorf("page = %+v", page)
	}

	w = do(t, router, http.MethodGet, "/dataset/stats", nil)
	var stats StatsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &stats)
	if len(stats.Stats) != 1 || stats.Stats[0].Class != "unset" || stats.Stats[0].Count != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSessionFlow(t *testing.T) {
	_, router, store := testEnv(t, "")
	st := scanAndOpen(t, router)
	if st.Index != 0 || st.Info != "Image Nro. 1 of 3" {
		t.Fatalf("opened state = %+v", st)
	}

	w := do(t, router, http.MethodPut, "/session/checked", CheckedRequest{Labels: []int{1}})
	if w.Code != http.StatusOK {
		t.Fatalf("checked = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodPost, "/session/select", map[string]int{"index": 1})
	st = decodeState(t, w)
	if st.Index != 1 || st.ChangesSaved {
		t.Errorf("after select = %+v", st)
	}

	st = decodeState(t, do(t, router, http.MethodPost, "/session/next", nil))
	if st.Index != 2 {
		t.Errorf("next index = %d", st.Index)
	}
	st = decodeState(t, do(t, router, http.MethodPost, "/session/next", nil))
	if st.Index != 2 {
		t.Errorf("next at end moved to %d", st.Index)
	}
	st = decodeState(t, do(t, router, http.MethodPost, "/session/prev", nil))
	if st.Index != 1 {
		t.Errorf("prev index = %d", st.Index)
	}

	st = decodeState(t, do(t, router, http.MethodPost, "/session/save", nil))
	if !st.ChangesSaved {
		t.Error("save did not clear unsaved flag")
	}
	data, _ := store.Read("dataset.csv")
	if !bytes.Contains(data, []byte(".,a.png,fire")) {
		t.Errorf("saved file = %s", data)
	}

	w = do(t, router, http.MethodGet, "/history", nil)
	var hist HistoryResponse
	_ = json.Unmarshal(w.Body.Bytes(), &hist)
	if len(hist.Changes) != 1 || hist.Changes[0].NewClass != "fire" {
		t.Errorf("history = %+v", hist)
	}

	w = do(t, router, http.MethodGet, "/search?label=fire", nil)
	var found SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &found)
	if len(found.Rows) != 1 || found.Rows[0].ImageID != "a.png" {
		t.Errorf("search = %+v", found)
	}

	w = do(t, router, http.MethodPost, "/session/stop", StopRequest{Save: true})
	if w.Code != http.StatusOK {
		t.Fatalf("stop = %d", w.Code)
	}
	st = decodeState(t, do(t, router, http.MethodGet, "/session", nil))
	if st.Status != "idle" {
		t.Errorf("status after stop = %q", st.Status)
	}
}

func TestSessionErrors(t *testing.T) {
	_, router, _ := testEnv(t, "")

	if w := do(t, router, http.MethodPost, "/session/next", nil); w.Code != http.StatusConflict {
		t.Errorf("next while idle = %d, want 409", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/session/stop", nil); w.Code != http.StatusConflict {
		t.Errorf("stop while idle = %d, want 409", w.Code)
	}

	scanAndOpen(t, router)

	if w := do(t, router, http.MethodPost, "/session/select", map[string]int{"index": 9}); w.Code != http.StatusBadRequest {
		t.Errorf("select out of range = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/session/select", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Errorf("select without index = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodPut, "/session/checked", CheckedRequest{Labels: []int{7}}); w.Code != http.StatusBadRequest {
		t.Errorf("unknown label = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/dataset/open", nil); w.Code != http.StatusConflict {
		t.Errorf("second open = %d, want 409", w.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/session/select", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", w.Code)
	}
}

func TestPreviewAndImages(t *testing.T) {
	_, router, _ := testEnv(t, "", "sub/a.png")
	if w := do(t, router, http.MethodGet, "/session/preview", nil); w.Code != http.StatusConflict {
		t.Errorf("preview while idle = %d, want 409", w.Code)
	}
	scanAndOpen(t, router)

	w := do(t, router, http.MethodGet, "/session/preview", nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("preview = %d %s", w.Code, w.Header().Get("Content-Type"))
	}

	w = do(t, router, http.MethodGet, "/images/sub/a.png", nil)
	if w.Code != http.StatusOK {
		t.Errorf("image = %d", w.Code)
	}
	w = do(t, router, http.MethodGet, "/images/sub%2Fa.png", nil)
	if w.Code != http.StatusOK {
		t.Errorf("encoded image path = %d", w.Code)
	}
	for _, p := range []string{"/images/sub/missing.png", "/images/dataset.csv", "/images/..%2F..%2Fetc%2Fpasswd.png"} {
		if w := do(t, router, http.MethodGet, p, nil); w.Code != http.StatusNotFound {
			t.Errorf("%s = %d, want 404", p, w.Code)
		}
	}
}

func TestSearchMissingLabel(t *testing.T) {
	_, router, _ := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search no label = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router, _ := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/vocabulary", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router, _ := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router, _ := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

// SSE endpoint auth tests.

// testEnvWithSSE creates a router with a dummy SSE handler to test auth on /events.
func testEnvWithSSE(t *testing.T, authEnabled bool, token string) http.Handler {
	t.Helper()
	_, store := testutil.ImageTree(t)
	svc := labelservice.New(store, labels.NewCodec(labels.DefaultVocabulary()))

	// Minimal SSE handler stub: writes headers and blocks until context done.
	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
	return NewRouter(svc, authEnabled, token, sseHandler)
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnvWithSSE(t, true, "secret")

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnvWithSSE(t, true, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

func TestAuthMiddleware_QueryTokenOnGet(t *testing.T) {
	_, router, _ := testEnv(t, "secret123")

	w := do(t, router, http.MethodGet, "/vocabulary?access_token=secret123", nil)
	if w.Code != http.StatusOK {
		t.Errorf("query token GET = %d, want 200", w.Code)
	}
	w = do(t, router, http.MethodPost, "/session/save?access_token=secret123", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("query token POST = %d, want 401", w.Code)
	}
}

func TestErrorBodyCarriesCode(t *testing.T) {
	_, router, _ := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/session/next", nil)
	var body errResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Code != "invalid_transition" || body.Error == "" {
		t.Errorf("body = %+v", body)
	}
}

func TestToggle(t *testing.T) {
	_, router, _ := testEnv(t, "")
	scanAndOpen(t, router)

	st := decodeState(t, do(t, router, http.MethodPost, "/session/toggle", map[string]int{"label": 2}))
	if len(st.Checked) != 1 || st.Checked[0] != 2 {
		t.Errorf("checked after toggle = %v", st.Checked)
	}
	st = decodeState(t, do(t, router, http.MethodPost, "/session/toggle", map[string]int{"label": 2}))
	if len(st.Checked) != 0 {
		t.Errorf("checked after second toggle = %v", st.Checked)
	}
	if w := do(t, router, http.MethodPost, "/session/toggle", nil); w.Code != http.StatusBadRequest {
		t.Errorf("toggle without label = %d, want 400", w.Code)
	}
}

func TestWriteErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		code int
		name string
	}{
		{fmt.Errorf("x: %w", apperr.ErrNotFound), http.StatusNotFound, "not_found"},
		{fmt.Errorf("x: %w", apperr.ErrInvalidTransition), http.StatusConflict, "invalid_transition"},
		{fmt.Errorf("x: %w", apperr.ErrNotLoaded), http.StatusConflict, "not_loaded"},
		{fmt.Errorf("x: %w", apperr.ErrResourceExhausted), http.StatusConflict, "resource_exhausted"},
		{fmt.Errorf("x: %w", apperr.ErrOutOfRange), http.StatusBadRequest, "out_of_range"},
		{fmt.Errorf("x: %w", apperr.ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
		{errors.New("disk on fire"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		writeError(w, "test", tt.err)
		if w.Code != tt.code {
			t.Errorf("%v: status = %d, want %d", tt.err, w.Code, tt.code)
		}
		var body errResponse
		_ = json.Unmarshal(w.Body.Bytes(), &body)
		if body.Code != tt.name {
			t.Errorf("%v: code = %q, want %q", tt.err, body.Code, tt.name)
		}
	}
	if len(errorStatus) != len(tests)-1 {
		t.Errorf("errorStatus has %d entries, test covers %d", len(errorStatus), len(tests)-1)
	}
}
