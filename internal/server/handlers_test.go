package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"go.uber.org/zap"
)

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockWatchService) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockWatchService) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

type failingGenerator struct{}

func (failingGenerator) Generate(ctx context.Context, prompt string, opts generation.Options) (string, error) {
	return "", errors.New("model server unavailable")
}

func newTestServer(t *testing.T, storeDims int, gen rag.Generator, opts ...Option) *Server {
	t.Helper()
	store, err := vector.NewMemoryStore(storeDims)
	if err != nil {
		t.Fatal(err)
	}
	svc, err := rag.NewService(store, embedding.NewMockEmbedder(8), gen)
	if err != nil {
		t.Fatal(err)
	}
	opts = append([]Option{WithLogger(zap.NewNop()), WithProviderNames("mock", "echo")}, opts...)
	return NewServer(svc, config.Default(), opts...)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHandleHealth(t *testing.T) {
	h := newTestServer(t, 8, generation.NewEchoGenerator()).Handler()
	w := do(t, h, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out models.HealthResponse
	decode(t, w, &out)
	if out.Status != "ok" {
		t.Errorf("status: got %q", out.Status)
	}
}

func TestHandleIngestAndAsk(t *testing.T) {
	srv := newTestServer(t, 8, generation.NewEchoGenerator())
	h := srv.Handler()

	w := do(t, h, http.MethodPost, "/ingest", `{"text":"IAL101\nIntrodução à Lógica"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("ingest status: got %d body %s", w.Code, w.Body.String())
	}
	var ing models.IngestResponse
	decode(t, w, &ing)
	if ing.Status != "added" || ing.Text != "IAL101\nIntrodução à Lógica" {
		t.Errorf("ingest response: %+v", ing)
	}
	if srv.rag.Store().Len() != 1 {
		t.Errorf("store len: got %d", srv.rag.Store().Len())
	}

	w = do(t, h, http.MethodPost, "/ask", `{"question":"O que é IAL101?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("ask status: got %d body %s", w.Code, w.Body.String())
	}
	var ans models.AskResponse
	decode(t, w, &ans)
	if ans.Context != "IAL101\nIntrodução à Lógica" {
		t.Errorf("context: got %q", ans.Context)
	}
	if ans.Answer != "IAL101\nIntrodução à Lógica" {
		t.Errorf("answer should be the cleaned echo of the context: got %q", ans.Answer)
	}
}

func TestHandleAsk_EmptyStore(t *testing.T) {
	h := newTestServer(t, 8, generation.NewEchoGenerator()).Handler()
	w := do(t, h, http.MethodPost, "/ask", `{"question":"anything"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var ans models.AskResponse
	decode(t, w, &ans)
	if ans.Context != rag.NoContext {
		t.Errorf("context: got %q", ans.Context)
	}
}

func TestHandleIngest_EmptyTextAccepted(t *testing.T) {
	h := newTestServer(t, 8, generation.NewEchoGenerator()).Handler()
	w := do(t, h, http.MethodPost, "/ingest", `{"text":""}`)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleBadRequests(t *testing.T) {
	h := newTestServer(t, 8, generation.NewEchoGenerator()).Handler()
	tests := []struct {
		name, path, body string
	}{
		{"ingest not json", "/ingest", `not json`},
		{"ingest missing text", "/ingest", `{"question":"x"}`},
		{"ingest wrong type", "/ingest", `{"text":42}`},
		{"ask not json", "/ask", `{`},
		{"ask missing question", "/ask", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, tt.path, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status: got %d", w.Code)
			}
			var out models.ErrorResponse
			decode(t, w, &out)
			if out.Error == "" {
				t.Error("expected error message")
			}
		})
	}
}

func TestHandleAsk_ProviderFailure(t *testing.T) {
	h := newTestServer(t, 8, failingGenerator{}).Handler()
	w := do(t, h, http.MethodPost, "/ask", `{"question":"q"}`)
	if w.Code != http.StatusBadGateway {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandle_DimensionMismatch(t *testing.T) {
	h := newTestServer(t, 4, generation.NewEchoGenerator()).Handler()
	if w := do(t, h, http.MethodPost, "/ingest", `{"text":"x"}`); w.Code != http.StatusInternalServerError {
		t.Errorf("ingest status: got %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/ask", `{"question":"x"}`); w.Code != http.StatusInternalServerError {
		t.Errorf("ask status: got %d", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	srv := newTestServer(t, 8, generation.NewEchoGenerator())
	h := srv.Handler()
	do(t, h, http.MethodPost, "/ingest", `{"text":"one"}`)
	do(t, h, http.MethodPost, "/ingest", `{"text":"two"}`)

	w := do(t, h, http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out models.StatusResponse
	decode(t, w, &out)
	if out.Passages != 2 || out.Dimensions != 8 || out.IndexType != "memory" {
		t.Errorf("status: %+v", out)
	}
	if out.Embedder != "mock" || out.Generator != "echo" {
		t.Errorf("provider names: %+v", out)
	}
	if out.Journal != nil {
		t.Errorf("journal should be absent: %+v", out.Journal)
	}
}

func TestHandleGetPassage(t *testing.T) {
	h := newTestServer(t, 8, generation.NewEchoGenerator()).Handler()
	do(t, h, http.MethodPost, "/ingest", `{"text":"first"}`)
	do(t, h, http.MethodPost, "/ingest", `{"text":"second"}`)

	w := do(t, h, http.MethodGet, "/api/v1/passages/1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var p models.PassageResponse
	decode(t, w, &p)
	if p.ID != 1 || p.Text != "second" {
		t.Errorf("passage: %+v", p)
	}

	if w := do(t, h, http.MethodGet, "/api/v1/passages/2", ""); w.Code != http.StatusNotFound {
		t.Errorf("out of range: got %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/v1/passages/abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: got %d", w.Code)
	}
}

func TestHandleListAnswers_Disabled(t *testing.T) {
	h := newTestServer(t, 8, generation.NewEchoGenerator()).Handler()
	for _, path := range []string{"/api/v1/answers", "/api/v1/ingestions"} {
		if w := do(t, h, http.MethodGet, path, ""); w.Code != http.StatusNotImplemented {
			t.Errorf("%s status: got %d", path, w.Code)
		}
	}
}

func TestHandleJournal(t *testing.T) {
	j, err := storage.NewSQLiteJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	store, _ := vector.NewMemoryStore(8)
	svc, err := rag.NewService(store, embedding.NewMockEmbedder(8), generation.NewEchoGenerator(), rag.WithJournal(j))
	if err != nil {
		t.Fatal(err)
	}
	h := NewServer(svc, config.Default(), WithJournal(j)).Handler()

	do(t, h, http.MethodPost, "/ask", `{"question":"before"}`)
	do(t, h, http.MethodPost, "/ingest", `{"text":"IBD201 Banco de Dados"}`)
	do(t, h, http.MethodPost, "/ask", `{"question":"after"}`)

	w := do(t, h, http.MethodGet, "/api/v1/answers?limit=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", w.Code, w.Body.String())
	}
	var out models.AnswersResponse
	decode(t, w, &out)
	if out.Total != 2 || out.Limit != 1 || len(out.Answers) != 1 {
		t.Fatalf("answers: %+v", out)
	}
	if out.Answers[0].Question != "after" || out.Answers[0].PassageID == nil || *out.Answers[0].PassageID != 0 {
		t.Errorf("newest answer: %+v", out.Answers[0])
	}

	w = do(t, h, http.MethodGet, "/api/v1/answers?offset=1", "")
	var older models.AnswersResponse
	decode(t, w, &older)
	if len(older.Answers) != 1 || older.Answers[0].Question != "before" {
		t.Fatalf("older page: %+v", older.Answers)
	}
	if older.Answers[0].PassageID != nil || older.Answers[0].Score != 0 {
		t.Errorf("fallback answer should have no passage: %+v", older.Answers[0])
	}
	if !strings.Contains(w.Body.String(), `"question":"before"`) || strings.Contains(w.Body.String(), "passage_id") {
		t.Errorf("fallback row should omit passage_id: %s", w.Body.String())
	}

	for _, q := range []string{"offset=-1", "limit=0", "limit=x"} {
		if w := do(t, h, http.MethodGet, "/api/v1/answers?"+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d", q, w.Code)
		}
	}

	w = do(t, h, http.MethodGet, "/api/v1/ingestions", "")
	if w.Code != http.StatusOK {
		t.Fatalf("ingestions status: got %d body %s", w.Code, w.Body.String())
	}
	var ingestions models.IngestionsResponse
	decode(t, w, &ingestions)
	if ingestions.Total != 1 || ingestions.Limit != defaultPageLimit || len(ingestions.Ingestions) != 1 {
		t.Fatalf("ingestions: %+v", ingestions)
	}
	if got := ingestions.Ingestions[0]; got.PassageID != 0 || got.Source != rag.SourceAPI || got.Text != "IBD201 Banco de Dados" {
		t.Errorf("ingestion: %+v", got)
	}
	if w := do(t, h, http.MethodGet, "/api/v1/ingestions?limit=-5", ""); w.Code != http.StatusBadRequest {
		t.Errorf("negative limit: got %d", w.Code)
	}

	w = do(t, h, http.MethodGet, "/api/v1/status", "")
	var st models.StatusResponse
	decode(t, w, &st)
	if st.Journal == nil || st.Journal.Ingestions != 1 || st.Journal.Answers != 2 {
		t.Errorf("journal status: %+v", st.Journal)
	}
}

func TestHandleWatchDirectories(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	mock := &mockWatchService{dirs: []string{"/tmp/inbox"}}
	srv := newTestServer(t, 8, generation.NewEchoGenerator(), WithWatch(mock, configPath))
	h := srv.Handler()

	w := do(t, h, http.MethodGet, "/api/v1/watch/directories", "")
	var list struct {
		Directories []string `json:"directories"`
	}
	decode(t, w, &list)
	if len(list.Directories) != 1 || list.Directories[0] != "/tmp/inbox" {
		t.Errorf("directories: %v", list.Directories)
	}

	body, _ := json.Marshal(map[string]interface{}{"path": dir, "sync": false})
	w = do(t, h, http.MethodPost, "/api/v1/watch/directories", string(body))
	if w.Code != http.StatusCreated {
		t.Fatalf("add: got %d body %s", w.Code, w.Body.String())
	}
	saved, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("config not persisted: %v", err)
	}
	if len(saved.Watch.Directories) != 2 {
		t.Errorf("persisted directories: %v", saved.Watch.Directories)
	}

	if w := do(t, h, http.MethodPost, "/api/v1/watch/directories", `{"path":"`+filepath.Join(dir, "missing")+`"}`); w.Code != http.StatusNotFound {
		t.Errorf("missing dir: got %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/api/v1/watch/directories", `{"path":"`+configPath+`"}`); w.Code != http.StatusBadRequest {
		t.Errorf("file path: got %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/api/v1/watch/directories", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty path: got %d", w.Code)
	}

	w = do(t, h, http.MethodDelete, "/api/v1/watch/directories?path="+dir, "")
	if w.Code != http.StatusOK {
		t.Fatalf("remove: got %d", w.Code)
	}
	if len(mock.dirs) != 1 {
		t.Errorf("after remove: %v", mock.dirs)
	}
	if w := do(t, h, http.MethodDelete, "/api/v1/watch/directories", ""); w.Code != http.StatusBadRequest {
		t.Errorf("remove without path: got %d", w.Code)
	}
}

func TestHandleWatchDirectories_Disabled(t *testing.T) {
	h := newTestServer(t, 8, generation.NewEchoGenerator()).Handler()
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
		if w := do(t, h, method, "/api/v1/watch/directories", ""); w.Code != http.StatusNotImplemented {
			t.Errorf("%s: got %d", method, w.Code)
		}
	}
}
