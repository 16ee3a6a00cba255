package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/FarisLab/StudySync/internal/ownership"
	"github.com/FarisLab/StudySync/internal/session"
	"github.com/FarisLab/StudySync/internal/store"
)

var testSecret = []byte("test-secret")

// testGateway wraps the memory gateway so tests can fail single calls.
type testGateway struct {
	*store.MemoryGateway
	pingFn        func(context.Context) error
	findFoldersFn func(context.Context, ownership.Query) error
	findFolderFn  func(ctx context.Context, owner ownership.UserID, id string) error
}

func (g *testGateway) Ping(ctx context.Context) error {
	if g.pingFn != nil {
		return g.pingFn(ctx)
	}
	return nil
}

func (g *testGateway) Folders() ownership.Collection[*store.Folder] {
	return &testFolders{Collection: g.MemoryGateway.Folders(), gateway: g}
}

type testFolders struct {
	ownership.Collection[*store.Folder]
	gateway *testGateway
}

func (f *testFolders) Find(ctx context.Context, q ownership.Query) iter.Seq2[*store.Folder, error] {
	if f.gateway.findFoldersFn != nil {
		if err := f.gateway.findFoldersFn(ctx, q); err != nil {
			return func(yield func(*store.Folder, error) bool) { yield(nil, err) }
		}
	}
	return f.Collection.Find(ctx, q)
}

func (f *testFolders) FindOwned(ctx context.Context, owner ownership.UserID, id string) (*store.Folder, error) {
	if f.gateway.findFolderFn != nil {
		if err := f.gateway.findFolderFn(ctx, owner, id); err != nil {
			return nil, err
		}
	}
	return f.Collection.FindOwned(ctx, owner, id)
}

type testEnv struct {
	gateway  *testGateway
	sessions *session.Manager
	handler  http.Handler
	log      zerolog.Logger
	logs     *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gateway := &testGateway{MemoryGateway: store.NewMemoryGateway()}
	sessions := session.NewManager(session.NewMemoryStore(), testSecret, 15*time.Minute, 24*time.Hour)
	logs := &bytes.Buffer{}
	log := zerolog.New(logs)
	svc := New(Deps{Store: gateway, Sessions: sessions, Log: log})
	return &testEnv{
		gateway:  gateway,
		sessions: sessions,
		handler:  NewHTTPServer(svc, log, "*").Handler(),
		log:      log,
		logs:     logs,
	}
}

// login issues an access token for userID without going through sign-in.
func (e *testEnv) login(t *testing.T, userID string) string {
	t.Helper()
	tokens, err := e.sessions.Issue(context.Background(), userID, strings.ToUpper(userID[:1])+userID[1:])
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return tokens.AccessToken
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func newRecorder(handler http.Handler, method, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d body=%s", status, rr.Code, rr.Body.String())
	}
}

func decodeObject(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func decodeList(t *testing.T, rr *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var payload []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) map[string]any {
	t.Helper()
	expectStatus(t, rr, status)
	payload := decodeObject(t, rr)
	if payload["code"] != code {
		t.Fatalf("expected code %s, got %v", code, payload["code"])
	}
	return payload
}

func details(t *testing.T, payload map[string]any) map[string]any {
	t.Helper()
	d, ok := payload["details"].(map[string]any)
	if !ok {
		t.Fatalf("expected details object, got %v", payload["details"])
	}
	return d
}

func ids(items []map[string]any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		id, _ := item["id"].(string)
		out = append(out, id)
	}
	return out
}

func createFolder(t *testing.T, env *testEnv, token, body string) map[string]any {
	t.Helper()
	rr := env.do(t, http.MethodPost, "/api/folders", token, body)
	expectStatus(t, rr, http.StatusCreated)
	return decodeObject(t, rr)
}

func createModule(t *testing.T, env *testEnv, token, collection, body string) map[string]any {
	t.Helper()
	rr := env.do(t, http.MethodPost, "/api/"+collection, token, body)
	expectStatus(t, rr, http.StatusCreated)
	return decodeObject(t, rr)
}

var errStorage = errors.New("connection reset")
