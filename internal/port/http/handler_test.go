package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/domain/entity"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/identity"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/platform/logger"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/repository"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/service"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-test-secret"

type memoryRepo struct {
	mu      sync.Mutex
	data    map[string]json.RawMessage
	failSet error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{data: map[string]json.RawMessage{}}
}

func (m *memoryRepo) Get(_ context.Context, userID, key string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[userID+"/"+key], nil
}

func (m *memoryRepo) Set(_ context.Context, userID, key string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet != nil {
		return m.failSet
	}
	m.data[userID+"/"+key] = value
	return nil
}

type testEnv struct {
	repo    *memoryRepo
	session *identity.Session
	store   *service.SavedStore
	router  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.NewNop()
	repo := newMemoryRepo()
	session := identity.NewSession(identity.NewHMACVerifier(testSecret), repo, log)
	store := service.NewSavedStore(session, log)
	store.Bind(context.Background())
	catalog := service.NewCatalog(log, 0)
	t.Cleanup(func() {
		store.Close()
		session.Close()
	})

	h := NewHandler(session, store, catalog, log)
	return &testEnv{
		repo:    repo,
		session: session,
		store:   store,
		router:  NewRouter(h, NewStreamHandler(store, log), log, nil),
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) signIn(t *testing.T, userID string) {
	t.Helper()
	token, err := identity.IssueToken(testSecret, entity.UserRef{ID: userID}, time.Hour)
	require.NoError(t, err)
	rec := e.do(t, http.MethodPost, "/api/session", `{"token":"`+token+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func itemIDs(t *testing.T, body map[string]interface{}) []interface{} {
	t.Helper()
	items, ok := body["items"].([]interface{})
	require.True(t, ok)
	out := make([]interface{}, len(items))
	for i, it := range items {
		out[i] = it.(map[string]interface{})["id"]
	}
	return out
}

func TestHandler_Healthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandler_SessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/session", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["isSignedIn"])

	rec = env.do(t, http.MethodPost, "/api/session", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/session", `{"token":"garbage"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	env.signIn(t, "user-1")
	rec = env.do(t, http.MethodGet, "/api/session", "")
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["isSignedIn"])
	assert.Equal(t, "user-1", body["user"].(map[string]interface{})["id"])

	rec = env.do(t, http.MethodDelete, "/api/session", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, env.session.IsSignedIn())
	assert.Equal(t, service.StateEmpty, env.store.Snapshot().State)
}

func TestHandler_ToggleRequiresSignIn(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/saved/toggle", `{"id":5}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "not_authenticated", decodeBody(t, rec)["kind"])

	rec = env.do(t, http.MethodGet, "/api/saved", "")
	assert.Equal(t, []interface{}{}, decodeBody(t, rec)["items"])
}

func TestHandler_ToggleByIDUsesCatalog(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "user-1")

	rec := env.do(t, http.MethodPost, "/api/saved/toggle", `{"id":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, []interface{}{float64(2)}, itemIDs(t, body))
	item := body["items"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "Modern Office Tower", item["name"])
	assert.NotEmpty(t, item["savedAt"])

	rec = env.do(t, http.MethodGet, "/api/saved/2", "")
	assert.JSONEq(t, `{"id":2,"saved":true}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/properties/featured", "")
	require.Equal(t, http.StatusOK, rec.Code)
	featured := decodeBody(t, rec)["items"].([]interface{})
	require.Len(t, featured, 3)
	assert.Equal(t, false, featured[0].(map[string]interface{})["saved"])
	assert.Equal(t, true, featured[1].(map[string]interface{})["saved"])

	rec = env.do(t, http.MethodPost, "/api/saved/toggle", `{"id":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, itemIDs(t, decodeBody(t, rec)))
}

func TestHandler_ToggleCustomPropertyAndClear(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "user-1")

	rec := env.do(t, http.MethodPost, "/api/saved/toggle", `{"id":"lot-9","name":"Corner Lot","price":"$1M"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/saved/toggle", `{"id":7}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"lot-9", float64(7)}, itemIDs(t, decodeBody(t, rec)))

	stored, _, err := entity.DecodeSavedList(env.repo.data["user-1/"+service.SavedPropertiesKey])
	require.NoError(t, err)
	require.Len(t, stored, 2)
	var name string
	require.NoError(t, json.Unmarshal(stored[0].Fields["name"], &name))
	assert.Equal(t, "Corner Lot", name)

	rec = env.do(t, http.MethodDelete, "/api/saved", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, itemIDs(t, decodeBody(t, rec)))
}

func TestHandler_ToggleZeroPaddedID(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "user-1")

	rec := env.do(t, http.MethodPost, "/api/saved/toggle", `{"id":"007","name":"Lot 7"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []interface{}{"007"}, itemIDs(t, decodeBody(t, rec)))

	rec = env.do(t, http.MethodGet, "/api/saved/007", "")
	assert.JSONEq(t, `{"id":"007","saved":true}`, rec.Body.String())
	rec = env.do(t, http.MethodGet, "/api/saved/7", "")
	assert.JSONEq(t, `{"id":7,"saved":false}`, rec.Body.String())

	assert.JSONEq(t, `[{"id":"007","name":"Lot 7","savedAt":"`+
		env.store.Items()[0].SavedAt.Format(entity.SavedAtLayout)+`"}]`,
		string(env.repo.data["user-1/"+service.SavedPropertiesKey]))
}

func TestHandler_ToggleRejectsInvalidProperty(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "user-1")

	for _, body := range []string{`{"name":"no id"}`, `[1,2]`, `{"id":1.5}`, `not json`} {
		rec := env.do(t, http.MethodPost, "/api/saved/toggle", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestHandler_RemoteErrorsMapToStatus(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "user-1")

	env.repo.mu.Lock()
	env.repo.failSet = repository.ErrRemoteRejected
	env.repo.mu.Unlock()
	rec := env.do(t, http.MethodPost, "/api/saved/toggle", `{"id":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	env.repo.mu.Lock()
	env.repo.failSet = repository.ErrRemoteUnavailable
	env.repo.mu.Unlock()
	rec = env.do(t, http.MethodPost, "/api/saved/toggle", `{"id":1}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/saved", "")
	body := decodeBody(t, rec)
	assert.Empty(t, itemIDs(t, body))
	assert.Equal(t, "remote_unavailable", body["lastError"].(map[string]interface{})["kind"])
}

func TestHandler_SearchAndAssistant(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/properties/search?q=office&page=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, []interface{}{float64(17), float64(18), float64(19), float64(20)}, itemIDs(t, body))
	assert.Equal(t, true, body["hasMore"])

	rec = env.do(t, http.MethodGet, "/api/properties/search?page=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/properties/search?page=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/properties/search?sort=random", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/assistant", `{"query":"warehouse"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	env.signIn(t, "user-1")
	rec = env.do(t, http.MethodPost, "/api/assistant", `{"query":"warehouse"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decodeBody(t, rec)["message"])

	rec = env.do(t, http.MethodPost, "/api/saved/toggle", `{"id":18}`)
	require.Equal(t, http.StatusOK, rec.Code)
	item := decodeBody(t, rec)["items"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "Business Park 2", item["name"])
}

func TestHandler_StreamPushesSnapshots(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "user-1")

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/saved/stream"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	var first map[string]interface{}
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, ws.ReadJSON(&first))
	assert.Equal(t, float64(0), first["count"])

	_, err = env.store.Toggle(context.Background(), entity.Property{ID: "1"})
	require.NoError(t, err)

	for {
		var msg map[string]interface{}
		require.NoError(t, ws.ReadJSON(&msg))
		if msg["count"] == float64(1) && msg["isSyncing"] == false {
			break
		}
	}
}

func TestWriteJSON_EncodeFailureIsServerError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]interface{}{"bad": make(chan int)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "unknown", decodeBody(t, rec)["kind"])
}
