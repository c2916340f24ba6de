package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/chat-server/internal/auth"
	"github.com/annel0/chat-server/internal/chat"
)

// fakeSession минимальный chat.Member для наполнения каталога и комнат.
type fakeSession struct {
	name string
}

func (f *fakeSession) Username() string { return f.name }

func (f *fakeSession) SendLine(line string) error { return nil }

// fakePinger имитирует бэкенд хранения для health-check.
type fakePinger struct {
	err error
}

func (f *fakePinger) Ping() error { return f.err }

// isolateRegistry подменяет дефолтный регистр Prometheus на время теста:
// каждый NewRestServer регистрирует свои HTTP-метрики заново.
func isolateRegistry(t *testing.T) {
	t.Helper()
	old := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	t.Cleanup(func() { prometheus.DefaultRegisterer = old })
}

// newTestRest собирает REST сервер с заполненными реестрами; HTTP слушатель
// не запускается — запросы идут напрямую в router.
func newTestRest(t *testing.T, storage Pinger) *RestServer {
	t.Helper()
	isolateRegistry(t)

	accounts := auth.NewAccountStore(auth.NewMemoryUserRepo(), auth.DefaultStorePolicy())
	_, err := accounts.Register("alice", "Str0ngP@ssw0rd!")
	require.NoError(t, err)

	directory := chat.NewDirectory()
	rooms := chat.NewRoomRegistry(directory)

	alice := &fakeSession{name: "alice"}
	bob := &fakeSession{name: "bob"}
	require.NoError(t, directory.Register(alice))
	require.NoError(t, directory.Register(bob))
	rooms.Join("GENERAL", alice)
	rooms.Join("GENERAL", bob)
	rooms.Join("GAMERS", alice)

	return NewRestServer(Config{
		Accounts:  accounts,
		Rooms:     rooms,
		Directory: directory,
		Storage:   storage,
	})
}

func doGET(t *testing.T, rs *RestServer, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req, err := http.NewRequest("GET", path, nil)
	require.NoError(t, err)
	rs.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	rs := newTestRest(t, nil)

	w := doGET(t, rs, "/health")
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHealthEndpointStoragePing(t *testing.T) {
	healthy := &fakePinger{}
	rs := newTestRest(t, healthy)

	w := doGET(t, rs, "/health")
	assert.Equal(t, http.StatusOK, w.Code)

	// Недоступное хранилище переводит health-check в degraded
	healthy.err = errors.New("connection refused")
	w = doGET(t, rs, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
}

func TestStatusEndpoint(t *testing.T) {
	rs := newTestRest(t, nil)

	w := doGET(t, rs, "/api/status")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp GenericResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "running", data["status"])
	assert.Equal(t, float64(1), data["accounts"])
	assert.Equal(t, float64(2), data["online_sessions"])
	assert.Equal(t, float64(2), data["rooms"])
	assert.NotEmpty(t, data["uptime"])
}

func TestRoomsEndpoint(t *testing.T) {
	rs := newTestRest(t, nil)

	w := doGET(t, rs, "/api/rooms")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    []struct {
			Name    string `json:"name"`
			Members int    `json:"members"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Data, 2)

	// Комнаты отсортированы по имени
	assert.Equal(t, "GAMERS", resp.Data[0].Name)
	assert.Equal(t, 1, resp.Data[0].Members)
	assert.Equal(t, "GENERAL", resp.Data[1].Name)
	assert.Equal(t, 2, resp.Data[1].Members)
}

func TestOnlineEndpoint(t *testing.T) {
	rs := newTestRest(t, nil)

	w := doGET(t, rs, "/api/online")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool     `json:"success"`
		Data    []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"alice", "bob"}, resp.Data)
}

func TestMetricsEndpoint(t *testing.T) {
	rs := newTestRest(t, nil)

	// Обычный запрос генерирует HTTP-метрики
	doGET(t, rs, "/health")

	w := doGET(t, rs, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, w.Body.String(), "# HELP")
}
