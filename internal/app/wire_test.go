package app

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/attaboy/tower/internal/auth"
	"github.com/attaboy/tower/internal/infra"
	"github.com/attaboy/tower/internal/repository/memory"
	"github.com/attaboy/tower/internal/rng"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "router-test-secret-that-is-long-enough"

type testAPI struct {
	t      *testing.T
	server *httptest.Server
	svc    string
	admin  string
	viewer string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &infra.Config{
		PlayerLockTimeout: time.Second,
		PvPQueueTimeout:   time.Minute,
		RaidMinTanks:      1,
		RaidMinHealers:    1,
		RaidMinMembers:    3,
		SingleTransferMax: 50000,
		DailyTransferMax:  200000,
		GuildCreationCost: 50,
	}
	svcs := NewServices(ServiceDeps{
		Store:  memory.NewStore(),
		Config: cfg,
		Rand:   rng.New(7),
		Logger: logger,
	})
	mgr := auth.NewJWTManager(testSecret, time.Hour, time.Hour)
	router := NewRouter(RouterDeps{
		Services:           svcs,
		JWTMgr:             mgr,
		RateLimitPerMinute: 1000,
		TransferFeePercent: 0.05,
		Logger:             logger,
	})

	api := &testAPI{t: t, server: httptest.NewServer(router)}
	var err error
	api.svc, err = mgr.GenerateToken(auth.RealmService, "discord-bot", "")
	require.NoError(t, err)
	api.admin, err = mgr.GenerateToken(auth.RealmAdmin, "ops", auth.RoleOperator)
	require.NoError(t, err)
	api.viewer, err = mgr.GenerateToken(auth.RealmAdmin, "dash", auth.RoleViewer)
	require.NoError(t, err)
	t.Cleanup(api.server.Close)
	return api
}

func (a *testAPI) do(method, path, token string, body any) *http.Response {
	a.t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(a.t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, a.server.URL+path, rdr)
	require.NoError(a.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	return resp
}

func (a *testAPI) decode(resp *http.Response, dst any) {
	a.t.Helper()
	defer resp.Body.Close()
	require.NoError(a.t, json.NewDecoder(resp.Body).Decode(dst))
}

func (a *testAPI) register(id int64, nickname string) {
	a.t.Helper()
	resp := a.do(http.MethodPost, "/players", a.svc, map[string]any{"id": id, "nickname": nickname})
	resp.Body.Close()
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)
}

func TestRouter_Health(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(http.MethodGet, "/health", "", nil)
	var body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	api.decode(resp, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "ok", body.Components["store"])
}

func TestRouter_Auth(t *testing.T) {
	api := newTestAPI(t)
	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"service route without token", http.MethodGet, "/catalog/weapons", "", http.StatusUnauthorized},
		{"service route with service token", http.MethodGet, "/catalog/weapons", api.svc, http.StatusOK},
		{"service route with admin token", http.MethodGet, "/catalog/shop", api.admin, http.StatusOK},
		{"admin route with service token", http.MethodGet, "/admin/stats", api.svc, http.StatusUnauthorized},
		{"admin read with viewer", http.MethodGet, "/admin/stats", api.viewer, http.StatusOK},
		{"admin write with viewer", http.MethodPost, "/admin/raids/tick", api.viewer, http.StatusForbidden},
		{"admin write with operator", http.MethodPost, "/admin/raids/tick", api.admin, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := api.do(tt.method, tt.path, tt.token, nil)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestRouter_RegisterAndGet(t *testing.T) {
	api := newTestAPI(t)
	api.register(1, "Alice")

	resp := api.do(http.MethodGet, "/players/1", api.svc, nil)
	var body struct {
		ID       int64            `json:"id"`
		Nickname string           `json:"nickname"`
		Balances map[string]int64 `json:"balances"`
	}
	api.decode(resp, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), body.ID)
	assert.Equal(t, "Alice", body.Nickname)
	assert.Equal(t, int64(100), body.Balances["gold"])

	t.Run("duplicate registration conflicts", func(t *testing.T) {
		resp := api.do(http.MethodPost, "/players", api.svc, map[string]any{"id": 1, "nickname": "Alice"})
		var errBody struct {
			Code string `json:"code"`
		}
		api.decode(resp, &errBody)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "CONFLICT", errBody.Code)
	})

	t.Run("unknown player", func(t *testing.T) {
		resp := api.do(http.MethodGet, "/players/99", api.svc, nil)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestRouter_TransferUsesConfiguredFee(t *testing.T) {
	api := newTestAPI(t)
	api.register(1, "Alice")
	api.register(2, "Bob")

	resp := api.do(http.MethodPost, "/economy/transfers", api.svc,
		map[string]any{"from_id": 1, "to_id": 2, "currency": "gold", "amount": 60})
	var res struct {
		Fee     int64 `json:"fee"`
		Records []struct {
			Amount int64 `json:"amount"`
		} `json:"records"`
	}
	api.decode(resp, &res)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(3), res.Fee)
	assert.Len(t, res.Records, 3)

	resp = api.do(http.MethodGet, "/economy/players/2/balance?currency=gold", api.svc, nil)
	var bal struct {
		Amount int64 `json:"amount"`
	}
	api.decode(resp, &bal)
	assert.Equal(t, int64(157), bal.Amount)

	t.Run("over balance is rejected", func(t *testing.T) {
		resp := api.do(http.MethodPost, "/economy/transfers", api.svc,
			map[string]any{"from_id": 1, "to_id": 2, "currency": "gold", "amount": 1000})
		var errBody struct {
			Code string `json:"code"`
		}
		api.decode(resp, &errBody)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Equal(t, "INSUFFICIENT_FUNDS", errBody.Code)
	})

	t.Run("audit passes", func(t *testing.T) {
		resp := api.do(http.MethodGet, "/economy/players/1/audit", api.svc, nil)
		var report struct {
			Passed bool `json:"passed"`
		}
		api.decode(resp, &report)
		assert.True(t, report.Passed)
	})
}

func TestRouter_GuildLifecycle(t *testing.T) {
	api := newTestAPI(t)
	api.register(1, "Alice")
	api.register(2, "Bob")

	resp := api.do(http.MethodPost, "/guilds", api.svc, map[string]any{"founder_id": 1, "name": "Night Watch", "tag": "NW"})
	var g struct {
		ID       int64 `json:"id"`
		LeaderID int64 `json:"leader_id"`
	}
	api.decode(resp, &g)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, int64(1), g.LeaderID)

	path := "/guilds/" + strconv.FormatInt(g.ID, 10)
	resp = api.do(http.MethodPost, path+"/members", api.svc, map[string]any{"player_id": 2})
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = api.do(http.MethodPost, path+"/members", api.svc, map[string]any{"player_id": 2})
	var added map[string]bool
	api.decode(resp, &added)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, added["added"])

	resp = api.do(http.MethodDelete, path+"/members/2", api.svc, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
