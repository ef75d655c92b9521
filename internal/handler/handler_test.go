package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/guard"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

// --- Responses ---

func TestRespondJSON_NoContent(t *testing.T) {
	w := httptest.NewRecorder()
	RespondJSON(w, http.StatusNoContent, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{domain.ErrNotFound("player", "123"), 404, "NOT_FOUND"},
		{domain.ErrValidation("bad input"), 400, "VALIDATION_ERROR"},
		{domain.ErrUnauthorized("no token"), 401, "UNAUTHORIZED"},
		{domain.ErrForbidden("officer rank required"), 403, "FORBIDDEN"},
		{domain.ErrConflict("guild name taken"), 409, "CONFLICT"},
		{domain.ErrInsufficientFunds(domain.CurrencyGold, 150, 100), 422, "INSUFFICIENT_FUNDS"},
		{domain.ErrExpired("queue ticket expired"), 410, "EXPIRED"},
		{domain.ErrPlayerBusy(7), 429, "PLAYER_BUSY"},
		{domain.ErrInternal("oops", nil), 500, "INTERNAL_ERROR"},
		{assert.AnError, 500, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			w := httptest.NewRecorder()
			RespondError(w, tt.err)
			assert.Equal(t, tt.wantStatus, w.Code)

			var body errorBody
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}

	t.Run("wrapped error keeps details", func(t *testing.T) {
		w := httptest.NewRecorder()
		RespondError(w, fmt.Errorf("transfer: %w", domain.ErrInsufficientFunds(domain.CurrencyGold, 150, 100)))
		assert.JSONEq(t,
			`{"code":"INSUFFICIENT_FUNDS","message":"insufficient gold","details":{"currency":"gold","required":150,"available":100}}`,
			w.Body.String())
	})
}

func TestHealthHandler(t *testing.T) {
	down := errors.New("connection refused")
	h := HealthHandler(
		Check{Name: "store", Probe: func(context.Context) error { return down }},
		Check{Name: "memory"},
	)
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t,
		`{"status":"unhealthy","failing":["store"],"components":{"store":"connection refused","memory":"ok"}}`,
		w.Body.String())
}

// --- Request parsing ---

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		PlayerID int64 `json:"player_id"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"player_id":42}`))
	require.NoError(t, DecodeJSON(r, &dst))
	assert.Equal(t, int64(42), dst.PlayerID)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{oops`))
	assert.True(t, domain.IsKind(DecodeJSON(r, &dst), domain.KindValidation))

	r = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(strings.Repeat("x", maxBodyBytes+1)))
	err := DecodeJSON(r, &dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestPathInt64(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{"17", 17, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("playerID", tt.raw)
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))

			got, err := pathInt64(r, "playerID")
			if tt.wantErr {
				assert.True(t, domain.IsKind(err, domain.KindValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQueryLimit(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{"", domain.DefaultHistoryLimit, false},
		{"?limit=10", 10, false},
		{"?limit=0", 0, true},
		{fmt.Sprintf("?limit=%d", domain.MaxHistoryLimit+1), 0, true},
		{"?limit=ten", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := queryLimit(httptest.NewRequest(http.MethodGet, "/"+tt.query, nil))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name, forwarded, remote, want string
	}{
		{"first forwarded hop", " 1.2.3.4 , 5.6.7.8", "10.0.0.1:5000", "1.2.3.4"},
		{"remote addr host", "", "10.0.0.1:54321", "10.0.0.1"},
		{"remote addr without port", "", "10.0.0.1", "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, ClientIP(r))
		})
	}
}

// --- Middleware ---

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	for _, tt := range []struct {
		name, sent string
		kept       bool
	}{
		{"minted when missing", "", false},
		{"client id kept", "raid-7-retry", true},
		{"oversized id replaced", strings.Repeat("a", maxRequestIDLen+1), false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.sent != "" {
				r.Header.Set("X-Request-ID", tt.sent)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			assert.NotEmpty(t, seen)
			assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
			assert.Equal(t, tt.kept, seen == tt.sent)
		})
	}

	assert.Empty(t, GetRequestID(context.Background()))
}

func TestCORSWithOrigins(t *testing.T) {
	handler := CORSWithOrigins("https://tower.example")(http.HandlerFunc(okHandler))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://tower.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), IdempotencyHeader)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code, "preflight stops before the handler")
}

func TestRecovery(t *testing.T) {
	handler := Recovery(noopLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boss table corrupted")
	}))
	w := httptest.NewRecorder()
	assert.NotPanics(t, func() { handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil)) })
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

func TestRateLimit(t *testing.T) {
	handler := RateLimit(guard.NewRateLimiter(2, time.Minute))(http.HandlerFunc(okHandler))
	send := func(addr string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.9:1234").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.9:1234").Code)
	blocked := send("10.0.0.9:1234")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "30", blocked.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, send("10.0.0.10:1234").Code, "callers have separate buckets")
}

func TestIdempotency(t *testing.T) {
	fail := true
	calls := 0
	handler := Idempotency(guard.NewIdempotencyGuard(time.Hour))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if fail {
			RespondError(w, domain.ErrPlayerBusy(1))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	send := func(method, key string) int {
		r := httptest.NewRequest(method, "/economy/transfers", nil)
		if key != "" {
			r.Header.Set(IdempotencyHeader, key)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusTooManyRequests, send(http.MethodPost, "k1"))
	fail = false
	assert.Equal(t, http.StatusOK, send(http.MethodPost, "k1"), "a failed attempt releases the key")
	assert.Equal(t, http.StatusConflict, send(http.MethodPost, "k1"))
	assert.Equal(t, 2, calls)

	assert.Equal(t, http.StatusOK, send(http.MethodPost, ""))
	assert.Equal(t, http.StatusOK, send(http.MethodGet, "k1"), "reads are never deduplicated")
	assert.Equal(t, 4, calls)
}

func TestResponseWriter_CapturesStatus(t *testing.T) {
	w := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: w, status: 200}
	rw.WriteHeader(http.StatusNotFound)
	assert.Equal(t, http.StatusNotFound, rw.status)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Same(t, w, rw.Unwrap())
}

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
