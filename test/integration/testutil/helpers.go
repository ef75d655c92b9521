//go:build integration

package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// RegisterPlayer creates a character through the API and fails the test on
// anything but 201.
func (env *TestEnv) RegisterPlayer(id int64, nickname string) {
	env.t.Helper()
	resp := env.POST("/players", map[string]any{"id": id, "nickname": nickname}, env.Token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		env.t.Fatalf("RegisterPlayer %d: status %d", id, resp.StatusCode)
	}
}

// GET performs an unauthenticated GET request.
func (env *TestEnv) GET(path string) *http.Response {
	env.t.Helper()
	resp, err := http.Get(env.Server.URL + path)
	if err != nil {
		env.t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

// AuthGET performs an authenticated GET request.
func (env *TestEnv) AuthGET(path, token string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodGet, path, nil, token)
}

// POST performs a POST request with optional auth token.
func (env *TestEnv) POST(path string, body any, token string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodPost, path, body, token)
}

// PUT performs an authenticated PUT request.
func (env *TestEnv) PUT(path string, body any, token string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodPut, path, body, token)
}

// DELETE performs an authenticated DELETE request.
func (env *TestEnv) DELETE(path, token string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodDelete, path, nil, token)
}

func (env *TestEnv) do(method, path string, body any, token string) *http.Response {
	env.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			env.t.Fatalf("%s %s: encode: %v", method, path, err)
		}
	}
	req, err := http.NewRequest(method, env.Server.URL+path, &buf)
	if err != nil {
		env.t.Fatalf("%s %s: new request: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}
