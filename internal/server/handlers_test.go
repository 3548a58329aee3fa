package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/oakbyte/labpanel/internal/aggregator"
	"github.com/oakbyte/labpanel/internal/backend"
	"github.com/oakbyte/labpanel/internal/config"
	"github.com/oakbyte/labpanel/internal/dispatcher"
)

type fakeBackend struct {
	mu        sync.Mutex
	resources []backend.Resource
	actions   []string
}

func (f *fakeBackend) ListResources(ctx context.Context) ([]backend.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]backend.Resource, len(f.resources))
	copy(out, f.resources)
	return out, nil
}

func (f *fakeBackend) PerformAction(ctx context.Context, id string, verb backend.Verb) error {
	f.mu.Lock()
	f.actions = append(f.actions, fmt.Sprintf("%s %s", verb, id))
	f.mu.Unlock()
	return nil
}

type memActionStore struct {
	mu      sync.Mutex
	actions map[string]dispatcher.Action
}

func (m *memActionStore) Put(a *dispatcher.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions[a.ID] = *a
	return nil
}

func (m *memActionStore) Get(id string) (*dispatcher.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actions[id]
	if !ok {
		return nil, nil
	}
	cp := a
	return &cp, nil
}

func (m *memActionStore) Recent(limit int) ([]*dispatcher.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*dispatcher.Action, 0, len(m.actions))
	for _, a := range m.actions {
		cp := a
		out = append(out, &cp)
	}
	return out, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Proxmox: config.ProxmoxConfig{
			BaseURL:             "https://pve.lab:8006",
			User:                "root@pam",
			TokenID:             "root@pam!labpanel",
			TokenSecret:         "secret-uuid-1234",
			PollIntervalSeconds: 5,
		},
		Docker: config.DockerConfig{
			SocketPath:          "/var/run/docker.sock",
			PollIntervalSeconds: 5,
			StopGraceSeconds:    10,
		},
		Service: config.ServiceConfig{BindAddress: "127.0.0.1", Port: 8090},
		Auth:    config.AuthConfig{Mode: config.AuthModeNone},
	}
}

type testEnv struct {
	ts      *httptest.Server
	store   *config.Store
	backend *fakeBackend
	rebuilt *int
}

// newTestEnv assembles the full API surface over fake backends. cfg nil
// means the unconfigured first-run state.
func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()

	store := config.NewStoreWith(filepath.Join(t.TempDir(), "config.yml"), cfg)

	fb := &fakeBackend{resources: []backend.Resource{
		{ID: "a1b2c3d4e5f6", Kind: backend.KindContainer, Name: "jellyfin",
			Status: backend.StatusRunning, Backend: backend.Docker},
	}}

	agg := aggregator.New()
	agg.Register(backend.Docker, fb, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	disp := dispatcher.New(agg, &memActionStore{actions: make(map[string]dispatcher.Action)})
	disp.Register(backend.Docker, fb)
	t.Cleanup(disp.Wait)

	rebuilt := 0
	srv := New(store, agg, disp, func(cfg *config.Config) error {
		rebuilt++
		return nil
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	// Wait for the first snapshot so routing works.
	deadline := time.Now().Add(5 * time.Second)
	for len(agg.Current().Resources) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("aggregator never published")
		}
		time.Sleep(5 * time.Millisecond)
	}

	return &testEnv{ts: ts, store: store, backend: fb, rebuilt: &rebuilt}
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	buf, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, testConfig(t))

	resp, err := http.Get(env.ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Status     string `json:"status"`
		Configured bool   `json:"configured"`
	}
	decodeBody(t, resp, &body)
	if body.Status != "ok" || !body.Configured {
		t.Errorf("health = %+v", body)
	}
}

func TestInventory(t *testing.T) {
	env := newTestEnv(t, testConfig(t))

	resp, err := http.Get(env.ts.URL + "/api/inventory")
	if err != nil {
		t.Fatal(err)
	}
	var snap aggregator.Snapshot
	decodeBody(t, resp, &snap)
	if len(snap.Resources) != 1 || snap.Resources[0].Name != "jellyfin" {
		t.Errorf("inventory = %+v", snap.Resources)
	}
	if snap.Version == 0 {
		t.Error("snapshot should be versioned")
	}
}

func TestSubmitActionLifecycle(t *testing.T) {
	env := newTestEnv(t, testConfig(t))

	resp := postJSON(t, env.ts.URL+"/api/actions", map[string]string{
		"resource_id": "a1b2c3d4e5f6",
		"verb":        "restart",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var act dispatcher.Action
	decodeBody(t, resp, &act)
	if act.ID == "" || act.State != dispatcher.StateExecuting {
		t.Errorf("handle = %+v", act)
	}

	// Poll the handle until the action resolves.
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(env.ts.URL + "/api/actions/" + act.ID)
		if err != nil {
			t.Fatal(err)
		}
		var got dispatcher.Action
		decodeBody(t, resp, &got)
		if got.Terminal() {
			if got.State != dispatcher.StateSucceeded {
				t.Errorf("state = %q (%s)", got.State, got.Error)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("action never resolved")
		}
		time.Sleep(10 * time.Millisecond)
	}

	env.backend.mu.Lock()
	performed := append([]string(nil), env.backend.actions...)
	env.backend.mu.Unlock()
	if len(performed) != 1 || performed[0] != "restart a1b2c3d4e5f6" {
		t.Errorf("backend calls = %v", performed)
	}

	// The listing endpoint includes the record.
	resp2, err := http.Get(env.ts.URL + "/api/actions")
	if err != nil {
		t.Fatal(err)
	}
	var list struct {
		Actions []dispatcher.Action `json:"actions"`
		Total   int                 `json:"total"`
	}
	decodeBody(t, resp2, &list)
	if list.Total != 1 {
		t.Errorf("total = %d", list.Total)
	}
}

func TestSubmitActionValidation(t *testing.T) {
	env := newTestEnv(t, testConfig(t))

	tests := []struct {
		name       string
		body       map[string]string
		wantStatus int
		wantReason string
	}{
		{"bad verb", map[string]string{"resource_id": "a1b2c3d4e5f6", "verb": "explode"}, http.StatusBadRequest, ""},
		{"missing resource", map[string]string{"verb": "start"}, http.StatusBadRequest, ""},
		{"unknown resource", map[string]string{"resource_id": "nope", "verb": "start"}, http.StatusNotFound, "unknown_resource"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, env.ts.URL+"/api/actions", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			var body struct {
				Reason string `json:"reason"`
			}
			decodeBody(t, resp, &body)
			if body.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", body.Reason, tt.wantReason)
			}
		})
	}
}

func TestUnconfiguredPanel(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := postJSON(t, env.ts.URL+"/api/actions", map[string]string{
		"resource_id": "a1b2c3d4e5f6",
		"verb":        "start",
	})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	resp.Body.Close()

	resp2, err := http.Get(env.ts.URL + "/api/settings")
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Configured bool `json:"configured"`
	}
	decodeBody(t, resp2, &body)
	if body.Configured {
		t.Error("settings should report unconfigured")
	}
}

func TestSettingsRedaction(t *testing.T) {
	env := newTestEnv(t, testConfig(t))

	resp, err := http.Get(env.ts.URL + "/api/settings")
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Proxmox struct {
			TokenSecret string `json:"token_secret"`
			BaseURL     string `json:"base_url"`
		} `json:"proxmox"`
	}
	decodeBody(t, resp, &body)
	if body.Proxmox.TokenSecret != config.RedactedPlaceholder {
		t.Errorf("token_secret = %q, must be masked", body.Proxmox.TokenSecret)
	}
	if body.Proxmox.BaseURL != "https://pve.lab:8006" {
		t.Errorf("base_url = %q", body.Proxmox.BaseURL)
	}
}

func TestUpdateSettings(t *testing.T) {
	env := newTestEnv(t, testConfig(t))

	buf, _ := json.Marshal(map[string]interface{}{
		"proxmox": map[string]interface{}{
			"base_url":     "https://pve2.lab:8006",
			"token_secret": config.RedactedPlaceholder,
		},
	})
	req, _ := http.NewRequest(http.MethodPut, env.ts.URL+"/api/settings", bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	cur := env.store.Current()
	if cur.Proxmox.BaseURL != "https://pve2.lab:8006" {
		t.Errorf("base_url not updated: %q", cur.Proxmox.BaseURL)
	}
	// The placeholder must not clobber the real secret.
	if cur.Proxmox.TokenSecret != "secret-uuid-1234" {
		t.Errorf("placeholder overwrote the stored secret")
	}
	if *env.rebuilt != 1 {
		t.Errorf("rebuild called %d times, want 1", *env.rebuilt)
	}
}

func TestUpdateSettingsInvalid(t *testing.T) {
	env := newTestEnv(t, testConfig(t))

	buf, _ := json.Marshal(map[string]interface{}{
		"proxmox": map[string]interface{}{"base_url": "not-a-url"},
	})
	req, _ := http.NewRequest(http.MethodPut, env.ts.URL+"/api/settings", bytes.NewReader(buf))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if env.store.Current().Proxmox.BaseURL != "https://pve.lab:8006" {
		t.Error("rejected update must not change the active config")
	}
	if *env.rebuilt != 0 {
		t.Error("rebuild must not run for a rejected update")
	}
}

func TestPasswordAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22hunter22"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(t)
	cfg.Auth = config.AuthConfig{Mode: config.AuthModePassword, PasswordHash: string(hash)}
	env := newTestEnv(t, cfg)

	// Mutations require a session.
	resp := postJSON(t, env.ts.URL+"/api/actions", map[string]string{
		"resource_id": "a1b2c3d4e5f6", "verb": "start",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated action: status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()

	// Reads stay open.
	resp2, err := http.Get(env.ts.URL + "/api/inventory")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("inventory behind auth wall: %d", resp2.StatusCode)
	}

	// Wrong password.
	resp3 := postJSON(t, env.ts.URL+"/api/auth/login", map[string]string{"password": "wrong"})
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong password: status = %d, want 401", resp3.StatusCode)
	}

	// Right password yields a session cookie.
	resp4 := postJSON(t, env.ts.URL+"/api/auth/login", map[string]string{"password": "hunter22hunter22"})
	resp4.Body.Close()
	if resp4.StatusCode != http.StatusOK {
		t.Fatalf("login: status = %d", resp4.StatusCode)
	}
	var cookie *http.Cookie
	for _, c := range resp4.Cookies() {
		if c.Name == sessionCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("login set no session cookie")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie must be http-only")
	}

	// The session unlocks mutations.
	buf, _ := json.Marshal(map[string]string{"resource_id": "a1b2c3d4e5f6", "verb": "start"})
	req, _ := http.NewRequest(http.MethodPost, env.ts.URL+"/api/actions", bytes.NewReader(buf))
	req.AddCookie(cookie)
	resp5, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp5.Body.Close()
	if resp5.StatusCode != http.StatusAccepted {
		t.Errorf("authenticated action: status = %d, want 202", resp5.StatusCode)
	}

	// Logout invalidates it.
	reqOut, _ := http.NewRequest(http.MethodPost, env.ts.URL+"/api/auth/logout", nil)
	reqOut.AddCookie(cookie)
	resp6, err := http.DefaultClient.Do(reqOut)
	if err != nil {
		t.Fatal(err)
	}
	resp6.Body.Close()

	req2, _ := http.NewRequest(http.MethodPost, env.ts.URL+"/api/actions", bytes.NewReader(buf))
	req2.AddCookie(cookie)
	resp7, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatal(err)
	}
	resp7.Body.Close()
	if resp7.StatusCode != http.StatusUnauthorized {
		t.Errorf("after logout: status = %d, want 401", resp7.StatusCode)
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, testConfig(t))

	req, _ := http.NewRequest(http.MethodGet, env.ts.URL+"/api/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("allow-origin = %q", got)
	}

	// Foreign origins are not reflected.
	req2, _ := http.NewRequest(http.MethodGet, env.ts.URL+"/api/health", nil)
	req2.Header.Set("Origin", "https://evil.example")
	resp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if got := resp2.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin reflected: %q", got)
	}

	// Preflight short-circuits.
	req3, _ := http.NewRequest(http.MethodOptions, env.ts.URL+"/api/actions", nil)
	resp3, err := http.DefaultClient.Do(req3)
	if err != nil {
		t.Fatal(err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusOK {
		t.Errorf("preflight status = %d", resp3.StatusCode)
	}
}

func TestAuthCheck(t *testing.T) {
	env := newTestEnv(t, testConfig(t))

	resp, err := http.Get(env.ts.URL + "/api/auth/check")
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Authenticated bool `json:"authenticated"`
		AuthRequired  bool `json:"auth_required"`
	}
	decodeBody(t, resp, &body)
	if body.AuthRequired {
		t.Error("auth_required should be false in none mode")
	}
}
