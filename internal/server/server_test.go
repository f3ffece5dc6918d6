package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"fieldops/internal/auth"
	"fieldops/internal/config"
	"fieldops/internal/db"
	"fieldops/internal/engine"
	"fieldops/internal/events"
	"fieldops/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := engine.New(conn, config.Default())
	e.Logger = logger
	handler, err := New(Config{Engine: e, BasePath: "/v1", Auth: AuthConfig{JWTSecret: testSecret}, Logger: logger})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func token(t *testing.T, subject string, roles ...string) map[string]string {
	t.Helper()
	tok, err := auth.Issue(testSecret, subject, roles, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + tok}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func expectError(t *testing.T, res *http.Response, data []byte, status int, code string) errorEnvelope {
	t.Helper()
	if res.StatusCode != status {
		t.Fatalf("expected status %d, got %d: %s", status, res.StatusCode, string(data))
	}
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, string(data))
	}
	if env.Error.Code != code {
		t.Fatalf("expected error code %s, got %s (%s)", code, env.Error.Code, env.Error.Message)
	}
	return env
}

func expectStatus(t *testing.T, res *http.Response, data []byte, status int) {
	t.Helper()
	if res.StatusCode != status {
		t.Fatalf("expected status %d, got %d: %s", status, res.StatusCode, string(data))
	}
}

// seedOperation creates an active operation with team-a and team-b accepted.
func seedOperation(t *testing.T, srv *testServer) {
	t.Helper()
	client := srv.Client()
	designer := token(t, "dana", auth.RoleDesigner)
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/operations", map[string]any{"id": "op-1", "name": "Night raid"}, designer)
	expectStatus(t, res, data, http.StatusCreated)
	for _, team := range []string{"team-a", "team-b"} {
		res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/operations/op-1/teams", map[string]any{"teamId": team}, designer)
		expectStatus(t, res, data, http.StatusOK)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/operations/op-1/status", map[string]any{"status": "ACTIVE"}, designer)
	expectStatus(t, res, data, http.StatusOK)
}

func TestAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	expectStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, nil)
	expectError(t, res, data, http.StatusUnauthorized, "unauthorized")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"Authorization": "Bearer nope"})
	expectError(t, res, data, http.StatusUnauthorized, "invalid_credentials")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, token(t, "team-a"))
	expectStatus(t, res, data, http.StatusOK)
	var me auth.Principal
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.Subject != "team-a" || me.Source != "jwt" {
		t.Fatalf("unexpected principal %+v", me)
	}
}

func TestDesignerRoutesRequireRole(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/operations", map[string]any{"name": "Sneaky"}, token(t, "team-a"))
	env := expectError(t, res, data, http.StatusForbidden, "forbidden")
	if env.Error.Details["role"] != auth.RoleDesigner {
		t.Fatalf("expected designer role in details, got %v", env.Error.Details)
	}
}

func TestPhysicalCodeOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	seedOperation(t, srv)
	client := srv.Client()
	designer := token(t, "dana", auth.RoleDesigner)
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/operations/op-1/objectives", map[string]any{
		"id":     "vault",
		"type":   "PHYSICAL_CODE",
		"name":   "Vault",
		"points": 50,
		"config": map[string]any{"secretCode": "1234", "maxAttempts": 3, "hint": "four digits"},
	}, designer)
	expectStatus(t, res, data, http.StatusCreated)

	player := token(t, "team-a")
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/objectives/vault/code", map[string]any{"code": "0000"}, player)
	env := expectError(t, res, data, http.StatusUnprocessableEntity, "wrong_answer")
	if env.Error.Details["attemptsRemaining"] != float64(2) || env.Error.Details["hint"] != "four digits" {
		t.Fatalf("unexpected details %v", env.Error.Details)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/objectives/vault/code", map[string]any{"code": "1234"}, player)
	expectStatus(t, res, data, http.StatusOK)
	var attempt engine.AttemptResult
	if err := json.Unmarshal(data, &attempt); err != nil {
		t.Fatalf("decode attempt: %v", err)
	}
	if !attempt.Completed || attempt.Points != 50 {
		t.Fatalf("expected completion worth 50, got %+v", attempt)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/objectives/vault/code", map[string]any{"code": "1234"}, player)
	expectError(t, res, data, http.StatusConflict, "already_completed")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/operations/op-1/scoreboard", nil, player)
	expectStatus(t, res, data, http.StatusOK)
	var board []engine.ScoreboardEntry
	if err := json.Unmarshal(data, &board); err != nil {
		t.Fatalf("decode scoreboard: %v", err)
	}
	if len(board) != 2 || board[0].TeamID != "team-a" || board[0].Points != 50 {
		t.Fatalf("unexpected scoreboard %+v", board)
	}
}

func TestPlayersActOnlyForTheirTeam(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	seedOperation(t, srv)
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/operations/op-1/objectives", map[string]any{
		"id":     "beacon",
		"type":   "QR_SIMPLE",
		"name":   "Beacon",
		"config": map[string]any{"message": "well done"},
	}, token(t, "dana", auth.RoleDesigner))
	expectStatus(t, res, data, http.StatusCreated)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/objectives/beacon/qr", map[string]any{"teamId": "team-b"}, token(t, "team-a"))
	expectError(t, res, data, http.StatusForbidden, "forbidden")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/objectives/beacon/qr", map[string]any{"teamId": "team-b"}, token(t, "ref", auth.RoleArbitrator))
	expectStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/operations/op-1/progress", nil, token(t, "team-b"))
	expectStatus(t, res, data, http.StatusOK)
	var progress engine.TeamProgress
	if err := json.Unmarshal(data, &progress); err != nil {
		t.Fatalf("decode progress: %v", err)
	}
	if progress.Completed != 1 || progress.Points != 10 {
		t.Fatalf("unexpected progress %+v", progress)
	}
}

func TestUnknownObjectiveIsNotFound(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/objectives/missing/morse", map[string]any{"message": "SOS"}, token(t, "team-a"))
	expectError(t, res, data, http.StatusNotFound, "not_found")
}

// seedDomination creates a started session with red and blue teams and one
// point whose token is "hill-token".
func seedDomination(t *testing.T, srv *testServer) string {
	t.Helper()
	client := srv.Client()
	designer := token(t, "dana", auth.RoleDesigner)
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/domination/sessions", map[string]any{
		"id":            "s-1",
		"name":          "King of the hill",
		"pointsPerTick": 1,
	}, designer)
	expectStatus(t, res, data, http.StatusCreated)
	for _, team := range []string{"red", "blue"} {
		res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/domination/sessions/s-1/teams", map[string]any{"id": team, "name": team}, designer)
		expectStatus(t, res, data, http.StatusCreated)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/domination/sessions/s-1/points", map[string]any{
		"id":      "hill",
		"name":    "Hill",
		"qrToken": "hill-token",
	}, designer)
	expectStatus(t, res, data, http.StatusCreated)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/domination/sessions/s-1/start", nil, designer)
	expectError(t, res, data, http.StatusForbidden, "forbidden")
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/domination/sessions/s-1/start", nil, token(t, "ref", auth.RoleArbitrator))
	expectStatus(t, res, data, http.StatusOK)
	return "s-1"
}

func TestDominationCaptureOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	sessionID := seedDomination(t, srv)
	client := srv.Client()
	player := token(t, "scout-1")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/domination/capture", map[string]any{"qrToken": "hill-token", "teamId": "red"}, player)
	expectStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/domination/capture", map[string]any{"qrToken": "hill-token", "teamId": "red"}, player)
	expectError(t, res, data, http.StatusConflict, "already_controlled")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/domination/sessions/"+sessionID+"/state", nil, player)
	expectStatus(t, res, data, http.StatusOK)
	var state engine.DominationState
	if err := json.Unmarshal(data, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if len(state.Points) != 1 || state.Points[0].ControlledBy == nil || state.Points[0].ControlledBy.ID != "red" {
		t.Fatalf("expected red to hold the hill, got %+v", state.Points)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/domination/sessions/"+sessionID+"/end", nil, token(t, "ref", auth.RoleArbitrator))
	expectStatus(t, res, data, http.StatusOK)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/domination/capture", map[string]any{"qrToken": "hill-token", "teamId": "blue"}, player)
	expectError(t, res, data, http.StatusUnprocessableEntity, "session_not_active")
}

func TestEventsPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	seedOperation(t, srv)
	client := srv.Client()
	staff := token(t, "ref", auth.RoleArbitrator)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/events?operationId=op-1&limit=2", nil, staff)
	expectStatus(t, res, data, http.StatusOK)
	var page paginatedEvents
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("expected a full page with a cursor, got %+v", page)
	}
	if page.Items[0].Type != events.OperationStatusChanged {
		t.Fatalf("expected newest event first, got %s", page.Items[0].Type)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/events?operationId=op-1&limit=2&cursor="+page.NextCursor, nil, staff)
	expectStatus(t, res, data, http.StatusOK)
	var next paginatedEvents
	if err := json.Unmarshal(data, &next); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(next.Items) != 2 || next.Items[0].ID >= page.Items[1].ID {
		t.Fatalf("expected older events on the next page, got %+v", next.Items)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/events?cursor=abc", nil, staff)
	expectError(t, res, data, http.StatusBadRequest, "bad_request")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/events", nil, token(t, "team-a"))
	expectError(t, res, data, http.StatusForbidden, "forbidden")
}

func TestWebhookDeliversSignedEvents(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	var mu sync.Mutex
	var got []webhookEvent
	var signatures []string
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var evt webhookEvent
		if err := json.Unmarshal(body, &evt); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		got = append(got, evt)
		signatures = append(signatures, r.Header.Get("X-Fieldops-Signature"))
		mu.Unlock()
		if strings.TrimPrefix(r.Header.Get("X-Fieldops-Signature"), "sha256=") != signPayload("s3cret", body) {
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer hook.Close()

	e := srv.Engine
	cfg := *e.Config
	cfg.Webhooks = []config.WebhookConfig{{URL: hook.URL, Secret: "s3cret", Events: []string{"operation."}}}
	e.Config = &cfg
	d := newWebhookDispatcher(e, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if d == nil {
		t.Fatalf("expected a dispatcher")
	}
	ctx := context.Background()
	d.cursorFor(ctx, 0)

	seedOperation(t, srv)
	if _, err := e.CreateDominationSession(ctx, engine.SessionCreateOptions{Name: "ignored"}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 4 {
		t.Fatalf("expected 4 operation events, got %d", len(got))
	}
	if got[0].Type != events.OperationCreated || got[0].OperationID != "op-1" {
		t.Fatalf("unexpected first event %+v", got[0])
	}
	for _, sig := range signatures {
		if !strings.HasPrefix(sig, "sha256=") {
			t.Fatalf("missing signature header")
		}
	}
	latest, err := e.Repo.LatestEventID(ctx, "")
	if err != nil {
		t.Fatalf("latest event id: %v", err)
	}
	if cur := d.cursorFor(ctx, 0); cur != latest {
		t.Fatalf("expected cursor %d, got %d", latest, cur)
	}
}

func TestEventFilterPrefixes(t *testing.T) {
	f := newEventFilter([]string{"domination.", "objective.completed"})
	cases := map[string]bool{
		"domination.point_captured": true,
		"objective.completed":       true,
		"objective.created":         false,
	}
	for evt, want := range cases {
		if f.match(evt) != want {
			t.Fatalf("match(%s) = %v", evt, !want)
		}
	}
	if !newEventFilter(nil).match("anything") {
		t.Fatalf("empty filter should match everything")
	}
}

func TestLiveFeedStreamsState(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	sessionID := seedDomination(t, srv)

	tok, err := auth.Issue(testSecret, "screen", nil, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/domination/sessions/" + sessionID + "/live?access_token=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial live feed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg liveMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read live message: %v", err)
	}
	if msg.Type != "state" || msg.State == nil || msg.State.Session.ID != sessionID {
		t.Fatalf("unexpected live message %+v", msg)
	}

	if _, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/domination/sessions/"+sessionID+"/live", nil); err == nil {
		t.Fatalf("expected the handshake to be refused without a token")
	}
}
