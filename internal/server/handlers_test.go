package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/broadcast"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/config"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/domain"
	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/hype"
)

type serverFixture struct {
	srv      *Server
	store    *hype.MemoryStore
	clock    *clockwork.FakeClock
	streamer *domain.Streamer
}

func newTestServer(t *testing.T) *serverFixture {
	t.Helper()
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := hype.NewMemoryStore(clock)

	streamer, err := store.Upsert(ctx, "12345", "teststreamer")
	require.NoError(t, err)

	factions := hype.NewFactionService(store)
	require.NoError(t, factions.SeedDefaults(ctx, streamer.ID))

	engine := hype.NewEngine(store, store, store, clock)
	deps := Dependencies{
		Streamers: store,
		Factions:  factions,
		Engine:    engine,
		Receipts:  hype.NewReceiptGuard(store),
		Snapshots: hype.NewSnapshotBuilder(engine, store, clock),
		Settings:  store,
		EventLog:  store,
		Hub:       broadcast.NewHub(20),
		Clock:     clock,
	}
	cfg := &config.Config{
		AppEnv:        "test",
		Port:          "0",
		SessionSecret: "test-session-secret",
		CommandPrefix: "!",
	}
	return &serverFixture{
		srv:      NewServer(cfg, deps),
		store:    store,
		clock:    clock,
		streamer: streamer,
	}
}

// call runs a handler through the error middleware with the fixture streamer
// already authenticated, mirroring what the route group does.
func (f *serverFixture) call(h echo.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	c := f.srv.Echo().NewContext(req, rec)
	c.Set("streamerID", f.streamer.ID)
	if err := errorHandlingMiddleware()(h)(c); err != nil {
		f.srv.Echo().HTTPErrorHandler(err, c)
	}
	return rec
}

// callWithParam is call with one path parameter bound.
func (f *serverFixture) callWithParam(h echo.HandlerFunc, req *http.Request, name, value string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	c := f.srv.Echo().NewContext(req, rec)
	c.Set("streamerID", f.streamer.ID)
	c.SetParamNames(name)
	c.SetParamValues(value)
	if err := errorHandlingMiddleware()(h)(c); err != nil {
		f.srv.Echo().HTTPErrorHandler(err, c)
	}
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandleMe(t *testing.T) {
	f := newTestServer(t)

	rec := f.call(f.srv.handleMe, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "teststreamer", body["username"])
	assert.Equal(t, fmt.Sprintf("/overlay/%s/events", f.streamer.OverlayUUID), body["overlayUrl"])
	assert.Equal(t, fmt.Sprintf("/overlay/%s/snapshot", f.streamer.OverlayUUID), body["snapshotUrl"])
}

func TestHandleListFactions(t *testing.T) {
	f := newTestServer(t)

	rec := f.call(f.srv.handleListFactions, httptest.NewRequest(http.MethodGet, "/api/factions", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	factions := body["factions"].([]any)
	assert.Len(t, factions, 2)
}

func TestHandleCreateFaction(t *testing.T) {
	f := newTestServer(t)

	rec := f.call(f.srv.handleCreateFaction,
		jsonRequest(http.MethodPost, "/api/factions", `{"key":"neutral","name":"Neutral","colorHex":"#AAAAAA","sortOrder":2}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "NEUTRAL", body["key"])
}

func TestHandleCreateFaction_Duplicate(t *testing.T) {
	f := newTestServer(t)

	rec := f.call(f.srv.handleCreateFaction,
		jsonRequest(http.MethodPost, "/api/factions", `{"key":"ORDER","name":"Order Again","colorHex":"#FFFFFF"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleCreateFaction_InvalidKey(t *testing.T) {
	f := newTestServer(t)

	rec := f.call(f.srv.handleCreateFaction,
		jsonRequest(http.MethodPost, "/api/factions", `{"key":"bad key!","name":"Bad","colorHex":"#FFFFFF"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUpdateFaction(t *testing.T) {
	f := newTestServer(t)

	rec := f.callWithParam(f.srv.handleUpdateFaction,
		jsonRequest(http.MethodPatch, "/api/factions/ORDER", `{"name":"New Order"}`),
		"key", "ORDER")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "New Order", body["name"])
}

func TestHandleUpdateFaction_ExplicitZeroValues(t *testing.T) {
	f := newTestServer(t)

	// CHAOS seeds with sortOrder 1 and a color; both must be settable to
	// their zero values.
	rec := f.callWithParam(f.srv.handleUpdateFaction,
		jsonRequest(http.MethodPatch, "/api/factions/CHAOS", `{"sortOrder":0,"colorHex":""}`),
		"key", "CHAOS")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(0), body["sortOrder"])
	assert.Equal(t, "", body["colorHex"])
	assert.Equal(t, "Chaos", body["name"])
}

func TestHandleUpdateFaction_OmittedFieldsUntouched(t *testing.T) {
	f := newTestServer(t)

	rec := f.callWithParam(f.srv.handleUpdateFaction,
		jsonRequest(http.MethodPatch, "/api/factions/CHAOS", `{}`),
		"key", "CHAOS")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "Chaos", body["name"])
	assert.Equal(t, "#EF5350", body["colorHex"])
	assert.Equal(t, float64(1), body["sortOrder"])
}

func TestHandleUpdateFaction_Unknown(t *testing.T) {
	f := newTestServer(t)

	rec := f.callWithParam(f.srv.handleUpdateFaction,
		jsonRequest(http.MethodPatch, "/api/factions/GHOST", `{"name":"Ghost"}`),
		"key", "GHOST")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleDeleteFaction_BlockedAtMinimum(t *testing.T) {
	f := newTestServer(t)

	rec := f.callWithParam(f.srv.handleDeleteFaction,
		httptest.NewRequest(http.MethodDelete, "/api/factions/ORDER", nil),
		"key", "ORDER")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleDeleteFaction(t *testing.T) {
	f := newTestServer(t)
	ctx := context.Background()

	_, err := f.srv.deps.Factions.Create(ctx, f.streamer.ID, "NEUTRAL", "Neutral", "#AAAAAA", 2)
	require.NoError(t, err)

	rec := f.callWithParam(f.srv.handleDeleteFaction,
		httptest.NewRequest(http.MethodDelete, "/api/factions/NEUTRAL", nil),
		"key", "NEUTRAL")
	require.Equal(t, http.StatusOK, rec.Code)

	active, err := f.srv.deps.Factions.List(ctx, f.streamer.ID)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestHandleEventLog_LimitValidation(t *testing.T) {
	f := newTestServer(t)

	rec := f.call(f.srv.handleEventLog, httptest.NewRequest(http.MethodGet, "/api/events/log?limit=9999", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.call(f.srv.handleEventLog, httptest.NewRequest(http.MethodGet, "/api/events/log?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.call(f.srv.handleEventLog, httptest.NewRequest(http.MethodGet, "/api/events/log", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleRotateOverlayUUID(t *testing.T) {
	f := newTestServer(t)
	before := f.streamer.OverlayUUID

	rec := f.call(f.srv.handleRotateOverlayUUID, httptest.NewRequest(http.MethodPost, "/api/rotate-overlay-uuid", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	after, err := f.store.GetByID(context.Background(), f.streamer.ID)
	require.NoError(t, err)
	assert.NotEqual(t, before, after.OverlayUUID)
	assert.Contains(t, decodeBody(t, rec)["overlayUrl"], after.OverlayUUID.String())
}

func TestHandleRotateAPIKey(t *testing.T) {
	f := newTestServer(t)
	before := f.streamer.APIKey

	rec := f.call(f.srv.handleRotateAPIKey, httptest.NewRequest(http.MethodPost, "/api/rotate-api-key", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.NotEqual(t, before, body["apiKey"])
}

func TestDecaySettings_Roundtrip(t *testing.T) {
	f := newTestServer(t)

	rec := f.call(f.srv.handleSaveDecaySettings,
		jsonRequest(http.MethodPut, "/api/settings/decay", `{"enabled":true,"percentPerMinute":5,"minClampAbs":3}`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.call(f.srv.handleGetDecaySettings, httptest.NewRequest(http.MethodGet, "/api/settings/decay", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["enabled"])
	assert.Equal(t, float64(5), body["percentPerMinute"])
	assert.Equal(t, float64(3), body["minClampAbs"])
}

func TestDecaySettings_RejectsOutOfRangePercent(t *testing.T) {
	f := newTestServer(t)

	rec := f.call(f.srv.handleSaveDecaySettings,
		jsonRequest(http.MethodPut, "/api/settings/decay", `{"enabled":true,"percentPerMinute":150}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPolicySettings_DefaultModeRequiresFactionKey(t *testing.T) {
	f := newTestServer(t)

	rec := f.call(f.srv.handleSavePolicySettings,
		jsonRequest(http.MethodPut, "/api/settings/policy", `{"mode":"default"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPolicySettings_Roundtrip(t *testing.T) {
	f := newTestServer(t)

	rec := f.call(f.srv.handleSavePolicySettings,
		jsonRequest(http.MethodPut, "/api/settings/policy",
			`{"mode":"default","defaultFactionKey":"chaos","eventDeltas":{"channel.follow":25}}`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.call(f.srv.handleGetPolicySettings, httptest.NewRequest(http.MethodGet, "/api/settings/policy", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "default", body["mode"])
	assert.Equal(t, "CHAOS", body["defaultFactionKey"])
}

func TestPolicySettings_RejectsUnknownMode(t *testing.T) {
	f := newTestServer(t)

	rec := f.call(f.srv.handleSavePolicySettings,
		jsonRequest(http.MethodPut, "/api/settings/policy", `{"mode":"random"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaveCommand_RejectsUnknownKind(t *testing.T) {
	f := newTestServer(t)

	rec := f.callWithParam(f.srv.handleSaveCommand,
		jsonRequest(http.MethodPut, "/api/commands/hype", `{"kind":"shout","enabled":true}`),
		"trigger", "hype")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaveCommand_LowercasesTrigger(t *testing.T) {
	f := newTestServer(t)

	rec := f.callWithParam(f.srv.handleSaveCommand,
		jsonRequest(http.MethodPut, "/api/commands/BOOST", `{"kind":"hype","enabled":true,"cooldownSeconds":10,"maxDelta":100,"defaultDelta":10}`),
		"trigger", "BOOST")
	require.Equal(t, http.StatusOK, rec.Code)

	commands, err := f.store.Commands(context.Background(), f.streamer.ID)
	require.NoError(t, err)
	require.Len(t, commands, 1)
	assert.Equal(t, "boost", commands[0].Trigger)
}

func TestIngestEvent_RequiresAPIKey(t *testing.T) {
	f := newTestServer(t)

	rec := f.call(f.srv.handleIngestEvent,
		jsonRequest(http.MethodPost, "/api/events", `{"faction_key":"ORDER","delta":5}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIngestEvent_RejectsUnknownAPIKey(t *testing.T) {
	f := newTestServer(t)

	req := jsonRequest(http.MethodPost, "/api/events", `{"faction_key":"ORDER","delta":5}`)
	req.Header.Set(headerAPIKey, "no-such-key")
	rec := f.call(f.srv.handleIngestEvent, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIngestEvent_Applies(t *testing.T) {
	f := newTestServer(t)

	req := jsonRequest(http.MethodPost, "/api/events", `{"event_id":"evt-1","faction_key":"ORDER","delta":7}`)
	req.Header.Set(headerAPIKey, f.streamer.APIKey)
	rec := f.call(f.srv.handleIngestEvent, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["applied"])
	assert.Equal(t, "ORDER", body["factionKey"])
	assert.Equal(t, float64(7), body["meter"])
}

func TestIngestEvent_DuplicateEventID(t *testing.T) {
	f := newTestServer(t)

	send := func() *httptest.ResponseRecorder {
		req := jsonRequest(http.MethodPost, "/api/events", `{"event_id":"evt-dup","faction_key":"ORDER","delta":7}`)
		req.Header.Set(headerAPIKey, f.streamer.APIKey)
		return f.call(f.srv.handleIngestEvent, req)
	}

	require.Equal(t, http.StatusOK, send().Code)

	rec := send()
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["applied"])
	assert.Equal(t, "duplicate", body["reason"])
}

func TestIngestEvent_UnknownFaction(t *testing.T) {
	f := newTestServer(t)

	req := jsonRequest(http.MethodPost, "/api/events", `{"event_id":"evt-1","faction_key":"GHOSTS","delta":7}`)
	req.Header.Set(headerAPIKey, f.streamer.APIKey)
	rec := f.call(f.srv.handleIngestEvent, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestEvent_RejectsZeroDelta(t *testing.T) {
	f := newTestServer(t)

	req := jsonRequest(http.MethodPost, "/api/events", `{"event_id":"evt-1","faction_key":"ORDER","delta":0}`)
	req.Header.Set(headerAPIKey, f.streamer.APIKey)
	rec := f.call(f.srv.handleIngestEvent, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOverlaySnapshot(t *testing.T) {
	f := newTestServer(t)

	_, err := f.srv.deps.Engine.AddHype(context.Background(), f.streamer.ID, "ORDER", 42, domain.SourceAPI, nil)
	require.NoError(t, err)

	rec := f.callWithParam(f.srv.handleOverlaySnapshot,
		httptest.NewRequest(http.MethodGet, "/overlay/x/snapshot", nil),
		"uuid", f.streamer.OverlayUUID.String())
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot domain.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.True(t, snapshot.OK)
	require.Len(t, snapshot.Meters, 2)
	assert.Equal(t, "ORDER", snapshot.Meters[0].FactionKey)
	assert.Equal(t, int64(42), snapshot.Meters[0].Meter)
}

func TestOverlaySnapshot_InvalidUUID(t *testing.T) {
	f := newTestServer(t)

	rec := f.callWithParam(f.srv.handleOverlaySnapshot,
		httptest.NewRequest(http.MethodGet, "/overlay/x/snapshot", nil),
		"uuid", "not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOverlaySnapshot_UnknownOverlay(t *testing.T) {
	f := newTestServer(t)

	rec := f.callWithParam(f.srv.handleOverlaySnapshot,
		httptest.NewRequest(http.MethodGet, "/overlay/x/snapshot", nil),
		"uuid", uuid.NewString())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// sseRecorder is a goroutine-safe ResponseWriter for the streaming handler,
// which writes from its own goroutine.
type sseRecorder struct {
	mu     sync.Mutex
	buf    strings.Builder
	header http.Header
	wrote  chan struct{}
}

func newSSERecorder() *sseRecorder {
	return &sseRecorder{header: make(http.Header), wrote: make(chan struct{}, 16)}
}

func (r *sseRecorder) Header() http.Header { return r.header }
func (r *sseRecorder) WriteHeader(int)     {}
func (r *sseRecorder) Flush()              {}

func (r *sseRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	n, err := r.buf.Write(p)
	r.mu.Unlock()
	select {
	case r.wrote <- struct{}{}:
	default:
	}
	return n, err
}

func (r *sseRecorder) body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

func TestOverlayStream_SendsInitialSnapshot(t *testing.T) {
	f := newTestServer(t)
	ctx := context.Background()

	// Three applied events before connecting; the overlay must receive one
	// cumulative frame, not a replay.
	for i := 0; i < 3; i++ {
		_, err := f.srv.deps.Engine.AddHype(ctx, f.streamer.ID, "ORDER", 5, domain.SourceAPI, nil)
		require.NoError(t, err)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/overlay/x/events", nil).WithContext(reqCtx)
	rec := newSSERecorder()
	c := f.srv.Echo().NewContext(req, rec)
	c.SetParamNames("uuid")
	c.SetParamValues(f.streamer.OverlayUUID.String())

	done := make(chan error, 1)
	go func() { done <- f.srv.handleOverlayStream(c) }()

	select {
	case <-rec.wrote:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the initial frame")
	}
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler did not return after disconnect")
	}

	body := rec.body()
	assert.Equal(t, 1, strings.Count(body, "event: meters\n"))
	assert.Contains(t, body, `"meter":15`)
	assert.Zero(t, f.srv.deps.Hub.ClientCount(f.streamer.ID))
}

func TestOverlayStream_UnknownOverlay(t *testing.T) {
	f := newTestServer(t)

	rec := f.callWithParam(f.srv.handleOverlayStream,
		httptest.NewRequest(http.MethodGet, "/overlay/x/events", nil),
		"uuid", uuid.NewString())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return fmt.Errorf("connection refused") }

func TestHandleLiveness(t *testing.T) {
	f := newTestServer(t)

	rec := f.call(f.srv.handleLiveness, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestHandleReadiness_FailingDatabase(t *testing.T) {
	f := newTestServer(t)
	f.srv.deps.DB = failingPinger{}

	rec := f.call(f.srv.handleReadiness, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "postgres", decodeBody(t, rec)["failed_check"])
}

func TestHandleReadiness_NoDatabaseConfigured(t *testing.T) {
	f := newTestServer(t)

	rec := f.call(f.srv.handleReadiness, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuth_RejectsAnonymous(t *testing.T) {
	f := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	rec := httptest.NewRecorder()
	f.srv.Echo().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
