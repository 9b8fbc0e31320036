package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/MJE43/stake-wheel-go/internal/engine"
	"github.com/MJE43/stake-wheel-go/internal/live"
	"github.com/MJE43/stake-wheel-go/internal/metrics"
	"github.com/MJE43/stake-wheel-go/internal/scan"
	"github.com/MJE43/stake-wheel-go/internal/session"
	"github.com/MJE43/stake-wheel-go/internal/store"
	"github.com/MJE43/stake-wheel-go/internal/wheel"
)

type testEnv struct {
	server   *Server
	handler  http.Handler
	db       *store.SQLiteDB
	sessions *session.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := store.NewSQLiteDB(filepath.Join(t.TempDir(), "wheel.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	scanner, err := scan.NewScanner(scan.Options{Workers: 2})
	if err != nil {
		t.Fatalf("scanner: %v", err)
	}
	hub := live.NewHub(nil)
	sessions := session.NewManager(session.ManagerOptions{
		MaxSegments: 100,
		NewSpinner:  func() session.Spinner { return session.ManualSpinner{} },
		Sink:        hub,
	})
	t.Cleanup(func() {
		sessions.Close()
		scanner.Close()
		_ = db.Close()
	})

	server := NewServer(Options{
		DB:          db,
		Scanner:     scanner,
		Sessions:    sessions,
		Hub:         hub,
		MaxSegments: 100,
		CORSOrigins: []string{"http://localhost:5173"},
	})
	return &testEnv{server: server, handler: server.Routes(), db: db, sessions: sessions}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, errType string) EngineError {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, w.Code, w.Body.String())
	}
	e := decode[EngineError](t, w)
	if e.Type != errType {
		t.Errorf("expected error type %s, got %s (%s)", errType, e.Type, e.Message)
	}
	if got := w.Header().Get("X-Error-Type"); got != errType {
		t.Errorf("expected X-Error-Type %s, got %s", errType, got)
	}
	return e
}

var testSeeds = SeedsInput{Server: "test-server-seed", Client: "test-client"}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[HealthCheckResponse](t, w)
	if resp.Status != HealthStatusHealthy {
		t.Errorf("expected healthy, got %s: %+v", resp.Status, resp.Checks)
	}
	for _, name := range []string{"wheel", "database", "scanner", "sessions"} {
		if _, ok := resp.Checks[name]; !ok {
			t.Errorf("missing %s check", name)
		}
	}
	if w.Header().Get("X-Engine-Version") != EngineVersion {
		t.Error("missing X-Engine-Version header")
	}

	if w := env.do(t, http.MethodGet, "/health/live", nil); w.Code != http.StatusOK {
		t.Errorf("liveness: expected 200, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/health/ready", nil); w.Code != http.StatusOK {
		t.Errorf("readiness: expected 200, got %d", w.Code)
	}
	if got := decode[VersionInfo](t, env.do(t, http.MethodGet, "/version", nil)); got.EngineVersion != EngineVersion {
		t.Errorf("unexpected version %+v", got)
	}
}

type failingDB struct{ store.DB }

func (failingDB) Ping(context.Context) error { return errors.New("disk gone") }

func TestReadinessFailsWithoutDatabase(t *testing.T) {
	server := NewServer(Options{DB: failingDB{}})
	w := httptest.NewRecorder()
	server.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestTiersAndLegend(t *testing.T) {
	env := newTestEnv(t)

	tiers := decode[TiersResponse](t, env.do(t, http.MethodGet, "/api/v1/tiers", nil))
	if len(tiers.Tiers) != 2 || tiers.DefaultCount != wheel.DefaultSegmentCount || tiers.DefaultTier != wheel.TierMedium {
		t.Errorf("unexpected tiers response %+v", tiers)
	}

	legend := decode[LegendResponse](t, env.do(t, http.MethodGet, "/api/v1/legend", nil))
	if len(legend.Legend) != 5 {
		t.Errorf("expected 5 legend entries, got %d", len(legend.Legend))
	}
}

func TestGenerateEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/wheel/generate", GenerateRequest{SegmentCount: 20, Tier: "easy"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[GenerateResponse](t, w)
	if resp.Wheel.Len() != 20 || len(resp.Component) != 20 {
		t.Errorf("expected 20 segments, got %d/%d", resp.Wheel.Len(), len(resp.Component))
	}
	if err := resp.Wheel.Validate(); err != nil {
		t.Errorf("generated wheel invalid: %v", err)
	}

	seeded := GenerateRequest{SegmentCount: 30, Tier: "medium", Seeds: &testSeeds, Nonce: 7}
	resp = decode[GenerateResponse](t, env.do(t, http.MethodPost, "/api/v1/wheel/generate", seeded))
	want, err := wheel.Replay(testSeeds.engine(), 7, 30, wheel.TierMedium)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	for i := range want.Wheel.Segments {
		if resp.Wheel.Segments[i] != want.Wheel.Segments[i] {
			t.Fatalf("segment %d differs from replay", i)
		}
	}
	if resp.Seeds == nil || resp.Seeds.ServerSeedHash != engine.HashServerSeed(testSeeds.Server) {
		t.Errorf("expected hashed seed echo, got %+v", resp.Seeds)
	}
	if strings.Contains(env.do(t, http.MethodPost, "/api/v1/wheel/generate", seeded).Body.String(), testSeeds.Server) {
		t.Error("response leaked the raw server seed")
	}
}

func TestGenerateValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		body    any
		errType string
	}{
		{"missing count", GenerateRequest{Tier: "easy"}, ErrTypeValidation},
		{"negative count", GenerateRequest{SegmentCount: -2, Tier: "easy"}, ErrTypeValidation},
		{"missing tier", GenerateRequest{SegmentCount: 10}, ErrTypeValidation},
		{"unknown tier", GenerateRequest{SegmentCount: 10, Tier: "hard"}, ErrTypeInvalidParams},
		{"too many segments", GenerateRequest{SegmentCount: 101, Tier: "easy"}, ErrTypeInvalidParams},
		{"seeds without client", GenerateRequest{SegmentCount: 10, Tier: "easy", Seeds: &SeedsInput{Server: "s"}}, ErrTypeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/wheel/generate", tt.body)
			expectError(t, w, http.StatusBadRequest, tt.errType)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/wheel/generate", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	expectError(t, w, http.StatusBadRequest, ErrTypeValidation)
}

func TestValidationMessageNamesJSONField(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/wheel/verify", VerifyRequest{SegmentCount: 10, Tier: "easy", Seeds: SeedsInput{Server: "s"}})
	e := expectError(t, w, http.StatusBadRequest, ErrTypeValidation)
	if e.Context["field"] != "seeds.client" {
		t.Errorf("expected field seeds.client, got %v", e.Context["field"])
	}
	if !strings.Contains(e.Message, "field seeds.client is required") {
		t.Errorf("unexpected message %q", e.Message)
	}
}

func TestVerifyEndpoint(t *testing.T) {
	env := newTestEnv(t)

	want, err := wheel.Replay(testSeeds.engine(), 3, 10, wheel.TierEasy)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	index := want.Index
	w := env.do(t, http.MethodPost, "/api/v1/wheel/verify", VerifyRequest{
		Seeds: testSeeds, Nonce: 3, SegmentCount: 10, Tier: "easy", Index: &index,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[VerifyResponse](t, w)
	if !resp.Valid {
		t.Error("expected a valid wheel")
	}
	if resp.Outcome.Index != want.Index || resp.Outcome.Segment != want.Segment {
		t.Errorf("outcome %+v does not match replay %+v", resp.Outcome.Segment, want.Segment)
	}
	if resp.IndexMatches == nil || !*resp.IndexMatches {
		t.Error("expected claimed index to match")
	}

	wrong := (want.Index + 1) % 10
	resp = decode[VerifyResponse](t, env.do(t, http.MethodPost, "/api/v1/wheel/verify", VerifyRequest{
		Seeds: testSeeds, Nonce: 3, SegmentCount: 10, Tier: "easy", Index: &wrong,
	}))
	if resp.IndexMatches == nil || *resp.IndexMatches {
		t.Error("expected claimed index mismatch")
	}
}

func TestSeedHashEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := decode[SeedHashResponse](t, env.do(t, http.MethodPost, "/api/v1/seed/hash", SeedHashRequest{ServerSeed: "abc"}))
	if resp.Hash != engine.HashServerSeed("abc") {
		t.Errorf("unexpected hash %s", resp.Hash)
	}

	expectError(t, env.do(t, http.MethodPost, "/api/v1/seed/hash", SeedHashRequest{}), http.StatusBadRequest, ErrTypeValidation)
}

func TestScanEndpointStoresRun(t *testing.T) {
	env := newTestEnv(t)

	var want int
	for nonce := uint64(0); nonce < 200; nonce++ {
		m, err := wheel.EvaluateMetric(testSeeds.engine(), nonce, 10, wheel.TierMedium)
		if err != nil {
			t.Fatalf("EvaluateMetric failed: %v", err)
		}
		if m >= 2 {
			want++
		}
	}

	w := env.do(t, http.MethodPost, "/api/v1/scan", ScanRequest{
		Seeds: testSeeds, SegmentCount: 10, Tier: "medium",
		NonceStart: 0, NonceEnd: 199, TargetOp: "ge", TargetVal: 2,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[ScanResponse](t, w)
	if resp.Summary.TotalEvaluated != 200 {
		t.Errorf("expected 200 evaluated, got %d", resp.Summary.TotalEvaluated)
	}
	if len(resp.Hits) != want {
		t.Errorf("expected %d hits, got %d", want, len(resp.Hits))
	}
	if resp.Echo.Limit != 1000 || resp.Echo.TimeoutMs != 30000 {
		t.Errorf("expected default limit and timeout in echo, got %+v", resp.Echo)
	}
	if resp.RunID == "" {
		t.Fatal("expected the run to be stored")
	}

	run := decode[store.Run](t, env.do(t, http.MethodGet, "/api/v1/runs/"+resp.RunID, nil))
	if run.HitCount != want || run.Tier != "medium" || run.ServerSeedHash != engine.HashServerSeed(testSeeds.Server) {
		t.Errorf("unexpected stored run %+v", run)
	}
	if strings.Contains(run.ParamsJSON, testSeeds.Server) {
		t.Errorf("stored params leaked the raw server seed: %s", run.ParamsJSON)
	}
	if !strings.Contains(run.ParamsJSON, engine.HashServerSeed(testSeeds.Server)) {
		t.Errorf("stored params missing the server seed hash: %s", run.ParamsJSON)
	}

	hits := decode[store.HitsPage](t, env.do(t, http.MethodGet, "/api/v1/runs/"+resp.RunID+"/hits?per_page=500", nil))
	if hits.TotalCount != want {
		t.Errorf("expected %d stored hits, got %d", want, hits.TotalCount)
	}

	export := env.do(t, http.MethodGet, "/api/v1/runs/"+resp.RunID+"/export.csv", nil)
	if export.Code != http.StatusOK || !strings.HasPrefix(export.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("unexpected export response %d %s", export.Code, export.Header().Get("Content-Type"))
	}
	lines := strings.Split(strings.TrimSpace(export.Body.String()), "\n")
	if len(lines) != want+1 || lines[0] != "nonce,delta_nonce,metric,segment_index,color" {
		t.Errorf("expected header plus %d rows, got %d lines", want, len(lines))
	}

	runs := decode[store.RunsList](t, env.do(t, http.MethodGet, "/api/v1/runs?tier=medium", nil))
	if runs.TotalCount != 1 {
		t.Errorf("expected 1 run, got %d", runs.TotalCount)
	}
	runs = decode[store.RunsList](t, env.do(t, http.MethodGet, "/api/v1/runs?tier=easy", nil))
	if runs.TotalCount != 0 {
		t.Errorf("expected no easy runs, got %d", runs.TotalCount)
	}

	expectError(t, env.do(t, http.MethodGet, "/api/v1/runs/missing", nil), http.StatusNotFound, ErrTypeRunNotFound)
}

func TestScanEndpointTimeoutStoresRun(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/scan", ScanRequest{
		Seeds: testSeeds, SegmentCount: 60, Tier: "medium",
		NonceStart: 0, NonceEnd: 400_000, TargetOp: "ge", TargetVal: 1000,
		TimeoutMs: 1,
	})
	e := expectError(t, w, http.StatusRequestTimeout, ErrTypeTimeout)
	runID, _ := e.Context["run_id"].(string)
	if runID == "" {
		t.Fatalf("expected run_id in error context, got %v", e.Context)
	}
	if _, ok := e.Context["total_evaluated"]; !ok {
		t.Errorf("expected partial counts in error context, got %v", e.Context)
	}

	got := env.do(t, http.MethodGet, "/api/v1/runs/"+runID, nil)
	if got.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", got.Code, got.Body.String())
	}
	run := decode[store.Run](t, got)
	if !run.TimedOut {
		t.Errorf("expected timed_out run, got %+v", run)
	}
	if run.TotalEvaluated >= 400_001 {
		t.Errorf("expected a partial scan, evaluated %d", run.TotalEvaluated)
	}
	if strings.Contains(run.ParamsJSON, testSeeds.Server) {
		t.Errorf("stored params leaked the raw server seed: %s", run.ParamsJSON)
	}
}

func TestScanEndpointValidation(t *testing.T) {
	env := newTestEnv(t)

	base := ScanRequest{Seeds: testSeeds, SegmentCount: 10, Tier: "easy", NonceEnd: 10, TargetOp: "eq", TargetVal: 2}

	badOp := base
	badOp.TargetOp = "approx"
	expectError(t, env.do(t, http.MethodPost, "/api/v1/scan", badOp), http.StatusBadRequest, ErrTypeValidation)

	backwards := base
	backwards.NonceStart = 20
	expectError(t, env.do(t, http.MethodPost, "/api/v1/scan", backwards), http.StatusBadRequest, ErrTypeValidation)

	tooWide := base
	tooWide.NonceEnd = 10_000_000
	expectError(t, env.do(t, http.MethodPost, "/api/v1/scan", tooWide), http.StatusBadRequest, ErrTypeInvalidNonce)

	badRange := base
	badRange.TargetOp = "between"
	badRange.TargetVal = 3
	badRange.TargetVal2 = 1
	expectError(t, env.do(t, http.MethodPost, "/api/v1/scan", badRange), http.StatusBadRequest, ErrTypeInvalidParams)
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/sessions", CreateSessionRequest{SegmentCount: 10, Tier: "easy"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	created := decode[SessionResponse](t, w)
	id := created.Session.ID
	if created.Session.SegmentCount != 10 || created.Session.Tier != wheel.TierEasy || len(created.Component) != 10 {
		t.Errorf("unexpected session %+v", created.Session)
	}
	base := "/api/v1/sessions/" + id

	got := decode[SessionResponse](t, env.do(t, http.MethodPut, base+"/segments", SetSegmentsRequest{SegmentCount: 20}))
	if got.Session.Wheel.Len() != 20 {
		t.Errorf("expected 20 segments after update, got %d", got.Session.Wheel.Len())
	}
	got = decode[SessionResponse](t, env.do(t, http.MethodPut, base+"/tier", SetTierRequest{Tier: "medium"}))
	if got.Session.Tier != wheel.TierMedium || got.Session.Wheel.Tier != wheel.TierMedium {
		t.Errorf("expected medium tier, got %s", got.Session.Tier)
	}
	expectError(t, env.do(t, http.MethodPut, base+"/tier", SetTierRequest{Tier: "hard"}), http.StatusBadRequest, ErrTypeInvalidParams)
	expectError(t, env.do(t, http.MethodPut, base+"/segments", SetSegmentsRequest{SegmentCount: 500}), http.StatusBadRequest, ErrTypeInvalidParams)

	w = env.do(t, http.MethodPost, base+"/spin", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	spin := decode[SpinResponse](t, w)
	if spin.Spin.Target < 0 || spin.Spin.Target >= 20 {
		t.Errorf("target %d outside wheel", spin.Spin.Target)
	}

	e := expectError(t, env.do(t, http.MethodPost, base+"/spin", nil), http.StatusConflict, ErrTypeSpinInProgress)
	if e.Context["spin_id"] != spin.Spin.ID {
		t.Errorf("expected running spin id in context, got %v", e.Context["spin_id"])
	}

	expectError(t, env.do(t, http.MethodPost, base+"/spin/complete", CompleteSpinRequest{SpinID: "7d4c2f0e-8c1b-4d5e-9f3a-2b6c8d0e1f24"}), http.StatusConflict, ErrTypeSpinMismatch)

	w = env.do(t, http.MethodPost, base+"/spin/complete", CompleteSpinRequest{SpinID: spin.Spin.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	done := decode[CompleteSpinResponse](t, w)
	if done.Outcome.Index != spin.Spin.Target {
		t.Errorf("expected index %d, got %d", spin.Spin.Target, done.Outcome.Index)
	}

	expectError(t, env.do(t, http.MethodPost, base+"/spin/complete", nil), http.StatusConflict, ErrTypeNoSpinInProgress)

	state := decode[SessionResponse](t, env.do(t, http.MethodGet, base, nil))
	if state.Session.SpinCount != 1 || state.Session.Spinning {
		t.Errorf("unexpected state after spin %+v", state.Session)
	}

	if w := env.do(t, http.MethodDelete, base, nil); w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
	expectError(t, env.do(t, http.MethodGet, base, nil), http.StatusNotFound, ErrTypeSessionNotFound)
	expectError(t, env.do(t, http.MethodDelete, base, nil), http.StatusNotFound, ErrTypeSessionNotFound)
}

func TestProvablyFairSession(t *testing.T) {
	env := newTestEnv(t)

	created := decode[SessionResponse](t, env.do(t, http.MethodPost, "/api/v1/sessions", CreateSessionRequest{
		SegmentCount: 10, Tier: "medium", Seeds: &testSeeds, Nonce: 5,
	}))
	if !created.Session.ProvablyFair || created.Session.ClientSeed != testSeeds.Client {
		t.Fatalf("expected provably-fair session, got %+v", created.Session)
	}
	base := "/api/v1/sessions/" + created.Session.ID

	spin := decode[SpinResponse](t, env.do(t, http.MethodPost, base+"/spin", nil))
	want, err := wheel.Replay(testSeeds.engine(), 5, 10, wheel.TierMedium)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if spin.Spin.Target != want.Index {
		t.Errorf("expected target %d, got %d", want.Index, spin.Spin.Target)
	}

	done := decode[CompleteSpinResponse](t, env.do(t, http.MethodPost, base+"/spin/complete", nil))
	if done.Outcome.Segment != want.Segment {
		t.Errorf("expected segment %+v, got %+v", want.Segment, done.Outcome.Segment)
	}
}

func TestSessionEventsWebsocket(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	created := decode[SessionResponse](t, env.do(t, http.MethodPost, "/api/v1/sessions", CreateSessionRequest{SegmentCount: 10}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sessions/" + created.Session.ID + "/events"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	read := func() map[string]any {
		t.Helper()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode message: %v", err)
		}
		return msg
	}

	if hello := read(); hello["type"] != "session.state" || hello["session_id"] != created.Session.ID {
		t.Fatalf("unexpected hello %v", hello)
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"spin"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := read(); msg["type"] != string(session.EventSpinStarted) {
		t.Fatalf("expected spin.started, got %v", msg)
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"spin.complete"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := read(); msg["type"] != string(session.EventSpinCompleted) {
		t.Fatalf("expected spin.completed, got %v", msg)
	}

	w := env.do(t, http.MethodGet, "/api/v1/sessions/unknown/events", nil)
	expectError(t, w, http.StatusNotFound, ErrTypeSessionNotFound)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	easy := metrics.GeneratedTotal.WithLabelValues("easy")
	before := testutil.ToFloat64(easy)
	if w := env.do(t, http.MethodPost, "/api/v1/wheel/generate", GenerateRequest{SegmentCount: 10, Tier: "easy"}); w.Code != http.StatusOK {
		t.Fatalf("generate: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := testutil.ToFloat64(easy) - before; got != 1 {
		t.Errorf("expected one easy wheel counted, got %v", got)
	}

	w := env.do(t, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `wheel_generated_total{tier="easy"}`) {
		t.Error("expected the easy tier series in metrics output")
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/tiers", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for preflight, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("unexpected allow origin %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tiers", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no allow origin for unknown origin, got %q", got)
	}
}

func TestRecoveryHandler(t *testing.T) {
	eh := NewErrorHandler(zap.NewNop())
	h := eh.RecoveryHandler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	expectError(t, w, http.StatusInternalServerError, ErrTypeInternal)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		errType string
	}{
		{session.ErrSessionNotFound, http.StatusNotFound, ErrTypeSessionNotFound},
		{session.ErrSpinInProgress, http.StatusConflict, ErrTypeSpinInProgress},
		{wheel.ErrInvalidTier, http.StatusBadRequest, ErrTypeInvalidParams},
		{scan.ErrTimeout, http.StatusRequestTimeout, ErrTypeTimeout},
		{scan.ErrInvalidSeeds, http.StatusBadRequest, ErrTypeInvalidSeed},
		{store.ErrNotFound, http.StatusNotFound, ErrTypeRunNotFound},
		{session.ErrTooManySessions, http.StatusServiceUnavailable, ErrTypeServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError, ErrTypeInternal},
	}
	for _, tt := range tests {
		status, errType := classify(tt.err)
		if status != tt.status || errType != tt.errType {
			t.Errorf("classify(%v) = %d %s, want %d %s", tt.err, status, errType, tt.status, tt.errType)
		}
	}
}
