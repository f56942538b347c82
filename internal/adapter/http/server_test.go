package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/crisis-sim/internal/adapter/fixture"
	httpadapter "github.com/couchcryptid/crisis-sim/internal/adapter/http"
	openaiadapter "github.com/couchcryptid/crisis-sim/internal/adapter/openai"
	"github.com/couchcryptid/crisis-sim/internal/assistant"
	"github.com/couchcryptid/crisis-sim/internal/domain"
	"github.com/couchcryptid/crisis-sim/internal/observability"
	"github.com/couchcryptid/crisis-sim/internal/resolver"
	"github.com/couchcryptid/crisis-sim/internal/state"
	"github.com/couchcryptid/crisis-sim/internal/synthesis"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, domain.GenerationRequest) (string, error) {
	return "", domain.ErrGenerationUnavailable
}

type testEnv struct {
	srv   *httpadapter.Server
	store *state.Store
}

func newTestEnv(t *testing.T, gen domain.Generator, opts httpadapter.Options) testEnv {
	t.Helper()
	return newVoiceTestEnv(t, gen, nil, opts)
}

func newVoiceTestEnv(t *testing.T, gen domain.Generator, tr domain.Transcriber, opts httpadapter.Options) testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	store := state.New(clock)
	orch := synthesis.New(gen, store, nil, nil, logger, metrics, synthesis.Options{BatchSize: 10, Backoff: time.Millisecond})
	res := resolver.New(store, nil, nil, nil, resolver.Options{}, logger, metrics)
	asst := assistant.New(gen, store, time.Second, logger, metrics)

	srv := httpadapter.NewServer(":0", httpadapter.Deps{
		Synthesizer: orch,
		State:       store,
		Resolver:    res,
		Assistant:   asst,
		Transcriber: tr,
	}, opts, logger)
	return testEnv{srv: srv, store: store}
}

func (e testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthzReturns200(t *testing.T) {
	env := newTestEnv(t, fixture.NewGenerator("", nil), httpadapter.Options{})
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t, fixture.NewGenerator("", nil), httpadapter.Options{})
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/readyz", nil).Code)

	down := newTestEnv(t, failingGenerator{}, httpadapter.Options{})
	rec := down.do(t, http.MethodPost, "/api/scenario", map[string]string{"prompt": "flash flood"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusServiceUnavailable, down.do(t, http.MethodGet, "/readyz", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, fixture.NewGenerator("", nil), httpadapter.Options{})
	rec := env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSynthesize(t *testing.T) {
	env := newTestEnv(t, fixture.NewGenerator("", nil), httpadapter.Options{})

	rec := env.do(t, http.MethodPost, "/api/scenario", map[string]string{"prompt": "Sandstorm over Doha"})
	require.Equal(t, http.StatusOK, rec.Code)

	report := decode[synthesis.Report](t, rec)
	assert.Equal(t, 3, report.Applied())
	assert.Equal(t, "Sandstorm over Doha", report.Prompt)
	assert.Equal(t, 10, report.Alerts.Records)

	alerts := decode[[]domain.Alert](t, env.do(t, http.MethodGet, "/api/alerts", nil))
	assert.Len(t, alerts, 10)
	updates := decode[[]domain.SocialUpdate](t, env.do(t, http.MethodGet, "/api/updates", nil))
	assert.Len(t, updates, 10)
	facilities := decode[[]domain.Facility](t, env.do(t, http.MethodGet, "/api/facilities", nil))
	resources := decode[[]domain.ResourceStatus](t, env.do(t, http.MethodGet, "/api/resources", nil))
	assert.Len(t, resources, len(facilities))
}

func TestSynthesize_EmptyPrompt(t *testing.T) {
	env := newTestEnv(t, fixture.NewGenerator("", nil), httpadapter.Options{})

	for _, body := range []any{map[string]string{"prompt": "   "}, map[string]string{}, nil} {
		rec := env.do(t, http.MethodPost, "/api/scenario", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}

	alerts := decode[[]domain.Alert](t, env.do(t, http.MethodGet, "/api/alerts", nil))
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.AlertNone, alerts[0].Type)
}

func TestSynthesize_AllUnavailableKeepsState(t *testing.T) {
	env := newTestEnv(t, failingGenerator{}, httpadapter.Options{})
	before := env.store.Snapshot()

	rec := env.do(t, http.MethodPost, "/api/scenario", map[string]string{"prompt": "heat wave"})
	require.Equal(t, http.StatusOK, rec.Code)

	report := decode[synthesis.Report](t, rec)
	assert.Zero(t, report.Applied())
	assert.Equal(t, synthesis.FailureUnavailable, report.Alerts.Failure)
	assert.Equal(t, before, env.store.Snapshot())
}

func TestResetAndTick(t *testing.T) {
	env := newTestEnv(t, fixture.NewGenerator("", nil), httpadapter.Options{})
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/scenario", map[string]string{"prompt": "flood"}).Code)

	rec := env.do(t, http.MethodPost, "/api/scenario/tick", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[domain.TableSnapshot](t, rec)
	assert.Equal(t, domain.DatasetResources, snap.Dataset)
	assert.Equal(t, "decay", snap.Reason)

	rec = env.do(t, http.MethodPost, "/api/scenario/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[state.Snapshot](t, rec)
	require.Len(t, st.Alerts, 1)
	require.Len(t, st.Facilities, 1)
	assert.Equal(t, "Hamad General Hospital", st.Facilities[0].Name)
}

func TestState(t *testing.T) {
	env := newTestEnv(t, fixture.NewGenerator("", nil), httpadapter.Options{})
	st := decode[state.Snapshot](t, env.do(t, http.MethodGet, "/api/state", nil))
	assert.Len(t, st.Social, 1)
	assert.Len(t, st.Versions, len(domain.Datasets))
}

func TestNearest(t *testing.T) {
	env := newTestEnv(t, fixture.NewGenerator("", nil), httpadapter.Options{})

	rec := env.do(t, http.MethodGet, "/api/facilities/nearest?lat=25.29&lon=51.50&q=I+need+a+hospital", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	g := decode[resolver.Guidance](t, rec)
	assert.Equal(t, "Hamad General Hospital", g.Match.Facility.Name)
	assert.Equal(t, resolver.SourceRequest, g.Origin.Source)
	assert.Equal(t, resolver.ProviderStraightLine, g.Route.Provider)
	assert.True(t, g.Route.Degraded)
}

func TestNearest_DefaultOrigin(t *testing.T) {
	env := newTestEnv(t, fixture.NewGenerator("", nil), httpadapter.Options{})

	rec := env.do(t, http.MethodGet, "/api/facilities/nearest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	g := decode[resolver.Guidance](t, rec)
	assert.Equal(t, resolver.SourceDefault, g.Origin.Source)
	assert.Equal(t, resolver.DefaultOrigin, g.Origin.Coordinate)
}

func TestNearest_NoFacility(t *testing.T) {
	env := newTestEnv(t, fixture.NewGenerator("", nil), httpadapter.Options{})

	rec := env.do(t, http.MethodGet, "/api/facilities/nearest?lat=25.29&lon=51.50&category=Stadium", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNearest_BadInput(t *testing.T) {
	env := newTestEnv(t, fixture.NewGenerator("", nil), httpadapter.Options{})

	for _, target := range []string{
		"/api/facilities/nearest?lat=25.29",
		"/api/facilities/nearest?lat=abc&lon=51",
		"/api/facilities/nearest?lat=95&lon=51",
		"/api/facilities/nearest?category=Castle",
	} {
		rec := env.do(t, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestRoute(t *testing.T) {
	env := newTestEnv(t, fixture.NewGenerator("", nil), httpadapter.Options{})

	rec := env.do(t, http.MethodGet, "/api/route?from_lat=25.2854&from_lon=51.5310&to_lat=25.2921&to_lon=51.5028", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["degraded"])
	assert.Nil(t, body["duration_seconds"])
	assert.Len(t, body["path"], 2)

	rec = env.do(t, http.MethodGet, "/api/route?from_lat=25.2854&from_lon=51.5310", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLocate(t *testing.T) {
	env := newTestEnv(t, fixture.NewGenerator("", nil), httpadapter.Options{})

	origin := decode[resolver.Origin](t, env.do(t, http.MethodGet, "/api/locate", nil))
	assert.Equal(t, resolver.SourceDefault, origin.Source)
}

func TestAsk(t *testing.T) {
	env := newTestEnv(t, fixture.NewGenerator("", nil), httpadapter.Options{})

	rec := env.do(t, http.MethodPost, "/api/ask", map[string]string{"query": "Are systems operational?"})
	require.Equal(t, http.StatusOK, rec.Code)

	ans := decode[assistant.Answer](t, rec)
	assert.Equal(t, fixture.OfflineAnswer, ans.Answer)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "@QatarAlert", ans.Sources[0].Username)

	rec = env.do(t, http.MethodPost, "/api/ask", map[string]string{"query": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAsk_Unavailable(t *testing.T) {
	env := newTestEnv(t, failingGenerator{}, httpadapter.Options{})

	rec := env.do(t, http.MethodPost, "/api/ask", map[string]string{"query": "doha"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, fixture.NewGenerator("", nil), httpadapter.Options{RateLimit: 0.001, RateBurst: 1})

	first := env.do(t, http.MethodPost, "/api/ask", map[string]string{"query": "doha"})
	assert.Equal(t, http.StatusOK, first.Code)

	second := env.do(t, http.MethodPost, "/api/ask", map[string]string{"query": "doha"})
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// Read-only endpoints are not limited.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/state", nil).Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, fixture.NewGenerator("", nil), httpadapter.Options{})

	req := httptest.NewRequest(http.MethodOptions, "/api/scenario", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	r := gin.New()
	r.GET("/", httpadapter.RateLimitMiddleware(0, 0), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for range 5 {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
}

// whisperServer serves the audio transcriptions endpoint with a fixed status
// and body.
func whisperServer(t *testing.T, status int, body string) domain.Transcriber {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return openaiadapter.NewClient(openaiadapter.Config{
		APIKey:             "test-key",
		BaseURL:            srv.URL,
		Timeout:            time.Second,
		TranscriptionModel: "whisper-large-v3",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (e testEnv) upload(t *testing.T, field string, audio []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, "question.wav")
	require.NoError(t, err)
	_, err = fw.Write(audio)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/ask/voice", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func TestAskVoice(t *testing.T) {
	tr := whisperServer(t, http.StatusOK, `{"text":"Are systems operational?"}`)
	env := newVoiceTestEnv(t, fixture.NewGenerator("", nil), tr, httpadapter.Options{})

	rec := env.upload(t, "audio", []byte("RIFF-audio"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	ans := decode[assistant.Answer](t, rec)
	assert.Equal(t, "Are systems operational?", ans.Query)
	assert.Equal(t, fixture.OfflineAnswer, ans.Answer)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "@QatarAlert", ans.Sources[0].Username)
}

func TestAskVoice_BadRequests(t *testing.T) {
	tr := whisperServer(t, http.StatusOK, `{"text":"   "}`)
	env := newVoiceTestEnv(t, fixture.NewGenerator("", nil), tr, httpadapter.Options{})

	assert.Equal(t, http.StatusBadRequest, env.upload(t, "file", []byte("RIFF-audio")).Code, "wrong field name")

	rec := env.upload(t, "audio", []byte("RIFF-silence"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no speech recognized")
}

func TestAskVoice_TranscriptionUnavailable(t *testing.T) {
	tr := whisperServer(t, http.StatusInternalServerError, `{"error":{"message":"upstream failure","type":"server_error"}}`)
	env := newVoiceTestEnv(t, fixture.NewGenerator("", nil), tr, httpadapter.Options{})

	assert.Equal(t, http.StatusServiceUnavailable, env.upload(t, "audio", []byte("RIFF-audio")).Code)
}

func TestAskVoice_NotConfigured(t *testing.T) {
	env := newTestEnv(t, fixture.NewGenerator("", nil), httpadapter.Options{})

	assert.Equal(t, http.StatusNotImplemented, env.upload(t, "audio", []byte("RIFF-audio")).Code)
}

func TestAskVoice_SharesRateLimit(t *testing.T) {
	tr := whisperServer(t, http.StatusOK, `{"text":"doha"}`)
	env := newVoiceTestEnv(t, fixture.NewGenerator("", nil), tr, httpadapter.Options{RateLimit: 0.001, RateBurst: 1})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/ask", map[string]string{"query": "doha"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.upload(t, "audio", []byte("RIFF-audio")).Code)
}
