package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/tradesim/internal/book"
	"github.com/alanyoungcy/tradesim/internal/costmodel"
	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/alanyoungcy/tradesim/internal/metrics"
	"github.com/alanyoungcy/tradesim/internal/server/handler"
	"github.com/alanyoungcy/tradesim/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "secret"

type stubReplay struct {
	paused bool
	speed  float64
}

func (s *stubReplay) Pause()   { s.paused = true }
func (s *stubReplay) Resume()  { s.paused = false }
func (s *stubReplay) Restart() {}

func (s *stubReplay) SetSpeed(v float64) error {
	if v <= 0 {
		return errors.New("replay: speed must be positive")
	}
	s.speed = v
	return nil
}

func (s *stubReplay) Status() domain.FeedStatus {
	return domain.FeedStatus{Source: "replay", State: "playing", Replay: &domain.ReplayStatus{Paused: s.paused, Speed: s.speed}}
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	handler http.Handler
	book    *book.Book
	clock   *testClock
	replay  *stubReplay
}

func newEnv(t *testing.T, deps map[string]handler.Pinger) testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	threshold := 10 * time.Second
	clk := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	b := book.New(book.Config{Symbol: "BTC-USDT-SWAP", StaleThreshold: threshold, Now: clk.Now}, logger)
	mon := book.NewMonitor(b, threshold, clk.Now)
	rep := &stubReplay{speed: 1}
	m := metrics.New()
	est := service.NewEstimator(costmodel.New(costmodel.DefaultParams(), logger), b, mon, "BTC-USDT-SWAP")

	h := NewHandler(Config{APIKey: testKey, CORSOrigins: []string{"http://dash.local"}}, Handlers{
		Health:   handler.NewHealthHandler(mon, deps, logger),
		Status:   handler.NewStatusHandler("replay", "BTC-USDT-SWAP", rep, mon),
		Book:     handler.NewBookHandler(b, mon, 20),
		Estimate: handler.NewEstimateHandler(est, costmodel.Order{Volatility: 0.02}, logger),
		Replay:   handler.NewReplayHandler(rep),
		Metrics:  m.Handler(),
	}, nil, logger)
	return testEnv{handler: h, book: b, clock: clk, replay: rep}
}

func (e testEnv) do(t *testing.T, method, target, body string, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func seed(b *book.Book) {
	b.ApplyUpdates(
		[]domain.Delta{{Price: "50000", Quantity: "1.5"}, {Price: "50100", Quantity: "2"}},
		[]domain.Delta{{Price: "49900", Quantity: "2.5"}, {Price: "49800", Quantity: "1"}},
	)
}

func TestBook_DepthLimitsLevels(t *testing.T) {
	env := newEnv(t, nil)
	seed(env.book)

	rec, body := env.do(t, http.MethodGet, "/api/book?depth=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["asks"], 1)
	assert.Len(t, body["bids"], 1)
	assert.Equal(t, 49950.0, body["mid_price"])
	assert.EqualValues(t, 2, body["ask_levels"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec, _ = env.do(t, http.MethodGet, "/api/book?depth=-3", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBBO_NullsForEmptyBook(t *testing.T) {
	env := newEnv(t, nil)

	rec, body := env.do(t, http.MethodGet, "/api/book/bbo", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, body["best_ask"])
	assert.Nil(t, body["mid_price"])
	assert.Equal(t, true, body["stale"])
}

func TestBBO_ConsistentUnderConcurrentWriter(t *testing.T) {
	env := newEnv(t, nil)
	env.book.ApplyUpdates([]domain.Delta{{Price: "100", Quantity: "1"}}, []domain.Delta{{Price: "90", Quantity: "1"}})

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				env.book.ApplyUpdates(
					[]domain.Delta{{Price: "200", Quantity: "1"}, {Price: "100", Quantity: "0"}},
					[]domain.Delta{{Price: "190", Quantity: "1"}, {Price: "90", Quantity: "0"}},
				)
			} else {
				env.book.ApplyUpdates(
					[]domain.Delta{{Price: "100", Quantity: "1"}, {Price: "200", Quantity: "0"}},
					[]domain.Delta{{Price: "90", Quantity: "1"}, {Price: "190", Quantity: "0"}},
				)
			}
		}
	}()

	for i := 0; i < 2000; i++ {
		rec, body := env.do(t, http.MethodGet, "/api/book/bbo", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		ask, bid, mid := body["best_ask"].(float64), body["best_bid"].(float64), body["mid_price"].(float64)
		if !assert.Equal(t, 10.0, ask-bid, "ask=%v bid=%v mid=%v", ask, bid, mid) ||
			!assert.Equal(t, (ask+bid)/2, mid) {
			break
		}
	}
	close(stop)
	wg.Wait()
}

func TestStalenessComesFromMonitor(t *testing.T) {
	env := newEnv(t, nil)
	seed(env.book)
	env.clock.Advance(3 * time.Second)

	_, body := env.do(t, http.MethodGet, "/api/status", "", nil)
	assert.InDelta(t, 3.0, body["book_age"], 1e-9)
	assert.Equal(t, false, body["book_stale"])
	assert.Equal(t, 10.0, body["stale_threshold"])

	env.clock.Advance(8 * time.Second)

	_, body = env.do(t, http.MethodGet, "/api/status", "", nil)
	assert.InDelta(t, 11.0, body["book_age"], 1e-9)
	assert.Equal(t, true, body["book_stale"])

	_, body = env.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, "degraded", body["status"])

	_, body = env.do(t, http.MethodGet, "/api/book/bbo", "", nil)
	assert.Equal(t, true, body["stale"])

	_, body = env.do(t, http.MethodGet, "/api/estimate?size=100", "", nil)
	assert.Equal(t, true, body["book_stale"])
}

func TestEstimate(t *testing.T) {
	env := newEnv(t, nil)
	seed(env.book)

	rec, body := env.do(t, http.MethodPost, "/api/estimate", `{"size":100,"volatility":0.3}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.InDelta(t, 11.5, body["market_impact"], 1e-9)
	assert.InDelta(t, 11.6035, body["net_cost"], 1e-9)
	assert.Equal(t, true, body["has_mid"])

	rec, body = env.do(t, http.MethodGet, "/api/estimate?size=100", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 0.02, body["order"].(map[string]any)["volatility"], 1e-12, "default volatility applies")

	rec, _ = env.do(t, http.MethodPost, "/api/estimate", `{"size":0}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/estimate", `{"size":1,"colour":"red"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/estimate?size=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReplayControls_RequireKey(t *testing.T) {
	env := newEnv(t, nil)

	rec, _ := env.do(t, http.MethodPost, "/api/replay/pause", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.replay.paused)

	rec, body := env.do(t, http.MethodPost, "/api/replay/pause", "", map[string]string{"Authorization": "Bearer " + testKey})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.replay.paused)
	assert.Equal(t, true, body["replay"].(map[string]any)["paused"])

	rec, _ = env.do(t, http.MethodPut, "/api/replay/speed", `{"speed":-1}`, map[string]string{"X-API-Key": testKey})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPut, "/api/replay/speed", `{}`, map[string]string{"X-API-Key": testKey})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPut, "/api/replay/speed", `{"speed":4}`, map[string]string{"X-API-Key": testKey})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4.0, env.replay.speed)
}

func TestStatusAndMetrics(t *testing.T) {
	env := newEnv(t, nil)

	rec, body := env.do(t, http.MethodGet, "/api/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "replay", body["mode"])
	assert.Nil(t, body["book_age"])
	assert.Equal(t, "replay", body["feed"].(map[string]any)["source"])

	rec, _ = env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth_DegradedWhenDependencyFails(t *testing.T) {
	env := newEnv(t, map[string]handler.Pinger{
		"redis": handler.PingFunc(func(context.Context) error { return errors.New("connection refused") }),
	})
	seed(env.book)

	rec, body := env.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "connection refused", body["checks"].(map[string]any)["redis"])
	assert.Equal(t, false, body["book_stale"])
}

func TestCORS_Preflight(t *testing.T) {
	env := newEnv(t, nil)

	rec, _ := env.do(t, http.MethodOptions, "/api/estimate", "", map[string]string{
		"Origin":                        "http://dash.local",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://dash.local", rec.Header().Get("Access-Control-Allow-Origin"))

	rec, _ = env.do(t, http.MethodGet, "/api/book", "", map[string]string{"Origin": "http://evil.local"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
