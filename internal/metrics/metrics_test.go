package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/sessions/{id}", "418"))

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/"+id, nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/sessions/{id}", "418"))
	assert.Equal(t, 3.0, after-before)
}

func TestDomainCounters(t *testing.T) {
	before := testutil.ToFloat64(turnsTotal.WithLabelValues("rejected"))
	ObserveTurn("rejected")
	assert.Equal(t, 1.0, testutil.ToFloat64(turnsTotal.WithLabelValues("rejected"))-before)

	rejections := testutil.ToFloat64(guardRejectionsTotal)
	IncrementGuardRejections()
	assert.Equal(t, 1.0, testutil.ToFloat64(guardRejectionsTotal)-rejections)

	SetActiveSessions(4)
	assert.Equal(t, 4.0, testutil.ToFloat64(activeSessions))

	ObserveStage("execute_sql", errors.New("boom"), 20*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(stageDurationSeconds, "sqlchat_stage_duration_seconds"))
}

func TestHandlerExposesMetrics(t *testing.T) {
	ObserveTurn("answered")

	server := httptest.NewServer(Handler())
	defer server.Close()

	res, err := http.Get(server.URL)
	require.NoError(t, err)
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "sqlchat_turns_total")
}
