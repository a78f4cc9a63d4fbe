package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveRunCountsByStatus(t *testing.T) {
	m := New()
	m.ObserveRun("zeo", "gemini-2.0-flash", time.Second, nil)
	m.ObserveRun("zeo", "gemini-2.0-flash", time.Second, errors.New("boom"))

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("zeo", "gemini-2.0-flash", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("zeo", "gemini-2.0-flash", "error")))
	require.Equal(t, Snapshot{Runs: 2, Failed: 1}, m.Snapshot())
}

func TestInFlightGauge(t *testing.T) {
	m := New()
	done := m.TrackInFlight()
	require.Equal(t, 1.0, testutil.ToFloat64(m.inFlight))
	done()
	require.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRun("zeo", "m", time.Second, nil)
	m.ObserveTool("t", nil)
	m.ObserveCommand("ping", nil)
	m.ObserveCooldown("zeo")
	m.TrackInFlight()()
	require.Equal(t, Snapshot{}, m.Snapshot())
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveTool("wikipedia_search", nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	require.True(t, strings.Contains(string(body), `lattice_discord_tool_calls_total{status="ok",tool="wikipedia_search"} 1`))
}
