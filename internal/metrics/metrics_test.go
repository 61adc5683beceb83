package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New("test", prometheus.NewRegistry())

	m.IngestRun("ok")
	m.IngestRun("ok")
	m.Published("telegram", nil)
	m.Published("telegram", errors.New("boom"))
	m.DeadLetter("FEED")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.IngestRuns.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("telegram", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeadLetters.WithLabelValues("FEED")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IngestRun("ok")
		m.RecordUpserted()
		m.ChangeHandled("skipped")
		m.Published("topic", nil)
		m.Subscription("ok")
		m.DeadLetter("INGEST")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New("", nil)
	m.RecordUpserted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "cryptowatch_ingest_records_upserted_total 1"))
}
