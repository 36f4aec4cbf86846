package metrics

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterAndGauge(t *testing.T) {
	r := New()
	c := r.Counter("docs_total", "Documents seen.")
	c.Inc()
	c.Add(2)
	assert.Equal(t, int64(3), c.Value())
	assert.Same(t, c, r.Counter("docs_total", ""))

	g := r.Gauge("index_vectors", "")
	g.Set(42)
	assert.Equal(t, int64(42), g.Value())
}

func TestHistogramBuckets(t *testing.T) {
	r := New()
	h := r.Histogram("stage_seconds", "", []float64{1, 0.1})
	h.Observe(0.0625)
	h.Observe(0.5)
	h.Observe(7)

	out := r.Render()
	assert.Contains(t, out, `stage_seconds_bucket{le="0.1"} 1`)
	assert.Contains(t, out, `stage_seconds_bucket{le="1"} 2`)
	assert.Contains(t, out, `stage_seconds_bucket{le="+Inf"} 3`)
	assert.Contains(t, out, "stage_seconds_sum 7.5625")
	assert.Contains(t, out, "stage_seconds_count 3")
}

func TestWithLabels(t *testing.T) {
	assert.Equal(t, `x{a="1",b="two"}`, WithLabels("x", "a", "1", "b", "two"))
	assert.Equal(t, "x", WithLabels("x"))
	assert.Equal(t, "x", WithLabels("x", "odd"))
}

func TestRender_FamiliesAndLabels(t *testing.T) {
	r := New()
	r.Counter(WithLabels("skipped_total", "reason", "missing_file"), "Skipped documents.").Inc()
	r.Counter(WithLabels("skipped_total", "reason", "extract"), "").Add(2)
	r.Histogram(WithLabels("stage_seconds", "stage", "embed"), "Stage durations.", []float64{1}).Observe(0.5)

	out := r.Render()
	assert.Equal(t, 1, strings.Count(out, "# TYPE skipped_total counter"))
	assert.Contains(t, out, "# HELP skipped_total Skipped documents.")
	assert.Contains(t, out, `skipped_total{reason="extract"} 2`)
	assert.Contains(t, out, `skipped_total{reason="missing_file"} 1`)
	assert.Contains(t, out, `stage_seconds_bucket{le="1",stage="embed"} 1`)
	assert.Contains(t, out, `stage_seconds_count{stage="embed"} 1`)
	assert.Less(t, strings.Index(out, "skipped_total"), strings.Index(out, "stage_seconds"))
}

func TestWriteFile(t *testing.T) {
	r := New()
	r.Gauge("index_vectors", "Vectors in the index.").Set(7)

	path := filepath.Join(t.TempDir(), "textfile", "docsearch.prom")
	require.NoError(t, r.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, r.Render(), string(data))
	assert.Contains(t, string(data), "index_vectors 7")
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("hits_total", "").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "hits_total 1")
}
