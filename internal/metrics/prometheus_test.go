package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordClientRequest(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordClientRequest("GET", "sites", "ok", 20*time.Millisecond)
	r.RecordClientRequest("GET", "sites", "ok", 30*time.Millisecond)
	r.RecordClientRequest("POST", "sites", "validation", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.ClientRequests.WithLabelValues("GET", "sites", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ClientRequests.WithLabelValues("POST", "sites", "validation")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.ClientLatency))
}

func TestRecordAPIRequest(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.RecordAPIRequest("DELETE", "/sites", 204, 0.01)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.APIRequests.WithLabelValues("DELETE", "/sites", "204")))
}

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.RecordClientRequest("GET", "rules", "ok", time.Second)
		r.RecordSessionTransition("authenticated")
		r.RecordAPIRequest("GET", "/rules", 200, 0.1)
	})
}

func TestGet_Singleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}
