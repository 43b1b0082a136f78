package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/v1/tickets", "GET", 200, 10*time.Millisecond)
	m.RecordRequest("/v1/tickets", "GET", 500, 5*time.Millisecond)
	m.RecordRequest("/v1/tickets", "POST", 201, time.Millisecond)
	m.RecordError("/v1/tickets", "GET", "SERVER_ERROR")

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.RequestTotal("/v1/tickets", "GET"))
	assert.Equal(t, int64(1), snap.RequestTotal("/v1/tickets", "POST"))
	assert.Equal(t, int64(1), snap.Errors["/v1/tickets|GET|SERVER_ERROR"])
	assert.Equal(t, 15*time.Millisecond, snap.Latency["/v1/tickets|GET"])

	m.RecordRequest("/v1/tickets", "GET", 200, 0)
	assert.Equal(t, int64(2), snap.RequestTotal("/v1/tickets", "GET"), "snapshot must not alias live counters")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/x", "GET", 200, 0)
	m.RecordError("/x", "GET", "X")
	assert.Empty(t, m.Snapshot().Requests)
}
