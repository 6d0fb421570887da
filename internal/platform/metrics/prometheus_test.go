package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/service"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

var _ service.Metrics = (*MetricsManager)(nil)

func TestMetricsManager_StoreMetrics(t *testing.T) {
	m := NewMetricsManager("saved_test")

	m.MutationAccepted(service.ActionSave)
	m.MutationAccepted(service.ActionSave)
	m.MutationAccepted(service.ActionUnsave)
	m.RemoteWrite(10*time.Millisecond, nil)
	m.RemoteWrite(10*time.Millisecond, service.ErrRemoteRejected)
	m.RemoteWrite(10*time.Millisecond, errors.New("other"))
	m.Reconciled(true)
	m.SavedCount(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MutationsTotal.WithLabelValues(service.ActionSave)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MutationsTotal.WithLabelValues(service.ActionUnsave)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemoteWritesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemoteWritesTotal.WithLabelValues("remote_rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemoteWritesTotal.WithLabelValues("unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconcilesTotal.WithLabelValues("remote")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.SavedItems))
}

func TestMetricsManager_ObserveHTTP(t *testing.T) {
	m := NewMetricsManager("saved_test")
	m.ObserveHTTP("/api/saved", "GET", 200, time.Millisecond)
	m.ObserveHTTP("/api/saved", "GET", 200, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/api/saved", "GET", "200")))
}
