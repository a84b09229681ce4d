package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)

	m.Observe("teamcart-expiry", 250*time.Millisecond, nil)
	m.Observe("teamcart-expiry", time.Second, errors.New("redis down"))
	m.Observe("", time.Millisecond, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("teamcart-expiry", outcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("teamcart-expiry", outcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("unknown", outcomeSuccess)))
	assert.Greater(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues("teamcart-expiry")), 0.0)

	count, err := testutil.GatherAndCount(reg, "teamcart_cron_job_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCronJobMetricsWithoutRegistererIsNoop(t *testing.T) {
	NewCronJobMetrics(nil).Observe("job", time.Second, nil)
	var m *CronJobMetrics
	m.Observe("job", time.Second, errors.New("boom"))
}
