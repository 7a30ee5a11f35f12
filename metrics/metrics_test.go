package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsAreRegistered(t *testing.T) {
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	// gauges and plain counters are always exported
	for _, want := range []string{"gotsrl_equity", "gotsrl_q_updates_total", "gotsrl_qtable_states", "gotsrl_trades_open"} {
		assert.True(t, names[want], "missing %s", want)
	}
}

func TestCounterIncrements(t *testing.T) {
	before := testutil.ToFloat64(StoreErrors.WithLabelValues("save"))
	StoreErrors.WithLabelValues("save").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(StoreErrors.WithLabelValues("save")))
}
