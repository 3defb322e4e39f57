package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.AuctionsStarted.Inc()
	m.BidsAccepted.WithLabelValues("user").Add(2)
	m.ActiveAuctions.Set(3)

	require.Equal(t, 1.0, testutil.ToFloat64(m.AuctionsStarted))
	require.Equal(t, 2.0, testutil.ToFloat64(m.BidsAccepted.WithLabelValues("user")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.ActiveAuctions))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestNewWithoutRegistry(t *testing.T) {
	m := New(nil)
	m.ForcedFinalizations.Inc()
	require.Equal(t, 1.0, testutil.ToFloat64(m.ForcedFinalizations))
}
