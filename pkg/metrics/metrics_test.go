package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsServedByExpositionHandler(t *testing.T) {
	CacheLookups.WithLabelValues("store").Inc()
	ProviderRequests.WithLabelValues("snapshot", "ok").Inc()
	StreamPublished.WithLabelValues("quote").Inc()
	StreamReconnects.Inc()
	StreamHandlerErrors.Inc()

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	for _, name := range []string{
		"marketpulse_cache_lookups_total",
		"marketpulse_provider_requests_total",
		"marketpulse_stream_published_total",
		"marketpulse_stream_reconnects_total",
		"marketpulse_stream_handler_errors_total",
	} {
		assert.Contains(t, string(body), name)
	}
}
