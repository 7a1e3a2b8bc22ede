package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveCycle("completed", 2*time.Second)
	c.ObserveCycle("completed", time.Second)
	c.ObserveCycle("aborted", time.Second)
	c.IncConnectorCall("hubspot", "list", "ok")
	c.AddContactChanges("hubspot", "remote_created", 3)
	c.AddContactChanges("hubspot", "remote_created", 0)
	c.IncLeaseContention()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.cycles.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cycles.WithLabelValues("aborted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.connectorCalls.WithLabelValues("hubspot", "list", "ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.contactChanges.WithLabelValues("hubspot", "remote_created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.leaseContention))
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.IncConnectorCall("pipedrive", "create", "rejected")

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `crmsync_connector_calls_total{op="create",result="rejected",system="pipedrive"} 1`))
}
