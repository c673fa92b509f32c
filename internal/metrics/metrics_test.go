package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordOperation(t *testing.T) {
	before := testutil.ToFloat64(LedgerOperationsTotal.WithLabelValues("fund", "success"))

	RecordOperation("fund", "success", time.Now())

	after := testutil.ToFloat64(LedgerOperationsTotal.WithLabelValues("fund", "success"))
	assert.Equal(t, before+1, after)
}

func TestRecordIdentityCheck(t *testing.T) {
	before := testutil.ToFloat64(IdentityChecksTotal.WithLabelValues("unavailable"))

	RecordIdentityCheck("unavailable")

	assert.Equal(t, before+1, testutil.ToFloat64(IdentityChecksTotal.WithLabelValues("unavailable")))
}

func TestRecordHTTPRequest(t *testing.T) {
	RecordHTTPRequest("GET", "/health", "200", 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/health", "200")))
}
