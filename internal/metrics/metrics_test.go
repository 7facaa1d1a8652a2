package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/filedrop/backend/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAdmitted(t *testing.T) {
	validBefore := testutil.ToFloat64(metrics.FilesAdmittedTotal.WithLabelValues("valid"))
	invalidBefore := testutil.ToFloat64(metrics.FilesAdmittedTotal.WithLabelValues("invalid"))
	sizeBefore := testutil.ToFloat64(metrics.FilesRejectedTotal.WithLabelValues("size"))

	metrics.RecordAdmitted(true, "")
	metrics.RecordAdmitted(false, "size")

	assert.Equal(t, validBefore+1, testutil.ToFloat64(metrics.FilesAdmittedTotal.WithLabelValues("valid")))
	assert.Equal(t, invalidBefore+1, testutil.ToFloat64(metrics.FilesAdmittedTotal.WithLabelValues("invalid")))
	assert.Equal(t, sizeBefore+1, testutil.ToFloat64(metrics.FilesRejectedTotal.WithLabelValues("size")))
}

func TestRecordUpload(t *testing.T) {
	bytesBefore := testutil.ToFloat64(metrics.UploadBytesTotal)

	metrics.RecordUpload("complete", 512, 0.2)
	metrics.RecordUpload("error", 1024, 0.1)

	assert.Equal(t, bytesBefore+512, testutil.ToFloat64(metrics.UploadBytesTotal))
}

func TestSetActiveSessions(t *testing.T) {
	metrics.SetActiveSessions(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.ActiveSessions))
}

func TestPromhttpExposure(t *testing.T) {
	metrics.RecordDeleted(1)

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "filedrop_files_deleted_total"))
}
