// Package metrics provides Prometheus metrics for file admission and uploads.
// Labels never carry session or file IDs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FilesAdmittedTotal counts classified files by resulting status.
	FilesAdmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filedrop_files_admitted_total",
		Help: "Total number of files classified on add, by status (valid/invalid).",
	}, []string{"status"})

	// FilesRejectedTotal counts INVALID files by the first rule they failed.
	FilesRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filedrop_files_rejected_total",
		Help: "Total number of files classified invalid, by reason (content_type/size).",
	}, []string{"reason"})

	// FilesDeletedTotal counts files removed from a session.
	FilesDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filedrop_files_deleted_total",
		Help: "Total number of files deleted from drop sessions.",
	})

	// FilesUploadedTotal counts files marked uploaded.
	FilesUploadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filedrop_files_uploaded_total",
		Help: "Total number of files accepted by an upload receiver.",
	})

	// UploadsTotal counts finished upload requests by result.
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filedrop_uploads_total",
		Help: "Total number of upload requests, by result (complete/error/aborted).",
	}, []string{"result"})

	// UploadBytesTotal counts the request size of completed uploads.
	UploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filedrop_upload_bytes_total",
		Help: "Total bytes of valid files sent by completed upload requests.",
	})

	// UploadDuration observes upload request latency.
	UploadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "filedrop_upload_duration_seconds",
		Help:    "Duration of upload requests, by result.",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	// ActiveSessions tracks open drop sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "filedrop_active_sessions",
		Help: "Current number of open drop sessions.",
	})

	// ProfileReloadsTotal counts admission profile reloads by result.
	ProfileReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filedrop_profile_reloads_total",
		Help: "Total number of admission profile reloads, by result (ok/error).",
	}, []string{"result"})
)

// RecordAdmitted increments the admission counter for one classified file.
// reason is empty for valid files.
func RecordAdmitted(valid bool, reason string) {
	if valid {
		FilesAdmittedTotal.WithLabelValues("valid").Inc()
		return
	}
	FilesAdmittedTotal.WithLabelValues("invalid").Inc()
	if reason != "" {
		FilesRejectedTotal.WithLabelValues(reason).Inc()
	}
}

// RecordDeleted adds n deleted files.
func RecordDeleted(n int) {
	FilesDeletedTotal.Add(float64(n))
}

// RecordUploaded adds n uploaded files.
func RecordUploaded(n int) {
	FilesUploadedTotal.Add(float64(n))
}

// RecordUpload records one finished upload request.
// result: "complete", "error" or "aborted"
func RecordUpload(result string, bytes int64, seconds float64) {
	UploadsTotal.WithLabelValues(result).Inc()
	UploadDuration.WithLabelValues(result).Observe(seconds)
	if result == "complete" && bytes > 0 {
		UploadBytesTotal.Add(float64(bytes))
	}
}

// SetActiveSessions sets the open session gauge.
func SetActiveSessions(count int) {
	ActiveSessions.Set(float64(count))
}

// RecordProfileReload increments the profile reload counter.
func RecordProfileReload(ok bool) {
	if ok {
		ProfileReloadsTotal.WithLabelValues("ok").Inc()
		return
	}
	ProfileReloadsTotal.WithLabelValues("error").Inc()
}
