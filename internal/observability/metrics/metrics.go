package metrics

import "github.com/prometheus/client_golang/prometheus"

// SyncMetrics exposes counters/histograms for quota sync runs.
type SyncMetrics struct {
	syncsTotal    *prometheus.CounterVec
	syncDuration  *prometheus.HistogramVec
	caseUpserts   *prometheus.CounterVec
	patientIssues *prometheus.CounterVec
	jobsTotal     *prometheus.CounterVec
}

func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	m := &SyncMetrics{
		syncsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total sync runs by PMS and terminal status",
		}, []string{"pms_type", "status"}),
		syncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "physio",
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Wall time of a sync run",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"pms_type"}),
		caseUpserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "sync",
			Name:      "case_upserts_total",
			Help:      "Case upserts by result",
		}, []string{"result"}),
		patientIssues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "sync",
			Name:      "patient_issues_total",
			Help:      "Patients that failed processing during a sync",
		}, []string{"pms_type"}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "sync",
			Name:      "jobs_total",
			Help:      "Queued sync requests handled by workers",
		}, []string{"trigger", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.syncsTotal, m.syncDuration, m.caseUpserts, m.patientIssues, m.jobsTotal)
	return m
}

func (m *SyncMetrics) ObserveSync(pmsType, status string, seconds float64) {
	if m == nil {
		return
	}
	m.syncsTotal.WithLabelValues(pmsType, status).Inc()
	m.syncDuration.WithLabelValues(pmsType).Observe(seconds)
}

// ObserveCaseUpsert records a created, updated or failed upsert.
func (m *SyncMetrics) ObserveCaseUpsert(result string) {
	if m == nil {
		return
	}
	m.caseUpserts.WithLabelValues(result).Inc()
}

func (m *SyncMetrics) ObservePatientIssue(pmsType string) {
	if m == nil {
		return
	}
	m.patientIssues.WithLabelValues(pmsType).Inc()
}

func (m *SyncMetrics) ObserveJob(trigger, outcome string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(trigger, outcome).Inc()
}
