package resolver

import "github.com/prometheus/client_golang/prometheus"

var (
	resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolvd_resolutions_total",
			Help: "Total resolution calls by outcome.",
		},
		[]string{"outcome"},
	)

	resolutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "resolvd_resolution_duration_seconds",
			Help:    "Duration of resolver program invocations in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	installsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolvd_program_installs_total",
			Help: "Total program installs by outcome.",
		},
		[]string{"outcome"},
	)

	scheduledRefreshes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "resolvd_scheduled_refreshes_total",
			Help: "Total scheduled refresh ticks.",
		},
	)
)

func init() {
	prometheus.MustRegister(resolutionsTotal)
	prometheus.MustRegister(resolutionDuration)
	prometheus.MustRegister(installsTotal)
	prometheus.MustRegister(scheduledRefreshes)
}
