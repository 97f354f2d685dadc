package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Room metrics
	RoomsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "inklet_rooms_live",
			Help: "Number of live document rooms",
		},
	)

	SubscribersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "inklet_subscribers_active",
			Help: "Number of active realtime subscribers",
		},
	)

	// Persistence metrics
	UpdatesPersisted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inklet_updates_persisted_total",
			Help: "Total CRDT updates appended to the update log",
		},
	)

	UpdatePersistFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inklet_update_persist_failures_total",
			Help: "Total update log append failures",
		},
	)

	SnapshotsPersisted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inklet_snapshots_persisted_total",
			Help: "Total snapshot versions persisted",
		},
	)

	ArchivesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inklet_archives_created_total",
			Help: "Total archives created by kind",
		},
		[]string{"kind"},
	)

	// Materializer metrics
	MarkdownWrites = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inklet_markdown_writes_total",
			Help: "Total Markdown files written by the materializer",
		},
	)

	// Read-only enforcement
	ReadOnlyUpdatesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inklet_readonly_updates_dropped_total",
			Help: "Total update frames dropped on read-only documents",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RoomsLive,
		SubscribersActive,
		UpdatesPersisted,
		UpdatePersistFailures,
		SnapshotsPersisted,
		ArchivesCreated,
		MarkdownWrites,
		ReadOnlyUpdatesDropped,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
