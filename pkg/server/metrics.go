package server

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/NicolasHaas/sanction/pkg/host"
	"github.com/NicolasHaas/sanction/pkg/model"
	"github.com/NicolasHaas/sanction/pkg/punish"
)

const namespace = "sanction"

// Metrics exposes punishment lifecycle statistics to Prometheus. It
// implements punish.Observer.
type Metrics struct {
	gatherer prometheus.Gatherer

	created         *prometheus.CounterVec
	revoked         *prometheus.CounterVec
	expired         *prometheus.CounterVec
	storageFailures *prometheus.CounterVec
	escalations     prometheus.Counter
	joins           prometheus.Counter
	refused         prometheus.Counter
}

var _ punish.Observer = (*Metrics)(nil)

// NewMetrics registers the lifecycle metrics with reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		created: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "punishments_created_total",
			Help:      "Punishments created, by type.",
		}, []string{"type"}),
		revoked: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "punishments_revoked_total",
			Help:      "Punishments revoked, by type and whether they were part of a mass clear.",
		}, []string{"type", "mass_clear"}),
		expired: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "punishments_expired_total",
			Help:      "Expired punishments evicted from the cache, by type.",
		}, []string{"type"}),
		storageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_failures_total",
			Help:      "Failed storage operations, by operation.",
		}, []string{"op"}),
		escalations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warn_escalations_total",
			Help:      "Warn actions executed.",
		}),
		joins: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_joined_total",
			Help:      "Sessions that completed the join flow.",
		}),
		refused: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_refused_total",
			Help:      "Logins refused because of an active ban.",
		}),
	}
}

// Watch registers gauges sampling the cache, sessions and queue on scrape.
func (m *Metrics) Watch(reg prometheus.Registerer, cache *punish.Cache, sessions *SessionManager, queue *host.Queue) {
	factory := promauto.With(reg)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cached_identities",
		Help:      "Identity markers held by the punishment cache.",
	}, func() float64 {
		_, _, identities := cache.Size()
		return float64(identities)
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_punishments_cached",
		Help:      "Active punishments held in memory.",
	}, func() float64 {
		active, _, _ := cache.Size()
		return float64(active)
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Connected sessions.",
	}, func() float64 { return float64(sessions.Count()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "primary_queue_depth",
		Help:      "Side effects waiting for the primary queue.",
	}, func() float64 { return float64(queue.Len()) })
}

func (m *Metrics) Created(t model.PunishmentType) {
	m.created.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) Revoked(t model.PunishmentType, massClear bool) {
	m.revoked.WithLabelValues(t.String(), strconv.FormatBool(massClear)).Inc()
}

func (m *Metrics) Expired(t model.PunishmentType) {
	m.expired.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) StorageFailure(op string) {
	m.storageFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) Escalated() {
	m.escalations.Inc()
}
