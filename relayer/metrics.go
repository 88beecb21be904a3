package relayer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CoreCounters = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relayer",
		Subsystem: "core",
		Name:      "counters_total",
		Help:      "Monotone counters of the relayer core: processed events, mints, sales, payments, errors.",
	}, []string{"name"})

	QueueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relayer",
		Subsystem: "queue",
		Name:      "size",
		Help:      "Number of events waiting in the processing queue.",
	})

	QueueInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relayer",
		Subsystem: "queue",
		Name:      "in_flight",
		Help:      "Number of events currently being processed.",
	})

	DroppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relayer",
		Subsystem: "queue",
		Name:      "dropped_total",
		Help:      "Events dropped after exhausting all retry attempts.",
	})

	SyncBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relayer",
		Subsystem: "chain",
		Name:      "sync_block",
		Help:      "Last observed block height per chain. Advisory, not used for replay.",
	}, []string{"chain_id"})

	MappedLoans = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relayer",
		Subsystem: "core",
		Name:      "mapped_loans",
		Help:      "Number of loans with a minted destination token.",
	})

	PendingTxs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relayer",
		Subsystem: "core",
		Name:      "pending_txs",
		Help:      "Submitted transactions not yet confirmed.",
	})
)
