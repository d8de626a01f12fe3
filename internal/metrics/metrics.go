package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cosigner"

var (
	StatusTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_transitions_total",
		Help:      "Transaction status transitions, by source and target status.",
	}, []string{"from", "to"})

	Collations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "collations_total",
		Help:      "Collation attempts, by result.",
	}, []string{"result"})

	Submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_total",
		Help:      "Transactions submitted to the network, by outcome status.",
	}, []string{"status"})

	ExpiredTransactions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "expired_transactions_total",
		Help:      "Transactions moved to EXPIRED by the expiry sweep.",
	})

	PendingTimers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_timers",
		Help:      "Named timers currently registered.",
	})

	SkippedLocks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "skipped_locks_total",
		Help:      "Submissions skipped because another instance held the lock.",
	})
)

const (
	ResultOk           = "ok"
	ResultInsufficient = "insufficient"
	ResultOversize     = "oversize"
	ResultError        = "error"
)

// Register registers all collectors with the default registry. Collectors
// already registered are left untouched.
func Register() error {
	return RegisterWith(prometheus.DefaultRegisterer)
}

func RegisterWith(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		StatusTransitions, Collations, Submissions,
		ExpiredTransactions, PendingTimers, SkippedLocks,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ExposeBadgerToPrometheus publishes the badger expvar counters.
func ExposeBadgerToPrometheus() error {
	collector := prometheus.NewExpvarCollector(map[string]*prometheus.Desc{
		"badger_disk_reads_total":  prometheus.NewDesc("badger_disk_reads_total", "Disk Reads", nil, nil),
		"badger_disk_writes_total": prometheus.NewDesc("badger_disk_writes_total", "Disk Writes", nil, nil),
		"badger_gets_total":        prometheus.NewDesc("badger_gets_total", "Gets", nil, nil),
		"badger_puts_total":        prometheus.NewDesc("badger_puts_total", "Puts", nil, nil),
		"badger_read_bytes":        prometheus.NewDesc("badger_read_bytes", "Read bytes", nil, nil),
		"badger_written_bytes":     prometheus.NewDesc("badger_written_bytes", "Written bytes", nil, nil),
		"badger_lsm_size_bytes":    prometheus.NewDesc("badger_lsm_size_bytes", "LSM Size in bytes", []string{"database"}, nil),
		"badger_vlog_size_bytes":   prometheus.NewDesc("badger_vlog_size_bytes", "Value Log Size in bytes", []string{"database"}, nil),
	})
	if err := prometheus.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return err
		}
	}
	return nil
}
