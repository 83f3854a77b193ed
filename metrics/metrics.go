// Package metrics exposes the engine's activity counters (gstat.Global)
// as Prometheus collectors, supplementing spec's own stats surface with
// a scrape endpoint -- grounded on the talyz-systemd_exporter pack
// repo's collector style (one GaugeFunc/CounterFunc per exported value,
// registered into a package-level registry, no custom Collector
// implementations needed since every value here is a simple counter or
// gauge read through gstat.Global's atomics).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"guard/gstat"
)

// Registry is the Prometheus registry this package's init registers
// guard's collectors into; callers embed it in their own HTTP /metrics
// handler via promhttp.HandlerFor(metrics.Registry, ...).
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "guard",
			Name:      "pool_allocs_total",
			Help:      "Total pool_alloc calls across all pools.",
		}, func() float64 { return float64(gstat.Global.Snapshot().PoolAllocs()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "guard",
			Name:      "pool_frees_total",
			Help:      "Total pool_free calls across all pools.",
		}, func() float64 { return float64(gstat.Global.Snapshot().PoolFrees()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "guard",
			Name:      "baggy_allocs_total",
			Help:      "Total Baggy-Bounds allocations.",
		}, func() float64 { return float64(gstat.Global.Snapshot().BaggyAllocs()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "guard",
			Name:      "baggy_frees_total",
			Help:      "Total Baggy-Bounds frees.",
		}, func() float64 { return float64(gstat.Global.Snapshot().BaggyFrees()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "guard",
			Name:      "violations_total",
			Help:      "Total memory-safety violations detected.",
		}, func() float64 { return float64(gstat.Global.Snapshot().Violations()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "guard",
			Name:      "active_objects",
			Help:      "Currently live tracked objects across all pools.",
		}, func() float64 { return float64(gstat.Global.Snapshot().ActiveObjects()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "guard",
			Name:      "oob_rewrites_total",
			Help:      "Total out-of-bounds rewrite pointers minted.",
		}, func() float64 { return float64(gstat.Global.Snapshot().OOBRewrites()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "guard",
			Name:      "debug_records",
			Help:      "Debug-metadata records retained in the arena.",
		}, func() float64 { return float64(gstat.Global.Snapshot().DebugRecords()) }),
	)
}
