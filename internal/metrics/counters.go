// Package metrics exposes the proxy's Counters (spec.md section 3) as a
// Prometheus registry, grounded on SAGE-X-project-sage's
// internal/metrics/handshake.go promauto.With(Registry).NewCounterVec
// pattern. This is the in-process counters object spec.md's data model
// requires, not the external "benchmark/telemetry collector" its
// Non-goals exclude (see SPEC_FULL.md); the registry is never served over
// HTTP by this package, only exposed for a caller to wire up if desired.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters mirrors spec.md section 3's per-proxy monotonic counter set.
type Counters struct {
	Registry *prometheus.Registry

	PtxIn  prometheus.Counter
	PtxOut prometheus.Counter
	EncIn  prometheus.Counter
	EncOut prometheus.Counter
	Drops  prometheus.Counter

	DropsByReason *prometheus.CounterVec

	RekeysOK   prometheus.Counter
	RekeysFail prometheus.Counter
}

// New builds a fresh, independent Counters registry for one role
// ("gcs" or "drone").
func New(role string) *Counters {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	constLabels := prometheus.Labels{"role": role}

	return &Counters{
		Registry: reg,
		PtxIn: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pqproxy", Name: "ptx_in_total", Help: "plaintext datagrams read from the local app socket", ConstLabels: constLabels,
		}),
		PtxOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pqproxy", Name: "ptx_out_total", Help: "plaintext datagrams delivered to the local app socket", ConstLabels: constLabels,
		}),
		EncIn: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pqproxy", Name: "enc_in_total", Help: "encrypted datagrams read from the peer socket", ConstLabels: constLabels,
		}),
		EncOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pqproxy", Name: "enc_out_total", Help: "encrypted datagrams written to the peer socket", ConstLabels: constLabels,
		}),
		Drops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pqproxy", Name: "drops_total", Help: "datagrams dropped for any reason", ConstLabels: constLabels,
		}),
		DropsByReason: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pqproxy", Name: "drops_by_reason_total", Help: "datagrams dropped, classified by reason", ConstLabels: constLabels,
		}, []string{"reason"}),
		RekeysOK: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pqproxy", Name: "rekeys_ok_total", Help: "successful rekeys", ConstLabels: constLabels,
		}),
		RekeysFail: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pqproxy", Name: "rekeys_fail_total", Help: "failed or timed-out rekeys", ConstLabels: constLabels,
		}),
	}
}

// Drop increments both the aggregate and classified drop counters.
func (c *Counters) Drop(reason string) {
	c.Drops.Inc()
	c.DropsByReason.WithLabelValues(reason).Inc()
}
