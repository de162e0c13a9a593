package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type LedgerMetrics struct {
	operations  *prometheus.CounterVec
	feesApplied *prometheus.CounterVec
	swaps       *prometheus.CounterVec
	conversions *prometheus.CounterVec
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ledger_operations_total",
				Help: "Count of ledger operations by name and outcome.",
			}, []string{"op", "outcome"}),
			feesApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ledger_fees_applied_total",
				Help: "Count of fee charges by currency.",
			}, []string{"asset"}),
			swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ledger_swaps_total",
				Help: "Count of settled signed swaps by currency pair.",
			}, []string{"pair"}),
			conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ledger_conversions_total",
				Help: "Count of stable conversions by currency pair.",
			}, []string{"pair"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.operations,
			ledgerRegistry.feesApplied,
			ledgerRegistry.swaps,
			ledgerRegistry.conversions,
		)
	})
	return ledgerRegistry
}

func (m *LedgerMetrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

func (m *LedgerMetrics) ObserveFee(asset string) {
	if m == nil {
		return
	}
	if asset == "" {
		asset = "unknown"
	}
	m.feesApplied.WithLabelValues(asset).Inc()
}

func (m *LedgerMetrics) ObserveSwap(assetA, assetB string) {
	if m == nil {
		return
	}
	m.swaps.WithLabelValues(pairLabel(assetA, assetB)).Inc()
}

func (m *LedgerMetrics) ObserveConversion(from, to string) {
	if m == nil {
		return
	}
	m.conversions.WithLabelValues(pairLabel(from, to)).Inc()
}

func pairLabel(a, b string) string {
	if a == "" {
		a = "unknown"
	}
	if b == "" {
		b = "unknown"
	}
	return a + "/" + b
}
