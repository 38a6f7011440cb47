package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuoteTotal counts priced-cart computations by outcome.
	QuoteTotal *prometheus.CounterVec
	// DiscountAppliedTotal counts applied discounts by source type and kind.
	DiscountAppliedTotal *prometheus.CounterVec
	// DiscountExcludedTotal counts eligibility exclusions by reason.
	DiscountExcludedTotal *prometheus.CounterVec
	// RedemptionTotal counts coupon reservation outcomes.
	RedemptionTotal *prometheus.CounterVec
	// SettlementTotal counts per-vendor settlement outcomes.
	SettlementTotal *prometheus.CounterVec
	// SettlementAmount observes vendor attributed subtotals at settlement, in cents.
	SettlementAmount *prometheus.HistogramVec
	// ReservationSweepTotal counts reservations reclaimed by the TTL sweep.
	ReservationSweepTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuoteTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_quote_total",
			Help:      "Count of priced-cart computations by outcome.",
		}, []string{"result"})
		DiscountAppliedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_applied_total",
			Help:      "Count of applied discounts by source type and kind.",
		}, []string{"source", "kind"})
		DiscountExcludedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_excluded_total",
			Help:      "Count of discount eligibility exclusions by reason.",
		}, []string{"source", "reason"})
		RedemptionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_redemption_total",
			Help:      "Count of coupon reservation attempts by outcome.",
		}, []string{"outcome"})
		SettlementTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_settlement_total",
			Help:      "Count of per-vendor settlement outcomes.",
		}, []string{"result"})
		SettlementAmount = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commission_settlement_amount_cents",
			Help:      "Vendor attributed subtotal at settlement, in cents.",
			Buckets:   []float64{1000, 5000, 10000, 50000, 100000, 500000, 1000000},
		}, []string{"result"})
		ReservationSweepTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_reservation_sweep_total",
			Help:      "Number of expired coupon reservations reclaimed by the sweep.",
		})

		mustRegisterCollector(reg, QuoteTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				QuoteTotal = v
			}
		})
		mustRegisterCollector(reg, DiscountAppliedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DiscountAppliedTotal = v
			}
		})
		mustRegisterCollector(reg, DiscountExcludedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DiscountExcludedTotal = v
			}
		})
		mustRegisterCollector(reg, RedemptionTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RedemptionTotal = v
			}
		})
		mustRegisterCollector(reg, SettlementTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SettlementTotal = v
			}
		})
		mustRegisterCollector(reg, SettlementAmount, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				SettlementAmount = v
			}
		})
		mustRegisterCollector(reg, ReservationSweepTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				ReservationSweepTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
