package events

// Topic constants for domain events emitted by the platform.
const (
	TopicQuoteComputed      = "quote.computed"
	TopicQuoteFailed        = "quote.failed"
	TopicCouponReserved     = "coupon.reserved"
	TopicCouponCommitted    = "coupon.committed"
	TopicCouponReleased     = "coupon.released"
	TopicSettlementRecorded = "settlement.recorded"
	TopicSettlementFailed   = "settlement.failed"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicQuoteComputed,
		TopicQuoteFailed,
		TopicCouponReserved,
		TopicCouponCommitted,
		TopicCouponReleased,
		TopicSettlementRecorded,
		TopicSettlementFailed,
	}
}
