package order

type Status string

const (
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusPending        Status = "PENDING"
	StatusConfirmed      Status = "CONFIRMED"
	StatusProcessing     Status = "PROCESSING"
	StatusShipping       Status = "SHIPPING"
	StatusDelivered      Status = "DELIVERED"
	StatusFailed         Status = "FAILED"
	StatusCancelled      Status = "CANCELLED"
	StatusRefunded       Status = "REFUNDED"
)

var validNext = map[Status]map[Status]bool{
	StatusPendingPayment: {StatusPending: true, StatusCancelled: true},
	StatusPending:        {StatusConfirmed: true, StatusProcessing: true, StatusCancelled: true},
	StatusConfirmed:      {StatusProcessing: true},
	StatusProcessing:     {StatusShipping: true},
	StatusShipping:       {StatusDelivered: true, StatusFailed: true},
	StatusDelivered:      {},
	StatusFailed:         {},
	StatusCancelled:      {},
	StatusRefunded:       {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// IsTerminal reports whether no further transition can leave s.
func IsTerminal(s Status) bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}

// IsValid reports whether s is a known order status.
func IsValid(s Status) bool {
	_, ok := validNext[s]
	return ok
}

// InitialStatus returns the state a fresh order starts in. Gateway-paid orders
// wait for the payment confirmation; everything else goes straight to PENDING.
func InitialStatus(m PaymentMethod) Status {
	if m == PaymentMethodVNPay {
		return StatusPendingPayment
	}
	return StatusPending
}

// Cancellable reports whether the owning user may cancel the order themselves.
// Self-service cancellation is restricted to cash-on-delivery orders that have
// not been picked up by staff yet; anything paid through the gateway is
// resolved by reconciliation or by support-driven refunds.
func Cancellable(m PaymentMethod, s Status) bool {
	return m == PaymentMethodCOD && s == StatusPending
}
