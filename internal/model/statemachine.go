package model

// Canonical forward ordering: pending < confirmed < processing < shipped < delivered.
// cancelled/returned/refunded sit outside the chain as terminal exceptions.
var statusRank = map[Status]int{
	StatusPending:    0,
	StatusConfirmed:  1,
	StatusProcessing: 2,
	StatusShipped:    3,
	StatusDelivered:  4,
}

// IsTerminal reports whether no further provider-driven transitions apply.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusCancelled, StatusReturned, StatusRefunded:
		return true
	}
	return false
}

// terminalException marks statuses that may be applied from any non-terminal state.
func terminalException(s Status) bool {
	return s == StatusCancelled || s == StatusReturned || s == StatusRefunded
}

// Advances reports whether moving from cur to next is forward progress on the
// canonical chain, or one of the terminal exceptions. Out-of-order or duplicate
// provider reports must still be recorded in history, but callers use this to
// decide whether Order.Status itself moves.
func Advances(cur, next Status) bool {
	if cur == next {
		return false
	}
	if cur.IsTerminal() {
		return false
	}
	if terminalException(next) {
		// returned only makes sense once the parcel has been out
		if next == StatusReturned {
			return statusRank[cur] >= statusRank[StatusConfirmed]
		}
		return true
	}
	cr, ok1 := statusRank[cur]
	nr, ok2 := statusRank[next]
	if !ok1 || !ok2 {
		return false
	}
	return nr > cr
}

// CanCancel reports whether an order may still be cancelled locally.
func CanCancel(cur Status) bool {
	switch cur {
	case StatusDelivered, StatusReturned, StatusRefunded, StatusCancelled:
		return false
	}
	return true
}

// ValidStatus reports whether s is a member of the canonical set.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCancelled, StatusReturned, StatusRefunded:
		return true
	}
	return false
}

// ValidConfirmation reports whether c is a known confirmation status.
func ValidConfirmation(c ConfirmationStatus) bool {
	switch c {
	case ConfirmPending, ConfirmConfirmed, ConfirmRejected, ConfirmNoResponse, ConfirmCallbackRequested:
		return true
	}
	return false
}

// Dispatchable reports whether the order is eligible for a sync-with-provider
// job: confirmed by the customer, not yet handed to a provider, and not failed
// beyond retry (failed orders need operator action first).
func (o *Order) Dispatchable() bool {
	if o.ConfirmationStatus != ConfirmConfirmed {
		return false
	}
	if o.TrackingNumber != "" || o.SyncStatus == SyncSynced {
		return false
	}
	if o.SyncStatus == SyncFailed {
		return false
	}
	return o.ProviderSlug != "" && !o.Status.IsTerminal()
}

// NeedsStatusCheck reports whether the reconciler should poll this order.
func (o *Order) NeedsStatusCheck() bool {
	return o.TrackingNumber != "" && !o.Status.IsTerminal()
}
