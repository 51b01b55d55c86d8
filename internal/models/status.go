package models

// TicketStatus is the availability state of a ticket.
type TicketStatus string

const (
	TicketFree     TicketStatus = "FREE"
	TicketReserved TicketStatus = "RESERVED" // público: Apartado
	TicketPaid     TicketStatus = "PAID"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketFree, TicketReserved, TicketPaid:
		return true
	}
	return false
}

// PurchaseStatus is the lifecycle state of a purchase.
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "PENDING"   // solicitud enviada, pendiente admin
	PurchaseApproved  PurchaseStatus = "APPROVED"  // admin aprueba apartado
	PurchasePaid      PurchaseStatus = "PAID"      // admin confirma pago
	PurchaseCancelled PurchaseStatus = "CANCELLED" // admin cancela solicitud / libera
)

// ParsePurchaseStatus accepts the upper-case names used in the API.
func ParsePurchaseStatus(s string) (PurchaseStatus, bool) {
	st := PurchaseStatus(s)
	switch st {
	case PurchasePending, PurchaseApproved, PurchasePaid, PurchaseCancelled:
		return st, true
	}
	return "", false
}

// transitions is the complete set of legal purchase status changes.
// PAID and CANCELLED have no outgoing edges.
var transitions = map[PurchaseStatus][]PurchaseStatus{
	PurchasePending:  {PurchaseApproved, PurchasePaid, PurchaseCancelled},
	PurchaseApproved: {PurchasePaid, PurchaseCancelled},
}

// CanTransitionTo reports whether a purchase in status s may move to next.
func (s PurchaseStatus) CanTransitionTo(next PurchaseStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Active reports whether a purchase in this status holds its tickets.
func (s PurchaseStatus) Active() bool {
	return s != PurchaseCancelled
}

// Terminal reports whether no exposed operation can move the purchase further.
func (s PurchaseStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// TicketStatusFor is the ticket status every ticket held by a purchase in
// status s must have.
func TicketStatusFor(s PurchaseStatus) TicketStatus {
	switch s {
	case PurchasePending, PurchaseApproved:
		return TicketReserved
	case PurchasePaid:
		return TicketPaid
	}
	return TicketFree
}
