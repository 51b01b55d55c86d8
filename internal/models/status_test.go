package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPurchaseTransitions(t *testing.T) {
	all := []PurchaseStatus{PurchasePending, PurchaseApproved, PurchasePaid, PurchaseCancelled}
	allowed := map[PurchaseStatus]map[PurchaseStatus]bool{
		PurchasePending:  {PurchaseApproved: true, PurchasePaid: true, PurchaseCancelled: true},
		PurchaseApproved: {PurchasePaid: true, PurchaseCancelled: true},
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[from][to], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}

	assert.True(t, PurchasePaid.Terminal())
	assert.True(t, PurchaseCancelled.Terminal())
	assert.False(t, PurchaseApproved.Terminal())
	assert.False(t, PurchaseCancelled.Active())
	assert.True(t, PurchasePaid.Active())
}

func TestTicketStatusFor(t *testing.T) {
	assert.Equal(t, TicketReserved, TicketStatusFor(PurchasePending))
	assert.Equal(t, TicketReserved, TicketStatusFor(PurchaseApproved))
	assert.Equal(t, TicketPaid, TicketStatusFor(PurchasePaid))
	assert.Equal(t, TicketFree, TicketStatusFor(PurchaseCancelled))
}

func TestParsePurchaseStatus(t *testing.T) {
	st, ok := ParsePurchaseStatus("PAID")
	assert.True(t, ok)
	assert.Equal(t, PurchasePaid, st)

	_, ok = ParsePurchaseStatus("paid")
	assert.False(t, ok)
}

func TestLockout(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	u := &AdminUser{}
	for i := 0; i < MaxFailedLogins-1; i++ {
		u.RegisterFailedLogin(now)
	}
	assert.False(t, u.IsLocked(now))

	u.RegisterFailedLogin(now)
	assert.True(t, u.IsLocked(now))
	assert.True(t, u.IsLocked(now.Add(LockoutDuration-time.Second)))
	assert.False(t, u.IsLocked(now.Add(LockoutDuration)))

	u.ResetLoginFailures()
	assert.Zero(t, u.FailedLoginAttempts)
	assert.False(t, u.IsLocked(now))
}

func TestPurchaseNumbers(t *testing.T) {
	p := &Purchase{Tickets: []Ticket{{Number: 15}, {Number: 5}, {Number: 10}}}
	assert.Equal(t, []int{5, 10, 15}, p.Numbers())
	assert.Equal(t, 450, p.TotalAmount(150))
}
