package raffle

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rifa-app/internal/models"
)

// ApprovePurchase moves a PENDING request to APPROVED (apartado). Tickets stay RESERVED.
func (s *Service) ApprovePurchase(ctx context.Context, raffleID, purchaseID uint) (*models.Purchase, error) {
	return s.transition(ctx, raffleID, purchaseID, models.PurchaseApproved)
}

// MarkPurchasePaid confirms payment and marks every attached ticket PAID.
func (s *Service) MarkPurchasePaid(ctx context.Context, raffleID, purchaseID uint) (*models.Purchase, error) {
	return s.transition(ctx, raffleID, purchaseID, models.PurchasePaid)
}

// CancelPurchase releases every attached ticket. Paid purchases cannot be cancelled.
func (s *Service) CancelPurchase(ctx context.Context, raffleID, purchaseID uint) (*models.Purchase, error) {
	return s.transition(ctx, raffleID, purchaseID, models.PurchaseCancelled)
}

func (s *Service) transition(ctx context.Context, raffleID, purchaseID uint, to models.PurchaseStatus) (*models.Purchase, error) {
	var purchase *models.Purchase
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lockPurchase(tx, raffleID, purchaseID)
		if err != nil {
			return err
		}
		if err := s.apply(tx, p, to); err != nil {
			return err
		}
		purchase = p
		return nil
	})
	if err != nil {
		return nil, storageErr("purchase "+string(to), err)
	}
	return purchase, nil
}

const forceFreeAttempts = 3

// ForceFreeTicket is the admin override for a single ticket: the owning
// purchase is cancelled, which frees all of its tickets. Tickets of a PAID
// purchase are never released.
func (s *Service) ForceFreeTicket(ctx context.Context, raffleID, ticketID uint) (*models.Ticket, error) {
	var ticket models.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ? AND raffle_id = ?", ticketID, raffleID).First(&ticket).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTicketIDNotFound
		}
		if err != nil {
			return err
		}

		for attempt := 0; attempt < forceFreeAttempts; attempt++ {
			ownerID, err := activeOwner(tx, ticket.ID)
			if err != nil {
				return err
			}
			if ownerID == 0 {
				return freeOrphan(tx, &ticket, s)
			}

			// purchase before tickets, same order as CancelPurchase
			p, err := lockPurchase(tx, raffleID, ownerID)
			if err != nil {
				return err
			}
			if p.Status == models.PurchasePaid {
				return ErrTicketPaid
			}
			if !p.Status.Active() {
				// cancelled since the lookup; the ticket may have a new owner
				continue
			}
			if err := s.apply(tx, p, models.PurchaseCancelled); err != nil {
				return err
			}
			return tx.First(&ticket, ticket.ID).Error
		}
		return ErrTicketContended
	})
	if err != nil {
		return nil, storageErr("force free ticket", err)
	}
	return &ticket, nil
}

// freeOrphan releases a non-FREE ticket no active purchase claims.
func freeOrphan(tx *gorm.DB, ticket *models.Ticket, s *Service) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(ticket, ticket.ID).Error
	if err != nil {
		return err
	}
	ownerID, err := activeOwner(tx, ticket.ID)
	if err != nil {
		return err
	}
	if ownerID != 0 || ticket.Status == models.TicketFree {
		return nil
	}
	now := s.now()
	err = tx.Model(&models.Ticket{}).
		Where("id = ?", ticket.ID).
		Updates(map[string]any{"status": models.TicketFree, "updated_at": now}).Error
	if err != nil {
		return err
	}
	ticket.Status = models.TicketFree
	ticket.UpdatedAt = now
	return nil
}

// UpdatePurchaseNotes stores the admin note. No ticket state changes.
func (s *Service) UpdatePurchaseNotes(ctx context.Context, raffleID, purchaseID uint, notes string) (*models.Purchase, error) {
	notes = truncate(notes, maxNotesLength)
	res := s.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND raffle_id = ?", purchaseID, raffleID).
		Update("notes", notes)
	if res.Error != nil {
		return nil, storageErr("update notes", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrPurchaseNotFound
	}
	return s.GetPurchase(ctx, raffleID, purchaseID)
}

// apply is the only place a purchase status is written. Legality comes from
// models.PurchaseStatus.CanTransitionTo and ticket status from
// models.TicketStatusFor.
func (s *Service) apply(tx *gorm.DB, p *models.Purchase, to models.PurchaseStatus) error {
	from := p.Status
	if !from.CanTransitionTo(to) {
		return &TransitionError{From: from, To: to}
	}

	now := s.now()
	updates := map[string]any{"status": to}
	switch to {
	case models.PurchaseApproved:
		updates["approved_at"] = now
		p.ApprovedAt = &now
	case models.PurchasePaid:
		updates["paid_at"] = now
		p.PaidAt = &now
	case models.PurchaseCancelled:
		updates["cancelled_at"] = now
		p.CancelledAt = &now
	}
	res := tx.Model(&models.Purchase{}).
		Where("id = ? AND status = ?", p.ID, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return &TransitionError{From: from, To: to}
	}
	p.Status = to

	ticketStatus := models.TicketStatusFor(to)
	if ticketStatus == models.TicketStatusFor(from) || len(p.Tickets) == 0 {
		return nil
	}
	ids := make([]uint, len(p.Tickets))
	for i, t := range p.Tickets {
		ids[i] = t.ID
	}
	err := tx.Model(&models.Ticket{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"status": ticketStatus, "updated_at": now}).Error
	if err != nil {
		return err
	}
	for i := range p.Tickets {
		p.Tickets[i].Status = ticketStatus
		p.Tickets[i].UpdatedAt = now
	}
	return nil
}

// lockPurchase takes the purchase row lock and then its ticket rows, in number order.
func lockPurchase(tx *gorm.DB, raffleID, purchaseID uint) (*models.Purchase, error) {
	var p models.Purchase
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND raffle_id = ?", purchaseID, raffleID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, err
	}

	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("tickets.*").
		Joins("JOIN purchase_tickets ON purchase_tickets.ticket_id = tickets.id").
		Where("purchase_tickets.purchase_id = ?", p.ID).
		Order("tickets.number").
		Find(&p.Tickets).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// activeOwner returns the id of the non-cancelled purchase holding the ticket, or 0.
func activeOwner(tx *gorm.DB, ticketID uint) (uint, error) {
	var ids []uint
	err := tx.Model(&models.Purchase{}).
		Joins("JOIN purchase_tickets ON purchase_tickets.purchase_id = purchases.id").
		Where("purchase_tickets.ticket_id = ? AND purchases.status <> ?", ticketID, models.PurchaseCancelled).
		Order("purchases.created_at desc").
		Limit(1).
		Pluck("purchases.id", &ids).Error
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	return ids[0], nil
}
