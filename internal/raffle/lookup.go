package raffle

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"rifa-app/internal/models"
)

// TicketState is one cell of the public ticket grid.
type TicketState struct {
	Number int                 `json:"number"`
	Status models.TicketStatus `json:"status"`
}

// TicketOwner is a ticket together with the purchase currently holding it.
// Purchase is nil for FREE tickets.
type TicketOwner struct {
	Ticket   models.Ticket    `json:"ticket"`
	Purchase *models.Purchase `json:"purchase,omitempty"`
}

// Stats is the dashboard summary of a raffle.
type Stats struct {
	Tickets   map[models.TicketStatus]int64   `json:"tickets"`
	Purchases map[models.PurchaseStatus]int64 `json:"purchases"`
	TotalSold int64                           `json:"total_sold"`
	PoolSize  int                             `json:"pool_size"`
}

func preloadTickets(db *gorm.DB) *gorm.DB {
	return db.Order("tickets.number")
}

// FindPurchase is the verification lookup: folio (any case) and phone must both match.
func (s *Service) FindPurchase(ctx context.Context, raffleID uint, folio, rawPhone string) (*models.Purchase, error) {
	folio = NormalizeFolio(folio)
	if folio == "" {
		return nil, invalid("folio", "Ingresa tu folio.")
	}
	normalized, err := s.normalizePhone(rawPhone)
	if err != nil {
		return nil, invalid("buyer_phone", "%s", err.Error())
	}

	var p models.Purchase
	err = s.db.WithContext(ctx).
		Preload("Tickets", preloadTickets).
		Where("raffle_id = ? AND UPPER(folio) = ? AND buyer_phone_e164 = ?", raffleID, folio, normalized).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, storageErr("find purchase", err)
	}
	return &p, nil
}

// GetPurchase loads a purchase of the raffle with its tickets.
func (s *Service) GetPurchase(ctx context.Context, raffleID, purchaseID uint) (*models.Purchase, error) {
	var p models.Purchase
	err := s.db.WithContext(ctx).
		Preload("Tickets", preloadTickets).
		Where("id = ? AND raffle_id = ?", purchaseID, raffleID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, storageErr("get purchase", err)
	}
	return &p, nil
}

// ListPurchases returns the raffle's purchases, newest first. An empty
// status means all of them.
func (s *Service) ListPurchases(ctx context.Context, raffleID uint, status models.PurchaseStatus) ([]models.Purchase, error) {
	q := s.db.WithContext(ctx).
		Preload("Tickets", preloadTickets).
		Where("raffle_id = ?", raffleID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var purchases []models.Purchase
	if err := q.Order("created_at desc, id desc").Find(&purchases).Error; err != nil {
		return nil, storageErr("list purchases", err)
	}
	return purchases, nil
}

// FindTicketByNumber is the admin ticket search.
func (s *Service) FindTicketByNumber(ctx context.Context, raffleID uint, number int) (*TicketOwner, error) {
	var t models.Ticket
	err := s.db.WithContext(ctx).
		Where("raffle_id = ? AND number = ?", raffleID, number).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, storageErr("find ticket", err)
	}

	out := &TicketOwner{Ticket: t}
	ownerID, err := activeOwner(s.db.WithContext(ctx), t.ID)
	if err != nil {
		return nil, storageErr("find ticket owner", err)
	}
	if ownerID == 0 {
		return out, nil
	}
	p, err := s.GetPurchase(ctx, raffleID, ownerID)
	if err != nil {
		return nil, err
	}
	out.Purchase = p
	return out, nil
}

// ListTicketStatuses returns every ticket of the raffle ordered by number.
func (s *Service) ListTicketStatuses(ctx context.Context, raffleID uint) ([]TicketState, error) {
	var states []TicketState
	err := s.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Select("number, status").
		Where("raffle_id = ?", raffleID).
		Order("number").
		Scan(&states).Error
	if err != nil {
		return nil, storageErr("list tickets", err)
	}
	return states, nil
}

// Stats counts tickets and purchases per status.
func (s *Service) Stats(ctx context.Context, raffleID uint) (*Stats, error) {
	raffle, err := s.GetRaffle(ctx, raffleID)
	if err != nil {
		return nil, err
	}

	type row struct {
		Status string
		Total  int64
	}
	var ticketRows, purchaseRows []row
	db := s.db.WithContext(ctx)
	err = db.Model(&models.Ticket{}).
		Select("status, COUNT(*) AS total").
		Where("raffle_id = ?", raffleID).
		Group("status").
		Scan(&ticketRows).Error
	if err != nil {
		return nil, storageErr("ticket stats", err)
	}
	err = db.Model(&models.Purchase{}).
		Select("status, COUNT(*) AS total").
		Where("raffle_id = ?", raffleID).
		Group("status").
		Scan(&purchaseRows).Error
	if err != nil {
		return nil, storageErr("purchase stats", err)
	}

	st := &Stats{
		Tickets: map[models.TicketStatus]int64{
			models.TicketFree: 0, models.TicketReserved: 0, models.TicketPaid: 0,
		},
		Purchases: map[models.PurchaseStatus]int64{
			models.PurchasePending: 0, models.PurchaseApproved: 0,
			models.PurchasePaid: 0, models.PurchaseCancelled: 0,
		},
		PoolSize: poolSize(raffle),
	}
	for _, r := range ticketRows {
		st.Tickets[models.TicketStatus(r.Status)] = r.Total
	}
	for _, r := range purchaseRows {
		st.Purchases[models.PurchaseStatus(r.Status)] = r.Total
	}
	st.TotalSold = st.Tickets[models.TicketPaid] * int64(raffle.TicketPrice)
	return st, nil
}
