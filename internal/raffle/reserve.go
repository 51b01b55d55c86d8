package raffle

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rifa-app/internal/models"
)

const (
	defaultPoolSize   = 100
	defaultMaxTickets = 3
	maxNameLength     = 120
	maxNotesLength    = 2000
)

// ReserveRequest is a public self-service request. The purchase is created PENDING.
type ReserveRequest struct {
	Numbers    []int
	BuyerName  string
	BuyerPhone string
	IPAddress  string
}

// ManualPurchaseRequest is an admin counter sale, created APPROVED or PAID.
type ManualPurchaseRequest struct {
	Numbers    []int
	BuyerName  string
	BuyerPhone string
	Status     models.PurchaseStatus
	Notes      string
	IPAddress  string
}

// draft is a validated purchase waiting for its tickets.
type draft struct {
	name   string
	phone  string
	ip     string
	notes  string
	status models.PurchaseStatus
}

// ReserveTickets reserves every requested number for the buyer or none of them.
func (s *Service) ReserveTickets(ctx context.Context, raffleID uint, req ReserveRequest) (*models.Purchase, error) {
	raffle, err := s.openRaffle(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	numbers, err := normalizeNumbers(raffle, req.Numbers)
	if err != nil {
		return nil, err
	}
	d, err := s.newDraft(req.BuyerName, req.BuyerPhone, req.IPAddress, "", models.PurchasePending)
	if err != nil {
		return nil, err
	}

	// One pending request per phone. Not serialized with the reservation
	// below: two requests racing here may both pass.
	var pending int64
	err = s.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("raffle_id = ? AND buyer_phone_e164 = ? AND status = ?", raffle.ID, d.phone, models.PurchasePending).
		Count(&pending).Error
	if err != nil {
		return nil, storageErr("pending lookup", err)
	}
	if pending > 0 {
		return nil, ErrDuplicatePendingRequest
	}

	return s.reserve(ctx, raffle, numbers, d)
}

// CreateManualPurchase registers an admin sale straight into APPROVED or PAID.
func (s *Service) CreateManualPurchase(ctx context.Context, raffleID uint, req ManualPurchaseRequest) (*models.Purchase, error) {
	if req.Status != models.PurchaseApproved && req.Status != models.PurchasePaid {
		return nil, invalid("status", "Estado inválido: usa APPROVED o PAID.")
	}
	raffle, err := s.openRaffle(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	numbers, err := normalizeNumbers(raffle, req.Numbers)
	if err != nil {
		return nil, err
	}
	d, err := s.newDraft(req.BuyerName, req.BuyerPhone, req.IPAddress, req.Notes, req.Status)
	if err != nil {
		return nil, err
	}
	return s.reserve(ctx, raffle, numbers, d)
}

// reserve retries the whole transaction when the generated folio is taken.
func (s *Service) reserve(ctx context.Context, raffle *models.Raffle, numbers []int, d draft) (*models.Purchase, error) {
	var (
		purchase *models.Purchase
		err      error
	)
	for attempt := 1; attempt <= s.folioAttempts; attempt++ {
		purchase, err = s.reserveOnce(ctx, raffle, numbers, d)
		if !errors.Is(err, ErrFolioCollision) {
			break
		}
		log.Printf("Folio repetido, reintentando (%d/%d)", attempt, s.folioAttempts)
	}
	if err != nil {
		return nil, storageErr("reserve tickets", err)
	}
	return purchase, nil
}

func (s *Service) reserveOnce(ctx context.Context, raffle *models.Raffle, numbers []int, d draft) (*models.Purchase, error) {
	now := s.now()
	purchase := &models.Purchase{
		RaffleID:   raffle.ID,
		Folio:      s.folios.NewFolio(),
		BuyerName:  d.name,
		BuyerPhone: d.phone,
		Status:     d.status,
		CreatedAt:  now,
	}
	switch d.status {
	case models.PurchaseApproved:
		purchase.ApprovedAt = &now
	case models.PurchasePaid:
		purchase.PaidAt = &now
	}
	if d.ip != "" {
		purchase.IPAddress = &d.ip
	}
	if d.notes != "" {
		purchase.Notes = &d.notes
	}
	ticketStatus := models.TicketStatusFor(d.status)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. Lock exactly the requested rows, in number order
		var tickets []models.Ticket
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("raffle_id = ? AND number IN ?", raffle.ID, numbers).
			Order("number").
			Find(&tickets).Error
		if err != nil {
			return err
		}

		// 2. Every number must exist and be FREE
		if len(tickets) != len(numbers) {
			return ErrTicketNotFound
		}
		for _, t := range tickets {
			if t.Status != models.TicketFree {
				return &TicketUnavailableError{Number: t.Number, Status: t.Status}
			}
		}

		// 3. Purchase + links
		if err := tx.Omit(clause.Associations).Create(purchase).Error; err != nil {
			if isDuplicateKey(err) {
				return ErrFolioCollision
			}
			return err
		}
		ids := make([]uint, len(tickets))
		links := make([]models.PurchaseTicket, len(tickets))
		for i, t := range tickets {
			ids[i] = t.ID
			links[i] = models.PurchaseTicket{PurchaseID: purchase.ID, TicketID: t.ID}
		}
		if err := tx.Create(&links).Error; err != nil {
			return err
		}

		// 4. Guarded status write: only rows still FREE may flip
		res := tx.Model(&models.Ticket{}).
			Where("id IN ? AND status = ?", ids, models.TicketFree).
			Updates(map[string]any{"status": ticketStatus, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(ids)) {
			return firstTaken(tx, ids)
		}

		for i := range tickets {
			tickets[i].Status = ticketStatus
			tickets[i].UpdatedAt = now
		}
		purchase.Tickets = tickets
		return nil
	})
	if err != nil {
		return nil, err
	}
	return purchase, nil
}

// firstTaken names the lowest number among ids that is no longer FREE.
func firstTaken(tx *gorm.DB, ids []uint) error {
	var t models.Ticket
	err := tx.Where("id IN ? AND status <> ?", ids, models.TicketFree).Order("number").First(&t).Error
	if err != nil {
		return ErrTicketUnavailable
	}
	return &TicketUnavailableError{Number: t.Number, Status: t.Status}
}

func (s *Service) newDraft(name, phone, ip, notes string, status models.PurchaseStatus) (draft, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return draft{}, invalid("buyer_name", "El nombre es obligatorio.")
	}
	if len([]rune(name)) > maxNameLength {
		return draft{}, invalid("buyer_name", "El nombre no puede exceder %d caracteres.", maxNameLength)
	}
	normalized, err := s.normalizePhone(phone)
	if err != nil {
		return draft{}, invalid("buyer_phone", "%s", err.Error())
	}
	return draft{
		name:   name,
		phone:  normalized,
		ip:     strings.TrimSpace(ip),
		notes:  truncate(strings.TrimSpace(notes), maxNotesLength),
		status: status,
	}, nil
}

// normalizeNumbers deduplicates and sorts the selection and checks it
// against the raffle's limits.
func normalizeNumbers(raffle *models.Raffle, numbers []int) ([]int, error) {
	seen := make(map[int]struct{}, len(numbers))
	out := make([]int, 0, len(numbers))
	for _, n := range numbers {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Ints(out)

	maxTickets := raffle.MaxTicketsPerPurchase
	if maxTickets <= 0 {
		maxTickets = defaultMaxTickets
	}
	pool := poolSize(raffle)

	if len(out) == 0 {
		return nil, invalid("numbers", "Selecciona al menos 1 boleto.")
	}
	if len(out) > maxTickets {
		return nil, invalid("numbers", "Máximo %d boletos por compra.", maxTickets)
	}
	for _, n := range out {
		if n < 1 || n > pool {
			return nil, invalid("numbers", "Los boletos deben estar entre 01 y %02d.", pool)
		}
	}
	return out, nil
}

func poolSize(raffle *models.Raffle) int {
	if raffle.PoolSize <= 0 {
		return defaultPoolSize
	}
	return raffle.PoolSize
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
