package raffle

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"rifa-app/internal/models"
)

// SeedRequest describes the raffle to bootstrap when none is active.
type SeedRequest struct {
	Name              string
	OrganizerName     string
	OrganizerLocation string
	WhatsappPhone     string
	TicketPrice       int
	MaxTickets        int
	PoolSize          int
	DrawAt            time.Time
}

// SeedRaffle makes sure there is an active raffle with a complete pool of
// FREE tickets and a winners row. Running it twice changes nothing.
func (s *Service) SeedRaffle(ctx context.Context, req SeedRequest) (*models.Raffle, error) {
	var raffle *models.Raffle
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r models.Raffle
		err := tx.Where("is_active = ?", true).Order("id desc").First(&r).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			r, err = newRaffle(req)
			if err != nil {
				return err
			}
			if err := tx.Create(&r).Error; err != nil {
				return err
			}
			log.Printf("Rifa creada: %s (id %d)", r.Name, r.ID)
		case err != nil:
			return err
		}

		// 1. Tickets 1..pool, only the missing ones
		var existing []int
		if err := tx.Model(&models.Ticket{}).Where("raffle_id = ?", r.ID).Pluck("number", &existing).Error; err != nil {
			return err
		}
		have := make(map[int]bool, len(existing))
		for _, n := range existing {
			have[n] = true
		}
		var missing []models.Ticket
		for n := 1; n <= poolSize(&r); n++ {
			if !have[n] {
				missing = append(missing, models.Ticket{RaffleID: r.ID, Number: n, Status: models.TicketFree})
			}
		}
		if len(missing) > 0 {
			if err := tx.CreateInBatches(missing, 100).Error; err != nil {
				return err
			}
			log.Printf("Boletos creados: %d", len(missing))
		}

		// 2. Winners row
		w := models.Winners{RaffleID: r.ID}
		if err := tx.Where(models.Winners{RaffleID: r.ID}).FirstOrCreate(&w).Error; err != nil {
			return err
		}

		raffle = &r
		return nil
	})
	if err != nil {
		return nil, storageErr("seed raffle", err)
	}
	return raffle, nil
}

func newRaffle(req SeedRequest) (models.Raffle, error) {
	if req.Name == "" {
		return models.Raffle{}, invalid("name", "El nombre de la rifa es obligatorio.")
	}
	r := models.Raffle{
		Name:                  req.Name,
		OrganizerName:         req.OrganizerName,
		OrganizerLocation:     req.OrganizerLocation,
		WhatsappPhone:         req.WhatsappPhone,
		TicketPrice:           req.TicketPrice,
		MaxTicketsPerPurchase: req.MaxTickets,
		PoolSize:              req.PoolSize,
		DrawAt:                req.DrawAt,
		IsActive:              true,
	}
	if r.MaxTicketsPerPurchase <= 0 {
		r.MaxTicketsPerPurchase = defaultMaxTickets
	}
	if r.PoolSize <= 0 {
		r.PoolSize = defaultPoolSize
	}
	if r.TicketPrice < 0 {
		return models.Raffle{}, invalid("ticket_price", "El precio no puede ser negativo.")
	}
	return r, nil
}
