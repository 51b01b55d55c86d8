package raffle

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rifa-app/internal/models"
)

// PublishWinners stores the three prize numbers (1st, 2nd, 3rd). Publishing
// again overwrites the previous result.
func (s *Service) PublishWinners(ctx context.Context, raffleID uint, numbers [3]int) (*models.Winners, error) {
	raffle, err := s.GetRaffle(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	pool := poolSize(raffle)
	seen := make(map[int]bool, 3)
	for _, n := range numbers {
		if n < 1 || n > pool {
			return nil, invalid("winners", "Los ganadores deben estar entre 01 y %02d.", pool)
		}
		if seen[n] {
			return nil, invalid("winners", "Los 3 ganadores deben ser distintos.")
		}
		seen[n] = true
	}

	now := s.now()
	first, second, third := numbers[0], numbers[1], numbers[2]
	w := &models.Winners{
		RaffleID:     raffle.ID,
		FirstTicket:  &first,
		SecondTicket: &second,
		ThirdTicket:  &third,
		PublishedAt:  &now,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "raffle_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_ticket", "second_ticket", "third_ticket", "published_at"}),
	}).Create(w).Error
	if err != nil {
		return nil, storageErr("publish winners", err)
	}
	return s.GetWinners(ctx, raffle.ID)
}

// GetWinners returns the raffle's winners row. An unpublished raffle yields
// an empty row, never an error.
func (s *Service) GetWinners(ctx context.Context, raffleID uint) (*models.Winners, error) {
	var w models.Winners
	err := s.db.WithContext(ctx).Where("raffle_id = ?", raffleID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.Winners{RaffleID: raffleID}, nil
	}
	if err != nil {
		return nil, storageErr("get winners", err)
	}
	return &w, nil
}
