// Package raffle holds the ticket reservation engine and the purchase
// lifecycle. Every operation is scoped to an explicit raffle id.
package raffle

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"rifa-app/internal/models"
	"rifa-app/internal/phone"
)

const defaultFolioAttempts = 3

type Service struct {
	db             *gorm.DB
	folios         FolioGenerator
	now            func() time.Time
	folioAttempts  int
	normalizePhone func(string) (string, error)
}

type Option func(*Service)

func WithFolioGenerator(g FolioGenerator) Option {
	return func(s *Service) { s.folios = g }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPhoneNormalizer replaces phone.Normalize.
func WithPhoneNormalizer(fn func(string) (string, error)) Option {
	return func(s *Service) { s.normalizePhone = fn }
}

// WithFolioAttempts bounds how many times a reservation is retried on a folio collision.
func WithFolioAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.folioAttempts = n
		}
	}
}

func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:             db,
		folios:         NewFolioGenerator(DefaultFolioPrefix),
		now:            func() time.Time { return time.Now().UTC() },
		folioAttempts:  defaultFolioAttempts,
		normalizePhone: phone.Normalize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ActiveRaffle returns the newest raffle flagged active.
func (s *Service) ActiveRaffle(ctx context.Context) (*models.Raffle, error) {
	var raffle models.Raffle
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id desc").
		First(&raffle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveRaffle
	}
	if err != nil {
		return nil, storageErr("active raffle", err)
	}
	return &raffle, nil
}

// GetRaffle loads a raffle by id.
func (s *Service) GetRaffle(ctx context.Context, raffleID uint) (*models.Raffle, error) {
	var raffle models.Raffle
	err := s.db.WithContext(ctx).First(&raffle, raffleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveRaffle
	}
	if err != nil {
		return nil, storageErr("load raffle", err)
	}
	return &raffle, nil
}

// openRaffle is GetRaffle for paths that take tickets: only the active raffle sells.
func (s *Service) openRaffle(ctx context.Context, raffleID uint) (*models.Raffle, error) {
	raffle, err := s.GetRaffle(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	if !raffle.IsActive {
		return nil, ErrRaffleClosed
	}
	return raffle, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// libsql errors do not go through the sqlite3 translator
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key")
}
