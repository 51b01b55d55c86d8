// Package admins manages staff accounts: bcrypt passwords, the password
// policy and the progressive login lockout.
package admins

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"rifa-app/internal/models"
)

const bcryptCost = 10

var (
	ErrInvalidCredentials = errors.New("credenciales inválidas")
	ErrLocked             = errors.New("usuario bloqueado temporalmente por intentos fallidos")
	ErrUserExists         = errors.New("ese usuario ya existe")
	ErrNotFound           = errors.New("admin no encontrado")
)

// PolicyError explains why a password was rejected.
type PolicyError struct {
	Message string
}

func (e *PolicyError) Error() string { return e.Message }

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Authenticate checks a username/password pair. Wrong passwords count
// towards the lockout; a locked account is refused before the password is checked.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*models.AdminUser, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var u models.AdminUser
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	if u.IsLocked(now) {
		return &u, ErrLocked
	}

	if !checkPassword(password, u.PasswordHash) {
		u.RegisterFailedLogin(now)
		err := s.db.WithContext(ctx).Model(&u).Updates(map[string]any{
			"failed_login_attempts": u.FailedLoginAttempts,
			"locked_until":          u.LockedUntil,
		}).Error
		if err != nil {
			log.Printf("Error guardando intento fallido de %s: %v", username, err)
		}
		return &u, ErrInvalidCredentials
	}

	u.ResetLoginFailures()
	u.LastLoginAt = &now
	err = s.db.WithContext(ctx).Model(&u).Updates(map[string]any{
		"failed_login_attempts": 0,
		"locked_until":          nil,
		"last_login_at":         now,
	}).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create adds a new admin with a temporary password that must be changed on first login.
func (s *Store) Create(ctx context.Context, username, tempPassword string) (*models.AdminUser, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, &PolicyError{Message: "El usuario es obligatorio."}
	}
	if err := ValidatePassword(tempPassword); err != nil {
		return nil, err
	}
	hash, err := hashPassword(tempPassword)
	if err != nil {
		return nil, err
	}
	u := &models.AdminUser{
		Username:           username,
		PasswordHash:       hash,
		MustChangePassword: true,
		IsActive:           true,
	}
	err = s.db.WithContext(ctx).Create(u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) || (err != nil && strings.Contains(err.Error(), "UNIQUE")) {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// EnsureInitial creates the first admin when the table is empty. It is a
// no-op once any admin exists.
func (s *Store) EnsureInitial(ctx context.Context, username, tempPassword string) (*models.AdminUser, bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.AdminUser{}).Count(&count).Error; err != nil {
		return nil, false, err
	}
	if count > 0 {
		return nil, false, nil
	}
	u, err := s.Create(ctx, username, tempPassword)
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

func (s *Store) Get(ctx context.Context, id uint) (*models.AdminUser, error) {
	var u models.AdminUser
	err := s.db.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// List returns every admin, newest first.
func (s *Store) List(ctx context.Context) ([]models.AdminUser, error) {
	var users []models.AdminUser
	err := s.db.WithContext(ctx).Order("created_at desc, id desc").Find(&users).Error
	return users, err
}

// ChangePassword replaces the password after checking the current one.
func (s *Store) ChangePassword(ctx context.Context, id uint, current, next string) error {
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !checkPassword(current, u.PasswordHash) {
		return ErrInvalidCredentials
	}
	if err := ValidatePassword(next); err != nil {
		return err
	}
	hash, err := hashPassword(next)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(u).Updates(map[string]any{
		"password_hash":        hash,
		"must_change_password": false,
	}).Error
}

// ValidatePassword enforces 12+ chars with upper, lower, digit and symbol.
func ValidatePassword(pw string) error {
	if len([]rune(pw)) < 12 {
		return &PolicyError{Message: "La contraseña debe tener al menos 12 caracteres."}
	}
	var upper, lower, digit, symbol bool
	for _, r := range pw {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	switch {
	case !upper:
		return &PolicyError{Message: "La contraseña debe incluir al menos 1 letra mayúscula."}
	case !lower:
		return &PolicyError{Message: "La contraseña debe incluir al menos 1 letra minúscula."}
	case !digit:
		return &PolicyError{Message: "La contraseña debe incluir al menos 1 número."}
	case !symbol:
		return &PolicyError{Message: "La contraseña debe incluir al menos 1 símbolo."}
	}
	return nil
}

func hashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

func checkPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
