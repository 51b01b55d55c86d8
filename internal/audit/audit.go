package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"gorm.io/gorm"

	"rifa-app/internal/models"
)

const DefaultLimit = 300

// Actions recorded by the admin API.
const (
	LoginFailed           = "LOGIN_FAILED"
	PasswordChanged       = "PASSWORD_CHANGED"
	AdminCreated          = "ADMIN_CREATED"
	PurchaseApproved      = "PURCHASE_APPROVED"
	PurchaseMarkPaid      = "PURCHASE_MARK_PAID"
	PurchaseCancelled     = "PURCHASE_CANCELLED"
	PurchaseNoteUpdated   = "PURCHASE_NOTE_UPDATED"
	TicketForceFree       = "TICKET_FORCE_FREE"
	ManualPurchaseCreated = "MANUAL_PURCHASE_CREATED"
	WinnersPublished      = "WINNERS_PUBLISHED"
	ReportViewed          = "REPORT_VIEWED"
)

type Entry struct {
	AdminID    *uint
	Action     string
	EntityType string
	EntityID   *uint
	Meta       map[string]any
	IP         string
}

type Recorder struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Record stores the entry. A failure is logged and swallowed: the action
// being audited has already happened.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil {
		return
	}
	meta := "{}"
	if len(e.Meta) > 0 {
		b, err := json.Marshal(e.Meta)
		if err != nil {
			log.Printf("audit: meta inválido para %s: %v", e.Action, err)
		} else {
			meta = string(b)
		}
	}
	row := models.AuditLog{
		AdminUserID: e.AdminID,
		Action:      e.Action,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		MetaJSON:    meta,
		IPAddress:   e.IP,
		CreatedAt:   r.now(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		log.Printf("audit: no se pudo guardar %s: %v", e.Action, err)
	}
}

// Recent lists the newest entries first, with the admin preloaded.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var rows []models.AuditLog
	err := r.db.WithContext(ctx).
		Preload("AdminUser").
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ID is a small helper for optional entity ids.
func ID(id uint) *uint {
	return &id
}
