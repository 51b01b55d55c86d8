package models

import (
	"sort"
	"time"
)

// Raffle represents a lottery event. Exactly one is active at a time.
type Raffle struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	Name                  string    `gorm:"size:120;not null" json:"name"`
	OrganizerName         string    `gorm:"size:200;not null" json:"organizer_name"`
	OrganizerLocation     string    `gorm:"size:200;not null" json:"organizer_location"`
	WhatsappPhone         string    `gorm:"column:whatsapp_phone_e164;size:20;not null" json:"whatsapp_phone"`
	TicketPrice           int       `gorm:"column:ticket_price_mxn;not null;default:150" json:"ticket_price"`
	MaxTicketsPerPurchase int       `gorm:"not null;default:3" json:"max_tickets_per_purchase"`
	PoolSize              int       `gorm:"not null;default:100" json:"pool_size"`
	DrawAt                time.Time `gorm:"column:draw_at_local;not null" json:"draw_at"`
	IsActive              bool      `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt             time.Time `json:"created_at"`
}

// Ticket represents a single raffle number. Rows are seeded once and never deleted.
type Ticket struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	RaffleID  uint         `gorm:"not null;uniqueIndex:uq_ticket_number_per_raffle" json:"raffle_id"`
	Number    int          `gorm:"not null;uniqueIndex:uq_ticket_number_per_raffle" json:"number"`
	Status    TicketStatus `gorm:"size:16;not null;default:'FREE'" json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// PurchaseTicket is the join row between a purchase and the tickets it covers.
type PurchaseTicket struct {
	PurchaseID uint `gorm:"primaryKey"`
	TicketID   uint `gorm:"primaryKey;index"`
}

func (PurchaseTicket) TableName() string {
	return "purchase_tickets"
}

// Purchase is a buyer's request for 1..max tickets.
type Purchase struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	RaffleID    uint           `gorm:"not null;index" json:"raffle_id"`
	Folio       string         `gorm:"size:32;not null;uniqueIndex" json:"folio"`
	BuyerName   string         `gorm:"size:120;not null" json:"buyer_name"`
	BuyerPhone  string         `gorm:"column:buyer_phone_e164;size:20;not null;index" json:"buyer_phone"`
	Status      PurchaseStatus `gorm:"size:16;not null;default:'PENDING';index" json:"status"`
	IPAddress   *string        `gorm:"size:45" json:"-"`
	CreatedAt   time.Time      `json:"created_at"`
	ApprovedAt  *time.Time     `json:"approved_at,omitempty"`
	PaidAt      *time.Time     `json:"paid_at,omitempty"`
	CancelledAt *time.Time     `json:"cancelled_at,omitempty"`
	Notes       *string        `gorm:"type:text" json:"notes,omitempty"`

	Tickets []Ticket `gorm:"many2many:purchase_tickets;" json:"tickets,omitempty"`
}

// Numbers returns the ticket numbers covered by the purchase, ascending.
func (p *Purchase) Numbers() []int {
	nums := make([]int, 0, len(p.Tickets))
	for _, t := range p.Tickets {
		nums = append(nums, t.Number)
	}
	sort.Ints(nums)
	return nums
}

func (p *Purchase) TotalAmount(ticketPrice int) int {
	return ticketPrice * len(p.Tickets)
}

// Winners holds the published results of a raffle. One row per raffle.
type Winners struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	RaffleID     uint       `gorm:"not null;uniqueIndex" json:"raffle_id"`
	FirstTicket  *int       `json:"first_ticket"`
	SecondTicket *int       `json:"second_ticket"`
	ThirdTicket  *int       `json:"third_ticket"`
	PublishedAt  *time.Time `json:"published_at"`
}

func (Winners) TableName() string {
	return "winners"
}

// Published reports whether the three numbers are set.
func (w *Winners) Published() bool {
	return w != nil && w.FirstTicket != nil && w.SecondTicket != nil && w.ThirdTicket != nil
}

const (
	MaxFailedLogins = 5
	LockoutDuration = 15 * time.Minute
)

// AdminUser represents a staff member with access to the admin API
type AdminUser struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	Username            string     `gorm:"size:80;not null;uniqueIndex" json:"username"`
	PasswordHash        string     `gorm:"size:255;not null" json:"-"`
	MustChangePassword  bool       `gorm:"not null;default:true" json:"must_change_password"`
	IsActive            bool       `gorm:"not null;default:true" json:"is_active"`
	FailedLoginAttempts int        `gorm:"not null;default:0" json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (u *AdminUser) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// RegisterFailedLogin bumps the counter and locks the account once it reaches MaxFailedLogins.
func (u *AdminUser) RegisterFailedLogin(now time.Time) {
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= MaxFailedLogins {
		until := now.Add(LockoutDuration)
		u.LockedUntil = &until
	}
}

func (u *AdminUser) ResetLoginFailures() {
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
}

// AuditLog records an administrative action
type AuditLog struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	AdminUserID *uint     `gorm:"index" json:"admin_user_id"`
	Action      string    `gorm:"size:80;not null" json:"action"`
	EntityType  string    `gorm:"size:80" json:"entity_type,omitempty"`
	EntityID    *uint     `json:"entity_id,omitempty"`
	MetaJSON    string    `gorm:"type:text" json:"meta"`
	IPAddress   string    `gorm:"size:45" json:"ip_address,omitempty"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`

	AdminUser *AdminUser `json:"admin_user,omitempty"`
}

// All returns every model managed by the migrator.
func All() []any {
	return []any{
		&Raffle{},
		&Ticket{},
		&Purchase{},
		&PurchaseTicket{},
		&Winners{},
		&AdminUser{},
		&AuditLog{},
	}
}
