package model

import (
	"regexp"
	"strings"
	"time"
)

// Stored section statuses. Free text in the store, restricted to these two values.
const (
	SectionOpen   = "OPEN"
	SectionClosed = "CLOSED"
)

// Application statuses.
const (
	ApplicationApplied   = "APPLIED"
	ApplicationCancelled = "CANCELLED"
)

// Profile roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// AllowedPopupSizes are the popup size categories accepted by the admin UI.
var AllowedPopupSizes = []string{"600x800", "800x600"}

type Section struct {
	ID           int64      `db:"id" json:"id"`
	Sport        string     `db:"sport" json:"sport"`
	Title        string     `db:"title" json:"title"`
	ApplyStartAt *time.Time `db:"apply_start_at" json:"apply_start_at"`
	ApplyEndAt   *time.Time `db:"apply_end_at" json:"apply_end_at"`
	Capacity     int        `db:"capacity" json:"capacity"`
	Remaining    int        `db:"remaining" json:"remaining"`
	Status       string     `db:"status" json:"status"`
	ImageURL     *string    `db:"image_url" json:"image_url"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// SectionSummary is the slice of a section embedded in application listings.
type SectionSummary struct {
	Sport        string     `db:"sport" json:"sport"`
	Title        string     `db:"title" json:"title"`
	ApplyStartAt *time.Time `db:"apply_start_at" json:"apply_start_at"`
	ApplyEndAt   *time.Time `db:"apply_end_at" json:"apply_end_at"`
	Status       string     `db:"status" json:"status"`
}

type Application struct {
	ID           int64      `db:"id" json:"id"`
	SectionID    int64      `db:"section_id" json:"section_id"`
	UserID       string     `db:"user_id" json:"user_id"`
	Name         string     `db:"name" json:"name"`
	Phone        string     `db:"phone" json:"phone"`
	Participants *int       `db:"participants" json:"participants"`
	RequestNote  *string    `db:"request_note" json:"request_note"`
	Memo         *string    `db:"memo" json:"memo"`
	Status       string     `db:"status" json:"status"`
	CancelReason *string    `db:"cancel_reason" json:"cancel_reason"`
	CancelledAt  *time.Time `db:"cancelled_at" json:"cancelled_at"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`

	Section *SectionSummary `json:"section,omitempty"`
}

type Profile struct {
	ID    string `db:"id" json:"id"`
	Email string `db:"email" json:"email"`
	Name  string `db:"name" json:"name"`
	Phone string `db:"phone" json:"phone"`
	Role  string `db:"role" json:"role"`
}

func (p Profile) IsAdmin() bool { return p.Role == RoleAdmin }

type Popup struct {
	ID        int64      `db:"id" json:"id"`
	ImageURL  string     `db:"image_url" json:"image_url"`
	Size      string     `db:"size" json:"size"`
	StartAt   *time.Time `db:"start_at" json:"start_at"`
	EndAt     *time.Time `db:"end_at" json:"end_at"`
	IsActive  bool       `db:"is_active" json:"is_active"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// EffectiveStatus computes the display status of a section at the given time
// without touching stored state. A lapsed application window always reads as
// closed, even before any write catches up.
func EffectiveStatus(s *Section, now time.Time) string {
	if s.Status == SectionClosed {
		return SectionClosed
	}
	if s.ApplyEndAt != nil && now.After(*s.ApplyEndAt) {
		return SectionClosed
	}
	return s.Status
}

// IsFull reports whether the section has no remaining slots. Display-only; the
// admission path relies on the guarded decrement instead.
func (s *Section) IsFull() bool { return s.Remaining <= 0 }

var (
	nonDigitRegex = regexp.MustCompile(`\D`)
	// Korean mobile numbers: leading "01" plus 8-9 more digits.
	krMobileRegex = regexp.MustCompile(`^01\d{8,9}$`)
)

// NormalizePhone strips every non-digit character. Idempotent.
func NormalizePhone(phone string) string {
	return nonDigitRegex.ReplaceAllString(strings.TrimSpace(phone), "")
}

// ValidMobilePhone reports whether a normalized phone number is a plausible
// Korean mobile number.
func ValidMobilePhone(normalized string) bool {
	return krMobileRegex.MatchString(normalized)
}
