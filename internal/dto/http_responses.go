package dto

import (
	"net/http"
	"time"

	"github.com/wb-go/wbf/ginext"
)

const (
	FieldIncorrect        = "FIELD_INCORRECT"
	InvalidPhone          = "INVALID_PHONE_FORMAT"
	Unauthorized          = "UNAUTHORIZED"
	Forbidden             = "FORBIDDEN"
	SectionNotFound       = "SECTION_NOT_FOUND"
	ApplicationNotFound   = "APPLICATION_NOT_FOUND"
	PopupNotFound         = "POPUP_NOT_FOUND"
	ProfileNotFound       = "PROFILE_NOT_FOUND"
	ApplicationNotStarted = "APPLICATION_NOT_STARTED"
	ApplicationClosed     = "APPLICATION_CLOSED"
	SoldOut               = "SOLD_OUT"
	DuplicateApplication  = "DUPLICATE_APPLICATION"
	DeleteNotAllowed      = "DELETE_NOT_ALLOWED"
	ServiceUnavailable    = "SERVICE_UNAVAILABLE"

	InternalError = "Service is currently unavailable. Please try again later."
)

type CreateSectionRequest struct {
	Sport        string     `json:"sport" validate:"required"`
	Title        string     `json:"title" validate:"required"`
	ApplyStartAt *time.Time `json:"apply_start_at" validate:"required"`
	ApplyEndAt   *time.Time `json:"apply_end_at" validate:"required"`
	Capacity     int        `json:"capacity" validate:"gt=0"`
	Remaining    *int       `json:"remaining" validate:"omitempty,gte=0"`
	Status       string     `json:"status" validate:"required,oneof=OPEN CLOSED"`
	ImageURL     *string    `json:"image_url"`
}

// UpdateSectionRequest is a patch: absent fields stay untouched.
type UpdateSectionRequest struct {
	Sport        *string    `json:"sport"`
	Title        *string    `json:"title"`
	ApplyStartAt *time.Time `json:"apply_start_at"`
	ApplyEndAt   *time.Time `json:"apply_end_at"`
	Capacity     *int       `json:"capacity" validate:"omitempty,gt=0"`
	Remaining    *int       `json:"remaining" validate:"omitempty,gte=0"`
	Status       *string    `json:"status" validate:"omitempty,oneof=OPEN CLOSED"`
	ImageURL     *string    `json:"image_url"`
}

func (r UpdateSectionRequest) Empty() bool {
	return r.Sport == nil && r.Title == nil && r.ApplyStartAt == nil && r.ApplyEndAt == nil &&
		r.Capacity == nil && r.Remaining == nil && r.Status == nil && r.ImageURL == nil
}

type CreateApplicationRequest struct {
	SectionID    int64   `json:"section_id" validate:"required"`
	Name         string  `json:"name" validate:"required,max=255"`
	Phone        string  `json:"phone" validate:"required"`
	Participants *int    `json:"participants" validate:"omitempty,gt=0"`
	RequestNote  *string `json:"request_note"`
	Memo         *string `json:"memo"`
}

type CancelApplicationRequest struct {
	CancelReason *string `json:"cancel_reason"`
}

type CreatePopupRequest struct {
	ImageURL string     `json:"image_url" validate:"required"`
	Size     string     `json:"size" validate:"required,oneof=600x800 800x600"`
	StartAt  *time.Time `json:"start_at"`
	EndAt    *time.Time `json:"end_at"`
}

type UpdatePopupRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

type UpdateProfileRequest struct {
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
}

func (r UpdateProfileRequest) Empty() bool { return r.Name == nil && r.Phone == nil }

// Application lifecycle events published to the broker.
const (
	ApplicationEventApplied   = "application.applied"
	ApplicationEventCancelled = "application.cancelled"
)

type ApplicationEventMessage struct {
	Event         string    `json:"event"`
	ApplicationID int64     `json:"application_id"`
	SectionID     int64     `json:"section_id"`
	UserID        string    `json:"user_id"`
	CancelReason  *string   `json:"cancel_reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Error is the uniform error body. The code lets the frontend map each failure
// to a localized message.
type Error struct {
	Message string `json:"error"`
	Code    string `json:"code,omitempty"`
}

func ErrorResponse(c *ginext.Context, status int, code, msg string) {
	c.JSON(status, Error{Message: msg, Code: code})
}

func BadRequestError(c *ginext.Context, code, msg string) {
	ErrorResponse(c, http.StatusBadRequest, code, msg)
}

func UnauthorizedError(c *ginext.Context) {
	ErrorResponse(c, http.StatusUnauthorized, Unauthorized, "Unauthorized")
}

func ForbiddenError(c *ginext.Context) {
	ErrorResponse(c, http.StatusForbidden, Forbidden, "Forbidden")
}

func NotFoundError(c *ginext.Context, code, msg string) {
	ErrorResponse(c, http.StatusNotFound, code, msg)
}

func ConflictError(c *ginext.Context, code, msg string) {
	ErrorResponse(c, http.StatusConflict, code, msg)
}

func InternalServerError(c *ginext.Context) {
	ErrorResponse(c, http.StatusInternalServerError, ServiceUnavailable, InternalError)
}
