package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"lessonhub/internal/auth"
	"lessonhub/internal/dto"
	"lessonhub/internal/mailer"
	"lessonhub/internal/model"
	"lessonhub/internal/repo"
	"lessonhub/pkg/validator"
)

type Service interface {
	ListSections(ctx *ginext.Context)
	GetSection(ctx *ginext.Context)
	CreateSection(ctx *ginext.Context)
	UpdateSection(ctx *ginext.Context)
	DeleteSection(ctx *ginext.Context)

	MyApplications(ctx *ginext.Context)
	SearchApplications(ctx *ginext.Context)
	Apply(ctx *ginext.Context)
	CancelApplication(ctx *ginext.Context)
	RejectDeleteApplication(ctx *ginext.Context)

	ListPopups(ctx *ginext.Context)
	CreatePopup(ctx *ginext.Context)
	UpdatePopup(ctx *ginext.Context)
	DeletePopup(ctx *ginext.Context)

	GetMe(ctx *ginext.Context)
	UpdateMe(ctx *ginext.Context)

	Health(ctx *ginext.Context)
}

// Notifier sends the best-effort admin email on a successful application.
type Notifier interface {
	NotifyApplication(ctx context.Context, app *model.Application, section *model.Section, applicantEmail string) mailer.Result
}

// Publisher emits application lifecycle events for downstream consumers.
type Publisher interface {
	Publish(message []byte) error
}

type service struct {
	repo   repo.Repository
	log    *zerolog.Logger
	mail   Notifier
	events Publisher
}

func NewService(repo repo.Repository, logger *zerolog.Logger, mail Notifier, events Publisher) Service {
	return &service{
		repo:   repo,
		log:    logger,
		mail:   mail,
		events: events,
	}
}

/* ===================== sections ===================== */

func (s *service) ListSections(ctx *ginext.Context) {
	status := ctx.Query("status")
	switch status {
	case "":
		status = model.SectionOpen
	case "all":
		status = ""
	}

	sections, err := s.repo.ListSections(ctx.Request.Context(), status)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list sections")
		dto.InternalServerError(ctx)
		return
	}

	now := time.Now().UTC()
	resp := make([]model.Section, 0, len(sections))
	for _, sec := range sections {
		sec.Status = model.EffectiveStatus(&sec, now)
		resp = append(resp, sec)
	}
	ctx.JSON(http.StatusOK, resp)
}

func (s *service) GetSection(ctx *ginext.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadRequestError(ctx, dto.FieldIncorrect, "Invalid section ID")
		return
	}

	section, err := s.repo.GetSectionByID(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repo.ErrSectionNotFound) {
			dto.NotFoundError(ctx, dto.SectionNotFound, "Section not found")
			return
		}
		s.log.Error().Err(err).Msg("failed to get section")
		dto.InternalServerError(ctx)
		return
	}

	section.Status = model.EffectiveStatus(section, time.Now().UTC())
	ctx.JSON(http.StatusOK, section)
}

func (s *service) CreateSection(ctx *ginext.Context) {
	var req dto.CreateSectionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadRequestError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadRequestError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	remaining := req.Capacity
	if req.Remaining != nil {
		remaining = *req.Remaining
	}
	if remaining > req.Capacity {
		dto.BadRequestError(ctx, dto.FieldIncorrect, "remaining cannot exceed capacity")
		return
	}

	section := &model.Section{
		Sport:        req.Sport,
		Title:        req.Title,
		ApplyStartAt: req.ApplyStartAt,
		ApplyEndAt:   req.ApplyEndAt,
		Capacity:     req.Capacity,
		Remaining:    remaining,
		Status:       req.Status,
		ImageURL:     req.ImageURL,
	}

	created, err := s.repo.CreateSection(ctx.Request.Context(), section)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create section in DB")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Int64("section_id", created.ID).Msg("section created successfully")
	ctx.JSON(http.StatusCreated, created)
}

func (s *service) UpdateSection(ctx *ginext.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadRequestError(ctx, dto.FieldIncorrect, "Invalid section ID")
		return
	}

	var req dto.UpdateSectionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadRequestError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if req.Empty() {
		dto.BadRequestError(ctx, dto.FieldIncorrect, "No fields to update")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadRequestError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}
	if req.Capacity != nil && req.Remaining != nil && *req.Remaining > *req.Capacity {
		dto.BadRequestError(ctx, dto.FieldIncorrect, "remaining cannot exceed capacity")
		return
	}

	patch := model.SectionPatch{
		Sport:        req.Sport,
		Title:        req.Title,
		ApplyStartAt: req.ApplyStartAt,
		ApplyEndAt:   req.ApplyEndAt,
		Capacity:     req.Capacity,
		Remaining:    req.Remaining,
		Status:       req.Status,
		ImageURL:     req.ImageURL,
	}

	updated, err := s.repo.UpdateSection(ctx.Request.Context(), id, patch)
	if err != nil {
		if errors.Is(err, repo.ErrSectionNotFound) {
			dto.NotFoundError(ctx, dto.SectionNotFound, "Section not found")
			return
		}
		s.log.Error().Err(err).Msg("failed to update section")
		dto.InternalServerError(ctx)
		return
	}
	ctx.JSON(http.StatusOK, updated)
}

func (s *service) DeleteSection(ctx *ginext.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadRequestError(ctx, dto.FieldIncorrect, "Invalid section ID")
		return
	}

	if err := s.repo.DeleteSection(ctx.Request.Context(), id); err != nil {
		if errors.Is(err, repo.ErrSectionNotFound) {
			dto.NotFoundError(ctx, dto.SectionNotFound, "Section not found")
			return
		}
		s.log.Error().Err(err).Msg("failed to delete section")
		dto.InternalServerError(ctx)
		return
	}
	ctx.JSON(http.StatusOK, map[string]bool{"ok": true})
}

/* ===================== applications ===================== */

func (s *service) MyApplications(ctx *ginext.Context) {
	profile, ok := auth.CurrentProfile(ctx)
	if !ok {
		dto.UnauthorizedError(ctx)
		return
	}

	apps, err := s.repo.ListApplicationsByUser(ctx.Request.Context(), profile.ID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list applications")
		dto.InternalServerError(ctx)
		return
	}
	if apps == nil {
		apps = []model.Application{}
	}
	ctx.JSON(http.StatusOK, apps)
}

func (s *service) SearchApplications(ctx *ginext.Context) {
	var sectionID int64
	if raw := ctx.Query("section_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			dto.BadRequestError(ctx, dto.FieldIncorrect, "Invalid section_id")
			return
		}
		sectionID = id
	}

	apps, err := s.repo.SearchApplications(ctx.Request.Context(), sectionID, ctx.Query("q"))
	if err != nil {
		s.log.Error().Err(err).Msg("failed to search applications")
		dto.InternalServerError(ctx)
		return
	}
	if apps == nil {
		apps = []model.Application{}
	}
	ctx.JSON(http.StatusOK, apps)
}

func (s *service) Apply(ctx *ginext.Context) {
	profile, ok := auth.CurrentProfile(ctx)
	if !ok {
		dto.UnauthorizedError(ctx)
		return
	}

	var req dto.CreateApplicationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadRequestError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadRequestError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	phone := model.NormalizePhone(req.Phone)
	if !model.ValidMobilePhone(phone) {
		dto.BadRequestError(ctx, dto.InvalidPhone, "Invalid phone format")
		return
	}

	application := &model.Application{
		SectionID:    req.SectionID,
		UserID:       profile.ID,
		Name:         req.Name,
		Phone:        phone,
		Participants: req.Participants,
		RequestNote:  req.RequestNote,
		Memo:         req.Memo,
	}

	created, err := s.repo.ApplyTx(ctx.Request.Context(), application, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrSectionNotFound):
			dto.NotFoundError(ctx, dto.SectionNotFound, "Section not found")
		case errors.Is(err, repo.ErrApplicationNotStarted):
			dto.ConflictError(ctx, dto.ApplicationNotStarted, "Application not started")
		case errors.Is(err, repo.ErrApplicationClosed):
			dto.ConflictError(ctx, dto.ApplicationClosed, "Application closed")
		case errors.Is(err, repo.ErrSoldOut):
			dto.ConflictError(ctx, dto.SoldOut, "Sold out")
		case errors.Is(err, repo.ErrDuplicateApplication):
			dto.ConflictError(ctx, dto.DuplicateApplication, "Already applied")
		default:
			s.log.Error().Err(err).Msg("failed to create application")
			dto.InternalServerError(ctx)
		}
		return
	}

	s.log.Info().
		Int64("application_id", created.ID).
		Int64("section_id", created.SectionID).
		Msg("application created successfully")

	// Best-effort side effects: the admission already committed, so a failed
	// email or event publish only gets logged.
	section, err := s.repo.GetSectionByID(ctx.Request.Context(), created.SectionID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load section for notification")
	} else {
		res := s.mail.NotifyApplication(ctx.Request.Context(), created, section, profile.Email)
		if res.Err != nil {
			s.log.Warn().Err(res.Err).Msg("failed to send admin notification")
		}
	}
	s.publishEvent(dto.ApplicationEventApplied, created)

	ctx.JSON(http.StatusCreated, created)
}

func (s *service) CancelApplication(ctx *ginext.Context) {
	profile, ok := auth.CurrentProfile(ctx)
	if !ok {
		dto.UnauthorizedError(ctx)
		return
	}

	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadRequestError(ctx, dto.FieldIncorrect, "Invalid application ID")
		return
	}

	// The body is optional: cancelling without a reason is allowed.
	var req dto.CancelApplicationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		dto.BadRequestError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	application, err := s.repo.GetApplicationByID(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repo.ErrApplicationNotFound) {
			dto.NotFoundError(ctx, dto.ApplicationNotFound, "Application not found")
			return
		}
		s.log.Error().Err(err).Msg("failed to get application")
		dto.InternalServerError(ctx)
		return
	}

	if !profile.IsAdmin() && application.UserID != profile.ID {
		dto.ForbiddenError(ctx)
		return
	}

	cancelled, err := s.repo.CancelTx(ctx.Request.Context(), id, req.CancelReason, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repo.ErrApplicationNotFound) {
			dto.NotFoundError(ctx, dto.ApplicationNotFound, "Application not found")
			return
		}
		s.log.Error().Err(err).Msg("failed to cancel application")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().
		Int64("application_id", cancelled.ID).
		Str("actor", profile.ID).
		Msg("application cancelled")

	s.publishEvent(dto.ApplicationEventCancelled, cancelled)

	ctx.JSON(http.StatusOK, cancelled)
}

// RejectDeleteApplication always answers 405: applications are soft-cancelled,
// never deleted.
func (s *service) RejectDeleteApplication(ctx *ginext.Context) {
	ctx.JSON(http.StatusMethodNotAllowed, dto.Error{Message: "Delete not allowed", Code: dto.DeleteNotAllowed})
}

func (s *service) publishEvent(event string, app *model.Application) {
	if s.events == nil {
		return
	}
	msg := dto.ApplicationEventMessage{
		Event:         event,
		ApplicationID: app.ID,
		SectionID:     app.SectionID,
		UserID:        app.UserID,
		CancelReason:  app.CancelReason,
		OccurredAt:    time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal lifecycle event")
		return
	}
	if err := s.events.Publish(payload); err != nil {
		s.log.Warn().Err(err).Str("event", event).Msg("failed to publish lifecycle event")
	}
}

/* ===================== popups ===================== */

func (s *service) ListPopups(ctx *ginext.Context) {
	activeOnly := ctx.Query("active") == "1"

	popups, err := s.repo.ListPopups(ctx.Request.Context(), activeOnly)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list popups")
		dto.InternalServerError(ctx)
		return
	}
	if popups == nil {
		popups = []model.Popup{}
	}
	ctx.JSON(http.StatusOK, popups)
}

func (s *service) CreatePopup(ctx *ginext.Context) {
	var req dto.CreatePopupRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadRequestError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadRequestError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	popup := &model.Popup{
		ImageURL: req.ImageURL,
		Size:     req.Size,
		StartAt:  req.StartAt,
		EndAt:    req.EndAt,
		IsActive: true,
	}

	created, err := s.repo.CreatePopup(ctx.Request.Context(), popup)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create popup")
		dto.InternalServerError(ctx)
		return
	}
	ctx.JSON(http.StatusCreated, created)
}

func (s *service) UpdatePopup(ctx *ginext.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadRequestError(ctx, dto.FieldIncorrect, "Invalid popup ID")
		return
	}

	var req dto.UpdatePopupRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadRequestError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if req.IsActive == nil {
		dto.BadRequestError(ctx, dto.FieldIncorrect, "is_active is required")
		return
	}

	updated, err := s.repo.SetPopupActive(ctx.Request.Context(), id, *req.IsActive)
	if err != nil {
		if errors.Is(err, repo.ErrPopupNotFound) {
			dto.NotFoundError(ctx, dto.PopupNotFound, "Popup not found")
			return
		}
		s.log.Error().Err(err).Msg("failed to update popup")
		dto.InternalServerError(ctx)
		return
	}
	ctx.JSON(http.StatusOK, updated)
}

func (s *service) DeletePopup(ctx *ginext.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadRequestError(ctx, dto.FieldIncorrect, "Invalid popup ID")
		return
	}

	if err := s.repo.DeletePopup(ctx.Request.Context(), id); err != nil {
		if errors.Is(err, repo.ErrPopupNotFound) {
			dto.NotFoundError(ctx, dto.PopupNotFound, "Popup not found")
			return
		}
		s.log.Error().Err(err).Msg("failed to delete popup")
		dto.InternalServerError(ctx)
		return
	}
	ctx.JSON(http.StatusOK, map[string]bool{"ok": true})
}

/* ===================== profile ===================== */

func (s *service) GetMe(ctx *ginext.Context) {
	profile, ok := auth.CurrentProfile(ctx)
	if !ok {
		dto.UnauthorizedError(ctx)
		return
	}
	ctx.JSON(http.StatusOK, profile)
}

func (s *service) UpdateMe(ctx *ginext.Context) {
	profile, ok := auth.CurrentProfile(ctx)
	if !ok {
		dto.UnauthorizedError(ctx)
		return
	}

	var req dto.UpdateProfileRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadRequestError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if req.Empty() {
		dto.BadRequestError(ctx, dto.FieldIncorrect, "No fields to update")
		return
	}
	if req.Phone != nil {
		normalized := model.NormalizePhone(*req.Phone)
		req.Phone = &normalized
	}

	updated, err := s.repo.UpdateProfile(ctx.Request.Context(), profile.ID, model.ProfilePatch{
		Name:  req.Name,
		Phone: req.Phone,
	})
	if err != nil {
		if errors.Is(err, repo.ErrProfileNotFound) {
			dto.NotFoundError(ctx, dto.ProfileNotFound, "Profile not found")
			return
		}
		s.log.Error().Err(err).Msg("failed to update profile")
		dto.InternalServerError(ctx)
		return
	}
	ctx.JSON(http.StatusOK, updated)
}

/* ===================== health ===================== */

func (s *service) Health(ctx *ginext.Context) {
	if err := s.repo.Ping(ctx.Request.Context()); err != nil {
		s.log.Error().Err(err).Msg("store ping failed")
		ctx.JSON(http.StatusInternalServerError, map[string]string{"status": "degraded"})
		return
	}
	ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
