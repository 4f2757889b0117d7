package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"lessonhub/internal/model"
)

var (
	ErrSectionNotFound       = errors.New("section not found")
	ErrApplicationNotFound   = errors.New("application not found")
	ErrPopupNotFound         = errors.New("popup not found")
	ErrProfileNotFound       = errors.New("profile not found")
	ErrApplicationNotStarted = errors.New("application not started")
	ErrApplicationClosed     = errors.New("application closed")
	ErrSoldOut               = errors.New("sold out")
	ErrDuplicateApplication  = errors.New("duplicate application")
)

type Repository interface {
	Ping(ctx context.Context) error

	CreateSection(ctx context.Context, s *model.Section) (*model.Section, error)
	GetSectionByID(ctx context.Context, id int64) (*model.Section, error)
	ListSections(ctx context.Context, status string) ([]model.Section, error)
	UpdateSection(ctx context.Context, id int64, patch model.SectionPatch) (*model.Section, error)
	DeleteSection(ctx context.Context, id int64) error

	// ApplyTx runs the guarded admission write: it locks the section row,
	// re-checks the window, the closed sentinel and the duplicate rule, then
	// decrements remaining only while it is still positive and inserts the
	// application, all in one transaction. Two racing submissions for the last
	// slot resolve to exactly one success and one ErrSoldOut.
	ApplyTx(ctx context.Context, app *model.Application, now time.Time) (*model.Application, error)
	GetApplicationByID(ctx context.Context, id int64) (*model.Application, error)
	ListApplicationsByUser(ctx context.Context, userID string) ([]model.Application, error)
	SearchApplications(ctx context.Context, sectionID int64, q string) ([]model.Application, error)
	// CancelTx transitions the application to CANCELLED and, on the first
	// APPLIED->CANCELLED transition only, restores one unit of remaining
	// capped at capacity. Re-cancelling overwrites reason and timestamp.
	CancelTx(ctx context.Context, id int64, reason *string, now time.Time) (*model.Application, error)

	CreatePopup(ctx context.Context, p *model.Popup) (*model.Popup, error)
	ListPopups(ctx context.Context, activeOnly bool) ([]model.Popup, error)
	SetPopupActive(ctx context.Context, id int64, active bool) (*model.Popup, error)
	DeletePopup(ctx context.Context, id int64) error

	GetProfileByID(ctx context.Context, id string) (*model.Profile, error)
	UpdateProfile(ctx context.Context, id string, patch model.ProfilePatch) (*model.Profile, error)

	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

func (r *repository) Ping(ctx context.Context) error {
	return r.db.Master.PingContext(ctx)
}

func (r *repository) MigrateUp(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}
		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations applied successfully from %s", migrationsDir)
	return nil
}

func (r *repository) MigrateDown(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.down.sql"))
	if err != nil {
		return fmt.Errorf("failed to read rollback files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read rollback file %s: %w", file, err)
		}
		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations rolled back successfully from %s", migrationsDir)
	return nil
}

/* ===================== sections ===================== */

const sectionColumns = `id, sport, title, apply_start_at, apply_end_at, capacity, remaining, status, image_url, created_at, updated_at`

func scanSection(row interface{ Scan(...any) error }) (*model.Section, error) {
	var s model.Section
	err := row.Scan(
		&s.ID, &s.Sport, &s.Title, &s.ApplyStartAt, &s.ApplyEndAt,
		&s.Capacity, &s.Remaining, &s.Status, &s.ImageURL, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) CreateSection(ctx context.Context, s *model.Section) (*model.Section, error) {
	query := `
		INSERT INTO sections (sport, title, apply_start_at, apply_end_at, capacity, remaining, status, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + sectionColumns

	row := r.db.QueryRowContext(ctx, query,
		s.Sport, s.Title, s.ApplyStartAt, s.ApplyEndAt, s.Capacity, s.Remaining, s.Status, s.ImageURL,
	)
	created, err := scanSection(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert section: %w", err)
	}
	return created, nil
}

func (r *repository) GetSectionByID(ctx context.Context, id int64) (*model.Section, error) {
	query := `SELECT ` + sectionColumns + ` FROM sections WHERE id = $1`

	s, err := scanSection(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSectionNotFound
		}
		return nil, fmt.Errorf("failed to get section: %w", err)
	}
	return s, nil
}

func (r *repository) ListSections(ctx context.Context, status string) ([]model.Section, error) {
	query := `SELECT ` + sectionColumns + ` FROM sections`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY apply_start_at ASC NULLS LAST, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sections: %w", err)
	}
	defer rows.Close()

	var sections []model.Section
	for rows.Next() {
		s, err := scanSection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		sections = append(sections, *s)
	}
	return sections, rows.Err()
}

func (r *repository) UpdateSection(ctx context.Context, id int64, patch model.SectionPatch) (*model.Section, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Sport != nil {
		add("sport", *patch.Sport)
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.ApplyStartAt != nil {
		add("apply_start_at", *patch.ApplyStartAt)
	}
	if patch.ApplyEndAt != nil {
		add("apply_end_at", *patch.ApplyEndAt)
	}
	if patch.Capacity != nil {
		add("capacity", *patch.Capacity)
	}
	if patch.Remaining != nil {
		add("remaining", *patch.Remaining)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.ImageURL != nil {
		add("image_url", *patch.ImageURL)
	}

	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE sections SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), sectionColumns,
	)

	s, err := scanSection(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSectionNotFound
		}
		return nil, fmt.Errorf("failed to update section: %w", err)
	}
	return s, nil
}

func (r *repository) DeleteSection(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete section: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete section: %w", err)
	}
	if n == 0 {
		return ErrSectionNotFound
	}
	return nil
}

/* ===================== applications ===================== */

func (r *repository) ApplyTx(ctx context.Context, app *model.Application, now time.Time) (*model.Application, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var section model.Section
	err = tx.QueryRowContext(ctx, `
		SELECT id, apply_start_at, apply_end_at, remaining, status
		FROM sections
		WHERE id = $1
		FOR UPDATE
	`, app.SectionID).Scan(&section.ID, &section.ApplyStartAt, &section.ApplyEndAt, &section.Remaining, &section.Status)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSectionNotFound
		}
		return nil, fmt.Errorf("failed to lock section: %w", err)
	}

	if section.ApplyStartAt != nil && now.Before(*section.ApplyStartAt) {
		_ = tx.Rollback()
		return nil, ErrApplicationNotStarted
	}
	if section.ApplyEndAt != nil && now.After(*section.ApplyEndAt) {
		_ = tx.Rollback()
		return nil, ErrApplicationClosed
	}
	if section.Status == model.SectionClosed {
		_ = tx.Rollback()
		return nil, ErrSoldOut
	}

	var duplicate bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM applications
			WHERE user_id = $1 AND section_id = $2 AND status = $3
		)
	`, app.UserID, app.SectionID, model.ApplicationApplied).Scan(&duplicate)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to check duplicate application: %w", err)
	}
	if duplicate {
		_ = tx.Rollback()
		return nil, ErrDuplicateApplication
	}

	// Guarded decrement: zero rows affected means the last slot is gone.
	res, err := tx.ExecContext(ctx, `
		UPDATE sections SET remaining = remaining - 1, updated_at = NOW()
		WHERE id = $1 AND remaining > 0
	`, app.SectionID)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to decrement remaining: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to decrement remaining: %w", err)
	} else if n == 0 {
		_ = tx.Rollback()
		return nil, ErrSoldOut
	}

	created := *app
	created.Status = model.ApplicationApplied
	err = tx.QueryRowContext(ctx, `
		INSERT INTO applications (section_id, user_id, name, phone, participants, request_note, memo, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, created.SectionID, created.UserID, created.Name, created.Phone,
		created.Participants, created.RequestNote, created.Memo, created.Status,
	).Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to insert application: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &created, nil
}

const applicationColumns = `id, section_id, user_id, name, phone, participants, request_note, memo, status, cancel_reason, cancelled_at, created_at`

func scanApplication(row interface{ Scan(...any) error }) (*model.Application, error) {
	var a model.Application
	err := row.Scan(
		&a.ID, &a.SectionID, &a.UserID, &a.Name, &a.Phone, &a.Participants,
		&a.RequestNote, &a.Memo, &a.Status, &a.CancelReason, &a.CancelledAt, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repository) GetApplicationByID(ctx context.Context, id int64) (*model.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`

	a, err := scanApplication(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return a, nil
}

const applicationJoinColumns = `
	a.id, a.section_id, a.user_id, a.name, a.phone, a.participants, a.request_note, a.memo,
	a.status, a.cancel_reason, a.cancelled_at, a.created_at,
	s.sport, s.title, s.apply_start_at, s.apply_end_at, s.status`

func scanApplicationWithSection(row interface{ Scan(...any) error }) (*model.Application, error) {
	var a model.Application
	var sum model.SectionSummary
	err := row.Scan(
		&a.ID, &a.SectionID, &a.UserID, &a.Name, &a.Phone, &a.Participants,
		&a.RequestNote, &a.Memo, &a.Status, &a.CancelReason, &a.CancelledAt, &a.CreatedAt,
		&sum.Sport, &sum.Title, &sum.ApplyStartAt, &sum.ApplyEndAt, &sum.Status,
	)
	if err != nil {
		return nil, err
	}
	a.Section = &sum
	return &a, nil
}

func (r *repository) ListApplicationsByUser(ctx context.Context, userID string) ([]model.Application, error) {
	query := `
		SELECT ` + applicationJoinColumns + `
		FROM applications a
		JOIN sections s ON s.id = a.section_id
		WHERE a.user_id = $1
		ORDER BY a.created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var apps []model.Application
	for rows.Next() {
		a, err := scanApplicationWithSection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, *a)
	}
	return apps, rows.Err()
}

func (r *repository) SearchApplications(ctx context.Context, sectionID int64, q string) ([]model.Application, error) {
	query := `
		SELECT ` + applicationJoinColumns + `
		FROM applications a
		JOIN sections s ON s.id = a.section_id
	`
	var conds []string
	var args []any
	if sectionID != 0 {
		args = append(args, sectionID)
		conds = append(conds, fmt.Sprintf("a.section_id = $%d", len(args)))
	}
	if q != "" {
		args = append(args, "%"+q+"%")
		conds = append(conds, fmt.Sprintf("(a.name ILIKE $%d OR a.phone ILIKE $%d)", len(args), len(args)))
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY a.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search applications: %w", err)
	}
	defer rows.Close()

	var apps []model.Application
	for rows.Next() {
		a, err := scanApplicationWithSection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, *a)
	}
	return apps, rows.Err()
}

func (r *repository) CancelTx(ctx context.Context, id int64, reason *string, now time.Time) (*model.Application, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var prevStatus string
	var sectionID int64
	err = tx.QueryRowContext(ctx, `
		SELECT status, section_id FROM applications WHERE id = $1 FOR UPDATE
	`, id).Scan(&prevStatus, &sectionID)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("failed to lock application: %w", err)
	}

	query := `
		UPDATE applications
		SET status = $2, cancel_reason = $3, cancelled_at = $4
		WHERE id = $1
		RETURNING ` + applicationColumns

	cancelled, err := scanApplication(tx.QueryRowContext(ctx, query, id, model.ApplicationCancelled, reason, now))
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to cancel application: %w", err)
	}

	// Restore one slot on the first APPLIED->CANCELLED transition only, never
	// above capacity. Re-cancelling just rewrites reason and timestamp.
	if prevStatus == model.ApplicationApplied {
		_, err = tx.ExecContext(ctx, `
			UPDATE sections SET remaining = LEAST(remaining + 1, capacity), updated_at = NOW()
			WHERE id = $1
		`, sectionID)
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to restore remaining: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cancellation transaction: %w", err)
	}

	return cancelled, nil
}

/* ===================== popups ===================== */

const popupColumns = `id, image_url, size, start_at, end_at, is_active, created_at`

func scanPopup(row interface{ Scan(...any) error }) (*model.Popup, error) {
	var p model.Popup
	err := row.Scan(&p.ID, &p.ImageURL, &p.Size, &p.StartAt, &p.EndAt, &p.IsActive, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) CreatePopup(ctx context.Context, p *model.Popup) (*model.Popup, error) {
	query := `
		INSERT INTO popups (image_url, size, start_at, end_at, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + popupColumns

	created, err := scanPopup(r.db.QueryRowContext(ctx, query, p.ImageURL, p.Size, p.StartAt, p.EndAt, p.IsActive))
	if err != nil {
		return nil, fmt.Errorf("failed to insert popup: %w", err)
	}
	return created, nil
}

func (r *repository) ListPopups(ctx context.Context, activeOnly bool) ([]model.Popup, error) {
	query := `SELECT ` + popupColumns + ` FROM popups`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list popups: %w", err)
	}
	defer rows.Close()

	var popups []model.Popup
	for rows.Next() {
		p, err := scanPopup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan popup: %w", err)
		}
		popups = append(popups, *p)
	}
	return popups, rows.Err()
}

func (r *repository) SetPopupActive(ctx context.Context, id int64, active bool) (*model.Popup, error) {
	query := `UPDATE popups SET is_active = $2 WHERE id = $1 RETURNING ` + popupColumns

	p, err := scanPopup(r.db.QueryRowContext(ctx, query, id, active))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPopupNotFound
		}
		return nil, fmt.Errorf("failed to update popup: %w", err)
	}
	return p, nil
}

func (r *repository) DeletePopup(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM popups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete popup: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete popup: %w", err)
	}
	if n == 0 {
		return ErrPopupNotFound
	}
	return nil
}

/* ===================== profiles ===================== */

func (r *repository) GetProfileByID(ctx context.Context, id string) (*model.Profile, error) {
	var p model.Profile
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, name, phone, role FROM profiles WHERE id = $1
	`, id).Scan(&p.ID, &p.Email, &p.Name, &p.Phone, &p.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

func (r *repository) UpdateProfile(ctx context.Context, id string, patch model.ProfilePatch) (*model.Profile, error) {
	sets := []string{}
	args := []any{}
	if patch.Name != nil {
		args = append(args, *patch.Name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if patch.Phone != nil {
		args = append(args, *patch.Phone)
		sets = append(sets, fmt.Sprintf("phone = $%d", len(args)))
	}

	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE profiles SET %s WHERE id = $%d RETURNING id, email, name, phone, role`,
		strings.Join(sets, ", "), len(args),
	)

	var p model.Profile
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&p.ID, &p.Email, &p.Name, &p.Phone, &p.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return &p, nil
}
