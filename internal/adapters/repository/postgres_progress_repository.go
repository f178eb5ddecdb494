package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/comitanigiacomo/glow-sync-engine/internal/core/domain"
)

// jsonFlags maps a JSONB column to a step flag set.
type jsonFlags domain.StepFlags

func (f *jsonFlags) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*f = jsonFlags{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("jsonFlags: unsupported type %T", src)
	}
	out := jsonFlags{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*f = out
	return nil
}

func (f jsonFlags) Value() (driver.Value, error) {
	if f == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]bool(f))
	return string(b), err
}

type progressRow struct {
	UserID    string    `db:"user_id"`
	Date      string    `db:"date"`
	AMSteps   jsonFlags `db:"am_steps"`
	PMSteps   jsonFlags `db:"pm_steps"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r progressRow) toDomain() *domain.DailyProgress {
	return &domain.DailyProgress{
		UserID:    r.UserID,
		Date:      r.Date,
		AMSteps:   domain.StepFlags(r.AMSteps),
		PMSteps:   domain.StepFlags(r.PMSteps),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type PostgresProgressRepository struct {
	db *sqlx.DB
}

func NewPostgresProgressRepository(db *sqlx.DB) *PostgresProgressRepository {
	return &PostgresProgressRepository{db: db}
}

// MergeStep upserts the document and merges one key into the period's JSONB map.
// Concurrent merges of different keys serialize on the row and both survive.
func (r *PostgresProgressRepository) MergeStep(ctx context.Context, toggle domain.StepToggle) (*domain.DailyProgress, error) {
	patch := jsonFlags{toggle.StepID: toggle.Completed}
	am, pm := jsonFlags{}, jsonFlags{}
	if toggle.Period == domain.PeriodPM {
		pm = patch
	} else {
		am = patch
	}

	query := `
		INSERT INTO daily_progress (user_id, date, am_steps, pm_steps, updated_at)
		VALUES ($1, $2, $3, $4, clock_timestamp())
		ON CONFLICT (user_id, date) DO UPDATE SET
			am_steps = daily_progress.am_steps || EXCLUDED.am_steps,
			pm_steps = daily_progress.pm_steps || EXCLUDED.pm_steps,
			updated_at = GREATEST(clock_timestamp(), daily_progress.updated_at + interval '1 microsecond')
		RETURNING user_id, to_char(date, 'YYYY-MM-DD') AS date, am_steps, pm_steps, updated_at`

	var row progressRow
	err := r.db.GetContext(ctx, &row, query, toggle.UserID, toggle.Date, am, pm)
	if err != nil {
		if pgErrorCode(err) == pgInsufficientPrivilege {
			return nil, domain.ErrPermissionDenied
		}
		return nil, fmt.Errorf("merge step: %w", err)
	}
	return row.toDomain(), nil
}

func (r *PostgresProgressRepository) Get(ctx context.Context, userID, date string) (*domain.DailyProgress, error) {
	query := `
		SELECT user_id, to_char(date, 'YYYY-MM-DD') AS date, am_steps, pm_steps, updated_at
		FROM daily_progress
		WHERE user_id = $1 AND date = $2`

	var row progressRow
	err := r.db.GetContext(ctx, &row, query, userID, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProgressNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}
