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

type jsonSteps []domain.RoutineStep

func (s *jsonSteps) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = jsonSteps{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("jsonSteps: unsupported type %T", src)
	}
	return json.Unmarshal(raw, (*[]domain.RoutineStep)(s))
}

func (s jsonSteps) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]domain.RoutineStep(s))
	return string(b), err
}

type routineRow struct {
	UserID    string    `db:"user_id"`
	Period    string    `db:"period"`
	Steps     jsonSteps `db:"steps"`
	StepCount string    `db:"step_count"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r routineRow) toDomain() *domain.SkincareRoutine {
	return &domain.SkincareRoutine{
		UserID:    r.UserID,
		Period:    domain.Period(r.Period),
		Steps:     []domain.RoutineStep(r.Steps),
		StepCount: r.StepCount,
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type PostgresRoutineRepository struct {
	db *sqlx.DB
}

func NewPostgresRoutineRepository(db *sqlx.DB) *PostgresRoutineRepository {
	return &PostgresRoutineRepository{db: db}
}

func (r *PostgresRoutineRepository) Get(ctx context.Context, userID string, period domain.Period) (*domain.SkincareRoutine, error) {
	query := `
		SELECT user_id, period, steps, step_count, updated_at
		FROM skincare_routines
		WHERE user_id = $1 AND period = $2`

	var row routineRow
	err := r.db.GetContext(ctx, &row, query, userID, string(period))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRoutineNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// Save upserts the routine, recomputing the step count label and the server timestamp.
func (r *PostgresRoutineRepository) Save(ctx context.Context, routine *domain.SkincareRoutine) error {
	if err := routine.Validate(); err != nil {
		return err
	}
	routine.StepCount = domain.StepCountLabel(len(routine.Steps))

	query := `
		INSERT INTO skincare_routines (user_id, period, steps, step_count, updated_at)
		VALUES ($1, $2, $3, $4, clock_timestamp())
		ON CONFLICT (user_id, period) DO UPDATE SET
			steps = EXCLUDED.steps,
			step_count = EXCLUDED.step_count,
			updated_at = GREATEST(clock_timestamp(), skincare_routines.updated_at + interval '1 microsecond')
		RETURNING updated_at`

	var updatedAt time.Time
	err := r.db.GetContext(ctx, &updatedAt, query,
		routine.UserID, string(routine.Period), jsonSteps(routine.Steps), routine.StepCount)
	if err != nil {
		switch pgErrorCode(err) {
		case pgCheckViolation:
			return domain.ErrInvalidPeriod
		case pgInsufficientPrivilege:
			return domain.ErrPermissionDenied
		}
		return fmt.Errorf("save routine: %w", err)
	}

	routine.UpdatedAt = updatedAt.UTC()
	return nil
}
