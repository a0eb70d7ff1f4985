package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/attendix/attendix/internal/geo"
	"github.com/attendix/attendix/internal/schedule"
)

// ErrNotFound is returned by store lookups that matched no row.
var ErrNotFound = errors.New("attendance: not found")

// SiteProvider resolves a site id to the configuration snapshot the engine
// consumes. The engine never reaches back into persistence.
type SiteProvider interface {
	SiteByID(ctx context.Context, id string) (schedule.Site, error)
}

// PhotoOracle reports photo presence metadata per event id.
type PhotoOracle interface {
	PhotoMeta(ctx context.Context, eventID string) (PhotoMeta, error)
}

// Store defines the persistence operations of the attendance service.
type Store interface {
	SiteProvider
	PhotoOracle

	CreateEvent(ctx context.Context, event *Event) error
	GetEvent(ctx context.Context, id string) (*Event, error)
	// OpenEvent returns the user's most recent event without a check-out.
	OpenEvent(ctx context.Context, userID string) (*Event, error)
	CompleteEvent(ctx context.Context, event *Event) error
	// ListEvents returns the user's events with check-in at or after since,
	// ordered ascending by check-in time.
	ListEvents(ctx context.Context, userID string, since time.Time, limit int) ([]Event, error)
}

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed attendance store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SiteByID loads one site snapshot.
func (s *PostgresStore) SiteByID(ctx context.Context, id string) (schedule.Site, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `
		SELECT id, name, latitude, longitude, radius_meters, timezone,
			operational_start, operational_end, work_days,
			grace_period_minutes, late_tolerance_minutes,
			early_checkout_tolerance_minutes, overtime_threshold_minutes,
			overtime_policy
		FROM sites WHERE id = $1`

	var (
		site         schedule.Site
		workDaysJSON []byte
		policyJSON   []byte
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&site.ID, &site.Name, &site.Center.Latitude, &site.Center.Longitude,
		&site.RadiusMeters, &site.Timezone,
		&site.OperationalStart, &site.OperationalEnd, &workDaysJSON,
		&site.GracePeriodMinutes, &site.LateToleranceMinutes,
		&site.EarlyCheckoutToleranceMinutes, &site.OvertimeThresholdMinutes,
		&policyJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return schedule.Site{}, ErrNotFound
		}
		return schedule.Site{}, fmt.Errorf("query site %s: %w", id, err)
	}

	if len(workDaysJSON) > 0 {
		if err := json.Unmarshal(workDaysJSON, &site.WorkDays); err != nil {
			return schedule.Site{}, fmt.Errorf("unmarshal work days for site %s: %w", id, err)
		}
	}
	if len(policyJSON) > 0 {
		if err := json.Unmarshal(policyJSON, &site.OvertimePolicy); err != nil {
			return schedule.Site{}, fmt.Errorf("unmarshal overtime policy for site %s: %w", id, err)
		}
	}
	return site, nil
}

// CreateEvent inserts a new attendance event.
func (s *PostgresStore) CreateEvent(ctx context.Context, event *Event) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `
		INSERT INTO attendance_events (
			id, user_id, site_id, check_in, check_out,
			latitude, longitude, accuracy_meters,
			fingerprint, risk_score,
			status, late_minutes, early_checkout_minutes,
			overtime_minutes, work_duration_minutes, score,
			has_photo, photo_byte_size,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)`

	_, err := s.pool.Exec(ctx, query,
		event.ID, event.UserID, event.SiteID, event.CheckIn, event.CheckOut,
		event.Latitude, event.Longitude, event.AccuracyMeters,
		event.Fingerprint, event.RiskScore,
		string(event.Status), event.LateMinutes, event.EarlyCheckoutMinutes,
		event.OvertimeMinutes, event.WorkDurationMinutes, event.Score,
		event.HasPhoto, event.PhotoByteSize,
		event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attendance event: %w", err)
	}
	return nil
}

// GetEvent loads one event by id.
func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	row := s.pool.QueryRow(ctx, selectEventColumns+` FROM attendance_events WHERE id = $1`, id)
	return scanEvent(row)
}

// OpenEvent returns the user's most recent event without a check-out, or
// ErrNotFound when every event is closed.
func (s *PostgresStore) OpenEvent(ctx context.Context, userID string) (*Event, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	row := s.pool.QueryRow(ctx, selectEventColumns+`
		FROM attendance_events
		WHERE user_id = $1 AND check_out IS NULL
		ORDER BY check_in DESC
		LIMIT 1`, userID)
	return scanEvent(row)
}

// CompleteEvent persists the check-out instant and the recomputed
// classification columns.
func (s *PostgresStore) CompleteEvent(ctx context.Context, event *Event) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `
		UPDATE attendance_events SET
			check_out = $2,
			status = $3, late_minutes = $4, early_checkout_minutes = $5,
			overtime_minutes = $6, work_duration_minutes = $7, score = $8,
			risk_score = $9, updated_at = $10
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		event.ID, event.CheckOut,
		string(event.Status), event.LateMinutes, event.EarlyCheckoutMinutes,
		event.OvertimeMinutes, event.WorkDurationMinutes, event.Score,
		event.RiskScore, event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("complete attendance event %s: %w", event.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEvents returns the user's events since the given instant, ascending by
// check-in time, the order the anomaly detector requires.
func (s *PostgresStore) ListEvents(ctx context.Context, userID string, since time.Time, limit int) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if limit <= 0 || limit > 500 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx, selectEventColumns+`
		FROM attendance_events
		WHERE user_id = $1 AND check_in >= $2
		ORDER BY check_in ASC
		LIMIT $3`, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list attendance events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// PhotoMeta reads the photo presence columns of one event.
func (s *PostgresStore) PhotoMeta(ctx context.Context, eventID string) (PhotoMeta, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var meta PhotoMeta
	err := s.pool.QueryRow(ctx,
		`SELECT has_photo, photo_byte_size FROM attendance_events WHERE id = $1`,
		eventID,
	).Scan(&meta.HasPhoto, &meta.ByteSize)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PhotoMeta{}, ErrNotFound
		}
		return PhotoMeta{}, fmt.Errorf("query photo metadata for event %s: %w", eventID, err)
	}
	return meta, nil
}

const selectEventColumns = `
	SELECT id, user_id, site_id, check_in, check_out,
		latitude, longitude, accuracy_meters,
		fingerprint, risk_score,
		status, late_minutes, early_checkout_minutes,
		overtime_minutes, work_duration_minutes, score,
		has_photo, photo_byte_size,
		created_at, updated_at`

func scanEvent(row pgx.Row) (*Event, error) {
	var (
		e      Event
		status string
	)
	err := row.Scan(
		&e.ID, &e.UserID, &e.SiteID, &e.CheckIn, &e.CheckOut,
		&e.Latitude, &e.Longitude, &e.AccuracyMeters,
		&e.Fingerprint, &e.RiskScore,
		&status, &e.LateMinutes, &e.EarlyCheckoutMinutes,
		&e.OvertimeMinutes, &e.WorkDurationMinutes, &e.Score,
		&e.HasPhoto, &e.PhotoByteSize,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan attendance event: %w", err)
	}
	e.Status = schedule.Status(status)
	return &e, nil
}

// Coordinate returns the event's submission coordinate as the geo type.
func (e *Event) Coordinate() geo.Coordinate {
	return geo.Coordinate{
		Latitude:       e.Latitude,
		Longitude:      e.Longitude,
		AccuracyMeters: e.AccuracyMeters,
	}
}

// InitializeSchema creates the attendance tables if they do not exist.
func InitializeSchema(ctx context.Context, pool *pgxpool.Pool) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sites (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		radius_meters INTEGER NOT NULL,
		timezone TEXT NOT NULL,
		operational_start TEXT NOT NULL,
		operational_end TEXT NOT NULL,
		work_days JSONB NOT NULL DEFAULT '[]',
		grace_period_minutes INTEGER NOT NULL DEFAULT 0,
		late_tolerance_minutes INTEGER NOT NULL DEFAULT 0,
		early_checkout_tolerance_minutes INTEGER NOT NULL DEFAULT 0,
		overtime_threshold_minutes INTEGER NOT NULL DEFAULT 0,
		overtime_policy JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS attendance_events (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		site_id TEXT NOT NULL REFERENCES sites(id),
		check_in TIMESTAMPTZ NOT NULL,
		check_out TIMESTAMPTZ,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		accuracy_meters DOUBLE PRECISION,
		fingerprint TEXT NOT NULL DEFAULT '',
		risk_score INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		late_minutes INTEGER NOT NULL DEFAULT 0,
		early_checkout_minutes INTEGER NOT NULL DEFAULT 0,
		overtime_minutes INTEGER NOT NULL DEFAULT 0,
		work_duration_minutes INTEGER NOT NULL DEFAULT 0,
		score DOUBLE PRECISION NOT NULL DEFAULT 0,
		has_photo BOOLEAN NOT NULL DEFAULT FALSE,
		photo_byte_size BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_attendance_events_user_checkin
		ON attendance_events(user_id, check_in DESC);
	CREATE INDEX IF NOT EXISTS idx_attendance_events_open
		ON attendance_events(user_id) WHERE check_out IS NULL;
	CREATE INDEX IF NOT EXISTS idx_attendance_events_site
		ON attendance_events(site_id, check_in DESC);
	`
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("initialize attendance schema: %w", err)
	}
	return nil
}
