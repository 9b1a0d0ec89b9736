package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"makerspace/internal/identity"
)

// Repository persists sessions in Postgres. The schema carries a partial
// unique index over the identity column where status = 'open', so the
// duplicate check-in race resolves inside a single insert instead of a
// read-then-write pair.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const sessionColumns = `id, user_type, role, name, purpose, email, reg_no, phone,
	department, year, organization, check_in_time, check_in_photo_url,
	check_out_time, duration_minutes, status, device_info`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.UserType, &s.Role, &s.Name, &s.Purpose, &s.Email,
		&s.RegNo, &s.Phone, &s.Department, &s.Year, &s.Organization,
		&s.CheckInTime, &s.CheckInPhotoURL, &s.CheckOutTime, &s.DurationMinutes,
		&s.Status, &s.DeviceInfo)
	return s, err
}

// Insert writes a new open session. CheckInTime is stamped by the database
// at commit; a unique-violation on the open-identity index maps to
// ErrDuplicateOpenSession.
func (r *Repository) Insert(ctx context.Context, s Session) (Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.Status = StatusOpen
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO sessions (id, user_type, role, name, purpose, email, reg_no, phone,
			department, year, organization, check_in_time, check_in_photo_url,
			check_out_time, duration_minutes, status, device_info)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW(),$12,NULL,NULL,$13,$14)
		RETURNING check_in_time
	`, s.ID, s.UserType, s.Role, s.Name, s.Purpose, s.Email, s.RegNo, s.Phone,
		s.Department, s.Year, s.Organization, s.CheckInPhotoURL, s.Status, s.DeviceInfo)
	if err := row.Scan(&s.CheckInTime); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Session{}, ErrDuplicateOpenSession
		}
		return Session{}, err
	}
	return s, nil
}

// FindOpen returns the open session for field=value, or nil when none.
func (r *Repository) FindOpen(ctx context.Context, field identity.Field, value string) (*Session, error) {
	column := "reg_no"
	if field == identity.FieldPhone {
		column = "phone"
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE `+column+` = $1 AND status = 'open'
		LIMIT 1
	`, value)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// Close stamps check-out and duration in one conditional update, so a lost
// race against another closer cannot overwrite an earlier check-out.
func (r *Repository) Close(ctx context.Context, id string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE sessions
		SET check_out_time = NOW(),
		    duration_minutes = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM (NOW() - check_in_time)) / 60))::int,
		    status = 'closed'
		WHERE id = $1 AND status = 'open'
		RETURNING `+sessionColumns+`
	`, id)
	s, err := scanSession(row)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Session{}, err
	}
	// Nothing updated: the session is either missing or already closed.
	if _, gerr := r.Get(ctx, id); gerr != nil {
		return Session{}, gerr
	}
	return Session{}, ErrAlreadyClosed
}

// Get returns a session by id.
func (r *Repository) Get(ctx context.Context, id string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE id = $1
	`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return s, err
}

// InWindow returns sessions with check_in_time in [from, to).
func (r *Repository) InWindow(ctx context.Context, from, to time.Time) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE check_in_time >= $1 AND check_in_time < $2
	`, from, to)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// OpenSessions returns every session still open.
func (r *Repository) OpenSessions(ctx context.Context) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE status = 'open'
	`)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// UpdateProfile backfills department/year, keeping existing values when the
// incoming ones are nil.
func (r *Repository) UpdateProfile(ctx context.Context, id string, department, year *string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET department = COALESCE($2, department),
		    year = COALESCE($3, year)
		WHERE id = $1
	`, id, department, year)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func collect(rows *sql.Rows) ([]Session, error) {
	defer rows.Close()
	var res []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
