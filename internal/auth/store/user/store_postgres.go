package user

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"authority/internal/auth/models"
	id "authority/pkg/domain"
	"authority/pkg/platform/sentinel"
	"authority/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresUserStore persists principals. Sessions and login history are
// JSONB columns rewritten as a whole by UpdateSessions.
type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

const selectUserColumns = `
	SELECT id, email, phone, password_hash, first_name, last_name, preferences,
		status, is_active, is_verified, last_login, last_activity,
		active_sessions, login_history, created_at, updated_at
	FROM users`

func (s *PostgresUserStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx, selectUserColumns+` WHERE id = $1`, userID.String())
	return scanUser(row)
}

func (s *PostgresUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx, selectUserColumns+` WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

// FindByPhoneSubstring matches on the digits of the stored phone so
// formatting differences between signup and login do not matter.
func (s *PostgresUserStore) FindByPhoneSubstring(ctx context.Context, digits string) (*models.User, error) {
	if digits == "" {
		return nil, sentinel.ErrNotFound
	}
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx, selectUserColumns+`
		WHERE regexp_replace(coalesce(phone, ''), '[^0-9]', '', 'g') LIKE '%' || $1 || '%'
		ORDER BY created_at ASC
		LIMIT 1`, digits)
	return scanUser(row)
}

func (s *PostgresUserStore) Save(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	prefs, err := json.Marshal(user.Preferences)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	sessions, history, err := marshalSessions(user.ActiveSessions, user.LoginHistory)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO users (id, email, phone, password_hash, first_name, last_name, preferences,
			status, is_active, is_verified, last_login, last_activity,
			active_sessions, login_history, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			password_hash = EXCLUDED.password_hash,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			preferences = EXCLUDED.preferences,
			status = EXCLUDED.status,
			is_active = EXCLUDED.is_active,
			is_verified = EXCLUDED.is_verified,
			last_login = EXCLUDED.last_login,
			last_activity = EXCLUDED.last_activity,
			active_sessions = EXCLUDED.active_sessions,
			login_history = EXCLUDED.login_history,
			updated_at = EXCLUDED.updated_at
	`
	_, err = tx.Exec(ctx, s.db).ExecContext(ctx, query,
		user.ID.String(),
		nullString(user.Email),
		nullString(user.Phone),
		nullString(user.PasswordHash),
		user.FirstName,
		user.LastName,
		prefs,
		string(user.Status),
		user.IsActive,
		user.IsVerified,
		user.LastLogin,
		user.LastActivity,
		sessions,
		history,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("save user: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *PostgresUserStore) UpdateLastLogin(ctx context.Context, userID id.UserID, at time.Time) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx,
		`UPDATE users SET last_login = $2, updated_at = $2 WHERE id = $1`,
		userID.String(), at)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresUserStore) UpdateSessions(ctx context.Context, userID id.UserID, sessions []models.ActiveSession, history []models.LoginRecord, lastActivity time.Time) error {
	sessionsJSON, historyJSON, err := marshalSessions(sessions, history)
	if err != nil {
		return err
	}
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		UPDATE users
		SET active_sessions = $2, login_history = $3, last_activity = $4, updated_at = $4
		WHERE id = $1`,
		userID.String(), sessionsJSON, historyJSON, lastActivity)
	if err != nil {
		return fmt.Errorf("update sessions: %w", err)
	}
	return requireAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u            models.User
		rawID        string
		email        sql.NullString
		phone        sql.NullString
		passwordHash sql.NullString
		status       string
		prefs        []byte
		sessions     []byte
		history      []byte
		lastLogin    sql.NullTime
		lastActivity sql.NullTime
	)
	err := row.Scan(&rawID, &email, &phone, &passwordHash, &u.FirstName, &u.LastName, &prefs,
		&status, &u.IsActive, &u.IsVerified, &lastLogin, &lastActivity,
		&sessions, &history, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	userID, err := id.ParseUserID(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan user id: %w", err)
	}
	u.ID = userID
	u.Email = email.String
	u.Phone = phone.String
	u.PasswordHash = passwordHash.String
	u.Status = models.UserStatus(status)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	if lastActivity.Valid {
		t := lastActivity.Time
		u.LastActivity = &t
	}
	if err := unmarshalIfPresent(prefs, &u.Preferences); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	if err := unmarshalIfPresent(sessions, &u.ActiveSessions); err != nil {
		return nil, fmt.Errorf("decode active sessions: %w", err)
	}
	if err := unmarshalIfPresent(history, &u.LoginHistory); err != nil {
		return nil, fmt.Errorf("decode login history: %w", err)
	}
	return &u, nil
}

func marshalSessions(sessions []models.ActiveSession, history []models.LoginRecord) ([]byte, []byte, error) {
	if sessions == nil {
		sessions = []models.ActiveSession{}
	}
	if history == nil {
		history = []models.LoginRecord{}
	}
	sessionsJSON, err := json.Marshal(sessions)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal active sessions: %w", err)
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal login history: %w", err)
	}
	return sessionsJSON, historyJSON, nil
}

func unmarshalIfPresent(data []byte, dest any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, dest)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
