package permission

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	id "authority/pkg/domain"
	"authority/pkg/platform/tx"
)

// PostgresStore answers permission questions with joins over
// user_groups -> groups -> group_permissions -> permissions. Inactive groups
// are filtered in every query.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const activeGrantsJoin = `
	FROM user_groups ug
	JOIN groups g ON g.id = ug.group_id AND g.is_active = TRUE
	JOIN group_permissions gp ON gp.group_id = g.id
	JOIN permissions p ON p.id = gp.permission_id
	WHERE ug.user_id = $1`

func (s *PostgresStore) ListCodenamesForUser(ctx context.Context, userID id.UserID) ([]string, error) {
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, `SELECT DISTINCT p.codename`+activeGrantsJoin+` ORDER BY p.codename`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("list codenames: %w", err)
	}
	defer rows.Close()

	codenames := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan codename: %w", err)
		}
		codenames = append(codenames, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate codenames: %w", err)
	}
	return codenames, nil
}

func (s *PostgresStore) HasPermission(ctx context.Context, userID id.UserID, codename string) (bool, error) {
	var exists bool
	err := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1`+activeGrantsJoin+` AND p.codename = $2)`,
		userID.String(), codename,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check permission: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) HasAnyPermission(ctx context.Context, userID id.UserID, codenames []string) (bool, error) {
	if len(codenames) == 0 {
		return false, nil
	}
	var exists bool
	err := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1`+activeGrantsJoin+` AND p.codename = ANY($2))`,
		userID.String(), pq.Array(codenames),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check any permission: %w", err)
	}
	return exists, nil
}
