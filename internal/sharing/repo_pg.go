package sharing

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Upsert inserts or replaces the grant for the (document, grantee) pair.
func (r *PGRepo) Upsert(ctx context.Context, grant ShareGrant) error {
	const query = `
INSERT INTO share_grants (id, document_id, grantee_id, granter_id, level, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (document_id, grantee_id) DO UPDATE SET
  id = EXCLUDED.id,
  granter_id = EXCLUDED.granter_id,
  level = EXCLUDED.level,
  expires_at = EXCLUDED.expires_at,
  created_at = EXCLUDED.created_at`

	var expiresAt sql.NullTime
	if grant.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: *grant.ExpiresAt, Valid: true}
	}

	_, err := r.DB.ExecContext(ctx, query,
		grant.ID,
		grant.DocumentID,
		grant.GranteeID,
		grant.GranterID,
		string(grant.Level),
		expiresAt,
		grant.CreatedAt,
	)
	return err
}

func (r *PGRepo) Get(ctx context.Context, documentID, granteeID string) (ShareGrant, error) {
	const query = `
SELECT id, document_id, grantee_id, granter_id, level, expires_at, created_at
FROM share_grants
WHERE document_id = $1 AND grantee_id = $2
LIMIT 1`
	row := r.DB.QueryRowContext(ctx, query, documentID, granteeID)
	grant, err := scanGrant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ShareGrant{}, ErrNotFound
		}
		return ShareGrant{}, err
	}
	return grant, nil
}

func (r *PGRepo) Delete(ctx context.Context, documentID, granteeID string) error {
	const query = `DELETE FROM share_grants WHERE document_id = $1 AND grantee_id = $2`
	res, err := r.DB.ExecContext(ctx, query, documentID, granteeID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) ListByDocument(ctx context.Context, documentID string) ([]ShareGrant, error) {
	const query = `
SELECT id, document_id, grantee_id, granter_id, level, expires_at, created_at
FROM share_grants
WHERE document_id = $1
ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ShareGrant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, grant)
	}
	return out, rows.Err()
}

func (r *PGRepo) ListActiveByGrantee(ctx context.Context, granteeID string, now time.Time) ([]ShareGrant, error) {
	const query = `
SELECT id, document_id, grantee_id, granter_id, level, expires_at, created_at
FROM share_grants
WHERE grantee_id = $1 AND (expires_at IS NULL OR expires_at > $2)
ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, granteeID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ShareGrant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, grant)
	}
	return out, rows.Err()
}

func (r *PGRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM share_grants WHERE expires_at IS NOT NULL AND expires_at < $1`
	res, err := r.DB.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner) (ShareGrant, error) {
	var grant ShareGrant
	var level string
	var expiresAt sql.NullTime
	if err := row.Scan(
		&grant.ID,
		&grant.DocumentID,
		&grant.GranteeID,
		&grant.GranterID,
		&level,
		&expiresAt,
		&grant.CreatedAt,
	); err != nil {
		return ShareGrant{}, err
	}
	grant.Level = Level(level)
	if expiresAt.Valid {
		t := expiresAt.Time
		grant.ExpiresAt = &t
	}
	return grant, nil
}

var _ Repo = (*PGRepo)(nil)
