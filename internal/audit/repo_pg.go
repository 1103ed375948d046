package audit

import (
	"context"
	"database/sql"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Insert(ctx context.Context, entry Entry) error {
	const query = `
INSERT INTO access_logs (id, document_id, user_id, action, success, error_message, client_ip, user_agent, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	var errMsg sql.NullString
	if entry.ErrorMessage != "" {
		errMsg = sql.NullString{String: entry.ErrorMessage, Valid: true}
	}
	_, err := r.DB.ExecContext(
		ctx,
		query,
		entry.ID,
		entry.DocumentID,
		entry.UserID,
		string(entry.Action),
		entry.Success,
		errMsg,
		entry.ClientIP,
		entry.UserAgent,
		entry.CreatedAt,
	)
	return err
}

func (r *PGRepo) ListByDocument(ctx context.Context, documentID string, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
SELECT id, document_id, user_id, action, success, error_message, client_ip, user_agent, created_at
FROM access_logs
WHERE document_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

	rows, err := r.DB.QueryContext(ctx, query, documentID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var entry Entry
		var action string
		var errMsg sql.NullString
		if err := rows.Scan(
			&entry.ID,
			&entry.DocumentID,
			&entry.UserID,
			&action,
			&entry.Success,
			&errMsg,
			&entry.ClientIP,
			&entry.UserAgent,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.Action = Action(action)
		if errMsg.Valid {
			entry.ErrorMessage = errMsg.String
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

var _ Repo = (*PGRepo)(nil)
