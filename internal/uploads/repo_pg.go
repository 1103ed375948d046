package uploads

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// PGRepo implements Repo using Postgres. The one-active-task-per-document
// rule is enforced by a partial unique index on (document_id) over
// non-terminal rows.
type PGRepo struct {
	DB *sql.DB
}

const taskColumns = `id, document_id, status, progress, error_message, created_at, updated_at`

func (r *PGRepo) Create(ctx context.Context, task UploadTask) error {
	const query = `
INSERT INTO upload_tasks (id, document_id, status, progress, error_message, created_at, updated_at)
VALUES ($1, $2, $3, $4, NULL, $5, $6)`

	_, err := r.DB.ExecContext(
		ctx,
		query,
		task.ID,
		task.DocumentID,
		string(task.Status),
		task.Progress,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return ErrActiveTaskExists
	}
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, taskID string) (UploadTask, error) {
	const query = `SELECT ` + taskColumns + ` FROM upload_tasks WHERE id = $1 LIMIT 1`
	task, err := scanTask(r.DB.QueryRowContext(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UploadTask{}, ErrNotFound
		}
		return UploadTask{}, err
	}
	return task, nil
}

func (r *PGRepo) LatestByDocument(ctx context.Context, documentID string) (UploadTask, error) {
	const query = `
SELECT ` + taskColumns + `
FROM upload_tasks
WHERE document_id = $1
ORDER BY created_at DESC
LIMIT 1`
	task, err := scanTask(r.DB.QueryRowContext(ctx, query, documentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UploadTask{}, ErrNotFound
		}
		return UploadTask{}, err
	}
	return task, nil
}

func (r *PGRepo) Transition(ctx context.Context, taskID string, from, to Status, errorMessage string, at time.Time) error {
	const query = `
UPDATE upload_tasks
SET status = $1, error_message = $2, updated_at = $3
WHERE id = $4 AND status = $5`

	var errMsg sql.NullString
	if errorMessage != "" {
		errMsg = sql.NullString{String: errorMessage, Valid: true}
	}
	res, err := r.DB.ExecContext(ctx, query, string(to), errMsg, at, taskID, string(from))
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		if _, getErr := r.GetByID(ctx, taskID); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (r *PGRepo) UpdateProgress(ctx context.Context, taskID string, progress int, at time.Time) error {
	const query = `
UPDATE upload_tasks
SET progress = GREATEST(progress, $1), updated_at = $2
WHERE id = $3 AND status NOT IN ('completed', 'failed')`
	_, err := r.DB.ExecContext(ctx, query, progress, at, taskID)
	return err
}

func (r *PGRepo) ListStuck(ctx context.Context, cutoff time.Time) ([]UploadTask, error) {
	const query = `
SELECT ` + taskColumns + `
FROM upload_tasks
WHERE status NOT IN ('completed', 'failed') AND updated_at < $1
ORDER BY updated_at ASC`

	rows, err := r.DB.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UploadTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (UploadTask, error) {
	var task UploadTask
	var status string
	var errMsg sql.NullString
	err := row.Scan(
		&task.ID,
		&task.DocumentID,
		&status,
		&task.Progress,
		&errMsg,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return UploadTask{}, err
	}
	task.Status = Status(status)
	if errMsg.Valid {
		task.ErrorMessage = errMsg.String
	}
	return task, nil
}

// 23505 is the Postgres unique_violation code.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "duplicate key value")
}

var _ Repo = (*PGRepo)(nil)
