package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const documentColumns = `id, owner_id, title, description, status, file_name, content_type, size_bytes, storage_key, checksum, download_count, last_accessed_at, created_at, updated_at`

// Create inserts a new document row.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (id, owner_id, title, description, status, file_name, content_type, size_bytes, storage_key, checksum, download_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.DB.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.OwnerID,
		doc.Title,
		doc.Description,
		string(doc.Status),
		doc.FileName,
		doc.ContentType,
		doc.SizeBytes,
		nullString(doc.StorageKey),
		nullString(doc.Checksum),
		doc.DownloadCount,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	return err
}

// GetByID fetches a document regardless of status. Callers decide what to
// do with deleted rows.
func (r *PGRepo) GetByID(ctx context.Context, documentID string) (Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE id = $1 LIMIT 1`, documentColumns)
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, documentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

// GetByIDs fetches the existing, non-deleted documents among the given IDs.
func (r *PGRepo) GetByIDs(ctx context.Context, documentIDs []string) ([]Document, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(documentIDs))
	args := make([]any, len(documentIDs))
	for i, id := range documentIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(
		`SELECT %s FROM documents WHERE id IN (%s) AND status <> 'deleted' ORDER BY created_at DESC`,
		documentColumns,
		strings.Join(placeholders, ", "),
	)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// ListByOwner lists non-deleted documents owned by the user, newest first.
func (r *PGRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Document, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`
SELECT %s FROM documents
WHERE owner_id = $1 AND status <> 'deleted'
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`, documentColumns)

	rows, err := r.DB.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// UpdateMeta updates the title and description.
func (r *PGRepo) UpdateMeta(ctx context.Context, documentID, title, description string, updatedAt time.Time) error {
	const query = `
UPDATE documents
SET title = $1, description = $2, updated_at = $3
WHERE id = $4 AND status <> 'deleted'`
	res, err := r.DB.ExecContext(ctx, query, title, description, updatedAt, documentID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus moves the document to the given lifecycle state.
func (r *PGRepo) UpdateStatus(ctx context.Context, documentID string, to Status, updatedAt time.Time) error {
	const query = `
UPDATE documents
SET status = $1, updated_at = $2
WHERE id = $3`
	res, err := r.DB.ExecContext(ctx, query, string(to), updatedAt, documentID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// FinalizeUpload records the stored file and activates the document.
func (r *PGRepo) FinalizeUpload(ctx context.Context, documentID, storageKey string, sizeBytes int64, contentType, checksum string, updatedAt time.Time) error {
	const query = `
UPDATE documents
SET storage_key = $1, size_bytes = $2, content_type = $3, checksum = $4, status = 'active', updated_at = $5
WHERE id = $6 AND status <> 'deleted'`
	res, err := r.DB.ExecContext(ctx, query, storageKey, sizeBytes, contentType, checksum, updatedAt, documentID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementDownload bumps the counter and stamps the access time.
func (r *PGRepo) IncrementDownload(ctx context.Context, documentID string, accessedAt time.Time) error {
	const query = `
UPDATE documents
SET download_count = download_count + 1, last_accessed_at = $1
WHERE id = $2`
	_, err := r.DB.ExecContext(ctx, query, accessedAt, documentID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var status string
	var storageKey sql.NullString
	var checksum sql.NullString
	var lastAccessed sql.NullTime
	err := row.Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Title,
		&doc.Description,
		&status,
		&doc.FileName,
		&doc.ContentType,
		&doc.SizeBytes,
		&storageKey,
		&checksum,
		&doc.DownloadCount,
		&lastAccessed,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return Document{}, err
	}
	doc.Status = Status(status)
	if storageKey.Valid {
		doc.StorageKey = storageKey.String
	}
	if checksum.Valid {
		doc.Checksum = checksum.String
	}
	if lastAccessed.Valid {
		doc.LastAccessedAt = &lastAccessed.Time
	}
	return doc, nil
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ Repo = (*PGRepo)(nil)
