package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"media-jobs/internal/models"
)

// SaveMediaFileParams collects inputs to record a stored object. Bucket paths
// are derived from the object hash on demand; no path is persisted for new
// rows.
type SaveMediaFileParams struct {
	Token         string
	ObjectHash    string
	MediaType     string
	MimeType      string
	FileSizeBytes int64
}

// SaveMediaFile records a completed upload.
func (s *Store) SaveMediaFile(ctx context.Context, p SaveMediaFileParams) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO media_files (token, object_hash, media_type, mime_type, file_size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id
	`, p.Token, p.ObjectHash, p.MediaType, p.MimeType, p.FileSizeBytes).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert media file: %w", err)
	}
	return id, nil
}

// GetMediaFileByToken fetches a stored object record.
func (s *Store) GetMediaFileByToken(ctx context.Context, token string) (models.MediaFile, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, token, object_hash, media_type, mime_type, file_size_bytes, legacy_bucket_path, created_at
		FROM media_files WHERE token = $1
	`, token)

	var mf models.MediaFile
	var legacy pgtype.Text
	err := row.Scan(&mf.ID, &mf.Token, &mf.ObjectHash, &mf.MediaType, &mf.MimeType, &mf.FileSizeBytes, &legacy, &mf.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.MediaFile{}, false, nil
	}
	if err != nil {
		return models.MediaFile{}, false, fmt.Errorf("query media file: %w", err)
	}
	mf.LegacyBucketPath = textPtr(legacy)
	return mf, true, nil
}
