package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Repository interface {
	CreateVideo(ctx context.Context, video *SourceVideo) error
	GetVideo(ctx context.Context, id string) (*SourceVideo, error)
	ListVideosByOwner(ctx context.Context, ownerUserID string) ([]*SourceVideo, error)

	CreateResult(ctx context.Context, result *MergeResult) error
	GetResult(ctx context.Context, id string) (*MergeResult, error)
	GetResultByJobID(ctx context.Context, jobID string) (*MergeResult, error)
	ListResultsByOwner(ctx context.Context, ownerUserID string, limit int) ([]*MergeResult, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const videoColumns = `id, owner_user_id, title, video_url, thumbnail_url, duration, created_at`

func (r *SQLiteRepository) CreateVideo(ctx context.Context, v *SourceVideo) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO source_videos (`+videoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, v.ID, v.OwnerUserID, v.Title, v.VideoURL, nullString(v.ThumbnailURL), v.Duration, v.CreatedAt.Format(time.RFC3339))
	return err
}

// GetVideo returns nil, nil when no video has the given id.
func (r *SQLiteRepository) GetVideo(ctx context.Context, id string) (*SourceVideo, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM source_videos WHERE id = ?`, id)
	v, err := scanVideo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return v, err
}

func (r *SQLiteRepository) ListVideosByOwner(ctx context.Context, ownerUserID string) ([]*SourceVideo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+videoColumns+`
		FROM source_videos WHERE owner_user_id = ? ORDER BY created_at DESC
	`, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []*SourceVideo
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

const resultColumns = `id, owner_user_id, job_id, title, description, duration, storage_key, storage_url,
	thumbnail_url, owner_email, owner_name, source_clips, total_clips, total_duration,
	processing_time_ms, merge_date, created_at`

func (r *SQLiteRepository) CreateResult(ctx context.Context, m *MergeResult) error {
	clips, err := json.Marshal(m.SourceClips)
	if err != nil {
		return fmt.Errorf("encode source clips: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO merge_results (`+resultColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.OwnerUserID, m.JobID, m.Title, m.Description, m.Duration, m.StorageKey, m.StorageURL,
		m.ThumbnailURL, nullString(m.OwnerEmail), nullString(m.OwnerName), string(clips),
		m.Stats.TotalClips, m.Stats.TotalDuration, m.Stats.ProcessingTimeMs,
		m.Stats.MergeDate.UTC().Format(time.RFC3339), m.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

// GetResult returns nil, nil when no result has the given id.
func (r *SQLiteRepository) GetResult(ctx context.Context, id string) (*MergeResult, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM merge_results WHERE id = ?`, id)
	m, err := scanResult(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (r *SQLiteRepository) GetResultByJobID(ctx context.Context, jobID string) (*MergeResult, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM merge_results WHERE job_id = ?`, jobID)
	m, err := scanResult(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (r *SQLiteRepository) ListResultsByOwner(ctx context.Context, ownerUserID string, limit int) ([]*MergeResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+resultColumns+`
		FROM merge_results WHERE owner_user_id = ? ORDER BY created_at DESC LIMIT ?
	`, ownerUserID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*MergeResult
	for rows.Next() {
		m, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanVideo(s scanner) (*SourceVideo, error) {
	var v SourceVideo
	var thumbnail sql.NullString
	var createdAt string

	if err := s.Scan(&v.ID, &v.OwnerUserID, &v.Title, &v.VideoURL, &thumbnail, &v.Duration, &createdAt); err != nil {
		return nil, err
	}
	v.ThumbnailURL = thumbnail.String
	v.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &v, nil
}

func scanResult(s scanner) (*MergeResult, error) {
	var m MergeResult
	var email, name sql.NullString
	var clips, mergeDate, createdAt string

	err := s.Scan(&m.ID, &m.OwnerUserID, &m.JobID, &m.Title, &m.Description, &m.Duration, &m.StorageKey,
		&m.StorageURL, &m.ThumbnailURL, &email, &name, &clips, &m.Stats.TotalClips, &m.Stats.TotalDuration,
		&m.Stats.ProcessingTimeMs, &mergeDate, &createdAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(clips), &m.SourceClips); err != nil {
		return nil, fmt.Errorf("decode source clips for result %s: %w", m.ID, err)
	}
	m.OwnerEmail = email.String
	m.OwnerName = name.String
	m.Stats.MergeDate, _ = time.Parse(time.RFC3339, mergeDate)
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &m, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
