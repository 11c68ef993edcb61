package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/briefcast/briefcast-go/internal/errors"

	"github.com/briefcast/briefcast-go/internal/core"
	"github.com/briefcast/briefcast-go/internal/data/pgxutil"
	"github.com/briefcast/briefcast-go/internal/domain/model"
)

// ErrRecordNotFound is returned when a processing record is not found.
var ErrRecordNotFound = apperrors.NotFound("Processing Record not found")

const recordColumns = `
	id, url, thread_id, channel_id, team_id, status, progress,
	title, summary, audio_url, audio_storage_key, spoken_transcript,
	cover_image_url, error_message, created_at, updated_at
`

// RecordRepo provides database operations for processing records.
type RecordRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewRecordRepo creates a new RecordRepo with real time provider.
func NewRecordRepo(db *sql.DB) *RecordRepo {
	return &RecordRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewRecordRepoWithTimeProvider creates a new RecordRepo with a custom time provider (useful for tests).
func NewRecordRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *RecordRepo {
	return &RecordRepo{DB: db, timeProvider: tp}
}

// Upsert creates the record for the given natural key or returns the existing
// one. The natural key is UNIQUE (url, thread_id, channel_id); a conflict only
// bumps updated_at so the row reflects the latest touch.
func (r *RecordRepo) Upsert(ctx context.Context, params core.UpsertRecordParams) (*model.ProcessingRecord, error) {
	if !params.Key.Valid() {
		return nil, errors.New("record key requires url, thread id, and channel id")
	}
	if strings.TrimSpace(params.TeamID) == "" {
		return nil, errors.New("team id is required")
	}

	now := r.timeProvider.Now().UTC()
	var out model.ProcessingRecord
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO processing_records (
				url, thread_id, channel_id, team_id, status, progress, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, 0, $6, $6
			)
			ON CONFLICT (url, thread_id, channel_id) DO UPDATE
			SET updated_at = EXCLUDED.updated_at
			RETURNING `+recordColumns,
			strings.TrimSpace(params.Key.URL),
			strings.TrimSpace(params.Key.ThreadID),
			strings.TrimSpace(params.Key.ChannelID),
			strings.TrimSpace(params.TeamID),
			model.RecordStatusPending,
			now,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.ProcessingRecord])
		return err
	}); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// GetByID retrieves a processing record by ID.
func (r *RecordRepo) GetByID(ctx context.Context, id string) (*model.ProcessingRecord, error) {
	return r.getByQuery(ctx, `
		SELECT `+recordColumns+`
		FROM processing_records
		WHERE id = $1
	`, id)
}

// GetByKey retrieves a processing record by its natural key.
func (r *RecordRepo) GetByKey(ctx context.Context, key model.RecordKey) (*model.ProcessingRecord, error) {
	if !key.Valid() {
		return nil, errors.New("record key requires url, thread id, and channel id")
	}
	return r.getByQuery(ctx, `
		SELECT `+recordColumns+`
		FROM processing_records
		WHERE url = $1 AND thread_id = $2 AND channel_id = $3
	`, strings.TrimSpace(key.URL), strings.TrimSpace(key.ThreadID), strings.TrimSpace(key.ChannelID))
}

func (r *RecordRepo) getByQuery(ctx context.Context, query string, args ...any) (*model.ProcessingRecord, error) {
	var out model.ProcessingRecord
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, query, args...)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		out, qerr = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.ProcessingRecord])
		return qerr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get processing record: %w", err)
	}
	return &out, nil
}

// UpdateProgress moves the record's progress forward. Updates below the stored
// value are ignored so concurrent checkpoints never walk progress backwards.
func (r *RecordRepo) UpdateProgress(ctx context.Context, id string, progress int) error {
	if progress < 0 || progress > 100 {
		return fmt.Errorf("progress must be between 0 and 100, got %d", progress)
	}

	_, err := r.DB.ExecContext(ctx, `
		UPDATE processing_records
		SET progress = GREATEST(progress, $2),
		    updated_at = $3
		WHERE id = $1
	`, id, progress, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("update record progress: %w", err)
	}
	return nil
}

// SetStatus transitions the record's lifecycle status. Completion forces
// progress to 100.
func (r *RecordRepo) SetStatus(ctx context.Context, params core.SetRecordStatusParams) error {
	if !params.Status.Valid() {
		return fmt.Errorf("invalid record status: %s", params.Status)
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE processing_records
		SET status = $2,
		    error_message = $3,
		    progress = CASE WHEN $2 = $4 THEN 100 ELSE progress END,
		    updated_at = $5
		WHERE id = $1
	`, params.ID, params.Status, params.ErrorMessage, model.RecordStatusCompleted, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("set record status: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set record status rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// SetContent stores extraction and summarization outputs on the record.
// Nil fields are left untouched.
func (r *RecordRepo) SetContent(ctx context.Context, params core.SetRecordContentParams) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE processing_records
		SET title = COALESCE($2, title),
		    summary = COALESCE($3, summary),
		    cover_image_url = COALESCE($4, cover_image_url),
		    updated_at = $5
		WHERE id = $1
	`, params.ID, params.Title, params.Summary, params.CoverImageURL, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("set record content: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set record content rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// SetAudio stores the rendered artifact's URL, storage key and the transcript
// that was actually spoken. Nil optional fields are left untouched.
func (r *RecordRepo) SetAudio(ctx context.Context, params core.SetRecordAudioParams) error {
	if strings.TrimSpace(params.AudioURL) == "" {
		return errors.New("audio url is required")
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE processing_records
		SET audio_url = $2,
		    audio_storage_key = COALESCE($3, audio_storage_key),
		    spoken_transcript = COALESCE($4, spoken_transcript),
		    updated_at = $5
		WHERE id = $1
	`, params.ID, params.AudioURL, params.StorageKey, params.SpokenTranscript, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("set record audio: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set record audio rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}
