package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/briefcast/briefcast-go/internal/errors"

	"github.com/briefcast/briefcast-go/internal/data/pgxutil"
	"github.com/briefcast/briefcast-go/internal/domain/model"
)

// ErrChannelNotFound is returned when a channel is not found.
var ErrChannelNotFound = apperrors.NotFound("Channel not found")

const channelColumns = `id, external_id, team_id, created_at, updated_at`

// ChannelRepo provides database operations for channels.
type ChannelRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewChannelRepo creates a new ChannelRepo with real time provider.
func NewChannelRepo(db *sql.DB) *ChannelRepo {
	return &ChannelRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewChannelRepoWithTimeProvider creates a new ChannelRepo with a custom time provider (useful for tests).
func NewChannelRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *ChannelRepo {
	return &ChannelRepo{DB: db, timeProvider: tp}
}

// Upsert creates the channel row if it does not exist and returns it.
func (r *ChannelRepo) Upsert(ctx context.Context, externalID, teamID string) (*model.Channel, error) {
	externalID = strings.TrimSpace(externalID)
	teamID = strings.TrimSpace(teamID)
	if externalID == "" {
		return nil, errors.New("external id is required")
	}
	if teamID == "" {
		return nil, errors.New("team id is required")
	}

	now := r.timeProvider.Now().UTC()
	var out model.Channel
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO channels (external_id, team_id, created_at, updated_at)
			VALUES ($1, $2, $3, $3)
			ON CONFLICT (external_id) DO UPDATE
			SET team_id = EXCLUDED.team_id,
			    updated_at = EXCLUDED.updated_at
			RETURNING `+channelColumns,
			externalID, teamID, now,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Channel])
		return err
	}); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// GetByExternalID retrieves a channel by its external identifier.
func (r *ChannelRepo) GetByExternalID(ctx context.Context, externalID string) (*model.Channel, error) {
	var out model.Channel
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			SELECT `+channelColumns+`
			FROM channels
			WHERE external_id = $1
		`, strings.TrimSpace(externalID))
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		out, qerr = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Channel])
		return qerr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return &out, nil
}
