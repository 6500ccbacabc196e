// Package archive persists finalized transcript units and their translations
// to PostgreSQL. Archiving is best effort: the streaming pipeline never
// blocks on it and failures are logged by the caller, not propagated to
// clients.
package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voicebridge-ai/voicebridge/internal/session"
)

// Compile-time assertion that Store satisfies session.Archiver.
var _ session.Archiver = (*Store)(nil)

const ddlUnits = `
CREATE TABLE IF NOT EXISTS finalized_units (
    id          BIGSERIAL        PRIMARY KEY,
    speaker_uid TEXT             NOT NULL,
    start_sec   DOUBLE PRECISION NOT NULL,
    end_sec     DOUBLE PRECISION NOT NULL,
    text        TEXT             NOT NULL,
    created_at  TIMESTAMPTZ      NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_finalized_units_speaker
    ON finalized_units (speaker_uid, created_at);
`

const ddlTranslations = `
CREATE TABLE IF NOT EXISTS unit_translations (
    unit_id BIGINT NOT NULL REFERENCES finalized_units (id) ON DELETE CASCADE,
    lang    TEXT   NOT NULL,
    text    TEXT   NOT NULL,
    PRIMARY KEY (unit_id, lang)
);
`

// Store is the PostgreSQL-backed archive. All methods are safe for
// concurrent use; the pool handles its own synchronisation.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database at dsn and ensures the archive tables exist.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// migrate applies the archive DDL. All statements are idempotent.
func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{ddlUnits, ddlTranslations} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// SaveUnit implements session.Archiver. The unit and all its translations
// are written in one transaction so a crash never leaves a unit without its
// translations.
func (s *Store) SaveUnit(ctx context.Context, speakerUID string, unit session.Unit, translations map[string]string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("archive: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertUnit = `
		INSERT INTO finalized_units (speaker_uid, start_sec, end_sec, text)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	var unitID int64
	if err := tx.QueryRow(ctx, insertUnit, speakerUID, unit.Start, unit.End, unit.Text).Scan(&unitID); err != nil {
		return fmt.Errorf("archive: insert unit: %w", err)
	}

	const insertTranslation = `
		INSERT INTO unit_translations (unit_id, lang, text)
		VALUES ($1, $2, $3)
		ON CONFLICT (unit_id, lang) DO UPDATE SET text = EXCLUDED.text`

	for lang, text := range translations {
		if _, err := tx.Exec(ctx, insertTranslation, unitID, lang, text); err != nil {
			return fmt.Errorf("archive: insert translation %s: %w", lang, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("archive: commit: %w", err)
	}
	return nil
}

// Transcript returns the archived units for one speaker, oldest first.
func (s *Store) Transcript(ctx context.Context, speakerUID string, limit int) ([]session.Unit, error) {
	const q = `
		SELECT start_sec, end_sec, text
		FROM   finalized_units
		WHERE  speaker_uid = $1
		ORDER  BY id
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, speakerUID, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: query transcript: %w", err)
	}
	defer rows.Close()

	var units []session.Unit
	for rows.Next() {
		var u session.Unit
		if err := rows.Scan(&u.Start, &u.End, &u.Text); err != nil {
			return nil, fmt.Errorf("archive: scan unit: %w", err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: iterate transcript: %w", err)
	}
	return units, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
