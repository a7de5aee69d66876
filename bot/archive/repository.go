package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/oops"

	"github.com/m3rciful/deliabot/bot/facts"
	"github.com/m3rciful/deliabot/core/logger"
)

// ErrNotFound is returned when a report id is unknown.
var ErrNotFound = errors.New("report not found")

// Repository is the SQL-backed Archive.
type Repository struct {
	db *sqlx.DB
}

// NewRepository wraps an open database handle.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Save inserts r. A zero ID is replaced with a fresh one and empty fact
// lists are stored as an empty JSON array.
func (r *Repository) Save(ctx context.Context, rep Report) error {
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}
	entries := rep.Facts
	if entries == nil {
		entries = []facts.Entry{}
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return oops.In("archive").Code("encode_facts").Wrapf(err, "encode facts")
	}

	start := time.Now()
	q := r.db.Rebind(`INSERT INTO reports (id, chat_id, user_id, facts, started_at, ended_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err := r.db.ExecContext(ctx, q,
		rep.ID.String(), rep.ChatID, rep.UserID, string(payload),
		rep.StartedAt.UTC(), rep.EndedAt.UTC(),
	); err != nil {
		return oops.In("archive").
			Code("save_failed").
			With("report_id", rep.ID.String(), "chat_id", rep.ChatID).
			Wrapf(err, "insert report")
	}

	logger.Archive.LogAttrs(ctx, slog.LevelInfo, "report saved",
		slog.String("event", "archive.save"),
		slog.String("report_id", rep.ID.String()),
		slog.Int64("chat_id", rep.ChatID),
		slog.Int("facts", len(entries)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return nil
}

// Count returns the number of archived reports.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM reports`); err != nil {
		return 0, oops.In("archive").Code("count_failed").Wrapf(err, "count reports")
	}
	return n, nil
}

// Facts returns the stored entries of one report in their original order.
func (r *Repository) Facts(ctx context.Context, id uuid.UUID) ([]facts.Entry, error) {
	var raw string
	q := r.db.Rebind(`SELECT facts FROM reports WHERE id = ?`)
	if err := r.db.GetContext(ctx, &raw, q, id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, oops.In("archive").Code("not_found").With("report_id", id.String()).Wrap(ErrNotFound)
		}
		return nil, oops.In("archive").Code("load_failed").Wrapf(err, "select report")
	}
	var entries []facts.Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, oops.In("archive").Code("decode_facts").Wrapf(err, "decode facts")
	}
	return entries, nil
}
