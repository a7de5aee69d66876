// Package archive stores the final report of every finished conversation.
// Reports are written once and never read back into a live conversation.
package archive

import (
	"context"
	"embed"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/deliabot/bot/facts"
)

// Migrations holds the schema for the reports table.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations holding the files.
const MigrationsDir = "migrations"

// Report is the final state of one conversation.
type Report struct {
	ID        uuid.UUID
	ChatID    int64
	UserID    int64
	Facts     []facts.Entry
	StartedAt time.Time
	EndedAt   time.Time
}

// Archive persists finished reports.
type Archive interface {
	Save(ctx context.Context, r Report) error
	Count(ctx context.Context) (int, error)
}

// Nop discards reports. It is used when no database is configured.
type Nop struct{}

// Save does nothing.
func (Nop) Save(context.Context, Report) error { return nil }

// Count always reports zero.
func (Nop) Count(context.Context) (int, error) { return 0, nil }
