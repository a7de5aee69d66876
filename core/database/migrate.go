package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"

	"github.com/m3rciful/deliabot/core/logger"
)

// migrateLog forwards golang-migrate's own messages at debug level.
type migrateLog struct{}

func (migrateLog) Printf(format string, v ...any) {
	logger.MIG.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("event", "migrate.log"))
}

func (migrateLog) Verbose() bool { return false }

// RunMigrations waits for the database and applies every up migration under
// dir in fsys.
func RunMigrations(cfg Config, fsys fs.FS, dir string) error {
	errs := oops.In("db.migrate")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := waitReady(ctx, cfg.DSN(), 2*time.Second); err != nil {
		logger.MIG.Error("db not ready", slog.String("event", "db.migrate"), slog.String("err", err.Error()))
		return errs.Code("not_ready").Wrap(err)
	}

	versions := upVersions(fsys, dir)
	logger.MIG.Debug("migrations resolved",
		slog.String("event", "resolve"),
		slog.String("path", dir),
		slog.Int("files_total", len(versions)),
	)

	src, err := iofs.New(fsys, dir)
	if err != nil {
		return errs.Code("source").Wrap(err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, cfg.URL())
	if err != nil {
		logger.MIG.Error("init failed", slog.String("event", "db.migrate"), slog.String("err", err.Error()))
		return errs.Code("init").Wrap(err)
	}
	defer m.Close()
	m.Log = migrateLog{}

	from, _, _ := m.Version()
	start := time.Now()
	err = m.Up()
	took := slog.Duration("duration", logger.RoundMS(time.Since(start)))
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.MIG.Error("migration failed", slog.String("event", "apply"), slog.String("err", err.Error()), took)
		return errs.Code("apply").Wrap(err)
	}

	to, _, _ := m.Version()
	logger.MIG.Info("migrations summary",
		slog.String("event", "summary"),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("files", countBetween(versions, uint64(from), uint64(to))),
		took,
	)
	return nil
}

// upVersions returns the sorted versions of the *.up.sql files in dir.
func upVersions(fsys fs.FS, dir string) []uint64 {
	names, err := fs.Glob(fsys, path.Join(dir, "*.up.sql"))
	if err != nil {
		return nil
	}
	versions := make([]uint64, 0, len(names))
	for _, name := range names {
		prefix, _, _ := strings.Cut(path.Base(name), "_")
		if v, err := strconv.ParseUint(prefix, 10, 64); err == nil {
			versions = append(versions, v)
		}
	}
	slices.Sort(versions)
	return versions
}

// countBetween counts versions in (from, to].
func countBetween(versions []uint64, from, to uint64) int {
	n := 0
	for _, v := range versions {
		if v > from && v <= to {
			n++
		}
	}
	return n
}
