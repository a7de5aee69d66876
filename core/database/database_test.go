package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
)

func TestConfigEnabledAndDSN(t *testing.T) {
	assert.False(t, Config{}.Enabled())

	cfg := Config{Host: "db", User: "bot", Password: "p@ss", Name: "delia"}
	assert.True(t, cfg.Enabled())
	assert.Equal(t, "user=bot password=p@ss host=db port=5432 dbname=delia sslmode=disable", cfg.DSN())
	assert.Equal(t, "postgres://bot:p%40ss@db:5432/delia?sslmode=disable", cfg.URL())
}

func TestMigrationVersions(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_b.up.sql":   {Data: []byte("select 1;")},
		"m/0001_a.up.sql":   {Data: []byte("select 1;")},
		"m/0001_a.down.sql": {Data: []byte("select 1;")},
		"m/README.md":       {Data: []byte("notes")},
	}
	versions := upVersions(fsys, "m")
	assert.Equal(t, []uint64{1, 2}, versions)
	assert.Equal(t, 2, countBetween(versions, 0, 2))
	assert.Equal(t, 1, countBetween(versions, 1, 2))
	assert.Zero(t, countBetween(versions, 2, 2))
	assert.Empty(t, upVersions(fsys, "missing"))
}

func TestConnectRequiresHost(t *testing.T) {
	_, err := Connect(Config{})
	assert.Error(t, err)
}
