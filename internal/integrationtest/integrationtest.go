// Package integrationtest provides server and db helpers used in integration tests.
package integrationtest

import (
	"database/sql"
	"testing"
	"time"

	"github.com/go-petr/mobile-bank/cmd/httpserver"
	"github.com/go-petr/mobile-bank/internal/middleware"
	"github.com/go-petr/mobile-bank/pkg/configpkg"
	"github.com/go-petr/mobile-bank/pkg/dbpkg"
	"github.com/go-petr/mobile-bank/pkg/randompkg"
	"github.com/rs/zerolog"
)

// SetupServer returns test server backed by the configured database.
// The database is flushed after the test.
func SetupServer(t *testing.T, opts ...httpserver.Option) *httpserver.Server {
	t.Helper()

	config, err := configpkg.Load("../../configs")
	if err != nil {
		t.Fatalf(`configpkg.Load("../../configs") returned error: %v`, err)
	}

	db := SetupDB(t, config.DBDriver, config.DBSource)

	return newServer(t, db, config, opts...)
}

// SetupMemoryServer returns test server keeping every store in memory.
func SetupMemoryServer(t *testing.T, opts ...httpserver.Option) *httpserver.Server {
	t.Helper()

	config := configpkg.Config{
		DBDriver:            "memory",
		TokenSymmetricKey:   randompkg.String(32),
		AccessTokenDuration: time.Minute,
		MaxTransferAttempts: 50,
		StoreRetryAttempts:  0,
		NotificationBuffer:  16,
		RedisChannel:        "ledger.events",
	}

	return newServer(t, nil, config, opts...)
}

func newServer(t *testing.T, db *sql.DB, config configpkg.Config, opts ...httpserver.Option) *httpserver.Server {
	t.Helper()

	zerolog.SetGlobalLevel(zerolog.FatalLevel)

	logger := middleware.CreateLogger(config)

	server, err := httpserver.New(db, logger, config, opts...)
	if err != nil {
		t.Fatalf(`httpserver.New(db, logger, config) returned error: %v`, err)
	}

	return server
}

// Flush flushes all db tables without droping.
func Flush(t *testing.T, db *sql.DB) {
	t.Helper()

	var tables string

	const query = `
	SELECT string_agg(table_name, ', ')
	FROM information_schema.tables
	WHERE table_schema='public' AND table_name <> 'schema_migrations';`

	row := db.QueryRow(query)

	err := row.Scan(&tables)
	if err != nil {
		t.Fatalf("db cleanup failed. err: %v", err)
	}

	if _, err := db.Exec(`TRUNCATE TABLE ` + tables + " CASCADE"); err != nil {
		t.Fatalf("db cleanup failed. err: %v", err)
	}
}

// SetupDB sets up connection with database for testing and then cleans it.
func SetupDB(t *testing.T, driver, source string) *sql.DB {
	t.Helper()

	db, err := dbpkg.Setup(driver, source)
	if err != nil {
		t.Fatalf("db initialization failed. err: %v", err)
	}

	t.Cleanup(func() {
		Flush(t, db)

		if err := db.Close(); err != nil {
			t.Fatalf("db cleanup failed. err: %v", err)
		}
	})

	return db
}
